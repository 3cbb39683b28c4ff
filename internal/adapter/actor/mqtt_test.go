package actor

import (
	"testing"
	"time"

	"github.com/DeviationLabs/homely-vibes/internal/core/domain"
	"github.com/DeviationLabs/homely-vibes/internal/events"
	"github.com/DeviationLabs/homely-vibes/internal/mqtt"
	"github.com/DeviationLabs/homely-vibes/internal/util"
	"github.com/DeviationLabs/homely-vibes/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, &es, logger) })
	pid := context.Spawn(props)

	time.Sleep(2 * time.Second)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.NotNil(t, resp)

	es.Publish(domain.FloatSensorUpdateEvent{
		GenericSensorUpdateEvent: domain.GenericSensorUpdateEvent{
			Id: events.SENSOR_ID_BATTERY_SOC,
		},
		Value:    72.45,
		Decimals: 2,
	})
	es.Publish(domain.TextSensorUpdateEvent{
		GenericSensorUpdateEvent: domain.GenericSensorUpdateEvent{
			Id: events.SENSOR_ID_OPERATION_MODE,
		},
		Value: "self_consumption",
	})

	time.Sleep(1 * time.Second)

	context.Stop(pid)

	time.Sleep(1 * time.Second)

	as.Shutdown()
}

func TestMQTTActorStopBeforeClientCreated(t *testing.T) {

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	// restart before Started ever ran: no client exists yet
	act := NewMQTTActor(&cfg, nil, logger)
	assert.NotPanics(t, act.stop)
}

func TestMQTTActorBridgeStateMessageRetained(t *testing.T) {

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	act := NewTestMQTTActor(&cfg, nil, logger)
	act.client = mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil)

	msg := act.event2MQTTMessage(domain.BridgeStateUpdateEvent{Value: true})
	assert.NotNil(t, msg)
	assert.Equal(t, mqtt.MQTT_PAYLOAD_ONLINE, msg.message)
	assert.True(t, msg.retain, "availability must be retained")

	msg = act.event2MQTTMessage(domain.BridgeStateUpdateEvent{Value: false})
	assert.Equal(t, mqtt.MQTT_PAYLOAD_OFFLINE, msg.message)
	assert.True(t, msg.retain)
}

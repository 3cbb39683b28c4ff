package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	adactor "github.com/DeviationLabs/homely-vibes/internal/adapter/actor"
	"github.com/DeviationLabs/homely-vibes/internal/adapter/pushover"
	"github.com/DeviationLabs/homely-vibes/internal/core/domain"
	"github.com/DeviationLabs/homely-vibes/internal/events"
	"github.com/DeviationLabs/homely-vibes/internal/core/service"
	"github.com/DeviationLabs/homely-vibes/internal/policy"
	"github.com/DeviationLabs/homely-vibes/internal/util"
	"github.com/DeviationLabs/homely-vibes/pkg/powerwall"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func healthCheck(ctx *actor.RootContext, pid *actor.PID) (*domain.ActorHealthResponse, error) {
	resp, err := ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	if err != nil {
		return nil, err
	}
	hcr, ok := resp.(domain.ActorHealthResponse)
	if !ok {
		return nil, errors.New("unexpected response type")
	}
	return &hcr, nil
}

func TestReserveControlTickPublishesSensorUpdates(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()

	gateway := powerwall.CreateTestGatewayClient()
	powerwallProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewPowerwallActor(gateway, logger)
	})
	powerwallPID := context.Spawn(powerwallProps)

	es := &eventstream.EventStream{}
	var mu sync.Mutex
	seen := make(map[string]bool)
	sub := es.Subscribe(func(evt interface{}) {
		if sensorEvent, ok := evt.(domain.SensorUpdateEvent); ok {
			mu.Lock()
			seen[sensorEvent.SensorId()] = true
			mu.Unlock()
		}
	})
	defer es.Unsubscribe(sub)

	controller := service.NewReserveController(service.ReserveControlParams{
		PollInterval:           time.Duration(cfg.ControlConfig.PollIntervalSeconds) * time.Second,
		MaxConsecutiveFailures: maxLoopFailures,
		NotifyOnChange:         false,
	},
		adactor.NewActorTelemetrySource(as, powerwallPID),
		adactor.NewActorActuator(as, powerwallPID),
		pushover.NewNopNotifier(logger),
		policy.NewStaticProvider(policy.DefaultDecisionPoints()),
		logger)

	rcProps := actor.PropsFromProducer(func() actor.Actor {
		return NewReserveControlActor(&cfg, controller, es, pushover.NewNopNotifier(logger), nil, logger)
	})
	rcPID := context.Spawn(rcProps)

	time.Sleep(2 * time.Second)

	hcr, err := healthCheck(context, rcPID)
	if err != nil {
		t.Error(err)
		return
	}
	assert.True(t, hcr.Healthy, "actor should be healthy")
	assert.Equal(t, "idle", hcr.State, "actor should be waiting for the next tick")

	assert.GreaterOrEqual(t, controller.LoopCount(), 1, "at least one cycle should have run")

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, seen[events.SENSOR_ID_BATTERY_SOC], "battery SoC should be published")
	assert.True(t, seen[events.SENSOR_ID_BACKUP_RESERVE], "backup reserve should be published")
	assert.True(t, seen[events.SENSOR_ID_OPERATION_MODE], "operation mode should be published")

	context.Stop(rcPID)
	context.Stop(powerwallPID)
	as.Shutdown()
}

type failingTelemetry struct {
}

func (failingTelemetry) FetchState(ctx context.Context) (*domain.SiteState, error) {
	return nil, domain.Transient("live status", errors.New("gateway unreachable"))
}

type noopActuator struct {
}

func (noopActuator) SetOperationMode(ctx context.Context, mode domain.OperationMode) (string, error) {
	return "Updated", nil
}

func (noopActuator) SetBackupReservePercent(ctx context.Context, pct int) (string, error) {
	return "Updated", nil
}

func TestReserveControlExhaustedRetriesInvokesFatalHandler(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.ControlConfig.PollIntervalSeconds = 1

	fatal := make(chan error, 1)

	controller := service.NewReserveController(service.ReserveControlParams{
		PollInterval:           1 * time.Second,
		MaxConsecutiveFailures: 1,
		NotifyOnChange:         false,
	},
		failingTelemetry{},
		noopActuator{},
		pushover.NewNopNotifier(logger),
		policy.NewStaticProvider(policy.DefaultDecisionPoints()),
		logger)

	rcProps := actor.PropsFromProducer(func() actor.Actor {
		return NewReserveControlActor(&cfg, controller, &eventstream.EventStream{}, pushover.NewNopNotifier(logger), func(err error) {
			fatal <- err
		}, logger)
	})
	rcPID := context.Spawn(rcProps)

	select {
	case err := <-fatal:
		var exhausted *domain.ExhaustedRetriesError
		assert.True(t, errors.As(err, &exhausted), "fatal error should be ExhaustedRetriesError")
		assert.Equal(t, 2, exhausted.Failures)
	case <-time.After(10 * time.Second):
		t.Error("fatal handler was not invoked")
		context.Stop(rcPID)
		as.Shutdown()
		return
	}

	time.Sleep(200 * time.Millisecond)

	hcr, err := healthCheck(context, rcPID)
	if err != nil {
		t.Error(err)
		return
	}
	assert.False(t, hcr.Healthy, "actor should report unhealthy after giving up")
	assert.Equal(t, "stopped", hcr.State)

	context.Stop(rcPID)
	as.Shutdown()
}

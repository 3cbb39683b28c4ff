package actor

import (
	"context"
	"testing"
	"time"

	"github.com/DeviationLabs/homely-vibes/internal/core/domain"
	"github.com/DeviationLabs/homely-vibes/internal/util/actorutil"
	"github.com/DeviationLabs/homely-vibes/pkg/powerwall"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGetSiteStatePowerwallActor(t *testing.T) {

	assert := assert.New(t)

	gateway := powerwall.CreateTestGatewayClient()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewPowerwallActor(gateway, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	msg := domain.GetSiteStateRequest{}
	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetSiteStateResponse)

	assert.False(resp.HasResponseError())
	assert.Equal(domain.ModeSelfConsumption, resp.State.OperationMode, "operation mode")
	assert.Equal(35, resp.State.BackupReservePercent, "backup reserve")
	assert.Equal(72.45, resp.State.BatteryPercent, "battery percent")
	assert.True(resp.State.CanGridCharge, "grid charge allowed")

	context.Stop(pid)

	as.Shutdown()
}

func TestSetCommandsPowerwallActor(t *testing.T) {

	assert := assert.New(t)

	gateway := powerwall.CreateTestGatewayClient().(*powerwall.TestGatewayClient)

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewPowerwallActor(gateway, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	result, err := context.RequestFuture(pid, domain.SetOperationModeRequest{
		Mode: domain.ModeAutonomous,
	}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	modeResp := result.(domain.SetOperationModeResponse)
	assert.Equal("Updated", modeResp.Confirmation, "mode confirmation")

	result, err = context.RequestFuture(pid, domain.SetBackupReserveRequest{
		Percent: 50,
	}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	reserveResp := result.(domain.SetBackupReserveResponse)
	assert.Equal("Updated", reserveResp.Confirmation, "reserve confirmation")

	assert.Equal([]string{"autonomous"}, gateway.ModesSet, "modes applied")
	assert.Equal([]int{50}, gateway.ReservesSet, "reserves applied")

	context.Stop(pid)

	as.Shutdown()
}

func TestActorPortsAgainstPowerwallActor(t *testing.T) {

	assert := assert.New(t)

	gateway := powerwall.CreateTestGatewayClient()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewPowerwallActor(gateway, logger) })
	pid := root.Spawn(props)

	time.Sleep(1 * time.Second)

	telemetry := NewActorTelemetrySource(as, pid)
	actuator := NewActorActuator(as, pid)

	state, err := telemetry.FetchState(context.Background())
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(72.45, state.BatteryPercent, "battery percent through port")

	confirmation, err := actuator.SetBackupReservePercent(context.Background(), 65)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal("Updated", confirmation, "confirmation through port")

	root.Stop(pid)

	as.Shutdown()
}

package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DeviationLabs/homely-vibes/internal/core/domain"
	"github.com/DeviationLabs/homely-vibes/internal/core/port"

	"github.com/asynkron/protoactor-go/actor"
)

// ActorTelemetrySource and ActorActuator bridge the synchronous ports
// to the powerwall actor by request/response futures. The future
// timeout is slightly above the gateway timeout so the device actor
// is the one deciding when a call has taken too long.
const portRequestTimeout = gatewayCallTimeout + 5*time.Second

type ActorTelemetrySource struct {
	system *actor.ActorSystem
	target *actor.PID
}

func NewActorTelemetrySource(system *actor.ActorSystem, target *actor.PID) *ActorTelemetrySource {
	return &ActorTelemetrySource{
		system: system,
		target: target,
	}
}

func (s *ActorTelemetrySource) FetchState(ctx context.Context) (*domain.SiteState, error) {
	result, err := requestResponse[domain.GetSiteStateResponse](s.system, s.target, domain.GetSiteStateRequest{})
	if err != nil {
		return nil, err
	}
	if result.State == nil {
		return nil, domain.Transient("site state", errNilState)
	}
	return result.State, nil
}

type ActorActuator struct {
	system *actor.ActorSystem
	target *actor.PID
}

func NewActorActuator(system *actor.ActorSystem, target *actor.PID) *ActorActuator {
	return &ActorActuator{
		system: system,
		target: target,
	}
}

func (a *ActorActuator) SetOperationMode(ctx context.Context, mode domain.OperationMode) (string, error) {
	result, err := requestResponse[domain.SetOperationModeResponse](a.system, a.target, domain.SetOperationModeRequest{
		Mode: mode,
	})
	if err != nil {
		return "", err
	}
	return result.Confirmation, nil
}

func (a *ActorActuator) SetBackupReservePercent(ctx context.Context, percent int) (string, error) {
	result, err := requestResponse[domain.SetBackupReserveResponse](a.system, a.target, domain.SetBackupReserveRequest{
		Percent: percent,
	})
	if err != nil {
		return "", err
	}
	return result.Confirmation, nil
}

func requestResponse[T domain.ActorResponse](system *actor.ActorSystem, target *actor.PID, req any) (*T, error) {
	future := system.Root.RequestFuture(target, req, portRequestTimeout)
	raw, err := future.Result()
	if err != nil {
		return nil, domain.Transient("actor request", err)
	}
	typed, ok := raw.(T)
	if !ok {
		return nil, domain.Transient("actor request", fmt.Errorf("unexpected response type %T", raw))
	}
	if typed.HasResponseError() {
		return nil, typed.GetResponseError()
	}
	return &typed, nil
}

var _ port.TelemetrySource = (*ActorTelemetrySource)(nil)
var _ port.Actuator = (*ActorActuator)(nil)

var errNilState = errors.New("telemetry returned no state")

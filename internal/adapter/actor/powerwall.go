package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DeviationLabs/homely-vibes/internal/core/domain"
	"github.com/DeviationLabs/homely-vibes/internal/util/actorutil"
	"github.com/DeviationLabs/homely-vibes/pkg/powerwall"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const gatewayCallTimeout = 35 * time.Second

// PowerwallActor owns the Owner API client. Requests are served one
// at a time: while a gateway call is in flight the actor stashes
// everything else, so the cloud API never sees concurrent calls from
// this process.
type PowerwallActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	gateway  powerwall.GatewayClient
	site     *powerwall.SiteInfo
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewPowerwallActor(gateway powerwall.GatewayClient, logger *zap.Logger) *PowerwallActor {
	act := &PowerwallActor{
		gateway:  gateway,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_POWERWALL, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PowerwallActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PowerwallActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("powerwall@starting started")
		site, err := state.discoverSite()
		if err != nil {
			panic(err)
		}
		state.site = site
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("powerwall@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PowerwallActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("powerwall@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POWERWALL,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetSiteInfoRequest:
		state.logger.Debug("powerwall@default: GetSiteInfoRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		site := state.site
		ctx.Send(sender, domain.GetSiteInfoResponse{
			Site: site,
		})
	case domain.GetSiteStateRequest:
		state.logger.Debug("powerwall@default: GetSiteStateRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getSiteState),
			mapTaskResult[domain.GetSiteStateResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetSiteStateResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(gatewayCallTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingGateway)
	case domain.SetOperationModeRequest:
		state.logger.Debug("powerwall@default: SetOperationModeRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		mode := msg.Mode
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetOperationModeResponse, error) {
			return state.setOperationMode(mode)
		}),
			mapTaskResult[domain.SetOperationModeResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetOperationModeResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(gatewayCallTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingGateway)
	case domain.SetBackupReserveRequest:
		state.logger.Debug("powerwall@default: SetBackupReserveRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		percent := msg.Percent
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetBackupReserveResponse, error) {
			return state.setBackupReserve(percent)
		}),
			mapTaskResult[domain.SetBackupReserveResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetBackupReserveResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(gatewayCallTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingGateway)
	default:
		state.logger.Debug("powerwall@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PowerwallActor) WaitingGateway(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("powerwall@WaitingGateway backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("powerwall@WaitingGateway stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *PowerwallActor) discoverSite() (*powerwall.SiteInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
	defer cancel()
	return a.gateway.FindBatterySite(ctx)
}

// getSiteState merges site_info and live_status into the validated
// view the control loop consumes.
func (a *PowerwallActor) getSiteState() (*domain.GetSiteStateResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
	defer cancel()

	info, err := a.gateway.GetSiteInfo(ctx)
	if err != nil {
		a.logger.Error("site_info fetch failed", zap.Error(err))
		return nil, wrapGatewayError("site_info", err)
	}
	status, err := a.gateway.GetLiveStatus(ctx)
	if err != nil {
		a.logger.Error("live_status fetch failed", zap.Error(err))
		return nil, wrapGatewayError("live_status", err)
	}

	siteState := &domain.SiteState{
		OperationMode:        domain.ParseOperationMode(info.DefaultRealMode),
		BackupReservePercent: info.BackupReservePercent,
		BatteryPercent:       status.PercentageCharged,
		CanExport:            info.Components.CustomerPreferredExportRule,
		CanGridCharge:        !info.Components.DisallowChargeFromGridWithSolarInstalled,
		GridStatus:           status.GridStatus,
	}
	if err := siteState.Validate(); err != nil {
		return nil, err
	}
	return &domain.GetSiteStateResponse{
		State: siteState,
	}, nil
}

func (a *PowerwallActor) setOperationMode(mode domain.OperationMode) (*domain.SetOperationModeResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
	defer cancel()

	confirmation, err := a.gateway.SetOperationMode(ctx, mode.String())
	if err != nil {
		a.logger.Error("set operation mode failed", zap.String("mode", mode.String()), zap.Error(err))
		return nil, wrapGatewayError("operation", err)
	}
	return &domain.SetOperationModeResponse{
		Confirmation: confirmation,
	}, nil
}

func (a *PowerwallActor) setBackupReserve(percent int) (*domain.SetBackupReserveResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
	defer cancel()

	confirmation, err := a.gateway.SetBackupReservePercent(ctx, percent)
	if err != nil {
		a.logger.Error("set backup reserve failed", zap.Int("percent", percent), zap.Error(err))
		return nil, wrapGatewayError("backup", err)
	}
	return &domain.SetBackupReserveResponse{
		Confirmation: confirmation,
	}, nil
}

// wrapGatewayError keeps auth failures non-retryable and marks
// everything else transient.
func wrapGatewayError(op string, err error) error {
	var authErr *powerwall.AuthError
	if errors.As(err, &authErr) {
		return &domain.ConfigError{Reason: "gateway authentication", Err: err}
	}
	return domain.Transient(op, err)
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}

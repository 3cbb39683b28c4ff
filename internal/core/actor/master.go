package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "github.com/DeviationLabs/homely-vibes/internal/adapter/actor"
	"github.com/DeviationLabs/homely-vibes/internal/config"
	"github.com/DeviationLabs/homely-vibes/internal/core/domain"
	"github.com/DeviationLabs/homely-vibes/internal/core/port"
	"github.com/DeviationLabs/homely-vibes/internal/core/service"
	. "github.com/DeviationLabs/homely-vibes/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// maxLoopFailures is how many consecutive failed control cycles are
// tolerated before the loop gives up.
const maxLoopFailures = 10

const startupTitle = "Powerwall Alert"

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type PowerwallActorProvider func() *adactor.PowerwallActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck     healthCheckResult
	eventStream            *eventstream.EventStream
	powerwallActor         *actor.PID
	mqttActor              *actor.PID
	reserveControlActor    *actor.PID
	powerwallActorProvider PowerwallActorProvider
	mqttActorProvider      MQTTActorProvider
	notifier               port.NotificationSink
	policyProvider         port.PolicyProvider
	onFatal                FatalHandler
	logger                 *zap.Logger
}

type healthCheckResult struct {
	powerwallActorHealthy      bool
	mqttActorHealthy           bool
	reserveControlActorHealthy bool
	checksReceived             int
	respondTo                  *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, powerwallActorProvider PowerwallActorProvider, mqttActorProvider MQTTActorProvider,
	notifier port.NotificationSink, policyProvider port.PolicyProvider, onFatal FatalHandler, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:                 config,
		behavior:               actor.NewBehavior(),
		stash:                  &Stash{},
		logger:                 ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:            &eventstream.EventStream{},
		powerwallActorProvider: powerwallActorProvider,
		mqttActorProvider:      mqttActorProvider,
		notifier:               notifier,
		policyProvider:         policyProvider,
		onFatal:                onFatal,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start Powerwall child
		powerwallActorPID, err := state.startPowerwallActor(ctx)
		if err != nil {
			panic(err)
		}
		state.powerwallActor = powerwallActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start ReserveControl child
		reserveControlActorPID, err := state.startReserveControlActor(ctx)
		if err != nil {
			panic(err)
		}
		state.reserveControlActor = reserveControlActorPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		// announce which site is being watched once it resolves
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.powerwallActor, domain.GetSiteInfoRequest{}, 10*time.Second), func(err error) any {
			return domain.GetSiteInfoResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		// Powerwall Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.powerwallActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_POWERWALL,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		// ReserveControl Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.reserveControlActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_RESERVE_CONTROL,
				Healthy: false,
			}
		})

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetSiteInfoResponse:
		if msg.HasResponseError() || msg.Site == nil {
			state.logger.Warn("master@default could not resolve site for startup notice", zap.Error(msg.GetResponseError()))
			return
		}
		state.logger.Info("master@default monitoring started", zap.String("site", msg.Site.SiteName))
		state.notifier.SendAlert(fmt.Sprintf("Monitoring started for %s", msg.Site.SiteName), startupTitle, 0)
	case *actor.Terminated:
		// if some actor fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_POWERWALL) {
			state.logger.Error("master@default powerwall error")
			panic(errors.New("powerwall terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			if msg.Id == domain.ACTOR_ID_POWERWALL {
				state.currentHealthCheck.powerwallActorHealthy = true
			} else if msg.Id == domain.ACTOR_ID_MQTT {
				state.currentHealthCheck.mqttActorHealthy = true
			} else if msg.Id == domain.ACTOR_ID_RESERVE_CONTROL {
				state.currentHealthCheck.reserveControlActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startPowerwallActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	powerwallProps := actor.PropsFromProducer(func() actor.Actor {
		return state.powerwallActorProvider()
	}, actor.WithSupervisor(supervisor))
	powerwallActorPID, err := ctx.SpawnNamed(powerwallProps, domain.ACTOR_ID_POWERWALL)
	if err != nil {
		return nil, err
	}

	return powerwallActorPID, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.powerwallActor, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startReserveControlActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	system := ctx.ActorSystem()
	powerwallPID := state.powerwallActor

	// the producer builds a fresh controller so a restart starts from a
	// clean history and failure counter
	rcProps := actor.PropsFromProducer(func() actor.Actor {
		controller := service.NewReserveController(service.ReserveControlParams{
			PollInterval:           time.Duration(state.config.ControlConfig.PollIntervalSeconds) * time.Second,
			MaxConsecutiveFailures: maxLoopFailures,
			NotifyOnChange:         state.config.ControlConfig.NotifyOnChange,
		},
			adactor.NewActorTelemetrySource(system, powerwallPID),
			adactor.NewActorActuator(system, powerwallPID),
			state.notifier,
			state.policyProvider,
			state.logger)
		return NewReserveControlActor(&state.config, controller, state.eventStream, state.notifier, state.onFatal, state.logger)
	}, actor.WithSupervisor(supervisor))
	rcPID, err := ctx.SpawnNamed(rcProps, domain.ACTOR_ID_RESERVE_CONTROL)
	if err != nil {
		return nil, err
	}

	return rcPID, nil
}

func (state *healthCheckResult) reset() {
	state.powerwallActorHealthy = false
	state.mqttActorHealthy = false
	state.reserveControlActorHealthy = false
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 3
}

func (state *healthCheckResult) allHealthy() bool {
	return state.powerwallActorHealthy && state.mqttActorHealthy && state.reserveControlActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}

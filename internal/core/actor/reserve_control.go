package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DeviationLabs/homely-vibes/internal/config"
	"github.com/DeviationLabs/homely-vibes/internal/core/domain"
	"github.com/DeviationLabs/homely-vibes/internal/events"
	"github.com/DeviationLabs/homely-vibes/internal/core/port"
	"github.com/DeviationLabs/homely-vibes/internal/core/service"
	. "github.com/DeviationLabs/homely-vibes/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const (
	summaryTitle = "Powerwall Summary"

	// controlTickTimeout bounds one full poll cycle. The gateway calls
	// behind the ports carry their own timeouts, so tripping this one
	// means something is wedged and a restart is due.
	controlTickTimeout = 3 * time.Minute
)

// FatalHandler is invoked when the control loop gives up for good
// (retries exhausted). It runs outside the actor system so the process
// can alert and exit.
type FatalHandler func(error)

type ReserveControlActor struct {
	ActorWithStates
	scheduler   *scheduler.TimerScheduler
	stash       *Stash
	config      *config.Config
	controller  *service.ReserveController
	eventStream *eventstream.EventStream
	notifier    port.NotificationSink
	onFatal     FatalHandler

	summarySched  quartz.Scheduler
	lastTickStart time.Time
	lastState     *domain.SiteState
	lastReason    string
	cancelTick    scheduler.CancelFunc

	logger *zap.Logger
}

type reserveControlTick struct {
}

type dailySummaryTick struct {
}

type tickResult struct {
	outcome service.TickOutcome
	err     error
}

func NewReserveControlActor(config *config.Config, controller *service.ReserveController, eventStream *eventstream.EventStream,
	notifier port.NotificationSink, onFatal FatalHandler, logger *zap.Logger) *ReserveControlActor {
	act := &ReserveControlActor{
		config:      config,
		controller:  controller,
		eventStream: eventStream,
		notifier:    notifier,
		onFatal:     onFatal,
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_RESERVE_CONTROL, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(RCStartingState{
		actor: act,
	})
	return act
}

func (state *ReserveControlActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type RCStartingState struct {
	ActorState
	actor *ReserveControlActor
}

func (state RCStartingState) Name() string {
	return "starting"
}

func (state RCStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("reserve_control@starting started")

		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)

		if cron := state.actor.config.ControlConfig.DailySummaryCron; cron != "" {
			if err := state.actor.startSummaryJob(ctx, cron); err != nil {
				state.actor.logger.Error("reserve_control@starting could not schedule summary job", zap.Error(err))
			}
		}

		ctx.Send(ctx.Self(), reserveControlTick{})
		state.actor.Become(RCIdleState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.actor.stopSummaryJob()
	default:
		state.actor.logger.Debug("reserve_control@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state: waiting for the next scheduled tick

type RCIdleState struct {
	ActorState
	actor *ReserveControlActor
}

func (state RCIdleState) Name() string {
	return "idle"
}

func (state RCIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case reserveControlTick:
		state.actor.logger.Debug("reserve_control@idle tick")
		state.actor.runTick(ctx)
		state.actor.Become(RCAwaitTickState{
			actor: state.actor,
		})
	case dailySummaryTick:
		state.actor.sendSummary()
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("reserve_control@idle ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_RESERVE_CONTROL,
			Healthy: true,
			State:   state.Name(),
		})
	case *actor.Restarting, *actor.Stopping:
		state.actor.stopSummaryJob()
		if state.actor.cancelTick != nil {
			state.actor.cancelTick()
			state.actor.cancelTick = nil
		}
	default:
		state.actor.logger.Debug("reserve_control@idle default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Await tick result state

type RCAwaitTickState struct {
	ActorState
	actor *ReserveControlActor
}

func (state RCAwaitTickState) Name() string {
	return "polling"
}

func (state RCAwaitTickState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case tickResult:
		state.actor.handleTickResult(ctx, msg)
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("reserve_control@polling ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_RESERVE_CONTROL,
			Healthy: true,
			State:   state.Name(),
		})
	case *actor.Restarting, *actor.Stopping:
		state.actor.stopSummaryJob()
	default:
		state.actor.logger.Debug("reserve_control@polling stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Done state: the loop gave up and the fatal handler owns shutdown

type RCDoneState struct {
	ActorState
	actor *ReserveControlActor
}

func (state RCDoneState) Name() string {
	return "stopped"
}

func (state RCDoneState) Receive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_RESERVE_CONTROL,
			Healthy: false,
			State:   state.Name(),
		})
	case *actor.Restarting, *actor.Stopping:
		state.actor.stopSummaryJob()
	}
}

func (state *ReserveControlActor) runTick(ctx actor.Context) {
	now := time.Now()
	var elapsed time.Duration
	if !state.lastTickStart.IsZero() {
		elapsed = now.Sub(state.lastTickStart)
	}
	state.lastTickStart = now

	controller := state.controller
	NewBackgroundTask(ctx, func() (*tickResult, error) {
		outcome, err := controller.Tick(context.Background(), now, elapsed)
		return &tickResult{outcome: outcome, err: err}, nil
	}).WithTimeout(controlTickTimeout).Recover(func(err error) tickResult {
		return tickResult{err: err}
	}).PipeTo(ctx.Self())
}

func (state *ReserveControlActor) handleTickResult(ctx actor.Context, result tickResult) {
	if result.err != nil {
		var exhausted *domain.ExhaustedRetriesError
		if errors.As(result.err, &exhausted) {
			state.logger.Error("reserve_control@polling retries exhausted", zap.Error(exhausted))
			state.Become(RCDoneState{
				actor: state,
			})
			state.stash.UnstashAll(ctx)
			if state.onFatal != nil {
				state.onFatal(exhausted)
			}
			return
		}
		// not a loop decision, something below is wedged
		state.logger.Error("reserve_control@polling tick failed", zap.Error(result.err))
		panic(result.err)
	}

	outcome := result.outcome
	if outcome.State != nil {
		state.lastState = outcome.State
		for _, event := range events.SiteStateToUpdateEvents(outcome.State) {
			state.eventStream.Publish(event)
		}
	}
	if outcome.Command != nil && outcome.Applied {
		state.lastReason = outcome.Command.Reason
		state.eventStream.Publish(events.ReasonUpdateEvent(outcome.Command.Reason))
	}

	state.logger.Debug("reserve_control@polling tick done",
		zap.Duration("next_interval", outcome.NextInterval))

	state.cancelTick = state.scheduler.RequestOnce(outcome.NextInterval, ctx.Self(), reserveControlTick{})
	state.Become(RCIdleState{
		actor: state,
	})
	state.stash.UnstashAll(ctx)
}

func (state *ReserveControlActor) startSummaryJob(ctx actor.Context, cronExpr string) error {
	trigger, err := quartz.NewCronTrigger(cronExpr)
	if err != nil {
		return err
	}
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	summaryJob := job.NewFunctionJob(func(context.Context) (int, error) {
		root.Send(self, dailySummaryTick{})
		return 0, nil
	})
	sched := quartz.NewStdScheduler()
	sched.Start(context.Background())
	if err := sched.ScheduleJob(quartz.NewJobDetail(summaryJob, quartz.NewJobKey("daily_summary")), trigger); err != nil {
		sched.Stop()
		return err
	}
	state.summarySched = sched
	return nil
}

func (state *ReserveControlActor) stopSummaryJob() {
	if state.summarySched != nil {
		state.summarySched.Stop()
		state.summarySched = nil
	}
}

func (state *ReserveControlActor) sendSummary() {
	message := fmt.Sprintf("Loops: %d", state.controller.LoopCount())
	if state.lastState != nil {
		message = fmt.Sprintf("%s | Battery: %.2f%% | Mode: %s | Reserve: %d%%",
			message, state.lastState.BatteryPercent, state.lastState.OperationMode, state.lastState.BackupReservePercent)
	}
	if state.lastReason != "" {
		message = fmt.Sprintf("%s | Last action: %s", message, state.lastReason)
	}
	state.logger.Info("daily summary", zap.String("message", message))
	state.notifier.SendAlert(message, summaryTitle, 0)
}

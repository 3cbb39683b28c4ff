package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DeviationLabs/homely-vibes/internal/core/domain"
	"github.com/DeviationLabs/homely-vibes/internal/core/port"

	"go.uber.org/zap"
)

const notificationTitle = "Powerwall Alert"

// ReserveControlParams tunes one control loop instance.
type ReserveControlParams struct {
	// PollInterval is the nominal cadence between polls.
	PollInterval time.Duration
	// MaxConsecutiveFailures is the failure ceiling; one more failure
	// after that is fatal.
	MaxConsecutiveFailures int
	// NotifyOnChange enables change notifications globally. Rules with
	// always_notify set bypass this.
	NotifyOnChange bool
}

// TickOutcome reports what one poll cycle observed and did, for the
// caller to publish and to schedule the next cycle from.
type TickOutcome struct {
	// NextInterval is how long to sleep before the next poll.
	NextInterval time.Duration
	// State is the sanitized site state, nil when the fetch failed.
	State *domain.SiteState
	// Command is the matched policy command, if any.
	Command *domain.Command
	// Applied is true when at least one actuator call was made.
	Applied bool
}

// ReserveController runs the adaptive reserve-control cycle: poll,
// sanitize, evaluate, actuate, with bounded failure recovery. It is
// driven by a single caller and holds all loop state (battery history,
// last applied mode, failure counter), so no locking is involved.
type ReserveController struct {
	params    ReserveControlParams
	telemetry port.TelemetrySource
	actuator  port.Actuator
	notifier  port.NotificationSink
	policy    port.PolicyProvider
	logger    *zap.Logger

	history *BatteryHistory
	table   []domain.DecisionPoint

	// cachedOpMode is the last operation mode actually commanded, used
	// when the live status omits the field. Fallback order: fresh
	// telemetry, then this cache, then unknown (skip mode actuation).
	cachedOpMode domain.OperationMode

	loopCount int
	failCount int
	lastErr   error
}

func NewReserveController(params ReserveControlParams, telemetry port.TelemetrySource, actuator port.Actuator,
	notifier port.NotificationSink, policy port.PolicyProvider, logger *zap.Logger) *ReserveController {
	return &ReserveController{
		params:       params,
		telemetry:    telemetry,
		actuator:     actuator,
		notifier:     notifier,
		policy:       policy,
		logger:       logger,
		history:      NewBatteryHistory(logger),
		cachedOpMode: domain.ModeUnknown,
	}
}

// Tick runs one poll cycle. elapsed is the time since the previous
// cycle started (zero on the first). The returned error is non-nil
// only when the loop must stop: the failure ceiling was exceeded and
// the error is an ExhaustedRetriesError. Recoverable failures are
// absorbed into a shortened backoff NextInterval.
func (c *ReserveController) Tick(ctx context.Context, now time.Time, elapsed time.Duration) (TickOutcome, error) {
	c.loopCount++
	c.logger.Info("loop", zap.Int("count", c.loopCount))

	// Hot-reload the policy snapshot. A failed reload keeps the last
	// valid table.
	if table, err := c.policy.LoadDecisionPoints(); err != nil {
		c.logger.Error("policy reload failed, keeping current table", zap.Error(err))
		if c.table == nil {
			return c.failedCycle(err)
		}
	} else {
		c.table = table
	}

	state, err := c.telemetry.FetchState(ctx)
	if err != nil {
		return c.failedCycle(err)
	}

	timeSampling := 0.0
	if c.params.PollInterval > 0 {
		timeSampling = elapsed.Seconds() / c.params.PollInterval.Seconds()
	}
	state.BatteryPercent = c.history.Sanitize(state.BatteryPercent, timeSampling)

	if !state.OperationMode.Known() && c.cachedOpMode.Known() {
		state.OperationMode = c.cachedOpMode
	}

	c.logger.Info("site state",
		zap.Float64("battery_pct", state.BatteryPercent),
		zap.String("mode", state.OperationMode.String()),
		zap.Int("backup_reserve_pct", state.BackupReservePercent),
		zap.String("export", state.CanExport),
		zap.Bool("grid_charge", state.CanGridCharge))

	result := EvaluatePolicy(c.table, state, c.history, now, c.params.PollInterval, c.logger)

	outcome := TickOutcome{
		NextInterval: result.NextInterval,
		State:        state,
		Command:      result.Command,
	}

	if result.Command != nil {
		applied, err := c.apply(ctx, state, *result.Command)
		if err != nil {
			return c.failedCycle(err)
		}
		outcome.Applied = applied
	}

	c.failCount = 0
	c.lastErr = nil
	return outcome, nil
}

// apply issues actuator calls for the fields that differ from current
// state. Nothing is sent when the site already matches the command.
func (c *ReserveController) apply(ctx context.Context, state *domain.SiteState, cmd domain.Command) (bool, error) {
	var statusMessages []string

	// An unknown mode means telemetry omitted it and no last-applied
	// cache exists yet. Mode actuation is skipped for that cycle rather
	// than commanded blind.
	if state.OperationMode.Known() && state.OperationMode != cmd.Mode {
		confirmation, err := c.actuator.SetOperationMode(ctx, cmd.Mode)
		if err != nil {
			return false, err
		}
		c.cachedOpMode = cmd.Mode
		statusMessages = append(statusMessages, fmt.Sprintf("Mode: %s %s", confirmation, cmd.Mode))
	}

	if state.BackupReservePercent != cmd.ReservePercent {
		confirmation, err := c.actuator.SetBackupReservePercent(ctx, cmd.ReservePercent)
		if err != nil {
			return false, err
		}
		statusMessages = append(statusMessages, fmt.Sprintf("Reserve: %s %d%%", confirmation, cmd.ReservePercent))
	}

	if len(statusMessages) == 0 {
		return false, nil
	}

	message := fmt.Sprintf("At: %.2f%%, %s - %s", state.BatteryPercent, cmd.Reason, strings.Join(statusMessages, " | "))
	c.logger.Warn(message)

	if c.params.NotifyOnChange || cmd.AlwaysNotify {
		c.notifier.SendAlert(message, notificationTitle, 0)
	}
	return true, nil
}

// failedCycle counts one failed cycle and decides between backoff and
// giving up. ConfigErrors are alerted immediately since retrying will
// not fix the site configuration.
func (c *ReserveController) failedCycle(err error) (TickOutcome, error) {
	c.failCount++
	c.lastErr = err
	c.logger.Warn("cycle failed", zap.Int("attempt", c.failCount), zap.Error(err))

	if domain.IsConfigError(err) {
		c.notifier.SendAlert(err.Error(), notificationTitle, 1)
	}

	if c.failCount > c.params.MaxConsecutiveFailures {
		return TickOutcome{}, &domain.ExhaustedRetriesError{Failures: c.failCount, Last: err}
	}

	return TickOutcome{NextInterval: c.BackoffInterval()}, nil
}

// BackoffInterval is the short retry sleep after a failed cycle,
// always capped below the nominal poll interval.
func (c *ReserveController) BackoffInterval() time.Duration {
	return min(c.params.PollInterval, 30*time.Second)
}

// LoopCount reports how many cycles have run, for status summaries.
func (c *ReserveController) LoopCount() int {
	return c.loopCount
}

// History exposes the SoC window for tests and status reporting.
func (c *ReserveController) History() *BatteryHistory {
	return c.history
}

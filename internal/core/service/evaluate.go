package service

import (
	"time"

	"github.com/DeviationLabs/homely-vibes/internal/core/domain"

	"go.uber.org/zap"
)

// FastRetryInterval caps the poll interval when the extrapolated SoC
// is about to cross a rule threshold on the next tick.
const FastRetryInterval = 60 * time.Second

// EvalResult is the outcome of one policy table scan: at most one
// actuation command plus the interval to sleep before the next poll.
type EvalResult struct {
	Command      *domain.Command
	NextInterval time.Duration
}

// EvaluatePolicy scans the table in order against the sanitized state.
// The first rule whose window contains now and whose trigger condition
// holds wins and stops the scan. A rule that only the one-tick-ahead
// extrapolation would trigger shortens the next interval instead of
// actuating, and scanning continues because a later rule might still
// match now.
func EvaluatePolicy(table []domain.DecisionPoint, state *domain.SiteState, history *BatteryHistory,
	now time.Time, pollInterval time.Duration, logger *zap.Logger) EvalResult {

	nowHHMM := now.Hour()*100 + now.Minute()

	result := EvalResult{NextInterval: pollInterval}
	inAnyWindow := false

	for _, dp := range table {
		if !dp.InWindow(nowHHMM) {
			continue
		}
		inAnyWindow = true

		triggerNow, triggerNext := triggerPercentages(dp, now, pollInterval)

		futurePct := state.BatteryPercent
		if extrapolated, ok := history.Extrapolate(1.0); ok {
			futurePct = extrapolated
		}

		logger.Info("evaluating decision point",
			zap.String("reason", dp.Reason),
			zap.Float64("current_pct", state.BatteryPercent),
			zap.Float64("trigger_now", triggerNow),
			zap.Float64("future_pct", futurePct),
			zap.Float64("trigger_next", triggerNext))

		switch {
		case conditionMatches(state.BatteryPercent, triggerNow, dp.IffHigher):
			logger.Info("matched current condition", zap.String("reason", dp.Reason))
			cmd := buildCommand(dp, state)
			result.Command = &cmd
			result.NextInterval = pollInterval
			return result
		case conditionMatches(futurePct, triggerNext, dp.IffHigher):
			logger.Warn("future condition match, scheduling fast retry", zap.String("reason", dp.Reason))
			result.NextInterval = min(pollInterval, FastRetryInterval)
		default:
			logger.Info("in time window but no match", zap.String("reason", dp.Reason))
		}
	}

	if !inAnyWindow {
		logger.Warn("no decision point window covers the current time, check the policy table",
			zap.Int("now_hhmm", nowHHMM))
	}
	return result
}

// triggerPercentages back-solves the thresholds the reading must cross
// now and one poll tick from now, assuming linear drift toward the
// rule's pct_thresh by window end.
func triggerPercentages(dp domain.DecisionPoint, now time.Time, pollInterval time.Duration) (float64, float64) {
	hoursToEnd := float64(dp.TimeEnd/100-now.Hour()) +
		float64(dp.TimeEnd%100-now.Minute())/60 -
		float64(now.Second())/3600

	triggerNow := round2(dp.PctThresh - dp.PctGradientPerHr*hoursToEnd)
	triggerNext := round2(triggerNow + dp.PctGradientPerHr*(pollInterval.Seconds()/3600))
	return triggerNow, triggerNext
}

func conditionMatches(current, threshold float64, directionUp bool) bool {
	if directionUp {
		return current > threshold
	}
	return current < threshold
}

// buildCommand derives the actuation command from a matched rule. With
// a trailing stop, the reserve floor restarts at the current reserve
// and ratchets upward in trail-stop steps while SoC stays ahead of it;
// it never moves down on its own.
func buildCommand(dp domain.DecisionPoint, state *domain.SiteState) domain.Command {
	desiredMin := float64(dp.PctMin)
	if dp.PctMinTrailStop > 0 {
		desiredMin = float64(state.BackupReservePercent)
		for state.BatteryPercent >= desiredMin+dp.PctMinTrailStop {
			desiredMin += dp.PctMinTrailStop
		}
	}
	return domain.Command{
		Mode:           dp.OpMode,
		ReservePercent: int(desiredMin),
		Reason:         dp.Reason,
		AlwaysNotify:   dp.AlwaysNotify,
	}
}

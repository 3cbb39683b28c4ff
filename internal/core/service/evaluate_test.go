package service

import (
	"testing"
	"time"

	"github.com/DeviationLabs/homely-vibes/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPollInterval = 180 * time.Second

func TestTriggerBackSolve(t *testing.T) {
	dp := domain.DecisionPoint{
		TimeEnd:          2200,
		PctThresh:        50,
		PctGradientPerHr: 2,
	}

	now := at(14, 0, 0)
	triggerNow, triggerNext := triggerPercentages(dp, now, testPollInterval)

	// 8 fractional hours to window end
	assert.Equal(t, 34.0, triggerNow)
	assert.Equal(t, 34.1, triggerNext)
}

func TestTriggerBackSolveWithSeconds(t *testing.T) {
	dp := domain.DecisionPoint{
		TimeEnd:          2200,
		PctThresh:        50,
		PctGradientPerHr: 36,
	}

	// 30s shaves 1/120 of an hour off hours_to_end
	triggerNow, _ := triggerPercentages(dp, at(14, 0, 30), testPollInterval)
	assert.InDelta(t, 50.0-36*(8.0-1.0/120), triggerNow, 0.01)
}

func TestEvaluateMatchesCurrentCondition(t *testing.T) {
	require := require.New(t)

	table := []domain.DecisionPoint{
		{
			TimeStart: 1200, TimeEnd: 2200,
			PctThresh: 50, PctGradientPerHr: 2,
			IffHigher: false,
			OpMode:    domain.ModeSelfConsumption,
			PctMin:    20,
			Reason:    "drawdown",
		},
	}
	state := siteState(domain.ModeAutonomous, 20, 30)

	result := EvaluatePolicy(table, state, NewBatteryHistory(zap.NewNop()), at(14, 0, 0), testPollInterval, zap.NewNop())

	require.NotNil(result.Command)
	assert.Equal(t, domain.ModeSelfConsumption, result.Command.Mode)
	assert.Equal(t, 20, result.Command.ReservePercent)
	assert.Equal(t, "drawdown", result.Command.Reason)
	assert.Equal(t, testPollInterval, result.NextInterval)
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	require := require.New(t)

	// both windows contain now and both conditions hold; only the
	// first rule in table order may be applied
	table := []domain.DecisionPoint{
		{
			TimeStart: 0, TimeEnd: 2400,
			PctThresh: 10, IffHigher: true,
			OpMode: domain.ModeSelfConsumption, PctMin: 35,
			Reason: "first",
		},
		{
			TimeStart: 1200, TimeEnd: 1500,
			PctThresh: 10, IffHigher: true,
			OpMode: domain.ModeAutonomous, PctMin: 20,
			Reason: "second",
		},
	}
	state := siteState(domain.ModeAutonomous, 20, 50)

	result := EvaluatePolicy(table, state, NewBatteryHistory(zap.NewNop()), at(13, 0, 0), testPollInterval, zap.NewNop())

	require.NotNil(result.Command)
	assert.Equal(t, "first", result.Command.Reason)
}

func TestEvaluateFastRetryOnFutureMatch(t *testing.T) {
	require := require.New(t)

	table := []domain.DecisionPoint{
		{
			TimeStart: 1200, TimeEnd: 2200,
			PctThresh: 50, PctGradientPerHr: 2,
			IffHigher: false,
			OpMode:    domain.ModeSelfConsumption,
			PctMin:    20,
			Reason:    "drawdown",
		},
	}
	// trigger_now = 34, trigger_next = 34.1: 34.05 is not yet below
	// the current trigger but will be below the next one
	state := siteState(domain.ModeAutonomous, 20, 34.05)

	result := EvaluatePolicy(table, state, NewBatteryHistory(zap.NewNop()), at(14, 0, 0), testPollInterval, zap.NewNop())

	require.Nil(result.Command)
	assert.LessOrEqual(t, result.NextInterval, FastRetryInterval)
}

func TestEvaluateFastRetryKeepsScanning(t *testing.T) {
	require := require.New(t)

	// the first rule only matches one tick ahead; the second matches
	// now and must still be found
	table := []domain.DecisionPoint{
		{
			TimeStart: 1200, TimeEnd: 2200,
			PctThresh: 50, PctGradientPerHr: 2,
			IffHigher: false,
			OpMode:    domain.ModeSelfConsumption,
			PctMin:    20,
			Reason:    "almost",
		},
		{
			TimeStart: 1200, TimeEnd: 2200,
			PctThresh: 10, IffHigher: true,
			OpMode: domain.ModeAutonomous, PctMin: 20,
			Reason: "hold",
		},
	}
	state := siteState(domain.ModeSelfConsumption, 20, 34.05)

	result := EvaluatePolicy(table, state, NewBatteryHistory(zap.NewNop()), at(14, 0, 0), testPollInterval, zap.NewNop())

	require.NotNil(result.Command)
	assert.Equal(t, "hold", result.Command.Reason)
}

func TestEvaluateWindowBoundaries(t *testing.T) {
	table := []domain.DecisionPoint{
		{
			TimeStart: 1200, TimeEnd: 1500,
			PctThresh: 10, IffHigher: true,
			OpMode: domain.ModeAutonomous, PctMin: 20,
			Reason: "window",
		},
	}
	state := siteState(domain.ModeSelfConsumption, 20, 50)
	h := NewBatteryHistory(zap.NewNop())

	// start inclusive
	result := EvaluatePolicy(table, state, h, at(12, 0, 0), testPollInterval, zap.NewNop())
	assert.NotNil(t, result.Command)

	// end exclusive
	result = EvaluatePolicy(table, state, h, at(15, 0, 0), testPollInterval, zap.NewNop())
	assert.Nil(t, result.Command)
}

func TestEvaluateConfigurationGap(t *testing.T) {
	table := []domain.DecisionPoint{
		{
			TimeStart: 100, TimeEnd: 200,
			PctThresh: 10, IffHigher: true,
			OpMode: domain.ModeAutonomous, PctMin: 20,
			Reason: "narrow",
		},
	}
	state := siteState(domain.ModeAutonomous, 20, 50)

	result := EvaluatePolicy(table, state, NewBatteryHistory(zap.NewNop()), at(14, 0, 0), testPollInterval, zap.NewNop())

	assert.Nil(t, result.Command)
	assert.Equal(t, testPollInterval, result.NextInterval)
}

func TestTrailingStopRatchet(t *testing.T) {
	dp := domain.DecisionPoint{
		OpMode:          domain.ModeSelfConsumption,
		PctMin:          20,
		PctMinTrailStop: 5,
		Reason:          "ratchet",
	}
	state := siteState(domain.ModeSelfConsumption, 20, 33)

	cmd := buildCommand(dp, state)

	// 20 -> 25 -> 30, then 33 >= 30+5 fails
	assert.Equal(t, 30, cmd.ReservePercent)
}

func TestTrailingStopNeverLowersBelowCurrentReserve(t *testing.T) {
	dp := domain.DecisionPoint{
		OpMode:          domain.ModeSelfConsumption,
		PctMin:          20,
		PctMinTrailStop: 5,
		Reason:          "ratchet",
	}
	// SoC below reserve: no ratchet steps apply, floor stays put
	state := siteState(domain.ModeSelfConsumption, 40, 35)

	cmd := buildCommand(dp, state)
	assert.Equal(t, 40, cmd.ReservePercent)
}

func at(hour, minute, sec int) time.Time {
	return time.Date(2025, 6, 15, hour, minute, sec, 0, time.Local)
}

func siteState(mode domain.OperationMode, reserve int, batteryPct float64) *domain.SiteState {
	return &domain.SiteState{
		OperationMode:        mode,
		BackupReservePercent: reserve,
		BatteryPercent:       batteryPct,
		CanExport:            domain.ExportRuleBatteryOK,
		CanGridCharge:        true,
	}
}

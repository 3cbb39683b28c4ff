package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DeviationLabs/homely-vibes/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileProviderLoad(t *testing.T) {
	path := writePolicyFile(t, `
decision_points:
  - time_start: 0
    time_end: 1500
    pct_thresh: 30
    pct_gradient_per_hr: 0
    iff_higher: true
    op_mode: self_consumption
    pct_min: 35
    pct_min_trail_stop: 5
    reason: "Nightly reserves rebuilt. Hold"
  - time_start: 1500
    time_end: 1900
    pct_thresh: 0
    iff_higher: true
    op_mode: autonomous
    pct_min: 20
    always_notify: true
    reason: "In peak. Discharge"
`)
	p := NewFileProvider(path, zap.NewNop())

	table, err := p.LoadDecisionPoints()
	require.NoError(t, err)
	require.Len(t, table, 2)

	assert.Equal(t, 0, table[0].TimeStart)
	assert.Equal(t, 1500, table[0].TimeEnd)
	assert.Equal(t, 30.0, table[0].PctThresh)
	assert.Equal(t, domain.ModeSelfConsumption, table[0].OpMode)
	assert.Equal(t, 5.0, table[0].PctMinTrailStop)
	assert.False(t, table[0].AlwaysNotify)

	assert.Equal(t, domain.ModeAutonomous, table[1].OpMode)
	assert.True(t, table[1].AlwaysNotify)
}

func TestFileProviderMissingFile(t *testing.T) {
	p := NewFileProvider(filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop())

	_, err := p.LoadDecisionPoints()
	require.Error(t, err)
	assert.True(t, domain.IsConfigError(err))
}

func TestFileProviderInvalidRule(t *testing.T) {
	path := writePolicyFile(t, `
decision_points:
  - time_start: 1290
    time_end: 1500
    op_mode: self_consumption
    pct_min: 20
    reason: "bad minutes field"
`)
	p := NewFileProvider(path, zap.NewNop())

	_, err := p.LoadDecisionPoints()
	require.Error(t, err)
	assert.True(t, domain.IsConfigError(err))
}

func TestFileProviderEmptyTable(t *testing.T) {
	path := writePolicyFile(t, "decision_points: []\n")
	p := NewFileProvider(path, zap.NewNop())

	_, err := p.LoadDecisionPoints()
	require.Error(t, err)
}

func TestFileProviderReloadsFreshSnapshot(t *testing.T) {
	path := writePolicyFile(t, `
decision_points:
  - time_start: 0
    time_end: 2400
    iff_higher: true
    op_mode: self_consumption
    pct_min: 20
    reason: "hold"
`)
	p := NewFileProvider(path, zap.NewNop())

	table, err := p.LoadDecisionPoints()
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, 20, table[0].PctMin)

	require.NoError(t, os.WriteFile(path, []byte(`
decision_points:
  - time_start: 0
    time_end: 2400
    iff_higher: true
    op_mode: self_consumption
    pct_min: 40
    reason: "hold more"
`), 0o644))

	table, err = p.LoadDecisionPoints()
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, 40, table[0].PctMin)
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(DefaultDecisionPoints())

	table, err := p.LoadDecisionPoints()
	require.NoError(t, err)
	assert.NotEmpty(t, table)
}

func TestDefaultDecisionPointsValid(t *testing.T) {
	assert.NoError(t, domain.ValidatePolicyTable(DefaultDecisionPoints()))
}

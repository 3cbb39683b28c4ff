package policy

import (
	"github.com/DeviationLabs/homely-vibes/internal/core/domain"
	"github.com/DeviationLabs/homely-vibes/internal/core/port"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FileProvider loads the decision-point table from a YAML file. Each
// Load reads the file fresh and returns an immutable snapshot, so the
// control loop can hot-reload edits between polls without ever seeing
// a half-updated table.
type FileProvider struct {
	path   string
	logger *zap.Logger
}

func NewFileProvider(path string, logger *zap.Logger) *FileProvider {
	return &FileProvider{
		path:   path,
		logger: logger,
	}
}

func (p *FileProvider) LoadDecisionPoints() ([]domain.DecisionPoint, error) {
	v := viper.New()
	v.SetConfigFile(p.path)

	if err := v.ReadInConfig(); err != nil {
		return nil, &domain.ConfigError{Reason: "could not read policy file " + p.path, Err: err}
	}

	var table []domain.DecisionPoint
	if err := v.UnmarshalKey("decision_points", &table); err != nil {
		return nil, &domain.ConfigError{Reason: "could not parse policy file " + p.path, Err: err}
	}

	if err := domain.ValidatePolicyTable(table); err != nil {
		return nil, err
	}

	p.logger.Debug("policy table loaded", zap.String("file", p.path), zap.Int("rules", len(table)))
	return table, nil
}

// StaticProvider serves a fixed table, used when no policy file is
// configured and in tests.
type StaticProvider struct {
	table []domain.DecisionPoint
}

func NewStaticProvider(table []domain.DecisionPoint) *StaticProvider {
	return &StaticProvider{table: table}
}

func (p *StaticProvider) LoadDecisionPoints() ([]domain.DecisionPoint, error) {
	if err := domain.ValidatePolicyTable(p.table); err != nil {
		return nil, err
	}
	return p.table, nil
}

// DefaultDecisionPoints is the shipped schedule, tuned for a TOU plan
// with a 15:00-19:00 peak: rebuild reserves overnight, draw down ahead
// of the shoulder, discharge through peak, dump surplus at the end of
// peak, and hold a floor for the rest of the evening.
func DefaultDecisionPoints() []domain.DecisionPoint {
	return []domain.DecisionPoint{
		{TimeStart: 0, TimeEnd: 1500, PctThresh: 30, PctGradientPerHr: 0, IffHigher: true,
			OpMode: domain.ModeSelfConsumption, PctMin: 35, PctMinTrailStop: 5,
			Reason: "Nightly reserves rebuilt. Hold"},
		{TimeStart: 1200, TimeEnd: 1500, PctThresh: 100, PctGradientPerHr: 35, IffHigher: true,
			OpMode: domain.ModeAutonomous, PctMin: 20,
			Reason: "Prep for shoulder. Drawdown"},
		{TimeStart: 1500, TimeEnd: 1900, PctThresh: 0, PctGradientPerHr: 0, IffHigher: true,
			OpMode: domain.ModeSelfConsumption, PctMin: 20,
			Reason: "In peak. Discharge"},
		{TimeStart: 1900, TimeEnd: 2100, PctThresh: 35, PctGradientPerHr: -5, IffHigher: true,
			OpMode: domain.ModeAutonomous, PctMin: 35, AlwaysNotify: true,
			Reason: "End of peak surplus. Dump"},
		{TimeStart: 1900, TimeEnd: 2340, PctThresh: 20, PctGradientPerHr: -4, IffHigher: false,
			OpMode: domain.ModeSelfConsumption, PctMin: 20,
			Reason: "Reserve for rest of day. No dump"},
		{TimeStart: 2340, TimeEnd: 2400, PctThresh: 0, PctGradientPerHr: 0, IffHigher: true,
			OpMode: domain.ModeAutonomous, PctMin: 20,
			Reason: "Prep for recharge. Dump residuals"},
	}
}

var _ port.PolicyProvider = (*FileProvider)(nil)
var _ port.PolicyProvider = (*StaticProvider)(nil)

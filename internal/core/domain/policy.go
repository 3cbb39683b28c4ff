package domain

import "fmt"

// DecisionPoint is one row of the policy table: a time-windowed rule
// mapping SoC conditions to an operation mode and reserve floor.
// The window is [TimeStart, TimeEnd) in HHMM minutes-of-day; rules are
// evaluated in table order and the first match wins.
type DecisionPoint struct {
	TimeStart        int           `mapstructure:"time_start"`
	TimeEnd          int           `mapstructure:"time_end"`
	PctThresh        float64       `mapstructure:"pct_thresh"`
	PctGradientPerHr float64       `mapstructure:"pct_gradient_per_hr"`
	IffHigher        bool          `mapstructure:"iff_higher"`
	OpMode           OperationMode `mapstructure:"op_mode"`
	PctMin           int           `mapstructure:"pct_min"`
	// PctMinTrailStop, when > 0, replaces PctMin with a floor that
	// ratchets upward from the current reserve in PctMinTrailStop
	// steps while SoC stays ahead of it.
	PctMinTrailStop float64 `mapstructure:"pct_min_trail_stop"`
	Reason          string  `mapstructure:"reason"`
	AlwaysNotify    bool    `mapstructure:"always_notify"`
}

// InWindow reports whether nowHHMM falls inside the rule's time
// window. Start is inclusive, end exclusive.
func (d DecisionPoint) InWindow(nowHHMM int) bool {
	return d.TimeStart <= nowHHMM && nowHHMM < d.TimeEnd
}

// Validate checks that the rule window is well-formed. TimeEnd may be
// 2400 to mean end of day.
func (d DecisionPoint) Validate() error {
	if !validHHMM(d.TimeStart) {
		return &ConfigError{Reason: fmt.Sprintf("decision point %q: invalid time_start %04d", d.Reason, d.TimeStart)}
	}
	if !validHHMM(d.TimeEnd) && d.TimeEnd != 2400 {
		return &ConfigError{Reason: fmt.Sprintf("decision point %q: invalid time_end %04d", d.Reason, d.TimeEnd)}
	}
	if d.TimeStart >= d.TimeEnd {
		return &ConfigError{Reason: fmt.Sprintf("decision point %q: time_start %04d must be before time_end %04d", d.Reason, d.TimeStart, d.TimeEnd)}
	}
	if !d.OpMode.Known() {
		return &ConfigError{Reason: fmt.Sprintf("decision point %q: unknown op_mode %q", d.Reason, d.OpMode)}
	}
	if d.PctMin < 0 || d.PctMin > 100 {
		return &ConfigError{Reason: fmt.Sprintf("decision point %q: pct_min %d out of range", d.Reason, d.PctMin)}
	}
	return nil
}

// ValidatePolicyTable checks the whole table as loaded from the policy
// provider: non-empty with every window well-formed.
func ValidatePolicyTable(table []DecisionPoint) error {
	if len(table) == 0 {
		return &ConfigError{Reason: "policy table is empty"}
	}
	for _, dp := range table {
		if err := dp.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validHHMM(v int) bool {
	return v >= 0 && v/100 <= 23 && v%100 <= 59
}

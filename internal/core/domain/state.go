package domain

import "fmt"

// ExportRuleBatteryOK is the only customer_preferred_export_rule value
// under which the control loop is allowed to act.
const ExportRuleBatteryOK = "battery_ok"

// SiteState is one fresh snapshot of the energy site, read once per
// poll cycle.
type SiteState struct {
	OperationMode        OperationMode
	BackupReservePercent int
	BatteryPercent       float64
	CanExport            string
	CanGridCharge        bool
	GridStatus           string
}

// Validate checks the site configuration flags. A site that cannot
// export from battery or cannot grid charge must not be acted on, so
// this returns a ConfigError rather than letting the loop proceed.
func (s *SiteState) Validate() error {
	if s.CanExport != ExportRuleBatteryOK || !s.CanGridCharge {
		return &ConfigError{
			Reason: fmt.Sprintf("invalid powerwall config - export: %s, grid_charge: %t", s.CanExport, s.CanGridCharge),
		}
	}
	return nil
}

// Command is the at-most-one actuation decision produced by a policy
// evaluation.
type Command struct {
	Mode           OperationMode
	ReservePercent int
	Reason         string
	AlwaysNotify   bool
}

package domain

// OperationMode is the site-wide charge/discharge strategy reported and
// accepted by the Powerwall.
type OperationMode string

const (
	ModeSelfConsumption OperationMode = "self_consumption"
	ModeAutonomous      OperationMode = "autonomous"
	ModeBackup          OperationMode = "backup"
	ModeUnknown         OperationMode = "unknown"
)

// ParseOperationMode maps the raw API value to an OperationMode. The
// live status endpoint sometimes omits the field, so empty or
// unrecognized values become ModeUnknown instead of an error.
func ParseOperationMode(raw string) OperationMode {
	switch raw {
	case string(ModeSelfConsumption):
		return ModeSelfConsumption
	case string(ModeAutonomous):
		return ModeAutonomous
	case string(ModeBackup):
		return ModeBackup
	default:
		return ModeUnknown
	}
}

func (m OperationMode) Known() bool {
	return m == ModeSelfConsumption || m == ModeAutonomous || m == ModeBackup
}

func (m OperationMode) String() string {
	return string(m)
}

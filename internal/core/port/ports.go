package port

import (
	"context"

	"github.com/DeviationLabs/homely-vibes/internal/core/domain"
)

// TelemetrySource reads a fresh SiteState from the device. It must
// validate the export/grid-charge flags and return a ConfigError when
// they forbid control; transport failures come back as TransientError.
type TelemetrySource interface {
	FetchState(ctx context.Context) (*domain.SiteState, error)
}

// Actuator applies mode/reserve changes. Both calls are safe to retry
// on TransientError.
type Actuator interface {
	SetOperationMode(ctx context.Context, mode domain.OperationMode) (string, error)
	SetBackupReservePercent(ctx context.Context, pct int) (string, error)
}

// NotificationSink delivers a push alert. Delivery failure is reported
// through the return value and is never fatal to the caller.
type NotificationSink interface {
	SendAlert(message string, title string, priority int) bool
}

// PolicyProvider returns an immutable snapshot of the decision-point
// table. It is called once per loop iteration for hot reload; the
// returned table is already validated (non-empty, windows well-formed).
type PolicyProvider interface {
	LoadDecisionPoints() ([]domain.DecisionPoint, error)
}

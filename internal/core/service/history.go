package service

import (
	"math"

	"go.uber.org/zap"
)

// MaxBatteryHistory is the number of raw SoC readings kept for
// gradient estimation.
const MaxBatteryHistory = 5

// BatteryHistory keeps a short most-recent-first window of SoC
// readings and uses linear extrapolation to suppress stuck or garbage
// values. It is owned by a single control loop and is not safe for
// concurrent use.
type BatteryHistory struct {
	percentages []float64
	logger      *zap.Logger
}

func NewBatteryHistory(logger *zap.Logger) *BatteryHistory {
	return &BatteryHistory{
		logger: logger,
	}
}

// Add inserts pct at the front, evicting the oldest reading when the
// window is full.
func (h *BatteryHistory) Add(pct float64) {
	h.percentages = append([]float64{pct}, h.percentages...)
	if len(h.percentages) > MaxBatteryHistory {
		h.percentages = h.percentages[:MaxBatteryHistory]
	}
}

func (h *BatteryHistory) Len() int {
	return len(h.percentages)
}

// Samples returns a copy of the stored window, most recent first.
func (h *BatteryHistory) Samples() []float64 {
	out := make([]float64, len(h.percentages))
	copy(out, h.percentages)
	return out
}

// AverageGradient is the mean of consecutive first differences over
// the stored window, i.e. the average SoC change per poll tick.
// Returns 0 with fewer than 2 samples.
func (h *BatteryHistory) AverageGradient() float64 {
	if len(h.percentages) < 2 {
		return 0.0
	}
	sum := 0.0
	for i := 0; i < len(h.percentages)-1; i++ {
		sum += h.percentages[i] - h.percentages[i+1]
	}
	return sum / float64(len(h.percentages)-1)
}

// Extrapolate projects the next reading timeSampling poll ticks ahead
// of the most recent sample. The second return value is false when the
// history is empty.
func (h *BatteryHistory) Extrapolate(timeSampling float64) (float64, bool) {
	if len(h.percentages) == 0 {
		return 0, false
	}
	return round2(h.percentages[0] + h.AverageGradient()*timeSampling), true
}

// Sanitize cleans one raw SoC reading. With a full history, a zero or
// exact-repeat reading is replaced by the extrapolated value; the raw
// reading still goes into the history (unless it was zero) so a second
// consecutive stuck reading is caught the same way. The substituted
// value is only returned when it moves the reading by more than 0.5.
func (h *BatteryHistory) Sanitize(rawPct float64, timeSampling float64) float64 {
	pct := round2(rawPct)
	original := pct

	if len(h.percentages) >= MaxBatteryHistory && (pct <= 0 || h.contains(pct)) {
		if extrapolated, ok := h.Extrapolate(timeSampling); ok {
			pct = round2(math.Min(math.Max(extrapolated, 0), 100))
		}
	}

	if original != 0 {
		h.Add(original)
	} else {
		h.Add(pct)
	}

	if math.Abs(pct-original) > 0.5 {
		h.logger.Warn("bad battery data",
			zap.Float64("raw_pct", original),
			zap.Float64("sanitized_pct", pct),
			zap.Float64s("history", h.percentages))
		return pct
	}
	return original
}

func (h *BatteryHistory) contains(pct float64) bool {
	for _, p := range h.percentages {
		if p == pct {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

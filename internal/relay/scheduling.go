package relay

import (
	"math"
	"time"

	"github.com/gatlinnewhouse/meshcore/internal/entropy"
)

// computeScheduleDelay implements the scheduling-delay formula of
// §4.6.2: a hop- and priority-adjusted base delay plus uniform jitter
// drawn from a real entropy source. This is the corrected replacement
// for the original firmware's clock-seeded linear-congruential jitter
// (see the "Jitter RNG defect" redesign note) — jitter here always
// comes from src, never from the clock.
func computeScheduleDelay(hopStart, hopLimit, priority uint8, rxBoost bool, src entropy.Source) (time.Duration, error) {
	base := float64(MinHopDelayMs)
	if rxBoost {
		base = float64(MaxHopDelayMs)
	}

	hopsTraversed := float64(hopStart - hopLimit)
	base += HopPenaltyMs * hopsTraversed

	priorityFactor := 0.5 + float64(127-priority)/127*0.5
	adjusted := base * priorityFactor

	draw, err := entropy.Uint32(src)
	if err != nil {
		return 0, err
	}
	ratio := float64(draw) / float64(math.MaxUint32)
	jitter := ratio * 2 * adjusted

	return time.Duration(adjusted+jitter) * time.Millisecond, nil
}

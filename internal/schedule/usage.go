package schedule

import (
	"github.com/smilepoint/clinic-server/pkg/logging"
)

// Usage maps a block start (minute of day) to the number of concurrent
// pending/approved appointments covering it.
type Usage map[int]int

// AccumulateUsage expands each stored time slot into its 30-minute blocks
// and counts concurrency per block. A slot that fails to parse is logged
// and skipped; one corrupt row must not block capacity checks for the
// whole day.
func AccumulateUsage(timeSlots []string, logger *logging.Logger) Usage {
	if logger == nil {
		logger = logging.Default()
	}
	usage := make(Usage)
	for _, slot := range timeSlots {
		r, err := ParseTimeSlot(slot)
		if err != nil {
			logger.Warn("skipping unparseable time slot", "time_slot", slot, "error", err)
			continue
		}
		for block := r.Start; block < r.End; block += SlotMinutes {
			usage[block]++
		}
	}
	return usage
}

// Peak returns the highest per-block count, zero for empty usage.
func (u Usage) Peak() int {
	peak := 0
	for _, count := range u {
		if count > peak {
			peak = count
		}
	}
	return peak
}

package schedule

import "testing"

// One dentist, 08:00-12:00. An 08:00-09:00 booking saturates 08:00 and
// 08:30; a second 60-minute booking at 08:30 must fail at 08:30 while
// 09:00 still succeeds.
func TestCheckCapacitySingleChairOverlap(t *testing.T) {
	grid := BuildSlotGrid(480, 720)
	usage := AccumulateUsage([]string{"08:00-09:00"}, nil)

	result := CheckCapacity(510, 2, usage, grid, 1)
	if result.OK {
		t.Fatal("08:30 booking should fail with the chair taken until 09:00")
	}
	if result.FullAt != 510 {
		t.Fatalf("FullAt = %s, want 08:30", FormatClock(result.FullAt))
	}

	if result := CheckCapacity(540, 2, usage, grid, 1); !result.OK {
		t.Fatalf("09:00 booking should succeed, full at %s", FormatClock(result.FullAt))
	}
}

func TestCheckCapacityReportsFirstSaturatedBlock(t *testing.T) {
	grid := BuildSlotGrid(480, 720)
	usage := AccumulateUsage([]string{"09:00-09:30", "09:00-09:30"}, nil)

	// 08:30 start, 3 blocks: free, free, then 09:00 is saturated.
	result := CheckCapacity(510, 3, usage, grid, 2)
	if result.OK {
		t.Fatal("expected capacity failure")
	}
	if result.FullAt != 540 {
		t.Fatalf("FullAt = %s, want 09:00", FormatClock(result.FullAt))
	}
}

func TestCheckCapacityZeroCapacity(t *testing.T) {
	grid := BuildSlotGrid(480, 720)
	if result := CheckCapacity(480, 1, Usage{}, grid, 0); result.OK {
		t.Fatal("zero capacity must refuse every booking")
	}
}

func TestCheckCapacityBlockPastClosing(t *testing.T) {
	grid := BuildSlotGrid(480, 540) // 08:00-09:00
	// Two blocks starting 08:30 would run past close; the out-of-grid
	// block counts as full.
	result := CheckCapacity(510, 2, Usage{}, grid, 3)
	if result.OK {
		t.Fatal("booking past closing must fail")
	}
	if result.FullAt != 540 {
		t.Fatalf("FullAt = %s, want 09:00", FormatClock(result.FullAt))
	}
}

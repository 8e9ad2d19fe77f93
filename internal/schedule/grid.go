package schedule

// SlotMinutes is the fixed scheduling block length.
const SlotMinutes = 30

// BuildSlotGrid returns the ordered block start times between open and
// close at a 30-minute stride. Open is included; any start at or past
// close is not a valid slot. An inverted or empty window yields an empty
// grid.
func BuildSlotGrid(openMin, closeMin int) []int {
	if closeMin <= openMin {
		return nil
	}
	grid := make([]int, 0, (closeMin-openMin)/SlotMinutes+1)
	for cursor := openMin; cursor < closeMin; cursor += SlotMinutes {
		grid = append(grid, cursor)
	}
	return grid
}

// OnGrid reports whether start is an exact member of the grid.
func OnGrid(grid []int, start int) bool {
	for _, g := range grid {
		if g == start {
			return true
		}
	}
	return false
}

// BlocksNeeded converts a treatment duration to the number of 30-minute
// blocks it occupies, never less than one.
func BlocksNeeded(estimatedMinutes int) int {
	if estimatedMinutes <= SlotMinutes {
		return 1
	}
	blocks := estimatedMinutes / SlotMinutes
	if estimatedMinutes%SlotMinutes != 0 {
		blocks++
	}
	return blocks
}

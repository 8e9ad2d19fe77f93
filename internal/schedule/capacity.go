package schedule

// CapacityResult reports whether every block a booking would cover still
// has headroom. FullAt identifies the first saturated (or out-of-hours)
// block when OK is false.
type CapacityResult struct {
	OK     bool
	FullAt int
}

// CheckCapacity verifies that each of blocksNeeded consecutive blocks
// starting at startMin is on the grid and has usage below
// effectiveCapacity. Blocks outside the grid count as full, not as free.
func CheckCapacity(startMin, blocksNeeded int, usage Usage, grid []int, effectiveCapacity int) CapacityResult {
	if effectiveCapacity <= 0 {
		return CapacityResult{OK: false, FullAt: startMin}
	}
	for i := 0; i < blocksNeeded; i++ {
		block := startMin + i*SlotMinutes
		if !OnGrid(grid, block) {
			return CapacityResult{OK: false, FullAt: block}
		}
		if usage[block] >= effectiveCapacity {
			return CapacityResult{OK: false, FullAt: block}
		}
	}
	return CapacityResult{OK: true}
}

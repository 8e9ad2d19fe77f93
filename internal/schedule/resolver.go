package schedule

import (
	"context"
	"fmt"
	"time"
)

// Source tags which authority decided a date's open state and hours.
type Source int

const (
	// SourceNone means no weekly row and no override exist; the day is closed.
	SourceNone Source = iota
	// SourceWeekly means the weekday default decided the hours.
	SourceWeekly
	// SourceGenerated means a planner row contributed a capacity cap on top
	// of the weekly default.
	SourceGenerated
	// SourceManual means a human-entered override decided open state/hours.
	SourceManual
)

func (s Source) String() string {
	switch s {
	case SourceManual:
		return "manual"
	case SourceGenerated:
		return "generated"
	case SourceWeekly:
		return "weekly"
	default:
		return "none"
	}
}

// DaySchedule is the resolved availability snapshot for one calendar date.
// OpenTime/CloseTime are minutes of day and only meaningful when IsOpen.
type DaySchedule struct {
	Date              time.Time
	IsOpen            bool
	OpenTime          int
	CloseTime         int
	Note              string
	DentistCount      int
	CapacityCap       *int
	EffectiveCapacity int
	Source            Source
}

// Grid returns the date's 30-minute slot grid, empty when closed.
func (d DaySchedule) Grid() []int {
	if !d.IsOpen {
		return nil
	}
	return BuildSlotGrid(d.OpenTime, d.CloseTime)
}

// Resolver combines weekly defaults, calendar overrides and the dentist
// roster into one authoritative DaySchedule. Resolution always succeeds
// and degrades to "closed, capacity 0" when no data exists.
type Resolver struct {
	repo *Repository
}

// NewResolver creates a resolver over the schedule repository.
func NewResolver(repo *Repository) *Resolver {
	if repo == nil {
		panic("schedule: repository required")
	}
	return &Resolver{repo: repo}
}

// Resolve returns the DaySchedule for a date.
func (r *Resolver) Resolve(ctx context.Context, date time.Time) (DaySchedule, error) {
	return resolveDay(ctx, r.repo.db, date)
}

// resolveDay is the transaction-friendly form used by the booking insert
// and the closure cascade, so the decision and the writes share one
// consistent snapshot.
func resolveDay(ctx context.Context, q Querier, date time.Time) (DaySchedule, error) {
	day := truncateDate(date)
	out := DaySchedule{Date: day, Source: SourceNone}

	override, err := overrideForDate(ctx, q, day)
	if err != nil {
		return out, err
	}

	// Manual precedence: a row whose IsOpen is set owns open state and
	// hours outright. Generated rows never set IsOpen.
	manualHours := override != nil && override.IsOpen != nil
	if manualHours {
		out.Source = SourceManual
		out.IsOpen = *override.IsOpen
		out.Note = override.Note
		if out.IsOpen {
			if err := applyHours(&out, override.OpenTime, override.CloseTime); err != nil {
				return out, err
			}
		}
	} else {
		weekly, err := weeklyForWeekday(ctx, q, int(day.Weekday()))
		if err != nil {
			return out, err
		}
		if weekly != nil {
			out.Source = SourceWeekly
			out.IsOpen = weekly.IsOpen
			out.Note = weekly.Note
			if out.IsOpen {
				if err := applyHours(&out, weekly.OpenTime, weekly.CloseTime); err != nil {
					return out, err
				}
			}
		}
	}

	// Any override row, manual or generated, may carry a capacity cap.
	if override != nil && override.CapacityCap != nil {
		capValue := *override.CapacityCap
		out.CapacityCap = &capValue
		if !manualHours {
			out.Source = SourceGenerated
			if override.Note != "" {
				out.Note = override.Note
			}
		}
	}

	count, err := countAvailableDentists(ctx, q, day)
	if err != nil {
		return out, err
	}
	out.DentistCount = count
	out.EffectiveCapacity = effectiveCapacity(out.IsOpen, count, out.CapacityCap)
	return out, nil
}

// effectiveCapacity enforces the ceiling invariant: a cap can only lower
// the limit below the dentist headcount, never raise it.
func effectiveCapacity(isOpen bool, dentistCount int, capPtr *int) int {
	if !isOpen {
		return 0
	}
	capacity := dentistCount
	if capPtr != nil && *capPtr < capacity {
		capacity = *capPtr
	}
	if capacity < 0 {
		return 0
	}
	return capacity
}

func applyHours(out *DaySchedule, open, close *string) error {
	if open == nil || close == nil {
		// Open without hours is a data defect; degrade to closed rather
		// than failing every availability call.
		out.IsOpen = false
		return nil
	}
	openMin, err := ParseClock(*open)
	if err != nil {
		return fmt.Errorf("schedule: resolve %s: %w", out.Date.Format("2006-01-02"), err)
	}
	closeMin, err := ParseClock(*close)
	if err != nil {
		return fmt.Errorf("schedule: resolve %s: %w", out.Date.Format("2006-01-02"), err)
	}
	out.OpenTime = openMin
	out.CloseTime = closeMin
	return nil
}

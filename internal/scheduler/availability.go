package scheduler

import (
	"fmt"

	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// AvailabilityIndex answers instructor and class-cell availability in constant time.
//
// busy[instructor][cell] is set iff some class cell at that position holds a session taught
// by the instructor. Unavailability windows live in blocked so the busy flag stays exact.
type AvailabilityIndex struct {
	grid      Grid
	timetable *Timetable
	busy      map[string][]bool
	blocked   map[string][]bool
}

// NewAvailabilityIndex builds an empty index reading class cells from timetable.
func NewAvailabilityIndex(timetable *Timetable) *AvailabilityIndex {
	return &AvailabilityIndex{
		grid:      timetable.grid,
		timetable: timetable,
		busy:      make(map[string][]bool),
		blocked:   make(map[string][]bool),
	}
}

// IsInstructorFree reports whether the instructor neither teaches nor is blocked at the cell.
func (a *AvailabilityIndex) IsInstructorFree(instructorID string, c Cell) bool {
	if !a.grid.contains(c) {
		return false
	}
	off := a.grid.offset(c)
	if flags, ok := a.busy[instructorID]; ok && flags[off] {
		return false
	}
	if flags, ok := a.blocked[instructorID]; ok && flags[off] {
		return false
	}
	return true
}

// IsClassSlotFree reads the timetable cell directly.
func (a *AvailabilityIndex) IsClassSlotFree(classID string, c Cell) bool {
	return a.timetable.isFree(classID, c)
}

// IsBusy reports the raw busy flag, ignoring unavailability blocks.
func (a *AvailabilityIndex) IsBusy(instructorID string, c Cell) bool {
	flags, ok := a.busy[instructorID]
	return ok && a.grid.contains(c) && flags[a.grid.offset(c)]
}

// MarkBusy sets the busy flag. Marking an already busy flag means two sessions were about
// to share an instructor and fails with ErrAlreadyBusy.
func (a *AvailabilityIndex) MarkBusy(instructorID string, c Cell) error {
	if !a.grid.contains(c) {
		return appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("cell %d/%d outside grid", c.Day, c.Slot))
	}
	flags := a.flags(a.busy, instructorID)
	off := a.grid.offset(c)
	if flags[off] {
		day, slot := a.grid.Labels(c)
		return appErrors.Clone(appErrors.ErrAlreadyBusy, fmt.Sprintf("instructor %q already busy at %s %s", instructorID, day, slot))
	}
	flags[off] = true
	return nil
}

// Block marks the instructor unavailable at the cell.
func (a *AvailabilityIndex) Block(instructorID string, c Cell) {
	if !a.grid.contains(c) {
		return
	}
	a.flags(a.blocked, instructorID)[a.grid.offset(c)] = true
}

func (a *AvailabilityIndex) flags(m map[string][]bool, instructorID string) []bool {
	flags, ok := m[instructorID]
	if !ok {
		flags = make([]bool, a.grid.size())
		m[instructorID] = flags
	}
	return flags
}

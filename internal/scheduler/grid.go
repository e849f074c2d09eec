package scheduler

import (
	"fmt"
	"strings"

	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// Grid is the weekly layout shared by every class. BreakSlot, when set, must be one of
// Slots and is never assigned.
type Grid struct {
	Days      []string `json:"days"`
	Slots     []string `json:"slots"`
	BreakSlot string   `json:"break_slot,omitempty"`
}

// Cell addresses one (day, slot) position by index into Grid.Days and Grid.Slots.
type Cell struct {
	Day  int
	Slot int
}

// DefaultGrid mirrors the six-day, six-slot week with a lunch break.
func DefaultGrid() Grid {
	return Grid{
		Days:      []string{"MON", "TUE", "WED", "THU", "FRI", "SAT"},
		Slots:     []string{"10:00-11:00", "11:00-12:00", "12:00-1:00", "Lunch Break", "1:30-2:30", "2:30-3:30"},
		BreakSlot: "Lunch Break",
	}
}

// Validate checks labels are present and unique and that at least one slot is assignable.
func (g Grid) Validate() error {
	if err := uniqueLabels("day", g.Days); err != nil {
		return err
	}
	if err := uniqueLabels("slot", g.Slots); err != nil {
		return err
	}
	if g.BreakSlot != "" {
		if _, ok := g.SlotIndex(g.BreakSlot); !ok {
			return appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("break slot %q is not one of the configured slots", g.BreakSlot))
		}
		if len(g.Slots) == 1 {
			return appErrors.Clone(appErrors.ErrInvalidInput, "grid has no assignable slot besides the break")
		}
	}
	return nil
}

// DayIndex resolves a day label.
func (g Grid) DayIndex(day string) (int, bool) {
	for i, d := range g.Days {
		if d == day {
			return i, true
		}
	}
	return 0, false
}

// SlotIndex resolves a slot label.
func (g Grid) SlotIndex(slot string) (int, bool) {
	for i, s := range g.Slots {
		if s == slot {
			return i, true
		}
	}
	return 0, false
}

// Resolve converts a (day, slot) label pair into a Cell.
func (g Grid) Resolve(day, slot string) (Cell, error) {
	d, ok := g.DayIndex(day)
	if !ok {
		return Cell{}, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unknown day %q", day))
	}
	s, ok := g.SlotIndex(slot)
	if !ok {
		return Cell{}, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unknown slot %q", slot))
	}
	return Cell{Day: d, Slot: s}, nil
}

// IsBreak reports whether the slot index is the reserved break.
func (g Grid) IsBreak(slot int) bool {
	return g.BreakSlot != "" && slot >= 0 && slot < len(g.Slots) && g.Slots[slot] == g.BreakSlot
}

// Labels returns the day and slot labels of a cell.
func (g Grid) Labels(c Cell) (day, slot string) {
	return g.Days[c.Day], g.Slots[c.Slot]
}

func (g Grid) size() int {
	return len(g.Days) * len(g.Slots)
}

func (g Grid) offset(c Cell) int {
	return c.Day*len(g.Slots) + c.Slot
}

func (g Grid) contains(c Cell) bool {
	return c.Day >= 0 && c.Day < len(g.Days) && c.Slot >= 0 && c.Slot < len(g.Slots)
}

// assignable lists every non-break cell in day-major order.
func (g Grid) assignable() []Cell {
	cells := make([]Cell, 0, g.size())
	for d := range g.Days {
		for s := range g.Slots {
			if g.IsBreak(s) {
				continue
			}
			cells = append(cells, Cell{Day: d, Slot: s})
		}
	}
	return cells
}

func (g Grid) clone() Grid {
	return Grid{
		Days:      append([]string(nil), g.Days...),
		Slots:     append([]string(nil), g.Slots...),
		BreakSlot: g.BreakSlot,
	}
}

func uniqueLabels(kind string, labels []string) error {
	if len(labels) == 0 {
		return appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("grid needs at least one %s", kind))
	}
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		if strings.TrimSpace(label) == "" {
			return appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("%s label must not be blank", kind))
		}
		if _, dup := seen[label]; dup {
			return appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("duplicate %s label %q", kind, label))
		}
		seen[label] = struct{}{}
	}
	return nil
}

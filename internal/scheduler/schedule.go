package scheduler

import (
	"fmt"

	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// Schedule is the read-only view of a finished timetable.
type Schedule struct {
	grid    Grid
	classes []string
	cells   map[string][]*models.Session
}

// CellView is one slot of a day row.
type CellView struct {
	Slot    string
	Break   bool
	Session *models.Session
}

// Row is one day of a class timetable with cells in slot order.
type Row struct {
	Day   string
	Cells []CellView
}

// PlacedSession is a flattened timetable entry.
type PlacedSession struct {
	ClassID      string `json:"class_id"`
	Day          string `json:"day"`
	Slot         string `json:"slot"`
	CourseID     string `json:"course_id"`
	InstructorID string `json:"instructor_id"`
}

func newSchedule(catalog *Catalog, t *Timetable) *Schedule {
	cells := make(map[string][]*models.Session, len(t.cells))
	for classID, row := range t.cells {
		frozen := make([]*models.Session, len(row))
		for i, s := range row {
			if s != nil {
				copied := *s
				frozen[i] = &copied
			}
		}
		cells[classID] = frozen
	}
	return &Schedule{grid: t.grid.clone(), classes: append([]string(nil), t.classes...), cells: cells}
}

// NewScheduleFromPlacements rebuilds a schedule from stored placements, e.g. a persisted run.
// Placements must respect the grid and must not double-book a class cell or an instructor.
func NewScheduleFromPlacements(grid Grid, classIDs []string, placements []PlacedSession) (*Schedule, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	t := newTimetable(grid.clone(), classIDs)
	index := NewAvailabilityIndex(t)
	for _, p := range placements {
		cell, err := grid.Resolve(p.Day, p.Slot)
		if err != nil {
			return nil, err
		}
		if _, ok := t.cells[p.ClassID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("placement references unknown class %q", p.ClassID))
		}
		if err := index.MarkBusy(p.InstructorID, cell); err != nil {
			return nil, err
		}
		if err := t.put(p.ClassID, cell, models.Session{CourseID: p.CourseID, InstructorID: p.InstructorID}); err != nil {
			return nil, err
		}
	}
	return &Schedule{grid: t.grid, classes: t.classes, cells: t.cells}, nil
}

// Grid returns a copy of the layout.
func (s *Schedule) Grid() Grid { return s.grid.clone() }

// Days returns the day labels in order.
func (s *Schedule) Days() []string { return append([]string(nil), s.grid.Days...) }

// Slots returns the slot labels in order.
func (s *Schedule) Slots() []string { return append([]string(nil), s.grid.Slots...) }

// BreakSlot returns the reserved slot label.
func (s *Schedule) BreakSlot() string { return s.grid.BreakSlot }

// Classes returns class ids in input order.
func (s *Schedule) Classes() []string { return append([]string(nil), s.classes...) }

// ForClass returns the class timetable as day rows in grid order.
func (s *Schedule) ForClass(classID string) ([]Row, error) {
	row, ok := s.cells[classID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("class %q not found in schedule", classID))
	}
	rows := make([]Row, 0, len(s.grid.Days))
	for d, day := range s.grid.Days {
		cells := make([]CellView, 0, len(s.grid.Slots))
		for sl, slot := range s.grid.Slots {
			view := CellView{Slot: slot, Break: s.grid.IsBreak(sl)}
			if session := row[s.grid.offset(Cell{Day: d, Slot: sl})]; session != nil {
				copied := *session
				view.Session = &copied
			}
			cells = append(cells, view)
		}
		rows = append(rows, Row{Day: day, Cells: cells})
	}
	return rows, nil
}

// Placements lists every placed session ordered by class, day and slot.
func (s *Schedule) Placements() []PlacedSession {
	var out []PlacedSession
	for _, classID := range s.classes {
		for off, session := range s.cells[classID] {
			if session == nil {
				continue
			}
			day, slot := s.grid.Labels(Cell{Day: off / len(s.grid.Slots), Slot: off % len(s.grid.Slots)})
			out = append(out, PlacedSession{
				ClassID:      classID,
				Day:          day,
				Slot:         slot,
				CourseID:     session.CourseID,
				InstructorID: session.InstructorID,
			})
		}
	}
	return out
}

// Count returns how many sessions of the course the class received.
func (s *Schedule) Count(classID, courseID string) int {
	n := 0
	for _, session := range s.cells[classID] {
		if session != nil && session.CourseID == courseID {
			n++
		}
	}
	return n
}

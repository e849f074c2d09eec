package scheduler

import (
	"fmt"

	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// Timetable maps class → (day, slot) → optional session. Only the engine writes to it.
type Timetable struct {
	grid    Grid
	classes []string
	cells   map[string][]*models.Session
}

func newTimetable(grid Grid, classIDs []string) *Timetable {
	t := &Timetable{
		grid:    grid,
		classes: append([]string(nil), classIDs...),
		cells:   make(map[string][]*models.Session, len(classIDs)),
	}
	for _, id := range classIDs {
		t.cells[id] = make([]*models.Session, grid.size())
	}
	return t
}

// Session returns the session occupying the cell, if any.
func (t *Timetable) Session(classID string, c Cell) (models.Session, bool) {
	row, ok := t.cells[classID]
	if !ok || !t.grid.contains(c) {
		return models.Session{}, false
	}
	s := row[t.grid.offset(c)]
	if s == nil {
		return models.Session{}, false
	}
	return *s, true
}

// isFree is false for unknown classes, out-of-range cells, the break slot and occupied cells.
func (t *Timetable) isFree(classID string, c Cell) bool {
	row, ok := t.cells[classID]
	if !ok || !t.grid.contains(c) || t.grid.IsBreak(c.Slot) {
		return false
	}
	return row[t.grid.offset(c)] == nil
}

func (t *Timetable) put(classID string, c Cell, s models.Session) error {
	if !t.isFree(classID, c) {
		day, slot := t.grid.Labels(c)
		return appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("cell %s/%s of class %q is not assignable", day, slot, classID))
	}
	session := s
	t.cells[classID][t.grid.offset(c)] = &session
	return nil
}

func (t *Timetable) occupied() int {
	n := 0
	for _, row := range t.cells {
		for _, s := range row {
			if s != nil {
				n++
			}
		}
	}
	return n
}

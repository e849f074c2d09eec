package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

func TestNewCatalogLookups(t *testing.T) {
	catalog, err := NewCatalog(
		[]models.Class{{ID: "10A", CourseIDs: []string{"math", "bio"}}},
		[]models.Course{{ID: "math", Name: "Mathematics", SessionsPerWeek: 3}, {ID: "bio", Name: "Biology", SessionsPerWeek: 2}},
		[]models.Instructor{{ID: "t1", Name: "Ana", CourseIDs: []string{"math"}}},
	)
	require.NoError(t, err)

	class, err := catalog.Class("10A")
	require.NoError(t, err)
	assert.Equal(t, []string{"math", "bio"}, []string(class.CourseIDs))

	course, err := catalog.Course("bio")
	require.NoError(t, err)
	assert.Equal(t, 2, course.SessionsPerWeek)

	_, err = catalog.Instructor("missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	_, err = catalog.Class("missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	_, err = catalog.Course("missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestNewCatalogRejectsInvalidInput(t *testing.T) {
	courses := []models.Course{{ID: "math", SessionsPerWeek: 2}}
	cases := map[string]struct {
		classes     []models.Class
		courses     []models.Course
		instructors []models.Instructor
	}{
		"unknown course on class": {
			classes: []models.Class{{ID: "10A", CourseIDs: []string{"art"}}},
			courses: courses,
		},
		"unknown course on instructor": {
			courses:     courses,
			instructors: []models.Instructor{{ID: "t1", CourseIDs: []string{"art"}}},
		},
		"zero sessions per week": {
			courses: []models.Course{{ID: "math", SessionsPerWeek: 0}},
		},
		"negative sessions per week": {
			courses: []models.Course{{ID: "math", SessionsPerWeek: -1}},
		},
		"duplicate course id": {
			courses: []models.Course{{ID: "math", SessionsPerWeek: 1}, {ID: "math", SessionsPerWeek: 2}},
		},
		"duplicate class id": {
			classes: []models.Class{{ID: "10A"}, {ID: "10A"}},
			courses: courses,
		},
		"course listed twice": {
			classes: []models.Class{{ID: "10A", CourseIDs: []string{"math", "math"}}},
			courses: courses,
		},
		"missing class id": {
			classes: []models.Class{{CourseIDs: []string{"math"}}},
			courses: courses,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewCatalog(tc.classes, tc.courses, tc.instructors)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestCatalogReturnsCopies(t *testing.T) {
	catalog, err := NewCatalog(
		[]models.Class{{ID: "10A", CourseIDs: []string{"math"}}},
		[]models.Course{{ID: "math", SessionsPerWeek: 1}},
		[]models.Instructor{{ID: "t1", CourseIDs: []string{"math"}}},
	)
	require.NoError(t, err)

	classes := catalog.Classes()
	classes[0].CourseIDs[0] = "changed"
	instructors := catalog.Instructors()
	instructors[0].ID = "changed"

	class, _ := catalog.Class("10A")
	assert.Equal(t, "math", class.CourseIDs[0])
	_, err = catalog.Instructor("t1")
	assert.NoError(t, err)
}

func TestGridValidate(t *testing.T) {
	require.NoError(t, DefaultGrid().Validate())

	cases := map[string]Grid{
		"no days":         {Slots: []string{"S1"}},
		"no slots":        {Days: []string{"MON"}},
		"duplicate day":   {Days: []string{"MON", "MON"}, Slots: []string{"S1"}},
		"blank slot":      {Days: []string{"MON"}, Slots: []string{" "}},
		"unknown break":   {Days: []string{"MON"}, Slots: []string{"S1"}, BreakSlot: "Lunch"},
		"only break slot": {Days: []string{"MON"}, Slots: []string{"Lunch"}, BreakSlot: "Lunch"},
		"duplicate slot":  {Days: []string{"MON"}, Slots: []string{"S1", "S1"}},
	}
	for name, grid := range cases {
		t.Run(name, func(t *testing.T) {
			err := grid.Validate()
			assert.True(t, errors.Is(err, appErrors.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestGridAssignableSkipsBreak(t *testing.T) {
	grid := DefaultGrid()
	cells := grid.assignable()
	assert.Len(t, cells, 6*5)
	for _, c := range cells {
		assert.False(t, grid.IsBreak(c.Slot))
	}

	_, err := grid.Resolve("SUN", "10:00-11:00")
	assert.True(t, errors.Is(err, appErrors.ErrInvalidInput))
	cell, err := grid.Resolve("TUE", "Lunch Break")
	require.NoError(t, err)
	assert.True(t, grid.IsBreak(cell.Slot))
}

func TestAvailabilityIndexMarkBusy(t *testing.T) {
	grid := Grid{Days: []string{"MON", "TUE"}, Slots: []string{"S1", "S2"}}
	index := NewAvailabilityIndex(newTimetable(grid, []string{"10A"}))
	cell := Cell{Day: 1, Slot: 0}

	assert.True(t, index.IsInstructorFree("t1", cell))
	require.NoError(t, index.MarkBusy("t1", cell))
	assert.False(t, index.IsInstructorFree("t1", cell))
	assert.True(t, index.IsBusy("t1", cell))
	assert.True(t, index.IsInstructorFree("t1", Cell{Day: 0, Slot: 0}))
	assert.True(t, index.IsInstructorFree("t2", cell))

	err := index.MarkBusy("t1", cell)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyBusy), "got %v", err)
}

func TestAvailabilityIndexBlockKeepsBusyExact(t *testing.T) {
	grid := Grid{Days: []string{"MON"}, Slots: []string{"S1", "S2"}}
	index := NewAvailabilityIndex(newTimetable(grid, []string{"10A"}))
	cell := Cell{Day: 0, Slot: 1}

	index.Block("t1", cell)
	assert.False(t, index.IsInstructorFree("t1", cell))
	assert.False(t, index.IsBusy("t1", cell))
	assert.False(t, index.IsInstructorFree("t1", Cell{Day: 3, Slot: 0}))
}

func TestAvailabilityIndexClassSlot(t *testing.T) {
	grid := Grid{Days: []string{"MON"}, Slots: []string{"S1", "Break"}, BreakSlot: "Break"}
	timetable := newTimetable(grid, []string{"10A"})
	index := NewAvailabilityIndex(timetable)

	assert.True(t, index.IsClassSlotFree("10A", Cell{Day: 0, Slot: 0}))
	assert.False(t, index.IsClassSlotFree("10A", Cell{Day: 0, Slot: 1}))
	assert.False(t, index.IsClassSlotFree("11B", Cell{Day: 0, Slot: 0}))

	require.NoError(t, timetable.put("10A", Cell{Day: 0, Slot: 0}, models.Session{CourseID: "math", InstructorID: "t1"}))
	assert.False(t, index.IsClassSlotFree("10A", Cell{Day: 0, Slot: 0}))
	assert.Error(t, timetable.put("10A", Cell{Day: 0, Slot: 0}, models.Session{CourseID: "math", InstructorID: "t2"}))
}

func TestCandidateSelector(t *testing.T) {
	catalog, err := NewCatalog(
		nil,
		[]models.Course{{ID: "math", SessionsPerWeek: 1}, {ID: "art", SessionsPerWeek: 1}},
		[]models.Instructor{
			{ID: "t3", CourseIDs: []string{"math"}},
			{ID: "t1", CourseIDs: []string{"math", "art"}},
			{ID: "t2", CourseIDs: []string{}},
		},
	)
	require.NoError(t, err)
	selector := NewCandidateSelector(catalog)

	eligible, err := selector.EligibleInstructors("math")
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	assert.Equal(t, "t1", eligible[0].ID)
	assert.Equal(t, "t3", eligible[1].ID)

	eligible[0].ID = "mutated"
	again, _ := selector.EligibleInstructors("math")
	assert.Equal(t, "t1", again[0].ID)

	_, err = selector.EligibleInstructors("history")
	assert.True(t, errors.Is(err, appErrors.ErrNoQualifiedInstructor))
}

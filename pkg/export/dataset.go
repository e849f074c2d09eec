package export

import "github.com/noah-isme/sma-timetable/internal/dto"

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Renderer turns a timetable view into a document.
type Renderer interface {
	RenderTimetable(view dto.TimetableView) ([]byte, error)
}

const (
	colClass      = "class_id"
	colDay        = "day"
	colSlot       = "slot"
	colKind       = "kind"
	colCourse     = "course_id"
	colInstructor = "instructor_id"
	colLabel      = "label"
)

// cellDataset flattens a view into one row per class cell, grid order preserved.
func cellDataset(view dto.TimetableView) Dataset {
	data := Dataset{Headers: []string{colClass, colDay, colSlot, colKind, colCourse, colInstructor, colLabel}}
	for _, class := range view.Classes {
		for _, row := range class.Rows {
			for _, cell := range row.Cells {
				data.Rows = append(data.Rows, map[string]string{
					colClass:      class.ClassID,
					colDay:        row.Day,
					colSlot:       cell.Slot,
					colKind:       string(cell.Kind),
					colCourse:     cell.CourseID,
					colInstructor: cell.InstructorID,
					colLabel:      cell.Label,
				})
			}
		}
	}
	return data
}

// unplacedDataset lists sessions the run could not place.
func unplacedDataset(view dto.TimetableView) Dataset {
	data := Dataset{Headers: []string{"Class", "Course", "Session", "Attempts", "Reason"}}
	for _, u := range view.Unplaced {
		data.Rows = append(data.Rows, map[string]string{
			"Class":    u.ClassID,
			"Course":   u.CourseID,
			"Session":  itoa(u.Session),
			"Attempts": itoa(u.Attempts),
			"Reason":   u.Reason,
		})
	}
	return data
}

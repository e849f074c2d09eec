package service

import (
	"fmt"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
)

const freeCellLabel = "Free"

// NewTimetableView projects a schedule into the API representation. Names come from the
// catalog when present; missing entries fall back to their identifiers.
func NewTimetableView(catalog *scheduler.Catalog, schedule *scheduler.Schedule, unplaced []scheduler.UnplacedSession) dto.TimetableView {
	view := dto.TimetableView{
		Days:      schedule.Days(),
		Slots:     schedule.Slots(),
		BreakSlot: schedule.BreakSlot(),
		Classes:   make([]dto.ClassTimetable, 0, len(schedule.Classes())),
		Unplaced:  make([]dto.UnplacedSession, 0, len(unplaced)),
	}

	for _, classID := range schedule.Classes() {
		rows, err := schedule.ForClass(classID)
		if err != nil {
			continue
		}
		class := dto.ClassTimetable{ClassID: classID, ClassName: className(catalog, classID), Rows: make([]dto.TimetableRow, 0, len(rows))}
		for _, row := range rows {
			out := dto.TimetableRow{Day: row.Day, Cells: make([]dto.TimetableCell, 0, len(row.Cells))}
			for _, cell := range row.Cells {
				out.Cells = append(out.Cells, viewCell(catalog, cell))
			}
			class.Rows = append(class.Rows, out)
		}
		view.Classes = append(view.Classes, class)
	}

	for _, u := range unplaced {
		view.Unplaced = append(view.Unplaced, dto.UnplacedSession{
			ClassID:  u.ClassID,
			CourseID: u.CourseID,
			Session:  u.Session,
			Attempts: u.Attempts,
			Reason:   u.Reason,
		})
	}

	view.Status = string(runStatus(len(unplaced)))
	return view
}

func viewCell(catalog *scheduler.Catalog, cell scheduler.CellView) dto.TimetableCell {
	switch {
	case cell.Break:
		return dto.TimetableCell{Slot: cell.Slot, Kind: dto.TimetableCellBreak, Label: cell.Slot}
	case cell.Session == nil:
		return dto.TimetableCell{Slot: cell.Slot, Kind: dto.TimetableCellFree, Label: freeCellLabel}
	}
	courseName := courseName(catalog, cell.Session.CourseID)
	instructorName := instructorName(catalog, cell.Session.InstructorID)
	return dto.TimetableCell{
		Slot:           cell.Slot,
		Kind:           dto.TimetableCellSession,
		Label:          fmt.Sprintf("%s (%s)", courseName, instructorName),
		CourseID:       cell.Session.CourseID,
		CourseName:     courseName,
		InstructorID:   cell.Session.InstructorID,
		InstructorName: instructorName,
	}
}

func className(catalog *scheduler.Catalog, id string) string {
	if catalog == nil {
		return id
	}
	class, err := catalog.Class(id)
	if err != nil {
		return id
	}
	return class.DisplayName()
}

func courseName(catalog *scheduler.Catalog, id string) string {
	if catalog == nil {
		return id
	}
	course, err := catalog.Course(id)
	if err != nil || course.Name == "" {
		return id
	}
	return course.Name
}

func instructorName(catalog *scheduler.Catalog, id string) string {
	if catalog == nil {
		return id
	}
	instructor, err := catalog.Instructor(id)
	if err != nil || instructor.Name == "" {
		return id
	}
	return instructor.Name
}

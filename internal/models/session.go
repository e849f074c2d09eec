package models

// Session is one weekly occurrence of a course taught by one instructor. It occupies a
// single (class, day, slot) cell of a timetable.
type Session struct {
	CourseID     string `json:"course_id"`
	InstructorID string `json:"instructor_id"`
}

package models

import "github.com/lib/pq"

// Instructor is a teacher together with the courses they are qualified to teach.
type Instructor struct {
	ID        string         `db:"id" json:"id" validate:"required"`
	Name      string         `db:"name" json:"name"`
	CourseIDs pq.StringArray `db:"course_ids" json:"course_ids" validate:"dive,required"`
}

// Teaches reports whether the instructor is qualified for the course.
func (i Instructor) Teaches(courseID string) bool {
	for _, id := range i.CourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}

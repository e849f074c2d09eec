package models

import "github.com/lib/pq"

// Class represents a class (section) and the ordered list of courses it must receive each week.
type Class struct {
	ID        string         `db:"id" json:"id" validate:"required"`
	Name      string         `db:"name" json:"name"`
	CourseIDs pq.StringArray `db:"course_ids" json:"course_ids" validate:"dive,required"`
}

// DisplayName falls back to the identifier when no name was loaded.
func (c Class) DisplayName() string {
	if c.Name == "" {
		return c.ID
	}
	return c.Name
}

package models

// Course is a subject taught a fixed number of times per week to every class that takes it.
type Course struct {
	ID              string `db:"id" json:"id" validate:"required"`
	Name            string `db:"name" json:"name"`
	SessionsPerWeek int    `db:"sessions_per_week" json:"sessions_per_week" validate:"gte=1"`
}

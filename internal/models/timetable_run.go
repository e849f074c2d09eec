package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TimetableRunStatus tells whether every required session of a run was placed.
type TimetableRunStatus string

const (
	TimetableRunStatusComplete TimetableRunStatus = "COMPLETE"
	TimetableRunStatusPartial  TimetableRunStatus = "PARTIAL"
)

// TimetableRun captures one persisted engine run.
type TimetableRun struct {
	ID        string             `db:"id" json:"id"`
	Seed      int64              `db:"seed" json:"seed"`
	Status    TimetableRunStatus `db:"status" json:"status"`
	Meta      types.JSONText     `db:"meta" json:"meta"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
}

// TimetableSession is a placed session row belonging to a run.
type TimetableSession struct {
	ID           string    `db:"id" json:"id"`
	RunID        string    `db:"run_id" json:"run_id"`
	ClassID      string    `db:"class_id" json:"class_id"`
	Day          string    `db:"day" json:"day"`
	Slot         string    `db:"slot" json:"slot"`
	CourseID     string    `db:"course_id" json:"course_id"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

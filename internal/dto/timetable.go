package dto

import "time"

// PlacementRequest pins a session to a cell before the randomized placement starts.
type PlacementRequest struct {
	ClassID      string `json:"classId" validate:"required"`
	Day          string `json:"day" validate:"required"`
	Slot         string `json:"slot" validate:"required"`
	CourseID     string `json:"courseId" validate:"required"`
	InstructorID string `json:"instructorId" validate:"required"`
}

// UnavailabilityRequest blocks an instructor at a cell.
type UnavailabilityRequest struct {
	InstructorID string `json:"instructorId" validate:"required"`
	Day          string `json:"day" validate:"required"`
	Slot         string `json:"slot" validate:"required"`
}

// GenerateTimetableRequest triggers a timetable run. Every field overrides the configured default.
// Overriding Slots without BreakSlot keeps the configured break only when it is one of the new slots.
type GenerateTimetableRequest struct {
	Days            []string                `json:"days" validate:"omitempty,min=1,dive,required"`
	Slots           []string                `json:"slots" validate:"omitempty,min=1,dive,required"`
	BreakSlot       *string                 `json:"breakSlot"`
	MaxRetries      int                     `json:"maxRetries" validate:"omitempty,min=1,max=1000000"`
	OnUnschedulable string                  `json:"onUnschedulable" validate:"omitempty,oneof=abort skip_and_record"`
	CandidateOrder  string                  `json:"candidateOrder" validate:"omitempty,oneof=by_id shuffled"`
	Seed            *int64                  `json:"seed"`
	Preassigned     []PlacementRequest      `json:"preassigned" validate:"omitempty,dive"`
	Unavailable     []UnavailabilityRequest `json:"unavailable" validate:"omitempty,dive"`
}

// TimetableCellKind tells a renderer what a cell holds.
type TimetableCellKind string

const (
	TimetableCellBreak   TimetableCellKind = "break"
	TimetableCellFree    TimetableCellKind = "free"
	TimetableCellSession TimetableCellKind = "session"
)

// TimetableCell is one (day, slot) position of a class timetable.
type TimetableCell struct {
	Slot           string            `json:"slot"`
	Kind           TimetableCellKind `json:"kind"`
	Label          string            `json:"label"`
	CourseID       string            `json:"courseId,omitempty"`
	CourseName     string            `json:"courseName,omitempty"`
	InstructorID   string            `json:"instructorId,omitempty"`
	InstructorName string            `json:"instructorName,omitempty"`
}

// TimetableRow is one day of a class timetable.
type TimetableRow struct {
	Day   string          `json:"day"`
	Cells []TimetableCell `json:"cells"`
}

// ClassTimetable is the rendered grid for a single class.
type ClassTimetable struct {
	ClassID   string         `json:"classId"`
	ClassName string         `json:"className"`
	Rows      []TimetableRow `json:"rows"`
}

// UnplacedSession reports a session the run could not place.
type UnplacedSession struct {
	ClassID  string `json:"classId"`
	CourseID string `json:"courseId"`
	Session  int    `json:"session"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason"`
}

// TimetableStats summarises the effort spent by the run.
type TimetableStats struct {
	Required    int `json:"required"`
	Preassigned int `json:"preassigned"`
	Placed      int `json:"placed"`
	Unplaced    int `json:"unplaced"`
	Attempts    int `json:"attempts"`
}

// TimetableView is the full projection of a run consumed by the API, cache and exporters.
type TimetableView struct {
	RunID     string            `json:"runId,omitempty"`
	Status    string            `json:"status"`
	Seed      *int64            `json:"seed,omitempty"`
	Days      []string          `json:"days"`
	Slots     []string          `json:"slots"`
	BreakSlot string            `json:"breakSlot,omitempty"`
	Classes   []ClassTimetable  `json:"classes"`
	Unplaced  []UnplacedSession `json:"unplaced"`
	Stats     *TimetableStats   `json:"stats,omitempty"`
	CreatedAt *time.Time        `json:"createdAt,omitempty"`
}

// Class returns the timetable of a single class.
func (v TimetableView) Class(classID string) (ClassTimetable, bool) {
	for _, class := range v.Classes {
		if class.ClassID == classID {
			return class, true
		}
	}
	return ClassTimetable{}, false
}

// ExportTimetableRequest enqueues an asynchronous export of a stored run.
type ExportTimetableRequest struct {
	Format string `json:"format" validate:"required,oneof=pdf csv xlsx"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID     string `json:"id"`
	RunID  string `json:"runId"`
	Format string `json:"format"`
	Status string `json:"status"`
}

// ExportStatusResponse exposes export job progress.
type ExportStatusResponse struct {
	ID          string     `json:"id"`
	RunID       string     `json:"runId"`
	Format      string     `json:"format"`
	Status      string     `json:"status"`
	DownloadURL *string    `json:"downloadUrl,omitempty"`
	Error       *string    `json:"error,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

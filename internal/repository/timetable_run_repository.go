package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// TimetableRunRepository persists engine runs and their placed sessions.
type TimetableRunRepository struct {
	db *sqlx.DB
}

// NewTimetableRunRepository builds the repository.
func NewTimetableRunRepository(db *sqlx.DB) *TimetableRunRepository {
	return &TimetableRunRepository{db: db}
}

// Create stores the run and all of its sessions in one transaction. Missing ids and
// timestamps are filled in on the passed values.
func (r *TimetableRunRepository) Create(ctx context.Context, run *models.TimetableRun, sessions []models.TimetableSession) (err error) {
	if run == nil {
		return fmt.Errorf("nil timetable run")
	}
	now := time.Now().UTC()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create timetable run: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const runQuery = `INSERT INTO timetable_runs (id, seed, status, meta, created_at) VALUES (:id, :seed, :status, :meta, :created_at)`
	if _, err = tx.NamedExecContext(ctx, runQuery, run); err != nil {
		return fmt.Errorf("insert timetable run: %w", err)
	}
	if err = r.insertSessions(ctx, tx, run.ID, now, sessions); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit timetable run: %w", err)
	}
	return nil
}

func (r *TimetableRunRepository) insertSessions(ctx context.Context, exec sqlx.ExtContext, runID string, now time.Time, sessions []models.TimetableSession) error {
	const query = `INSERT INTO timetable_sessions (id, run_id, class_id, day, slot, course_id, instructor_id, created_at)
VALUES (:id, :run_id, :class_id, :day, :slot, :course_id, :instructor_id, :created_at)`
	for i := range sessions {
		session := &sessions[i]
		if session.ID == "" {
			session.ID = uuid.NewString()
		}
		session.RunID = runID
		if session.CreatedAt.IsZero() {
			session.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, exec, query, session); err != nil {
			return fmt.Errorf("insert timetable session: %w", err)
		}
	}
	return nil
}

// FindByID loads a run. A missing run surfaces sql.ErrNoRows wrapped.
func (r *TimetableRunRepository) FindByID(ctx context.Context, id string) (*models.TimetableRun, error) {
	const query = `SELECT id, seed, status, meta, created_at FROM timetable_runs WHERE id = $1`
	var run models.TimetableRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("find timetable run: %w", err)
	}
	return &run, nil
}

// ListSessions returns the run's sessions ordered lexically by class, day and slot labels.
func (r *TimetableRunRepository) ListSessions(ctx context.Context, runID string) ([]models.TimetableSession, error) {
	const query = `SELECT id, run_id, class_id, day, slot, course_id, instructor_id, created_at
FROM timetable_sessions WHERE run_id = $1 ORDER BY class_id ASC, day ASC, slot ASC`
	var sessions []models.TimetableSession
	if err := r.db.SelectContext(ctx, &sessions, query, runID); err != nil {
		return nil, fmt.Errorf("list timetable sessions: %w", err)
	}
	return sessions, nil
}

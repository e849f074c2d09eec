package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// InstructorRepository reads instructors and their qualifications.
type InstructorRepository struct {
	db *sqlx.DB
}

// NewInstructorRepository constructs an instructor repository.
func NewInstructorRepository(db *sqlx.DB) *InstructorRepository {
	return &InstructorRepository{db: db}
}

// ListAll returns every instructor with the course ids they may teach.
func (r *InstructorRepository) ListAll(ctx context.Context) ([]models.Instructor, error) {
	const query = `SELECT id, name, course_ids FROM instructors ORDER BY position ASC, id ASC`
	var instructors []models.Instructor
	if err := r.db.SelectContext(ctx, &instructors, query); err != nil {
		return nil, fmt.Errorf("list instructors: %w", err)
	}
	return instructors, nil
}

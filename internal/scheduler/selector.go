package scheduler

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// CandidateSelector maps each course to the instructors qualified to teach it.
type CandidateSelector struct {
	byCourse map[string][]models.Instructor
}

// NewCandidateSelector indexes qualifications once per catalog.
func NewCandidateSelector(catalog *Catalog) *CandidateSelector {
	byCourse := make(map[string][]models.Instructor)
	for _, instructor := range catalog.Instructors() {
		for _, courseID := range lo.Uniq(instructor.CourseIDs) {
			byCourse[courseID] = append(byCourse[courseID], instructor)
		}
	}
	for courseID := range byCourse {
		list := byCourse[courseID]
		sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return &CandidateSelector{byCourse: byCourse}
}

// EligibleInstructors returns the qualified instructors ordered by id. The slice is a copy.
func (s *CandidateSelector) EligibleInstructors(courseID string) ([]models.Instructor, error) {
	list := s.byCourse[courseID]
	if len(list) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoQualifiedInstructor, fmt.Sprintf("no instructor is qualified to teach course %q", courseID))
	}
	return append([]models.Instructor(nil), list...), nil
}

package scheduler

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// Catalog holds the validated classes, courses and instructors of one run.
type Catalog struct {
	classes     []models.Class
	courses     []models.Course
	instructors []models.Instructor

	classByID      map[string]int
	courseByID     map[string]int
	instructorByID map[string]int
}

var recordValidator = validator.New()

// NewCatalog validates the records and indexes them by identifier. Input order is kept.
func NewCatalog(classes []models.Class, courses []models.Course, instructors []models.Instructor) (*Catalog, error) {
	c := &Catalog{
		classes:        cloneClasses(classes),
		courses:        append([]models.Course(nil), courses...),
		instructors:    cloneInstructors(instructors),
		classByID:      make(map[string]int, len(classes)),
		courseByID:     make(map[string]int, len(courses)),
		instructorByID: make(map[string]int, len(instructors)),
	}

	for i, course := range c.courses {
		if err := recordValidator.Struct(course); err != nil {
			return nil, invalidRecord("course", course.ID, err)
		}
		if _, dup := c.courseByID[course.ID]; dup {
			return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("duplicate course id %q", course.ID))
		}
		c.courseByID[course.ID] = i
	}

	for i, class := range c.classes {
		if err := recordValidator.Struct(class); err != nil {
			return nil, invalidRecord("class", class.ID, err)
		}
		if _, dup := c.classByID[class.ID]; dup {
			return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("duplicate class id %q", class.ID))
		}
		listed := make(map[string]struct{}, len(class.CourseIDs))
		for _, courseID := range class.CourseIDs {
			if _, ok := c.courseByID[courseID]; !ok {
				return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("class %q references unknown course %q", class.ID, courseID))
			}
			if _, dup := listed[courseID]; dup {
				return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("class %q lists course %q more than once", class.ID, courseID))
			}
			listed[courseID] = struct{}{}
		}
		c.classByID[class.ID] = i
	}

	for i, instructor := range c.instructors {
		if err := recordValidator.Struct(instructor); err != nil {
			return nil, invalidRecord("instructor", instructor.ID, err)
		}
		if _, dup := c.instructorByID[instructor.ID]; dup {
			return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("duplicate instructor id %q", instructor.ID))
		}
		for _, courseID := range instructor.CourseIDs {
			if _, ok := c.courseByID[courseID]; !ok {
				return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("instructor %q references unknown course %q", instructor.ID, courseID))
			}
		}
		c.instructorByID[instructor.ID] = i
	}

	return c, nil
}

// Class looks up a class by id.
func (c *Catalog) Class(id string) (models.Class, error) {
	idx, ok := c.classByID[id]
	if !ok {
		return models.Class{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("class %q not found", id))
	}
	return c.classes[idx], nil
}

// Course looks up a course by id.
func (c *Catalog) Course(id string) (models.Course, error) {
	idx, ok := c.courseByID[id]
	if !ok {
		return models.Course{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %q not found", id))
	}
	return c.courses[idx], nil
}

// Instructor looks up an instructor by id.
func (c *Catalog) Instructor(id string) (models.Instructor, error) {
	idx, ok := c.instructorByID[id]
	if !ok {
		return models.Instructor{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("instructor %q not found", id))
	}
	return c.instructors[idx], nil
}

// Classes returns the classes in input order.
func (c *Catalog) Classes() []models.Class {
	return cloneClasses(c.classes)
}

// Instructors returns the instructors in input order.
func (c *Catalog) Instructors() []models.Instructor {
	return cloneInstructors(c.instructors)
}

func invalidRecord(kind, id string, err error) error {
	return appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, fmt.Sprintf("invalid %s %q", kind, id))
}

func cloneClasses(in []models.Class) []models.Class {
	out := make([]models.Class, len(in))
	for i, class := range in {
		class.CourseIDs = append([]string(nil), class.CourseIDs...)
		out[i] = class
	}
	return out
}

func cloneInstructors(in []models.Instructor) []models.Instructor {
	out := make([]models.Instructor, len(in))
	for i, instructor := range in {
		instructor.CourseIDs = append([]string(nil), instructor.CourseIDs...)
		out[i] = instructor
	}
	return out
}

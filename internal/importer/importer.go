// Package importer reads the class, course and faculty catalogs from CSV files laid out the
// way schools export them: one header row, then one record per line. A list column such as
// courses holds comma separated ids inside a single quoted field.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// table is a parsed CSV file with its columns indexed by header name.
type table struct {
	name    string
	columns map[string]int
	rows    [][]string
}

func readTable(name string, r io.Reader, required ...string) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalid(name, 1, "missing header row")
		}
		return nil, invalid(name, 1, err.Error())
	}

	t := &table{name: name, columns: make(map[string]int, len(header))}
	for i, col := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		if key != "" {
			t.columns[key] = i
		}
	}
	for _, col := range required {
		if _, ok := t.columns[col]; !ok {
			return nil, invalid(name, 1, fmt.Sprintf("missing column %q", col))
		}
	}

	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, invalid(name, parseErr.StartLine, parseErr.Err.Error())
			}
			return nil, invalid(name, len(t.rows)+2, err.Error())
		}
		t.rows = append(t.rows, record)
	}
	return t, nil
}

// field returns the trimmed value of col in row, or "" when the row is short.
func (t *table) field(row []string, col string) string {
	idx, ok := t.columns[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	return lo.EveryBy(row, func(v string) bool { return strings.TrimSpace(v) == "" })
}

func splitList(raw string) []string {
	return lo.Compact(lo.Map(strings.Split(raw, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	}))
}

func invalid(file string, line int, msg string) error {
	return appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("%s line %d: %s", file, line, msg))
}

// LoadClasses reads classes.csv with columns class_id, courses and an optional class_name.
func LoadClasses(r io.Reader) ([]models.Class, error) {
	t, err := readTable("classes.csv", r, "class_id", "courses")
	if err != nil {
		return nil, err
	}
	classes := make([]models.Class, 0, len(t.rows))
	for i, row := range t.rows {
		if blank(row) {
			continue
		}
		line := i + 2
		id := t.field(row, "class_id")
		if id == "" {
			return nil, invalid(t.name, line, "class_id is empty")
		}
		courses := splitList(t.field(row, "courses"))
		if len(courses) == 0 {
			return nil, invalid(t.name, line, fmt.Sprintf("class %s lists no courses", id))
		}
		classes = append(classes, models.Class{ID: id, Name: t.field(row, "class_name"), CourseIDs: courses})
	}
	return classes, nil
}

// LoadCourses reads courses.csv with columns course_id, course_name and lectures_per_week.
func LoadCourses(r io.Reader) ([]models.Course, error) {
	t, err := readTable("courses.csv", r, "course_id", "course_name", "lectures_per_week")
	if err != nil {
		return nil, err
	}
	courses := make([]models.Course, 0, len(t.rows))
	for i, row := range t.rows {
		if blank(row) {
			continue
		}
		line := i + 2
		id := t.field(row, "course_id")
		if id == "" {
			return nil, invalid(t.name, line, "course_id is empty")
		}
		perWeek, err := strconv.Atoi(t.field(row, "lectures_per_week"))
		if err != nil || perWeek < 1 {
			return nil, invalid(t.name, line, fmt.Sprintf("course %s: lectures_per_week must be a positive integer", id))
		}
		courses = append(courses, models.Course{ID: id, Name: t.field(row, "course_name"), SessionsPerWeek: perWeek})
	}
	return courses, nil
}

// LoadInstructors reads faculty.csv with columns faculty_id, faculty_name and courses.
func LoadInstructors(r io.Reader) ([]models.Instructor, error) {
	t, err := readTable("faculty.csv", r, "faculty_id", "faculty_name", "courses")
	if err != nil {
		return nil, err
	}
	instructors := make([]models.Instructor, 0, len(t.rows))
	for i, row := range t.rows {
		if blank(row) {
			continue
		}
		line := i + 2
		id := t.field(row, "faculty_id")
		if id == "" {
			return nil, invalid(t.name, line, "faculty_id is empty")
		}
		instructors = append(instructors, models.Instructor{
			ID:        id,
			Name:      t.field(row, "faculty_name"),
			CourseIDs: splitList(t.field(row, "courses")),
		})
	}
	return instructors, nil
}

package scheduler

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// UnschedulablePolicy decides what happens when a placement exhausts its retry budget.
type UnschedulablePolicy string

const (
	// PolicyAbort stops the run and discards the partial timetable.
	PolicyAbort UnschedulablePolicy = "abort"
	// PolicySkipAndRecord records the session as unplaced and keeps going.
	PolicySkipAndRecord UnschedulablePolicy = "skip_and_record"
)

// CandidateOrder decides how eligible instructors are tried for a drawn cell.
type CandidateOrder string

const (
	CandidateOrderByID     CandidateOrder = "by_id"
	CandidateOrderShuffled CandidateOrder = "shuffled"
)

// DefaultMaxRetriesPerSession bounds placement attempts when Options leaves it unset.
const DefaultMaxRetriesPerSession = 1000

// Rand is the random source the engine draws cells and shuffles candidates with.
// *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// Placement pins a session to a cell before the randomized loop starts.
type Placement struct {
	ClassID      string `json:"class_id" validate:"required"`
	Day          string `json:"day" validate:"required"`
	Slot         string `json:"slot" validate:"required"`
	CourseID     string `json:"course_id" validate:"required"`
	InstructorID string `json:"instructor_id" validate:"required"`
}

// Unavailability marks an instructor as unable to teach at a cell.
type Unavailability struct {
	InstructorID string `json:"instructor_id" validate:"required"`
	Day          string `json:"day" validate:"required"`
	Slot         string `json:"slot" validate:"required"`
}

// Options configures one engine run.
type Options struct {
	Grid                 Grid
	MaxRetriesPerSession int
	OnUnschedulable      UnschedulablePolicy
	CandidateOrder       CandidateOrder
	// Seed makes the run reproducible. Ignored when Rand is set.
	Seed        *int64
	Rand        Rand
	Preassigned []Placement
	Unavailable []Unavailability
	Logger      *zap.Logger
}

// UnplacedSession is a session that could not be placed within its retry budget.
type UnplacedSession struct {
	ClassID  string `json:"class_id"`
	CourseID string `json:"course_id"`
	// Session is the 1-based index of the session within the pair's weekly requirement.
	Session  int    `json:"session"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason"`
}

// UnschedulableError identifies the (class, course) pair whose placement ran out of retries.
type UnschedulableError struct {
	ClassID  string
	CourseID string
	Session  int
	Attempts int
}

func (e *UnschedulableError) Error() string {
	return fmt.Sprintf("class %q course %q session %d not placed after %d attempts", e.ClassID, e.CourseID, e.Session, e.Attempts)
}

// Stats summarises the effort spent by a run.
type Stats struct {
	Required    int `json:"required"`
	Preassigned int `json:"preassigned"`
	Placed      int `json:"placed"`
	Unplaced    int `json:"unplaced"`
	Attempts    int `json:"attempts"`
}

// Result is the frozen outcome of a run.
type Result struct {
	Schedule *Schedule
	Unplaced []UnplacedSession
	// Seed is the seed actually used, or nil when an external Rand was injected.
	Seed  *int64
	Stats Stats
}

// Complete reports whether every required session was placed.
func (r *Result) Complete() bool {
	return len(r.Unplaced) == 0
}

type pairKey struct {
	classID  string
	courseID string
}

// Engine owns the timetable and availability index of a single run. All writes go
// through place so the busy flags always mirror the timetable.
type Engine struct {
	catalog  *Catalog
	selector *CandidateSelector
	opts     Options
	rng      Rand
	seed     *int64
	logger   *zap.Logger

	cells     []Cell
	timetable *Timetable
	index     *AvailabilityIndex
	placed    map[pairKey]int
	ran       bool
}

// NewEngine validates the options against the catalog.
func NewEngine(catalog *Catalog, opts Options) (*Engine, error) {
	if catalog == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "catalog is required")
	}
	if err := opts.Grid.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxRetriesPerSession == 0 {
		opts.MaxRetriesPerSession = DefaultMaxRetriesPerSession
	}
	if opts.MaxRetriesPerSession < 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "maxRetriesPerSession must be positive")
	}
	switch opts.OnUnschedulable {
	case "":
		opts.OnUnschedulable = PolicySkipAndRecord
	case PolicyAbort, PolicySkipAndRecord:
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unknown unschedulable policy %q", opts.OnUnschedulable))
	}
	switch opts.CandidateOrder {
	case "":
		opts.CandidateOrder = CandidateOrderByID
	case CandidateOrderByID, CandidateOrderShuffled:
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unknown candidate order %q", opts.CandidateOrder))
	}
	opts.Grid = opts.Grid.clone()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rng := opts.Rand
	var seed *int64
	if rng == nil {
		s := time.Now().UnixNano()
		if opts.Seed != nil {
			s = *opts.Seed
		}
		seed = &s
		rng = rand.New(rand.NewSource(s))
	}

	classIDs := make([]string, 0, len(catalog.classes))
	for _, class := range catalog.classes {
		classIDs = append(classIDs, class.ID)
	}
	timetable := newTimetable(opts.Grid, classIDs)

	return &Engine{
		catalog:   catalog,
		selector:  NewCandidateSelector(catalog),
		opts:      opts,
		rng:       rng,
		seed:      seed,
		logger:    logger,
		cells:     opts.Grid.assignable(),
		timetable: timetable,
		index:     NewAvailabilityIndex(timetable),
		placed:    make(map[pairKey]int),
	}, nil
}

// Run schedules every (class, course) pair in input order. It may be called once.
//
// Configuration errors (invalid pre-assignments, a course nobody can teach) are returned
// before the timetable is touched. In abort mode an exhausted placement returns an
// ErrUnschedulable wrapping *UnschedulableError and no result.
func (e *Engine) Run() (*Result, error) {
	if e.ran {
		return nil, appErrors.Clone(appErrors.ErrInternal, "engine already ran")
	}
	e.ran = true

	candidates, required, err := e.prepare()
	if err != nil {
		return nil, err
	}
	blocks, pins, err := e.resolveFixed(required)
	if err != nil {
		return nil, err
	}

	e.logger.Info("timetable run started",
		zap.Int("classes", len(e.catalog.classes)),
		zap.Int("cells", len(e.cells)),
		zap.Int("max_retries", e.opts.MaxRetriesPerSession),
		zap.String("policy", string(e.opts.OnUnschedulable)),
	)

	for _, b := range blocks {
		e.index.Block(b.instructorID, b.cell)
	}
	stats := Stats{}
	for _, p := range pins {
		if err := e.place(p.classID, p.cell, p.session); err != nil {
			return nil, err
		}
		stats.Preassigned++
	}

	var unplaced []UnplacedSession
	for _, class := range e.catalog.classes {
		for _, courseID := range class.CourseIDs {
			key := pairKey{classID: class.ID, courseID: courseID}
			need := required[key]
			stats.Required += need
			for n := e.placed[key]; n < need; n++ {
				attempts, err := e.placeOne(class.ID, courseID, candidates[courseID])
				stats.Attempts += attempts
				if err == nil {
					stats.Placed++
					continue
				}
				if !isUnschedulable(err) || e.opts.OnUnschedulable == PolicyAbort {
					e.logger.Warn("timetable run aborted", zap.String("class_id", class.ID), zap.String("course_id", courseID), zap.Error(err))
					return nil, err
				}
				e.logger.Warn("session left unplaced",
					zap.String("class_id", class.ID),
					zap.String("course_id", courseID),
					zap.Int("session", n+1),
					zap.Int("attempts", attempts),
				)
				unplaced = append(unplaced, UnplacedSession{
					ClassID:  class.ID,
					CourseID: courseID,
					Session:  n + 1,
					Attempts: attempts,
					Reason:   fmt.Sprintf("no free (day, slot, instructor) found after %d attempts", attempts),
				})
			}
		}
	}
	stats.Unplaced = len(unplaced)

	e.logger.Info("timetable run finished",
		zap.Int("placed", stats.Placed),
		zap.Int("unplaced", stats.Unplaced),
		zap.Int("attempts", stats.Attempts),
	)

	return &Result{
		Schedule: newSchedule(e.catalog, e.timetable),
		Unplaced: unplaced,
		Seed:     e.seed,
		Stats:    stats,
	}, nil
}

// placeOne draws cells until the class cell and some eligible instructor are free there,
// or the retry budget runs out. It returns the number of draws made.
func (e *Engine) placeOne(classID, courseID string, eligible []models.Instructor) (int, error) {
	budget := e.opts.MaxRetriesPerSession
	for attempt := 1; attempt <= budget; attempt++ {
		cell := e.cells[e.rng.Intn(len(e.cells))]
		if !e.index.IsClassSlotFree(classID, cell) {
			continue
		}
		for _, instructor := range e.ordered(eligible) {
			if !e.index.IsInstructorFree(instructor.ID, cell) {
				continue
			}
			if err := e.place(classID, cell, models.Session{CourseID: courseID, InstructorID: instructor.ID}); err != nil {
				return attempt, err
			}
			return attempt, nil
		}
	}
	cause := &UnschedulableError{ClassID: classID, CourseID: courseID, Session: e.placed[pairKey{classID, courseID}] + 1, Attempts: budget}
	return budget, appErrors.Wrap(cause, appErrors.ErrUnschedulable.Code, appErrors.ErrUnschedulable.Status, "session could not be scheduled")
}

// place is the only mutation path: busy flag first, then the cell.
func (e *Engine) place(classID string, cell Cell, session models.Session) error {
	if !e.index.IsClassSlotFree(classID, cell) {
		day, slot := e.opts.Grid.Labels(cell)
		return appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("cell %s %s of class %q is taken", day, slot, classID))
	}
	if err := e.index.MarkBusy(session.InstructorID, cell); err != nil {
		return err
	}
	if err := e.timetable.put(classID, cell, session); err != nil {
		return err
	}
	e.placed[pairKey{classID: classID, courseID: session.CourseID}]++
	return nil
}

func (e *Engine) ordered(eligible []models.Instructor) []models.Instructor {
	if e.opts.CandidateOrder != CandidateOrderShuffled || len(eligible) < 2 {
		return eligible
	}
	shuffled := append([]models.Instructor(nil), eligible...)
	e.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled
}

// prepare resolves eligible instructors for every course in use and the per-pair demand.
func (e *Engine) prepare() (map[string][]models.Instructor, map[pairKey]int, error) {
	candidates := make(map[string][]models.Instructor)
	required := make(map[pairKey]int)
	for _, class := range e.catalog.classes {
		for _, courseID := range class.CourseIDs {
			if _, ok := candidates[courseID]; !ok {
				eligible, err := e.selector.EligibleInstructors(courseID)
				if err != nil {
					return nil, nil, err
				}
				candidates[courseID] = eligible
			}
			course, err := e.catalog.Course(courseID)
			if err != nil {
				return nil, nil, err
			}
			required[pairKey{classID: class.ID, courseID: courseID}] = course.SessionsPerWeek
		}
	}
	return candidates, required, nil
}

type block struct {
	instructorID string
	cell         Cell
}

type pin struct {
	classID string
	cell    Cell
	session models.Session
}

// resolveFixed checks pre-assignments and unavailability windows without mutating anything.
func (e *Engine) resolveFixed(required map[pairKey]int) ([]block, []pin, error) {
	blocks := make([]block, 0, len(e.opts.Unavailable))
	blocked := make(map[string]map[Cell]struct{})
	for _, u := range e.opts.Unavailable {
		if _, err := e.catalog.Instructor(u.InstructorID); err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unavailability references unknown instructor %q", u.InstructorID))
		}
		cell, err := e.opts.Grid.Resolve(u.Day, u.Slot)
		if err != nil {
			return nil, nil, err
		}
		blocks = append(blocks, block{instructorID: u.InstructorID, cell: cell})
		addCell(blocked, u.InstructorID, cell)
	}

	pins := make([]pin, 0, len(e.opts.Preassigned))
	classCells := make(map[string]map[Cell]struct{})
	instructorCells := make(map[string]map[Cell]struct{})
	perPair := make(map[pairKey]int)
	for _, p := range e.opts.Preassigned {
		cell, err := e.opts.Grid.Resolve(p.Day, p.Slot)
		if err != nil {
			return nil, nil, err
		}
		if e.opts.Grid.IsBreak(cell.Slot) {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("cannot pre-assign class %q into the break slot", p.ClassID))
		}
		key := pairKey{classID: p.ClassID, courseID: p.CourseID}
		need, ok := required[key]
		if !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("class %q does not take course %q", p.ClassID, p.CourseID))
		}
		instructor, err := e.catalog.Instructor(p.InstructorID)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("pre-assignment references unknown instructor %q", p.InstructorID))
		}
		if !instructor.Teaches(p.CourseID) {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("instructor %q is not qualified for course %q", p.InstructorID, p.CourseID))
		}
		if _, ok := blocked[p.InstructorID][cell]; ok {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("instructor %q is unavailable at %s %s", p.InstructorID, p.Day, p.Slot))
		}
		if !addCell(classCells, p.ClassID, cell) {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("class %q pre-assigned twice at %s %s", p.ClassID, p.Day, p.Slot))
		}
		if !addCell(instructorCells, p.InstructorID, cell) {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("instructor %q pre-assigned twice at %s %s", p.InstructorID, p.Day, p.Slot))
		}
		perPair[key]++
		if perPair[key] > need {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("class %q has more pre-assigned %q sessions than the %d required", p.ClassID, p.CourseID, need))
		}
		pins = append(pins, pin{classID: p.ClassID, cell: cell, session: models.Session{CourseID: p.CourseID, InstructorID: p.InstructorID}})
	}
	return blocks, pins, nil
}

func addCell(m map[string]map[Cell]struct{}, id string, c Cell) bool {
	cells, ok := m[id]
	if !ok {
		cells = make(map[Cell]struct{})
		m[id] = cells
	}
	if _, dup := cells[c]; dup {
		return false
	}
	cells[c] = struct{}{}
	return true
}

func isUnschedulable(err error) bool {
	return errors.Is(err, appErrors.ErrUnschedulable)
}

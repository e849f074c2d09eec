package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

type timetableClassReader interface {
	ListAll(ctx context.Context) ([]models.Class, error)
}

type timetableCourseReader interface {
	ListAll(ctx context.Context) ([]models.Course, error)
}

type timetableInstructorReader interface {
	ListAll(ctx context.Context) ([]models.Instructor, error)
}

type timetableRunStore interface {
	Create(ctx context.Context, run *models.TimetableRun, sessions []models.TimetableSession) error
	FindByID(ctx context.Context, id string) (*models.TimetableRun, error)
	ListSessions(ctx context.Context, runID string) ([]models.TimetableSession, error)
}

type timetableCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

// TimetableServiceConfig carries the engine defaults applied when a request leaves a field empty.
type TimetableServiceConfig struct {
	Days            []string
	Slots           []string
	BreakSlot       string
	MaxRetries      int
	OnUnschedulable string
	CandidateOrder  string
	Seed            *int64
	CacheTTL        time.Duration
}

// TimetableService runs the engine against the stored catalog and persists each run.
type TimetableService struct {
	classes     timetableClassReader
	courses     timetableCourseReader
	instructors timetableInstructorReader
	runs        timetableRunStore
	cache       timetableCache
	metrics     *MetricsService
	validate    *validator.Validate
	logger      *zap.Logger
	cfg         TimetableServiceConfig
}

// runMeta is stored alongside a run so its view can be rebuilt without re-running the engine.
type runMeta struct {
	Grid            scheduler.Grid              `json:"grid"`
	ClassIDs        []string                    `json:"class_ids"`
	Unplaced        []scheduler.UnplacedSession `json:"unplaced"`
	Stats           scheduler.Stats             `json:"stats"`
	MaxRetries      int                         `json:"max_retries"`
	OnUnschedulable string                      `json:"on_unschedulable"`
	CandidateOrder  string                      `json:"candidate_order"`
}

// NewTimetableService wires the timetable service.
func NewTimetableService(
	classes timetableClassReader,
	courses timetableCourseReader,
	instructors timetableInstructorReader,
	runs timetableRunStore,
	cache timetableCache,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableServiceConfig,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cache == nil {
		cache = NewCacheService(nil, metrics, cfg.CacheTTL, logger, false)
	}
	return &TimetableService{
		classes:     classes,
		courses:     courses,
		instructors: instructors,
		runs:        runs,
		cache:       cache,
		metrics:     metrics,
		validate:    validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// Generate runs the engine once, stores the outcome and returns its view.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableView, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable request")
	}

	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	opts := s.options(req)

	engine, err := scheduler.NewEngine(catalog, opts)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	result, err := engine.Run()
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveTimetableRun("failed", 0, 0, 0, elapsed)
		s.logger.Sugar().Warnw("timetable run failed", "error", err)
		return nil, err
	}

	outcome := "complete"
	if !result.Complete() {
		outcome = "partial"
	}
	s.metrics.ObserveTimetableRun(outcome, result.Stats.Placed+result.Stats.Preassigned, result.Stats.Unplaced, result.Stats.Attempts, elapsed)

	run, err := s.persist(ctx, opts, result)
	if err != nil {
		return nil, err
	}

	view := NewTimetableView(catalog, result.Schedule, result.Unplaced)
	decorateView(&view, run, result.Stats)
	s.cache.Set(ctx, timetableCacheKey(run.ID), view, s.cfg.CacheTTL)

	s.logger.Sugar().Infow("timetable generated",
		"run_id", run.ID,
		"status", run.Status,
		"seed", run.Seed,
		"unplaced", result.Stats.Unplaced,
		"duration_ms", elapsed.Milliseconds(),
	)
	return &view, nil
}

// Get returns a stored run, served from cache when possible.
func (s *TimetableService) Get(ctx context.Context, runID string) (*dto.TimetableView, error) {
	var cached dto.TimetableView
	if s.cache.Get(ctx, timetableCacheKey(runID), &cached) {
		return &cached, nil
	}

	run, err := s.runs.FindByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}
	var meta runMeta
	if err := run.Meta.Unmarshal(&meta); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode timetable run")
	}
	rows, err := s.runs.ListSessions(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable sessions")
	}

	placements := make([]scheduler.PlacedSession, 0, len(rows))
	for _, row := range rows {
		placements = append(placements, scheduler.PlacedSession{
			ClassID:      row.ClassID,
			Day:          row.Day,
			Slot:         row.Slot,
			CourseID:     row.CourseID,
			InstructorID: row.InstructorID,
		})
	}
	schedule, err := scheduler.NewScheduleFromPlacements(meta.Grid, meta.ClassIDs, placements)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored timetable is inconsistent")
	}

	// Display names only; the stored run stays valid when the catalog has moved on.
	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		s.logger.Sugar().Warnw("catalog unavailable, rendering ids", "run_id", runID, "error", err)
		catalog = nil
	}

	view := NewTimetableView(catalog, schedule, meta.Unplaced)
	decorateView(&view, run, meta.Stats)
	s.cache.Set(ctx, timetableCacheKey(run.ID), view, s.cfg.CacheTTL)
	return &view, nil
}

// ForClass returns one class of a stored run.
func (s *TimetableService) ForClass(ctx context.Context, runID, classID string) (*dto.ClassTimetable, error) {
	view, err := s.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	class, ok := view.Class(classID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("class %q not found in timetable", classID))
	}
	return &class, nil
}

func (s *TimetableService) loadCatalog(ctx context.Context) (*scheduler.Catalog, error) {
	classes, err := s.classes.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes")
	}
	courses, err := s.courses.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	instructors, err := s.instructors.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructors")
	}
	return scheduler.NewCatalog(classes, courses, instructors)
}

func (s *TimetableService) options(req dto.GenerateTimetableRequest) scheduler.Options {
	opts := scheduler.Options{
		Grid: scheduler.Grid{
			Days:      s.cfg.Days,
			Slots:     s.cfg.Slots,
			BreakSlot: s.cfg.BreakSlot,
		},
		MaxRetriesPerSession: s.cfg.MaxRetries,
		OnUnschedulable:      scheduler.UnschedulablePolicy(s.cfg.OnUnschedulable),
		CandidateOrder:       scheduler.CandidateOrder(s.cfg.CandidateOrder),
		Seed:                 s.cfg.Seed,
		Logger:               s.logger,
	}
	if len(req.Days) > 0 {
		opts.Grid.Days = req.Days
	}
	if len(req.Slots) > 0 {
		opts.Grid.Slots = req.Slots
		if req.BreakSlot == nil && !lo.Contains(req.Slots, opts.Grid.BreakSlot) {
			opts.Grid.BreakSlot = ""
		}
	}
	if req.BreakSlot != nil {
		opts.Grid.BreakSlot = *req.BreakSlot
	}
	if req.MaxRetries > 0 {
		opts.MaxRetriesPerSession = req.MaxRetries
	}
	if req.OnUnschedulable != "" {
		opts.OnUnschedulable = scheduler.UnschedulablePolicy(req.OnUnschedulable)
	}
	if req.CandidateOrder != "" {
		opts.CandidateOrder = scheduler.CandidateOrder(req.CandidateOrder)
	}
	if req.Seed != nil {
		seed := *req.Seed
		opts.Seed = &seed
	}
	for _, p := range req.Preassigned {
		opts.Preassigned = append(opts.Preassigned, scheduler.Placement{
			ClassID:      p.ClassID,
			Day:          p.Day,
			Slot:         p.Slot,
			CourseID:     p.CourseID,
			InstructorID: p.InstructorID,
		})
	}
	for _, u := range req.Unavailable {
		opts.Unavailable = append(opts.Unavailable, scheduler.Unavailability{
			InstructorID: u.InstructorID,
			Day:          u.Day,
			Slot:         u.Slot,
		})
	}
	return opts
}

func (s *TimetableService) persist(ctx context.Context, opts scheduler.Options, result *scheduler.Result) (*models.TimetableRun, error) {
	schedule := result.Schedule
	meta, err := json.Marshal(runMeta{
		Grid:            schedule.Grid(),
		ClassIDs:        schedule.Classes(),
		Unplaced:        result.Unplaced,
		Stats:           result.Stats,
		MaxRetries:      opts.MaxRetriesPerSession,
		OnUnschedulable: string(opts.OnUnschedulable),
		CandidateOrder:  string(opts.CandidateOrder),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable run")
	}

	run := &models.TimetableRun{Status: runStatus(len(result.Unplaced)), Meta: types.JSONText(meta)}
	if result.Seed != nil {
		run.Seed = *result.Seed
	}
	sessions := lo.Map(schedule.Placements(), func(p scheduler.PlacedSession, _ int) models.TimetableSession {
		return models.TimetableSession{
			ClassID:      p.ClassID,
			Day:          p.Day,
			Slot:         p.Slot,
			CourseID:     p.CourseID,
			InstructorID: p.InstructorID,
		}
	})
	if err := s.runs.Create(ctx, run, sessions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable run")
	}
	return run, nil
}

func decorateView(view *dto.TimetableView, run *models.TimetableRun, stats scheduler.Stats) {
	view.RunID = run.ID
	view.Status = string(run.Status)
	seed := run.Seed
	view.Seed = &seed
	createdAt := run.CreatedAt
	view.CreatedAt = &createdAt
	view.Stats = &dto.TimetableStats{
		Required:    stats.Required,
		Preassigned: stats.Preassigned,
		Placed:      stats.Placed,
		Unplaced:    stats.Unplaced,
		Attempts:    stats.Attempts,
	}
}

func runStatus(unplaced int) models.TimetableRunStatus {
	if unplaced > 0 {
		return models.TimetableRunStatusPartial
	}
	return models.TimetableRunStatusComplete
}

func timetableCacheKey(runID string) string {
	return "timetable:view:" + runID
}

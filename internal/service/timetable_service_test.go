package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

type classListStub struct {
	items []models.Class
	err   error
}

func (s classListStub) ListAll(context.Context) ([]models.Class, error) { return s.items, s.err }

type courseListStub struct{ items []models.Course }

func (s courseListStub) ListAll(context.Context) ([]models.Course, error) { return s.items, nil }

type instructorListStub struct{ items []models.Instructor }

func (s instructorListStub) ListAll(context.Context) ([]models.Instructor, error) {
	return s.items, nil
}

type memoryRunStore struct {
	runs     map[string]models.TimetableRun
	sessions map[string][]models.TimetableSession
	creates  int
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{runs: map[string]models.TimetableRun{}, sessions: map[string][]models.TimetableSession{}}
}

func (s *memoryRunStore) Create(_ context.Context, run *models.TimetableRun, sessions []models.TimetableSession) error {
	s.creates++
	run.ID = fmt.Sprintf("run-%d", s.creates)
	run.CreatedAt = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	s.runs[run.ID] = *run
	s.sessions[run.ID] = append([]models.TimetableSession(nil), sessions...)
	return nil
}

func (s *memoryRunStore) FindByID(_ context.Context, id string) (*models.TimetableRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("find timetable run: %w", sql.ErrNoRows)
	}
	return &run, nil
}

func (s *memoryRunStore) ListSessions(_ context.Context, runID string) ([]models.TimetableSession, error) {
	return s.sessions[runID], nil
}

type memoryCacheRepo struct {
	items map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: map[string][]byte{}}
}

func (r *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := r.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (r *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.items[key] = payload
	return nil
}

type timetableFixture struct {
	service *TimetableService
	runs    *memoryRunStore
	cache   *memoryCacheRepo
	metrics *MetricsService
}

func testTimetableConfig() TimetableServiceConfig {
	return TimetableServiceConfig{
		Days:      []string{"MON", "TUE"},
		Slots:     []string{"S1", "S2", "Break", "S3"},
		BreakSlot: "Break",
		CacheTTL:  time.Minute,
	}
}

func newTimetableFixture(t *testing.T, classes timetableClassReader) timetableFixture {
	t.Helper()
	if classes == nil {
		classes = classListStub{items: []models.Class{
			{ID: "10A", Name: "Ten A", CourseIDs: []string{"math", "bio"}},
			{ID: "10B", Name: "Ten B", CourseIDs: []string{"math"}},
		}}
	}
	courses := courseListStub{items: []models.Course{
		{ID: "math", Name: "Mathematics", SessionsPerWeek: 2},
		{ID: "bio", Name: "Biology", SessionsPerWeek: 1},
	}}
	instructors := instructorListStub{items: []models.Instructor{
		{ID: "t1", Name: "Ana", CourseIDs: []string{"math"}},
		{ID: "t2", Name: "Budi", CourseIDs: []string{"math", "bio"}},
	}}
	runs := newMemoryRunStore()
	cacheRepo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, zap.NewNop(), true)
	svc := NewTimetableService(classes, courses, instructors, runs, cache, metrics, nil, zap.NewNop(), testTimetableConfig())
	return timetableFixture{service: svc, runs: runs, cache: cacheRepo, metrics: metrics}
}

func seedPtr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }

func TestTimetableServiceGenerateComplete(t *testing.T) {
	fx := newTimetableFixture(t, nil)

	view, err := fx.service.Generate(context.Background(), dto.GenerateTimetableRequest{Seed: seedPtr(11)})
	require.NoError(t, err)

	assert.Equal(t, "COMPLETE", view.Status)
	assert.Equal(t, "run-1", view.RunID)
	require.NotNil(t, view.Seed)
	assert.Equal(t, int64(11), *view.Seed)
	require.NotNil(t, view.Stats)
	assert.Equal(t, 5, view.Stats.Required)
	assert.Equal(t, 5, view.Stats.Placed)
	assert.Empty(t, view.Unplaced)
	assert.Len(t, fx.runs.sessions["run-1"], 5)
	assert.Contains(t, fx.cache.items, "timetable:view:run-1")

	require.Len(t, view.Classes, 2)
	assert.Equal(t, "Ten A", view.Classes[0].ClassName)
	sessions := 0
	for _, row := range view.Classes[0].Rows {
		require.Len(t, row.Cells, 4)
		assert.Equal(t, dto.TimetableCellBreak, row.Cells[2].Kind)
		assert.Equal(t, "Break", row.Cells[2].Label)
		for _, cell := range row.Cells {
			switch cell.Kind {
			case dto.TimetableCellSession:
				sessions++
				assert.Equal(t, fmt.Sprintf("%s (%s)", cell.CourseName, cell.InstructorName), cell.Label)
			case dto.TimetableCellFree:
				assert.Equal(t, "Free", cell.Label)
			}
		}
	}
	assert.Equal(t, 3, sessions)

	snapshot := fx.metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.TimetableRuns)
	assert.Equal(t, uint64(5), snapshot.SessionsPlaced)
}

func TestTimetableServiceGeneratePartial(t *testing.T) {
	fx := newTimetableFixture(t, nil)

	view, err := fx.service.Generate(context.Background(), dto.GenerateTimetableRequest{
		Days:       []string{"MON"},
		Slots:      []string{"S1"},
		BreakSlot:  strPtr(""),
		MaxRetries: 3,
		Seed:       seedPtr(1),
	})
	require.NoError(t, err)

	assert.Equal(t, "PARTIAL", view.Status)
	require.Len(t, view.Unplaced, 3)
	assert.Equal(t, dto.UnplacedSession{ClassID: "10A", CourseID: "math", Session: 2, Attempts: 3, Reason: view.Unplaced[0].Reason}, view.Unplaced[0])
	assert.Equal(t, "bio", view.Unplaced[1].CourseID)
	assert.Equal(t, "10B", view.Unplaced[2].ClassID)
	assert.Equal(t, 2, view.Stats.Placed)
	assert.Len(t, fx.runs.sessions["run-1"], 2)
	assert.Equal(t, models.TimetableRunStatusPartial, fx.runs.runs["run-1"].Status)
	assert.Equal(t, uint64(1), fx.metrics.Snapshot().PartialRuns)
}

func TestTimetableServiceSlotOverrideBreak(t *testing.T) {
	cases := map[string]struct {
		slots     []string
		breakSlot *string
		wantBreak string
	}{
		"configured break dropped": {slots: []string{"P1", "P2", "P3"}, wantBreak: ""},
		"configured break kept":    {slots: []string{"P1", "Break", "P2"}, wantBreak: "Break"},
		"explicit break":           {slots: []string{"P1", "P2", "Lunch"}, breakSlot: strPtr("Lunch"), wantBreak: "Lunch"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fx := newTimetableFixture(t, nil)
			view, err := fx.service.Generate(context.Background(), dto.GenerateTimetableRequest{
				Slots:     tc.slots,
				BreakSlot: tc.breakSlot,
				Seed:      seedPtr(5),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.wantBreak, view.BreakSlot)
			assert.Equal(t, tc.slots, view.Slots)
			assert.Equal(t, "COMPLETE", view.Status)
		})
	}
}

func TestTimetableServiceGenerateAbortStoresNothing(t *testing.T) {
	fx := newTimetableFixture(t, nil)

	_, err := fx.service.Generate(context.Background(), dto.GenerateTimetableRequest{
		Days:            []string{"MON"},
		Slots:           []string{"S1"},
		BreakSlot:       strPtr(""),
		MaxRetries:      3,
		OnUnschedulable: "abort",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnschedulable))
	assert.Zero(t, fx.runs.creates)
	assert.Empty(t, fx.cache.items)
}

func TestTimetableServiceGenerateRejectsInput(t *testing.T) {
	cases := map[string]struct {
		req  dto.GenerateTimetableRequest
		code string
	}{
		"unknown policy":       {req: dto.GenerateTimetableRequest{OnUnschedulable: "maybe"}, code: appErrors.ErrValidation.Code},
		"unknown order":        {req: dto.GenerateTimetableRequest{CandidateOrder: "alphabetical"}, code: appErrors.ErrValidation.Code},
		"missing pin field":    {req: dto.GenerateTimetableRequest{Preassigned: []dto.PlacementRequest{{ClassID: "10A"}}}, code: appErrors.ErrValidation.Code},
		"break outside slots":  {req: dto.GenerateTimetableRequest{BreakSlot: strPtr("Lunch")}, code: appErrors.ErrInvalidInput.Code},
		"pin on unknown class": {req: dto.GenerateTimetableRequest{Preassigned: []dto.PlacementRequest{{ClassID: "12C", Day: "MON", Slot: "S1", CourseID: "math", InstructorID: "t1"}}}, code: appErrors.ErrInvalidInput.Code},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fx := newTimetableFixture(t, nil)
			_, err := fx.service.Generate(context.Background(), tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
			assert.Zero(t, fx.runs.creates)
		})
	}
}

func TestTimetableServiceGenerateCatalogFailure(t *testing.T) {
	fx := newTimetableFixture(t, classListStub{err: errors.New("db down")})

	_, err := fx.service.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceGetRebuildsStoredRun(t *testing.T) {
	fx := newTimetableFixture(t, nil)
	generated, err := fx.service.Generate(context.Background(), dto.GenerateTimetableRequest{Seed: seedPtr(5)})
	require.NoError(t, err)

	delete(fx.cache.items, timetableCacheKey(generated.RunID))
	loaded, err := fx.service.Get(context.Background(), generated.RunID)
	require.NoError(t, err)
	assert.Equal(t, *generated, *loaded)
	assert.Contains(t, fx.cache.items, timetableCacheKey(generated.RunID))
}

func TestTimetableServiceGetServesCache(t *testing.T) {
	fx := newTimetableFixture(t, nil)
	require.NoError(t, fx.cache.Set(context.Background(), timetableCacheKey("run-9"), dto.TimetableView{RunID: "run-9", Status: "COMPLETE"}, time.Minute))

	view, err := fx.service.Get(context.Background(), "run-9")
	require.NoError(t, err)
	assert.Equal(t, "run-9", view.RunID)
	assert.Equal(t, uint64(1), fx.metrics.Snapshot().CacheHits)
}

func TestTimetableServiceGetMissing(t *testing.T) {
	fx := newTimetableFixture(t, nil)

	_, err := fx.service.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestTimetableServiceGetFallsBackToIDs(t *testing.T) {
	fx := newTimetableFixture(t, nil)
	generated, err := fx.service.Generate(context.Background(), dto.GenerateTimetableRequest{Seed: seedPtr(3)})
	require.NoError(t, err)

	broken := NewTimetableService(classListStub{err: errors.New("db down")}, courseListStub{}, instructorListStub{}, fx.runs, nil, nil, nil, zap.NewNop(), testTimetableConfig())
	view, err := broken.Get(context.Background(), generated.RunID)
	require.NoError(t, err)

	class, ok := view.Class("10A")
	require.True(t, ok)
	assert.Equal(t, "10A", class.ClassName)
	for _, row := range class.Rows {
		for _, cell := range row.Cells {
			if cell.Kind == dto.TimetableCellSession {
				assert.Equal(t, fmt.Sprintf("%s (%s)", cell.CourseID, cell.InstructorID), cell.Label)
			}
		}
	}
}

func TestTimetableServiceForClass(t *testing.T) {
	fx := newTimetableFixture(t, nil)
	generated, err := fx.service.Generate(context.Background(), dto.GenerateTimetableRequest{Seed: seedPtr(2)})
	require.NoError(t, err)

	class, err := fx.service.ForClass(context.Background(), generated.RunID, "10B")
	require.NoError(t, err)
	assert.Equal(t, "Ten B", class.ClassName)
	assert.Len(t, class.Rows, 2)

	_, err = fx.service.ForClass(context.Background(), generated.RunID, "12C")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

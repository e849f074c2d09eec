package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/middleware"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/service"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

type tokenStub struct{}

func (tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	switch token {
	case "admin":
		return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, nil
	case "teacher":
		return &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}, nil
	}
	return nil, appErrors.ErrUnauthorized
}

type timetableServiceMock struct {
	lastRequest dto.GenerateTimetableRequest
	view        *dto.TimetableView
	err         error
}

func (m *timetableServiceMock) Generate(_ context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableView, error) {
	m.lastRequest = req
	return m.view, m.err
}

func (m *timetableServiceMock) Get(_ context.Context, runID string) (*dto.TimetableView, error) {
	if m.view == nil || runID != m.view.RunID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
	}
	return m.view, nil
}

func (m *timetableServiceMock) ForClass(ctx context.Context, runID, classID string) (*dto.ClassTimetable, error) {
	view, err := m.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	class, ok := view.Class(classID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	return &class, nil
}

type rendererMock struct{}

func (rendererMock) Render(_ context.Context, runID string, format models.ExportFormat) ([]byte, error) {
	if runID != "run-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
	}
	return []byte("rendered " + string(format)), nil
}

type exportJobServiceMock struct {
	actor    string
	download *service.ExportDownload
}

func (m *exportJobServiceMock) CreateJob(_ context.Context, runID string, req dto.ExportTimetableRequest, actorID string) (*dto.ExportJobResponse, error) {
	m.actor = actorID
	return &dto.ExportJobResponse{ID: "job-1", RunID: runID, Format: req.Format, Status: "QUEUED"}, nil
}

func (m *exportJobServiceMock) GetStatus(_ context.Context, id string) (*dto.ExportStatusResponse, error) {
	if id != "job-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return &dto.ExportStatusResponse{ID: id, RunID: "run-1", Format: "csv", Status: "FINISHED"}, nil
}

func (m *exportJobServiceMock) ResolveDownload(_ context.Context, token string) (*service.ExportDownload, error) {
	if token != "good" || m.download == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	return m.download, nil
}

func sampleView() *dto.TimetableView {
	return &dto.TimetableView{
		RunID:  "run-1",
		Status: "PARTIAL",
		Days:   []string{"MON"},
		Slots:  []string{"S1"},
		Classes: []dto.ClassTimetable{{ClassID: "10A", ClassName: "10A", Rows: []dto.TimetableRow{{
			Day:   "MON",
			Cells: []dto.TimetableCell{{Slot: "S1", Kind: dto.TimetableCellFree, Label: "Free"}},
		}}}},
		Unplaced: []dto.UnplacedSession{{ClassID: "10A", CourseID: "math", Session: 1, Attempts: 10, Reason: "retry budget exhausted"}},
	}
}

func buildRouter(timetables *timetableServiceMock, exports *exportJobServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.WithResponseMeta())
	Routes{
		Timetables: NewTimetableHandler(timetables, rendererMock{}),
		Exports:    NewExportHandler(exports),
		Metrics:    NewMetricsHandler(service.NewMetricsService(), nil),
		Auth:       tokenStub{},
	}.Register(router.Group("/api/v1"))
	return router
}

func perform(router *gin.Engine, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTimetableRoutes(t *testing.T) {
	svc := &timetableServiceMock{view: sampleView()}
	router := buildRouter(svc, &exportJobServiceMock{})

	t.Run("generate as admin", func(t *testing.T) {
		w := perform(router, http.MethodPost, "/api/v1/timetables", "admin", []byte(`{"seed":7,"maxRetries":50}`))
		require.Equal(t, http.StatusCreated, w.Code)
		require.NotNil(t, svc.lastRequest.Seed)
		assert.Equal(t, int64(7), *svc.lastRequest.Seed)
		assert.Equal(t, 50, svc.lastRequest.MaxRetries)
		assert.Contains(t, w.Body.String(), `"runId":"run-1"`)
	})

	t.Run("generate without body", func(t *testing.T) {
		w := perform(router, http.MethodPost, "/api/v1/timetables", "admin", nil)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("generate rejects malformed json", func(t *testing.T) {
		w := perform(router, http.MethodPost, "/api/v1/timetables", "admin", []byte(`{"seed":`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("generate forbidden for teacher", func(t *testing.T) {
		w := perform(router, http.MethodPost, "/api/v1/timetables", "teacher", []byte(`{}`))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("get requires token", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/timetables/run-1", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("get reports unplaced count", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/timetables/run-1", "teacher", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var payload struct {
			Data dto.TimetableView      `json:"data"`
			Meta map[string]interface{} `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
		assert.Equal(t, "PARTIAL", payload.Data.Status)
		assert.EqualValues(t, 1, payload.Meta["unplaced"])
	})

	t.Run("get missing run", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/timetables/run-9", "teacher", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("class timetable", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/timetables/run-1/classes/10A", "teacher", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"classId":"10A"`)

		w = perform(router, http.MethodGet, "/api/v1/timetables/run-1/classes/12Z", "teacher", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("synchronous export", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/timetables/run-1/export?format=CSV", "teacher", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "timetable_run-1.csv")
		assert.Equal(t, "rendered csv", w.Body.String())

		w = perform(router, http.MethodGet, "/api/v1/timetables/run-1/export?format=docx", "teacher", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTimetableGenerateErrors(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"unschedulable":    {err: appErrors.Clone(appErrors.ErrUnschedulable, "10A/math"), status: http.StatusConflict},
		"no instructor":    {err: appErrors.Clone(appErrors.ErrNoQualifiedInstructor, "bio"), status: http.StatusUnprocessableEntity},
		"unexpected error": {err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			router := buildRouter(&timetableServiceMock{err: tc.err}, &exportJobServiceMock{})
			w := perform(router, http.MethodPost, "/api/v1/timetables", "admin", []byte(`{}`))
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestExportRoutes(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "export*.csv")
	require.NoError(t, err)
	_, err = file.WriteString("Day,S1\n")
	require.NoError(t, err)
	_, err = file.Seek(0, 0)
	require.NoError(t, err)

	exports := &exportJobServiceMock{download: &service.ExportDownload{
		File:      file,
		Filename:  "timetable.csv",
		Format:    models.ExportFormatCSV,
		ExpiresAt: time.Now().Add(time.Hour),
	}}
	router := buildRouter(&timetableServiceMock{view: sampleView()}, exports)

	w := perform(router, http.MethodPost, "/api/v1/timetables/run-1/exports", "teacher", []byte(`{"format":"csv"}`))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "teacher-1", exports.actor)

	w = perform(router, http.MethodPost, "/api/v1/timetables/run-1/exports", "teacher", []byte(`nope`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(router, http.MethodGet, "/api/v1/exports/jobs/job-1", "teacher", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"FINISHED"`)

	w = perform(router, http.MethodGet, "/api/v1/exports/jobs/job-2", "teacher", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(router, http.MethodGet, "/api/v1/exports/bad", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = perform(router, http.MethodGet, "/api/v1/exports/good", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Day,S1\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "timetable.csv")
}

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(context.Context) error { return errors.New("connection refused") }),
		"skipped":  nil,
	})
	router := gin.New()
	router.GET("/health", handler.Health)
	router.GET("/ready", handler.Ready)
	router.GET("/metrics", handler.Prometheus)

	w := perform(router, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)
	assert.Contains(t, w.Body.String(), "connection refused")

	w = perform(router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = perform(router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goroutines_total")

	healthy := NewMetricsHandler(nil, map[string]Pinger{"postgres": PingFunc(func(context.Context) error { return nil })})
	router = gin.New()
	router.GET("/ready", healthy.Ready)
	router.GET("/metrics", healthy.Prometheus)
	assert.Equal(t, http.StatusOK, perform(router, http.MethodGet, "/ready", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, perform(router, http.MethodGet, "/metrics", "", nil).Code)
}

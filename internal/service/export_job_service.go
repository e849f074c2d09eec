package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
	"github.com/noah-isme/sma-timetable/pkg/jobs"
)

// ExportJobType labels timetable export jobs on the queue.
const ExportJobType = "timetable_export"

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error)
}

// ExportJobStore keeps export job records in memory until they expire.
type ExportJobStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]models.ExportJob
}

// NewExportJobStore builds a store whose records live for ttl after creation.
func NewExportJobStore(ttl time.Duration) *ExportJobStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ExportJobStore{ttl: ttl, items: make(map[string]models.ExportJob)}
}

// Create assigns an id and creation time and stores the job.
func (s *ExportJobStore) Create(job *models.ExportJob) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.items[job.ID] = *job
	s.mu.Unlock()
}

// Get returns a live job.
func (s *ExportJobStore) Get(id string) (models.ExportJob, bool) {
	s.mu.RLock()
	job, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return models.ExportJob{}, false
	}
	if time.Since(job.CreatedAt) > s.ttl {
		s.mu.Lock()
		delete(s.items, id)
		s.mu.Unlock()
		return models.ExportJob{}, false
	}
	return job, true
}

// Update applies fn to a stored job. It reports false when the job is gone.
func (s *ExportJobStore) Update(id string, fn func(job *models.ExportJob)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.items[id]
	if !ok {
		return false
	}
	fn(&job)
	s.items[id] = job
	return true
}

// Expire drops jobs created before cutoff and returns them.
func (s *ExportJobStore) Expire(cutoff time.Time) []models.ExportJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []models.ExportJob
	for id, job := range s.items {
		if job.CreatedAt.Before(cutoff) {
			expired = append(expired, job)
			delete(s.items, id)
		}
	}
	return expired
}

// ExportJobServiceConfig governs cleanup.
type ExportJobServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

// ExportJobService orchestrates the export job lifecycle.
type ExportJobService struct {
	store    *ExportJobStore
	views    timetableViewSource
	queue    jobDispatcher
	exporter *ExportService
	logger   *zap.Logger
	cfg      ExportJobServiceConfig
}

// NewExportJobService constructs the job service.
func NewExportJobService(store *ExportJobStore, views timetableViewSource, queue jobDispatcher, exporter *ExportService, logger *zap.Logger, cfg ExportJobServiceConfig) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportJobService{
		store:    store,
		views:    views,
		queue:    queue,
		exporter: exporter,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateJob checks the run exists, records the job and enqueues it.
func (s *ExportJobService) CreateJob(ctx context.Context, runID string, req dto.ExportTimetableRequest, actorID string) (*dto.ExportJobResponse, error) {
	format := models.ExportFormat(strings.ToLower(req.Format))
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if _, err := s.views.Get(ctx, runID); err != nil {
		return nil, err
	}

	job := &models.ExportJob{
		RunID:     runID,
		Format:    format,
		Status:    models.ExportStatusQueued,
		CreatedBy: actorID,
	}
	s.store.Create(job)
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: ExportJobType}); err != nil {
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		s.store.Update(job.ID, func(j *models.ExportJob) {
			j.Status = models.ExportStatusFailed
			j.ErrorMessage = &msg
			j.FinishedAt = &now
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return &dto.ExportJobResponse{ID: job.ID, RunID: runID, Format: string(format), Status: string(job.Status)}, nil
}

// GetStatus exposes job progress.
func (s *ExportJobService) GetStatus(ctx context.Context, id string) (*dto.ExportStatusResponse, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	resp := &dto.ExportStatusResponse{
		ID:          job.ID,
		RunID:       job.RunID,
		Format:      string(job.Format),
		Status:      string(job.Status),
		DownloadURL: job.ResultURL,
		FinishedAt:  job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates the token and opens the stored export file.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, ok := s.store.Get(jobID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// StartCleanup boots a goroutine that purges expired jobs and files periodically.
func (s *ExportJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired()
			}
		}
	}()
}

func (s *ExportJobService) cleanupExpired() {
	for _, job := range s.store.Expire(time.Now().Add(-s.cfg.ResultTTL)) {
		if job.FilePath == "" {
			continue
		}
		if err := s.exporter.Delete(job.FilePath); err != nil {
			s.logger.Sugar().Warnw("cleanup delete failed", "job_id", job.ID, "error", err)
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("filesystem cleanup failed", "error", err)
	}
}

// ExportWorker bridges queue jobs to ExportService.
type ExportWorker struct {
	store      *ExportJobStore
	exporter   exportGenerator
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
}

// NewExportWorker constructs a worker. maxRetries must match the queue's so the final
// attempt is the one that marks the job failed.
func NewExportWorker(store *ExportJobStore, exporter exportGenerator, metrics *MetricsService, maxRetries int, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ExportWorker{
		store:      store,
		exporter:   exporter,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes a queue job.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, ok := w.store.Get(job.ID)
	if !ok {
		w.logger.Sugar().Warnw("export job vanished before processing", "job_id", job.ID)
		return nil
	}
	w.store.Update(job.ID, func(j *models.ExportJob) { j.Status = models.ExportStatusProcessing })

	result, err := w.generate(ctx, &record)
	if err != nil {
		if job.Attempt >= w.maxRetries {
			w.markFailed(job.ID, record.Format, err)
		} else {
			msg := err.Error()
			w.store.Update(job.ID, func(j *models.ExportJob) {
				j.Status = models.ExportStatusQueued
				j.ErrorMessage = &msg
			})
		}
		return err
	}

	now := time.Now().UTC()
	url := result.URL
	w.store.Update(job.ID, func(j *models.ExportJob) {
		j.Status = models.ExportStatusFinished
		j.FilePath = result.RelativePath
		j.ResultURL = &url
		j.ErrorMessage = nil
		j.FinishedAt = &now
	})
	w.metrics.ObserveExport(string(record.Format), models.ExportStatusFinished)
	w.logger.Sugar().Infow("timetable export finished", "job_id", job.ID, "run_id", record.RunID, "format", record.Format)
	return nil
}

// GiveUp marks a job the queue dropped as failed. Jobs already finished or failed are left alone.
func (w *ExportWorker) GiveUp(job jobs.Job, err error) {
	record, ok := w.store.Get(job.ID)
	if !ok || record.Status == models.ExportStatusFinished || record.Status == models.ExportStatusFailed {
		return
	}
	w.logger.Sugar().Warnw("export job dropped by queue", "job_id", job.ID, "error", err)
	w.markFailed(job.ID, record.Format, err)
}

func (w *ExportWorker) generate(ctx context.Context, record *models.ExportJob) (result *ExportResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("export generation panicked: %v", r)
		}
	}()
	return w.exporter.Generate(ctx, record)
}

func (w *ExportWorker) markFailed(id string, format models.ExportFormat, err error) {
	msg := err.Error()
	now := time.Now().UTC()
	w.store.Update(id, func(j *models.ExportJob) {
		j.Status = models.ExportStatusFailed
		j.ErrorMessage = &msg
		j.FinishedAt = &now
	})
	w.metrics.ObserveExport(string(format), models.ExportStatusFailed)
}

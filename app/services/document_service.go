package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/invoice-parser/app/models"
	"github.com/invoice-parser/helpers/utils"
	"github.com/invoice-parser/internal/processor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job states
const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
)

var (
	ErrEmptyDocument  = errors.New("document has no sections")
	ErrJobNotFound    = errors.New("job not found")
	ErrJobNotFinished = errors.New("job is still running")
)

const defaultBatchWorkers = 4

// JobStatus is the progress of a batch job
type JobStatus struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Progress  float64   `json:"progress"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Usable    int       `json:"usable"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outcome is one processed document as the service returns it
type Outcome struct {
	Fingerprint string                `json:"fingerprint"`
	Document    models.Document       `json:"document"`
	Report      models.DocumentReport `json:"report"`
	Cached      bool                  `json:"cached"`
}

// ServiceStats are the process-wide counters of the document service
type ServiceStats struct {
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Processed     int64       `json:"processed"`
	CacheHits     int64       `json:"cache_hits"`
	Queued        int64       `json:"queued_for_review"`
	Jobs          int         `json:"jobs"`
	NormalizerLen int         `json:"normalizer_cache_size"`
	Cache         *CacheStats `json:"cache,omitempty"`
}

// DocumentService runs the engine behind a fingerprint cache, sends
// unusable documents to the review queue and runs batch jobs. cache and
// reviews are optional.
type DocumentService struct {
	processor *processor.Processor
	cache     ICacheService
	reviews   ReviewQueue
	logger    *zap.Logger
	workers   int
	startTime time.Time

	mu         sync.RWMutex
	jobs       map[string]*JobStatus
	jobResults map[string][]Outcome

	processed atomic.Int64
	cacheHits atomic.Int64
	queued    atomic.Int64
}

// NewDocumentService creates the service. A nil cache or review queue
// disables that step.
func NewDocumentService(p *processor.Processor, cache ICacheService, reviews ReviewQueue, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		processor:  p,
		cache:      cache,
		reviews:    reviews,
		logger:     logger,
		workers:    defaultBatchWorkers,
		startTime:  time.Now(),
		jobs:       make(map[string]*JobStatus),
		jobResults: make(map[string][]Outcome),
	}
}

// SetWorkers sets how many documents a batch job processes at once
func (ds *DocumentService) SetWorkers(n int) {
	if n > 0 {
		ds.workers = n
	}
}

// Process returns the processed document and its report, from the cache
// when the same document was seen before
func (ds *DocumentService) Process(ctx context.Context, doc models.Document) (*Outcome, error) {
	if len(doc) == 0 {
		return nil, ErrEmptyDocument
	}
	fingerprint := utils.Fingerprint(doc)

	if ds.cache != nil {
		cached, found, err := ds.cache.Get(ctx, fingerprint)
		if err != nil {
			ds.logger.Warn("cache lookup failed", zap.Error(err), zap.String("fingerprint", fingerprint))
		} else if found {
			ds.cacheHits.Add(1)
			return &Outcome{Fingerprint: fingerprint, Document: cached.Document, Report: cached.Report, Cached: true}, nil
		}
	}

	res := ds.processor.Process(doc)
	ds.processed.Add(1)

	if ds.cache != nil {
		entry := models.NewProcessedResult(fingerprint, res.Document, res.Report)
		if err := ds.cache.Set(ctx, fingerprint, entry); err != nil {
			ds.logger.Warn("cache store failed", zap.Error(err), zap.String("fingerprint", fingerprint))
		}
	}
	if !res.Report.Usable && ds.reviews != nil {
		if _, err := ds.reviews.Enqueue(ctx, fingerprint, res.Document, res.Report); err != nil {
			ds.logger.Warn("review enqueue failed", zap.Error(err), zap.String("fingerprint", fingerprint))
		} else {
			ds.queued.Add(1)
		}
	}

	ds.logger.Info("document processed",
		zap.String("fingerprint", fingerprint),
		zap.String("status", res.Report.Status),
		zap.Strings("flags", res.Report.Flags))
	return &Outcome{Fingerprint: fingerprint, Document: res.Document, Report: res.Report}, nil
}

// ProcessSection transforms one section without document context
func (ds *DocumentService) ProcessSection(name string, section models.Section) models.Section {
	return ds.processor.ProcessSection(name, section, nil)
}

// Completeness scores a document as it is
func (ds *DocumentService) Completeness(doc models.Document) models.DocumentReport {
	return ds.processor.CalculateDocumentCompleteness(doc)
}

// IsUsable applies the contract-creation gate to a document as it is
func (ds *DocumentService) IsUsable(doc models.Document) bool {
	return ds.processor.IsUsable(doc)
}

// SubmitBatch registers a job and processes the documents in the
// background. The returned status is a snapshot.
func (ds *DocumentService) SubmitBatch(docs []models.Document) JobStatus {
	now := time.Now()
	job := &JobStatus{
		JobID:     utils.GenerateUUID(),
		Status:    JobStatusQueued,
		Total:     len(docs),
		CreatedAt: now,
		UpdatedAt: now,
	}
	ds.mu.Lock()
	ds.jobs[job.JobID] = job
	snapshot := *job
	ds.mu.Unlock()

	go ds.ProcessBatchJob(context.Background(), job.JobID, docs)
	return snapshot
}

// ProcessBatchJob processes docs for a registered job. Results keep the
// input order.
func (ds *DocumentService) ProcessBatchJob(ctx context.Context, jobID string, docs []models.Document) {
	ds.updateJob(jobID, func(job *JobStatus) { job.Status = JobStatusRunning })

	results := make([]Outcome, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ds.workers)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			out, err := ds.Process(gctx, doc)
			if err != nil {
				// an empty document still gets a report
				out = &Outcome{Document: doc, Report: ds.Completeness(doc)}
			}
			results[i] = *out
			ds.updateJob(jobID, func(job *JobStatus) {
				job.Processed++
				if out.Report.Usable {
					job.Usable++
				}
				job.Progress = float64(job.Processed) / float64(job.Total)
			})
			return nil
		})
	}
	_ = g.Wait()

	ds.mu.Lock()
	ds.jobResults[jobID] = results
	if job, ok := ds.jobs[jobID]; ok {
		job.Status = JobStatusDone
		job.Progress = 1
		job.UpdatedAt = time.Now()
	}
	ds.mu.Unlock()

	ds.logger.Info("batch job completed",
		zap.String("job_id", jobID),
		zap.Int("documents", len(docs)))
}

func (ds *DocumentService) updateJob(jobID string, fn func(*JobStatus)) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if job, ok := ds.jobs[jobID]; ok {
		fn(job)
		job.UpdatedAt = time.Now()
	}
}

// GetJobStatus returns a snapshot of a job
func (ds *DocumentService) GetJobStatus(jobID string) (JobStatus, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	job, ok := ds.jobs[jobID]
	if !ok {
		return JobStatus{}, ErrJobNotFound
	}
	return *job, nil
}

// GetJobResults returns the outcomes of a finished job
func (ds *DocumentService) GetJobResults(jobID string) ([]Outcome, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if _, ok := ds.jobs[jobID]; !ok {
		return nil, ErrJobNotFound
	}
	results, ok := ds.jobResults[jobID]
	if !ok {
		return nil, ErrJobNotFinished
	}
	return results, nil
}

// ClearCache drops the fingerprint cache and the normalizer memo
func (ds *DocumentService) ClearCache(ctx context.Context) error {
	ds.processor.PurgeCache()
	if ds.cache == nil {
		return nil
	}
	return ds.cache.Clear(ctx)
}

// GetStats reports the service counters. A failing cache backend is
// logged and left out.
func (ds *DocumentService) GetStats(ctx context.Context) ServiceStats {
	ds.mu.RLock()
	jobs := len(ds.jobs)
	ds.mu.RUnlock()

	stats := ServiceStats{
		UptimeSeconds: int64(time.Since(ds.startTime).Seconds()),
		StartTime:     ds.startTime.Format(time.RFC3339),
		Processed:     ds.processed.Load(),
		CacheHits:     ds.cacheHits.Load(),
		Queued:        ds.queued.Load(),
		Jobs:          jobs,
		NormalizerLen: ds.processor.CacheLen(),
	}
	if ds.cache != nil {
		cacheStats, err := ds.cache.GetStats(ctx)
		if err != nil {
			ds.logger.Warn("cache stats unavailable", zap.Error(err))
		} else {
			stats.Cache = cacheStats
		}
	}
	return stats
}

// StartTime is when the service was created
func (ds *DocumentService) StartTime() time.Time {
	return ds.startTime
}

// Backends reports which optional backends are configured
func (ds *DocumentService) Backends() map[string]string {
	state := func(on bool) string {
		if on {
			return "enabled"
		}
		return "disabled"
	}
	return map[string]string{
		"engine":       "healthy",
		"cache":        state(ds.cache != nil),
		"review_queue": state(ds.reviews != nil),
	}
}

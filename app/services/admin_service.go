package services

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/invoice-parser/app/models"
	"go.uber.org/zap"
)

var (
	// ErrReviewsDisabled is returned when the service runs without a review queue
	ErrReviewsDisabled     = errors.New("review queue is not configured")
	ErrInvalidReviewStatus = errors.New("unknown review status")
)

const maxReviewPage = 200

// AdminService backs the admin endpoints
type AdminService struct {
	documents *DocumentService
	reviews   ReviewQueue
	logger    *zap.Logger
}

// SystemStats is the admin view of the running service
type SystemStats struct {
	Service        ServiceStats      `json:"service"`
	PendingReviews int64             `json:"pending_reviews"`
	TotalReviews   int64             `json:"total_reviews"`
	Uptime         string            `json:"uptime"`
	Goroutines     int               `json:"goroutines"`
	MemoryUsage    map[string]uint64 `json:"memory_usage"`
}

// ReviewPage is one page of the review queue
type ReviewPage struct {
	Reviews []*models.DocumentReview `json:"reviews"`
	Total   int64                    `json:"total"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
}

// NewAdminService creates the admin service; reviews may be nil
func NewAdminService(documents *DocumentService, reviews ReviewQueue, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{documents: documents, reviews: reviews, logger: logger}
}

// GetSystemStats collects service, queue and runtime figures. Queue
// counts are zero when the queue is unavailable.
func (as *AdminService) GetSystemStats(ctx context.Context) *SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := &SystemStats{
		Service:    as.documents.GetStats(ctx),
		Uptime:     time.Since(as.documents.StartTime()).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		MemoryUsage: map[string]uint64{
			"alloc_mb":       bToMb(m.Alloc),
			"total_alloc_mb": bToMb(m.TotalAlloc),
			"sys_mb":         bToMb(m.Sys),
			"num_gc":         uint64(m.NumGC),
		},
	}
	if as.reviews != nil {
		var err error
		if stats.PendingReviews, err = as.reviews.Count(ctx, models.ReviewStatusPending); err != nil {
			as.logger.Warn("cannot count pending reviews", zap.Error(err))
		}
		if stats.TotalReviews, err = as.reviews.Count(ctx, ""); err != nil {
			as.logger.Warn("cannot count reviews", zap.Error(err))
		}
	}
	return stats
}

// ListReviews pages through the queue. limit is capped; a non-positive
// limit selects the default page size.
func (as *AdminService) ListReviews(ctx context.Context, status string, limit, offset int) (*ReviewPage, error) {
	if as.reviews == nil {
		return nil, ErrReviewsDisabled
	}
	if status != "" && !isReviewStatus(status) {
		return nil, fmt.Errorf("%w %q", ErrInvalidReviewStatus, status)
	}
	if limit <= 0 || limit > maxReviewPage {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	reviews, err := as.reviews.List(ctx, status, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := as.reviews.Count(ctx, status)
	if err != nil {
		return nil, err
	}
	return &ReviewPage{Reviews: reviews, Total: total, Limit: limit, Offset: offset}, nil
}

// ApproveReview closes a review, optionally with a corrected document
func (as *AdminService) ApproveReview(ctx context.Context, id, reviewerID string, corrected models.Document) (*models.DocumentReview, error) {
	if as.reviews == nil {
		return nil, ErrReviewsDisabled
	}
	return as.reviews.Approve(ctx, id, reviewerID, corrected)
}

// RejectReview closes a review as unusable
func (as *AdminService) RejectReview(ctx context.Context, id, reviewerID string) (*models.DocumentReview, error) {
	if as.reviews == nil {
		return nil, ErrReviewsDisabled
	}
	return as.reviews.Reject(ctx, id, reviewerID)
}

// ClearCache drops every processed-document cache
func (as *AdminService) ClearCache(ctx context.Context) error {
	if err := as.documents.ClearCache(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	as.logger.Info("caches cleared")
	return nil
}

func isReviewStatus(s string) bool {
	switch s {
	case models.ReviewStatusPending, models.ReviewStatusApproved, models.ReviewStatusRejected:
		return true
	}
	return false
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

package services

import (
	"context"

	"github.com/invoice-parser/app/models"
	"github.com/stretchr/testify/mock"
)

type mockReviewQueue struct {
	mock.Mock
}

func review(args mock.Arguments) (*models.DocumentReview, error) {
	r, _ := args.Get(0).(*models.DocumentReview)
	return r, args.Error(1)
}

func (m *mockReviewQueue) Enqueue(ctx context.Context, fingerprint string, doc models.Document, report models.DocumentReport) (*models.DocumentReview, error) {
	return review(m.Called(ctx, fingerprint, doc, report))
}

func (m *mockReviewQueue) List(ctx context.Context, status string, limit, offset int) ([]*models.DocumentReview, error) {
	args := m.Called(ctx, status, limit, offset)
	rs, _ := args.Get(0).([]*models.DocumentReview)
	return rs, args.Error(1)
}

func (m *mockReviewQueue) Count(ctx context.Context, status string) (int64, error) {
	args := m.Called(ctx, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockReviewQueue) Get(ctx context.Context, id string) (*models.DocumentReview, error) {
	return review(m.Called(ctx, id))
}

func (m *mockReviewQueue) Approve(ctx context.Context, id, reviewerID string, corrected models.Document) (*models.DocumentReview, error) {
	return review(m.Called(ctx, id, reviewerID, corrected))
}

func (m *mockReviewQueue) Reject(ctx context.Context, id, reviewerID string) (*models.DocumentReview, error) {
	return review(m.Called(ctx, id, reviewerID))
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invoice-parser/app/models"
	"github.com/invoice-parser/helpers/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const documentReviewCollection = "document_reviews"

// ErrReviewNotFound is returned for an unknown review id
var ErrReviewNotFound = errors.New("review not found")

// ReviewQueue holds documents that failed the usable gate until an
// operator completes or rejects them
type ReviewQueue interface {
	// Enqueue adds a document, or refreshes the pending entry with the
	// same fingerprint
	Enqueue(ctx context.Context, fingerprint string, doc models.Document, report models.DocumentReport) (*models.DocumentReview, error)
	// List returns reviews newest first; an empty status lists all
	List(ctx context.Context, status string, limit, offset int) ([]*models.DocumentReview, error)
	Count(ctx context.Context, status string) (int64, error)
	Get(ctx context.Context, id string) (*models.DocumentReview, error)
	Approve(ctx context.Context, id, reviewerID string, corrected models.Document) (*models.DocumentReview, error)
	Reject(ctx context.Context, id, reviewerID string) (*models.DocumentReview, error)
}

// ReviewService is the MongoDB review queue
type ReviewService struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewReviewService opens the review collection and ensures its indexes
func NewReviewService(db *mongo.Database, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	collection := db.Collection(documentReviewCollection)
	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "fingerprint", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		logger.Warn("cannot create document_reviews indexes", zap.Error(err))
	}
	return &ReviewService{collection: collection, logger: logger}
}

func (rs *ReviewService) Enqueue(ctx context.Context, fingerprint string, doc models.Document, report models.DocumentReport) (*models.DocumentReview, error) {
	filter := bson.M{"fingerprint": fingerprint}
	update := bson.M{
		"$set": bson.M{"document": doc, "report": report},
		"$setOnInsert": bson.M{
			"_id":        utils.GenerateUUID(),
			"status":     models.ReviewStatusPending,
			"created_at": time.Now(),
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var review models.DocumentReview
	if err := rs.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&review); err != nil {
		return nil, fmt.Errorf("enqueue review: %w", err)
	}
	rs.logger.Debug("document queued for review",
		zap.String("review_id", review.ID),
		zap.Strings("flags", report.Flags))
	return &review, nil
}

func statusFilter(status string) bson.M {
	if status == "" {
		return bson.M{}
	}
	return bson.M{"status": status}
}

func (rs *ReviewService) List(ctx context.Context, status string, limit, offset int) ([]*models.DocumentReview, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := rs.collection.Find(ctx, statusFilter(status), opts)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer cursor.Close(ctx)

	reviews := []*models.DocumentReview{}
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}
	return reviews, nil
}

func (rs *ReviewService) Count(ctx context.Context, status string) (int64, error) {
	n, err := rs.collection.CountDocuments(ctx, statusFilter(status))
	if err != nil {
		return 0, fmt.Errorf("count reviews: %w", err)
	}
	return n, nil
}

func (rs *ReviewService) Get(ctx context.Context, id string) (*models.DocumentReview, error) {
	var review models.DocumentReview
	err := rs.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&review)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return &review, nil
}

func (rs *ReviewService) Approve(ctx context.Context, id, reviewerID string, corrected models.Document) (*models.DocumentReview, error) {
	review, err := rs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	review.Approve(reviewerID, corrected)
	if err := rs.save(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

func (rs *ReviewService) Reject(ctx context.Context, id, reviewerID string) (*models.DocumentReview, error) {
	review, err := rs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	review.Reject(reviewerID)
	if err := rs.save(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

func (rs *ReviewService) save(ctx context.Context, review *models.DocumentReview) error {
	if _, err := rs.collection.ReplaceOne(ctx, bson.M{"_id": review.ID}, review); err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	rs.logger.Info("review closed",
		zap.String("review_id", review.ID),
		zap.String("status", review.Status))
	return nil
}

package models

import (
	"time"
)

// DocumentReview is a processed document that failed the usable gate
// and waits for an operator to complete it by hand
type DocumentReview struct {
	ID           string         `bson:"_id" json:"id"`
	Fingerprint  string         `bson:"fingerprint" json:"fingerprint"`
	Document     Document       `bson:"document" json:"document"`
	Report       DocumentReport `bson:"report" json:"report"`
	Status       string         `bson:"status" json:"status"`
	ManualResult Document       `bson:"manual_result,omitempty" json:"manual_result,omitempty"`
	ReviewerID   *string        `bson:"reviewer_id,omitempty" json:"reviewer_id,omitempty"`
	ReviewedAt   *time.Time     `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`
	CreatedAt    time.Time      `bson:"created_at" json:"created_at"`
}

// Review statuses
const (
	ReviewStatusPending  = "pending"
	ReviewStatusApproved = "approved"
	ReviewStatusRejected = "rejected"
)

// NewDocumentReview creates a pending review entry
func NewDocumentReview(id, fingerprint string, doc Document, report DocumentReport) *DocumentReview {
	return &DocumentReview{
		ID:          id,
		Fingerprint: fingerprint,
		Document:    doc,
		Report:      report,
		Status:      ReviewStatusPending,
		CreatedAt:   time.Now(),
	}
}

// Approve accepts the document, optionally with a corrected version
func (r *DocumentReview) Approve(reviewerID string, corrected Document) {
	r.Status = ReviewStatusApproved
	r.ManualResult = corrected
	r.ReviewerID = &reviewerID
	now := time.Now()
	r.ReviewedAt = &now
}

// Reject marks the document as not usable for a contract
func (r *DocumentReview) Reject(reviewerID string) {
	r.Status = ReviewStatusRejected
	r.ReviewerID = &reviewerID
	now := time.Now()
	r.ReviewedAt = &now
}

// IsPending reports whether nobody has looked at the review yet
func (r *DocumentReview) IsPending() bool {
	return r.Status == ReviewStatusPending
}

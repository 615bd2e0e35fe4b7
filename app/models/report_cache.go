package models

import (
	"time"
)

// ProcessedResult is what the service caches for a document fingerprint
type ProcessedResult struct {
	Fingerprint  string         `bson:"_id" json:"fingerprint"`
	Document     Document       `bson:"document" json:"document"`
	Report       DocumentReport `bson:"report" json:"report"`
	CreatedAt    time.Time      `bson:"created_at" json:"created_at"`
	LastAccessed time.Time      `bson:"last_accessed" json:"-"`
	AccessCount  int64          `bson:"access_count" json:"-"`
}

// NewProcessedResult wraps a processed document and its report
func NewProcessedResult(fingerprint string, doc Document, report DocumentReport) *ProcessedResult {
	now := time.Now()
	return &ProcessedResult{
		Fingerprint:  fingerprint,
		Document:     doc,
		Report:       report,
		CreatedAt:    now,
		LastAccessed: now,
	}
}

// IsExpired checks the entry age against a TTL. A zero TTL never expires.
func (r *ProcessedResult) IsExpired(ttl time.Duration) bool {
	return ttl > 0 && time.Since(r.CreatedAt) > ttl
}

// Touch records a cache hit
func (r *ProcessedResult) Touch() {
	r.LastAccessed = time.Now()
	r.AccessCount++
}

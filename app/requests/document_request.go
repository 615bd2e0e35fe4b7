package requests

import "github.com/invoice-parser/app/models"

// MaxBatchDocuments caps one batch job
const MaxBatchDocuments = 1000

// DocumentRequest carries one extracted invoice document
type DocumentRequest struct {
	Document models.Document `json:"document" binding:"required,min=1"`
}

// SectionRequest carries the fields of one section
type SectionRequest struct {
	Fields models.Section `json:"fields" binding:"required,min=1"`
}

// BatchRequest submits documents for background processing
type BatchRequest struct {
	Documents []models.Document `json:"documents" binding:"required,min=1,max=1000"`
}

// ReviewDecisionRequest closes a review. ManualResult is the corrected
// document and is only used on approval.
type ReviewDecisionRequest struct {
	ReviewerID   string          `json:"reviewer_id" binding:"required"`
	ManualResult models.Document `json:"manual_result,omitempty"`
}

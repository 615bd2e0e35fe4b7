package responses

import (
	"time"

	"github.com/invoice-parser/app/models"
)

// Error codes
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeProcessError   = "PROCESS_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeNotReady       = "NOT_READY"
	CodeUnavailable    = "UNAVAILABLE"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error     string      `json:"error"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// NewError builds an error body stamped with the current time
func NewError(code, message string) ErrorResponse {
	return ErrorResponse{Error: code, Message: message, Timestamp: time.Now().Format(time.RFC3339)}
}

// SuccessResponse wraps generic payloads
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ProcessDocumentResponse is the result of POST /v1/documents/process
type ProcessDocumentResponse struct {
	Fingerprint      string                `json:"fingerprint"`
	Document         models.Document       `json:"document"`
	Report           models.DocumentReport `json:"report"`
	CacheHit         bool                  `json:"cache_hit"`
	ProcessingTimeMs int64                 `json:"processing_time_ms"`
}

// SectionResponse is one transformed section
type SectionResponse struct {
	Section string         `json:"section"`
	Fields  models.Section `json:"fields"`
}

// UsableResponse answers the contract-creation gate
type UsableResponse struct {
	Usable bool     `json:"usable"`
	Flags  []string `json:"flags"`
}

// BatchResponse acknowledges a batch job
type BatchResponse struct {
	JobID          string `json:"job_id"`
	TotalDocuments int    `json:"total_documents"`
	Message        string `json:"message"`
}

// HealthCheckResponse is the health probe body
type HealthCheckResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
}

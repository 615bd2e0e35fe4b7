package controllers

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/invoice-parser/app/requests"
	"github.com/invoice-parser/app/responses"
	"github.com/invoice-parser/app/services"
	"go.uber.org/zap"
)

// Version is reported by the health probe
const Version = "1.0.0"

// DocumentController serves the document processing endpoints
type DocumentController struct {
	documents *services.DocumentService
	logger    *zap.Logger
}

// NewDocumentController creates the controller
func NewDocumentController(documents *services.DocumentService, logger *zap.Logger) *DocumentController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentController{documents: documents, logger: logger}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, responses.NewError(responses.CodeInvalidRequest, "invalid request: "+err.Error()))
}

// Process runs the full pipeline on one document
func (dc *DocumentController) Process(c *gin.Context) {
	var req requests.DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	start := time.Now()
	out, err := dc.documents.Process(c.Request.Context(), req.Document)
	if errors.Is(err, services.ErrEmptyDocument) {
		badRequest(c, err)
		return
	}
	if err != nil {
		dc.logger.Error("document processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, responses.NewError(responses.CodeProcessError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, responses.ProcessDocumentResponse{
		Fingerprint:      out.Fingerprint,
		Document:         out.Document,
		Report:           out.Report,
		CacheHit:         out.Cached,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	})
}

// ProcessSection transforms the fields of one section
func (dc *DocumentController) ProcessSection(c *gin.Context) {
	var req requests.SectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	name := c.Param("section")
	c.JSON(http.StatusOK, responses.SectionResponse{
		Section: name,
		Fields:  dc.documents.ProcessSection(name, req.Fields),
	})
}

// Completeness scores a document without transforming it
func (dc *DocumentController) Completeness(c *gin.Context) {
	var req requests.DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, dc.documents.Completeness(req.Document))
}

// Usable applies the contract-creation gate to a document as it is
func (dc *DocumentController) Usable(c *gin.Context) {
	var req requests.DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	report := dc.documents.Completeness(req.Document)
	c.JSON(http.StatusOK, responses.UsableResponse{Usable: report.Usable, Flags: report.Flags})
}

// SubmitJob starts a batch job
func (dc *DocumentController) SubmitJob(c *gin.Context) {
	var req requests.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	job := dc.documents.SubmitBatch(req.Documents)
	c.JSON(http.StatusAccepted, responses.BatchResponse{
		JobID:          job.JobID,
		TotalDocuments: job.Total,
		Message:        "job accepted",
	})
}

// GetJobStatus reports batch job progress
func (dc *DocumentController) GetJobStatus(c *gin.Context) {
	status, err := dc.documents.GetJobStatus(c.Param("jobID"))
	if err != nil {
		c.JSON(http.StatusNotFound, responses.NewError(responses.CodeNotFound, err.Error()))
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetJobResults returns the outcomes of a finished job as JSON, or as
// NDJSON with ?format=ndjson (gzip with &gzip=1)
func (dc *DocumentController) GetJobResults(c *gin.Context) {
	jobID := c.Param("jobID")
	results, err := dc.documents.GetJobResults(jobID)
	switch {
	case errors.Is(err, services.ErrJobNotFinished):
		c.JSON(http.StatusConflict, responses.NewError(responses.CodeNotReady, err.Error()))
		return
	case err != nil:
		c.JSON(http.StatusNotFound, responses.NewError(responses.CodeNotFound, err.Error()))
		return
	}

	if c.Query("format") == "ndjson" {
		dc.streamNDJSON(c, results, c.Query("gzip") == "1")
		return
	}
	c.JSON(http.StatusOK, responses.SuccessResponse{Success: true, Data: results})
}

func (dc *DocumentController) streamNDJSON(c *gin.Context, results []services.Outcome, gzipEnabled bool) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)

	var writer gin.ResponseWriter = c.Writer
	if gzipEnabled {
		c.Header("Content-Encoding", "gzip")
		gzWriter := gzip.NewWriter(c.Writer)
		defer gzWriter.Close()
		writer = &gzipResponseWriter{ResponseWriter: c.Writer, gzWriter: gzWriter}
	}

	encoder := json.NewEncoder(writer)
	for _, result := range results {
		if err := encoder.Encode(result); err != nil {
			dc.logger.Error("ndjson encode failed", zap.Error(err))
			return
		}
		writer.Flush()
	}
}

type gzipResponseWriter struct {
	gin.ResponseWriter
	gzWriter *gzip.Writer
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	return w.gzWriter.Write(data)
}

func (w *gzipResponseWriter) Flush() {
	_ = w.gzWriter.Flush()
	w.ResponseWriter.Flush()
}

// HealthCheck reports liveness and the configured backends
func (dc *DocumentController) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, responses.HealthCheckResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(dc.documents.StartTime()).Round(time.Second).String(),
		Version:   Version,
		Services:  dc.documents.Backends(),
	})
}

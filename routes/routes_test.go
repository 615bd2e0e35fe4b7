package routes

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/invoice-parser/app/config"
	"github.com/invoice-parser/app/controllers"
	"github.com/invoice-parser/app/models"
	"github.com/invoice-parser/app/responses"
	"github.com/invoice-parser/app/services"
	"github.com/invoice-parser/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReviewQueue struct {
	mock.Mock
}

func (m *mockReviewQueue) Enqueue(ctx context.Context, fp string, doc models.Document, rep models.DocumentReport) (*models.DocumentReview, error) {
	args := m.Called(ctx, fp, doc, rep)
	r, _ := args.Get(0).(*models.DocumentReview)
	return r, args.Error(1)
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
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*models.DocumentReview)
	return r, args.Error(1)
}

func (m *mockReviewQueue) Approve(ctx context.Context, id, reviewerID string, corrected models.Document) (*models.DocumentReview, error) {
	args := m.Called(ctx, id, reviewerID, corrected)
	r, _ := args.Get(0).(*models.DocumentReview)
	return r, args.Error(1)
}

func (m *mockReviewQueue) Reject(ctx context.Context, id, reviewerID string) (*models.DocumentReview, error) {
	args := m.Called(ctx, id, reviewerID)
	r, _ := args.Get(0).(*models.DocumentReview)
	return r, args.Error(1)
}

func newRouter(t *testing.T, reviews services.ReviewQueue) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	p, err := processor.New(config.Default(), nil)
	require.NoError(t, err)

	docs := services.NewDocumentService(p, services.NewCacheService(100, time.Hour), reviews, nil)
	admin := services.NewAdminService(docs, reviews, nil)
	router := gin.New()
	SetupAllRoutes(router, controllers.NewDocumentController(docs, nil), controllers.NewAdminController(admin, nil), nil)
	return router
}

func do(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func usableDocument() models.Document {
	return models.Document{
		models.SectionDeliveryPoint: {
			models.FieldPPENumber:   models.NewField("590310000000123456", 0.95),
			models.FieldTariffGroup: models.NewField("Taryfa G11", 0.95),
			models.FieldAddressLine: models.NewField("ul. Giełdowa 4C/29", 0.95),
			models.FieldPostalCity:  models.NewField("01-211 Warszawa", 0.95),
		},
		models.SectionCustomer: {
			models.FieldFullName: models.NewField("Jan Kowalski", 0.95),
		},
	}
}

func TestProcessDocument(t *testing.T) {
	router := newRouter(t, nil)

	w := do(router, http.MethodPost, "/v1/documents/process", gin.H{"document": usableDocument()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp responses.ProcessDocumentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.CacheHit)
	assert.NotEmpty(t, resp.Fingerprint)
	assert.Equal(t, "G11", resp.Document.Section(models.SectionDeliveryPoint).Value(models.FieldTariffGroup))
	assert.True(t, resp.Report.Usable)
	assert.NotNil(t, resp.Report.Operator)

	w = do(router, http.MethodPost, "/v1/documents/process", gin.H{"document": usableDocument()})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.CacheHit)
}

func TestProcessDocument_InvalidBody(t *testing.T) {
	router := newRouter(t, nil)
	for _, body := range []interface{}{gin.H{}, gin.H{"document": gin.H{}}, gin.H{"document": "text"}} {
		w := do(router, http.MethodPost, "/v1/documents/process", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp responses.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, responses.CodeInvalidRequest, resp.Error)
	}
}

func TestProcessSection(t *testing.T) {
	router := newRouter(t, nil)
	w := do(router, http.MethodPost, "/v1/documents/sections/customer/process", gin.H{
		"fields": models.Section{models.FieldFullName: models.NewField("Kowalski Jan", 0.9)},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp responses.SectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.SectionCustomer, resp.Section)
	assert.Equal(t, "JAN", resp.Fields.Value(models.FieldFirstName))
	assert.Equal(t, "KOWALSKI", resp.Fields.Value(models.FieldLastName))
}

func TestCompletenessAndUsable(t *testing.T) {
	router := newRouter(t, nil)
	doc := models.Document{models.SectionSupplier: {models.FieldSupplierName: models.NewField("ENERGA OBRÓT S.A.", 0.9)}}

	w := do(router, http.MethodPost, "/v1/documents/completeness", gin.H{"document": doc})
	require.Equal(t, http.StatusOK, w.Code)
	var report models.DocumentReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, models.StatusIncomplete, report.Status)
	assert.Contains(t, report.Sections, models.SectionSupplier)

	w = do(router, http.MethodPost, "/v1/documents/usable", gin.H{"document": doc})
	require.Equal(t, http.StatusOK, w.Code)
	var usable responses.UsableResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &usable))
	assert.False(t, usable.Usable)
	assert.Contains(t, usable.Flags, models.FlagMissingPPE)
}

func TestBatchJob(t *testing.T) {
	router := newRouter(t, nil)
	supplier := models.Document{models.SectionSupplier: {models.FieldSupplierName: models.NewField("ENERGA", 0.9)}}

	w := do(router, http.MethodPost, "/v1/documents/jobs", gin.H{"documents": []models.Document{usableDocument(), supplier}})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var batch responses.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	assert.Equal(t, 2, batch.TotalDocuments)

	statusPath := "/v1/documents/jobs/" + batch.JobID + "/status"
	require.Eventually(t, func() bool {
		w := do(router, http.MethodGet, statusPath, nil)
		var st services.JobStatus
		return w.Code == http.StatusOK && json.Unmarshal(w.Body.Bytes(), &st) == nil && st.Status == services.JobStatusDone
	}, 5*time.Second, 20*time.Millisecond)

	resultsPath := "/v1/documents/jobs/" + batch.JobID + "/results"
	w = do(router, http.MethodGet, resultsPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool               `json:"success"`
		Data    []services.Outcome `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.True(t, body.Data[0].Report.Usable)
	assert.False(t, body.Data[1].Report.Usable)

	w = do(router, http.MethodGet, resultsPath+"?format=ndjson", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	assert.Equal(t, 2, countLines(t, w.Body))

	w = do(router, http.MethodGet, resultsPath+"?format=ndjson&gzip=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(t, zr))
}

func countLines(t *testing.T, r interface{ Read([]byte) (int, error) }) int {
	t.Helper()
	n := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var out services.Outcome
		require.NoError(t, json.Unmarshal(sc.Bytes(), &out))
		n++
	}
	require.NoError(t, sc.Err())
	return n
}

func TestUnknownJob(t *testing.T) {
	router := newRouter(t, nil)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/v1/documents/jobs/nope/status", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/v1/documents/jobs/nope/results", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/v1/documents/jobs", gin.H{"documents": []models.Document{}}).Code)
}

func TestAdminRoutes_WithoutQueue(t *testing.T) {
	router := newRouter(t, nil)

	w := do(router, http.MethodGet, "/v1/admin/reviews", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(router, http.MethodGet, "/v1/admin/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats services.SystemStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Positive(t, stats.Goroutines)

	w = do(router, http.MethodPost, "/v1/admin/cache/clear", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutes_Reviews(t *testing.T) {
	queue := &mockReviewQueue{}
	pending := []*models.DocumentReview{{ID: "r1", Status: models.ReviewStatusPending}}
	queue.On("List", mock.Anything, models.ReviewStatusPending, 10, 5).Return(pending, nil)
	queue.On("Count", mock.Anything, mock.Anything).Return(int64(1), nil)
	queue.On("Reject", mock.Anything, "missing", "op-1").Return(nil, services.ErrReviewNotFound)
	queue.On("Approve", mock.Anything, "r1", "op-1", models.Document(nil)).
		Return(&models.DocumentReview{ID: "r1", Status: models.ReviewStatusApproved}, nil)
	router := newRouter(t, queue)

	w := do(router, http.MethodGet, "/v1/admin/reviews?status=pending&limit=10&offset=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page services.ReviewPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Reviews, 1)
	assert.Equal(t, int64(1), page.Total)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/v1/admin/reviews?status=archived", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/v1/admin/reviews?limit=ten", nil).Code)

	w = do(router, http.MethodPost, "/v1/admin/reviews/r1/approve", gin.H{"reviewer_id": "op-1"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(router, http.MethodPost, "/v1/admin/reviews/missing/reject", gin.H{"reviewer_id": "op-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(router, http.MethodPost, "/v1/admin/reviews/r1/reject", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	queue.AssertExpectations(t)
}

func TestHealthAndFallbacks(t *testing.T) {
	router := newRouter(t, nil)

	w := do(router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	var health responses.HealthCheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "enabled", health.Services["cache"])
	assert.Equal(t, "disabled", health.Services["review_queue"])

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/v2/nothing", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/docs", nil).Code)
}

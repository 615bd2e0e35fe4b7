package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/invoice-parser/app/config"
	"github.com/invoice-parser/app/models"
	"github.com/invoice-parser/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(t *testing.T) *processor.Processor {
	t.Helper()
	p, err := processor.New(config.Default(), nil)
	require.NoError(t, err)
	return p
}

func usableDoc() models.Document {
	return models.Document{
		models.SectionDeliveryPoint: {
			models.FieldPPENumber:   models.NewField("590310000000123456", 0.95),
			models.FieldTariffGroup: models.NewField("G11", 0.95),
			models.FieldStreet:      models.NewField("Giełdowa", 0.95),
			models.FieldBuilding:    models.NewField("4C", 0.95),
			models.FieldPostalCode:  models.NewField("01-211", 0.95),
			models.FieldCity:        models.NewField("Warszawa", 0.95),
		},
		models.SectionCustomer: {
			models.FieldFirstName: models.NewField("Jan", 0.95),
			models.FieldLastName:  models.NewField("Kowalski", 0.95),
		},
	}
}

func supplierOnlyDoc() models.Document {
	return models.Document{
		models.SectionSupplier: {models.FieldSupplierName: models.NewField("Energa Obrót", 0.9)},
	}
}

func TestDocumentService_ProcessUsesCache(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheService(100, time.Hour)
	ds := NewDocumentService(newTestProcessor(t), cache, nil, nil)

	first, err := ds.Process(ctx, usableDoc())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.True(t, first.Report.Usable)
	assert.Equal(t, "GIEŁDOWA", first.Document.Section(models.SectionDeliveryPoint).Value(models.FieldStreet))

	second, err := ds.Process(ctx, usableDoc())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Report, second.Report)

	stats := ds.GetStats(ctx)
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(1), stats.CacheHits)
	require.NotNil(t, stats.Cache)
	assert.Equal(t, int64(1), stats.Cache.TotalItems)
}

func TestDocumentService_UnusableGoesToReview(t *testing.T) {
	ctx := context.Background()
	queue := &mockReviewQueue{}
	queue.On("Enqueue", mock.Anything, mock.AnythingOfType("string"), mock.Anything,
		mock.MatchedBy(func(r models.DocumentReport) bool { return !r.Usable })).
		Return(&models.DocumentReview{ID: "r1"}, nil).Once()

	ds := NewDocumentService(newTestProcessor(t), NewCacheService(10, time.Hour), queue, nil)

	out, err := ds.Process(ctx, supplierOnlyDoc())
	require.NoError(t, err)
	assert.Equal(t, models.StatusIncomplete, out.Report.Status)

	// served from cache, not queued twice
	_, err = ds.Process(ctx, supplierOnlyDoc())
	require.NoError(t, err)

	_, err = ds.Process(ctx, usableDoc())
	require.NoError(t, err)

	queue.AssertExpectations(t)
	assert.Equal(t, int64(1), ds.GetStats(ctx).Queued)
}

func TestDocumentService_BackendFailuresDoNotFailProcessing(t *testing.T) {
	ctx := context.Background()
	queue := &mockReviewQueue{}
	queue.On("Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("mongo down"))

	ds := NewDocumentService(newTestProcessor(t), &failingCache{}, queue, nil)
	out, err := ds.Process(ctx, supplierOnlyDoc())
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.False(t, out.Report.Usable)

	stats := ds.GetStats(ctx)
	assert.Nil(t, stats.Cache)
	assert.Equal(t, int64(0), stats.Queued)
}

func TestDocumentService_EmptyDocument(t *testing.T) {
	ds := NewDocumentService(newTestProcessor(t), nil, nil, nil)
	_, err := ds.Process(context.Background(), models.Document{})
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestDocumentService_BatchJob(t *testing.T) {
	ds := NewDocumentService(newTestProcessor(t), nil, nil, nil)
	ds.SetWorkers(2)
	docs := []models.Document{usableDoc(), supplierOnlyDoc(), {}, usableDoc()}

	job := ds.SubmitBatch(docs)
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, 4, job.Total)

	require.Eventually(t, func() bool {
		st, err := ds.GetJobStatus(job.JobID)
		return err == nil && st.Status == JobStatusDone
	}, 5*time.Second, 10*time.Millisecond)

	st, err := ds.GetJobStatus(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Processed)
	assert.Equal(t, 2, st.Usable)
	assert.Equal(t, 1.0, st.Progress)

	results, err := ds.GetJobResults(job.JobID)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.True(t, results[0].Report.Usable)
	assert.False(t, results[1].Report.Usable)
	assert.Equal(t, models.StatusIncomplete, results[2].Report.Status)
	assert.Equal(t, results[0].Fingerprint, results[3].Fingerprint)
}

func TestDocumentService_UnknownJob(t *testing.T) {
	ds := NewDocumentService(newTestProcessor(t), nil, nil, nil)
	_, err := ds.GetJobStatus("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = ds.GetJobResults("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestDocumentService_ProcessSectionAndGate(t *testing.T) {
	ds := NewDocumentService(newTestProcessor(t), nil, nil, nil)
	section := ds.ProcessSection(models.SectionCustomer, models.Section{
		models.FieldPostalCity: models.NewField("80-180 Gdańsk", 0.9),
	})
	assert.Equal(t, "80-180", section.Value(models.FieldPostalCode))
	assert.Equal(t, "GDAŃSK", section.Value(models.FieldCity))

	assert.False(t, ds.IsUsable(supplierOnlyDoc()))
	rep := ds.Completeness(supplierOnlyDoc())
	assert.Contains(t, rep.Flags, models.FlagMissingPPE)
}

func TestDocumentService_ClearCache(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheService(10, time.Hour)
	ds := NewDocumentService(newTestProcessor(t), cache, nil, nil)
	_, err := ds.Process(ctx, usableDoc())
	require.NoError(t, err)
	require.Equal(t, 1, cache.Size())

	require.NoError(t, ds.ClearCache(ctx))
	assert.Equal(t, 0, cache.Size())
	assert.Equal(t, 0, ds.GetStats(ctx).NormalizerLen)
}

package processor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/invoice-parser/app/config"
	"github.com/invoice-parser/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type goldenCase struct {
	Name   string          `json:"name"`
	Input  models.Document `json:"input"`
	Expect struct {
		Fields         map[string]string `json:"fields"`
		Usable         bool              `json:"usable"`
		Status         string            `json:"status"`
		Flags          []string          `json:"flags"`
		OperatorSource string            `json:"operatorSource"`
	} `json:"expect"`
}

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := New(config.Default(), nil)
	require.NoError(t, err)
	return p
}

func TestProcess_Golden(t *testing.T) {
	p := newTestProcessor(t)
	files, err := filepath.Glob(filepath.Join("testdata", "golden", "*.json"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		raw, err := os.ReadFile(file)
		require.NoError(t, err)
		var gc goldenCase
		require.NoError(t, json.Unmarshal(raw, &gc), file)

		t.Run(filepath.Base(file), func(t *testing.T) {
			res := p.Process(gc.Input)
			for path, want := range gc.Expect.Fields {
				section, field, ok := strings.Cut(path, ".")
				require.True(t, ok, path)
				assert.Equal(t, want, res.Document.Section(section).Value(field), path)
			}
			assert.Equal(t, gc.Expect.Usable, res.Report.Usable)
			assert.Equal(t, gc.Expect.Status, res.Report.Status)
			assert.ElementsMatch(t, gc.Expect.Flags, res.Report.Flags)
			if gc.Expect.OperatorSource != "" {
				require.NotNil(t, res.Report.Operator)
				assert.Equal(t, gc.Expect.OperatorSource, res.Report.Operator.Source)
			}
			assert.True(t, res.Report.IsValidStatus())
		})
	}
}

func TestProcess_InputUntouched(t *testing.T) {
	p := newTestProcessor(t)
	doc := models.Document{
		models.SectionCustomer: {
			models.FieldFullName: models.NewField("Kowalski Jan", 0.9),
		},
	}
	res := p.Process(doc)
	assert.Equal(t, "JAN", res.Document[models.SectionCustomer].Value(models.FieldFirstName))
	assert.Len(t, doc[models.SectionCustomer], 1)
	assert.Equal(t, "Kowalski Jan", doc[models.SectionCustomer][models.FieldFullName].Content)
}

func TestProcess_OriginalValuesKept(t *testing.T) {
	p := newTestProcessor(t)
	res := p.Process(models.Document{
		models.SectionDeliveryPoint: {
			models.FieldTariffGroup: models.NewField("Taryfa g11", 0.9),
		},
	})
	f := res.Document[models.SectionDeliveryPoint][models.FieldTariffGroup]
	assert.Equal(t, "G11", f.Content)
	assert.Equal(t, "Taryfa g11", f.Metadata.OriginalValue)
	assert.Equal(t, "tariff_extract", f.Metadata.TransformationType)
}

func TestProcessSection(t *testing.T) {
	p := newTestProcessor(t)
	out := p.ProcessSection(models.SectionCustomer, models.Section{
		models.FieldAddressLine: models.NewField("ul. Giełdowa 4C/29", 0.9),
	}, nil)
	assert.Equal(t, "GIEŁDOWA", out.Value(models.FieldStreet))
	assert.Equal(t, "4C", out.Value(models.FieldBuilding))
	assert.Equal(t, "29", out.Value(models.FieldUnit))
}

func TestCalculateCompleteness(t *testing.T) {
	p := newTestProcessor(t)
	section := models.Section{models.FieldSupplierName: models.NewField("ENERGIA PLUS", 0.9)}
	rep := p.CalculateGroupCompleteness(section, models.SectionSupplier)
	assert.Equal(t, 1, rep.FilledRequired)
	assert.InDelta(t, 0.7, rep.Completeness, 1e-9)

	doc := models.Document{models.SectionSupplier: section}
	docRep := p.CalculateDocumentCompleteness(doc)
	assert.InDelta(t, 0.7, docRep.Completeness, 1e-9)
	assert.False(t, docRep.Usable)
	assert.Nil(t, docRep.Operator)
	assert.False(t, p.IsUsable(doc))
	assert.False(t, p.HasRequiredFields(doc.Flatten()))
}

func TestProcess_Concurrent(t *testing.T) {
	p := newTestProcessor(t)
	doc := models.Document{
		models.SectionCustomer: {
			models.FieldFullName: models.NewField("Jan Kowalski, Anna Kowalska", 0.9),
			models.FieldCity:     models.NewField("Gdańsk", 0.9),
		},
	}
	var wg sync.WaitGroup
	results := make([]Result, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Process(doc)
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, results[0].Document, r.Document)
	}
	assert.LessOrEqual(t, p.CacheLen(), config.Default().Normalizer.CacheCapacity)
}

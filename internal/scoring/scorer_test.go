package scoring

import (
	"testing"

	"github.com/invoice-parser/app/config"
	"github.com/invoice-parser/app/models"
	"github.com/invoice-parser/internal/operator"
	"github.com/stretchr/testify/assert"
)

func newTestScorer() *Scorer {
	cfg := config.Default()
	return NewScorer(cfg.Scoring, cfg.Thresholds)
}

func TestFieldQuality(t *testing.T) {
	testCases := []struct {
		name     string
		field    models.Field
		expected float64
	}{
		{"empty", models.NewField("", 0.9), 0},
		{"short number keeps confidence", models.NewField("4C", 0.8), 0.8},
		{"short text keeps confidence", models.NewField("ABC", 0.5), 0.5},
		{"long value lifted", models.NewField("GIEŁDOWA", 0.8), 0.88},
		{"high confidence lifted twice", models.NewField("WARSZAWA", 0.95), 1.0},
		{"uncertainty mark", models.NewField("KOW?LSKI", 0.5), 0.33},
		{"short with mark", models.NewField("1*", 0.5), 0.3},
		{"lift stays clamped", models.NewField("590310000000123456", 0.85), 0.935},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, FieldQuality(tc.field), 1e-9)
		})
	}
}

func TestSectionCompleteness_EmptySection(t *testing.T) {
	s := newTestScorer()
	assert.Equal(t, models.CompletenessReport{}, s.SectionCompleteness(models.Section{}, models.SectionCustomer))
	assert.Equal(t, models.CompletenessReport{}, s.SectionCompleteness(nil, models.SectionBilling))
}

func TestSectionCompleteness_Weights(t *testing.T) {
	s := newTestScorer()
	section := models.Section{
		models.FieldStreet:     models.NewField("GIEŁDOWA", 0.8),
		models.FieldBuilding:   models.NewField("4C", 0.8),
		models.FieldPostalCode: models.NewField("01-211", 0.8),
		models.FieldCity:       models.NewField("", 0.8),
		models.FieldUnit:       models.NewField("29", 0.8),
	}
	rep := s.SectionCompleteness(section, models.SectionCorrespondence)
	assert.Equal(t, 3, rep.FilledRequired)
	assert.Equal(t, 4, rep.TotalRequired)
	assert.Equal(t, 1, rep.FilledOptional)
	assert.Equal(t, 4, rep.TotalOptional)
	assert.InDelta(t, 0.7*0.75+0.3*0.25, rep.Completeness, 1e-9)
}

func TestSectionCompleteness_RequiredOnlyShare(t *testing.T) {
	s := NewScorer(config.ScoringCfg{RequiredWeight: 0.7, OptionalWeight: 0.3, LowConfidenceFloor: 0.35}, config.Thresholds{})
	s.groups = map[string]GroupDefinition{"only": {Required: []string{"a", "b"}}}
	rep := s.SectionCompleteness(models.Section{"a": models.NewField("x", 0.9)}, "only")
	assert.InDelta(t, 0.5, rep.Completeness, 1e-9)
}

func TestSectionCompleteness_ConfidenceSkipsLowFields(t *testing.T) {
	s := newTestScorer()
	section := models.Section{
		models.FieldPPENumber:   models.NewField("590310000000123456", 0.8),
		models.FieldTariffGroup: models.NewField("G11", 0.3),
	}
	rep := s.SectionCompleteness(section, models.SectionDeliveryPoint)
	assert.InDelta(t, 0.88, rep.Confidence, 1e-9)
}

func TestSectionCompleteness_Bounds(t *testing.T) {
	s := newTestScorer()
	values := []float64{0, 0.2, 0.36, 0.9, 1}
	for group, def := range Groups {
		for _, v := range values {
			section := models.Section{}
			for _, f := range append(append([]string{}, def.Required...), def.Optional...) {
				section[f] = models.NewField("WARTOŚĆ POLA", v)
			}
			rep := s.SectionCompleteness(section, group)
			assert.GreaterOrEqual(t, rep.Completeness, 0.0, group)
			assert.LessOrEqual(t, rep.Completeness, 1.0, group)
			assert.GreaterOrEqual(t, rep.Confidence, 0.0, group)
			assert.LessOrEqual(t, rep.Confidence, 1.0, group)
		}
	}
}

func TestImportanceOverride(t *testing.T) {
	cfg := config.Default().Scoring
	cfg.FieldImportance = map[string]float64{models.FieldCity: 0.1}
	s := NewScorer(cfg, config.Default().Thresholds)
	assert.Equal(t, 0.1, s.weight(models.FieldCity))
	assert.Equal(t, 1.0, s.weight(models.FieldPPENumber))
	assert.Equal(t, defaultImportance, s.weight("meterReading"))
}

func usableDocument() models.Document {
	return models.Document{
		models.SectionDeliveryPoint: {
			models.FieldPPENumber:   models.NewField("590310000000123456", 0.95),
			models.FieldTariffGroup: models.NewField("G11", 0.95),
			models.FieldStreet:      models.NewField("GIEŁDOWA", 0.95),
			models.FieldBuilding:    models.NewField("4C", 0.95),
			models.FieldPostalCode:  models.NewField("01-211", 0.95),
			models.FieldCity:        models.NewField("WARSZAWA", 0.95),
		},
		models.SectionCustomer: {
			models.FieldFirstName: models.NewField("JAN", 0.95),
			models.FieldLastName:  models.NewField("KOWALSKI", 0.95),
		},
	}
}

func TestIsUsable(t *testing.T) {
	doc := usableDocument()
	assert.True(t, IsUsable(doc))

	noPPE := doc.Clone()
	delete(noPPE[models.SectionDeliveryPoint], models.FieldPPENumber)
	assert.False(t, IsUsable(noPPE))

	business := doc.Clone()
	business[models.SectionCustomer] = models.Section{
		models.FieldBusinessName: models.NewField("ENERGIA PLUS SP. Z O.O.", 0.9),
		models.FieldTaxID:        models.NewField("5260250274", 0.9),
	}
	assert.True(t, IsUsable(business))

	noAddress := doc.Clone()
	noAddress[models.SectionDeliveryPoint][models.FieldCity] = models.NewField("", 0.9)
	assert.False(t, IsUsable(noAddress))

	partial := doc.Clone()
	partial[models.SectionBilling] = models.Section{
		models.FieldStartDate: models.NewField("2024-01-01", 0.9),
		models.FieldEndDate:   models.NewField("2024-01-31", 0.9),
	}
	assert.False(t, IsUsable(partial))

	partial[models.SectionBilling][models.FieldUsage] = models.NewField("1234.5", 0.9)
	assert.True(t, IsUsable(partial))
}

func TestIsUsable_EmptyBillingCountsAsAbsent(t *testing.T) {
	for name, billing := range map[string]models.Section{
		"nil section":  nil,
		"empty fields": {models.FieldUsage: models.NewField("", 0.9), models.FieldStartDate: models.NewField("  ", 0.8)},
	} {
		t.Run(name, func(t *testing.T) {
			doc := usableDocument()
			doc[models.SectionBilling] = billing
			assert.True(t, IsUsable(doc))
			assert.NotContains(t, Flags(doc, nil), models.FlagPartialBilling)
		})
	}
}

func TestIsUsable_MissingPPEWithEverythingElse(t *testing.T) {
	doc := models.Document{}
	for group, def := range Groups {
		section := models.Section{}
		for _, f := range append(append([]string{}, def.Required...), def.Optional...) {
			section[f] = models.NewField("X1", 0.99)
		}
		doc[group] = section
	}
	assert.True(t, IsUsable(doc))
	delete(doc[models.SectionDeliveryPoint], models.FieldPPENumber)
	assert.False(t, IsUsable(doc))
}

func TestDocumentCompleteness(t *testing.T) {
	s := newTestScorer()
	doc := usableDocument()
	doc["attachments"] = models.Section{"page": models.NewField("1", 0.9)}

	report := s.DocumentCompleteness(doc, &models.OperatorInfo{Name: "Stoen Operator Sp. z o.o.", Source: operator.SourceDeliveryPointPostal})
	assert.Len(t, report.Sections, 2)
	dp := report.Sections[models.SectionDeliveryPoint]
	cust := report.Sections[models.SectionCustomer]
	assert.InDelta(t, (dp.Completeness+cust.Completeness)/2, report.Completeness, 1e-9)
	assert.InDelta(t, (dp.Confidence+cust.Confidence)/2, report.Confidence, 1e-9)
	assert.True(t, report.Usable)
	assert.Equal(t, models.StatusUsable, report.Status)
	assert.Equal(t, []string{models.FlagOperatorFromPostalCode}, report.Flags)
}

func TestDocumentCompleteness_Statuses(t *testing.T) {
	s := newTestScorer()

	report := s.DocumentCompleteness(models.Document{}, nil)
	assert.Equal(t, models.StatusIncomplete, report.Status)
	assert.False(t, report.Usable)
	assert.ElementsMatch(t, []string{
		models.FlagMissingPPE, models.FlagMissingTariff, models.FlagMissingIdentity,
		models.FlagMissingAddress, models.FlagLowConfidence,
	}, report.Flags)

	doc := usableDocument()
	for name, section := range doc {
		for k, f := range section {
			f.Confidence = 0.6
			section[k] = f
		}
		doc[name] = section
	}
	report = s.DocumentCompleteness(doc, nil)
	assert.True(t, report.Usable)
	assert.Equal(t, models.StatusNeedsReview, report.Status)
	assert.NotContains(t, report.Flags, models.FlagLowConfidence)
}

func TestHasRequiredFields(t *testing.T) {
	assert.True(t, HasRequiredFields(usableDocument().Flatten()))
	assert.False(t, HasRequiredFields(models.Section{
		models.FieldPPENumber:   models.NewField("590310000000123456", 0.9),
		models.FieldTariffGroup: models.NewField("G11", 0.9),
		models.FieldFirstName:   models.NewField("JAN", 0.9),
	}))
}

package scoring

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/invoice-parser/app/config"
	"github.com/invoice-parser/app/models"
	"github.com/invoice-parser/internal/operator"
)

// GroupDefinition lists the required and optional fields of a section
type GroupDefinition struct {
	Required []string `json:"required"`
	Optional []string `json:"optional"`
}

// Groups are the section definitions used for completeness
var Groups = map[string]GroupDefinition{
	models.SectionDeliveryPoint: {
		Required: []string{models.FieldPPENumber, models.FieldTariffGroup, models.FieldStreet, models.FieldBuilding, models.FieldPostalCode, models.FieldCity},
		Optional: []string{models.FieldMeterNumber, models.FieldUnit, models.FieldOSDName, models.FieldOSDRegion},
	},
	models.SectionCustomer: {
		Required: []string{models.FieldFirstName, models.FieldLastName, models.FieldStreet, models.FieldBuilding, models.FieldPostalCode, models.FieldCity},
		Optional: []string{models.FieldBusinessName, models.FieldTaxID, models.FieldUnit},
	},
	models.SectionCorrespondence: {
		Required: []string{models.FieldStreet, models.FieldBuilding, models.FieldPostalCode, models.FieldCity},
		Optional: []string{models.FieldFirstName, models.FieldLastName, models.FieldUnit, models.FieldBusinessName},
	},
	models.SectionSupplier: {
		Required: []string{models.FieldSupplierName},
		Optional: []string{models.FieldSupplierTaxID},
	},
	models.SectionBilling: {
		Required: []string{models.FieldStartDate, models.FieldEndDate, models.FieldUsage},
		Optional: []string{models.FieldTotalAmount, models.FieldInvoiceNumber, models.FieldIssueDate},
	},
}

const defaultImportance = 0.5

// DefaultImportance weights fields in the section confidence. Identifiers
// and names weigh most, administrative fields least.
var DefaultImportance = map[string]float64{
	models.FieldPPENumber:     1.0,
	models.FieldTaxID:         0.9,
	models.FieldSupplierTaxID: 0.9,
	models.FieldFirstName:     0.9,
	models.FieldLastName:      0.9,
	models.FieldBusinessName:  0.9,
	models.FieldSupplierName:  0.8,
	models.FieldTariffGroup:   0.8,
	models.FieldStreet:        0.7,
	models.FieldBuilding:      0.7,
	models.FieldPostalCode:    0.7,
	models.FieldCity:          0.7,
	models.FieldStartDate:     0.7,
	models.FieldEndDate:       0.7,
	models.FieldUsage:         0.7,
	models.FieldMeterNumber:   0.6,
	models.FieldUnit:          0.5,
	models.FieldTotalAmount:   0.5,
	models.FieldInvoiceNumber: 0.4,
	models.FieldOSDName:       0.3,
	models.FieldOSDRegion:     0.2,
	models.FieldIssueDate:     0.2,
	models.FieldBillingPeriod: 0.2,
	models.FieldAddressLine:   0.2,
	models.FieldPostalCity:    0.2,
	models.FieldFullName:      0.2,
}

// Importance is the default confidence weight of a field
func Importance(field string) float64 {
	if w, ok := DefaultImportance[field]; ok {
		return w
	}
	return defaultImportance
}

// FieldQuality adjusts the extraction confidence of one field: OCR
// uncertainty marks are penalized, longer values get a small lift.
func FieldQuality(f models.Field) float64 {
	if f.IsEmpty() {
		return 0
	}
	content := strings.TrimSpace(f.Content)
	q := f.Confidence
	if strings.ContainsAny(content, "?*") {
		q *= 0.6
	}
	if utf8.RuneCountInString(content) <= 3 {
		return models.ClampConfidence(q)
	}
	q *= 1.1
	if f.Confidence > 0.9 {
		q *= 1.05
	}
	return models.ClampConfidence(q)
}

// Scorer computes completeness and confidence reports
type Scorer struct {
	cfg        config.ScoringCfg
	thresholds config.Thresholds
	groups     map[string]GroupDefinition
	importance map[string]float64
}

// NewScorer creates a scorer; cfg.FieldImportance overrides the default
// importance table entry by entry
func NewScorer(cfg config.ScoringCfg, thresholds config.Thresholds) *Scorer {
	if cfg.RequiredWeight <= 0 && cfg.OptionalWeight <= 0 {
		cfg.RequiredWeight, cfg.OptionalWeight = 0.7, 0.3
	}
	importance := make(map[string]float64, len(DefaultImportance)+len(cfg.FieldImportance))
	for k, v := range DefaultImportance {
		importance[k] = v
	}
	for k, v := range cfg.FieldImportance {
		importance[k] = v
	}
	return &Scorer{cfg: cfg, thresholds: thresholds, groups: Groups, importance: importance}
}

// Group returns the definition of a section, if it has one
func (s *Scorer) Group(key string) (GroupDefinition, bool) {
	g, ok := s.groups[key]
	return g, ok
}

func countFilled(section models.Section, fields []string) int {
	n := 0
	for _, f := range fields {
		if section.Has(f) {
			n++
		}
	}
	return n
}

// SectionCompleteness scores one section against its group definition.
// When a group has no optional fields the required share carries full
// weight, and the other way round. A section without a definition only
// gets a confidence.
func (s *Scorer) SectionCompleteness(section models.Section, groupKey string) models.CompletenessReport {
	var rep models.CompletenessReport
	if len(section) == 0 {
		return rep
	}
	if def, ok := s.groups[groupKey]; ok {
		rep.TotalRequired = len(def.Required)
		rep.TotalOptional = len(def.Optional)
		rep.FilledRequired = countFilled(section, def.Required)
		rep.FilledOptional = countFilled(section, def.Optional)
		rep.Completeness = s.completeness(rep)
	}
	rep.Confidence = s.sectionConfidence(section)
	return rep
}

func (s *Scorer) completeness(rep models.CompletenessReport) float64 {
	reqShare, optShare := 0.0, 0.0
	if rep.TotalRequired > 0 {
		reqShare = float64(rep.FilledRequired) / float64(rep.TotalRequired)
	}
	if rep.TotalOptional > 0 {
		optShare = float64(rep.FilledOptional) / float64(rep.TotalOptional)
	}
	switch {
	case rep.TotalRequired == 0 && rep.TotalOptional == 0:
		return 0
	case rep.TotalOptional == 0:
		return models.ClampConfidence(reqShare)
	case rep.TotalRequired == 0:
		return models.ClampConfidence(optShare)
	}
	total := s.cfg.RequiredWeight + s.cfg.OptionalWeight
	return models.ClampConfidence((s.cfg.RequiredWeight*reqShare + s.cfg.OptionalWeight*optShare) / total)
}

func (s *Scorer) weight(field string) float64 {
	if w, ok := s.importance[field]; ok {
		return w
	}
	return defaultImportance
}

// sectionConfidence is the importance-weighted mean quality of the fields
// above the low-confidence floor
func (s *Scorer) sectionConfidence(section models.Section) float64 {
	names := make([]string, 0, len(section))
	for name := range section {
		names = append(names, name)
	}
	sort.Strings(names)

	var sum, weights float64
	for _, name := range names {
		q := FieldQuality(section[name])
		if q <= s.cfg.LowConfidenceFloor {
			continue
		}
		w := s.weight(name)
		sum += q * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return models.ClampConfidence(sum / weights)
}

// DocumentCompleteness averages the reports of every defined section
// present in the document, then sets the usable gate, status and flags.
// op is the operator resolved for the document and may be nil.
func (s *Scorer) DocumentCompleteness(doc models.Document, op *models.OperatorInfo) models.DocumentReport {
	report := models.DocumentReport{Sections: make(map[string]models.CompletenessReport), Operator: op}

	keys := make([]string, 0, len(doc))
	for name := range doc {
		if _, ok := s.groups[name]; ok {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)

	var comp, conf float64
	for _, name := range keys {
		rep := s.SectionCompleteness(doc[name], name)
		report.Sections[name] = rep
		comp += rep.Completeness
		conf += rep.Confidence
	}
	if n := len(keys); n > 0 {
		report.Completeness = comp / float64(n)
		report.Confidence = conf / float64(n)
	}
	s.Assess(doc, &report)
	return report
}

// Assess fills the usable gate, the status and the quality flags of a
// report whose scores are already computed
func (s *Scorer) Assess(doc models.Document, report *models.DocumentReport) {
	report.Flags = Flags(doc, report.Operator)
	report.Usable = IsUsable(doc)
	if s.thresholds.ReviewLow > 0 && report.Confidence < s.thresholds.ReviewLow {
		report.Flags = append(report.Flags, models.FlagLowConfidence)
	}
	switch {
	case !report.Usable:
		report.Status = models.StatusIncomplete
	case report.Confidence >= s.thresholds.High:
		report.Status = models.StatusUsable
	default:
		report.Status = models.StatusNeedsReview
	}
}

func hasIdentity(fields models.Section) bool {
	person := fields.Has(models.FieldFirstName) && fields.Has(models.FieldLastName)
	business := fields.Has(models.FieldBusinessName) && fields.Has(models.FieldTaxID)
	return person || business
}

// HasRequiredFields checks a flat field map for the PPE identifier, the
// tariff and an identity: a person name or a business name with tax id
func HasRequiredFields(fields models.Section) bool {
	return fields.Has(models.FieldPPENumber) && fields.Has(models.FieldTariffGroup) && hasIdentity(fields)
}

func completeAddress(section models.Section) bool {
	for _, f := range []string{models.FieldStreet, models.FieldBuilding, models.FieldPostalCode, models.FieldCity} {
		if !section.Has(f) {
			return false
		}
	}
	return true
}

func hasCompleteAddress(doc models.Document) bool {
	for _, name := range models.AddressSections {
		if completeAddress(doc.Section(name)) {
			return true
		}
	}
	return false
}

// partialBilling reports a billing section that holds some value but misses
// any of the dates or the usage. A billing section without any value counts as
// absent.
func partialBilling(doc models.Document) bool {
	billing := doc[models.SectionBilling]
	if !anyFilled(billing) {
		return false
	}
	return !(billing.Has(models.FieldStartDate) && billing.Has(models.FieldEndDate) && billing.Has(models.FieldUsage))
}

func anyFilled(section models.Section) bool {
	for _, f := range section {
		if !f.IsEmpty() {
			return true
		}
	}
	return false
}

// IsUsable is the contract-creation gate
func IsUsable(doc models.Document) bool {
	return HasRequiredFields(doc.Flatten()) && hasCompleteAddress(doc) && !partialBilling(doc)
}

// Flags lists what keeps a document from being usable, plus the operator
// provenance flag
func Flags(doc models.Document, op *models.OperatorInfo) []string {
	flat := doc.Flatten()
	flags := []string{}
	if !flat.Has(models.FieldPPENumber) {
		flags = append(flags, models.FlagMissingPPE)
	}
	if !flat.Has(models.FieldTariffGroup) {
		flags = append(flags, models.FlagMissingTariff)
	}
	if !hasIdentity(flat) {
		flags = append(flags, models.FlagMissingIdentity)
	}
	if !hasCompleteAddress(doc) {
		flags = append(flags, models.FlagMissingAddress)
	}
	if partialBilling(doc) {
		flags = append(flags, models.FlagPartialBilling)
	}
	if op != nil && op.Source != operator.SourceField {
		flags = append(flags, models.FlagOperatorFromPostalCode)
	}
	return flags
}

package reconcile

import (
	"sort"

	"github.com/invoice-parser/app/config"
	"github.com/invoice-parser/app/models"
	"github.com/invoice-parser/internal/normalizer"
	"github.com/invoice-parser/internal/operator"
	"github.com/invoice-parser/internal/rules"
	"github.com/invoice-parser/internal/scoring"
	"go.uber.org/zap"
)

// Transformation types recorded on reconciled fields
const (
	TransformationMerge        = "reconcile_merge"
	TransformationOperatorFill = "operator_fill"
	TransformationDeduplicated = "deduplicated"
)

// Candidate is one source value offered to Merge
type Candidate struct {
	Field  models.Field
	Weight float64
	// Source is recorded in the merged field metadata when set
	Source string
}

// MergeStrategy builds the merged field from the winning group. The group
// is in the order the candidates were given.
type MergeStrategy func(group []Candidate) models.Field

// MergeOptions overrides the reconciler defaults for one Merge call
type MergeOptions struct {
	ConfidenceThreshold float64
	Strategy            MergeStrategy
}

// Reconciler validates and fills fields across the sections of one
// document. It keeps no per-document state.
type Reconciler struct {
	tn        *normalizer.TextNormalizer
	operators *operator.Resolver
	cfg       config.ReconcileCfg
	logger    *zap.Logger
}

// NewReconciler creates a reconciler. operators may be nil, in which case
// the operator fill step is skipped.
func NewReconciler(tn *normalizer.TextNormalizer, operators *operator.Resolver, cfg config.ReconcileCfg, logger *zap.Logger) *Reconciler {
	if tn == nil {
		tn = normalizer.NewTextNormalizer(0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SiblingWeight <= 0 {
		cfg.SiblingWeight = 1
	}
	return &Reconciler{tn: tn, operators: operators, cfg: cfg, logger: logger}
}

type group struct {
	members []Candidate
	sumConf float64
	sumW    float64
}

func (g *group) weightedConfidence() float64 {
	if g.sumW == 0 {
		return 0
	}
	return g.sumConf / g.sumW
}

// Merge votes over candidate values. Candidates below the confidence
// threshold or without content are dropped, the rest are grouped by their
// comparison key and ranked by occurrence count, then by weighted mean
// confidence. The first candidate of the winning group becomes the result,
// upper-cased and with its own confidence.
func (r *Reconciler) Merge(candidates []Candidate, opts *MergeOptions) (models.Field, bool) {
	threshold := r.cfg.ConfidenceThreshold
	var strategy MergeStrategy
	if opts != nil {
		if opts.ConfidenceThreshold > 0 {
			threshold = opts.ConfidenceThreshold
		}
		strategy = opts.Strategy
	}

	var order []string
	groups := make(map[string]*group)
	for _, c := range candidates {
		if c.Field.IsEmpty() || c.Field.Confidence < threshold {
			continue
		}
		key := r.tn.Canonical(c.Field.Content)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		g.members = append(g.members, c)
		g.sumConf += c.Field.Confidence * w
		g.sumW += w
	}
	if len(order) == 0 {
		return models.Field{}, false
	}

	sort.SliceStable(order, func(i, j int) bool {
		gi, gj := groups[order[i]], groups[order[j]]
		if len(gi.members) != len(gj.members) {
			return len(gi.members) > len(gj.members)
		}
		return gi.weightedConfidence() > gj.weightedConfidence()
	})
	winner := groups[order[0]]

	if strategy != nil {
		return strategy(winner.members), true
	}
	first := winner.members[0]
	meta := first.Field.Metadata
	meta.TransformationType = TransformationMerge
	if first.Source != "" {
		meta.Source = first.Source
	}
	return first.Field.Derive(normalizer.ToUpper(first.Field.Content), first.Field.Confidence, meta), true
}

// dedupTypes are the free-text field types where two field names holding
// the same value describe one physical datum
var dedupTypes = map[string]bool{
	models.FieldTypeName: true,
	models.FieldTypeText: true,
}

// Deduplicate keeps only one field among fields of one free-text type that
// hold the same normalized value under different names. The kept field has
// the highest confidence, then the highest importance, then the smallest
// name. A field derived from the kept one, or the one it was derived from,
// stays. The others are emptied; their original value is kept in metadata.
func (r *Reconciler) Deduplicate(section models.Section) models.Section {
	out := section.Clone()
	names := make([]string, 0, len(section))
	for name := range section {
		names = append(names, name)
	}
	sort.Strings(names)

	type slot struct{ fieldType, key string }
	var order []slot
	groups := make(map[slot][]string)
	for _, name := range names {
		f := section[name]
		if f.IsEmpty() {
			continue
		}
		ft := fieldType(name, f)
		if !dedupTypes[ft] {
			continue
		}
		k := slot{fieldType: ft, key: r.tn.Canonical(f.Content)}
		if k.key == "" {
			continue
		}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], name)
	}

	for _, k := range order {
		members := groups[k]
		if len(members) < 2 {
			continue
		}
		keep := members[0]
		for _, name := range members[1:] {
			if outranks(name, section[name], keep, section[keep]) {
				keep = name
			}
		}
		for _, name := range members {
			if name == keep || derived(name, section[name], keep, section[keep]) {
				continue
			}
			out[name] = r.nulled(section[name], keep)
			r.logger.Debug("duplicate field dropped",
				zap.String("field", name),
				zap.String("kept", keep))
		}
	}
	return out
}

func outranks(name string, f models.Field, other string, o models.Field) bool {
	if f.Confidence != o.Confidence {
		return f.Confidence > o.Confidence
	}
	wf, wo := scoring.Importance(name), scoring.Importance(other)
	if wf != wo {
		return wf > wo
	}
	return name < other
}

// derived reports whether one field was generated from the other
func derived(a string, fa models.Field, b string, fb models.Field) bool {
	return fa.Metadata.Source == b || fb.Metadata.Source == a
}

func (r *Reconciler) nulled(f models.Field, keptAs string) models.Field {
	meta := f.Metadata
	meta.TransformationType = TransformationDeduplicated
	meta.Source = keptAs
	return f.Derive("", 0, meta)
}

func fieldType(name string, f models.Field) string {
	if f.Metadata.FieldType != "" {
		return f.Metadata.FieldType
	}
	return rules.FieldTypeOf(name)
}

// ReconcileDocument runs the document-level pass over transformed sections:
// operator fill, name fill, address gap fill and deduplication. The input
// is not modified.
func (r *Reconciler) ReconcileDocument(doc models.Document) (models.Document, *models.OperatorInfo) {
	out := doc.Clone()

	info := r.Operator(out)
	r.fillOperator(out, info)
	r.fillNames(out)
	r.fillAddressGaps(out)

	for name, section := range out {
		out[name] = r.Deduplicate(section)
	}
	return out, info
}

// Operator resolves the grid operator of a document, or nil
func (r *Reconciler) Operator(doc models.Document) *models.OperatorInfo {
	if r.operators == nil {
		return nil
	}
	return r.operators.ResolveDocument(doc)
}

func (r *Reconciler) fillOperator(doc models.Document, info *models.OperatorInfo) {
	if info == nil {
		return
	}
	dp, ok := doc[models.SectionDeliveryPoint]
	if !ok {
		return
	}
	meta := models.FieldMetadata{
		FieldType:          models.FieldTypeName,
		TransformationType: TransformationOperatorFill,
		Source:             info.Source,
	}
	if !dp.Has(models.FieldOSDName) {
		dp[models.FieldOSDName] = models.Field{Content: info.Name, Confidence: info.Confidence, Metadata: meta}
	}
	if info.Region != "" && !dp.Has(models.FieldOSDRegion) {
		meta.FieldType = models.FieldTypeCity
		dp[models.FieldOSDRegion] = models.Field{Content: info.Region, Confidence: info.Confidence, Metadata: meta}
	}
}

var nameSections = []string{models.SectionCustomer, models.SectionCorrespondence}

// fillNames completes empty person names from the other name-bearing
// section. Sections naming a business are left alone.
func (r *Reconciler) fillNames(doc models.Document) {
	for _, target := range nameSections {
		section, ok := doc[target]
		if !ok || section.Has(models.FieldBusinessName) {
			continue
		}
		for _, field := range []string{models.FieldFirstName, models.FieldLastName} {
			if section.Has(field) {
				continue
			}
			var cands []Candidate
			for _, src := range nameSections {
				if src == target {
					continue
				}
				if f, ok := doc[src][field]; ok {
					cands = append(cands, Candidate{Field: f, Weight: r.cfg.SiblingWeight, Source: src + "." + field})
				}
			}
			if merged, ok := r.Merge(cands, nil); ok {
				merged.Confidence = models.ClampConfidence(merged.Confidence * r.cfg.SiblingWeight)
				section[field] = merged
			}
		}
	}
}

var gapFields = []string{models.FieldPostalCode, models.FieldCity, models.FieldUnit}

// fillAddressGaps lets an address set borrow postal code, city and unit
// from sibling sets that name the same street and building
func (r *Reconciler) fillAddressGaps(doc models.Document) {
	for _, target := range models.AddressSections {
		section, ok := doc[target]
		if !ok || !section.Has(models.FieldStreet) || !section.Has(models.FieldBuilding) {
			continue
		}
		var matching []string
		for _, src := range models.AddressSections {
			if src != target && r.sameAddress(section, doc[src]) {
				matching = append(matching, src)
			}
		}
		if len(matching) == 0 {
			continue
		}
		for _, field := range gapFields {
			if section.Has(field) {
				continue
			}
			var cands []Candidate
			for _, src := range matching {
				if f, ok := doc[src][field]; ok {
					cands = append(cands, Candidate{Field: f, Weight: r.cfg.SiblingWeight, Source: src + "." + field})
				}
			}
			merged, ok := r.Merge(cands, nil)
			if !ok {
				continue
			}
			merged.Confidence = models.ClampConfidence(merged.Confidence * r.cfg.SiblingWeight)
			section[field] = merged
			r.logger.Debug("address gap filled",
				zap.String("section", target),
				zap.String("field", field),
				zap.String("source", merged.Metadata.Source))
		}
	}
}

func (r *Reconciler) sameAddress(a, b models.Section) bool {
	for _, f := range []string{models.FieldStreet, models.FieldBuilding} {
		ka, kb := r.tn.Canonical(a.Value(f)), r.tn.Canonical(b.Value(f))
		if ka == "" || ka != kb {
			return false
		}
	}
	return true
}

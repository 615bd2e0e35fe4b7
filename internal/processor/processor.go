package processor

import (
	"fmt"
	"sort"

	"github.com/invoice-parser/app/config"
	"github.com/invoice-parser/app/models"
	"github.com/invoice-parser/internal/names"
	"github.com/invoice-parser/internal/normalizer"
	"github.com/invoice-parser/internal/operator"
	"github.com/invoice-parser/internal/parser"
	"github.com/invoice-parser/internal/reconcile"
	"github.com/invoice-parser/internal/rules"
	"github.com/invoice-parser/internal/scoring"
	"go.uber.org/zap"
)

// Result is a processed document with its quality report
type Result struct {
	Document models.Document       `json:"document"`
	Report   models.DocumentReport `json:"report"`
}

// Processor runs the whole field pipeline: rule transformation per
// section, document reconciliation and scoring. It is safe for concurrent
// use once built.
type Processor struct {
	normalizer *normalizer.TextNormalizer
	engine     *rules.Engine
	reconciler *reconcile.Reconciler
	scorer     *scoring.Scorer
	logger     *zap.Logger
}

// New wires the pipeline components from the engine configuration
func New(cfg config.EngineCfg, logger *zap.Logger) (*Processor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rulesCfg, err := normalizer.LoadRulesConfig()
	if err != nil {
		return nil, fmt.Errorf("load address rules: %w", err)
	}
	nameClassifier, err := names.Load()
	if err != nil {
		return nil, fmt.Errorf("load name dictionaries: %w", err)
	}
	ops, err := operator.NewResolver(cfg.Operator, logger.Named("operator"))
	if err != nil {
		return nil, fmt.Errorf("load operator table: %w", err)
	}

	tn := normalizer.NewTextNormalizer(cfg.Normalizer.CacheCapacity, cfg.Normalizer.EvictFraction)
	engine := rules.NewEngine(logger.Named("rules"))
	rules.RegisterDefaults(engine, rules.Deps{
		Parser:    parser.NewAddressParser(rulesCfg, cfg.UseLibpostal, logger.Named("parser")),
		Names:     nameClassifier,
		Operators: ops,
	})

	return &Processor{
		normalizer: tn,
		engine:     engine,
		reconciler: reconcile.NewReconciler(tn, ops, cfg.Reconcile, logger.Named("reconcile")),
		scorer:     scoring.NewScorer(cfg.Scoring, cfg.Thresholds),
		logger:     logger,
	}, nil
}

// Process runs the full pipeline and scores the result
func (p *Processor) Process(doc models.Document) Result {
	transformed := p.transform(doc)
	reconciled, op := p.reconciler.ReconcileDocument(transformed)
	report := p.scorer.DocumentCompleteness(reconciled, op)

	p.logger.Debug("document processed",
		zap.String("status", report.Status),
		zap.Float64("completeness", report.Completeness),
		zap.Float64("confidence", report.Confidence),
		zap.Strings("flags", report.Flags))
	return Result{Document: reconciled, Report: report}
}

// ProcessDocument returns the transformed and reconciled document
func (p *Processor) ProcessDocument(doc models.Document) models.Document {
	return p.Process(doc).Document
}

// ProcessSection transforms one section. ctx is the document the section
// belongs to and may be nil.
func (p *Processor) ProcessSection(name string, section models.Section, ctx models.Document) models.Section {
	return p.engine.ProcessSection(name, section, ctx)
}

// transform runs the rule engine over every section. Every section sees
// the untransformed input document as context.
func (p *Processor) transform(doc models.Document) models.Document {
	keys := make([]string, 0, len(doc))
	for name := range doc {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	out := make(models.Document, len(doc))
	for _, name := range keys {
		out[name] = p.engine.ProcessSection(name, doc[name], doc)
	}
	return out
}

// CalculateGroupCompleteness scores one section against a group definition
func (p *Processor) CalculateGroupCompleteness(section models.Section, groupKey string) models.CompletenessReport {
	return p.scorer.SectionCompleteness(section, groupKey)
}

// CalculateDocumentCompleteness scores a document as it is, without
// transforming it. The operator is resolved from the document fields.
func (p *Processor) CalculateDocumentCompleteness(doc models.Document) models.DocumentReport {
	return p.scorer.DocumentCompleteness(doc, p.reconciler.Operator(doc))
}

// IsUsable applies the contract-creation gate to a document
func (p *Processor) IsUsable(doc models.Document) bool {
	return scoring.IsUsable(doc)
}

// HasRequiredFields checks a flat field map for the identifiers a contract needs
func (p *Processor) HasRequiredFields(fields models.Section) bool {
	return scoring.HasRequiredFields(fields)
}

// CacheLen reports the size of the normalization cache
func (p *Processor) CacheLen() int {
	return p.normalizer.Len()
}

// PurgeCache drops the normalization cache
func (p *Processor) PurgeCache() {
	p.normalizer.Purge()
}

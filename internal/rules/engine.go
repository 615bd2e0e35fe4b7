package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/invoice-parser/app/models"
	"go.uber.org/zap"
)

// Context is what a rule sees besides the value it transforms. Document is
// the input document and must not be modified.
type Context struct {
	FieldName      string
	SectionName    string
	Document       models.Document
	BaseConfidence float64
}

// Sibling returns another section of the input document
func (c *Context) Sibling(name string) models.Section {
	return c.Document.Section(name)
}

// Result is the output of one rule application
type Result struct {
	Value      string
	Confidence float64
	Metadata   models.FieldMetadata
	// AdditionalFields are merged into the section after the pass; they are
	// never fed back into the engine
	AdditionalFields map[string]models.Field
}

// Emit adds a generated field to the result
func (r *Result) Emit(name, value string, confidence float64, fieldType string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	if r.AdditionalFields == nil {
		r.AdditionalFields = make(map[string]models.Field)
	}
	r.AdditionalFields[name] = models.Field{
		Content:    value,
		Confidence: models.ClampConfidence(confidence),
		Metadata:   models.FieldMetadata{FieldType: fieldType},
	}
}

// Rule is one field transformation. A nil Condition means always eligible.
type Rule struct {
	Name      string
	Priority  int
	Condition func(value string, ctx *Context) bool
	Transform func(value string, ctx *Context) (Result, error)
}

type registeredRule struct {
	rule   Rule
	fields map[string]bool // nil means every field
}

func (rr registeredRule) appliesTo(field string) bool {
	return rr.fields == nil || rr.fields[field]
}

// Engine applies at most one rule per field per pass: rules are tried in
// descending priority (ties in registration order) and the first eligible
// one wins. Register every rule before processing; after that the engine
// is safe for concurrent use.
type Engine struct {
	rules  []registeredRule
	logger *zap.Logger
}

// NewEngine creates an empty engine
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Register adds a rule for the given fields, or for every field when none
// are given
func (e *Engine) Register(rule Rule, fields ...string) {
	rr := registeredRule{rule: rule}
	if len(fields) > 0 {
		rr.fields = make(map[string]bool, len(fields))
		for _, f := range fields {
			rr.fields[f] = true
		}
	}
	e.rules = append(e.rules, rr)
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].rule.Priority > e.rules[j].rule.Priority
	})
}

// RulesFor lists the rule names tried for a field, in evaluation order
func (e *Engine) RulesFor(field string) []string {
	var names []string
	for _, rr := range e.rules {
		if rr.appliesTo(field) {
			names = append(names, rr.rule.Name)
		}
	}
	return names
}

// ApplyField runs the first eligible rule over one field. A rule that fails
// or panics leaves the field as it was. Empty fields pass through.
func (e *Engine) ApplyField(field models.Field, ctx *Context) (models.Field, map[string]models.Field) {
	if field.IsEmpty() {
		return field, nil
	}
	value := field.Content

	out, extra, applied, err := e.apply(field, value, ctx)
	if err != nil {
		e.logger.Warn("rule failed, field kept unchanged",
			zap.String("rule", applied),
			zap.String("section", ctx.SectionName),
			zap.String("field", ctx.FieldName),
			zap.Error(err))
		return field, nil
	}
	if applied != "" {
		e.logger.Debug("field transformed",
			zap.String("rule", applied),
			zap.String("section", ctx.SectionName),
			zap.String("field", ctx.FieldName),
			zap.String("from", value),
			zap.String("to", out.Content))
	}
	return out, extra
}

func (e *Engine) apply(field models.Field, value string, ctx *Context) (out models.Field, extra map[string]models.Field, applied string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			out, extra = field, nil
		}
	}()

	for _, rr := range e.rules {
		if !rr.appliesTo(ctx.FieldName) {
			continue
		}
		applied = rr.rule.Name
		if rr.rule.Condition != nil && !rr.rule.Condition(value, ctx) {
			continue
		}
		res, terr := rr.rule.Transform(value, ctx)
		if terr != nil {
			return field, nil, applied, terr
		}
		meta := res.Metadata
		if meta.TransformationType == "" {
			meta.TransformationType = rr.rule.Name
		}
		out = field.Derive(res.Value, res.Confidence, meta)
		return out, e.stampAdditional(res.AdditionalFields, rr.rule.Name, ctx.FieldName, out.Metadata.OriginalValue), applied, nil
	}
	return field, nil, "", nil
}

func (e *Engine) stampAdditional(fields map[string]models.Field, rule, source, original string) map[string]models.Field {
	if len(fields) == 0 {
		return nil
	}
	for name, f := range fields {
		if f.Metadata.TransformationType == "" {
			f.Metadata.TransformationType = rule
		}
		if f.Metadata.Source == "" {
			f.Metadata.Source = source
		}
		if f.Metadata.OriginalValue == "" {
			f.Metadata.OriginalValue = original
		}
		fields[name] = f
	}
	return fields
}

// ProcessSection transforms every field of a section once. Fields generated
// by rules are merged afterwards: they fill missing or empty fields and
// replace only lower-confidence ones.
func (e *Engine) ProcessSection(sectionName string, section models.Section, doc models.Document) models.Section {
	if doc == nil {
		doc = models.Document{sectionName: section}
	}
	names := make([]string, 0, len(section))
	for name := range section {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(models.Section, len(section))
	type generated struct {
		name  string
		field models.Field
	}
	var pending []generated

	for _, name := range names {
		field := section[name]
		ctx := &Context{
			FieldName:      name,
			SectionName:    sectionName,
			Document:       doc,
			BaseConfidence: field.Confidence,
		}
		transformed, extra := e.ApplyField(field, ctx)
		out[name] = transformed

		extraNames := make([]string, 0, len(extra))
		for n := range extra {
			extraNames = append(extraNames, n)
		}
		sort.Strings(extraNames)
		for _, n := range extraNames {
			pending = append(pending, generated{name: n, field: extra[n]})
		}
	}

	for _, g := range pending {
		current, ok := out[g.name]
		if !ok || current.IsEmpty() || current.Confidence < g.field.Confidence {
			out[g.name] = g.field
		}
	}
	return out
}

package operator

import (
	_ "embed"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/invoice-parser/app/config"
	"github.com/invoice-parser/app/models"
	"github.com/invoice-parser/internal/normalizer"
	"github.com/invoice-parser/internal/parser"
	"github.com/xrash/smetrics"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed data/operators.yaml
var operatorsYAML []byte

// MatchStrategy names how an operator was found
type MatchStrategy string

const (
	MatchExact     MatchStrategy = "exact"
	MatchSubstring MatchStrategy = "substring"
	MatchFuzzy     MatchStrategy = "fuzzy"
	MatchPostal    MatchStrategy = "postal_code"
)

// Sources of a document-level resolution, in precedence order
const (
	SourceField                = "osdName"
	SourceDeliveryPointPostal  = "deliveryPoint.postalCode"
	SourceCorrespondencePostal = "correspondence.postalCode"
	SourceCustomerPostal       = "customer.postalCode"
)

// Match is a resolved grid operator
type Match struct {
	Name     string        `json:"name"`
	Region   string        `json:"region,omitempty"`
	Strategy MatchStrategy `json:"strategy"`
	Score    float64       `json:"score"`
}

type operatorEntry struct {
	Name string   `yaml:"name"`
	Keys []string `yaml:"keys"`
}

type postalRange struct {
	From     int    `yaml:"from"`
	To       int    `yaml:"to"`
	Operator string `yaml:"operator"`
	Region   string `yaml:"region"`
}

type tableFile struct {
	Operators    []operatorEntry `yaml:"operators"`
	PostalRanges []postalRange   `yaml:"postal_ranges"`
}

type dictKey struct {
	key  string
	name string
}

// Resolver maps operator names and postal codes to a canonical grid
// operator. It is read-only after construction.
type Resolver struct {
	exact      map[string]string
	keys       []dictKey // longest first
	ranges     []postalRange
	legalForms []normalizer.LegalForm
	cfg        config.OperatorCfg
	logger     *zap.Logger
}

var (
	defaultTable     *tableFile
	defaultTableErr  error
	defaultTableOnce sync.Once
)

func loadTable() (*tableFile, error) {
	defaultTableOnce.Do(func() {
		var t tableFile
		if err := yaml.Unmarshal(operatorsYAML, &t); err != nil {
			defaultTableErr = fmt.Errorf("operator table: %w", err)
			return
		}
		defaultTable = &t
	})
	return defaultTable, defaultTableErr
}

// NewResolver builds a resolver over the embedded operator table
func NewResolver(cfg config.OperatorCfg, logger *zap.Logger) (*Resolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	table, err := loadTable()
	if err != nil {
		return nil, err
	}
	forms, err := normalizer.DefaultRules().CompileLegalForms()
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		exact:      make(map[string]string),
		ranges:     table.PostalRanges,
		legalForms: forms,
		cfg:        cfg,
		logger:     logger,
	}
	for _, op := range table.Operators {
		for _, k := range op.Keys {
			r.exact[k] = op.Name
			r.keys = append(r.keys, dictKey{key: k, name: op.Name})
		}
	}
	sort.SliceStable(r.keys, func(i, j int) bool { return len(r.keys[i].key) > len(r.keys[j].key) })
	return r, nil
}

var regionRe = regexp.MustCompile(`(?:ODDZIA[LŁ]|REGION)\s+(?:W\s+)?([\p{L}][\p{L}\- ]*)`)

// Key reduces an operator name to its dictionary form: folded, legal forms
// replaced by tokens, everything but letters and digits removed
func (r *Resolver) Key(raw string) string {
	s := normalizer.FoldKey(raw)
	for _, lf := range r.legalForms {
		s = lf.Re.ReplaceAllString(s, " "+lf.Token+" ")
	}
	return strings.Map(func(c rune) rune {
		if (c >= 'A' && c <= 'Z') || unicode.IsDigit(c) {
			return c
		}
		return -1
	}, s)
}

// ResolveText finds the operator named in free text. Exact dictionary hits
// win, then the longest dictionary key contained in the text, then a fuzzy
// match over the whole key.
func (r *Resolver) ResolveText(raw string) (Match, bool) {
	key := r.Key(raw)
	if key == "" {
		return Match{}, false
	}
	region := extractRegion(raw)

	if name, ok := r.exact[key]; ok {
		return Match{Name: name, Region: region, Strategy: MatchExact, Score: 1}, true
	}

	for _, k := range r.keys {
		if strings.Contains(key, k.key) {
			return Match{Name: k.name, Region: region, Strategy: MatchSubstring, Score: 1}, true
		}
	}

	if len(key) < r.cfg.FuzzyMinLength {
		return Match{}, false
	}
	best, bestScore := "", 0.0
	for _, k := range r.keys {
		if s := fuzzyScore(key, k.key); s > bestScore {
			best, bestScore = k.name, s
		}
	}
	if bestScore >= r.cfg.FuzzyThreshold {
		r.logger.Debug("operator matched fuzzily",
			zap.String("raw", raw),
			zap.String("operator", best),
			zap.Float64("score", bestScore))
		return Match{Name: best, Region: region, Strategy: MatchFuzzy, Score: bestScore}, true
	}
	return Match{}, false
}

// fuzzyScore is the better of Jaro-Winkler and normalized Levenshtein
func fuzzyScore(query, key string) float64 {
	jw := smetrics.JaroWinkler(query, key, 0.7, 4)
	dist := levenshtein.ComputeDistance(query, key)
	maxLen := math.Max(float64(len(query)), float64(len(key)))
	lev := 1.0 - float64(dist)/maxLen
	return math.Max(jw, lev)
}

func extractRegion(raw string) string {
	m := regionRe.FindStringSubmatch(normalizer.ToUpper(raw))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ResolvePostalCode maps a Polish postal code to the operator governing
// its area
func (r *Resolver) ResolvePostalCode(code string) (Match, bool) {
	pc := parser.NormalizePostalCode(code)
	if pc == "" {
		return Match{}, false
	}
	prefix, err := strconv.Atoi(pc[:2])
	if err != nil {
		return Match{}, false
	}
	for _, pr := range r.ranges {
		if prefix >= pr.From && prefix <= pr.To {
			return Match{Name: pr.Operator, Region: pr.Region, Strategy: MatchPostal, Score: 1}, true
		}
	}
	return Match{}, false
}

// ResolveDocument applies the document precedence: the explicit operator
// field, then delivery point, correspondence and customer postal codes.
// The first source that resolves wins.
func (r *Resolver) ResolveDocument(doc models.Document) *models.OperatorInfo {
	if raw := doc.Section(models.SectionDeliveryPoint).Value(models.FieldOSDName); raw != "" {
		if m, ok := r.ResolveText(raw); ok {
			return &models.OperatorInfo{Name: m.Name, Region: m.Region, Source: SourceField, Confidence: 1}
		}
	}

	sources := []struct {
		section, source string
		trust           float64
	}{
		{models.SectionDeliveryPoint, SourceDeliveryPointPostal, 0.9},
		{models.SectionCorrespondence, SourceCorrespondencePostal, 0.9},
		{models.SectionCustomer, SourceCustomerPostal, 0.8},
	}
	for _, src := range sources {
		code := doc.Section(src.section).Value(models.FieldPostalCode)
		if code == "" {
			continue
		}
		if m, ok := r.ResolvePostalCode(code); ok {
			return &models.OperatorInfo{Name: m.Name, Region: m.Region, Source: src.source, Confidence: src.trust}
		}
	}
	return nil
}

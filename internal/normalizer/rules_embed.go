package normalizer

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed data/street_types.yaml
var streetTypesYAML []byte

//go:embed data/legal_forms.yaml
var legalFormsYAML []byte

// RulesConfig holds the static marker tables loaded from embedded YAML
type RulesConfig struct {
	StreetMarkers []string          `yaml:"street_markers"`
	RouteMarkers  map[string]string `yaml:"route_markers"`
	UnitMarkers   []string          `yaml:"unit_markers"`
	NumberMarkers []string          `yaml:"number_markers"`
	LegalForms    []LegalFormRule   `yaml:"legal_forms"`
}

// LegalFormRule maps spellings of a company legal form to a display
// form and a compact token
type LegalFormRule struct {
	Pattern string `yaml:"pattern"`
	Display string `yaml:"display"`
	Token   string `yaml:"token"`
}

// LegalForm is a compiled LegalFormRule
type LegalForm struct {
	Re      *regexp.Regexp
	Display string
	Token   string
}

var (
	defaultRules     *RulesConfig
	defaultRulesErr  error
	defaultRulesOnce sync.Once
)

// LoadRulesConfig parses the embedded YAML tables
func LoadRulesConfig() (*RulesConfig, error) {
	config := &RulesConfig{}

	if err := yaml.Unmarshal(streetTypesYAML, config); err != nil {
		return nil, fmt.Errorf("street types: %w", err)
	}

	if err := yaml.Unmarshal(legalFormsYAML, config); err != nil {
		return nil, fmt.Errorf("legal forms: %w", err)
	}

	return config, nil
}

// DefaultRules returns the embedded tables, parsed once. The data is
// compiled into the binary, so a parse failure is a build defect.
func DefaultRules() *RulesConfig {
	defaultRulesOnce.Do(func() {
		defaultRules, defaultRulesErr = LoadRulesConfig()
	})
	if defaultRulesErr != nil {
		panic(defaultRulesErr)
	}
	return defaultRules
}

// CompileLegalForms compiles the legal form patterns in file order
func (rc *RulesConfig) CompileLegalForms() ([]LegalForm, error) {
	out := make([]LegalForm, 0, len(rc.LegalForms))
	for _, lf := range rc.LegalForms {
		re, err := regexp.Compile(lf.Pattern)
		if err != nil {
			return nil, fmt.Errorf("legal form %q: %w", lf.Display, err)
		}
		out = append(out, LegalForm{Re: re, Display: lf.Display, Token: lf.Token})
	}
	return out, nil
}

// Alternation builds a regexp alternation of quoted markers, longest first
// so that "UL." wins over "UL"
func Alternation(markers []string) string {
	sorted := append([]string(nil), markers...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, len(sorted))
	for i, m := range sorted {
		quoted[i] = regexp.QuoteMeta(m)
	}
	return strings.Join(quoted, "|")
}

// RouteMarkerKeys returns the route marker spellings
func (rc *RulesConfig) RouteMarkerKeys() []string {
	keys := make([]string, 0, len(rc.RouteMarkers))
	for k := range rc.RouteMarkers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

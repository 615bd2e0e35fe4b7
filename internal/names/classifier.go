package names

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/invoice-parser/internal/normalizer"
	"gopkg.in/yaml.v3"
)

//go:embed data/first_names.yaml
var firstNamesYAML []byte

//go:embed data/surnames.yaml
var surnamesYAML []byte

//go:embed data/suffixes.yaml
var suffixesYAML []byte

// Gender of a given name
type Gender int

const (
	GenderUnknown Gender = iota
	GenderMale
	GenderFemale
)

// Name is a given name / surname pair
type Name struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

type suffixRule struct {
	from, to string
}

// Classifier tells given names from surnames and builds collective surname
// forms. The dictionaries are immutable after construction.
type Classifier struct {
	firstNames   map[string]Gender
	surnames     map[string]bool
	femaleToMale []suffixRule
	collective   []suffixRule
	invariant    []string
	irregular    map[string]string
	maleInA      map[string]bool
}

type firstNamesFile struct {
	Male   []string `yaml:"male"`
	Female []string `yaml:"female"`
}

type surnamesFile struct {
	Surnames []string `yaml:"surnames"`
}

type suffixesFile struct {
	FemaleToMale       map[string]string `yaml:"female_to_male"`
	Collective         map[string]string `yaml:"collective"`
	Invariant          []string          `yaml:"invariant"`
	Irregular          map[string]string `yaml:"irregular"`
	MaleNamesEndingInA []string          `yaml:"male_names_ending_in_a"`
}

var (
	defaultClassifier     *Classifier
	defaultClassifierErr  error
	defaultClassifierOnce sync.Once
)

// Default returns the classifier built from the embedded dictionaries
func Default() *Classifier {
	defaultClassifierOnce.Do(func() {
		defaultClassifier, defaultClassifierErr = Load()
	})
	if defaultClassifierErr != nil {
		panic(defaultClassifierErr)
	}
	return defaultClassifier
}

// Load parses the embedded dictionaries
func Load() (*Classifier, error) {
	var fn firstNamesFile
	if err := yaml.Unmarshal(firstNamesYAML, &fn); err != nil {
		return nil, fmt.Errorf("first names: %w", err)
	}
	var sn surnamesFile
	if err := yaml.Unmarshal(surnamesYAML, &sn); err != nil {
		return nil, fmt.Errorf("surnames: %w", err)
	}
	var sf suffixesFile
	if err := yaml.Unmarshal(suffixesYAML, &sf); err != nil {
		return nil, fmt.Errorf("suffixes: %w", err)
	}

	c := &Classifier{
		firstNames: make(map[string]Gender, len(fn.Male)+len(fn.Female)),
		surnames:   make(map[string]bool, len(sn.Surnames)),
		invariant:  sf.Invariant,
		irregular:  make(map[string]string, len(sf.Irregular)),
		maleInA:    make(map[string]bool, len(sf.MaleNamesEndingInA)),
	}
	for _, n := range fn.Male {
		c.firstNames[normalizer.FoldKey(n)] = GenderMale
	}
	for _, n := range fn.Female {
		c.firstNames[normalizer.FoldKey(n)] = GenderFemale
	}
	for _, n := range sn.Surnames {
		c.surnames[normalizer.FoldKey(n)] = true
	}
	for k, v := range sf.Irregular {
		c.irregular[normalizer.FoldKey(k)] = v
	}
	for _, n := range sf.MaleNamesEndingInA {
		c.maleInA[normalizer.FoldKey(n)] = true
	}
	c.femaleToMale = sortedSuffixes(sf.FemaleToMale)
	c.collective = sortedSuffixes(sf.Collective)
	return c, nil
}

// longest suffix first, ties alphabetical to stay deterministic
func sortedSuffixes(m map[string]string) []suffixRule {
	out := make([]suffixRule, 0, len(m))
	for k, v := range m {
		out = append(out, suffixRule{from: k, to: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].from) != len(out[j].from) {
			return len(out[i].from) > len(out[j].from)
		}
		return out[i].from < out[j].from
	})
	return out
}

// IsFirstName reports a given-name dictionary hit
func (c *Classifier) IsFirstName(token string) bool {
	_, ok := c.firstNames[normalizer.FoldKey(token)]
	return ok
}

// IsSurname reports a surname dictionary hit
func (c *Classifier) IsSurname(token string) bool {
	return c.surnames[normalizer.FoldKey(token)]
}

// ClassifyPair decides which of two tokens is the given name. Polish
// documents usually list the surname first, so that is the fallback.
func (c *Classifier) ClassifyPair(token1, token2 string) Name {
	first1, first2 := c.IsFirstName(token1), c.IsFirstName(token2)
	sur1, sur2 := c.IsSurname(token1), c.IsSurname(token2)

	switch {
	case sur1 && first2:
		return Name{First: token2, Last: token1}
	case first1 && sur2:
		return Name{First: token1, Last: token2}
	case first1 && !first2 && !sur2:
		return Name{First: token1, Last: token2}
	case first2 && !first1 && !sur1:
		return Name{First: token2, Last: token1}
	case sur1 && !sur2 && !first2:
		return Name{First: token2, Last: token1}
	case sur2 && !sur1 && !first1:
		return Name{First: token1, Last: token2}
	}
	return Name{First: token2, Last: token1}
}

// ClassifyMany splits any number of name tokens. Tokens are scanned left to
// right and the first one found in a dictionary takes its role, the given
// name dictionary first; the remaining tokens keep their order.
func (c *Classifier) ClassifyMany(tokens []string) Name {
	switch len(tokens) {
	case 0:
		return Name{}
	case 1:
		if c.IsSurname(tokens[0]) && !c.IsFirstName(tokens[0]) {
			return Name{Last: tokens[0]}
		}
		return Name{First: tokens[0]}
	case 2:
		return c.ClassifyPair(tokens[0], tokens[1])
	}

	for i, t := range tokens {
		switch {
		case c.IsFirstName(t):
			return Name{First: t, Last: joinExcept(tokens, i)}
		case c.IsSurname(t):
			return Name{First: joinExcept(tokens, i), Last: t}
		}
	}
	return Name{First: tokens[0], Last: strings.Join(tokens[1:], " ")}
}

func joinExcept(tokens []string, skip int) string {
	rest := make([]string, 0, len(tokens)-1)
	for i, t := range tokens {
		if i != skip {
			rest = append(rest, t)
		}
	}
	return strings.Join(rest, " ")
}

// GivenNameGender looks the name up, falling back to the -a ending rule
func (c *Classifier) GivenNameGender(name string) Gender {
	if g, ok := c.firstNames[normalizer.FoldKey(name)]; ok {
		return g
	}
	if c.IsFemaleGivenName(name) {
		return GenderFemale
	}
	return GenderUnknown
}

// IsFemaleGivenName applies the -a ending rule with its male exceptions
func (c *Classifier) IsFemaleGivenName(name string) bool {
	key := normalizer.FoldKey(name)
	if key == "" || c.maleInA[key] {
		return false
	}
	return strings.HasSuffix(key, "A")
}

// IsMaleFormSurname reports a surname ending in a gendered male suffix
func (c *Classifier) IsMaleFormSurname(surname string) bool {
	key := normalizer.FoldKey(surname)
	for _, r := range c.collective {
		if strings.HasSuffix(key, r.from) && len(key) > len(r.from) {
			return true
		}
	}
	return false
}

// CollectiveSurname returns the plural family form of several surnames
// ("KOWALSKI", "KOWALSKA" -> "KOWALSCY"). Fewer than two surnames yield "".
// Surnames of different families, or ones without a plural form, yield the
// first surname unchanged.
func (c *Classifier) CollectiveSurname(surnames []string) string {
	clean := make([]string, 0, len(surnames))
	for _, s := range surnames {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) < 2 {
		return ""
	}
	first := clean[0]

	if v, ok := c.irregularForm(clean); ok {
		return v
	}

	if sep := compoundSeparator(clean); sep != "" {
		return c.compoundCollective(clean, sep)
	}

	base := ""
	for _, s := range clean {
		b := c.baseForm(normalizer.FoldKey(s))
		if base == "" {
			base = b
		} else if b != base {
			return first
		}
	}

	firstKey := normalizer.FoldKey(first)
	for _, end := range c.invariant {
		if strings.HasSuffix(firstKey, end) {
			return first
		}
	}

	var female, male string
	for _, s := range clean {
		key := normalizer.FoldKey(s)
		if c.isFemaleForm(key) {
			if female == "" {
				female = s
			}
		} else if male == "" && key == base {
			male = s
		}
	}
	if female == "" || male == "" {
		return first
	}

	maleKey := normalizer.FoldKey(male)
	for _, r := range c.collective {
		if strings.HasSuffix(maleKey, r.from) {
			stem := male[:len(male)-len(r.from)]
			return stem + suffixCase(r.to, male)
		}
	}
	return first
}

func (c *Classifier) irregularForm(surnames []string) (string, bool) {
	result := ""
	for _, s := range surnames {
		v, ok := c.irregular[normalizer.FoldKey(s)]
		if !ok {
			return "", false
		}
		if result == "" {
			result = v
		} else if normalizer.FoldKey(v) != normalizer.FoldKey(result) {
			return "", false
		}
	}
	return matchCase(result, surnames[0]), result != ""
}

func compoundSeparator(surnames []string) string {
	for _, s := range surnames {
		if strings.Contains(s, "-") {
			return "-"
		}
	}
	for _, s := range surnames {
		if strings.Contains(s, " ") {
			return " "
		}
	}
	return ""
}

func (c *Classifier) compoundCollective(surnames []string, sep string) string {
	parts := make([][]string, len(surnames))
	for i, s := range surnames {
		parts[i] = splitCompound(s, sep)
		if len(parts[i]) != len(parts[0]) {
			return surnames[0]
		}
	}
	out := make([]string, len(parts[0]))
	for pos := range parts[0] {
		column := make([]string, len(parts))
		for i := range parts {
			column[i] = parts[i][pos]
		}
		out[pos] = c.CollectiveSurname(column)
	}
	return strings.Join(out, sep)
}

func splitCompound(s, sep string) []string {
	raw := strings.Split(s, sep)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Classifier) isFemaleForm(key string) bool {
	for _, r := range c.femaleToMale {
		if strings.HasSuffix(key, r.from) && len(key) > len(r.from) {
			return true
		}
	}
	return false
}

func (c *Classifier) baseForm(key string) string {
	for _, r := range c.femaleToMale {
		if strings.HasSuffix(key, r.from) && len(key) > len(r.from) {
			return key[:len(key)-len(r.from)] + r.to
		}
	}
	return key
}

// suffixCase writes an ending in the case of the word it replaces
func suffixCase(suffix, word string) string {
	runes := []rune(word)
	if len(runes) > 0 && unicode.IsLower(runes[len(runes)-1]) {
		return normalizer.ToLower(suffix)
	}
	return normalizer.ToUpper(suffix)
}

// matchCase writes s in the case style of reference: lower, title or upper
func matchCase(s, reference string) string {
	hasLower, hasUpper := false, false
	for _, r := range reference {
		if unicode.IsLower(r) {
			hasLower = true
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	switch {
	case hasLower && !hasUpper:
		return normalizer.ToLower(s)
	case hasLower && hasUpper:
		return titleCase(s)
	}
	return normalizer.ToUpper(s)
}

func titleCase(s string) string {
	lower := []rune(normalizer.ToLower(s))
	if len(lower) > 0 {
		lower[0] = unicode.ToUpper(lower[0])
	}
	return string(lower)
}

var personSeparatorRe = regexp.MustCompile(`(?i)\s*(?:,|;|&|\+|\s+I\s+|\s+ORAZ\s+)\s*`)

// Household is the result of splitting a name field that may list several
// people, e.g. "JAN I ANNA KOWALSCY" or "JAN KOWALSKI, ANNA KOWALSKA"
type Household struct {
	Name
	Persons int `json:"persons"`
}

// SplitHousehold classifies every listed person and folds them into joined
// given names and one family surname
func (c *Classifier) SplitHousehold(text string) Household {
	chunks := personSeparatorRe.Split(strings.TrimSpace(text), -1)
	var people []Name
	for _, chunk := range chunks {
		tokens := strings.Fields(chunk)
		if len(tokens) == 0 {
			continue
		}
		people = append(people, c.ClassifyMany(tokens))
	}
	if len(people) == 0 {
		return Household{}
	}
	if len(people) == 1 {
		return Household{Name: people[0], Persons: 1}
	}

	var firsts, lasts []string
	for _, p := range people {
		if p.First != "" {
			firsts = append(firsts, p.First)
		}
		if p.Last != "" {
			lasts = append(lasts, p.Last)
		}
	}
	last := c.CollectiveSurname(lasts)
	if last == "" && len(lasts) > 0 {
		last = lasts[0]
	}
	return Household{
		Name:    Name{First: strings.Join(firsts, " I "), Last: last},
		Persons: len(people),
	}
}

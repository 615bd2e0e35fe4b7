package parser

import (
	"regexp"
	"strings"

	"github.com/invoice-parser/internal/external"
	"github.com/invoice-parser/internal/normalizer"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// BuildingUnit is the result of splitting a house number token
type BuildingUnit struct {
	Building string `json:"building"`
	Unit     string `json:"unit,omitempty"`
}

// AddressParts is the result of splitting a free-text address line
type AddressParts struct {
	Street   string `json:"street"`
	Building string `json:"building"`
	Unit     string `json:"unit,omitempty"`
}

// AddressParser splits Polish address text into street, building, unit,
// postal code and city. It holds only compiled patterns and is safe for
// concurrent use.
type AddressParser struct {
	streetMarkerRe *regexp.Regexp
	routeMarkerRe  *regexp.Regexp
	numberMarkerRe *regexp.Regexp
	trailingRunRe  *regexp.Regexp
	unitSplitRe    *regexp.Regexp
	routeMarkers   map[string]string
	useLibpostal   bool
	logger         *zap.Logger
}

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	slashSpaceRe   = regexp.MustCompile(`\s*/\s*`)
	letterMiddleRe = regexp.MustCompile(`^(\d+)/([A-Z])/(\d+[A-Z]?)$`)
	threePartRe    = regexp.MustCompile(`^(\d+[A-Z]?)/(\d+[A-Z]?)/(\d+[A-Z]?)$`)
	twoPartRe      = regexp.MustCompile(`^(\d+[A-Z]?)/(\d+[A-Z]?)$`)
	loneNumberRe   = regexp.MustCompile(`^\d+[A-Z]?$`)
	postalCodeRe   = regexp.MustCompile(`(\d{2})\s*-\s*(\d{3})`)
)

// NewAddressParser compiles the marker tables into patterns. With
// useLibpostal set and a libpostal build, lines without a trailing house
// number are handed to libpostal.
func NewAddressParser(rules *normalizer.RulesConfig, useLibpostal bool, logger *zap.Logger) *AddressParser {
	if rules == nil {
		rules = normalizer.DefaultRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	unitAlt := markerAlternation(rules.UnitMarkers, `\s*`)
	numberAlt := markerAlternation(rules.NumberMarkers, `\s*`)
	part := `\d+[A-Z]?`
	run := part + `(?:/(?:` + part + `|[A-Z])){0,2}(?:\s*(?:` + normalizer.Alternation(rules.UnitMarkers) + `)\s*` + part + `)?`

	ap := &AddressParser{
		streetMarkerRe: regexp.MustCompile(`^(?:` + markerAlternation(rules.StreetMarkers, `\s+`) + `)`),
		routeMarkerRe:  regexp.MustCompile(`^(` + routeAlternation(rules.RouteMarkerKeys()) + `)`),
		numberMarkerRe: regexp.MustCompile(`^(?:` + numberAlt + `)`),
		trailingRunRe:  regexp.MustCompile(`^(?:(.*?)[\s,]+)?(?:` + numberAlt + `)?(` + run + `)[\s.,;]*$`),
		unitSplitRe:    regexp.MustCompile(`^(` + part + `)\s*(?:` + unitAlt + `)(` + part + `)$`),
		routeMarkers:   rules.RouteMarkers,
		useLibpostal:   useLibpostal && external.Available(),
		logger:         logger,
	}
	return ap
}

// markerAlternation joins markers so that dotted forms accept optional
// spacing and bare forms require sep after them
func markerAlternation(markers []string, sep string) string {
	parts := make([]string, 0, len(markers))
	for _, m := range sortedByLength(markers) {
		q := regexp.QuoteMeta(m)
		if strings.HasSuffix(m, ".") {
			parts = append(parts, q+`\s*`)
		} else {
			parts = append(parts, q+sep)
		}
	}
	return strings.Join(parts, "|")
}

// routeAlternation is markerAlternation for route markers, which may also
// stand alone at the end of the text
func routeAlternation(markers []string) string {
	parts := make([]string, 0, len(markers))
	for _, m := range sortedByLength(markers) {
		q := regexp.QuoteMeta(m)
		if strings.HasSuffix(m, ".") {
			parts = append(parts, q+`\s*`)
		} else {
			parts = append(parts, q+`(?:\s+|$)`)
		}
	}
	return strings.Join(parts, "|")
}

func sortedByLength(markers []string) []string {
	out := append([]string(nil), markers...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j]) > len(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func cleanUpper(s string) string {
	s = norm.NFC.String(s)
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	return normalizer.ToUpper(s)
}

func (ap *AddressParser) stripStreetMarkers(s string) string {
	for {
		loc := ap.streetMarkerRe.FindStringIndex(s)
		if loc == nil || loc[1] == 0 {
			return s
		}
		s = strings.TrimSpace(s[loc[1]:])
	}
}

// CanonicalizeStreetName removes street markers, expands route markers to a
// canonical prefix word and drops trailing punctuation. It is idempotent.
func (ap *AddressParser) CanonicalizeStreetName(text string) string {
	s := cleanUpper(text)
	if s == "" {
		return ""
	}
	s = ap.stripStreetMarkers(s)

	if m := ap.routeMarkerRe.FindStringSubmatch(s); m != nil {
		marker := strings.TrimSpace(m[1])
		rest := strings.TrimSpace(s[len(m[0]):])
		canonical := ap.routeMarkers[marker]
		if rest == "" {
			s = canonical
		} else {
			s = canonical + " " + rest
		}
	}

	s = strings.TrimSpace(normalizer.TrimTrailingPunct(s))
	return s
}

// ParseBuildingUnit splits a house number token into building and unit.
// Tokens matching no pattern are kept whole as the building.
func (ap *AddressParser) ParseBuildingUnit(token string) BuildingUnit {
	s := ap.cleanToken(token)
	if s == "" {
		return BuildingUnit{}
	}

	if m := letterMiddleRe.FindStringSubmatch(s); m != nil {
		return BuildingUnit{Building: m[1] + m[2], Unit: m[3]}
	}
	if m := threePartRe.FindStringSubmatch(s); m != nil {
		return BuildingUnit{Building: m[1] + "/" + m[2], Unit: m[3]}
	}
	if m := twoPartRe.FindStringSubmatch(s); m != nil {
		return BuildingUnit{Building: m[1], Unit: m[2]}
	}
	if m := ap.unitSplitRe.FindStringSubmatch(s); m != nil {
		return BuildingUnit{Building: m[1], Unit: m[2]}
	}
	if loneNumberRe.MatchString(s) {
		return BuildingUnit{Building: s}
	}
	return BuildingUnit{Building: s}
}

// ParseBuildingUnitWithSiblings resolves the two-part slash ambiguity
// ("20/22" as building 20 unit 22, or as the dual building number 20/22)
// against address sets already split elsewhere in the document
func (ap *AddressParser) ParseBuildingUnitWithSiblings(token string, siblings []BuildingUnit) BuildingUnit {
	s := ap.cleanToken(token)
	if !twoPartRe.MatchString(s) {
		return ap.ParseBuildingUnit(token)
	}

	for _, sib := range siblings {
		building := ap.cleanToken(sib.Building)
		if building == "" {
			continue
		}
		if building == s {
			return BuildingUnit{Building: s}
		}
		unit := ap.cleanToken(sib.Unit)
		if unit != "" && building+"/"+unit == s {
			return BuildingUnit{Building: building, Unit: unit}
		}
	}
	return ap.ParseBuildingUnit(token)
}

func (ap *AddressParser) cleanToken(token string) string {
	s := cleanUpper(token)
	s = slashSpaceRe.ReplaceAllString(s, "/")
	s = strings.TrimSpace(normalizer.TrimTrailingPunct(s))
	if loc := ap.numberMarkerRe.FindStringIndex(s); loc != nil && loc[1] > 0 {
		s = strings.TrimSpace(s[loc[1]:])
	}
	return s
}

// SplitAddressLine splits "UL. GIEŁDOWA 4C/29" into street, building and
// unit. The last trailing number run is the house number; a line without
// one is all street.
func (ap *AddressParser) SplitAddressLine(line string) AddressParts {
	s := cleanUpper(line)
	if s == "" {
		return AddressParts{}
	}
	s = ap.stripStreetMarkers(s)
	s = slashSpaceRe.ReplaceAllString(s, "/")

	if m := ap.trailingRunRe.FindStringSubmatch(s); m != nil {
		bu := ap.ParseBuildingUnit(m[2])
		return AddressParts{
			Street:   ap.CanonicalizeStreetName(m[1]),
			Building: bu.Building,
			Unit:     bu.Unit,
		}
	}

	if ap.useLibpostal {
		if c := external.ParseAddressLine(s); c.Found() {
			ap.logger.Debug("address line split by libpostal",
				zap.String("line", s),
				zap.Float64("coverage", c.Coverage))
			bu := ap.ParseBuildingUnit(c.HouseNumber)
			if bu.Unit == "" && c.Unit != "" {
				bu.Unit = ap.cleanToken(c.Unit)
			}
			return AddressParts{
				Street:   ap.CanonicalizeStreetName(c.Road),
				Building: bu.Building,
				Unit:     bu.Unit,
			}
		}
	}

	return AddressParts{Street: ap.CanonicalizeStreetName(s)}
}

// NormalizePostalCode keeps digits only and formats exactly five of them
// as NN-NNN. Anything else yields "".
func NormalizePostalCode(text string) string {
	var digits strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) != 5 {
		return ""
	}
	return d[:2] + "-" + d[2:]
}

// NormalizeCity keeps the first line of text, upper-cased, without
// trailing punctuation
func NormalizeCity(text string) string {
	first := text
	if i := strings.IndexAny(first, "\r\n"); i >= 0 {
		first = first[:i]
	}
	return strings.TrimSpace(normalizer.TrimTrailingPunct(cleanUpper(first)))
}

// SplitPostalCity splits "00-950 Warszawa" into postal code and city.
// Without a postal code the whole text is the city.
func SplitPostalCity(text string) (postalCode, city string) {
	first := text
	if i := strings.IndexAny(first, "\r\n"); i >= 0 {
		first = first[:i]
	}
	loc := postalCodeRe.FindStringSubmatchIndex(first)
	if loc == nil {
		return "", NormalizeCity(first)
	}
	postalCode = NormalizePostalCode(first[loc[0]:loc[1]])
	rest := strings.TrimSpace(first[:loc[0]] + " " + first[loc[1]:])
	rest = strings.TrimLeft(rest, ",;- ")
	return postalCode, NormalizeCity(rest)
}

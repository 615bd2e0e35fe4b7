package rules

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/invoice-parser/app/models"
	"github.com/invoice-parser/internal/names"
	"github.com/invoice-parser/internal/normalizer"
	"github.com/invoice-parser/internal/operator"
	"github.com/invoice-parser/internal/parser"
)

// Rule names of the default set
const (
	RulePPENormalize       = "ppe_normalize"
	RuleTariffExtract      = "tariff_extract"
	RuleOperatorResolve    = "operator_resolve"
	RuleAddressLineSplit   = "address_line_split"
	RuleStreetCanonicalize = "street_canonicalize"
	RuleBuildingUnitSplit  = "building_unit_split"
	RulePostalCode         = "postal_code"
	RulePostalCitySplit    = "postal_city_split"
	RuleCity               = "city"
	RuleFullNameSplit      = "full_name_split"
	RuleFirstNameSplit     = "first_name_split"
	RuleCollectiveSurname  = "collective_surname"
	RuleBusinessName       = "business_name"
	RuleTaxID              = "tax_id"
	RuleDate               = "date"
	RuleBillingPeriodSplit = "billing_period_split"
	RuleDecimalAmount      = "decimal_amount"
	RuleTextDefault        = "text_default"
)

// Deps are the collaborators the default rules delegate to
type Deps struct {
	Parser    *parser.AddressParser
	Names     *names.Classifier
	Operators *operator.Resolver
}

// FieldTypes maps field names to the type recorded in metadata
var FieldTypes = map[string]string{
	models.FieldPPENumber:     models.FieldTypeIdentifier,
	models.FieldMeterNumber:   models.FieldTypeIdentifier,
	models.FieldTariffGroup:   models.FieldTypeCode,
	models.FieldOSDName:       models.FieldTypeName,
	models.FieldOSDRegion:     models.FieldTypeCity,
	models.FieldStreet:        models.FieldTypeStreet,
	models.FieldBuilding:      models.FieldTypeNumber,
	models.FieldUnit:          models.FieldTypeNumber,
	models.FieldPostalCode:    models.FieldTypeCode,
	models.FieldCity:          models.FieldTypeCity,
	models.FieldAddressLine:   models.FieldTypeText,
	models.FieldPostalCity:    models.FieldTypeText,
	models.FieldFirstName:     models.FieldTypeName,
	models.FieldLastName:      models.FieldTypeName,
	models.FieldFullName:      models.FieldTypeName,
	models.FieldBusinessName:  models.FieldTypeName,
	models.FieldTaxID:         models.FieldTypeIdentifier,
	models.FieldSupplierName:  models.FieldTypeName,
	models.FieldSupplierTaxID: models.FieldTypeIdentifier,
	models.FieldStartDate:     models.FieldTypeDate,
	models.FieldEndDate:       models.FieldTypeDate,
	models.FieldIssueDate:     models.FieldTypeDate,
	models.FieldBillingPeriod: models.FieldTypeText,
	models.FieldUsage:         models.FieldTypeAmount,
	models.FieldTotalAmount:   models.FieldTypeAmount,
	models.FieldInvoiceNumber: models.FieldTypeIdentifier,
}

// FieldTypeOf returns the metadata type of a field name, text by default
func FieldTypeOf(field string) string {
	if t, ok := FieldTypes[field]; ok {
		return t
	}
	return models.FieldTypeText
}

func meta(field string) models.FieldMetadata {
	return models.FieldMetadata{FieldType: FieldTypeOf(field)}
}

func result(value string, confidence float64, ctx *Context) Result {
	return Result{Value: value, Confidence: confidence, Metadata: meta(ctx.FieldName)}
}

var (
	spaceRe        = regexp.MustCompile(`\s+`)
	ppeLabelRe     = regexp.MustCompile(`^(?:KOD\s+|NR\s+|NUMER\s+)?PPE\s*[:.]?\s*`)
	ppeSeparatorRe = regexp.MustCompile(`[\s\-./]+`)
	ppeDigitsRe    = regexp.MustCompile(`^\d{18}$`)
	ppeAlnumRe     = regexp.MustCompile(`^PL[A-Z0-9]{10,30}$`)
	tariffRe       = regexp.MustCompile(`\b([ABCGR]\d{2}[A-Z]?)\b`)
	numberRunRe    = regexp.MustCompile(`\d[\d\s.,]*`)
	dateRe         = regexp.MustCompile(`(\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[./-]\d{1,2}[./-]\d{4})`)
	nonDigitRe     = regexp.MustCompile(`\D`)
)

var nipWeights = []int{6, 5, 7, 2, 3, 4, 5, 6, 7}

// RegisterDefaults installs the standard invoice field rules
func RegisterDefaults(e *Engine, d Deps) {
	if d.Parser == nil {
		d.Parser = parser.NewAddressParser(nil, false, nil)
	}
	if d.Names == nil {
		d.Names = names.Default()
	}
	legalForms, err := normalizer.DefaultRules().CompileLegalForms()
	if err != nil {
		panic(err)
	}

	e.Register(Rule{
		Name:     RulePPENormalize,
		Priority: 100,
		Transform: func(value string, ctx *Context) (Result, error) {
			s := normalizer.ToUpper(strings.TrimSpace(value))
			s = ppeLabelRe.ReplaceAllString(s, "")
			s = ppeSeparatorRe.ReplaceAllString(s, "")
			conf := ctx.BaseConfidence
			if !ppeDigitsRe.MatchString(s) && !ppeAlnumRe.MatchString(s) {
				conf *= 0.7
			}
			return result(s, conf, ctx), nil
		},
	}, models.FieldPPENumber)

	e.Register(Rule{
		Name:     RuleTariffExtract,
		Priority: 90,
		Condition: func(value string, _ *Context) bool {
			return tariffRe.MatchString(normalizer.ToUpper(value))
		},
		Transform: func(value string, ctx *Context) (Result, error) {
			m := tariffRe.FindStringSubmatch(normalizer.ToUpper(value))
			return result(m[1], ctx.BaseConfidence, ctx), nil
		},
	}, models.FieldTariffGroup)

	if d.Operators != nil {
		ops := d.Operators
		e.Register(Rule{
			Name:     RuleOperatorResolve,
			Priority: 90,
			Condition: func(value string, _ *Context) bool {
				_, ok := ops.ResolveText(value)
				return ok
			},
			Transform: func(value string, ctx *Context) (Result, error) {
				m, _ := ops.ResolveText(value)
				conf := ctx.BaseConfidence * m.Score
				res := result(m.Name, conf, ctx)
				res.Emit(models.FieldOSDRegion, m.Region, conf, models.FieldTypeCity)
				return res, nil
			},
		}, models.FieldOSDName)
	}

	ap := d.Parser
	e.Register(Rule{
		Name:     RuleAddressLineSplit,
		Priority: 80,
		Condition: func(value string, ctx *Context) bool {
			if ctx.FieldName == models.FieldAddressLine {
				return true
			}
			return ap.SplitAddressLine(value).Building != ""
		},
		Transform: func(value string, ctx *Context) (Result, error) {
			parts := ap.SplitAddressLine(value)
			conf := ctx.BaseConfidence
			var res Result
			if ctx.FieldName == models.FieldAddressLine {
				res = result(strings.TrimSpace(spaceRe.ReplaceAllString(normalizer.ToUpper(value), " ")), conf, ctx)
				res.Emit(models.FieldStreet, parts.Street, conf, models.FieldTypeStreet)
			} else {
				res = result(parts.Street, conf, ctx)
			}
			res.Emit(models.FieldBuilding, parts.Building, conf, models.FieldTypeNumber)
			res.Emit(models.FieldUnit, parts.Unit, conf, models.FieldTypeNumber)
			return res, nil
		},
	}, models.FieldAddressLine, models.FieldStreet)

	e.Register(Rule{
		Name:     RuleStreetCanonicalize,
		Priority: 70,
		Transform: func(value string, ctx *Context) (Result, error) {
			return result(ap.CanonicalizeStreetName(value), ctx.BaseConfidence, ctx), nil
		},
	}, models.FieldStreet)

	e.Register(Rule{
		Name:     RuleBuildingUnitSplit,
		Priority: 70,
		Transform: func(value string, ctx *Context) (Result, error) {
			bu := ap.ParseBuildingUnitWithSiblings(value, siblingBuildings(ctx))
			res := result(bu.Building, ctx.BaseConfidence, ctx)
			res.Emit(models.FieldUnit, bu.Unit, ctx.BaseConfidence, models.FieldTypeNumber)
			return res, nil
		},
	}, models.FieldBuilding)

	e.Register(Rule{
		Name:     RulePostalCode,
		Priority: 70,
		Transform: func(value string, ctx *Context) (Result, error) {
			pc := parser.NormalizePostalCode(value)
			if pc == "" {
				return result("", 0, ctx), nil
			}
			return result(pc, ctx.BaseConfidence, ctx), nil
		},
	}, models.FieldPostalCode)

	e.Register(Rule{
		Name:     RulePostalCitySplit,
		Priority: 70,
		Transform: func(value string, ctx *Context) (Result, error) {
			pc, city := parser.SplitPostalCity(value)
			res := result(strings.TrimSpace(strings.Join([]string{pc, city}, " ")), ctx.BaseConfidence, ctx)
			res.Emit(models.FieldPostalCode, pc, ctx.BaseConfidence, models.FieldTypeCode)
			res.Emit(models.FieldCity, city, ctx.BaseConfidence, models.FieldTypeCity)
			return res, nil
		},
	}, models.FieldPostalCity)

	e.Register(Rule{
		Name:     RuleCity,
		Priority: 60,
		Transform: func(value string, ctx *Context) (Result, error) {
			return result(parser.NormalizeCity(value), ctx.BaseConfidence, ctx), nil
		},
	}, models.FieldCity, models.FieldOSDRegion)

	nc := d.Names
	e.Register(Rule{
		Name:     RuleFullNameSplit,
		Priority: 60,
		Transform: func(value string, ctx *Context) (Result, error) {
			h := nc.SplitHousehold(cleanText(value))
			conf := ctx.BaseConfidence
			if h.Persons == 1 && genderMismatch(nc, h.First, h.Last) {
				conf *= 0.9
			}
			res := result(cleanText(value), conf, ctx)
			res.Emit(models.FieldFirstName, h.First, conf, models.FieldTypeName)
			res.Emit(models.FieldLastName, h.Last, conf, models.FieldTypeName)
			return res, nil
		},
	}, models.FieldFullName)

	e.Register(Rule{
		Name:     RuleFirstNameSplit,
		Priority: 60,
		Condition: func(value string, _ *Context) bool {
			return len(strings.Fields(value)) >= 2
		},
		Transform: func(value string, ctx *Context) (Result, error) {
			n := nc.ClassifyMany(strings.Fields(cleanText(value)))
			conf := ctx.BaseConfidence
			if genderMismatch(nc, n.First, n.Last) {
				conf *= 0.9
			}
			res := result(n.First, conf, ctx)
			res.Emit(models.FieldLastName, n.Last, conf, models.FieldTypeName)
			return res, nil
		},
	}, models.FieldFirstName)

	e.Register(Rule{
		Name:     RuleCollectiveSurname,
		Priority: 55,
		Condition: func(value string, _ *Context) bool {
			surnames := splitSurnames(value)
			return len(surnames) >= 2 && nc.CollectiveSurname(surnames) != surnames[0]
		},
		Transform: func(value string, ctx *Context) (Result, error) {
			return result(nc.CollectiveSurname(splitSurnames(value)), ctx.BaseConfidence, ctx), nil
		},
	}, models.FieldLastName)

	e.Register(Rule{
		Name:     RuleBusinessName,
		Priority: 50,
		Transform: func(value string, ctx *Context) (Result, error) {
			s := cleanText(value)
			for _, lf := range legalForms {
				s = lf.Re.ReplaceAllString(s, lf.Display)
			}
			return result(strings.TrimSpace(spaceRe.ReplaceAllString(s, " ")), ctx.BaseConfidence, ctx), nil
		},
	}, models.FieldBusinessName, models.FieldSupplierName)

	e.Register(Rule{
		Name:     RuleTaxID,
		Priority: 50,
		Condition: func(value string, _ *Context) bool {
			return strings.ContainsAny(value, "0123456789")
		},
		Transform: func(value string, ctx *Context) (Result, error) {
			digits := nonDigitRe.ReplaceAllString(value, "")
			conf := ctx.BaseConfidence
			if !ValidNIP(digits) {
				conf *= 0.5
			}
			return result(digits, conf, ctx), nil
		},
	}, models.FieldTaxID, models.FieldSupplierTaxID)

	e.Register(Rule{
		Name:     RuleDate,
		Priority: 50,
		Condition: func(value string, _ *Context) bool {
			_, ok := ParseDate(value)
			return ok
		},
		Transform: func(value string, ctx *Context) (Result, error) {
			d, _ := ParseDate(value)
			return result(d, ctx.BaseConfidence, ctx), nil
		},
	}, models.FieldStartDate, models.FieldEndDate, models.FieldIssueDate)

	e.Register(Rule{
		Name:     RuleBillingPeriodSplit,
		Priority: 50,
		Condition: func(value string, _ *Context) bool {
			return len(dateRe.FindAllString(value, -1)) >= 2
		},
		Transform: func(value string, ctx *Context) (Result, error) {
			found := dateRe.FindAllString(value, 2)
			start, okStart := ParseDate(found[0])
			end, okEnd := ParseDate(found[1])
			conf := ctx.BaseConfidence
			res := result(cleanText(value), conf, ctx)
			if okStart {
				res.Emit(models.FieldStartDate, start, conf, models.FieldTypeDate)
			}
			if okEnd {
				res.Emit(models.FieldEndDate, end, conf, models.FieldTypeDate)
			}
			return res, nil
		},
	}, models.FieldBillingPeriod)

	e.Register(Rule{
		Name:     RuleDecimalAmount,
		Priority: 50,
		Condition: func(value string, _ *Context) bool {
			_, ok := ParseAmount(value)
			return ok
		},
		Transform: func(value string, ctx *Context) (Result, error) {
			v, _ := ParseAmount(value)
			return result(v, ctx.BaseConfidence, ctx), nil
		},
	}, models.FieldUsage, models.FieldTotalAmount)

	e.Register(Rule{
		Name:     RuleTextDefault,
		Priority: 0,
		Transform: func(value string, ctx *Context) (Result, error) {
			return result(cleanText(value), ctx.BaseConfidence, ctx), nil
		},
	})
}

func cleanText(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(normalizer.ToUpper(s), " "))
}

// siblingBuildings collects building/unit pairs of the other address sets
func siblingBuildings(ctx *Context) []parser.BuildingUnit {
	var out []parser.BuildingUnit
	for _, name := range models.AddressSections {
		if name == ctx.SectionName {
			continue
		}
		sec := ctx.Sibling(name)
		if !sec.Has(models.FieldBuilding) {
			continue
		}
		out = append(out, parser.BuildingUnit{
			Building: sec.Value(models.FieldBuilding),
			Unit:     sec.Value(models.FieldUnit),
		})
	}
	return out
}

func genderMismatch(nc *names.Classifier, first, last string) bool {
	if first == "" || last == "" {
		return false
	}
	return nc.GivenNameGender(first) == names.GenderFemale && nc.IsMaleFormSurname(last)
}

var surnameSeparatorRe = regexp.MustCompile(`\s*(?:,|;|&|\+|\s+I\s+|\s+ORAZ\s+|\s+)\s*`)

func splitSurnames(value string) []string {
	var out []string
	for _, p := range surnameSeparatorRe.Split(cleanText(value), -1) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidNIP checks a 10-digit Polish tax id against its checksum
func ValidNIP(digits string) bool {
	if len(digits) != 10 {
		return false
	}
	sum := 0
	for i, w := range nipWeights {
		sum += int(digits[i]-'0') * w
	}
	check := sum % 11
	return check != 10 && check == int(digits[9]-'0')
}

var dateLayouts = []string{"2006-01-02", "2006-1-2", "02.01.2006", "2.1.2006", "02-01-2006", "2-1-2006", "02/01/2006", "2/1/2006"}

// ParseDate reads the first date in text and formats it as YYYY-MM-DD
func ParseDate(text string) (string, bool) {
	m := dateRe.FindString(text)
	if m == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, m); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// ParseAmount reads a Polish formatted number ("1 234,5 kWh", "1.234,56 zł")
// and returns it in plain decimal notation
func ParseAmount(text string) (string, bool) {
	run := strings.TrimRight(numberRunRe.FindString(text), " .,")
	if run == "" {
		return "", false
	}
	s := strings.ReplaceAll(run, " ", "")
	s = strings.ReplaceAll(s, " ", "")

	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || (len(s)-lastDot-1 == 3 && s[:lastDot] != "0") {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(v, 'f', -1, 64), true
}

package xsd

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// FacetValidator is a single restriction facet applied to a simple type
// value. baseType carries the restricted type so length facets can pick
// the right unit.
type FacetValidator interface {
	Validate(value string, baseType Type) error
	Name() string
}

// xsdClassShortcuts maps the XSD character-class escapes Go's regexp does
// not know (or interprets differently) onto explicit classes.
var xsdClassShortcuts = strings.NewReplacer(
	`\i`, `[_:A-Za-z]`,
	`\c`, `[_:A-Za-z0-9.-]`,
	`\d`, `[0-9]`,
	`\D`, `[^0-9]`,
	`\s`, `[ \t\n\r]`,
	`\S`, `[^ \t\n\r]`,
	`\w`, `[A-Za-z0-9_]`,
	`\W`, `[^A-Za-z0-9_]`,
)

// PatternFacet matches the whole value against an XSD regular expression.
// The compiled form is cached on first use.
type PatternFacet struct {
	Pattern string
	regex   *regexp.Regexp
}

func (f *PatternFacet) Name() string { return "pattern" }

func (f *PatternFacet) Validate(value string, baseType Type) error {
	if f.regex == nil {
		// XSD patterns are implicitly anchored.
		regex, err := regexp.Compile("^" + xsdClassShortcuts.Replace(f.Pattern) + "$")
		if err != nil {
			return fmt.Errorf("invalid pattern: %v", err)
		}
		f.regex = regex
	}
	if !f.regex.MatchString(value) {
		return fmt.Errorf("value '%s' does not match pattern '%s'", value, f.Pattern)
	}
	return nil
}

// EnumerationFacet restricts the value to a fixed set. Multiple enumeration
// children of one restriction merge into a single facet.
type EnumerationFacet struct {
	Values []string
}

func (f *EnumerationFacet) Name() string { return "enumeration" }

func (f *EnumerationFacet) Validate(value string, baseType Type) error {
	for _, allowed := range f.Values {
		if value == allowed {
			return nil
		}
	}
	return fmt.Errorf("value '%s' is not in enumeration %v", value, f.Values)
}

type LengthFacet struct {
	Value int
	Fixed bool
}

func (f *LengthFacet) Name() string { return "length" }

func (f *LengthFacet) Validate(value string, baseType Type) error {
	if length := valueLength(value, baseType); length != f.Value {
		return fmt.Errorf("length must be exactly %d, got %d", f.Value, length)
	}
	return nil
}

type MinLengthFacet struct {
	Value int
	Fixed bool
}

func (f *MinLengthFacet) Name() string { return "minLength" }

func (f *MinLengthFacet) Validate(value string, baseType Type) error {
	if length := valueLength(value, baseType); length < f.Value {
		return fmt.Errorf("length must be at least %d, got %d", f.Value, length)
	}
	return nil
}

type MaxLengthFacet struct {
	Value int
	Fixed bool
}

func (f *MaxLengthFacet) Name() string { return "maxLength" }

func (f *MaxLengthFacet) Validate(value string, baseType Type) error {
	if length := valueLength(value, baseType); length > f.Value {
		return fmt.Errorf("length must be at most %d, got %d", f.Value, length)
	}
	return nil
}

// valueLength returns the length of a value in the unit of its type: items
// for lists, octets for binary types, characters otherwise.
func valueLength(value string, baseType Type) int {
	st, ok := baseType.(*SimpleType)
	if ok {
		if st.Variety == VarietyList {
			return len(strings.Fields(value))
		}
		if p := st.Primitive(); p != nil {
			switch p.QName.Local {
			case "hexBinary":
				return len(value) / 2
			case "base64Binary":
				n := len(value)
				if strings.HasSuffix(value, "==") {
					n -= 2
				} else if strings.HasSuffix(value, "=") {
					n -= 1
				}
				return n * 3 / 4
			}
		}
	}
	return len([]rune(value))
}

// rangeBound implements the four bound facets. want filters the acceptable
// compareValues results and rel names the relation for errors.
func rangeBound(value, bound string, baseType Type, want func(int) bool, rel string) error {
	cmp, err := compareValues(value, bound, baseType)
	if err != nil {
		return err
	}
	if !want(cmp) {
		return fmt.Errorf("value must be %s %s, got %s", rel, bound, value)
	}
	return nil
}

type MinInclusiveFacet struct {
	Value string
	Fixed bool
}

func (f *MinInclusiveFacet) Name() string { return "minInclusive" }

func (f *MinInclusiveFacet) Validate(value string, baseType Type) error {
	return rangeBound(value, f.Value, baseType, func(cmp int) bool { return cmp >= 0 }, ">=")
}

type MaxInclusiveFacet struct {
	Value string
	Fixed bool
}

func (f *MaxInclusiveFacet) Name() string { return "maxInclusive" }

func (f *MaxInclusiveFacet) Validate(value string, baseType Type) error {
	return rangeBound(value, f.Value, baseType, func(cmp int) bool { return cmp <= 0 }, "<=")
}

type MinExclusiveFacet struct {
	Value string
	Fixed bool
}

func (f *MinExclusiveFacet) Name() string { return "minExclusive" }

func (f *MinExclusiveFacet) Validate(value string, baseType Type) error {
	return rangeBound(value, f.Value, baseType, func(cmp int) bool { return cmp > 0 }, ">")
}

type MaxExclusiveFacet struct {
	Value string
	Fixed bool
}

func (f *MaxExclusiveFacet) Name() string { return "maxExclusive" }

func (f *MaxExclusiveFacet) Validate(value string, baseType Type) error {
	return rangeBound(value, f.Value, baseType, func(cmp int) bool { return cmp < 0 }, "<")
}

type TotalDigitsFacet struct {
	Value int
	Fixed bool
}

func (f *TotalDigitsFacet) Name() string { return "totalDigits" }

func (f *TotalDigitsFacet) Validate(value string, baseType Type) error {
	// Count significant digits: drop sign, decimal point and leading zeros.
	significant := strings.Replace(strings.TrimLeft(value, "+-"), ".", "", 1)
	significant = strings.TrimLeft(significant, "0")
	n := len(significant)
	if n == 0 {
		n = 1 // zero itself is one digit
	}
	if n > f.Value {
		return fmt.Errorf("total digits must be at most %d, got %d", f.Value, n)
	}
	return nil
}

type FractionDigitsFacet struct {
	Value int
	Fixed bool
}

func (f *FractionDigitsFacet) Name() string { return "fractionDigits" }

func (f *FractionDigitsFacet) Validate(value string, baseType Type) error {
	if _, frac, found := strings.Cut(value, "."); found && len(frac) > f.Value {
		return fmt.Errorf("fraction digits must be at most %d, got %d", f.Value, len(frac))
	}
	return nil
}

// WhiteSpaceFacet records the restriction's whitespace policy. Normalization
// happens before facet checks run, so Validate is a no-op.
type WhiteSpaceFacet struct {
	Value string // "preserve", "replace" or "collapse"
}

func (f *WhiteSpaceFacet) Name() string { return "whiteSpace" }

func (f *WhiteSpaceFacet) Validate(value string, baseType Type) error {
	return nil
}

// NormalizeWhiteSpace applies the XSD whitespace policy to a lexical value.
func NormalizeWhiteSpace(value string, whiteSpace string) string {
	switch whiteSpace {
	case "replace":
		return strings.Map(func(r rune) rune {
			if r == '\t' || r == '\n' || r == '\r' {
				return ' '
			}
			return r
		}, value)
	case "collapse":
		return strings.Join(strings.Fields(value), " ")
	}
	return value
}

// numericFacetTypes are the types whose facet bounds compare numerically.
// Everything else, the date/time family included, orders lexically on the
// canonical forms the bound facets see in practice.
var numericFacetTypes = map[string]bool{
	"decimal": true, "integer": true, "float": true, "double": true,
	"nonPositiveInteger": true, "negativeInteger": true,
	"long": true, "int": true, "short": true, "byte": true,
	"nonNegativeInteger": true, "positiveInteger": true,
	"unsignedLong": true, "unsignedInt": true,
	"unsignedShort": true, "unsignedByte": true,
}

func compareValues(v1, v2 string, baseType Type) (int, error) {
	if baseType != nil && numericFacetTypes[baseType.Name().Local] {
		a, okA := new(big.Float).SetString(v1)
		b, okB := new(big.Float).SetString(v2)
		if !okA {
			return 0, fmt.Errorf("invalid numeric value: %s", v1)
		}
		if !okB {
			return 0, fmt.Errorf("invalid numeric value: %s", v2)
		}
		return a.Cmp(b), nil
	}
	return strings.Compare(v1, v2), nil
}

// ParseFacet builds the validator for one facet child of a restriction.
// fixed mirrors the facet element's fixed attribute, which forbids further
// restrictions from changing the value. Returns nil for unknown facet names
// and unparseable numeric values; the caller decides whether that is an
// error.
func ParseFacet(name, value string, fixed bool) FacetValidator {
	switch name {
	case "pattern":
		return &PatternFacet{Pattern: value}
	case "enumeration":
		return &EnumerationFacet{Values: []string{value}}
	case "minInclusive":
		return &MinInclusiveFacet{Value: value, Fixed: fixed}
	case "maxInclusive":
		return &MaxInclusiveFacet{Value: value, Fixed: fixed}
	case "minExclusive":
		return &MinExclusiveFacet{Value: value, Fixed: fixed}
	case "maxExclusive":
		return &MaxExclusiveFacet{Value: value, Fixed: fixed}
	case "whiteSpace":
		return &WhiteSpaceFacet{Value: value}
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	switch name {
	case "length":
		return &LengthFacet{Value: n, Fixed: fixed}
	case "minLength":
		return &MinLengthFacet{Value: n, Fixed: fixed}
	case "maxLength":
		return &MaxLengthFacet{Value: n, Fixed: fixed}
	case "totalDigits":
		return &TotalDigitsFacet{Value: n, Fixed: fixed}
	case "fractionDigits":
		return &FractionDigitsFacet{Value: n, Fixed: fixed}
	}
	return nil
}

// ValidateFacets checks a value against every facet of a restriction. An
// explicit whiteSpace facet renormalizes the value first.
func ValidateFacets(value string, facets []FacetValidator, baseType Type) error {
	for _, f := range facets {
		if ws, ok := f.(*WhiteSpaceFacet); ok {
			value = NormalizeWhiteSpace(value, ws.Value)
			break
		}
	}
	for _, f := range facets {
		if err := f.Validate(value, baseType); err != nil {
			return fmt.Errorf("%s constraint violated: %v", f.Name(), err)
		}
	}
	return nil
}

// stringFacets are the facets admitted by string-like primitives.
var stringFacets = map[string]bool{
	"length": true, "minLength": true, "maxLength": true,
	"pattern": true, "enumeration": true, "whiteSpace": true,
}

// orderedFacets are the facets admitted by ordered primitives (numeric,
// date and time types).
var orderedFacets = map[string]bool{
	"minInclusive": true, "maxInclusive": true,
	"minExclusive": true, "maxExclusive": true,
	"pattern": true, "enumeration": true, "whiteSpace": true,
}

// admittedFacets returns the facet names a restriction of st may carry,
// driven by the primitive (or the list/union variety).
func admittedFacets(st *SimpleType) map[string]bool {
	switch st.Variety {
	case VarietyList:
		return stringFacets
	case VarietyUnion:
		return map[string]bool{"pattern": true, "enumeration": true}
	}
	p := st.Primitive()
	if p == nil {
		return stringFacets
	}
	switch p.QName.Local {
	case "string", "anyURI", "hexBinary", "base64Binary", "QName", "NOTATION":
		return stringFacets
	case "boolean":
		return map[string]bool{"pattern": true, "whiteSpace": true}
	case "decimal":
		admitted := map[string]bool{"totalDigits": true, "fractionDigits": true}
		for name := range orderedFacets {
			admitted[name] = true
		}
		return admitted
	case "float", "double", "duration", "dateTime", "time", "date",
		"gYearMonth", "gYear", "gMonthDay", "gDay", "gMonth":
		return orderedFacets
	}
	return stringFacets
}

// boundFacetValue extracts the lexical value and fixed flag of a range facet.
func boundFacetValue(f FacetValidator) (value string, fixed, ok bool) {
	switch v := f.(type) {
	case *MinInclusiveFacet:
		return v.Value, v.Fixed, true
	case *MaxInclusiveFacet:
		return v.Value, v.Fixed, true
	case *MinExclusiveFacet:
		return v.Value, v.Fixed, true
	case *MaxExclusiveFacet:
		return v.Value, v.Fixed, true
	}
	return "", false, false
}

// checkFacetRestriction verifies that st's facets are admitted by its
// primitive and narrow the base type's facets. Violations go through the
// registry's error collector.
func (s *Schema) checkFacetRestriction(elem xmldom.Element, st *SimpleType, base *SimpleType) error {
	report := func(format string, args ...any) error {
		pe := newParseError(elem, format, args...)
		pe.Name = st.QName
		return s.registry.collector.Add(pe)
	}

	admitted := admittedFacets(st)
	for _, f := range st.Facets {
		if !admitted[f.Name()] {
			if err := report("facet %s is not admitted by restrictions of %s", f.Name(), base.QName); err != nil {
				return err
			}
		}
	}

	decimalType, _ := builtinTypeGraph["decimal"].(*SimpleType)
	integerType, _ := builtinTypeGraph["integer"].(*SimpleType)
	prim := st.Primitive()

	for _, f := range st.Facets {
		switch v := f.(type) {
		case *LengthFacet:
			if inherited, ok := base.FacetByName("length").(*LengthFacet); ok && inherited.Value != v.Value {
				msg := "length %d conflicts with inherited length %d"
				if inherited.Fixed {
					msg = "length %d changes the fixed inherited length %d"
				}
				if err := report(msg, v.Value, inherited.Value); err != nil {
					return err
				}
			}
			if min, ok := base.FacetByName("minLength").(*MinLengthFacet); ok && v.Value < min.Value {
				if err := report("length %d is less than inherited minLength %d", v.Value, min.Value); err != nil {
					return err
				}
			}
			if max, ok := base.FacetByName("maxLength").(*MaxLengthFacet); ok && v.Value > max.Value {
				if err := report("length %d is greater than inherited maxLength %d", v.Value, max.Value); err != nil {
					return err
				}
			}

		case *MinLengthFacet:
			if inherited, ok := base.FacetByName("minLength").(*MinLengthFacet); ok {
				if inherited.Fixed && v.Value != inherited.Value {
					if err := report("minLength is fixed to %d in the base type", inherited.Value); err != nil {
						return err
					}
				} else if v.Value < inherited.Value {
					if err := report("minLength %d loosens inherited minLength %d", v.Value, inherited.Value); err != nil {
						return err
					}
				}
			}
			if max, ok := base.FacetByName("maxLength").(*MaxLengthFacet); ok && v.Value > max.Value {
				if err := report("minLength %d exceeds inherited maxLength %d", v.Value, max.Value); err != nil {
					return err
				}
			}

		case *MaxLengthFacet:
			if inherited, ok := base.FacetByName("maxLength").(*MaxLengthFacet); ok {
				if inherited.Fixed && v.Value != inherited.Value {
					if err := report("maxLength is fixed to %d in the base type", inherited.Value); err != nil {
						return err
					}
				} else if v.Value > inherited.Value {
					if err := report("maxLength %d loosens inherited maxLength %d", v.Value, inherited.Value); err != nil {
						return err
					}
				}
			}
			if min, ok := base.FacetByName("minLength").(*MinLengthFacet); ok && v.Value < min.Value {
				if err := report("maxLength %d is less than inherited minLength %d", v.Value, min.Value); err != nil {
					return err
				}
			}

		case *MinInclusiveFacet:
			if err := s.checkLowerBound(report, base, prim, v.Value, false); err != nil {
				return err
			}
		case *MinExclusiveFacet:
			if err := s.checkLowerBound(report, base, prim, v.Value, true); err != nil {
				return err
			}
		case *MaxInclusiveFacet:
			if err := s.checkUpperBound(report, base, prim, v.Value, false); err != nil {
				return err
			}
		case *MaxExclusiveFacet:
			if err := s.checkUpperBound(report, base, prim, v.Value, true); err != nil {
				return err
			}

		case *TotalDigitsFacet:
			if inherited, ok := base.FacetByName("totalDigits").(*TotalDigitsFacet); ok {
				if inherited.Fixed && v.Value != inherited.Value {
					if err := report("totalDigits is fixed to %d in the base type", inherited.Value); err != nil {
						return err
					}
				} else if v.Value > inherited.Value {
					if err := report("totalDigits %d loosens inherited totalDigits %d", v.Value, inherited.Value); err != nil {
						return err
					}
				}
			}

		case *FractionDigitsFacet:
			if decimalType != nil && !st.IsDerived(decimalType, "") {
				if err := report("fractionDigits requires a decimal-derived type"); err != nil {
					return err
				}
			} else if integerType != nil && st.IsDerived(integerType, "") && v.Value != 0 {
				if err := report("fractionDigits must be 0 for integer-derived types"); err != nil {
					return err
				}
			}
			if inherited, ok := base.FacetByName("fractionDigits").(*FractionDigitsFacet); ok {
				if inherited.Fixed && v.Value != inherited.Value {
					if err := report("fractionDigits is fixed to %d in the base type", inherited.Value); err != nil {
						return err
					}
				} else if v.Value > inherited.Value {
					if err := report("fractionDigits %d loosens inherited fractionDigits %d", v.Value, inherited.Value); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// checkLowerBound verifies a min facet does not extend below the base's
// lower bound and stays under its upper bound.
func (s *Schema) checkLowerBound(report func(string, ...any) error, base, prim *SimpleType, value string, exclusive bool) error {
	var primType Type
	if prim != nil {
		primType = prim
	}
	name := "minInclusive"
	if exclusive {
		name = "minExclusive"
	}
	for _, baseName := range []string{"minInclusive", "minExclusive"} {
		f := base.FacetByName(baseName)
		if f == nil {
			continue
		}
		bound, fixed, _ := boundFacetValue(f)
		if baseName == name && fixed && value != bound {
			return report("%s is fixed to %s in the base type", name, bound)
		}
		if cmp, err := compareValues(value, bound, primType); err == nil && cmp < 0 {
			return report("%s %s extends below inherited %s %s", name, value, baseName, bound)
		}
	}
	for _, baseName := range []string{"maxInclusive", "maxExclusive"} {
		f := base.FacetByName(baseName)
		if f == nil {
			continue
		}
		bound, _, _ := boundFacetValue(f)
		if cmp, err := compareValues(value, bound, primType); err == nil && cmp > 0 {
			return report("%s %s exceeds inherited %s %s", name, value, baseName, bound)
		}
	}
	return nil
}

// checkUpperBound verifies a max facet does not extend above the base's
// upper bound and stays over its lower bound.
func (s *Schema) checkUpperBound(report func(string, ...any) error, base, prim *SimpleType, value string, exclusive bool) error {
	var primType Type
	if prim != nil {
		primType = prim
	}
	name := "maxInclusive"
	if exclusive {
		name = "maxExclusive"
	}
	for _, baseName := range []string{"maxInclusive", "maxExclusive"} {
		f := base.FacetByName(baseName)
		if f == nil {
			continue
		}
		bound, fixed, _ := boundFacetValue(f)
		if baseName == name && fixed && value != bound {
			return report("%s is fixed to %s in the base type", name, bound)
		}
		if cmp, err := compareValues(value, bound, primType); err == nil && cmp > 0 {
			return report("%s %s exceeds inherited %s %s", name, value, baseName, bound)
		}
	}
	for _, baseName := range []string{"minInclusive", "minExclusive"} {
		f := base.FacetByName(baseName)
		if f == nil {
			continue
		}
		bound, _, _ := boundFacetValue(f)
		if cmp, err := compareValues(value, bound, primType); err == nil && cmp < 0 {
			return report("%s %s extends below inherited %s %s", name, value, baseName, bound)
		}
	}
	return nil
}

// CombineEnumerations combines multiple enumeration facets
func CombineEnumerations(facets []FacetValidator) []string {
	var values []string
	for _, f := range facets {
		if enum, ok := f.(*EnumerationFacet); ok {
			values = append(values, enum.Values...)
		}
	}
	return values
}

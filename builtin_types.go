package xsd

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// builtinTypeGraph holds the built-in types as SimpleType nodes wired into
// their derivation chains, so IsDerived works across built-ins the same way
// it does for user types. Registry lookups in the XSD namespace resolve
// against this graph.
var builtinTypeGraph = map[string]Type{}

func init() {
	buildBuiltinTypeGraph()
}

func buildBuiltinTypeGraph() {
	anySimple := &SimpleType{
		QName:   QName{Namespace: XSDNamespace, Local: "anySimpleType"},
		Variety: VarietyAtomic,
	}
	builtinTypeGraph["anySimpleType"] = anySimple

	anyType := &ComplexType{
		QName: QName{Namespace: XSDNamespace, Local: "anyType"},
		Mixed: true,
	}
	builtinTypeGraph["anyType"] = anyType
	anySimple.BaseType = anyType
	anySimple.Derivation = DerivationRestriction

	atomic := func(name, base, whiteSpace string, check func(string) error) {
		builtinTypeGraph[name] = &SimpleType{
			QName:      QName{Namespace: XSDNamespace, Local: name},
			Variety:    VarietyAtomic,
			BaseType:   builtinTypeGraph[base],
			Derivation: DerivationRestriction,
			WhiteSpace: whiteSpace,
			builtin:    check,
		}
	}

	// Primitives. Every primitive except string collapses whitespace.
	// string and anyURI have no lexical constraints of their own.
	atomic("string", "anySimpleType", "preserve", nil)
	atomic("boolean", "anySimpleType", "collapse", validateBoolean)
	atomic("decimal", "anySimpleType", "collapse", validateDecimal)
	atomic("float", "anySimpleType", "collapse", floatingPoint("float", 32))
	atomic("double", "anySimpleType", "collapse", floatingPoint("double", 64))
	atomic("duration", "anySimpleType", "collapse", validateDuration)
	atomic("dateTime", "anySimpleType", "collapse", validateDateTime)
	atomic("time", "anySimpleType", "collapse", validateTime)
	atomic("date", "anySimpleType", "collapse", validateDate)
	atomic("gYearMonth", "anySimpleType", "collapse", calendarPart("gYearMonth", gYearMonthPattern))
	atomic("gYear", "anySimpleType", "collapse", calendarPart("gYear", gYearPattern))
	atomic("gMonthDay", "anySimpleType", "collapse", calendarPart("gMonthDay", gMonthDayPattern))
	atomic("gDay", "anySimpleType", "collapse", calendarPart("gDay", gDayPattern))
	atomic("gMonth", "anySimpleType", "collapse", calendarPart("gMonth", gMonthPattern))
	atomic("hexBinary", "anySimpleType", "collapse", validateHexBinary)
	atomic("base64Binary", "anySimpleType", "collapse", validateBase64Binary)
	atomic("anyURI", "anySimpleType", "collapse", nil)
	atomic("QName", "anySimpleType", "collapse", validateQName)
	atomic("NOTATION", "anySimpleType", "collapse", validateQName)

	// String-derived chain.
	atomic("normalizedString", "string", "replace", validateNormalizedString)
	atomic("token", "normalizedString", "collapse", validateToken)
	atomic("language", "token", "", validateLanguage)
	atomic("NMTOKEN", "token", "", validateNMTOKEN)
	atomic("Name", "token", "", validateName)
	atomic("NCName", "Name", "", validateNCName)
	atomic("ID", "NCName", "", validateNCName)
	atomic("IDREF", "NCName", "", validateNCName)
	atomic("ENTITY", "NCName", "", validateNCName)

	// Numeric tower under decimal.
	atomic("integer", "decimal", "", bigInteger("integer", nil))
	atomic("nonPositiveInteger", "integer", "", bigInteger("nonPositiveInteger", signAtMost(0)))
	atomic("negativeInteger", "nonPositiveInteger", "", bigInteger("negativeInteger", signAtMost(-1)))
	atomic("long", "integer", "", signedRange("long", 64))
	atomic("int", "long", "", signedRange("int", 32))
	atomic("short", "int", "", signedRange("short", 16))
	atomic("byte", "short", "", signedRange("byte", 8))
	atomic("nonNegativeInteger", "integer", "", bigInteger("nonNegativeInteger", signAtLeast(0)))
	atomic("unsignedLong", "nonNegativeInteger", "", unsignedRange("unsignedLong", 64))
	atomic("unsignedInt", "unsignedLong", "", unsignedRange("unsignedInt", 32))
	atomic("unsignedShort", "unsignedInt", "", unsignedRange("unsignedShort", 16))
	atomic("unsignedByte", "unsignedShort", "", unsignedRange("unsignedByte", 8))
	atomic("positiveInteger", "nonNegativeInteger", "", bigInteger("positiveInteger", signAtLeast(1)))

	// Built-in list types.
	list := func(name, item string) {
		builtinTypeGraph[name] = &SimpleType{
			QName:      QName{Namespace: XSDNamespace, Local: name},
			Variety:    VarietyList,
			BaseType:   anySimple,
			Derivation: DerivationList,
			ItemType:   builtinTypeGraph[item].(*SimpleType),
			Facets:     []FacetValidator{&MinLengthFacet{Value: 1}},
		}
	}
	list("IDREFS", "IDREF")
	list("ENTITIES", "ENTITY")
	list("NMTOKENS", "NMTOKEN")
}

// Lexical patterns for the date/time family. Timezone suffixes are stripped
// with stripTimezone before matching, so the patterns cover the local part
// only. Month and day ranges are encoded in the patterns themselves.
var (
	decimalPattern    = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	durationPattern   = regexp.MustCompile(`^-?P(\d+Y)?(\d+M)?(\d+D)?(T(\d+H)?(\d+M)?(\d+(\.\d+)?S)?)?$`)
	timePattern       = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d:[0-5]\d(\.\d+)?$`)
	datePattern       = regexp.MustCompile(`^-?\d{4,}-\d{2}-\d{2}$`)
	gYearMonthPattern = regexp.MustCompile(`^-?\d{4,}-(0[1-9]|1[0-2])$`)
	gYearPattern      = regexp.MustCompile(`^-?\d{4,}$`)
	gMonthDayPattern  = regexp.MustCompile(`^--(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])$`)
	gDayPattern       = regexp.MustCompile(`^---(0[1-9]|[12]\d|3[01])$`)
	gMonthPattern     = regexp.MustCompile(`^--(0[1-9]|1[0-2])$`)
	languagePattern   = regexp.MustCompile(`^[a-zA-Z]{1,8}(-[a-zA-Z0-9]{1,8})*$`)
	timezoneSuffix    = regexp.MustCompile(`(Z|[+-](0\d|1[0-4]):[0-5]\d)$`)
)

func stripTimezone(value string) string {
	if loc := timezoneSuffix.FindStringIndex(value); loc != nil {
		return value[:loc[0]]
	}
	return value
}

func validateBoolean(value string) error {
	switch value {
	case "true", "false", "1", "0":
		return nil
	}
	return fmt.Errorf("invalid boolean value: %s", value)
}

func validateDecimal(value string) error {
	if !decimalPattern.MatchString(value) {
		return fmt.Errorf("invalid decimal value: %s", value)
	}
	return nil
}

// floatingPoint builds a validator for float (32) and double (64). The XSD
// special values are spelled differently from Go's.
func floatingPoint(name string, bits int) func(string) error {
	return func(value string) error {
		switch value {
		case "INF", "+INF", "-INF", "NaN":
			return nil
		}
		if _, err := strconv.ParseFloat(value, bits); err != nil {
			return fmt.Errorf("invalid %s value: %s", name, value)
		}
		return nil
	}
}

func validateDuration(value string) error {
	if !durationPattern.MatchString(value) {
		return fmt.Errorf("invalid duration value: %s", value)
	}
	// The pattern alone admits degenerate forms like P and P1YT.
	if !strings.ContainsAny(value, "0123456789") || strings.HasSuffix(value, "T") {
		return fmt.Errorf("duration needs at least one component: %s", value)
	}
	return nil
}

func validateDateTime(value string) error {
	lexical := stripTimezone(value)
	date, clock, found := strings.Cut(lexical, "T")
	if !found || validateDate(date) != nil || validateTime(clock) != nil {
		return fmt.Errorf("invalid dateTime value: %s", value)
	}
	return nil
}

func validateTime(value string) error {
	if !timePattern.MatchString(stripTimezone(value)) {
		return fmt.Errorf("invalid time value: %s", value)
	}
	return nil
}

func validateDate(value string) error {
	lexical := stripTimezone(value)
	if !datePattern.MatchString(lexical) {
		return fmt.Errorf("invalid date value: %s", value)
	}
	// Years before 0001 pass on the lexical form alone.
	if strings.HasPrefix(lexical, "-") {
		return nil
	}
	if _, err := time.Parse("2006-01-02", lexical); err != nil {
		return fmt.Errorf("invalid date value: %s", value)
	}
	return nil
}

// calendarPart builds a validator for the Gregorian fragment types
// (gYear, gMonth and friends), which are pure pattern checks.
func calendarPart(name string, pattern *regexp.Regexp) func(string) error {
	return func(value string) error {
		if !pattern.MatchString(stripTimezone(value)) {
			return fmt.Errorf("invalid %s value: %s", name, value)
		}
		return nil
	}
}

func validateHexBinary(value string) error {
	if len(value)%2 != 0 {
		return fmt.Errorf("hexBinary needs an even number of hex digits: %s", value)
	}
	if _, err := hex.DecodeString(value); err != nil {
		return fmt.Errorf("invalid hexBinary value: %s", value)
	}
	return nil
}

func validateBase64Binary(value string) error {
	if _, err := base64.StdEncoding.DecodeString(value); err != nil {
		return fmt.Errorf("invalid base64Binary value: %s", value)
	}
	return nil
}

func validateQName(value string) error {
	prefix, local, qualified := strings.Cut(value, ":")
	if !qualified {
		prefix, local = "", prefix
	}
	if qualified && validateNCName(prefix) != nil {
		return fmt.Errorf("invalid QName: %s", value)
	}
	if validateNCName(local) != nil {
		return fmt.Errorf("invalid QName: %s", value)
	}
	return nil
}

func validateNormalizedString(value string) error {
	if strings.ContainsAny(value, "\r\n\t") {
		return fmt.Errorf("normalizedString must not contain CR, LF or TAB")
	}
	return nil
}

func validateToken(value string) error {
	if err := validateNormalizedString(value); err != nil {
		return err
	}
	if value != strings.TrimSpace(value) || strings.Contains(value, "  ") {
		return fmt.Errorf("token must not carry leading, trailing or doubled spaces")
	}
	return nil
}

func validateLanguage(value string) error {
	if !languagePattern.MatchString(value) {
		return fmt.Errorf("invalid language tag: %s", value)
	}
	return nil
}

func isNameStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == ':'
}

func isNameChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) ||
		r == '.' || r == '-' || r == '_' || r == ':'
}

func validateName(value string) error {
	if value == "" {
		return fmt.Errorf("Name must not be empty")
	}
	for i, r := range value {
		if i == 0 && !isNameStart(r) {
			return fmt.Errorf("Name must start with a letter, underscore or colon: %s", value)
		}
		if i > 0 && !isNameChar(r) {
			return fmt.Errorf("invalid character %q in Name %s", r, value)
		}
	}
	return nil
}

func validateNCName(value string) error {
	if strings.ContainsRune(value, ':') {
		return fmt.Errorf("NCName must not contain a colon: %s", value)
	}
	return validateName(value)
}

func validateNMTOKEN(value string) error {
	if value == "" {
		return fmt.Errorf("NMTOKEN must not be empty")
	}
	for _, r := range value {
		if !isNameChar(r) {
			return fmt.Errorf("invalid character %q in NMTOKEN %s", r, value)
		}
	}
	return nil
}

func signAtLeast(min int) func(int) bool { return func(sign int) bool { return sign >= min } }
func signAtMost(max int) func(int) bool  { return func(sign int) bool { return sign <= max } }

// bigInteger builds an arbitrary-precision integer validator constrained to
// the signs admitted by ok; a nil ok admits the whole integer value space.
func bigInteger(name string, ok func(int) bool) func(string) error {
	return func(value string) error {
		i, valid := new(big.Int).SetString(value, 10)
		if !valid {
			return fmt.Errorf("invalid %s value: %s", name, value)
		}
		if ok != nil && !ok(i.Sign()) {
			return fmt.Errorf("%s out of range: %s", name, value)
		}
		return nil
	}
}

func signedRange(name string, bits int) func(string) error {
	return func(value string) error {
		if _, err := strconv.ParseInt(value, 10, bits); err != nil {
			return fmt.Errorf("invalid %s value: %s", name, value)
		}
		return nil
	}
}

func unsignedRange(name string, bits int) func(string) error {
	return func(value string) error {
		if _, err := strconv.ParseUint(value, 10, bits); err != nil {
			return fmt.Errorf("invalid %s value: %s", name, value)
		}
		return nil
	}
}

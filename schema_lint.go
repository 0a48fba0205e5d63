package xsd

import (
	"os"
	"strconv"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/pkg/errors"
)

// SchemaLinter runs a structural pre-flight check over a schema document
// before the staged build sees it. It reports malformed declarations with
// the source element attached, which the builder cannot always do once the
// document has been decomposed into components.
type SchemaLinter struct {
	problems []*ParseError
	ids      map[string]xmldom.Element
}

func NewSchemaLinter() *SchemaLinter {
	return &SchemaLinter{ids: make(map[string]xmldom.Element)}
}

// lintChecks dispatches on the local name of an XSD-namespace element.
// A nil entry marks a kind with no structural constraints of its own;
// an absent entry is an unknown kind and gets reported.
var lintChecks = map[string]func(*SchemaLinter, xmldom.Element){
	"schema":        nil,
	"annotation":    nil,
	"documentation": nil,
	"appinfo":       nil,
	"import":        nil,
	"sequence":      (*SchemaLinter).lintModelGroup,
	"choice":        (*SchemaLinter).lintModelGroup,
	"all":           (*SchemaLinter).lintModelGroup,

	"simpleType":     (*SchemaLinter).lintSimpleType,
	"complexType":    (*SchemaLinter).lintComplexType,
	"element":        (*SchemaLinter).lintElementDecl,
	"attribute":      (*SchemaLinter).lintAttributeDecl,
	"group":          (*SchemaLinter).lintGroup,
	"attributeGroup": (*SchemaLinter).lintAttributeGroup,

	"restriction": (*SchemaLinter).lintRestriction,
	"extension":   (*SchemaLinter).lintExtension,
	"list":        (*SchemaLinter).lintList,
	"union":       (*SchemaLinter).lintUnion,

	"simpleContent":  (*SchemaLinter).lintContentModel,
	"complexContent": (*SchemaLinter).lintContentModel,

	"include":  (*SchemaLinter).lintLocationRef,
	"redefine": (*SchemaLinter).lintLocationRef,
	"override": (*SchemaLinter).lintLocationRef,

	"any":          (*SchemaLinter).lintAny,
	"anyAttribute": (*SchemaLinter).lintAnyAttribute,

	"unique":   (*SchemaLinter).lintIdentityConstraint,
	"key":      (*SchemaLinter).lintIdentityConstraint,
	"keyref":   (*SchemaLinter).lintIdentityConstraint,
	"selector": (*SchemaLinter).lintXPathRef,
	"field":    (*SchemaLinter).lintXPathRef,

	"notation": (*SchemaLinter).lintNotation,

	"enumeration":    (*SchemaLinter).lintFacet,
	"pattern":        (*SchemaLinter).lintFacet,
	"length":         (*SchemaLinter).lintFacet,
	"minLength":      (*SchemaLinter).lintFacet,
	"maxLength":      (*SchemaLinter).lintFacet,
	"minInclusive":   (*SchemaLinter).lintFacet,
	"maxInclusive":   (*SchemaLinter).lintFacet,
	"minExclusive":   (*SchemaLinter).lintFacet,
	"maxExclusive":   (*SchemaLinter).lintFacet,
	"totalDigits":    (*SchemaLinter).lintFacet,
	"fractionDigits": (*SchemaLinter).lintFacet,
	"whiteSpace":     (*SchemaLinter).lintFacet,
}

// Lint walks the whole document and returns every structural problem found.
// The linter never stops early; mode handling belongs to the build, not here.
func (l *SchemaLinter) Lint(doc xmldom.Document) []*ParseError {
	l.problems = nil
	l.ids = make(map[string]xmldom.Element)

	if doc == nil {
		return []*ParseError{{Message: "nil document"}}
	}
	root := doc.DocumentElement()
	if root == nil {
		return []*ParseError{{Message: "document has no root element"}}
	}
	if string(root.NamespaceURI()) != XSDNamespace || string(root.LocalName()) != "schema" {
		l.report(root, "document root must be an xs:schema element, got %s", root.LocalName())
	}
	l.walk(root)
	return l.problems
}

func (l *SchemaLinter) walk(elem xmldom.Element) {
	l.lintID(elem)
	if string(elem.NamespaceURI()) == XSDNamespace {
		check, known := lintChecks[string(elem.LocalName())]
		switch {
		case !known:
			l.report(elem, "unknown schema element xs:%s", elem.LocalName())
		case check != nil:
			check(l, elem)
		}
	}
	children := elem.Children()
	for i := uint(0); i < children.Length(); i++ {
		if child := children.Item(i); child != nil {
			l.walk(child)
		}
	}
}

func (l *SchemaLinter) report(elem xmldom.Element, format string, args ...any) {
	pe := newParseError(elem, format, args...)
	if name := string(elem.GetAttribute("name")); name != "" {
		pe.Name = QName{Local: name}
	}
	l.problems = append(l.problems, pe)
}

// lintID enforces uniqueness of the optional id attribute across the document.
func (l *SchemaLinter) lintID(elem xmldom.Element) {
	if !elem.HasAttribute("id") {
		return
	}
	id := string(elem.GetAttribute("id"))
	if id == "" {
		l.report(elem, "id attribute must not be empty")
		return
	}
	if err := validateNCName(id); err != nil {
		l.report(elem, "id %q is not an NCName", id)
		return
	}
	if _, dup := l.ids[id]; dup {
		l.report(elem, "duplicate id %q", id)
		return
	}
	l.ids[id] = elem
}

func isGlobalDecl(elem xmldom.Element) bool {
	parent := elem.ParentNode()
	return parent != nil && string(parent.LocalName()) == "schema"
}

// childCounts tallies direct XSD-namespace children by local name.
func childCounts(elem xmldom.Element, locals ...string) map[string]int {
	want := make(map[string]bool, len(locals))
	for _, n := range locals {
		want[n] = true
	}
	counts := make(map[string]int, len(locals))
	children := elem.Children()
	for i := uint(0); i < children.Length(); i++ {
		child := children.Item(i)
		if child == nil || string(child.NamespaceURI()) != XSDNamespace {
			continue
		}
		if local := string(child.LocalName()); want[local] {
			counts[local]++
		}
	}
	return counts
}

// lintNameRef checks the name/ref exclusivity shared by element, attribute,
// group and attributeGroup declarations and returns both attribute values.
func (l *SchemaLinter) lintNameRef(elem xmldom.Element, kind string) (name, ref string) {
	name = string(elem.GetAttribute("name"))
	ref = string(elem.GetAttribute("ref"))
	if name != "" && ref != "" {
		l.report(elem, "%s cannot carry both name and ref", kind)
	}
	if name != "" {
		if err := validateNCName(name); err != nil {
			l.report(elem, "%s name %q is not an NCName", kind, name)
		}
	}
	return name, ref
}

// lintTypeName checks the naming rule for type definitions: global ones are
// named, anonymous ones are not.
func (l *SchemaLinter) lintTypeName(elem xmldom.Element, kind string) {
	name := string(elem.GetAttribute("name"))
	if isGlobalDecl(elem) {
		if name == "" {
			l.report(elem, "global %s needs a name attribute", kind)
		} else if err := validateNCName(name); err != nil {
			l.report(elem, "%s name %q is not an NCName", kind, name)
		}
		return
	}
	if name != "" {
		l.report(elem, "anonymous %s must not carry a name attribute", kind)
	}
}

func (l *SchemaLinter) lintEnumAttr(elem xmldom.Element, attr string, allowed ...string) {
	value := string(elem.GetAttribute(xmldom.DOMString(attr)))
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	l.report(elem, "%s %q must be one of %s", attr, value, strings.Join(allowed, ", "))
}

// lintOccurs validates minOccurs/maxOccurs and returns the parsed bounds,
// -1 meaning unbounded. Invalid values report and fall back to the default.
func (l *SchemaLinter) lintOccurs(elem xmldom.Element) (min, max int) {
	min, max = 1, 1
	if raw := string(elem.GetAttribute("minOccurs")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			l.report(elem, "minOccurs %q is not a non-negative integer", raw)
		} else {
			min = n
		}
	}
	raw := string(elem.GetAttribute("maxOccurs"))
	if raw == "" {
		return min, max
	}
	if raw == "unbounded" {
		return min, -1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		l.report(elem, "maxOccurs %q is not a non-negative integer or unbounded", raw)
		return min, max
	}
	if min > n {
		l.report(elem, "minOccurs %d greater than maxOccurs %d", min, n)
	}
	return min, n
}

func (l *SchemaLinter) lintSimpleType(elem xmldom.Element) {
	l.lintTypeName(elem, "simpleType")
	counts := childCounts(elem, "restriction", "list", "union")
	total := counts["restriction"] + counts["list"] + counts["union"]
	if total != 1 {
		l.report(elem, "simpleType needs exactly one of restriction, list or union, found %d", total)
	}
}

func (l *SchemaLinter) lintComplexType(elem xmldom.Element) {
	l.lintTypeName(elem, "complexType")
	l.lintEnumAttr(elem, "mixed", "true", "false")
	l.lintEnumAttr(elem, "abstract", "true", "false")
}

func (l *SchemaLinter) lintElementDecl(elem xmldom.Element) {
	name, ref := l.lintNameRef(elem, "element")
	if isGlobalDecl(elem) && name == "" && ref == "" {
		l.report(elem, "global element needs a name attribute")
	}
	l.lintOccurs(elem)

	counts := childCounts(elem, "simpleType", "complexType")
	if string(elem.GetAttribute("type")) != "" && counts["simpleType"]+counts["complexType"] > 0 {
		l.report(elem, "element cannot carry both a type attribute and an inline type")
	}
}

func (l *SchemaLinter) lintAttributeDecl(elem xmldom.Element) {
	l.lintNameRef(elem, "attribute")
	l.lintEnumAttr(elem, "use", "optional", "required", "prohibited")
	if elem.HasAttribute("default") && elem.HasAttribute("fixed") {
		l.report(elem, "attribute cannot carry both default and fixed")
	}
}

func (l *SchemaLinter) lintGroup(elem xmldom.Element) {
	name, ref := l.lintNameRef(elem, "group")
	if name != "" || ref != "" {
		return
	}
	if isGlobalDecl(elem) {
		l.report(elem, "global group needs a name attribute")
	} else {
		l.report(elem, "group reference needs a ref attribute")
	}
}

func (l *SchemaLinter) lintAttributeGroup(elem xmldom.Element) {
	l.lintNameRef(elem, "attributeGroup")
}

func (l *SchemaLinter) lintRestriction(elem xmldom.Element) {
	if string(elem.GetAttribute("base")) != "" {
		return
	}
	if childCounts(elem, "simpleType")["simpleType"] == 0 {
		l.report(elem, "restriction needs a base attribute or an inline simpleType")
	}
}

func (l *SchemaLinter) lintExtension(elem xmldom.Element) {
	if string(elem.GetAttribute("base")) == "" {
		l.report(elem, "extension needs a base attribute")
	}
}

func (l *SchemaLinter) lintList(elem xmldom.Element) {
	hasItemType := string(elem.GetAttribute("itemType")) != ""
	hasInline := childCounts(elem, "simpleType")["simpleType"] > 0
	switch {
	case !hasItemType && !hasInline:
		l.report(elem, "list needs an itemType attribute or an inline simpleType")
	case hasItemType && hasInline:
		l.report(elem, "list cannot carry both an itemType attribute and an inline simpleType")
	}
}

func (l *SchemaLinter) lintUnion(elem xmldom.Element) {
	if string(elem.GetAttribute("memberTypes")) == "" && childCounts(elem, "simpleType")["simpleType"] == 0 {
		l.report(elem, "union needs a memberTypes attribute or inline simpleTypes")
	}
}

func (l *SchemaLinter) lintContentModel(elem xmldom.Element) {
	counts := childCounts(elem, "restriction", "extension")
	if counts["restriction"]+counts["extension"] != 1 {
		l.report(elem, "%s needs exactly one restriction or extension child", elem.LocalName())
	}
}

func (l *SchemaLinter) lintLocationRef(elem xmldom.Element) {
	if string(elem.GetAttribute("schemaLocation")) == "" {
		l.report(elem, "%s needs a schemaLocation attribute", elem.LocalName())
	}
}

func (l *SchemaLinter) lintModelGroup(elem xmldom.Element) {
	min, max := l.lintOccurs(elem)
	if string(elem.LocalName()) != "all" {
		return
	}
	if min > 1 || max != 1 {
		l.report(elem, "an all group must have minOccurs 0 or 1 and maxOccurs 1")
	}
	// XSD 1.0 limits an all group to single-occurrence element particles.
	children := elem.Children()
	for i := uint(0); i < children.Length(); i++ {
		child := children.Item(i)
		if child == nil {
			continue
		}
		switch string(child.LocalName()) {
		case "element":
			if raw := string(child.GetAttribute("maxOccurs")); raw != "" && raw != "0" && raw != "1" {
				l.report(child, "elements inside an all group are limited to maxOccurs 0 or 1")
			}
		case "sequence", "choice", "group", "any":
			l.report(child, "an all group may only contain element particles")
		}
	}
}

func (l *SchemaLinter) lintAny(elem xmldom.Element) {
	l.lintOccurs(elem)
	l.lintEnumAttr(elem, "processContents", "strict", "lax", "skip")
}

func (l *SchemaLinter) lintAnyAttribute(elem xmldom.Element) {
	l.lintEnumAttr(elem, "processContents", "strict", "lax", "skip")
}

func (l *SchemaLinter) lintIdentityConstraint(elem xmldom.Element) {
	kind := string(elem.LocalName())
	name := string(elem.GetAttribute("name"))
	switch {
	case name == "":
		l.report(elem, "%s needs a name attribute", kind)
	case validateNCName(name) != nil:
		l.report(elem, "%s name %q is not an NCName", kind, name)
	}
	if kind == "keyref" && string(elem.GetAttribute("refer")) == "" {
		l.report(elem, "keyref needs a refer attribute")
	}
	counts := childCounts(elem, "selector", "field")
	if counts["selector"] == 0 {
		l.report(elem, "%s needs a selector child", kind)
	}
	if counts["field"] == 0 {
		l.report(elem, "%s needs at least one field child", kind)
	}
}

func (l *SchemaLinter) lintXPathRef(elem xmldom.Element) {
	if string(elem.GetAttribute("xpath")) == "" {
		l.report(elem, "%s needs an xpath attribute", elem.LocalName())
	}
}

func (l *SchemaLinter) lintNotation(elem xmldom.Element) {
	name := string(elem.GetAttribute("name"))
	switch {
	case name == "":
		l.report(elem, "notation needs a name attribute")
	case validateNCName(name) != nil:
		l.report(elem, "notation name %q is not an NCName", name)
	}
	if string(elem.GetAttribute("public")) == "" && string(elem.GetAttribute("system")) == "" {
		l.report(elem, "notation needs a public or system attribute")
	}
}

func (l *SchemaLinter) lintFacet(elem xmldom.Element) {
	if !elem.HasAttribute("value") {
		l.report(elem, "%s facet needs a value attribute", elem.LocalName())
	}
	l.lintEnumAttr(elem, "fixed", "true", "false")
}

// LintSchemaFile lints the schema document at path without building it.
func LintSchemaFile(path string) ([]*ParseError, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open schema %s", path)
	}
	defer file.Close()

	doc, err := xmldom.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse schema %s", path)
	}
	return NewSchemaLinter().Lint(doc), nil
}

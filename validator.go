package xsd

import (
	"fmt"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// Violation describes one validation failure against the schema.
type Violation struct {
	Element   xmldom.Element
	Attribute string
	Code      string
	Message   string
	Expected  []string
	Actual    string
}

// Validator validates XML documents against a built schema. A validator is
// single-use per document but the schema it holds is read-only and may be
// shared across concurrent validators.
type Validator struct {
	schema     *Schema
	mode       ValidationMode
	violations []Violation
	identities *identityTables
	ids        map[string]xmldom.Element
	idRefs     map[string][]xmldom.Element
}

// NewValidator creates a validator that reports every violation found.
func NewValidator(schema *Schema) *Validator {
	return NewValidatorWithMode(schema, ValidationStrict)
}

// NewValidatorWithMode creates a validator with an explicit mode. Skip mode
// suppresses all instance checking.
func NewValidatorWithMode(schema *Schema, mode ValidationMode) *Validator {
	return &Validator{schema: schema, mode: mode}
}

// Validate validates an XML document against the schema and returns all
// violations found.
func (v *Validator) Validate(doc xmldom.Document) []Violation {
	if doc == nil {
		return []Violation{{Code: "xsd-null-document", Message: "Document is null"}}
	}
	root := doc.DocumentElement()
	if root == nil {
		return []Violation{{Code: "xsd-no-root", Message: "Document has no root element"}}
	}
	if v.mode == ValidationSkip {
		return nil
	}

	v.violations = v.violations[:0]
	v.identities = newIdentityTables()
	v.ids = make(map[string]xmldom.Element)
	v.idRefs = make(map[string][]xmldom.Element)

	name := QName{Namespace: string(root.NamespaceURI()), Local: string(root.LocalName())}
	decl, err := v.schema.registry.Element(name)
	if err != nil && name.Namespace == "" && v.schema.TargetNamespace != "" {
		decl, err = v.schema.registry.Element(QName{Namespace: v.schema.TargetNamespace, Local: name.Local})
	}
	if err != nil {
		// Lax assessment accepts elements that have no declaration; strict
		// assessment demands one for the root.
		if v.mode == ValidationLax {
			return nil
		}
		v.addViolation(root, "", "cvc-elt.1",
			fmt.Sprintf("Cannot find declaration for element '%s'", name.Local), nil, name.Local)
		return v.violations
	}

	v.validateElement(root, decl)
	v.violations = append(v.violations, v.identities.resolve()...)
	v.checkIDRefs()
	return v.violations
}

// ValidationError reports a failed document assessment. Error speaks for the
// first violation; the full set stays available on the Violations field.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	first := e.Violations[0]
	if len(e.Violations) == 1 {
		return fmt.Sprintf("%s: %s", first.Code, first.Message)
	}
	return fmt.Sprintf("%s: %s (and %d more violations)", first.Code, first.Message, len(e.Violations)-1)
}

// ValidateFirst validates doc and returns a ValidationError carrying every
// violation found, nil when the document conforms.
func (v *Validator) ValidateFirst(doc xmldom.Document) error {
	violations := v.Validate(doc)
	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations}
}

func (v *Validator) addViolation(elem xmldom.Element, attr, code, message string, expected []string, actual string) {
	v.violations = append(v.violations, Violation{
		Element:   elem,
		Attribute: attr,
		Code:      code,
		Message:   message,
		Expected:  expected,
		Actual:    actual,
	})
}

// validateElement validates one instance element against its matched
// declaration, then recurses through its content.
func (v *Validator) validateElement(elem xmldom.Element, decl *ElementDecl) {
	if decl.target().Abstract {
		v.addViolation(elem, "", "cvc-elt.2",
			fmt.Sprintf("Element '%s' is abstract and cannot appear in an instance", decl.EffectiveName().Local), nil, "")
		return
	}

	elemType := v.resolveInstanceType(elem, decl)

	if v.isNil(elem) {
		if !decl.IsNillable() {
			v.addViolation(elem, "", "cvc-elt.3.1",
				fmt.Sprintf("Element '%s' is not nillable", decl.EffectiveName().Local), nil, "")
			return
		}
		if elem.Children().Length() > 0 || strings.TrimSpace(getElementTextContent(elem)) != "" {
			v.addViolation(elem, "", "cvc-elt.3.2.1",
				fmt.Sprintf("Element '%s' is nil but has content", decl.EffectiveName().Local), nil, "")
		}
		if decl.FixedValue() != "" {
			v.addViolation(elem, "", "cvc-elt.3.2.2",
				fmt.Sprintf("Element '%s' is nil but has a fixed value constraint", decl.EffectiveName().Local), nil, "")
		}
		return
	}

	switch t := elemType.(type) {
	case *SimpleType:
		v.validateSimpleElement(elem, decl, t)
	case *ComplexType:
		v.validateComplexElement(elem, decl, t)
	}

	if constraints := decl.IdentityConstraints(); len(constraints) > 0 {
		v.violations = append(v.violations, v.identities.collect(elem, constraints)...)
	}
}

// resolveInstanceType applies an xsi:type override when present and legal.
func (v *Validator) resolveInstanceType(elem xmldom.Element, decl *ElementDecl) Type {
	declared := decl.TypeOf()
	typeAttr := string(elem.GetAttributeNS(xmldom.DOMString(XSINamespace), "type"))
	if typeAttr == "" {
		return declared
	}

	local := typeAttr
	if idx := strings.Index(typeAttr, ":"); idx >= 0 {
		local = typeAttr[idx+1:]
	}
	// Resolve against the target namespace first, then the schema namespace
	// for built-ins.
	override, err := v.schema.registry.Type(QName{Namespace: v.schema.TargetNamespace, Local: local})
	if err != nil {
		override, err = v.schema.registry.Type(QName{Namespace: XSDNamespace, Local: local})
	}
	if err != nil {
		v.addViolation(elem, "type", "cvc-elt.4.2",
			fmt.Sprintf("xsi:type '%s' does not resolve to a type definition", typeAttr), nil, typeAttr)
		return declared
	}
	if declared != builtinTypeGraph["anyType"] && !override.IsDerived(declared, "") {
		v.addViolation(elem, "type", "cvc-elt.4.3",
			fmt.Sprintf("xsi:type '%s' is not derived from the declared type '%s'", typeAttr, declared.Name()), nil, typeAttr)
		return declared
	}
	return override
}

func (v *Validator) isNil(elem xmldom.Element) bool {
	return string(elem.GetAttributeNS(xmldom.DOMString(XSINamespace), "nil")) == "true"
}

// validateSimpleElement checks an element whose type is simple: no element
// children, no attributes beyond xsi, and a valid character value.
func (v *Validator) validateSimpleElement(elem xmldom.Element, decl *ElementDecl, st *SimpleType) {
	if elem.Children().Length() > 0 {
		v.addViolation(elem, "", "cvc-type.3.1.2",
			fmt.Sprintf("Element '%s' has a simple type and cannot have child elements", decl.EffectiveName().Local), nil, "")
		return
	}

	// Simple-typed elements admit no attributes except the xsi ones.
	attrs := elem.Attributes()
	for i := uint(0); i < attrs.Length(); i++ {
		attr := attrs.Item(i)
		if attr == nil {
			continue
		}
		ns := string(attr.NamespaceURI())
		local := string(attr.LocalName())
		if ns == XSINamespace || ns == "xmlns" ||
			ns == "http://www.w3.org/2000/xmlns/" || local == "xmlns" {
			continue
		}
		v.addViolation(elem, string(attr.LocalName()), "cvc-type.3.1.1",
			fmt.Sprintf("Element '%s' has a simple type and cannot have attributes", decl.EffectiveName().Local), nil, "")
	}

	v.validateElementValue(elem, decl, st, getElementTextContent(elem))
}

// validateElementValue applies default and fixed constraints and the simple
// type's value space to an element's character content.
func (v *Validator) validateElementValue(elem xmldom.Element, decl *ElementDecl, st *SimpleType, value string) {
	if strings.TrimSpace(value) == "" {
		if fixed := decl.FixedValue(); fixed != "" {
			value = fixed
		} else if def := decl.DefaultValue(); def != "" {
			value = def
		}
	} else if fixed := decl.FixedValue(); fixed != "" && !fixedValueEqual(value, fixed) {
		v.addViolation(elem, "", "cvc-elt.5.2.2.2",
			fmt.Sprintf("Element '%s' must have the fixed value %q", decl.EffectiveName().Local, fixed),
			[]string{fixed}, value)
		return
	}

	if err := st.ValidateValue(value); err != nil {
		v.addViolation(elem, "", "cvc-type.3.1.3",
			fmt.Sprintf("Element '%s' value is invalid: %v", decl.EffectiveName().Local, err), nil, value)
		return
	}
	v.trackIdentifiers(elem, st, value)
}

// validateComplexElement checks attributes and content of a complex-typed
// element.
func (v *Validator) validateComplexElement(elem xmldom.Element, decl *ElementDecl, ct *ComplexType) {
	if ct.Abstract {
		v.addViolation(elem, "", "cvc-type.2",
			fmt.Sprintf("Type '%s' is abstract and cannot be used directly", ct.QName.Local), nil, "")
	}

	if ct == builtinTypeGraph["anyType"] {
		// anyType places no constraints; walk children laxly.
		v.validateLaxChildren(elem)
		return
	}

	values, attrViolations := ct.Attributes.Decode(elem, v.schema, v.mode)
	v.violations = append(v.violations, attrViolations...)
	v.trackAttributeIdentifiers(elem, ct.Attributes, values)

	switch content := ct.Content.(type) {
	case *SimpleType:
		if elem.Children().Length() > 0 {
			v.addViolation(elem, "", "cvc-complex-type.2.2",
				fmt.Sprintf("Element '%s' has simple content and cannot have child elements", decl.EffectiveName().Local), nil, "")
			return
		}
		v.validateElementValue(elem, decl, content, getElementTextContent(elem))

	case *ModelGroup:
		v.validateContent(elem, decl, content, ct.Mixed)

	default:
		if elem.Children().Length() > 0 {
			v.addViolation(elem, "", "cvc-complex-type.2.1",
				fmt.Sprintf("Element '%s' must be empty", decl.EffectiveName().Local), nil, "")
		} else if !ct.Mixed && strings.TrimSpace(getElementTextContent(elem)) != "" {
			v.addViolation(elem, "", "cvc-complex-type.2.1",
				fmt.Sprintf("Element '%s' must be empty", decl.EffectiveName().Local), nil, "")
		}
	}
}

// validateContent matches an element's children against its content model,
// one visitor advance per child.
func (v *Validator) validateContent(elem xmldom.Element, decl *ElementDecl, group *ModelGroup, mixed bool) {
	if !mixed && strings.TrimSpace(getElementTextContent(elem)) != "" {
		v.addViolation(elem, "", "cvc-complex-type.2.3",
			fmt.Sprintf("Element '%s' has element-only content but contains text", decl.EffectiveName().Local), nil, "")
	}

	visitor := NewModelVisitor(group)
	children := elem.Children()
	for i := uint(0); i < children.Length(); i++ {
		child := children.Item(i)
		if child == nil {
			continue
		}
		childName := QName{Namespace: string(child.NamespaceURI()), Local: string(child.LocalName())}

		matched := false
		for visitor.Current() != nil {
			switch particle := visitor.Current().(type) {
			case *ElementDecl:
				if target := particle.matchDecl(childName); target != nil {
					v.reportOccurrences(elem, visitor.Advance(true))
					v.validateElement(child, target)
					matched = true
				}
			case *AnyElement:
				if particle.Matches(childName.Namespace) {
					v.reportOccurrences(elem, visitor.Advance(true))
					v.validateWildcardElement(child, particle)
					matched = true
				}
			}
			if matched {
				break
			}
			v.reportOccurrences(elem, visitor.Advance(false))
		}

		if !matched {
			v.addViolation(child, "", "cvc-complex-type.2.4.a",
				fmt.Sprintf("Element '%s' is not expected here", childName.Local),
				particleNames(visitor.Expected()), childName.Local)
		}
	}
	v.reportOccurrences(elem, visitor.Stop())
}

// validateLaxChildren validates children that have global declarations and
// accepts the rest.
func (v *Validator) validateLaxChildren(elem xmldom.Element) {
	children := elem.Children()
	for i := uint(0); i < children.Length(); i++ {
		child := children.Item(i)
		if child == nil {
			continue
		}
		name := QName{Namespace: string(child.NamespaceURI()), Local: string(child.LocalName())}
		if decl, err := v.schema.registry.Element(name); err == nil {
			v.validateElement(child, decl)
		} else {
			v.validateLaxChildren(child)
		}
	}
}

// validateWildcardElement applies a wildcard's processContents mode to a
// matched element.
func (v *Validator) validateWildcardElement(elem xmldom.Element, wildcard *AnyElement) {
	name := QName{Namespace: string(elem.NamespaceURI()), Local: string(elem.LocalName())}
	switch wildcard.ProcessContents {
	case SkipProcess:
		return
	case LaxProcess:
		if decl, err := v.schema.registry.Element(name); err == nil {
			v.validateElement(elem, decl)
		}
	default:
		decl, err := v.schema.registry.Element(name)
		if err != nil {
			v.addViolation(elem, "", "cvc-assess-elt.1.1.1",
				fmt.Sprintf("No element declaration found for '%s' (processContents='strict')", name.Local), nil, "")
			return
		}
		v.validateElement(elem, decl)
	}
}

// reportOccurrences converts model visitor occurrence violations into
// instance violations against elem.
func (v *Validator) reportOccurrences(elem xmldom.Element, occurrences []OccurrenceViolation) {
	for _, ov := range occurrences {
		expected := particleNames(ov.Expected)
		switch p := ov.Particle.(type) {
		case *ElementDecl:
			v.addViolation(elem, "", "cvc-complex-type.2.4.b",
				fmt.Sprintf("Missing required element '%s' (found %d occurrence(s), need at least %d)",
					p.EffectiveName().Local, ov.Occurs, p.MinOccurs()),
				expected, "")
		case *ModelGroup:
			if p.MaxOcc >= 0 && ov.Occurs > p.MaxOcc {
				v.addViolation(elem, "", "cvc-complex-type.2.4.d",
					fmt.Sprintf("Content model group repeats %d time(s), at most %d allowed", ov.Occurs, p.MaxOcc),
					expected, "")
				continue
			}
			v.addViolation(elem, "", "cvc-complex-type.2.4.b",
				fmt.Sprintf("Incomplete content: expected %s", strings.Join(expected, ", ")),
				expected, "")
		default:
			v.addViolation(elem, "", "cvc-complex-type.2.4.b",
				"Content does not satisfy the content model", expected, "")
		}
	}
}

func particleNames(particles []Particle) []string {
	var names []string
	seen := make(map[string]bool)
	for _, p := range particles {
		var name string
		switch item := p.(type) {
		case *ElementDecl:
			name = item.EffectiveName().Local
		case *AnyElement:
			name = "(any)"
		default:
			continue
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// trackIdentifiers records ID and IDREF values from element content.
func (v *Validator) trackIdentifiers(elem xmldom.Element, st *SimpleType, value string) {
	switch {
	case isIDType(st):
		v.recordID(elem, value)
	case isIDREFType(st):
		for _, ref := range strings.Fields(value) {
			v.idRefs[ref] = append(v.idRefs[ref], elem)
		}
	}
}

// trackAttributeIdentifiers records ID and IDREF values from decoded
// attributes.
func (v *Validator) trackAttributeIdentifiers(elem xmldom.Element, attrs *AttributeGroup, values map[QName]string) {
	if attrs == nil {
		return
	}
	for name, value := range values {
		decl := attrs.Get(name)
		if decl == nil || decl.Type == nil {
			continue
		}
		switch {
		case isIDType(decl.Type):
			v.recordID(elem, value)
		case isIDREFType(decl.Type):
			for _, ref := range strings.Fields(value) {
				v.idRefs[ref] = append(v.idRefs[ref], elem)
			}
		}
	}
}

func (v *Validator) recordID(elem xmldom.Element, value string) {
	id := strings.TrimSpace(value)
	if id == "" {
		return
	}
	if _, dup := v.ids[id]; dup {
		v.addViolation(elem, "", "cvc-id.2", fmt.Sprintf("Duplicate ID value '%s'", id), nil, id)
		return
	}
	v.ids[id] = elem
}

// checkIDRefs verifies every IDREF resolves to a declared ID.
func (v *Validator) checkIDRefs() {
	for ref, elems := range v.idRefs {
		if _, ok := v.ids[ref]; ok {
			continue
		}
		for _, elem := range elems {
			v.addViolation(elem, "", "cvc-id.1",
				fmt.Sprintf("IDREF '%s' does not match any ID in the document", ref), nil, ref)
		}
	}
}

func isIDType(st *SimpleType) bool {
	id, _ := builtinTypeGraph["ID"].(*SimpleType)
	return id != nil && st.IsDerived(id, "")
}

func isIDREFType(st *SimpleType) bool {
	idref, _ := builtinTypeGraph["IDREF"].(*SimpleType)
	idrefs, _ := builtinTypeGraph["IDREFS"].(*SimpleType)
	if idref != nil && st.IsDerived(idref, "") {
		return true
	}
	return idrefs != nil && st.IsDerived(idrefs, "")
}

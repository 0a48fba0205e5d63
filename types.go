package xsd

import (
	"fmt"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// Variety classifies a simple type's value space.
type Variety int

const (
	VarietyAtomic Variety = iota
	VarietyList
	VarietyUnion
)

// Derivation method names as they appear in schema documents.
const (
	DerivationRestriction = "restriction"
	DerivationExtension   = "extension"
	DerivationList        = "list"
	DerivationUnion       = "union"
)

// Type is the interface for all XSD types, simple and complex.
type Type interface {
	Component
	Name() QName
	Base() Type
	// IsDerived reports whether the type sits on a derivation chain ending
	// at other. A non-empty derivation restricts the chain to that single
	// method.
	IsDerived(other Type, derivation string) bool
}

// SimpleType represents an XSD simple type: atomic, list or union.
type SimpleType struct {
	QName      QName
	Variety    Variety
	BaseType   Type
	Derivation string
	Facets     []FacetValidator
	WhiteSpace string // "", "preserve", "replace", "collapse"

	ItemType    *SimpleType   // list variety
	MemberTypes []*SimpleType // union variety

	// builtin is the value-space check of a built-in type; nil for
	// user-derived types, which validate through their base chain.
	builtin func(string) error
}

func (st *SimpleType) Name() QName          { return st.QName }
func (st *SimpleType) QualifiedName() QName { return st.QName }
func (st *SimpleType) Base() Type           { return st.BaseType }
func (st *SimpleType) isContent()           {}

// Primitive returns the primitive ancestor of an atomic type, or nil for
// lists and unions.
func (st *SimpleType) Primitive() *SimpleType {
	if st.Variety != VarietyAtomic {
		return nil
	}
	cur := st
	for {
		base, ok := cur.BaseType.(*SimpleType)
		if !ok || base.QName.Local == "anySimpleType" {
			return cur
		}
		cur = base
	}
}

// IsDerived walks the base chain looking for other. Union membership counts
// as derivation from the union.
func (st *SimpleType) IsDerived(other Type, derivation string) bool {
	if sameType(st, other) {
		return true
	}
	if ou, ok := other.(*SimpleType); ok && ou.Variety == VarietyUnion {
		for _, member := range ou.MemberTypes {
			if st.IsDerived(member, derivation) {
				return true
			}
		}
	}
	var cur Type = st
	for {
		var step string
		s, ok := cur.(*SimpleType)
		if !ok {
			return false
		}
		step = s.Derivation
		cur = s.BaseType
		if cur == nil {
			return false
		}
		if derivation != "" && step != derivation {
			return false
		}
		if sameType(cur, other) {
			return true
		}
	}
}

// effectiveWhiteSpace resolves the whitespace mode through the base chain.
// Lists and unions always collapse.
func (st *SimpleType) effectiveWhiteSpace() string {
	if st.Variety != VarietyAtomic {
		return "collapse"
	}
	for cur := st; cur != nil; {
		if cur.WhiteSpace != "" {
			return cur.WhiteSpace
		}
		base, ok := cur.BaseType.(*SimpleType)
		if !ok {
			break
		}
		cur = base
	}
	return "preserve"
}

// ValidateValue checks a lexical value against the type's value space and
// its facet chain.
func (st *SimpleType) ValidateValue(value string) error {
	value = NormalizeWhiteSpace(value, st.effectiveWhiteSpace())

	switch st.Variety {
	case VarietyList:
		items := strings.Fields(value)
		if st.ItemType != nil {
			for _, item := range items {
				if err := st.ItemType.ValidateValue(item); err != nil {
					return fmt.Errorf("list item %q: %w", item, err)
				}
			}
		}
		return ValidateFacets(value, st.Facets, st)

	case VarietyUnion:
		var firstErr error
		matched := false
		for _, member := range st.MemberTypes {
			if err := member.ValidateValue(value); err == nil {
				matched = true
				break
			} else if firstErr == nil {
				firstErr = err
			}
		}
		if !matched && len(st.MemberTypes) > 0 {
			return fmt.Errorf("value %q matches no union member type: %w", value, firstErr)
		}
		return ValidateFacets(value, st.Facets, st)

	default:
		if base, ok := st.BaseType.(*SimpleType); ok {
			if err := base.ValidateValue(value); err != nil {
				return err
			}
		}
		if st.builtin != nil {
			if err := st.builtin(value); err != nil {
				return err
			}
		}
		return ValidateFacets(value, st.Facets, st)
	}
}

// FacetByName searches the type's facet chain for the nearest facet with
// the given name.
func (st *SimpleType) FacetByName(name string) FacetValidator {
	for cur := st; cur != nil; {
		for _, f := range cur.Facets {
			if f.Name() == name {
				return f
			}
		}
		base, ok := cur.BaseType.(*SimpleType)
		if !ok {
			break
		}
		cur = base
	}
	return nil
}

// Content is the content model slot of a complex type: a *ModelGroup for
// element content, a *SimpleType for simple content, nil for empty content.
type Content interface {
	isContent()
}

// ComplexType represents an XSD complex type.
type ComplexType struct {
	QName      QName
	BaseType   Type
	Derivation string
	Mixed      bool
	Abstract   bool
	Block      string
	Final      string
	Content    Content
	Attributes *AttributeGroup
}

func (ct *ComplexType) Name() QName          { return ct.QName }
func (ct *ComplexType) QualifiedName() QName { return ct.QName }
func (ct *ComplexType) Base() Type           { return ct.BaseType }

// ContentModel returns the element content model, or nil for simple or
// empty content.
func (ct *ComplexType) ContentModel() *ModelGroup {
	if g, ok := ct.Content.(*ModelGroup); ok {
		return g
	}
	return nil
}

// SimpleContentType returns the simple content type, or nil for element or
// empty content.
func (ct *ComplexType) SimpleContentType() *SimpleType {
	if st, ok := ct.Content.(*SimpleType); ok {
		return st
	}
	return nil
}

// IsDerived walks the complex derivation chain looking for other.
func (ct *ComplexType) IsDerived(other Type, derivation string) bool {
	if sameType(ct, other) {
		return true
	}
	var cur Type = ct
	for {
		var step string
		switch t := cur.(type) {
		case *ComplexType:
			step = t.Derivation
			cur = t.BaseType
		case *SimpleType:
			step = t.Derivation
			cur = t.BaseType
		default:
			return false
		}
		if cur == nil {
			return false
		}
		if derivation != "" && step != derivation {
			return false
		}
		if sameType(cur, other) {
			return true
		}
	}
}

// sameType compares types by identity, falling back to qualified name for
// separately constructed handles to the same global.
func sameType(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a == b {
		return true
	}
	an, bn := a.QualifiedName(), b.QualifiedName()
	return !an.IsZero() && an == bn
}

// buildGlobalType builds a staged global simpleType or complexType element.
// previous is the prior layer when building a redefinition.
func (s *Schema) buildGlobalType(elem xmldom.Element, name QName, previous Component) (Component, error) {
	var prev Type
	if previous != nil {
		prev = previous.(Type)
	}
	switch string(elem.LocalName()) {
	case "simpleType":
		return s.buildSimpleType(elem, name, prev)
	case "complexType":
		return s.buildComplexType(elem, name, prev)
	}
	return nil, newParseError(elem, "unexpected global type element %s", elem.LocalName())
}

// resolveTypeRef resolves a type reference, reporting unknown names through
// the error collector with anySimpleType as the lax fallback.
func (s *Schema) resolveTypeRef(elem xmldom.Element, name QName) (Type, error) {
	t, err := s.registry.Type(name)
	if err == nil {
		return t, nil
	}
	if _, ok := err.(*NotFoundError); !ok {
		return nil, err
	}
	pe := newParseError(elem, "unknown type %s", name)
	pe.Name = name
	if cerr := s.registry.collector.Add(pe); cerr != nil {
		return nil, cerr
	}
	return builtinTypeGraph["anySimpleType"], nil
}

// buildSimpleType builds a simpleType element, named or anonymous. prev is
// the prior layer when the type redefines itself.
func (s *Schema) buildSimpleType(elem xmldom.Element, name QName, prev Type) (*SimpleType, error) {
	if name.IsZero() {
		name = s.anonName("simpleType")
	}
	st := &SimpleType{QName: name}

	children := xsdChildren(elem)
	if len(children) == 0 {
		pe := newParseError(elem, "simpleType %s has no restriction, list or union", name)
		pe.Name = name
		if cerr := s.registry.collector.Add(pe); cerr != nil {
			return nil, cerr
		}
		st.Variety = VarietyAtomic
		st.BaseType = builtinTypeGraph["anySimpleType"]
		st.Derivation = DerivationRestriction
		return st, nil
	}

	child := children[0]
	switch string(child.LocalName()) {
	case "restriction":
		return s.buildSimpleRestriction(child, st, prev)
	case "list":
		return s.buildSimpleList(child, st)
	case "union":
		return s.buildSimpleUnion(child, st)
	}
	pe := newParseError(child, "unexpected %s in simpleType %s", child.LocalName(), name)
	pe.Name = name
	if cerr := s.registry.collector.Add(pe); cerr != nil {
		return nil, cerr
	}
	st.Variety = VarietyAtomic
	st.BaseType = builtinTypeGraph["anySimpleType"]
	st.Derivation = DerivationRestriction
	return st, nil
}

func (s *Schema) buildSimpleRestriction(elem xmldom.Element, st *SimpleType, prev Type) (*SimpleType, error) {
	st.Derivation = DerivationRestriction

	var base Type
	baseAttr := string(elem.GetAttribute("base"))
	switch {
	case baseAttr != "":
		baseName := s.parseQName(baseAttr)
		if prev != nil && baseName == st.QName {
			// A redefined type restricting its own name restricts the
			// previous layer.
			base = prev
		} else {
			var err error
			base, err = s.resolveTypeRef(elem, baseName)
			if err != nil {
				return nil, err
			}
		}
	default:
		for _, child := range xsdChildren(elem) {
			if string(child.LocalName()) == "simpleType" {
				inline, err := s.buildSimpleType(child, QName{}, nil)
				if err != nil {
					return nil, err
				}
				base = inline
				break
			}
		}
		if base == nil {
			pe := newParseError(elem, "restriction of %s has neither base attribute nor inline simpleType", st.QName)
			pe.Name = st.QName
			if cerr := s.registry.collector.Add(pe); cerr != nil {
				return nil, cerr
			}
			base = builtinTypeGraph["anySimpleType"]
		}
	}

	baseSimple, ok := base.(*SimpleType)
	if !ok {
		pe := newParseError(elem, "simpleType %s cannot restrict complex type %s", st.QName, base.Name())
		pe.Name = st.QName
		if cerr := s.registry.collector.Add(pe); cerr != nil {
			return nil, cerr
		}
		baseSimple = builtinTypeGraph["anySimpleType"].(*SimpleType)
	}
	st.BaseType = baseSimple
	st.Variety = baseSimple.Variety
	st.ItemType = baseSimple.ItemType
	st.MemberTypes = baseSimple.MemberTypes

	var enum *EnumerationFacet
	for _, child := range xsdChildren(elem) {
		facetName := string(child.LocalName())
		if facetName == "simpleType" {
			continue
		}
		value := string(child.GetAttribute("value"))
		if facetName == "enumeration" {
			if enum == nil {
				enum = &EnumerationFacet{}
				st.Facets = append(st.Facets, enum)
			}
			enum.Values = append(enum.Values, value)
			continue
		}
		if facetName == "whiteSpace" {
			st.WhiteSpace = value
			continue
		}
		fixedAttr := string(child.GetAttribute("fixed"))
		fixed := fixedAttr == "true" || fixedAttr == "1"
		facet := ParseFacet(facetName, value, fixed)
		if facet == nil {
			pe := newParseError(child, "unknown or malformed facet %s in restriction of %s", facetName, st.QName)
			pe.Name = st.QName
			if cerr := s.registry.collector.Add(pe); cerr != nil {
				return nil, cerr
			}
			continue
		}
		st.Facets = append(st.Facets, facet)
	}

	if err := s.checkFacetRestriction(elem, st, baseSimple); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Schema) buildSimpleList(elem xmldom.Element, st *SimpleType) (*SimpleType, error) {
	st.Variety = VarietyList
	st.Derivation = DerivationList
	st.BaseType = builtinTypeGraph["anySimpleType"]

	if itemAttr := string(elem.GetAttribute("itemType")); itemAttr != "" {
		item, err := s.resolveTypeRef(elem, s.parseQName(itemAttr))
		if err != nil {
			return nil, err
		}
		if itemSimple, ok := item.(*SimpleType); ok {
			if itemSimple.Variety == VarietyList {
				pe := newParseError(elem, "list type %s has list item type %s", st.QName, itemSimple.QName)
				pe.Name = st.QName
				if cerr := s.registry.collector.Add(pe); cerr != nil {
					return nil, cerr
				}
			}
			st.ItemType = itemSimple
		} else {
			pe := newParseError(elem, "list type %s has complex item type", st.QName)
			pe.Name = st.QName
			if cerr := s.registry.collector.Add(pe); cerr != nil {
				return nil, cerr
			}
		}
		return st, nil
	}

	for _, child := range xsdChildren(elem) {
		if string(child.LocalName()) == "simpleType" {
			item, err := s.buildSimpleType(child, QName{}, nil)
			if err != nil {
				return nil, err
			}
			st.ItemType = item
			return st, nil
		}
	}
	pe := newParseError(elem, "list type %s has neither itemType attribute nor inline simpleType", st.QName)
	pe.Name = st.QName
	if cerr := s.registry.collector.Add(pe); cerr != nil {
		return nil, cerr
	}
	return st, nil
}

func (s *Schema) buildSimpleUnion(elem xmldom.Element, st *SimpleType) (*SimpleType, error) {
	st.Variety = VarietyUnion
	st.Derivation = DerivationUnion
	st.BaseType = builtinTypeGraph["anySimpleType"]

	if memberAttr := string(elem.GetAttribute("memberTypes")); memberAttr != "" {
		for _, ref := range strings.Fields(memberAttr) {
			member, err := s.resolveTypeRef(elem, s.parseQName(ref))
			if err != nil {
				return nil, err
			}
			if memberSimple, ok := member.(*SimpleType); ok {
				st.MemberTypes = append(st.MemberTypes, memberSimple)
			} else {
				pe := newParseError(elem, "union type %s has complex member type %s", st.QName, member.Name())
				pe.Name = st.QName
				if cerr := s.registry.collector.Add(pe); cerr != nil {
					return nil, cerr
				}
			}
		}
	}

	for _, child := range xsdChildren(elem) {
		if string(child.LocalName()) != "simpleType" {
			continue
		}
		member, err := s.buildSimpleType(child, QName{}, nil)
		if err != nil {
			return nil, err
		}
		st.MemberTypes = append(st.MemberTypes, member)
	}

	if len(st.MemberTypes) == 0 {
		pe := newParseError(elem, "union type %s has no member types", st.QName)
		pe.Name = st.QName
		if cerr := s.registry.collector.Add(pe); cerr != nil {
			return nil, cerr
		}
	}
	return st, nil
}

// buildComplexType builds a complexType element, named or anonymous. prev
// is the prior layer when the type redefines itself.
func (s *Schema) buildComplexType(elem xmldom.Element, name QName, prev Type) (*ComplexType, error) {
	if name.IsZero() {
		name = s.anonName("complexType")
	}
	ct := &ComplexType{
		QName:    name,
		BaseType: builtinTypeGraph["anyType"],
		Mixed:    string(elem.GetAttribute("mixed")) == "true",
		Abstract: string(elem.GetAttribute("abstract")) == "true",
		Block:    string(elem.GetAttribute("block")),
		Final:    string(elem.GetAttribute("final")),
	}

	var modelElem xmldom.Element
	var attrStart xmldom.Element
	for _, child := range xsdChildren(elem) {
		switch string(child.LocalName()) {
		case "simpleContent":
			return s.buildSimpleContent(child, ct)
		case "complexContent":
			return s.buildComplexContent(child, ct, prev)
		case "sequence", "choice", "all", "group":
			modelElem = child
		case "attribute", "attributeGroup", "anyAttribute":
			if attrStart == nil {
				attrStart = child
			}
		}
	}

	if modelElem != nil {
		var group *ModelGroup
		var err error
		if string(modelElem.LocalName()) == "group" {
			var particle Particle
			particle, err = s.buildGroupRef(modelElem, QName{}, nil)
			if err != nil {
				return nil, err
			}
			if g, ok := particle.(*ModelGroup); ok {
				group = g
			} else if particle != nil {
				group = &ModelGroup{Kind: SequenceGroup, MinOcc: 1, MaxOcc: 1, Particles: []Particle{particle}}
			}
		} else {
			group, err = s.buildModelGroup(modelElem, QName{}, nil)
			if err != nil {
				return nil, err
			}
		}
		if group != nil {
			group.Mixed = ct.Mixed
			ct.Content = group
		}
	}

	attrs, err := s.buildAttributeUses(elem, nil, "")
	if err != nil {
		return nil, err
	}
	ct.Attributes = attrs
	return ct, nil
}

// buildSimpleContent handles complexType/simpleContent: character content of
// a simple type plus attributes.
func (s *Schema) buildSimpleContent(elem xmldom.Element, ct *ComplexType) (*ComplexType, error) {
	for _, child := range xsdChildren(elem) {
		derivation := string(child.LocalName())
		if derivation != "extension" && derivation != "restriction" {
			continue
		}
		ct.Derivation = derivation

		baseName := s.parseQName(string(child.GetAttribute("base")))
		base, err := s.resolveTypeRef(child, baseName)
		if err != nil {
			return nil, err
		}
		ct.BaseType = base

		var contentType *SimpleType
		var baseAttrs *AttributeGroup
		switch bt := base.(type) {
		case *SimpleType:
			contentType = bt
		case *ComplexType:
			contentType = bt.SimpleContentType()
			baseAttrs = bt.Attributes
			if contentType == nil {
				pe := newParseError(child, "simpleContent of %s derives from %s which has no simple content", ct.QName, baseName)
				pe.Name = ct.QName
				if cerr := s.registry.collector.Add(pe); cerr != nil {
					return nil, cerr
				}
			}
		}

		if derivation == DerivationRestriction {
			// A simpleContent restriction may narrow the content type with
			// facets via an inline restriction of the base's content type.
			restricted := &SimpleType{
				QName:      s.anonName("simpleContent"),
				Variety:    VarietyAtomic,
				Derivation: DerivationRestriction,
			}
			if contentType != nil {
				restricted.Variety = contentType.Variety
				restricted.ItemType = contentType.ItemType
				restricted.MemberTypes = contentType.MemberTypes
			}
			restricted.BaseType = contentType
			hasFacets := false
			var enum *EnumerationFacet
			for _, facetElem := range xsdChildren(child) {
				facetName := string(facetElem.LocalName())
				switch facetName {
				case "attribute", "attributeGroup", "anyAttribute", "simpleType":
					continue
				}
				value := string(facetElem.GetAttribute("value"))
				if facetName == "enumeration" {
					if enum == nil {
						enum = &EnumerationFacet{}
						restricted.Facets = append(restricted.Facets, enum)
					}
					enum.Values = append(enum.Values, value)
					hasFacets = true
					continue
				}
				if facetName == "whiteSpace" {
					restricted.WhiteSpace = value
					hasFacets = true
					continue
				}
				fixedAttr := string(facetElem.GetAttribute("fixed"))
				fixed := fixedAttr == "true" || fixedAttr == "1"
				if facet := ParseFacet(facetName, value, fixed); facet != nil {
					restricted.Facets = append(restricted.Facets, facet)
					hasFacets = true
				}
			}
			if hasFacets && contentType != nil {
				if err := s.checkFacetRestriction(child, restricted, contentType); err != nil {
					return nil, err
				}
				contentType = restricted
			}
		}

		if contentType != nil {
			ct.Content = contentType
		}

		attrs, err := s.buildAttributeUses(child, baseAttrs, derivation)
		if err != nil {
			return nil, err
		}
		ct.Attributes = attrs
		return ct, nil
	}
	pe := newParseError(elem, "simpleContent of %s has no extension or restriction", ct.QName)
	pe.Name = ct.QName
	if cerr := s.registry.collector.Add(pe); cerr != nil {
		return nil, cerr
	}
	return ct, nil
}

// buildComplexContent handles complexType/complexContent: derivation from a
// complex base with an element content model.
func (s *Schema) buildComplexContent(elem xmldom.Element, ct *ComplexType, prev Type) (*ComplexType, error) {
	if mixed := string(elem.GetAttribute("mixed")); mixed != "" {
		ct.Mixed = mixed == "true"
	}
	for _, child := range xsdChildren(elem) {
		derivation := string(child.LocalName())
		if derivation != "extension" && derivation != "restriction" {
			continue
		}
		ct.Derivation = derivation

		baseName := s.parseQName(string(child.GetAttribute("base")))
		var base Type
		if prev != nil && baseName == ct.QName {
			base = prev
		} else {
			var err error
			base, err = s.resolveTypeRef(child, baseName)
			if err != nil {
				return nil, err
			}
		}
		ct.BaseType = base

		baseComplex, _ := base.(*ComplexType)
		if baseComplex == nil && baseName.Local != "anyType" {
			pe := newParseError(child, "complexContent of %s derives from non-complex type %s", ct.QName, baseName)
			pe.Name = ct.QName
			if cerr := s.registry.collector.Add(pe); cerr != nil {
				return nil, cerr
			}
		}

		var ownGroup *ModelGroup
		for _, body := range xsdChildren(child) {
			switch string(body.LocalName()) {
			case "sequence", "choice", "all":
				g, err := s.buildModelGroup(body, QName{}, nil)
				if err != nil {
					return nil, err
				}
				ownGroup = g
			case "group":
				particle, err := s.buildGroupRef(body, QName{}, nil)
				if err != nil {
					return nil, err
				}
				if g, ok := particle.(*ModelGroup); ok {
					ownGroup = g
				} else if particle != nil {
					ownGroup = &ModelGroup{Kind: SequenceGroup, MinOcc: 1, MaxOcc: 1, Particles: []Particle{particle}}
				}
			}
		}

		switch {
		case derivation == DerivationExtension && baseComplex != nil && baseComplex.ContentModel() != nil:
			baseGroup := baseComplex.ContentModel()
			if ownGroup == nil {
				ct.Content = baseGroup
			} else {
				// Extension appends the new particles after the base content.
				ct.Content = &ModelGroup{
					Name:      s.anonName("extension"),
					Kind:      SequenceGroup,
					MinOcc:    1,
					MaxOcc:    1,
					Mixed:     ct.Mixed,
					Particles: []Particle{baseGroup, ownGroup},
				}
			}
		case ownGroup != nil:
			ownGroup.Mixed = ct.Mixed
			ct.Content = ownGroup
		}

		var baseAttrs *AttributeGroup
		if baseComplex != nil {
			baseAttrs = baseComplex.Attributes
		}
		attrs, err := s.buildAttributeUses(child, baseAttrs, derivation)
		if err != nil {
			return nil, err
		}
		ct.Attributes = attrs
		return ct, nil
	}
	pe := newParseError(elem, "complexContent of %s has no extension or restriction", ct.QName)
	pe.Name = ct.QName
	if cerr := s.registry.collector.Add(pe); cerr != nil {
		return nil, cerr
	}
	return ct, nil
}

package xsd

import (
	"fmt"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
	"golang.org/x/text/unicode/norm"
)

// Attribute use values.
const (
	UseOptional   = "optional"
	UseRequired   = "required"
	UseProhibited = "prohibited"
)

// AttributeDecl represents an attribute declaration or use.
type AttributeDecl struct {
	Name      QName
	Type      *SimpleType
	Use       string
	Default   string
	Fixed     string
	Qualified bool
}

func (a *AttributeDecl) QualifiedName() QName { return a.Name }

// Required reports whether the attribute must appear.
func (a *AttributeDecl) Required() bool { return a.Use == UseRequired }

// AttributeGroup is an ordered collection of attribute uses with at most
// one trailing wildcard. Complex types hold their merged attribute uses in
// one of these, whether or not a named group was involved.
type AttributeGroup struct {
	Name     QName
	Names    []QName
	Decls    map[QName]*AttributeDecl
	Wildcard *AnyAttribute
}

func (g *AttributeGroup) QualifiedName() QName { return g.Name }

// Get returns the attribute use for name, nil if absent.
func (g *AttributeGroup) Get(name QName) *AttributeDecl {
	if g == nil {
		return nil
	}
	return g.Decls[name]
}

// add registers an attribute use, preserving declaration order. A second
// use of the same name is a merge conflict.
func (g *AttributeGroup) add(decl *AttributeDecl) bool {
	if _, exists := g.Decls[decl.Name]; exists {
		return false
	}
	g.Names = append(g.Names, decl.Name)
	g.Decls[decl.Name] = decl
	return true
}

// put registers or replaces an attribute use.
func (g *AttributeGroup) put(decl *AttributeDecl) {
	if _, exists := g.Decls[decl.Name]; !exists {
		g.Names = append(g.Names, decl.Name)
	}
	g.Decls[decl.Name] = decl
}

// remove drops an attribute use.
func (g *AttributeGroup) remove(name QName) {
	if _, exists := g.Decls[name]; !exists {
		return
	}
	delete(g.Decls, name)
	for i, n := range g.Names {
		if n == name {
			g.Names = append(g.Names[:i], g.Names[i+1:]...)
			break
		}
	}
}

func newAttributeGroup(name QName) *AttributeGroup {
	return &AttributeGroup{Name: name, Decls: make(map[QName]*AttributeDecl)}
}

// buildGlobalAttribute builds a staged top-level attribute declaration.
func (s *Schema) buildGlobalAttribute(elem xmldom.Element, name QName) (Component, error) {
	decl := &AttributeDecl{
		Name:      name,
		Use:       UseOptional,
		Default:   string(elem.GetAttribute("default")),
		Fixed:     string(elem.GetAttribute("fixed")),
		Qualified: true,
	}
	if err := s.bindAttributeType(elem, decl); err != nil {
		return nil, err
	}
	return decl, nil
}

// buildGlobalAttributeGroup builds a staged named attribute group. prev is
// the prior layer when the group redefines itself.
func (s *Schema) buildGlobalAttributeGroup(elem xmldom.Element, name QName, prev *AttributeGroup) (Component, error) {
	group := newAttributeGroup(name)
	if err := s.collectAttributeUses(elem, group, prev); err != nil {
		return nil, err
	}
	return group, nil
}

// buildAttributeUses assembles the merged attribute uses of a complex type
// body: local attributes, referenced groups and an optional wildcard, plus
// derivation against the base type's uses.
func (s *Schema) buildAttributeUses(elem xmldom.Element, baseAttrs *AttributeGroup, derivation string) (*AttributeGroup, error) {
	group := newAttributeGroup(QName{})
	if err := s.collectAttributeUses(elem, group, nil); err != nil {
		return nil, err
	}

	if baseAttrs == nil {
		return group, nil
	}

	switch derivation {
	case DerivationExtension:
		// Extension keeps every base use; the extension must not collide.
		merged := newAttributeGroup(QName{})
		for _, name := range baseAttrs.Names {
			merged.add(baseAttrs.Decls[name])
		}
		merged.Wildcard = baseAttrs.Wildcard
		for _, name := range group.Names {
			if !merged.add(group.Decls[name]) {
				pe := newParseError(elem, "extension re-declares attribute %s of the base type", name)
				pe.Name = name
				if cerr := s.registry.collector.Add(pe); cerr != nil {
					return nil, cerr
				}
			}
		}
		if group.Wildcard != nil {
			merged.Wildcard = group.Wildcard
		}
		return merged, nil

	case DerivationRestriction:
		if err := s.checkAttributeRestriction(elem, group, baseAttrs); err != nil {
			return nil, err
		}
		// Base uses not mentioned by the restriction are inherited.
		for _, name := range baseAttrs.Names {
			baseDecl := baseAttrs.Decls[name]
			if own, ok := group.Decls[name]; ok {
				if own.Use == UseProhibited {
					group.remove(name)
				}
				continue
			}
			group.add(baseDecl)
		}
		if group.Wildcard == nil {
			group.Wildcard = baseAttrs.Wildcard
		}
		return group, nil
	}
	return group, nil
}

// collectAttributeUses walks elem's attribute, attributeGroup and
// anyAttribute children into group. prev supplies the previous layer for a
// self-referencing redefined group.
func (s *Schema) collectAttributeUses(elem xmldom.Element, group *AttributeGroup, prev *AttributeGroup) error {
	sawWildcard := false
	for _, child := range xsdChildren(elem) {
		switch string(child.LocalName()) {
		case "attribute":
			if sawWildcard {
				if err := s.attrError(child, group.Name, "attribute after anyAttribute"); err != nil {
					return err
				}
			}
			decl, err := s.buildAttributeUse(child)
			if err != nil {
				return err
			}
			if decl == nil {
				continue
			}
			if decl.Use == UseProhibited {
				// Kept in place so derivation sees the prohibition.
				group.put(decl)
				continue
			}
			if !group.add(decl) {
				if err := s.attrError(child, group.Name, fmt.Sprintf("duplicate attribute %s", decl.Name)); err != nil {
					return err
				}
			}

		case "attributeGroup":
			if sawWildcard {
				if err := s.attrError(child, group.Name, "attributeGroup after anyAttribute"); err != nil {
					return err
				}
			}
			refName := s.parseQName(string(child.GetAttribute("ref")))
			var ref *AttributeGroup
			if prev != nil && refName == group.Name {
				// A redefined group referencing its own name pulls in the
				// previous layer.
				ref = prev
			} else {
				var err error
				ref, err = s.registry.AttributeGroup(refName)
				if err != nil {
					pe := newParseError(child, "unknown attributeGroup %s", refName)
					pe.Name = refName
					if cerr := s.registry.collector.AddError(coalesceRefError(err, pe), child); cerr != nil {
						return cerr
					}
					continue
				}
			}
			for _, name := range ref.Names {
				if !group.add(ref.Decls[name]) {
					if err := s.attrError(child, group.Name, fmt.Sprintf("duplicate attribute %s from group %s", name, refName)); err != nil {
						return err
					}
				}
			}
			if ref.Wildcard != nil {
				group.Wildcard = ref.Wildcard
			}

		case "anyAttribute":
			if sawWildcard {
				if err := s.attrError(child, group.Name, "multiple anyAttribute wildcards"); err != nil {
					return err
				}
			}
			sawWildcard = true
			group.Wildcard = s.buildAnyAttribute(child)
		}
	}
	return nil
}

// coalesceRefError keeps circularity errors intact while turning not-found
// into a positioned parse error.
func coalesceRefError(err error, pe *ParseError) error {
	if _, ok := err.(*NotFoundError); ok {
		return pe
	}
	return err
}

func (s *Schema) attrError(elem xmldom.Element, name QName, msg string) error {
	pe := newParseError(elem, "%s", msg)
	pe.Name = name
	return s.registry.collector.Add(pe)
}

// buildAttributeUse builds one attribute child: a local declaration or a
// reference to a global attribute.
func (s *Schema) buildAttributeUse(elem xmldom.Element) (*AttributeDecl, error) {
	use := string(elem.GetAttribute("use"))
	if use == "" {
		use = UseOptional
	}

	if ref := string(elem.GetAttribute("ref")); ref != "" {
		refName := s.parseQName(ref)
		target, err := s.registry.Attribute(refName)
		if err != nil {
			pe := newParseError(elem, "unknown attribute reference %s", refName)
			pe.Name = refName
			if cerr := s.registry.collector.AddError(coalesceRefError(err, pe), elem); cerr != nil {
				return nil, cerr
			}
			return nil, nil
		}
		// The use site owns use/default/fixed; the declaration owns the rest.
		decl := *target
		decl.Use = use
		if v := string(elem.GetAttribute("default")); v != "" {
			decl.Default = v
		}
		if v := string(elem.GetAttribute("fixed")); v != "" {
			decl.Fixed = v
		}
		return &decl, nil
	}

	localName := string(elem.GetAttribute("name"))
	if localName == "" {
		pe := newParseError(elem, "attribute has neither name nor ref")
		if cerr := s.registry.collector.Add(pe); cerr != nil {
			return nil, cerr
		}
		return nil, nil
	}

	form := string(elem.GetAttribute("form"))
	qualified := form == "qualified" || (form == "" && s.AttributeFormDefault)
	decl := &AttributeDecl{
		Use:       use,
		Default:   string(elem.GetAttribute("default")),
		Fixed:     string(elem.GetAttribute("fixed")),
		Qualified: qualified,
	}
	if qualified {
		decl.Name = QName{Namespace: s.TargetNamespace, Local: localName}
	} else {
		decl.Name = QName{Local: localName}
	}
	if err := s.bindAttributeType(elem, decl); err != nil {
		return nil, err
	}
	return decl, nil
}

// bindAttributeType resolves an attribute's simple type from its type
// attribute or inline simpleType, defaulting to anySimpleType.
func (s *Schema) bindAttributeType(elem xmldom.Element, decl *AttributeDecl) error {
	if typeAttr := string(elem.GetAttribute("type")); typeAttr != "" {
		t, err := s.resolveTypeRef(elem, s.parseQName(typeAttr))
		if err != nil {
			return err
		}
		st, ok := t.(*SimpleType)
		if !ok {
			pe := newParseError(elem, "attribute %s has complex type %s", decl.Name, t.Name())
			pe.Name = decl.Name
			if cerr := s.registry.collector.Add(pe); cerr != nil {
				return cerr
			}
			st = builtinTypeGraph["anySimpleType"].(*SimpleType)
		}
		decl.Type = st
		return nil
	}
	for _, child := range xsdChildren(elem) {
		if string(child.LocalName()) == "simpleType" {
			st, err := s.buildSimpleType(child, QName{}, nil)
			if err != nil {
				return err
			}
			decl.Type = st
			return nil
		}
	}
	decl.Type = builtinTypeGraph["anySimpleType"].(*SimpleType)
	return nil
}

// checkAttributeRestriction verifies a restriction's attribute uses against
// the base type's uses: every derived attribute must correspond to a base
// use or base wildcard, use must not loosen, fixed values must agree and a
// derived wildcard must admit no namespace the base wildcard rejects.
func (s *Schema) checkAttributeRestriction(elem xmldom.Element, derived, base *AttributeGroup) error {
	for _, name := range derived.Names {
		d := derived.Decls[name]
		b := base.Decls[name]
		if b == nil {
			if base.Wildcard == nil || !base.Wildcard.Matches(name.Namespace) {
				if err := s.attrError(elem, name, fmt.Sprintf("attribute %s is not allowed by the base type", name)); err != nil {
					return err
				}
			}
			continue
		}
		if b.Use == UseRequired && d.Use != UseRequired {
			if err := s.attrError(elem, name, fmt.Sprintf("attribute %s is required in the base type", name)); err != nil {
				return err
			}
		}
		if b.Fixed != "" && !fixedValueEqual(d.Fixed, b.Fixed) {
			if err := s.attrError(elem, name, fmt.Sprintf("attribute %s must keep the fixed value %q", name, b.Fixed)); err != nil {
				return err
			}
		}
		if d.Type != nil && b.Type != nil && !d.Type.IsDerived(b.Type, DerivationRestriction) {
			if err := s.attrError(elem, name, fmt.Sprintf("attribute %s type %s is not derived from the base type %s",
				name, d.Type.QName, b.Type.QName)); err != nil {
				return err
			}
		}
	}
	if derived.Wildcard != nil {
		if base.Wildcard == nil {
			if err := s.attrError(elem, derived.Name, "restriction adds an attribute wildcard the base type does not have"); err != nil {
				return err
			}
		} else {
			dc := ParseNamespaceConstraint(derived.Wildcard.Namespace)
			bc := ParseNamespaceConstraint(base.Wildcard.Namespace)
			if !isNamespaceSubset(dc, bc, s.TargetNamespace) {
				if err := s.attrError(elem, derived.Name, "restriction wildcard admits namespaces the base wildcard rejects"); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// fixedValueEqual compares fixed value constraints under Unicode NFC, so
// differently composed but canonically equal values match.
func fixedValueEqual(a, b string) bool {
	return norm.NFC.String(strings.TrimSpace(a)) == norm.NFC.String(strings.TrimSpace(b))
}

// Decode validates the attributes of an instance element against the
// group's uses, returning the decoded values keyed by attribute name.
// Missing required attributes are reported as one violation naming all of
// them in declaration order.
func (g *AttributeGroup) Decode(elem xmldom.Element, schema *Schema, mode ValidationMode) (map[QName]string, []Violation) {
	values := make(map[QName]string)
	var violations []Violation
	if mode == ValidationSkip {
		return values, nil
	}

	attrs := elem.Attributes()
	for i := uint(0); i < attrs.Length(); i++ {
		attr := attrs.Item(i)
		if attr == nil {
			continue
		}
		ns := string(attr.NamespaceURI())
		local := string(attr.LocalName())
		// The xmldom library reports xmlns:prefix with namespace "xmlns"
		// and xmlns without prefix with local "xmlns".
		if ns == "http://www.w3.org/2000/xmlns/" || ns == "xmlns" || local == "xmlns" {
			continue
		}
		if ns == XSINamespace {
			continue
		}
		name := QName{Namespace: ns, Local: local}
		value := string(attr.NodeValue())

		decl := g.Get(name)
		if decl != nil && decl.Use == UseProhibited {
			violations = append(violations, Violation{
				Element:   elem,
				Attribute: local,
				Code:      "cvc-complex-type.3.2.2",
				Message:   fmt.Sprintf("Attribute '%s' is prohibited", name),
			})
			continue
		}
		if decl == nil {
			if g != nil && g.Wildcard != nil && g.Wildcard.Matches(ns) {
				if v := g.decodeWildcardAttribute(elem, schema, name, value, local); v != nil {
					violations = append(violations, *v)
				} else {
					values[name] = value
				}
				continue
			}
			violations = append(violations, Violation{
				Element:   elem,
				Attribute: local,
				Code:      "cvc-complex-type.3.2.2",
				Message:   fmt.Sprintf("Attribute '%s' is not allowed on this element", name),
			})
			continue
		}

		if decl.Type != nil {
			if err := decl.Type.ValidateValue(value); err != nil {
				violations = append(violations, Violation{
					Element:   elem,
					Attribute: local,
					Code:      "cvc-attribute.3",
					Message:   fmt.Sprintf("Attribute '%s' value is invalid: %v", name, err),
				})
				continue
			}
		}
		if decl.Fixed != "" && !fixedValueEqual(value, decl.Fixed) {
			violations = append(violations, Violation{
				Element:   elem,
				Attribute: local,
				Code:      "cvc-attribute.4",
				Message:   fmt.Sprintf("Attribute '%s' must have the fixed value %q", name, decl.Fixed),
				Expected:  []string{decl.Fixed},
				Actual:    value,
			})
			continue
		}
		values[name] = value
	}

	if g == nil {
		return values, violations
	}

	var missing []string
	for _, name := range g.Names {
		decl := g.Decls[name]
		if _, present := values[name]; present {
			continue
		}
		if decl.Required() {
			missing = append(missing, name.String())
			continue
		}
		if decl.Default != "" {
			values[name] = decl.Default
		} else if decl.Fixed != "" {
			values[name] = decl.Fixed
		}
	}
	if len(missing) > 0 {
		violations = append(violations, Violation{
			Element: elem,
			Code:    "cvc-complex-type.4",
			Message: fmt.Sprintf("Missing required attributes: %s", strings.Join(missing, ", ")),
		})
	}
	return values, violations
}

// decodeWildcardAttribute applies the wildcard's processContents mode to an
// attribute admitted by namespace. A nil return means the attribute is
// accepted.
func (g *AttributeGroup) decodeWildcardAttribute(elem xmldom.Element, schema *Schema, name QName, value, local string) *Violation {
	switch g.Wildcard.ProcessContents {
	case SkipProcess:
		return nil
	case LaxProcess:
		if decl, err := schema.registry.Attribute(name); err == nil && decl.Type != nil {
			if err := decl.Type.ValidateValue(value); err != nil {
				return &Violation{
					Element:   elem,
					Attribute: local,
					Code:      "cvc-attribute.3",
					Message:   fmt.Sprintf("Attribute '%s' value is invalid: %v", name, err),
				}
			}
		}
		return nil
	default: // strict
		decl, err := schema.registry.Attribute(name)
		if err != nil {
			return &Violation{
				Element:   elem,
				Attribute: local,
				Code:      "cvc-assess-attr.1",
				Message:   fmt.Sprintf("No declaration found for attribute '%s' (processContents='strict')", name),
			}
		}
		if decl.Type != nil {
			if err := decl.Type.ValidateValue(value); err != nil {
				return &Violation{
					Element:   elem,
					Attribute: local,
					Code:      "cvc-attribute.3",
					Message:   fmt.Sprintf("Attribute '%s' value is invalid: %v", name, err),
				}
			}
		}
		return nil
	}
}

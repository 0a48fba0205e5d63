package xsd

import (
	"github.com/agentflare-ai/go-xmldom"
)

// ElementDecl represents an element declaration, global or local. A particle
// built from a ref attribute carries only occurrence bounds and delegates
// everything else to the referenced global declaration.
type ElementDecl struct {
	Name              QName
	Type              Type
	MinOcc            int
	MaxOcc            int // -1 for unbounded
	Nillable          bool
	Abstract          bool
	Qualified         bool
	SubstitutionGroup QName
	Default           string
	Fixed             string
	Block             string
	Final             string
	Constraints       []*IdentityConstraint

	RefName QName
	ref     *ElementDecl

	registry *Registry
}

func (e *ElementDecl) MinOccurs() int       { return e.MinOcc }
func (e *ElementDecl) MaxOccurs() int       { return e.MaxOcc }
func (e *ElementDecl) QualifiedName() QName { return e.Name }

// target resolves reference delegation: a ref particle answers for its
// referenced global declaration.
func (e *ElementDecl) target() *ElementDecl {
	if e.ref != nil {
		return e.ref
	}
	return e
}

// EffectiveName is the instance element name this declaration matches.
func (e *ElementDecl) EffectiveName() QName { return e.target().Name }

// TypeOf returns the declaration's type, anyType when unresolved.
func (e *ElementDecl) TypeOf() Type {
	t := e.target()
	if t.Type != nil {
		return t.Type
	}
	return builtinTypeGraph["anyType"]
}

// IsNillable reports the nillable property through reference delegation.
func (e *ElementDecl) IsNillable() bool { return e.target().Nillable }

// FixedValue returns the fixed value constraint through delegation.
func (e *ElementDecl) FixedValue() string { return e.target().Fixed }

// DefaultValue returns the default value constraint through delegation.
func (e *ElementDecl) DefaultValue() string { return e.target().Default }

// IdentityConstraints returns the declaration's identity constraints
// through delegation.
func (e *ElementDecl) IdentityConstraints() []*IdentityConstraint {
	return e.target().Constraints
}

// matchDecl returns the declaration an instance element of the given name
// validates against: the declaration itself, or a member of its
// substitution group. nil means no match.
func (e *ElementDecl) matchDecl(name QName) *ElementDecl {
	t := e.target()
	if t.Name == name {
		if t.Abstract {
			return nil
		}
		return t
	}
	if e.registry == nil {
		return nil
	}
	seen := map[QName]bool{t.Name: true}
	return e.registry.substitutionMatch(t.Name, name, seen)
}

// substitutionMatch walks the substitution group of head, transitively,
// looking for a member declaration named name.
func (r *Registry) substitutionMatch(head, name QName, seen map[QName]bool) *ElementDecl {
	for _, member := range r.SubstitutionGroups[head] {
		if seen[member] {
			continue
		}
		seen[member] = true
		if member == name {
			if decl, err := r.Element(member); err == nil && !decl.Abstract {
				return decl
			}
			return nil
		}
		if decl := r.substitutionMatch(member, name, seen); decl != nil {
			return decl
		}
	}
	return nil
}

// buildGlobalElement builds a staged top-level element declaration.
func (s *Schema) buildGlobalElement(elem xmldom.Element, name QName) (Component, error) {
	decl := &ElementDecl{
		Name:      name,
		MinOcc:    1,
		MaxOcc:    1,
		Qualified: true,
		Nillable:  string(elem.GetAttribute("nillable")) == "true",
		Abstract:  string(elem.GetAttribute("abstract")) == "true",
		Default:   string(elem.GetAttribute("default")),
		Fixed:     string(elem.GetAttribute("fixed")),
		Block:     string(elem.GetAttribute("block")),
		Final:     string(elem.GetAttribute("final")),
		registry:  s.registry,
	}

	if sg := string(elem.GetAttribute("substitutionGroup")); sg != "" {
		head := s.parseQName(sg)
		decl.SubstitutionGroup = head
		s.registry.SubstitutionGroups[head] = append(s.registry.SubstitutionGroups[head], name)
		s.registry.deferResolve(func() error {
			return s.checkSubstitution(elem, decl, head)
		})
	}

	if err := s.bindElementType(elem, decl, true); err != nil {
		return nil, err
	}
	if err := s.buildIdentityConstraints(elem, decl); err != nil {
		return nil, err
	}
	return decl, nil
}

// buildParticleElement builds an element particle inside a model group:
// either a local declaration or a reference to a global one.
func (s *Schema) buildParticleElement(elem xmldom.Element) (*ElementDecl, error) {
	decl := &ElementDecl{
		MinOcc:   s.parseOccurs(elem, "minOccurs", 1),
		MaxOcc:   s.parseOccurs(elem, "maxOccurs", 1),
		registry: s.registry,
	}
	if err := s.checkOccurs(elem, decl.MinOcc, decl.MaxOcc); err != nil {
		return nil, err
	}

	if ref := string(elem.GetAttribute("ref")); ref != "" {
		decl.RefName = s.parseQName(ref)
		s.registry.deferResolve(func() error {
			target, err := s.registry.Element(decl.RefName)
			if err != nil {
				pe := newParseError(elem, "unknown element reference %s", decl.RefName)
				pe.Name = decl.RefName
				return s.registry.collector.Add(pe)
			}
			decl.ref = target
			return nil
		})
		return decl, nil
	}

	localName := string(elem.GetAttribute("name"))
	if localName == "" {
		pe := newParseError(elem, "element particle has neither name nor ref")
		if cerr := s.registry.collector.Add(pe); cerr != nil {
			return nil, cerr
		}
	}

	form := string(elem.GetAttribute("form"))
	decl.Qualified = form == "qualified" || (form == "" && s.ElementFormDefault)
	if decl.Qualified {
		decl.Name = QName{Namespace: s.TargetNamespace, Local: localName}
	} else {
		decl.Name = QName{Local: localName}
	}
	decl.Nillable = string(elem.GetAttribute("nillable")) == "true"
	decl.Default = string(elem.GetAttribute("default"))
	decl.Fixed = string(elem.GetAttribute("fixed"))
	decl.Block = string(elem.GetAttribute("block"))

	if err := s.bindElementType(elem, decl, false); err != nil {
		return nil, err
	}
	if err := s.buildIdentityConstraints(elem, decl); err != nil {
		return nil, err
	}
	return decl, nil
}

// bindElementType assigns the declaration's type from its type attribute or
// inline type child. Named references from local particles resolve after the
// global build pass: a content model may legally reference the type it is
// nested inside.
func (s *Schema) bindElementType(elem xmldom.Element, decl *ElementDecl, global bool) error {
	if typeAttr := string(elem.GetAttribute("type")); typeAttr != "" {
		typeName := s.parseQName(typeAttr)
		if global {
			t, err := s.resolveTypeRef(elem, typeName)
			if err != nil {
				return err
			}
			decl.Type = t
			return nil
		}
		s.registry.deferResolve(func() error {
			t, err := s.resolveTypeRef(elem, typeName)
			if err != nil {
				return err
			}
			decl.Type = t
			return nil
		})
		return nil
	}

	for _, child := range xsdChildren(elem) {
		switch string(child.LocalName()) {
		case "simpleType":
			st, err := s.buildSimpleType(child, QName{}, nil)
			if err != nil {
				return err
			}
			decl.Type = st
			return nil
		case "complexType":
			ct, err := s.buildComplexType(child, QName{}, nil)
			if err != nil {
				return err
			}
			decl.Type = ct
			return nil
		}
	}

	decl.Type = builtinTypeGraph["anyType"]
	return nil
}

// checkSubstitution verifies a substitution group member's type derives
// from the head's type. Runs after the global build pass.
func (s *Schema) checkSubstitution(elem xmldom.Element, decl *ElementDecl, head QName) error {
	headDecl, err := s.registry.Element(head)
	if err != nil {
		pe := newParseError(elem, "substitutionGroup head %s not found", head)
		pe.Name = head
		return s.registry.collector.Add(pe)
	}
	headType := headDecl.TypeOf()
	if headType == builtinTypeGraph["anyType"] {
		return nil
	}
	if decl.Type != nil && !decl.Type.IsDerived(headType, "") {
		pe := newParseError(elem,
			"element %s type is not derived from substitution head %s type %s",
			decl.Name, head, headType.Name())
		pe.Name = decl.Name
		return s.registry.collector.Add(pe)
	}
	return nil
}

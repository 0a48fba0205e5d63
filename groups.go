package xsd

import (
	"github.com/agentflare-ai/go-xmldom"
)

// GroupKind is the compositor of a model group.
type GroupKind string

const (
	SequenceGroup GroupKind = "sequence"
	ChoiceGroup   GroupKind = "choice"
	AllGroup      GroupKind = "all"
)

// ModelGroup is a sequence, choice or all compositor with an occurrence
// range. Named instances are global xs:group definitions; anonymous ones
// are complex type content models and nested compositors.
type ModelGroup struct {
	Name      QName
	Kind      GroupKind
	Particles []Particle
	MinOcc    int
	MaxOcc    int // -1 for unbounded
	Mixed     bool
}

func (g *ModelGroup) MinOccurs() int       { return g.MinOcc }
func (g *ModelGroup) MaxOccurs() int       { return g.MaxOcc }
func (g *ModelGroup) QualifiedName() QName { return g.Name }
func (g *ModelGroup) isContent()           {}

// iterElements calls fn for every element particle in the group's subtree.
func (g *ModelGroup) iterElements(fn func(*ElementDecl)) {
	for _, p := range g.Particles {
		switch item := p.(type) {
		case *ElementDecl:
			fn(item)
		case *ModelGroup:
			item.iterElements(fn)
		}
	}
}

// isPointless reports whether the group wraps nothing the content model
// needs: a 1..1 compositor with a single particle, or an empty sequence
// inside another group of the same kind.
func (g *ModelGroup) isPointless(parent *ModelGroup) bool {
	if len(g.Particles) == 0 {
		return true
	}
	if g.MinOcc != 1 || g.MaxOcc != 1 {
		return false
	}
	if len(g.Particles) == 1 {
		return true
	}
	return parent != nil && g.Kind == parent.Kind && g.Kind != AllGroup
}

// buildGlobalGroup builds a staged named group definition. prev is the
// prior layer when the group redefines itself.
func (s *Schema) buildGlobalGroup(elem xmldom.Element, name QName, prev *ModelGroup) (Component, error) {
	for _, child := range xsdChildren(elem) {
		switch string(child.LocalName()) {
		case "sequence", "choice", "all":
			group, err := s.buildModelGroup(child, name, prev)
			if err != nil {
				return nil, err
			}
			group.Name = name
			return group, nil
		}
	}
	pe := newParseError(elem, "group %s has no sequence, choice or all", name)
	pe.Name = name
	if cerr := s.registry.collector.Add(pe); cerr != nil {
		return nil, cerr
	}
	return &ModelGroup{Name: name, Kind: SequenceGroup, MinOcc: 1, MaxOcc: 1}, nil
}

// buildModelGroup builds a sequence, choice or all compositor. redefName
// and prev carry the redefinition context: a group reference to redefName
// splices in the previous layer, which is the only place a group may
// legally reference its own name.
func (s *Schema) buildModelGroup(elem xmldom.Element, redefName QName, prev *ModelGroup) (*ModelGroup, error) {
	group := &ModelGroup{
		Kind:   GroupKind(elem.LocalName()),
		MinOcc: s.parseOccurs(elem, "minOccurs", 1),
		MaxOcc: s.parseOccurs(elem, "maxOccurs", 1),
	}
	if err := s.checkOccurs(elem, group.MinOcc, group.MaxOcc); err != nil {
		return nil, err
	}
	if group.Kind == AllGroup {
		if group.MinOcc > 1 || group.MaxOcc != 1 {
			pe := newParseError(elem, "an all group must have minOccurs 0 or 1 and maxOccurs 1")
			if cerr := s.registry.collector.Add(pe); cerr != nil {
				return nil, cerr
			}
			group.MinOcc, group.MaxOcc = 1, 1
		}
	}

	for _, child := range xsdChildren(elem) {
		switch string(child.LocalName()) {
		case "element":
			decl, err := s.buildParticleElement(child)
			if err != nil {
				return nil, err
			}
			if group.Kind == AllGroup && (decl.MaxOcc < 0 || decl.MaxOcc > 1) {
				pe := newParseError(child, "elements of an all group must have maxOccurs 0 or 1")
				if cerr := s.registry.collector.Add(pe); cerr != nil {
					return nil, cerr
				}
				decl.MaxOcc = 1
			}
			group.Particles = append(group.Particles, decl)

		case "sequence", "choice":
			if group.Kind == AllGroup {
				pe := newParseError(child, "an all group may only contain element particles")
				if cerr := s.registry.collector.Add(pe); cerr != nil {
					return nil, cerr
				}
				continue
			}
			nested, err := s.buildModelGroup(child, redefName, prev)
			if err != nil {
				return nil, err
			}
			// Splice groups that add no structure of their own, so the
			// automaton and the particle checks see the flat model.
			if nested.isPointless(group) {
				group.Particles = append(group.Particles, nested.Particles...)
			} else {
				group.Particles = append(group.Particles, nested)
			}

		case "all":
			pe := newParseError(child, "an all group may only appear as the whole content model")
			if cerr := s.registry.collector.Add(pe); cerr != nil {
				return nil, cerr
			}

		case "any":
			group.Particles = append(group.Particles, s.buildAnyElement(child))

		case "group":
			particle, err := s.buildGroupRef(child, redefName, prev)
			if err != nil {
				return nil, err
			}
			if particle == nil {
				continue
			}
			if nested, ok := particle.(*ModelGroup); ok {
				if group.Kind == AllGroup && nested.Kind != AllGroup {
					pe := newParseError(child, "a group referenced inside an all group must itself be an all group")
					if cerr := s.registry.collector.Add(pe); cerr != nil {
						return nil, cerr
					}
					continue
				}
				if group.Kind != AllGroup && nested.Kind == AllGroup {
					pe := newParseError(child, "an all group may only appear as the whole content model")
					if cerr := s.registry.collector.Add(pe); cerr != nil {
						return nil, cerr
					}
					continue
				}
			}
			group.Particles = append(group.Particles, particle)
		}
	}
	return group, nil
}

// buildGroupRef resolves a group reference particle. References to the
// group being redefined splice in the previous layer; outside a redefine a
// self or mutual reference surfaces as a circularity.
func (s *Schema) buildGroupRef(elem xmldom.Element, redefName QName, prev *ModelGroup) (Particle, error) {
	refAttr := string(elem.GetAttribute("ref"))
	if refAttr == "" {
		pe := newParseError(elem, "nested group must have a ref attribute")
		if cerr := s.registry.collector.Add(pe); cerr != nil {
			return nil, cerr
		}
		return nil, nil
	}
	refName := s.parseQName(refAttr)
	minOcc := s.parseOccurs(elem, "minOccurs", 1)
	maxOcc := s.parseOccurs(elem, "maxOccurs", 1)
	if err := s.checkOccurs(elem, minOcc, maxOcc); err != nil {
		return nil, err
	}

	if refName == redefName && prev != nil {
		spliced := *prev
		spliced.MinOcc = minOcc
		spliced.MaxOcc = maxOcc
		return &spliced, nil
	}

	ref, err := s.registry.Group(refName)
	if err != nil {
		pe := newParseError(elem, "unresolvable group reference %s", refName)
		pe.Name = refName
		if cerr := s.registry.collector.AddError(coalesceRefError(err, pe), elem); cerr != nil {
			return nil, cerr
		}
		// Keep the content model usable with an open wildcard in place of
		// the broken reference.
		return &AnyElement{
			Namespace:       "##any",
			ProcessContents: LaxProcess,
			MinOcc:          minOcc,
			MaxOcc:          maxOcc,
			targetNS:        s.TargetNamespace,
		}, nil
	}
	if minOcc == ref.MinOcc && maxOcc == ref.MaxOcc {
		return ref, nil
	}
	reoccurs := *ref
	reoccurs.MinOcc = minOcc
	reoccurs.MaxOcc = maxOcc
	return &reoccurs, nil
}

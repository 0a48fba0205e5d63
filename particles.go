package xsd

// Particle is a schema object with an occurrence range: an element
// declaration, a wildcard, or a model group. MaxOccurs returns -1 for
// unbounded.
type Particle interface {
	MinOccurs() int
	MaxOccurs() int
}

// isEmptiable reports whether zero occurrences of p satisfy it. A model
// group with minOccurs > 0 is still emptiable when all of its children are.
func isEmptiable(p Particle) bool {
	if p.MinOccurs() == 0 {
		return true
	}
	if g, ok := p.(*ModelGroup); ok {
		if g.MaxOcc == 0 {
			return true
		}
		if g.Kind == ChoiceGroup {
			for _, item := range g.Particles {
				if isEmptiable(item) {
					return true
				}
			}
			return len(g.Particles) == 0
		}
		for _, item := range g.Particles {
			if !isEmptiable(item) {
				return false
			}
		}
		return true
	}
	return false
}

// isOver reports whether occurs has reached the particle's maximum.
func isOver(p Particle, occurs int) bool {
	max := p.MaxOccurs()
	return max >= 0 && max <= occurs
}

// isMissing reports whether occurs is under the particle's minimum.
func isMissing(p Particle, occurs int) bool {
	if occurs == 0 {
		return !isEmptiable(p)
	}
	return p.MinOccurs() > occurs
}

// isUnivocal reports whether the particle's occurrence range is a point.
func isUnivocal(p Particle) bool {
	return p.MinOccurs() == p.MaxOccurs()
}

// isAmbiguous reports whether the particle's occurrence range is open.
func isAmbiguous(p Particle) bool {
	return p.MinOccurs() != p.MaxOccurs()
}

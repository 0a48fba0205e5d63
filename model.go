package xsd

// maxModelDepth bounds the particle nesting a deterministic-model check
// will walk before giving up on the group.
const maxModelDepth = 15

// OccurrenceViolation reports a particle whose occurrence constraints were
// not satisfied while visiting a content model.
type OccurrenceViolation struct {
	Particle Particle
	Occurs   int
	Expected []Particle
}

// particleIter iterates a particle list with an optional skip predicate
// evaluated at iteration time, so occurrence counters updated between calls
// affect which particles are still offered.
type particleIter struct {
	items []Particle
	pos   int
	skip  func(Particle) bool
}

func (it *particleIter) Next() (Particle, bool) {
	for it.pos < len(it.items) {
		p := it.items[it.pos]
		it.pos++
		if it.skip != nil && it.skip(p) {
			continue
		}
		return p, true
	}
	return nil, false
}

// flattenElements returns the element and wildcard particles of a group's
// subtree in document order.
func flattenElements(g *ModelGroup) []Particle {
	var out []Particle
	for _, p := range g.Particles {
		if nested, ok := p.(*ModelGroup); ok {
			out = append(out, flattenElements(nested)...)
		} else {
			out = append(out, p)
		}
	}
	return out
}

type visitorFrame struct {
	group *ModelGroup
	items *particleIter
	match bool
}

// ModelVisitor validates element content against a model group using
// externally supplied match information. The caller walks the instance
// children, asking for the current particle via Current, and calls Advance
// with whether the child matched it. Occurrence violations come back from
// Advance; the visit ends when Current returns nil.
//
// Occurrence counting keeps two counters per particle: occurs is the
// pessimistic count and altOccurs the optimistic one, which differ when a
// repeated choice can be attributed to its group in more than one way.
type ModelVisitor struct {
	root      *ModelGroup
	stack     []visitorFrame
	group     *ModelGroup
	items     *particleIter
	match     bool
	element   Particle
	occurs    map[Particle]int
	altOccurs map[Particle]int
}

// NewModelVisitor starts a visit of root positioned on its first element
// particle.
func NewModelVisitor(root *ModelGroup) *ModelVisitor {
	v := &ModelVisitor{root: root}
	v.reset()
	v.start()
	return v
}

func (v *ModelVisitor) reset() {
	v.stack = v.stack[:0]
	v.group = v.root
	v.occurs = make(map[Particle]int)
	v.altOccurs = make(map[Particle]int)
	v.element = nil
	v.items = v.iterGroup()
	v.match = false
}

// Restart rewinds the visitor to the beginning of the model.
func (v *ModelVisitor) Restart() {
	v.reset()
	v.start()
}

// Current returns the element or wildcard particle the visitor is
// positioned on, nil once the visit has ended.
func (v *ModelVisitor) Current() Particle { return v.element }

// start advances to the first element particle of the model.
func (v *ModelVisitor) start() {
	for {
		item, has := v.items.Next()
		if !has {
			if len(v.stack) == 0 {
				return
			}
			top := v.stack[len(v.stack)-1]
			v.stack = v.stack[:len(v.stack)-1]
			v.group, v.items, v.match = top.group, top.items, top.match
			continue
		}
		if g, isGroup := item.(*ModelGroup); isGroup {
			if len(g.Particles) == 0 {
				continue
			}
			v.stack = append(v.stack, visitorFrame{v.group, v.items, v.match})
			v.group = g
			v.items = v.iterGroup()
			v.match = false
			continue
		}
		v.element = item
		return
	}
}

// iterGroup returns the iterator for the current group. All groups offer
// their elements in any order, filtered down to those not yet saturated.
func (v *ModelVisitor) iterGroup() *particleIter {
	if v.group.MaxOcc == 0 {
		return &particleIter{}
	}
	if v.group.Kind != AllGroup {
		return &particleIter{items: v.group.Particles}
	}
	return &particleIter{
		items: flattenElements(v.group),
		skip:  func(p Particle) bool { return isOver(p, v.occurs[p]) },
	}
}

// Expected returns the particles the model accepts at the current position,
// including substitution group members of expected elements.
func (v *ModelVisitor) Expected() []Particle {
	if v.group == nil {
		return nil
	}
	var items []Particle
	if v.group.Kind == ChoiceGroup {
		items = v.group.Particles
	} else {
		for _, e := range v.group.Particles {
			if e.MinOccurs() > v.occurs[e] {
				items = append(items, e)
			}
		}
	}

	var expected []Particle
	for _, e := range items {
		if g, ok := e.(*ModelGroup); ok {
			expected = append(expected, flattenElements(g)...)
			continue
		}
		expected = append(expected, e)
		if decl, ok := e.(*ElementDecl); ok && decl.registry != nil {
			for _, member := range decl.registry.SubstitutionGroups[decl.EffectiveName()] {
				if sub, err := decl.registry.Element(member); err == nil {
					expected = append(expected, sub)
				}
			}
		}
	}
	return expected
}

// Stop drains the visitor to the end of the model, returning the remaining
// occurrence violations.
func (v *ModelVisitor) Stop() []OccurrenceViolation {
	var out []OccurrenceViolation
	for v.element != nil {
		out = append(out, v.Advance(false)...)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// stopItem closes matching for an element or group, folding its occurrence
// count into the enclosing group's counters. The second return value is
// false when the frame stack is exhausted, which ends the visit. The first
// reports whether the item fell short of its minimum occurrences.
func (v *ModelVisitor) stopItem(item Particle) (bool, bool) {
	if _, isGroup := item.(*ModelGroup); isGroup {
		if len(v.stack) == 0 {
			return false, false
		}
		top := v.stack[len(v.stack)-1]
		v.stack = v.stack[:len(v.stack)-1]
		v.group, v.items, v.match = top.group, top.items, top.match
	}

	switch v.group.Kind {
	case ChoiceGroup:
		itemOccurs := v.occurs[item]
		if itemOccurs == 0 {
			return false, true
		}
		itemMaxOccurs := v.altOccurs[item]
		if itemMaxOccurs == 0 {
			itemMaxOccurs = itemOccurs
		}

		// A repeated item folds into between min and max group repeats,
		// depending on how the matches distribute over the item's range.
		var minGroupOccurs int
		switch {
		case item.MaxOccurs() <= 0:
			minGroupOccurs = 1
		case itemOccurs%item.MaxOccurs() != 0:
			minGroupOccurs = 1 + itemOccurs/item.MaxOccurs()
		default:
			minGroupOccurs = itemOccurs / item.MaxOccurs()
		}
		divisor := item.MinOccurs()
		if divisor == 0 {
			divisor = 1
		}
		maxGroupOccurs := maxInt(1, itemMaxOccurs/divisor)

		v.occurs[v.group] += minGroupOccurs
		v.altOccurs[v.group] += maxGroupOccurs
		v.occurs[item] = 0

		v.items = v.iterGroup()
		v.match = false
		return isMissing(item, itemMaxOccurs), true

	case AllGroup:
		return false, true
	}

	// Sequence group.
	switch {
	case v.match:
	case v.occurs[item] != 0:
		v.match = true
	case isEmptiable(item):
		return false, true
	case len(v.stack) > 0:
		return v.stopItem(v.group)
	case v.group.MinOcc <= maxInt(v.occurs[v.group], v.altOccurs[v.group]):
		return v.stopItem(v.group)
	default:
		return true, true
	}

	if n := len(v.group.Particles); n > 0 && item == v.group.Particles[n-1] {
		// Closing the last item may complete one or more repeats of the
		// sequence itself; fold the widest repeated item into the group
		// counters.
		for k, item2 := range v.group.Particles {
			itemOccurs := v.occurs[item2]
			if itemOccurs == 0 {
				continue
			}
			itemMaxOccurs := v.altOccurs[item2]
			if itemMaxOccurs == 0 {
				itemMaxOccurs = itemOccurs
			}
			tailRequired := false
			for _, x := range v.group.Particles[k+1:] {
				if !isEmptiable(x) {
					tailRequired = true
					break
				}
			}
			if itemMaxOccurs == 1 || tailRequired {
				v.occurs[v.group]++
				break
			}

			divisor := item2.MaxOccurs()
			if divisor <= 0 {
				divisor = itemOccurs
			}
			minGroupOccurs := maxInt(1, itemOccurs/divisor)
			divisor = item2.MinOccurs()
			if divisor == 0 {
				divisor = 1
			}
			maxGroupOccurs := maxInt(1, itemMaxOccurs/divisor)

			v.occurs[v.group] += minGroupOccurs
			v.altOccurs[v.group] += maxGroupOccurs
			break
		}
	}
	return isMissing(item, maxInt(v.occurs[item], v.altOccurs[item])), true
}

// Advance moves the visitor past the current particle. match tells whether
// the caller's current instance child matched it. The returned violations
// report particles whose occurrence constraints failed along the way.
func (v *ModelVisitor) Advance(match bool) []OccurrenceViolation {
	var out []OccurrenceViolation
	if v.element == nil {
		return out
	}

	if match {
		v.occurs[v.element]++
		v.match = true
		switch {
		case v.group.Kind == AllGroup:
			v.items = v.iterGroup()
		case !isOver(v.element, v.occurs[v.element]):
			return out
		case v.group.Kind == ChoiceGroup && isAmbiguous(v.element):
			return out
		}
	}

	ended := false
	var obj Particle

	elementOccurs := v.occurs[v.element]
	violated, ok := v.stopItem(v.element)
	if !ok {
		ended = true
	} else if violated {
		out = append(out, OccurrenceViolation{
			Particle: v.element,
			Occurs:   elementOccurs,
			Expected: []Particle{v.element},
		})
	}

loop:
	for !ended {
		for isOver(v.group, maxInt(v.occurs[v.group], v.altOccurs[v.group])) {
			if _, ok := v.stopItem(v.group); !ok {
				ended = true
				break loop
			}
		}

		obj, _ = v.items.Next()
		switch item := obj.(type) {
		case *ModelGroup:
			v.stack = append(v.stack, visitorFrame{v.group, v.items, v.match})
			v.group = item
			v.items = v.iterGroup()
			v.match = false
			v.occurs[item] = 0
			v.altOccurs[item] = 0

		case nil:
			if !v.match {
				if v.group.Kind == AllGroup {
					satisfied := true
					for _, e := range flattenElements(v.group) {
						if e.MinOccurs() > v.occurs[e] {
							satisfied = false
							break
						}
					}
					if satisfied {
						v.occurs[v.group] = 1
					}
				}
				group := v.group
				expected := v.Expected()
				violated, ok := v.stopItem(group)
				if !ok {
					ended = true
					break loop
				}
				if violated && len(expected) > 0 {
					out = append(out, OccurrenceViolation{
						Particle: group,
						Occurs:   v.occurs[group],
						Expected: expected,
					})
				}
			} else if v.group.Kind != AllGroup {
				v.items = v.iterGroup()
				v.match = false
			} else if unsatisfied := func() bool {
				for _, e := range flattenElements(v.group) {
					if e.MinOccurs() > v.occurs[e] {
						return true
					}
				}
				return false
			}(); unsatisfied {
				if v.group.MinOcc == 0 {
					out = append(out, OccurrenceViolation{
						Particle: v.group,
						Occurs:   v.occurs[v.group],
						Expected: v.Expected(),
					})
				}
				if len(v.stack) == 0 {
					ended = true
					break loop
				}
				top := v.stack[len(v.stack)-1]
				v.stack = v.stack[:len(v.stack)-1]
				v.group, v.items, v.match = top.group, top.items, top.match
			} else if func() bool {
				for _, e := range v.group.Particles {
					if !isOver(e, v.occurs[e]) {
						return true
					}
				}
				return false
			}() {
				v.items = v.iterGroup()
				v.match = false
			} else {
				v.occurs[v.group] = 1
			}

		default:
			v.element = obj
			if v.group.Kind == SequenceGroup {
				v.occurs[obj] = 0
			}
			return out
		}
	}

	// End of the model: report the closing state of the outermost group.
	v.element = nil
	g := v.group
	groupOccurs := maxInt(v.occurs[g], v.altOccurs[g])
	if isMissing(g, groupOccurs) {
		switch g.Kind {
		case ChoiceGroup:
			out = append(out, OccurrenceViolation{Particle: g, Occurs: v.occurs[g], Expected: v.Expected()})
		case SequenceGroup:
			if obj != nil {
				out = append(out, OccurrenceViolation{Particle: g, Occurs: v.occurs[g], Expected: v.Expected()})
			}
		default:
			for _, e := range g.Particles {
				if e.MinOccurs() > v.occurs[e] {
					out = append(out, OccurrenceViolation{Particle: g, Occurs: v.occurs[g], Expected: v.Expected()})
					break
				}
			}
		}
	} else if g.MaxOcc >= 0 && g.MaxOcc < v.occurs[g] {
		out = append(out, OccurrenceViolation{Particle: g, Occurs: v.occurs[g], Expected: v.Expected()})
	}
	return out
}

// isConsistent implements the Element Declarations Consistent precondition
// between two leaf particles: equal names require identical types.
func isConsistent(a, b Particle) bool {
	da, ok1 := a.(*ElementDecl)
	db, ok2 := b.(*ElementDecl)
	if !ok1 || !ok2 {
		return true
	}
	if da.EffectiveName() != db.EffectiveName() {
		return true
	}
	return sameType(da.TypeOf(), db.TypeOf())
}

// isOverlap reports whether two leaf particles can match the same instance
// element name.
func isOverlap(a, b Particle) bool {
	switch pa := a.(type) {
	case *ElementDecl:
		switch pb := b.(type) {
		case *ElementDecl:
			if pa.EffectiveName() == pb.EffectiveName() {
				return true
			}
			return pa.matchDecl(pb.EffectiveName()) != nil || pb.matchDecl(pa.EffectiveName()) != nil
		case *AnyElement:
			return pb.Matches(pa.EffectiveName().Namespace)
		}
	case *AnyElement:
		switch pb := b.(type) {
		case *ElementDecl:
			return pa.Matches(pb.EffectiveName().Namespace)
		case *AnyElement:
			return true
		}
	}
	return false
}

type modelPath struct {
	leaf Particle
	path []*ModelGroup
}

// CheckModel verifies that a content model is deterministic: Element
// Declarations Consistent and Unique Particle Attribution. The returned
// slice holds the first violation found, empty when the model is valid.
// Two same-named elements with the same type inside one choice or all
// group are allowed: either attribution validates identically.
func CheckModel(group *ModelGroup) []error {
	if group == nil {
		return nil
	}

	type frame struct {
		group *ModelGroup
		pos   int
	}
	currentPath := []*ModelGroup{group}
	stack := []frame{{group: group}}
	paths := make(map[QName]modelPath)
	var order []QName

	leafName := func(p Particle) QName {
		if decl, ok := p.(*ElementDecl); ok {
			return decl.EffectiveName()
		}
		return QName{}
	}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.pos >= len(top.group.Particles) {
			stack = stack[:len(stack)-1]
			if len(currentPath) > 1 {
				currentPath = currentPath[:len(currentPath)-1]
			}
			continue
		}
		item := top.group.Particles[top.pos]
		top.pos++

		if nested, ok := item.(*ModelGroup); ok {
			if len(stack) >= maxModelDepth {
				return []error{newModelError(group, "content model nesting exceeds depth %d", maxModelDepth)}
			}
			currentPath = append(currentPath, nested)
			stack = append(stack, frame{group: nested})
			continue
		}

		for _, name := range order {
			prev := paths[name]
			pe := prev.leaf

			if !isConsistent(item, pe) {
				return []error{newModelError(group,
					"Element Declarations Consistent violation between %s and %s: same name with different types",
					particleLabel(item), particleLabel(pe))}
			}

			if pe == item || !isOverlap(pe, item) {
				continue
			}
			peParent := prev.path[len(prev.path)-1]
			itemParent := currentPath[len(currentPath)-1]
			if peParent == itemParent {
				if peParent.Kind == AllGroup || peParent.Kind == ChoiceGroup {
					// Identical declarations in one choice or all compositor
					// validate the same way under either attribution.
					if isConsistent(item, pe) && leafName(item) == leafName(pe) && !leafName(item).IsZero() {
						continue
					}
					return []error{newModelError(group,
						"%s and %s overlap and are in the same %s group",
						particleLabel(pe), particleLabel(item), peParent.Kind)}
				}
				if isUnivocal(pe) {
					continue
				}
			}

			pePath := appendLeafPath(prev.path, pe)
			itemPath := appendLeafPath(currentPath, item)
			if distinguishablePaths(pePath, itemPath) {
				continue
			}
			return []error{newModelError(group,
				"Unique Particle Attribution violation between %s and %s",
				particleLabel(pe), particleLabel(item))}
		}

		name := leafName(item)
		if _, seen := paths[name]; !seen {
			order = append(order, name)
		}
		pathCopy := make([]*ModelGroup, len(currentPath))
		copy(pathCopy, currentPath)
		paths[name] = modelPath{leaf: item, path: pathCopy}
	}
	return nil
}

func appendLeafPath(groups []*ModelGroup, leaf Particle) []Particle {
	out := make([]Particle, 0, len(groups)+1)
	for _, g := range groups {
		out = append(out, g)
	}
	return append(out, leaf)
}

func particleLabel(p Particle) string {
	switch item := p.(type) {
	case *ElementDecl:
		return "element " + item.EffectiveName().String()
	case *AnyElement:
		return "wildcard " + item.Namespace
	case *ModelGroup:
		return string(item.Kind) + " group"
	}
	return "particle"
}

func particleIndex(g *ModelGroup, p Particle) int {
	for i, item := range g.Particles {
		if item == p {
			return i
		}
	}
	return -1
}

func pathContains(path []Particle, p Particle) bool {
	for _, item := range path {
		if item == p {
			return true
		}
	}
	return false
}

// distinguishablePaths checks whether two paths from the model root to a
// pair of overlapping leaves can be told apart deterministically, without
// lookahead or backtracking.
func distinguishablePaths(path1, path2 []Particle) bool {
	depth := 0
	diverged := false
	for k, e := range path1 {
		if !pathContains(path2, e) {
			if k == 0 {
				return true
			}
			depth = k - 1
			diverged = true
			break
		}
	}
	if !diverged {
		depth = 0
	}

	branch := path1[depth].(*ModelGroup)
	if branch.MaxOcc == 0 {
		return true
	}

	nonEmptiableIn := func(items []Particle) bool {
		for _, e := range items {
			if !isEmptiable(e) {
				return true
			}
		}
		return false
	}

	univocal1, univocal2 := true, true
	var before1, after1, before2, after2 bool
	if branch.Kind == SequenceGroup {
		idx1 := particleIndex(branch, path1[depth+1])
		idx2 := particleIndex(branch, path2[depth+1])
		if idx1 >= 0 && idx2 >= 0 {
			before1 = nonEmptiableIn(branch.Particles[:idx1])
			if idx1+1 <= idx2 {
				between := nonEmptiableIn(branch.Particles[idx1+1 : idx2])
				after1 = between
				before2 = between
			}
			after2 = nonEmptiableIn(branch.Particles[idx2+1:])
		}
	}

	for k := depth + 1; k < len(path1)-1; k++ {
		g := path1[k].(*ModelGroup)
		univocal1 = univocal1 && isUnivocal(g)
		idx := particleIndex(g, path1[k+1])
		if g.Kind == SequenceGroup {
			before1 = before1 || nonEmptiableIn(g.Particles[:idx])
			after1 = after1 || nonEmptiableIn(g.Particles[idx+1:])
		} else {
			for i, e := range g.Particles {
				if i != idx && isEmptiable(e) {
					univocal1 = false
					break
				}
			}
		}
	}

	for k := depth + 1; k < len(path2)-1; k++ {
		g := path2[k].(*ModelGroup)
		univocal2 = univocal2 && isUnivocal(g)
		idx := particleIndex(g, path2[k+1])
		if g.Kind == SequenceGroup {
			before2 = before2 || nonEmptiableIn(g.Particles[:idx])
			after2 = after2 || nonEmptiableIn(g.Particles[idx+1:])
		} else {
			for i, e := range g.Particles {
				if i != idx && isEmptiable(e) {
					univocal2 = false
					break
				}
			}
		}
	}

	leaf1 := path1[len(path1)-1]
	leaf2 := path2[len(path2)-1]

	if branch.Kind != SequenceGroup {
		switch {
		case before1 && before2:
			return true
		case before1:
			return univocal1 && isUnivocal(leaf1) || after1 || branch.MaxOcc == 1
		case before2:
			return univocal2 && isUnivocal(leaf2) || after2 || branch.MaxOcc == 1
		default:
			return false
		}
	}
	if branch.MaxOcc == 1 {
		return before2 || (before1 || univocal1) && (isUnivocal(leaf1) || after1)
	}
	return (before2 || (before1 || univocal1) && (isUnivocal(leaf1) || after1)) &&
		(before1 || (before2 || univocal2) && (isUnivocal(leaf2) || after2))
}

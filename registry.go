package xsd

import (
	"sync"

	"github.com/agentflare-ai/go-xmldom"
)

// ComponentKind selects one of the registry's global maps.
type ComponentKind string

const (
	KindType           ComponentKind = "type"
	KindElement        ComponentKind = "element"
	KindGroup          ComponentKind = "group"
	KindAttribute      ComponentKind = "attribute"
	KindAttributeGroup ComponentKind = "attributeGroup"
)

// Component is any built global schema entity addressable by qualified name.
type Component interface {
	QualifiedName() QName
}

type entryState int

const (
	stateStaged entryState = iota
	stateBuilding
	stateBuilt
	stateErrored
)

// stagedDecl is a registered but not yet built global declaration.
type stagedDecl struct {
	elem   xmldom.Element
	schema *Schema
}

// globalEntry is one registry slot. The state transition
// staged -> building -> built is one-way per registry lifetime; the building
// state is what a reentrant build attempt observes, surfacing circular
// references as CircularityError instead of unbounded recursion.
type globalEntry struct {
	state     entryState
	decl      stagedDecl
	layers    []stagedDecl // redefinition layers, build order
	component Component
	buildErr  error

	// layerOnly marks an entry staged by a redefine before its base
	// document loaded; the base declaration slides in beneath it.
	layerOnly bool
}

// Registry maps (component kind, qualified name) to built components while
// tolerating forward references and redefinition chains. It is the only
// shared mutable structure of the core: mutated during the single build
// phase, read-only afterwards. Multiple schema instances may share one
// registry; buildMu serializes their one-time builds.
type Registry struct {
	buildMu sync.Mutex

	types           map[QName]*globalEntry
	elements        map[QName]*globalEntry
	groups          map[QName]*globalEntry
	attributes      map[QName]*globalEntry
	attributeGroups map[QName]*globalEntry

	// SubstitutionGroups maps a head element name to its substitutable
	// member element names.
	SubstitutionGroups map[QName][]QName

	// Identities indexes key/unique/keyref constraints by name for the
	// keyref second-pass resolution.
	Identities map[QName]*IdentityConstraint

	// modelChecked remembers which content models have already been through
	// CheckModel so a repeated Build does not report the same model errors
	// again.
	modelChecked map[*ModelGroup]bool

	// pending holds resolutions that must run after every global is built:
	// element references and element type references inside content models
	// may legally point back at the global under construction, so binding
	// them during the build would misreport legal recursion as circular.
	pending []func() error

	collector ErrorCollector
}

// NewRegistry creates an empty registry with the given build mode.
func NewRegistry(mode ValidationMode) *Registry {
	return &Registry{
		types:              make(map[QName]*globalEntry),
		elements:           make(map[QName]*globalEntry),
		groups:             make(map[QName]*globalEntry),
		attributes:         make(map[QName]*globalEntry),
		attributeGroups:    make(map[QName]*globalEntry),
		SubstitutionGroups: make(map[QName][]QName),
		Identities:         make(map[QName]*IdentityConstraint),
		modelChecked:       make(map[*ModelGroup]bool),
		collector:          ErrorCollector{Mode: mode},
	}
}

// Mode returns the registry's build validation mode.
func (r *Registry) Mode() ValidationMode { return r.collector.Mode }

// Errors returns the parse diagnostics accumulated during lax builds.
func (r *Registry) Errors() []*ParseError { return r.collector.Errors }

func (r *Registry) mapFor(kind ComponentKind) map[QName]*globalEntry {
	switch kind {
	case KindType:
		return r.types
	case KindElement:
		return r.elements
	case KindGroup:
		return r.groups
	case KindAttribute:
		return r.attributes
	case KindAttributeGroup:
		return r.attributeGroups
	}
	return nil
}

// Load registers a not-yet-built global declaration. A second declaration of
// the same name in the same namespace records a duplicate-global parse error
// unless it comes from the same schema document replacing itself (reload).
func (r *Registry) Load(kind ComponentKind, name QName, elem xmldom.Element, schema *Schema) error {
	gmap := r.mapFor(kind)
	if prev, ok := gmap[name]; ok {
		if prev.layerOnly && prev.state == stateStaged {
			prev.layers = append([]stagedDecl{prev.decl}, prev.layers...)
			prev.decl = stagedDecl{elem: elem, schema: schema}
			prev.layerOnly = false
			return nil
		}
		if prev.decl.elem == elem || (prev.state == stateBuilt && prev.decl.schema == nil) {
			// Re-staging the same declaration element is a reload, not a
			// duplicate; a second declaration elsewhere in the same document
			// is reported below.
			gmap[name] = &globalEntry{decl: stagedDecl{elem: elem, schema: schema}}
			return nil
		}
		err := newParseError(elem, "global %s %s already declared", kind, name)
		err.Name = name
		return r.collector.Add(err)
	}
	gmap[name] = &globalEntry{decl: stagedDecl{elem: elem, schema: schema}}
	return nil
}

// LoadRedefine appends a redefinition layer for name instead of overwriting:
// the first entry stays the original declaration and later layers are
// applied in sequence during the build, each seeing the previous layer as
// its base.
func (r *Registry) LoadRedefine(kind ComponentKind, name QName, elem xmldom.Element, schema *Schema) error {
	gmap := r.mapFor(kind)
	entry, ok := gmap[name]
	if !ok {
		// The base document may not be loaded yet; stage the redefining
		// declaration and let a later Load slide the base in beneath it.
		gmap[name] = &globalEntry{decl: stagedDecl{elem: elem, schema: schema}, layerOnly: true}
		return nil
	}
	if entry.state != stateStaged {
		err := newParseError(elem, "cannot redefine already built %s %s", kind, name)
		err.Name = name
		return r.collector.Add(err)
	}
	entry.layers = append(entry.layers, stagedDecl{elem: elem, schema: schema})
	return nil
}

// LoadOverride replaces the staged declaration for name. Override targets
// not present in the target schema are silently ignored.
func (r *Registry) LoadOverride(kind ComponentKind, name QName, elem xmldom.Element, schema *Schema) {
	gmap := r.mapFor(kind)
	entry, ok := gmap[name]
	if !ok || entry.state != stateStaged {
		return
	}
	entry.decl = stagedDecl{elem: elem, schema: schema}
	entry.layers = nil
}

// buildEntry drives one slot through staged -> building -> built, applying
// redefinition layers in order. A slot observed in the building state is a
// circular reference.
func (r *Registry) buildEntry(kind ComponentKind, name QName, entry *globalEntry) (Component, error) {
	switch entry.state {
	case stateBuilt:
		return entry.component, nil
	case stateErrored:
		return nil, entry.buildErr
	case stateBuilding:
		return nil, &CircularityError{Name: name, Kind: kind}
	}

	entry.state = stateBuilding
	component, err := r.buildComponent(kind, name, entry.decl, nil)
	if err != nil {
		// Park the slot in a terminal error state: repeated lookups keep
		// reporting the failure without retrying half-built input, and a
		// repeated Build does not report it again.
		entry.state = stateErrored
		entry.buildErr = err
		return nil, err
	}

	for _, layer := range entry.layers {
		if layer.schema.TargetNamespace != entry.decl.schema.TargetNamespace {
			err := newParseError(layer.elem,
				"redefined schema has a different targetNamespace %q", layer.schema.TargetNamespace)
			err.Name = name
			if cerr := r.collector.Add(err); cerr != nil {
				return nil, cerr
			}
			continue
		}
		component, err = r.buildComponent(kind, name, layer, component)
		if err != nil {
			entry.state = stateErrored
			entry.buildErr = err
			return nil, err
		}
	}

	entry.component = component
	entry.state = stateBuilt
	return component, nil
}

// buildComponent dispatches to the kind-specific factory of the declaring
// schema. previous is non-nil when building a redefinition layer.
func (r *Registry) buildComponent(kind ComponentKind, name QName, decl stagedDecl, previous Component) (Component, error) {
	s := decl.schema
	switch kind {
	case KindType:
		return s.buildGlobalType(decl.elem, name, previous)
	case KindElement:
		return s.buildGlobalElement(decl.elem, name)
	case KindGroup:
		var prev *ModelGroup
		if previous != nil {
			prev = previous.(*ModelGroup)
		}
		return s.buildGlobalGroup(decl.elem, name, prev)
	case KindAttribute:
		return s.buildGlobalAttribute(decl.elem, name)
	case KindAttributeGroup:
		var prev *AttributeGroup
		if previous != nil {
			prev = previous.(*AttributeGroup)
		}
		return s.buildGlobalAttributeGroup(decl.elem, name, prev)
	}
	return nil, newParseError(decl.elem, "unexpected component kind %q", kind)
}

// Type returns the built type for name, building it on demand. Names in the
// XML Schema namespace resolve to the built-in type graph.
func (r *Registry) Type(name QName) (Type, error) {
	if name.Namespace == XSDNamespace {
		if bt := builtinTypeGraph[name.Local]; bt != nil {
			return bt, nil
		}
		return nil, &NotFoundError{Name: name, Kind: KindType}
	}
	entry, ok := r.types[name]
	if !ok {
		return nil, &NotFoundError{Name: name, Kind: KindType}
	}
	c, err := r.buildEntry(KindType, name, entry)
	if err != nil {
		return nil, err
	}
	return c.(Type), nil
}

// Element returns the built global element declaration for name.
func (r *Registry) Element(name QName) (*ElementDecl, error) {
	entry, ok := r.elements[name]
	if !ok {
		return nil, &NotFoundError{Name: name, Kind: KindElement}
	}
	c, err := r.buildEntry(KindElement, name, entry)
	if err != nil {
		return nil, err
	}
	return c.(*ElementDecl), nil
}

// Group returns the built global model group for name.
func (r *Registry) Group(name QName) (*ModelGroup, error) {
	entry, ok := r.groups[name]
	if !ok {
		return nil, &NotFoundError{Name: name, Kind: KindGroup}
	}
	c, err := r.buildEntry(KindGroup, name, entry)
	if err != nil {
		return nil, err
	}
	return c.(*ModelGroup), nil
}

// Attribute returns the built global attribute declaration for name.
func (r *Registry) Attribute(name QName) (*AttributeDecl, error) {
	entry, ok := r.attributes[name]
	if !ok {
		return nil, &NotFoundError{Name: name, Kind: KindAttribute}
	}
	c, err := r.buildEntry(KindAttribute, name, entry)
	if err != nil {
		return nil, err
	}
	return c.(*AttributeDecl), nil
}

// AttributeGroup returns the built attribute group for name.
func (r *Registry) AttributeGroup(name QName) (*AttributeGroup, error) {
	entry, ok := r.attributeGroups[name]
	if !ok {
		return nil, &NotFoundError{Name: name, Kind: KindAttributeGroup}
	}
	c, err := r.buildEntry(KindAttributeGroup, name, entry)
	if err != nil {
		return nil, err
	}
	return c.(*AttributeGroup), nil
}

// Build eagerly builds every staged entry so that all reachable parse errors
// surface at once instead of only those touched by validation. It is
// idempotent when nothing new is staged. Keyref relations are resolved last,
// after all identity constraints in scope are registered.
func (r *Registry) Build() error {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	kinds := []struct {
		kind ComponentKind
		gmap map[QName]*globalEntry
	}{
		{KindType, r.types},
		{KindAttribute, r.attributes},
		{KindAttributeGroup, r.attributeGroups},
		{KindGroup, r.groups},
		{KindElement, r.elements},
	}
	for _, k := range kinds {
		for name, entry := range k.gmap {
			if entry.state == stateBuilt || entry.state == stateErrored {
				continue
			}
			if _, err := r.buildEntry(k.kind, name, entry); err != nil {
				if cerr := r.collector.AddError(err, entry.decl.elem); cerr != nil {
					return cerr
				}
			}
		}
	}

	for _, resolve := range r.pending {
		if err := resolve(); err != nil {
			if cerr := r.collector.AddError(err, nil); cerr != nil {
				return cerr
			}
		}
	}
	r.pending = nil

	if err := r.resolveKeyrefs(); err != nil {
		return err
	}

	if err := r.checkContentModels(); err != nil {
		return err
	}
	return nil
}

// deferResolve schedules a resolution to run once every global is built.
func (r *Registry) deferResolve(fn func() error) {
	r.pending = append(r.pending, fn)
}

// checkContentModels verifies the unique particle attribution and element
// declarations consistent constraints of every built content model. It runs
// after deferred resolution so element references are bound.
func (r *Registry) checkContentModels() error {
	check := func(group *ModelGroup) error {
		if group == nil || r.modelChecked[group] {
			return nil
		}
		r.modelChecked[group] = true
		for _, err := range CheckModel(group) {
			if cerr := r.collector.AddError(err, nil); cerr != nil {
				return cerr
			}
		}
		return nil
	}

	for _, entry := range r.groups {
		if entry.state != stateBuilt {
			continue
		}
		if err := check(entry.component.(*ModelGroup)); err != nil {
			return err
		}
	}
	for _, entry := range r.types {
		if entry.state != stateBuilt {
			continue
		}
		ct, ok := entry.component.(*ComplexType)
		if !ok {
			continue
		}
		if err := check(ct.ContentModel()); err != nil {
			return err
		}
	}
	return nil
}

// resolveKeyrefs binds every keyref's refer relation. It runs strictly after
// all identities are staged because the referenced key may be declared after
// the keyref syntactically.
func (r *Registry) resolveKeyrefs() error {
	for name, ic := range r.Identities {
		if ic.Kind != KeyRefConstraint || ic.referChecked {
			continue
		}
		ic.referChecked = true
		target, ok := r.Identities[ic.Refer]
		if !ok || target.Kind == KeyRefConstraint {
			err := newParseError(ic.elem, "keyref %s refers to unknown key or unique constraint %s", name, ic.Refer)
			err.Name = name
			if cerr := r.collector.Add(err); cerr != nil {
				return cerr
			}
			continue
		}
		if len(target.Fields) != len(ic.Fields) {
			err := newParseError(ic.elem, "keyref %s has %d fields but %s has %d",
				name, len(ic.Fields), ic.Refer, len(target.Fields))
			err.Name = name
			if cerr := r.collector.Add(err); cerr != nil {
				return cerr
			}
			continue
		}
		ic.Referenced = target
	}
	return nil
}

// Clear resets the whole registry to its initial empty state.
func (r *Registry) Clear() {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()
	r.types = make(map[QName]*globalEntry)
	r.elements = make(map[QName]*globalEntry)
	r.groups = make(map[QName]*globalEntry)
	r.attributes = make(map[QName]*globalEntry)
	r.attributeGroups = make(map[QName]*globalEntry)
	r.SubstitutionGroups = make(map[QName][]QName)
	r.Identities = make(map[QName]*IdentityConstraint)
	r.modelChecked = make(map[*ModelGroup]bool)
	r.pending = nil
	r.collector.Errors = nil
}

package xsd

import (
	"fmt"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/antchfx/xpath"
)

// IdentityConstraintKind represents the type of identity constraint
type IdentityConstraintKind string

const (
	KeyConstraint    IdentityConstraintKind = "key"
	KeyRefConstraint IdentityConstraintKind = "keyref"
	UniqueConstraint IdentityConstraintKind = "unique"
)

// IdentityConstraint represents a key, keyref or unique constraint scoped
// to the element declaration it is defined on.
type IdentityConstraint struct {
	Name     QName
	Kind     IdentityConstraintKind
	Selector *Selector
	Fields   []*Selector
	Refer    QName

	// Referenced is the key or unique constraint a keyref targets, bound by
	// the registry after all constraints are staged.
	Referenced *IdentityConstraint

	// referChecked marks a keyref whose refer relation has been resolved or
	// reported, so a repeated Build does not report it again.
	referChecked bool

	elem xmldom.Element
}

// Selector is a compiled restricted-XPath expression from an xs:selector or
// xs:field element.
type Selector struct {
	XPath string
	expr  *xpath.Expr
}

// compileSelector compiles the selector subset of XPath. Namespace prefixes
// are stripped before compiling; matching is by local name.
func compileSelector(path string) (*Selector, error) {
	stripped := stripSelectorPrefixes(path)
	expr, err := xpath.Compile(stripped)
	if err != nil {
		return nil, fmt.Errorf("invalid selector xpath %q: %w", path, err)
	}
	return &Selector{XPath: path, expr: expr}, nil
}

// stripSelectorPrefixes removes namespace prefixes from each step of a
// selector path, including union branches.
func stripSelectorPrefixes(path string) string {
	branches := strings.Split(path, "|")
	for bi, branch := range branches {
		steps := strings.Split(branch, "/")
		for si, step := range steps {
			trimmed := strings.TrimSpace(step)
			at := strings.HasPrefix(trimmed, "@")
			if at {
				trimmed = trimmed[1:]
			}
			if idx := strings.Index(trimmed, ":"); idx > 0 {
				trimmed = trimmed[idx+1:]
			}
			if at {
				trimmed = "@" + trimmed
			}
			steps[si] = trimmed
		}
		branches[bi] = strings.Join(steps, "/")
	}
	return strings.Join(branches, "|")
}

// SelectElements evaluates the selector from context, returning the matched
// elements in document order.
func (s *Selector) SelectElements(context xmldom.Element) []xmldom.Element {
	if s == nil || s.expr == nil {
		return nil
	}
	var out []xmldom.Element
	iter := s.expr.Select(newNavigator(context))
	for iter.MoveNext() {
		if nav, ok := iter.Current().(*domNavigator); ok {
			if elem := nav.currentElement(); elem != nil {
				out = append(out, elem)
			}
		}
	}
	return out
}

// selectValues evaluates a field expression from context, returning the
// string values of all matched nodes.
func (s *Selector) selectValues(context xmldom.Element) []string {
	if s == nil || s.expr == nil {
		return nil
	}
	var out []string
	iter := s.expr.Select(newNavigator(context))
	for iter.MoveNext() {
		out = append(out, iter.Current().Value())
	}
	return out
}

// FieldValues evaluates the constraint's fields against one selected node.
// A field matching more than one node is an error for every kind; a field
// matching nothing is an error for keys and an absent tuple for unique and
// keyref constraints (absent reported through the second return).
func (c *IdentityConstraint) FieldValues(node xmldom.Element) ([]string, bool, error) {
	values := make([]string, 0, len(c.Fields))
	for i, field := range c.Fields {
		matched := field.selectValues(node)
		switch {
		case len(matched) > 1:
			return nil, false, fmt.Errorf(
				"field %d of %s %s selects %d nodes, expected at most one",
				i+1, c.Kind, c.Name, len(matched))
		case len(matched) == 0:
			if c.Kind == KeyConstraint {
				return nil, false, fmt.Errorf(
					"field %d of key %s selects no node", i+1, c.Name)
			}
			return nil, true, nil
		}
		values = append(values, matched[0])
	}
	return values, false, nil
}

// buildIdentityConstraints parses the key, keyref and unique children of an
// element declaration and registers them with the registry for keyref
// binding.
func (s *Schema) buildIdentityConstraints(elem xmldom.Element, decl *ElementDecl) error {
	for _, child := range xsdChildren(elem) {
		kind := IdentityConstraintKind(child.LocalName())
		switch kind {
		case KeyConstraint, KeyRefConstraint, UniqueConstraint:
		default:
			continue
		}

		name := string(child.GetAttribute("name"))
		if name == "" {
			pe := newParseError(child, "%s constraint must have a name", kind)
			if cerr := s.registry.collector.Add(pe); cerr != nil {
				return cerr
			}
			continue
		}

		constraint := &IdentityConstraint{
			Name: QName{Namespace: s.TargetNamespace, Local: name},
			Kind: kind,
			elem: child,
		}
		if kind == KeyRefConstraint {
			refer := string(child.GetAttribute("refer"))
			if refer == "" {
				pe := newParseError(child, "keyref %s must have a refer attribute", name)
				pe.Name = constraint.Name
				if cerr := s.registry.collector.Add(pe); cerr != nil {
					return cerr
				}
				continue
			}
			constraint.Refer = s.parseQName(refer)
		}

		for _, part := range xsdChildren(child) {
			partPath := string(part.GetAttribute("xpath"))
			switch string(part.LocalName()) {
			case "selector":
				sel, err := compileSelector(partPath)
				if err != nil {
					pe := newParseError(part, "%s %s: %v", kind, name, err)
					pe.Name = constraint.Name
					if cerr := s.registry.collector.Add(pe); cerr != nil {
						return cerr
					}
					continue
				}
				constraint.Selector = sel
			case "field":
				sel, err := compileSelector(partPath)
				if err != nil {
					pe := newParseError(part, "%s %s: %v", kind, name, err)
					pe.Name = constraint.Name
					if cerr := s.registry.collector.Add(pe); cerr != nil {
						return cerr
					}
					continue
				}
				constraint.Fields = append(constraint.Fields, sel)
			}
		}

		if constraint.Selector == nil {
			pe := newParseError(child, "%s %s has no selector", kind, name)
			pe.Name = constraint.Name
			if cerr := s.registry.collector.Add(pe); cerr != nil {
				return cerr
			}
			continue
		}
		if len(constraint.Fields) == 0 {
			pe := newParseError(child, "%s %s has no fields", kind, name)
			pe.Name = constraint.Name
			if cerr := s.registry.collector.Add(pe); cerr != nil {
				return cerr
			}
			continue
		}

		if _, exists := s.registry.Identities[constraint.Name]; exists {
			pe := newParseError(child, "identity constraint %s already declared", constraint.Name)
			pe.Name = constraint.Name
			if cerr := s.registry.collector.Add(pe); cerr != nil {
				return cerr
			}
			continue
		}
		s.registry.Identities[constraint.Name] = constraint
		decl.Constraints = append(decl.Constraints, constraint)
	}
	return nil
}

// identityTables accumulates the qualified node tables of key and unique
// constraints during one document validation, so keyrefs can be checked
// once the whole tree is walked.
type identityTables struct {
	values  map[*IdentityConstraint]map[string][]xmldom.Element
	keyrefs []pendingKeyref
}

type pendingKeyref struct {
	constraint *IdentityConstraint
	scope      xmldom.Element
}

func newIdentityTables() *identityTables {
	return &identityTables{values: make(map[*IdentityConstraint]map[string][]xmldom.Element)}
}

// fieldKey builds the comparison key for one field value tuple.
func fieldKey(values []string) string {
	return strings.Join(values, "\x1f")
}

// collect evaluates an element's identity constraints with the element as
// scope. Key and unique tables are filled in, keyrefs are queued for the
// final pass.
func (t *identityTables) collect(scope xmldom.Element, constraints []*IdentityConstraint) []Violation {
	var violations []Violation
	for _, c := range constraints {
		if c.Kind == KeyRefConstraint {
			t.keyrefs = append(t.keyrefs, pendingKeyref{constraint: c, scope: scope})
			continue
		}
		table := t.values[c]
		if table == nil {
			table = make(map[string][]xmldom.Element)
			t.values[c] = table
		}
		for _, node := range c.Selector.SelectElements(scope) {
			values, absent, err := c.FieldValues(node)
			if err != nil {
				violations = append(violations, Violation{
					Element: node,
					Code:    "cvc-identity-constraint.4.2.1",
					Message: fmt.Sprintf("Identity constraint error: %v", err),
				})
				continue
			}
			if absent {
				continue
			}
			key := fieldKey(values)
			if prior, dup := table[key]; dup {
				violations = append(violations, Violation{
					Element: node,
					Code:    "cvc-identity-constraint.4.1",
					Message: fmt.Sprintf("Duplicate %s constraint '%s' value: %s",
						c.Kind, c.Name, strings.Join(values, ", ")),
				})
				table[key] = append(prior, node)
				continue
			}
			table[key] = []xmldom.Element{node}
		}
	}
	return violations
}

// resolve checks all queued keyrefs against the collected key tables.
func (t *identityTables) resolve() []Violation {
	var violations []Violation
	for _, pending := range t.keyrefs {
		c := pending.constraint
		if c.Referenced == nil {
			violations = append(violations, Violation{
				Element: pending.scope,
				Code:    "src-identity-constraint.2.2.2",
				Message: fmt.Sprintf("Keyref '%s' refers to unknown constraint '%s'", c.Name, c.Refer),
			})
			continue
		}
		table := t.values[c.Referenced]
		for _, node := range c.Selector.SelectElements(pending.scope) {
			values, absent, err := c.FieldValues(node)
			if err != nil {
				violations = append(violations, Violation{
					Element: node,
					Code:    "cvc-identity-constraint.4.2.1",
					Message: fmt.Sprintf("Identity constraint error: %v", err),
				})
				continue
			}
			if absent {
				continue
			}
			if _, found := table[fieldKey(values)]; !found {
				violations = append(violations, Violation{
					Element: node,
					Code:    "cvc-identity-constraint.4.3",
					Message: fmt.Sprintf("Keyref '%s' value '%s' does not match any %s '%s'",
						c.Name, strings.Join(values, ", "), c.Referenced.Kind, c.Refer),
				})
			}
		}
	}
	return violations
}

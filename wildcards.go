package xsd

import (
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// ProcessContentsMode defines how wildcard content should be processed
type ProcessContentsMode string

const (
	// StrictProcess requires the element/attribute to be validated against its declaration
	StrictProcess ProcessContentsMode = "strict"
	// LaxProcess validates if a declaration is found, otherwise allows it
	LaxProcess ProcessContentsMode = "lax"
	// SkipProcess allows the element/attribute without validation
	SkipProcess ProcessContentsMode = "skip"
)

// AnyElement represents an xs:any wildcard particle.
type AnyElement struct {
	Namespace       string
	ProcessContents ProcessContentsMode
	MinOcc          int
	MaxOcc          int // -1 for unbounded

	constraint *WildcardNamespaceConstraint
	targetNS   string
}

func (a *AnyElement) MinOccurs() int { return a.MinOcc }
func (a *AnyElement) MaxOccurs() int { return a.MaxOcc }

// Matches reports whether an element in namespace ns is admitted by the
// wildcard's namespace constraint.
func (a *AnyElement) Matches(ns string) bool {
	if a.constraint == nil {
		a.constraint = ParseNamespaceConstraint(a.Namespace)
	}
	return a.constraint.Matches(ns, a.targetNS)
}

// AnyAttribute represents an xs:anyAttribute wildcard.
type AnyAttribute struct {
	Namespace       string
	ProcessContents ProcessContentsMode

	constraint *WildcardNamespaceConstraint
	targetNS   string
}

// Matches reports whether an attribute in namespace ns is admitted.
func (a *AnyAttribute) Matches(ns string) bool {
	if a.constraint == nil {
		a.constraint = ParseNamespaceConstraint(a.Namespace)
	}
	return a.constraint.Matches(ns, a.targetNS)
}

// buildAnyElement builds an xs:any particle.
func (s *Schema) buildAnyElement(elem xmldom.Element) *AnyElement {
	any := &AnyElement{
		Namespace:       string(elem.GetAttribute("namespace")),
		ProcessContents: ProcessContentsMode(elem.GetAttribute("processContents")),
		MinOcc:          s.parseOccurs(elem, "minOccurs", 1),
		MaxOcc:          s.parseOccurs(elem, "maxOccurs", 1),
		targetNS:        s.TargetNamespace,
	}
	if any.ProcessContents == "" {
		any.ProcessContents = StrictProcess
	}
	return any
}

// buildAnyAttribute builds an xs:anyAttribute wildcard.
func (s *Schema) buildAnyAttribute(elem xmldom.Element) *AnyAttribute {
	any := &AnyAttribute{
		Namespace:       string(elem.GetAttribute("namespace")),
		ProcessContents: ProcessContentsMode(elem.GetAttribute("processContents")),
		targetNS:        s.TargetNamespace,
	}
	if any.ProcessContents == "" {
		any.ProcessContents = StrictProcess
	}
	return any
}

// WildcardNamespaceConstraint represents namespace constraints for wildcards
type WildcardNamespaceConstraint struct {
	Mode       string   // "##any", "##other", "##targetNamespace", "##local", or "list"
	Namespaces []string // Explicit list of allowed namespaces (when not using ##modes)
}

// ParseNamespaceConstraint parses a namespace attribute value into a constraint
func ParseNamespaceConstraint(value string) *WildcardNamespaceConstraint {
	if value == "" {
		value = "##any" // Default
	}

	constraint := &WildcardNamespaceConstraint{Mode: value}

	// Anything other than a lone special mode is a space-separated list,
	// whose items may still include ##targetNamespace and ##local.
	switch value {
	case "##any", "##other", "##targetNamespace", "##local":
	default:
		constraint.Namespaces = strings.Fields(value)
		constraint.Mode = "list"
	}

	return constraint
}

// Matches checks if a namespace matches this constraint
func (c *WildcardNamespaceConstraint) Matches(namespace, targetNamespace string) bool {
	switch c.Mode {
	case "##any":
		return true
	case "##other":
		// ##other admits neither the target namespace nor the absent one.
		return namespace != "" && namespace != targetNamespace
	case "##targetNamespace":
		return namespace == targetNamespace
	case "##local":
		return namespace == ""
	case "list":
		// Check explicit namespace list
		for _, ns := range c.Namespaces {
			if ns == namespace {
				return true
			}
			if ns == "##targetNamespace" && namespace == targetNamespace {
				return true
			}
			if ns == "##local" && namespace == "" {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// isNamespaceSubset reports whether every namespace admitted by derived is
// also admitted by base, relative to targetNamespace. Used by the attribute
// restriction legality check.
func isNamespaceSubset(derived, base *WildcardNamespaceConstraint, targetNamespace string) bool {
	switch base.Mode {
	case "##any":
		return true
	case "##other":
		switch derived.Mode {
		case "##other":
			return true
		case "list":
			for _, ns := range derived.Namespaces {
				if !base.Matches(ns, targetNamespace) {
					return false
				}
			}
			return true
		}
		return false
	case "##targetNamespace", "##local":
		if derived.Mode == base.Mode {
			return true
		}
		if derived.Mode == "list" && len(derived.Namespaces) == 1 {
			return base.Matches(derived.Namespaces[0], targetNamespace)
		}
		return false
	case "list":
		if derived.Mode != "list" {
			switch derived.Mode {
			case "##targetNamespace":
				return base.Matches(targetNamespace, targetNamespace)
			case "##local":
				return base.Matches("", targetNamespace)
			}
			return false
		}
		for _, ns := range derived.Namespaces {
			if !base.Matches(ns, targetNamespace) {
				return false
			}
		}
		return true
	}
	return false
}

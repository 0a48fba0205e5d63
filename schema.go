package xsd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// XSDNamespace is the XML Schema namespace
const XSDNamespace = "http://www.w3.org/2001/XMLSchema"

// XSINamespace is the XML Schema instance namespace
const XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"

// QName represents a qualified XML name
type QName struct {
	Namespace string
	Local     string
}

// String returns the string representation of a QName
func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return fmt.Sprintf("{%s}%s", q.Namespace, q.Local)
}

// IsZero reports whether the name is empty.
func (q QName) IsZero() bool { return q.Local == "" && q.Namespace == "" }

// Schema represents one XSD schema document registered in a Registry. All
// global declarations live in the registry, which may be shared by several
// schema documents (imports, includes); the Schema keeps the per-document
// state: target namespace, namespace prefixes and form defaults.
type Schema struct {
	TargetNamespace      string
	ElementFormDefault   bool // true when elementFormDefault="qualified"
	AttributeFormDefault bool

	Imports         []*Import
	Includes        []string
	ImportedSchemas map[string]*Schema

	registry   *Registry
	doc        xmldom.Document
	namespaces map[string]string // prefix -> namespace URI
	anonCount  int
}

// Import represents an xs:import
type Import struct {
	Namespace      string
	SchemaLocation string
}

// Registry returns the global registry this schema's declarations live in.
func (s *Schema) Registry() *Registry { return s.registry }

// LoadSchema loads, parses and builds an XSD schema from a file.
func LoadSchema(filename string) (*Schema, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	doc, err := xmldom.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse XML file: %w", err)
	}
	return Parse(doc)
}

// Parse stages and builds a schema document in strict mode.
func Parse(doc xmldom.Document) (*Schema, error) {
	return ParseWithMode(doc, ValidationStrict)
}

// ParseWithMode stages the document's global declarations into a fresh
// registry and builds them. In lax mode build errors accumulate on the
// registry instead of failing the parse.
func ParseWithMode(doc xmldom.Document, mode ValidationMode) (*Schema, error) {
	registry := NewRegistry(mode)
	schema, err := ParseInto(doc, registry)
	if err != nil {
		return nil, err
	}
	if err := schema.Build(); err != nil {
		return nil, err
	}
	return schema, nil
}

// ParseInto stages a schema document's globals into an existing registry
// without building, so several documents can share one component graph.
func ParseInto(doc xmldom.Document, registry *Registry) (*Schema, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	root := doc.DocumentElement()
	if root == nil {
		return nil, fmt.Errorf("no root element")
	}
	if string(root.NamespaceURI()) != XSDNamespace || string(root.LocalName()) != "schema" {
		return nil, fmt.Errorf("not an XSD schema document")
	}

	schema := &Schema{
		ImportedSchemas: make(map[string]*Schema),
		registry:        registry,
		doc:             doc,
		namespaces:      make(map[string]string),
	}
	schema.TargetNamespace = string(root.GetAttribute("targetNamespace"))
	schema.ElementFormDefault = string(root.GetAttribute("elementFormDefault")) == "qualified"
	schema.AttributeFormDefault = string(root.GetAttribute("attributeFormDefault")) == "qualified"

	attrs := root.Attributes()
	for i := uint(0); i < attrs.Length(); i++ {
		attr := attrs.Item(i)
		if attr == nil {
			continue
		}
		// The xmldom library reports xmlns:prefix with namespace "xmlns"
		// and xmlns without prefix with local name "xmlns".
		ns := string(attr.NamespaceURI())
		local := string(attr.LocalName())
		if local == "xmlns" {
			schema.namespaces[""] = string(attr.NodeValue())
		} else if ns == "xmlns" || ns == "http://www.w3.org/2000/xmlns/" {
			schema.namespaces[local] = string(attr.NodeValue())
		}
	}

	if err := schema.stageGlobals(root); err != nil {
		return nil, err
	}
	return schema, nil
}

// stageGlobals registers every top-level declaration without building it.
func (s *Schema) stageGlobals(root xmldom.Element) error {
	children := root.Children()
	for i := uint(0); i < children.Length(); i++ {
		child := children.Item(i)
		if child == nil || string(child.NamespaceURI()) != XSDNamespace {
			continue
		}

		switch string(child.LocalName()) {
		case "element":
			if err := s.stageNamed(KindElement, child, s.registry.Load); err != nil {
				return err
			}
		case "simpleType", "complexType":
			if err := s.stageNamed(KindType, child, s.registry.Load); err != nil {
				return err
			}
		case "group":
			if err := s.stageNamed(KindGroup, child, s.registry.Load); err != nil {
				return err
			}
		case "attribute":
			if err := s.stageNamed(KindAttribute, child, s.registry.Load); err != nil {
				return err
			}
		case "attributeGroup":
			if err := s.stageNamed(KindAttributeGroup, child, s.registry.Load); err != nil {
				return err
			}
		case "redefine":
			// The redefined base document loads like an include.
			if loc := string(child.GetAttribute("schemaLocation")); loc != "" {
				s.Includes = append(s.Includes, loc)
			}
			if err := s.stageRedefine(child); err != nil {
				return err
			}
		case "override":
			if loc := string(child.GetAttribute("schemaLocation")); loc != "" {
				s.Includes = append(s.Includes, loc)
			}
			s.stageOverride(child)
		case "import":
			s.Imports = append(s.Imports, &Import{
				Namespace:      string(child.GetAttribute("namespace")),
				SchemaLocation: string(child.GetAttribute("schemaLocation")),
			})
		case "include":
			if loc := string(child.GetAttribute("schemaLocation")); loc != "" {
				s.Includes = append(s.Includes, loc)
			}
		case "annotation", "notation":
			// Not part of the component graph.
		}
	}
	return nil
}

type loadFunc func(kind ComponentKind, name QName, elem xmldom.Element, schema *Schema) error

func (s *Schema) stageNamed(kind ComponentKind, elem xmldom.Element, load loadFunc) error {
	name := string(elem.GetAttribute("name"))
	if name == "" {
		return s.registry.collector.Add(
			newParseError(elem, "global %s must have a name attribute", elem.LocalName()))
	}
	return load(kind, QName{Namespace: s.TargetNamespace, Local: name}, elem, s)
}

// stageRedefine appends redefinition layers for the redefine element's
// children. The redefined document itself is loaded by the resource layer;
// the registry only needs the layering order.
func (s *Schema) stageRedefine(elem xmldom.Element) error {
	children := elem.Children()
	for i := uint(0); i < children.Length(); i++ {
		child := children.Item(i)
		if child == nil || string(child.NamespaceURI()) != XSDNamespace {
			continue
		}
		var kind ComponentKind
		switch string(child.LocalName()) {
		case "simpleType", "complexType":
			kind = KindType
		case "group":
			kind = KindGroup
		case "attributeGroup":
			kind = KindAttributeGroup
		default:
			continue
		}
		if err := s.stageNamed(kind, child, s.registry.LoadRedefine); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) stageOverride(elem xmldom.Element) {
	children := elem.Children()
	for i := uint(0); i < children.Length(); i++ {
		child := children.Item(i)
		if child == nil || string(child.NamespaceURI()) != XSDNamespace {
			continue
		}
		var kind ComponentKind
		switch string(child.LocalName()) {
		case "simpleType", "complexType":
			kind = KindType
		case "group":
			kind = KindGroup
		case "attributeGroup":
			kind = KindAttributeGroup
		case "element":
			kind = KindElement
		case "attribute":
			kind = KindAttribute
		default:
			continue
		}
		name := string(child.GetAttribute("name"))
		if name == "" {
			continue
		}
		s.registry.LoadOverride(kind, QName{Namespace: s.TargetNamespace, Local: name}, child, s)
	}
}

// Build eagerly builds every staged global in the shared registry,
// surfacing all reachable parse errors. Idempotent when nothing new is
// staged.
func (s *Schema) Build() error {
	return s.registry.Build()
}

// Errors returns the parse diagnostics accumulated by a lax build.
func (s *Schema) Errors() []*ParseError {
	return s.registry.Errors()
}

// GetElement returns the built global element declaration for name.
func (s *Schema) GetElement(name QName) (*ElementDecl, error) {
	return s.registry.Element(name)
}

// GetType returns the built global type for name.
func (s *Schema) GetType(name QName) (Type, error) {
	return s.registry.Type(name)
}

// GetGroup returns the built global model group for name.
func (s *Schema) GetGroup(name QName) (*ModelGroup, error) {
	return s.registry.Group(name)
}

// GetAttributeGroup returns the built attribute group for name.
func (s *Schema) GetAttributeGroup(name QName) (*AttributeGroup, error) {
	return s.registry.AttributeGroup(name)
}

// parseQName resolves a possibly prefixed name against the schema
// document's namespace declarations. An unprefixed name resolves to the
// target namespace for global references.
func (s *Schema) parseQName(name string) QName {
	if name == "" {
		return QName{}
	}

	parts := strings.SplitN(name, ":", 2)
	if len(parts) == 2 {
		prefix, local := parts[0], parts[1]
		if ns, ok := s.namespaces[prefix]; ok {
			return QName{Namespace: ns, Local: local}
		}
		// Common shorthand prefixes even when not declared on the root.
		if prefix == "xs" || prefix == "xsd" {
			return QName{Namespace: XSDNamespace, Local: local}
		}
		return QName{Namespace: s.TargetNamespace, Local: local}
	}

	if ns, ok := s.namespaces[""]; ok && ns != s.TargetNamespace {
		// A default namespace declaration wins over the target namespace.
		return QName{Namespace: ns, Local: name}
	}
	return QName{Namespace: s.TargetNamespace, Local: name}
}

// parseOccurs parses minOccurs/maxOccurs attributes, -1 meaning unbounded.
func (s *Schema) parseOccurs(elem xmldom.Element, attr string, defaultValue int) int {
	value := string(elem.GetAttribute(xmldom.DOMString(attr)))
	if value == "" {
		return defaultValue
	}
	if value == "unbounded" {
		return -1
	}
	if n, err := strconv.Atoi(value); err == nil && n >= 0 {
		return n
	}
	return defaultValue
}

// checkOccurs validates the minOccurs <= maxOccurs invariant of a particle
// declaration.
func (s *Schema) checkOccurs(elem xmldom.Element, min, max int) error {
	if max >= 0 && min > max {
		return s.registry.collector.Add(
			newParseError(elem, "minOccurs %d greater than maxOccurs %d", min, max))
	}
	return nil
}

// anonName assigns a placeholder name to an anonymous component so the
// graph stays addressable for diagnostics.
func (s *Schema) anonName(kind string) QName {
	s.anonCount++
	return QName{Namespace: s.TargetNamespace, Local: fmt.Sprintf("_%s_%d", kind, s.anonCount)}
}

// xsdChildren returns the XSD-namespace element children of elem, skipping
// annotations.
func xsdChildren(elem xmldom.Element) []xmldom.Element {
	var out []xmldom.Element
	children := elem.Children()
	for i := uint(0); i < children.Length(); i++ {
		child := children.Item(i)
		if child == nil || string(child.NamespaceURI()) != XSDNamespace {
			continue
		}
		if string(child.LocalName()) == "annotation" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// getElementTextContent extracts text content from an element
func getElementTextContent(elem xmldom.Element) string {
	var content strings.Builder
	nodes := elem.ChildNodes()
	for i := uint(0); i < nodes.Length(); i++ {
		if node := nodes.Item(i); node != nil && node.NodeType() == 3 { // TEXT_NODE
			content.WriteString(string(node.NodeValue()))
		}
	}
	return content.String()
}

package xsd

import (
	"github.com/agentflare-ai/go-xmldom"
	"github.com/antchfx/xpath"
)

// DOM node type codes used by the navigator.
const (
	domElementNode = 1
	domTextNode    = 3
	domCommentNode = 8
)

// domNavigator adapts a DOM subtree to the xpath.NodeNavigator interface.
// The navigation space is rooted at a synthetic document node sitting just
// above the context element, so relative selector paths evaluate against
// the context element's children the way identity constraint scopes
// require.
type domNavigator struct {
	context xmldom.Element

	onRoot    bool
	cur       xmldom.Node
	attrOwner xmldom.Element
	attrIndex int
}

// newNavigator positions a navigator on the context element itself, so a
// relative selector step matches the element's children and an attribute
// field matches its attributes.
func newNavigator(context xmldom.Element) *domNavigator {
	return &domNavigator{context: context, cur: context, attrIndex: -1}
}

// currentElement returns the element the navigator points at, nil when
// positioned on the root, a text node or an attribute.
func (n *domNavigator) currentElement() xmldom.Element {
	if n.onRoot || n.attrIndex >= 0 {
		return nil
	}
	if elem, ok := n.cur.(xmldom.Element); ok {
		return elem
	}
	return nil
}

func (n *domNavigator) NodeType() xpath.NodeType {
	if n.onRoot {
		return xpath.RootNode
	}
	if n.attrIndex >= 0 {
		return xpath.AttributeNode
	}
	switch n.cur.NodeType() {
	case domElementNode:
		return xpath.ElementNode
	case domCommentNode:
		return xpath.CommentNode
	default:
		return xpath.TextNode
	}
}

func (n *domNavigator) LocalName() string {
	if n.onRoot {
		return ""
	}
	if n.attrIndex >= 0 {
		attrs := n.attrOwner.Attributes()
		if attr := attrs.Item(uint(n.attrIndex)); attr != nil {
			return string(attr.LocalName())
		}
		return ""
	}
	return string(n.cur.LocalName())
}

func (n *domNavigator) Prefix() string { return "" }

func (n *domNavigator) Value() string {
	if n.onRoot {
		return string(n.context.TextContent())
	}
	if n.attrIndex >= 0 {
		attrs := n.attrOwner.Attributes()
		if attr := attrs.Item(uint(n.attrIndex)); attr != nil {
			return string(attr.NodeValue())
		}
		return ""
	}
	if elem, ok := n.cur.(xmldom.Element); ok {
		return string(elem.TextContent())
	}
	return string(n.cur.NodeValue())
}

func (n *domNavigator) Copy() xpath.NodeNavigator {
	clone := *n
	return &clone
}

func (n *domNavigator) MoveToRoot() {
	n.onRoot = true
	n.cur = n.context
	n.attrOwner = nil
	n.attrIndex = -1
}

func (n *domNavigator) MoveToParent() bool {
	if n.attrIndex >= 0 {
		n.cur = n.attrOwner
		n.attrOwner = nil
		n.attrIndex = -1
		return true
	}
	if n.onRoot {
		return false
	}
	if n.cur == xmldom.Node(n.context) {
		n.onRoot = true
		return true
	}
	parent := n.cur.ParentNode()
	if parent == nil {
		return false
	}
	n.cur = parent
	return true
}

func (n *domNavigator) MoveToNextAttribute() bool {
	var owner xmldom.Element
	if n.attrIndex >= 0 {
		owner = n.attrOwner
	} else if elem := n.currentElement(); elem != nil {
		owner = elem
	} else {
		return false
	}
	attrs := owner.Attributes()
	next := n.attrIndex + 1
	for uint(next) < attrs.Length() {
		attr := attrs.Item(uint(next))
		if attr == nil {
			next++
			continue
		}
		ns := string(attr.NamespaceURI())
		if ns == "xmlns" || ns == "http://www.w3.org/2000/xmlns/" ||
			string(attr.LocalName()) == "xmlns" {
			next++
			continue
		}
		n.attrOwner = owner
		n.attrIndex = next
		n.cur = owner
		return true
	}
	return false
}

func (n *domNavigator) MoveToChild() bool {
	if n.attrIndex >= 0 {
		return false
	}
	if n.onRoot {
		n.onRoot = false
		n.cur = n.context
		return true
	}
	nodes := n.cur.ChildNodes()
	for i := uint(0); i < nodes.Length(); i++ {
		if child := nodes.Item(i); child != nil {
			n.cur = child
			return true
		}
	}
	return false
}

func (n *domNavigator) MoveToFirst() bool {
	if n.onRoot || n.attrIndex >= 0 {
		return false
	}
	if n.cur == xmldom.Node(n.context) {
		return true
	}
	parent := n.cur.ParentNode()
	if parent == nil {
		return false
	}
	nodes := parent.ChildNodes()
	for i := uint(0); i < nodes.Length(); i++ {
		if child := nodes.Item(i); child != nil {
			n.cur = child
			return true
		}
	}
	return false
}

func (n *domNavigator) MoveToNext() bool {
	return n.moveSibling(1)
}

func (n *domNavigator) MoveToPrevious() bool {
	return n.moveSibling(-1)
}

// moveSibling steps to the adjacent sibling in direction dir. The context
// element has no siblings in the navigation space.
func (n *domNavigator) moveSibling(dir int) bool {
	if n.onRoot || n.attrIndex >= 0 || n.cur == xmldom.Node(n.context) {
		return false
	}
	parent := n.cur.ParentNode()
	if parent == nil {
		return false
	}
	nodes := parent.ChildNodes()
	idx := -1
	for i := uint(0); i < nodes.Length(); i++ {
		if nodes.Item(i) == n.cur {
			idx = int(i)
			break
		}
	}
	if idx < 0 {
		return false
	}
	next := idx + dir
	for next >= 0 && uint(next) < nodes.Length() {
		if child := nodes.Item(uint(next)); child != nil {
			n.cur = child
			return true
		}
		next += dir
	}
	return false
}

func (n *domNavigator) MoveTo(other xpath.NodeNavigator) bool {
	o, ok := other.(*domNavigator)
	if !ok || o.context != n.context {
		return false
	}
	*n = *o
	return true
}

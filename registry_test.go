package xsd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardReferenceResolution(t *testing.T) {
	// itemType is declared after the element that references it.
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns:tns="http://test.com">
    <xs:element name="item" type="tns:itemType"/>
    <xs:complexType name="itemType">
      <xs:sequence>
        <xs:element name="label" type="xs:string"/>
      </xs:sequence>
    </xs:complexType>
  </xs:schema>`

	s := mustParseSchema(t, schema)
	decl, err := s.GetElement(QName{Namespace: "http://test.com", Local: "item"})
	require.NoError(t, err)
	ct, ok := decl.TypeOf().(*ComplexType)
	require.True(t, ok)
	assert.Equal(t, "itemType", ct.QName.Local)
}

func TestCircularBaseTypeReported(t *testing.T) {
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns:tns="http://test.com">
    <xs:simpleType name="a">
      <xs:restriction base="tns:b"/>
    </xs:simpleType>
    <xs:simpleType name="b">
      <xs:restriction base="tns:a"/>
    </xs:simpleType>
  </xs:schema>`

	doc := mustParseDoc(t, schema)
	_, err := Parse(doc)
	require.Error(t, err)
	var circ *CircularityError
	assert.ErrorAs(t, err, &circ)
}

func TestRecursiveContentModelIsLegal(t *testing.T) {
	// A tree node holding child trees references its own element; this is
	// legal recursion, not circularity.
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns:tns="http://test.com"
      elementFormDefault="qualified">
    <xs:element name="tree" type="tns:treeType"/>
    <xs:complexType name="treeType">
      <xs:sequence>
        <xs:element name="value" type="xs:string"/>
        <xs:element ref="tns:tree" minOccurs="0" maxOccurs="unbounded"/>
      </xs:sequence>
    </xs:complexType>
  </xs:schema>`

	s := mustParseSchema(t, schema)
	assert.Empty(t, NewValidator(s).Validate(mustParseDoc(t,
		`<tree xmlns="http://test.com">
		   <value>root</value>
		   <tree><value>leaf</value></tree>
		 </tree>`)))
}

func TestDuplicateGlobalReported(t *testing.T) {
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com">
    <xs:element name="x" type="xs:string"/>
    <xs:element name="x" type="xs:integer"/>
  </xs:schema>`

	registry := NewRegistry(ValidationLax)
	doc := mustParseDoc(t, schema)
	// Two documents sharing the registry trigger the cross-document check;
	// one document redeclaring a name records it in lax mode.
	_, err := ParseInto(doc, registry)
	require.NoError(t, err)
	assert.NotEmpty(t, registry.Errors())
}

func TestBuildIsIdempotent(t *testing.T) {
	s := mustParseSchema(t, personSchema)
	require.NoError(t, s.Build())
	require.NoError(t, s.Build())

	first, err := s.GetElement(QName{Namespace: "http://test.com", Local: "person"})
	require.NoError(t, err)
	second, err := s.GetElement(QName{Namespace: "http://test.com", Local: "person"})
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestAllGroupRejectsNestedCompositors(t *testing.T) {
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns:tns="http://test.com">
    <xs:complexType name="nested">
      <xs:all>
        <xs:sequence>
          <xs:element name="x" type="xs:string"/>
        </xs:sequence>
      </xs:all>
    </xs:complexType>
    <xs:group name="seqGroup">
      <xs:sequence>
        <xs:element name="y" type="xs:string"/>
      </xs:sequence>
    </xs:group>
    <xs:complexType name="viaRef">
      <xs:all>
        <xs:group ref="tns:seqGroup"/>
      </xs:all>
    </xs:complexType>
  </xs:schema>`

	registry := NewRegistry(ValidationLax)
	_, err := ParseInto(mustParseDoc(t, schema), registry)
	require.NoError(t, err)
	require.NoError(t, registry.Build())

	var messages []string
	for _, pe := range registry.Errors() {
		messages = append(messages, pe.Message)
	}
	joined := strings.Join(messages, "\n")
	assert.Contains(t, joined, "an all group may only contain element particles")
	assert.Contains(t, joined, "must itself be an all group")
}

func TestRebuildReportsErrorsOnce(t *testing.T) {
	// Circular derivation plus an inconsistent content model: a repeated
	// Build must not report either diagnostic a second time.
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns:tns="http://test.com">
    <xs:simpleType name="a">
      <xs:restriction base="tns:b"/>
    </xs:simpleType>
    <xs:simpleType name="b">
      <xs:restriction base="tns:a"/>
    </xs:simpleType>
    <xs:complexType name="clash">
      <xs:choice>
        <xs:element name="x" type="xs:string"/>
        <xs:element name="x" type="xs:integer"/>
      </xs:choice>
    </xs:complexType>
  </xs:schema>`

	registry := NewRegistry(ValidationLax)
	_, err := ParseInto(mustParseDoc(t, schema), registry)
	require.NoError(t, err)

	require.NoError(t, registry.Build())
	first := len(registry.Errors())
	require.NotZero(t, first)

	require.NoError(t, registry.Build())
	assert.Len(t, registry.Errors(), first)
}

func TestBuiltinTypeFallback(t *testing.T) {
	registry := NewRegistry(ValidationStrict)

	typ, err := registry.Type(QName{Namespace: XSDNamespace, Local: "integer"})
	require.NoError(t, err)
	st, ok := typ.(*SimpleType)
	require.True(t, ok)
	assert.NoError(t, st.ValidateValue("12"))
	assert.Error(t, st.ValidateValue("12.5"))

	_, err = registry.Type(QName{Namespace: XSDNamespace, Local: "noSuchType"})
	assert.Error(t, err)
}

func TestNotFoundError(t *testing.T) {
	registry := NewRegistry(ValidationStrict)
	_, err := registry.Element(QName{Namespace: "http://test.com", Local: "missing"})
	require.Error(t, err)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRegistryClear(t *testing.T) {
	s := mustParseSchema(t, personSchema)
	registry := s.Registry()
	registry.Clear()
	_, err := registry.Element(QName{Namespace: "http://test.com", Local: "person"})
	assert.Error(t, err)
}

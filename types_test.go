package xsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func builtin(t *testing.T, name string) *SimpleType {
	t.Helper()
	st, ok := builtinTypeGraph[name].(*SimpleType)
	require.True(t, ok, "builtin %s", name)
	return st
}

func TestBuiltinDerivationChains(t *testing.T) {
	tests := []struct {
		derived    string
		base       string
		derivation string
		want       bool
	}{
		{"int", "decimal", "", true},
		{"int", "integer", DerivationRestriction, true},
		{"unsignedByte", "nonNegativeInteger", "", true},
		{"ID", "string", "", true},
		{"token", "normalizedString", "", true},
		{"string", "decimal", "", false},
		{"integer", "int", "", false},
		{"boolean", "boolean", "", true},
	}
	for _, tt := range tests {
		got := builtin(t, tt.derived).IsDerived(builtinTypeGraph[tt.base], tt.derivation)
		assert.Equal(t, tt.want, got, "%s from %s", tt.derived, tt.base)
	}

	assert.True(t, builtin(t, "short").IsDerived(builtinTypeGraph["anySimpleType"], ""))
	assert.True(t, builtin(t, "short").IsDerived(builtinTypeGraph["anyType"], ""))
}

func TestUnionMembershipCountsAsDerivation(t *testing.T) {
	union := &SimpleType{
		QName:   QName{Namespace: "http://test.com", Local: "intOrToken"},
		Variety: VarietyUnion,
		MemberTypes: []*SimpleType{
			builtin(t, "integer"),
			builtin(t, "token"),
		},
	}

	assert.True(t, builtin(t, "int").IsDerived(union, ""))
	assert.True(t, builtin(t, "token").IsDerived(union, ""))
	assert.False(t, builtin(t, "date").IsDerived(union, ""))
}

func TestPrimitiveAncestor(t *testing.T) {
	assert.Equal(t, "decimal", builtin(t, "short").Primitive().QName.Local)
	assert.Equal(t, "string", builtin(t, "NCName").Primitive().QName.Local)
	assert.Equal(t, "boolean", builtin(t, "boolean").Primitive().QName.Local)
	assert.Nil(t, builtin(t, "IDREFS").Primitive())
}

func TestBuiltinValueSpaces(t *testing.T) {
	tests := []struct {
		typ   string
		value string
		ok    bool
	}{
		{"integer", "42", true},
		{"integer", "-7", true},
		{"integer", "4.2", false},
		{"integer", "abc", false},
		{"integer", "  42  ", true}, // collapse
		{"boolean", "true", true},
		{"boolean", "1", true},
		{"boolean", "yes", false},
		{"date", "2026-08-29", true},
		{"date", "29/08/2026", false},
		{"positiveInteger", "1", true},
		{"positiveInteger", "0", false},
		{"unsignedByte", "255", true},
		{"unsignedByte", "256", false},
		{"NCName", "valid-name", true},
		{"NCName", "ns:qualified", false},
		{"string", "anything at all", true},
	}
	for _, tt := range tests {
		err := builtin(t, tt.typ).ValidateValue(tt.value)
		if tt.ok {
			assert.NoError(t, err, "%s %q", tt.typ, tt.value)
		} else {
			assert.Error(t, err, "%s %q", tt.typ, tt.value)
		}
	}
}

func TestListAndUnionTypes(t *testing.T) {
	schema := mustParseSchema(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:simpleType name="intList">
    <xs:list itemType="xs:integer"/>
  </xs:simpleType>
  <xs:simpleType name="sizeOrNumber">
    <xs:union memberTypes="xs:integer">
      <xs:simpleType>
        <xs:restriction base="xs:token">
          <xs:enumeration value="small"/>
          <xs:enumeration value="large"/>
        </xs:restriction>
      </xs:simpleType>
    </xs:union>
  </xs:simpleType>
</xs:schema>`)

	list, err := schema.GetType(QName{Namespace: "http://test.com", Local: "intList"})
	require.NoError(t, err)
	lst := list.(*SimpleType)
	assert.Equal(t, VarietyList, lst.Variety)
	assert.NoError(t, lst.ValidateValue("1 2 3"))
	assert.NoError(t, lst.ValidateValue(""))
	assert.Error(t, lst.ValidateValue("1 two 3"))

	union, err := schema.GetType(QName{Namespace: "http://test.com", Local: "sizeOrNumber"})
	require.NoError(t, err)
	un := union.(*SimpleType)
	assert.Equal(t, VarietyUnion, un.Variety)
	assert.NoError(t, un.ValidateValue("42"))
	assert.NoError(t, un.ValidateValue("small"))
	assert.Error(t, un.ValidateValue("medium"))
}

func TestFacetRestriction(t *testing.T) {
	t.Run("narrowing is legal", func(t *testing.T) {
		schema := mustParseSchema(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:simpleType name="shortCode">
    <xs:restriction base="xs:string">
      <xs:maxLength value="10"/>
    </xs:restriction>
  </xs:simpleType>
  <xs:simpleType name="shorterCode">
    <xs:restriction base="t:shortCode">
      <xs:maxLength value="4"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`)

		typ, err := schema.GetType(QName{Namespace: "http://test.com", Local: "shorterCode"})
		require.NoError(t, err)
		st := typ.(*SimpleType)
		assert.NoError(t, st.ValidateValue("abcd"))
		assert.Error(t, st.ValidateValue("abcde"))
	})

	t.Run("widening maxLength is rejected", func(t *testing.T) {
		doc := mustParseDoc(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:simpleType name="shortCode">
    <xs:restriction base="xs:string">
      <xs:maxLength value="4"/>
    </xs:restriction>
  </xs:simpleType>
  <xs:simpleType name="longerCode">
    <xs:restriction base="t:shortCode">
      <xs:maxLength value="10"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`)
		_, err := Parse(doc)
		assert.Error(t, err)
	})

	t.Run("changing a fixed facet is rejected", func(t *testing.T) {
		doc := mustParseDoc(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:simpleType name="code">
    <xs:restriction base="xs:string">
      <xs:maxLength value="10" fixed="true"/>
    </xs:restriction>
  </xs:simpleType>
  <xs:simpleType name="narrowed">
    <xs:restriction base="t:code">
      <xs:maxLength value="5"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`)
		_, err := Parse(doc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fixed")
	})

	t.Run("restating a fixed facet value passes", func(t *testing.T) {
		mustParseSchema(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:simpleType name="code">
    <xs:restriction base="xs:string">
      <xs:maxLength value="10" fixed="true"/>
    </xs:restriction>
  </xs:simpleType>
  <xs:simpleType name="restated">
    <xs:restriction base="t:code">
      <xs:maxLength value="10"/>
      <xs:pattern value="[a-z]*"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`)
	})

	t.Run("facet not admitted by primitive is rejected", func(t *testing.T) {
		doc := mustParseDoc(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com">
  <xs:simpleType name="badFacet">
    <xs:restriction base="xs:integer">
      <xs:maxLength value="4"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`)
		_, err := Parse(doc)
		assert.Error(t, err)
	})
}

func TestPatternFacetAnchoring(t *testing.T) {
	schema := mustParseSchema(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com">
  <xs:simpleType name="digits">
    <xs:restriction base="xs:string">
      <xs:pattern value="[0-9]+"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`)

	typ, err := schema.GetType(QName{Namespace: "http://test.com", Local: "digits"})
	require.NoError(t, err)
	st := typ.(*SimpleType)
	assert.NoError(t, st.ValidateValue("0123"))
	assert.Error(t, st.ValidateValue("a123"))
	assert.Error(t, st.ValidateValue("123a"))
}

func TestEnumerationFacet(t *testing.T) {
	schema := mustParseSchema(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com">
  <xs:simpleType name="color">
    <xs:restriction base="xs:token">
      <xs:enumeration value="red"/>
      <xs:enumeration value="green"/>
      <xs:enumeration value="blue"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`)

	typ, err := schema.GetType(QName{Namespace: "http://test.com", Local: "color"})
	require.NoError(t, err)
	st := typ.(*SimpleType)
	assert.NoError(t, st.ValidateValue("green"))
	assert.NoError(t, st.ValidateValue(" green ")) // token collapses
	assert.Error(t, st.ValidateValue("yellow"))

	enum := st.FacetByName("enumeration")
	require.NotNil(t, enum)
	assert.ElementsMatch(t, []string{"red", "green", "blue"}, CombineEnumerations([]FacetValidator{enum}))
}

func TestNormalizeWhiteSpace(t *testing.T) {
	assert.Equal(t, "a\tb", NormalizeWhiteSpace("a\tb", "preserve"))
	assert.Equal(t, "a b", NormalizeWhiteSpace("a\tb", "replace"))
	assert.Equal(t, "a b", NormalizeWhiteSpace("  a \n\t b  ", "collapse"))
	assert.Equal(t, "", NormalizeWhiteSpace(" \n ", "collapse"))
}

func TestNumericRangeFacets(t *testing.T) {
	schema := mustParseSchema(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com">
  <xs:simpleType name="percent">
    <xs:restriction base="xs:integer">
      <xs:minInclusive value="0"/>
      <xs:maxInclusive value="100"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`)

	typ, err := schema.GetType(QName{Namespace: "http://test.com", Local: "percent"})
	require.NoError(t, err)
	st := typ.(*SimpleType)
	assert.NoError(t, st.ValidateValue("0"))
	assert.NoError(t, st.ValidateValue("100"))
	assert.Error(t, st.ValidateValue("-1"))
	assert.Error(t, st.ValidateValue("101"))
}

func TestComplexTypeDerivation(t *testing.T) {
	schema := mustParseSchema(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com"
           elementFormDefault="qualified">
  <xs:complexType name="base">
    <xs:sequence>
      <xs:element name="id" type="xs:string"/>
    </xs:sequence>
  </xs:complexType>
  <xs:complexType name="extended">
    <xs:complexContent>
      <xs:extension base="t:base">
        <xs:sequence>
          <xs:element name="note" type="xs:string"/>
        </xs:sequence>
      </xs:extension>
    </xs:complexContent>
  </xs:complexType>
</xs:schema>`)

	tns := "http://test.com"
	base, err := schema.GetType(QName{Namespace: tns, Local: "base"})
	require.NoError(t, err)
	ext, err := schema.GetType(QName{Namespace: tns, Local: "extended"})
	require.NoError(t, err)

	assert.True(t, ext.IsDerived(base, ""))
	assert.True(t, ext.IsDerived(base, DerivationExtension))
	assert.False(t, ext.IsDerived(base, DerivationRestriction))
	assert.False(t, base.IsDerived(ext, ""))

	// Extension appends the new particles after the base content.
	ct := ext.(*ComplexType)
	model := ct.ContentModel()
	require.NotNil(t, model)
	names := particleNames(flattenElements(model))
	assert.Equal(t, []string{"id", "note"}, names)
}

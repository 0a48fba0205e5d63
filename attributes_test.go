package xsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeRestrictionUseLoosening(t *testing.T) {
	doc := mustParseDoc(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:complexType name="base">
    <xs:attribute name="id" type="xs:string" use="required"/>
  </xs:complexType>
  <xs:complexType name="loosened">
    <xs:complexContent>
      <xs:restriction base="t:base">
        <xs:attribute name="id" type="xs:string" use="optional"/>
      </xs:restriction>
    </xs:complexContent>
  </xs:complexType>
</xs:schema>`)
	_, err := Parse(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestAttributeRestrictionFixedValue(t *testing.T) {
	t.Run("changed fixed value is rejected", func(t *testing.T) {
		doc := mustParseDoc(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:complexType name="base">
    <xs:attribute name="version" type="xs:string" fixed="1"/>
  </xs:complexType>
  <xs:complexType name="changed">
    <xs:complexContent>
      <xs:restriction base="t:base">
        <xs:attribute name="version" type="xs:string" fixed="2"/>
      </xs:restriction>
    </xs:complexContent>
  </xs:complexType>
</xs:schema>`)
		_, err := Parse(doc)
		assert.Error(t, err)
	})

	t.Run("kept fixed value passes", func(t *testing.T) {
		mustParseSchema(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:complexType name="base">
    <xs:attribute name="version" type="xs:string" fixed="1"/>
  </xs:complexType>
  <xs:complexType name="kept">
    <xs:complexContent>
      <xs:restriction base="t:base">
        <xs:attribute name="version" type="xs:string" fixed="1"/>
      </xs:restriction>
    </xs:complexContent>
  </xs:complexType>
</xs:schema>`)
	})
}

func TestAttributeRestrictionTypeDerivation(t *testing.T) {
	t.Run("unrelated redeclared type is rejected", func(t *testing.T) {
		doc := mustParseDoc(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:complexType name="base">
    <xs:attribute name="count" type="xs:int"/>
  </xs:complexType>
  <xs:complexType name="widened">
    <xs:complexContent>
      <xs:restriction base="t:base">
        <xs:attribute name="count" type="xs:string"/>
      </xs:restriction>
    </xs:complexContent>
  </xs:complexType>
</xs:schema>`)
		_, err := Parse(doc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not derived from the base type")
	})

	t.Run("narrowed redeclared type passes", func(t *testing.T) {
		mustParseSchema(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:complexType name="base">
    <xs:attribute name="count" type="xs:integer"/>
  </xs:complexType>
  <xs:complexType name="narrowed">
    <xs:complexContent>
      <xs:restriction base="t:base">
        <xs:attribute name="count" type="xs:short"/>
      </xs:restriction>
    </xs:complexContent>
  </xs:complexType>
</xs:schema>`)
	})
}

func TestAttributeRestrictionNewAttribute(t *testing.T) {
	t.Run("attribute absent from base is rejected", func(t *testing.T) {
		doc := mustParseDoc(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:complexType name="base">
    <xs:attribute name="id" type="xs:string"/>
  </xs:complexType>
  <xs:complexType name="widened">
    <xs:complexContent>
      <xs:restriction base="t:base">
        <xs:attribute name="extra" type="xs:string"/>
      </xs:restriction>
    </xs:complexContent>
  </xs:complexType>
</xs:schema>`)
		_, err := Parse(doc)
		assert.Error(t, err)
	})

	t.Run("base wildcard covers the new attribute", func(t *testing.T) {
		mustParseSchema(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:complexType name="base">
    <xs:attribute name="id" type="xs:string"/>
    <xs:anyAttribute namespace="##any" processContents="lax"/>
  </xs:complexType>
  <xs:complexType name="covered">
    <xs:complexContent>
      <xs:restriction base="t:base">
        <xs:attribute name="extra" type="xs:string"/>
      </xs:restriction>
    </xs:complexContent>
  </xs:complexType>
</xs:schema>`)
	})
}

func TestAttributeExtensionCollision(t *testing.T) {
	doc := mustParseDoc(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:complexType name="base">
    <xs:attribute name="id" type="xs:string"/>
  </xs:complexType>
  <xs:complexType name="colliding">
    <xs:complexContent>
      <xs:extension base="t:base">
        <xs:attribute name="id" type="xs:string"/>
      </xs:extension>
    </xs:complexContent>
  </xs:complexType>
</xs:schema>`)
	_, err := Parse(doc)
	assert.Error(t, err)
}

func TestAttributeGroupRef(t *testing.T) {
	schema := mustParseSchema(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:attributeGroup name="common">
    <xs:attribute name="id" type="xs:ID" use="required"/>
    <xs:attribute name="lang" type="xs:language"/>
  </xs:attributeGroup>
  <xs:complexType name="entry">
    <xs:attributeGroup ref="t:common"/>
    <xs:attribute name="note" type="xs:string"/>
  </xs:complexType>
</xs:schema>`)

	typ, err := schema.GetType(QName{Namespace: "http://test.com", Local: "entry"})
	require.NoError(t, err)
	ct := typ.(*ComplexType)

	// Referenced group entries precede locally declared ones.
	var names []string
	for _, n := range ct.Attributes.Names {
		names = append(names, n.Local)
	}
	assert.Equal(t, []string{"id", "lang", "note"}, names)
	assert.Equal(t, UseRequired, ct.Attributes.Get(QName{Local: "id"}).Use)
}

func TestAttributeGroupDuplicateName(t *testing.T) {
	doc := mustParseDoc(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com">
  <xs:attributeGroup name="common">
    <xs:attribute name="id" type="xs:string"/>
  </xs:attributeGroup>
  <xs:complexType name="entry">
    <xs:attributeGroup ref="t:common"/>
    <xs:attribute name="id" type="xs:string"/>
  </xs:complexType>
</xs:schema>`)
	_, err := Parse(doc)
	assert.Error(t, err)
}

func TestMissingRequiredAttributesBatched(t *testing.T) {
	schema := mustParseSchema(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://test.com" xmlns:t="http://test.com"
           elementFormDefault="qualified">
  <xs:element name="item">
    <xs:complexType>
      <xs:attribute name="id" type="xs:string" use="required"/>
      <xs:attribute name="kind" type="xs:string" use="required"/>
    </xs:complexType>
  </xs:element>
</xs:schema>`)

	doc := mustParseDoc(t, `<item xmlns="http://test.com"/>`)

	violations := NewValidator(schema).Validate(doc)
	var missing []Violation
	for _, v := range violations {
		if v.Code == "cvc-complex-type.4" {
			missing = append(missing, v)
		}
	}
	require.Len(t, missing, 1)
	assert.Contains(t, missing[0].Message, "id")
	assert.Contains(t, missing[0].Message, "kind")

	skipped := NewValidatorWithMode(schema, ValidationSkip).Validate(doc)
	assert.Empty(t, skipped)
}

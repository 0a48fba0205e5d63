package xsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespaceConstraintMatching(t *testing.T) {
	tests := []struct {
		constraint string
		targetNS   string
		ns         string
		want       bool
	}{
		{"##any", "http://t", "http://x", true},
		{"##any", "http://t", "", true},
		{"##other", "http://t", "http://x", true},
		{"##other", "http://t", "http://t", false},
		{"##other", "http://t", "", false},
		{"##targetNamespace", "http://t", "http://t", true},
		{"##targetNamespace", "http://t", "http://x", false},
		{"##local", "http://t", "", true},
		{"##local", "http://t", "http://t", false},
		{"http://a http://b", "http://t", "http://a", true},
		{"http://a http://b", "http://t", "http://c", false},
		{"##targetNamespace http://a", "http://t", "http://t", true},
		{"##local http://a", "http://t", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.constraint+"/"+tt.ns, func(t *testing.T) {
			c := ParseNamespaceConstraint(tt.constraint)
			assert.Equal(t, tt.want, c.Matches(tt.ns, tt.targetNS))
		})
	}
}

func TestNamespaceSubset(t *testing.T) {
	tests := []struct {
		name    string
		derived string
		base    string
		want    bool
	}{
		{"any within any", "##any", "##any", true},
		{"any not within other", "##any", "##other", false},
		{"other within any", "##other", "##any", true},
		{"list within any", "http://a http://b", "##any", true},
		{"list within list", "http://a", "http://a http://b", true},
		{"list not within smaller list", "http://a http://b", "http://a", false},
		{"target within list containing it", "##targetNamespace", "http://t", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			derived := ParseNamespaceConstraint(tt.derived)
			base := ParseNamespaceConstraint(tt.base)
			assert.Equal(t, tt.want, isNamespaceSubset(derived, base, "http://t"))
		})
	}
}

const wildcardSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
    targetNamespace="http://test.com" xmlns="http://test.com"
    elementFormDefault="qualified">
  <xs:element name="known" type="xs:string"/>
  <xs:element name="envelope">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="header" type="xs:string"/>
        <xs:any namespace="##any" processContents="lax" minOccurs="0" maxOccurs="unbounded"/>
      </xs:sequence>
      <xs:anyAttribute namespace="##other" processContents="skip"/>
    </xs:complexType>
  </xs:element>
  <xs:element name="strictEnvelope">
    <xs:complexType>
      <xs:sequence>
        <xs:any namespace="##any" processContents="strict"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`

func TestElementWildcard(t *testing.T) {
	t.Run("lax accepts undeclared elements", func(t *testing.T) {
		assert.Empty(t, validate(t, wildcardSchema,
			`<envelope xmlns="http://test.com"><header>h</header><unknown>x</unknown></envelope>`))
	})
	t.Run("lax validates declared elements", func(t *testing.T) {
		violations := validate(t, wildcardSchema,
			`<envelope xmlns="http://test.com"><header>h</header><known><bad/></known></envelope>`)
		assert.NotEmpty(t, violations, "known element has a simple type, children are invalid")
	})
	t.Run("strict rejects undeclared elements", func(t *testing.T) {
		violations := validate(t, wildcardSchema,
			`<strictEnvelope xmlns="http://test.com"><unknown>x</unknown></strictEnvelope>`)
		require.NotEmpty(t, violations)
		assert.Equal(t, "cvc-assess-elt.1.1.1", violations[0].Code)
	})
	t.Run("strict accepts declared elements", func(t *testing.T) {
		assert.Empty(t, validate(t, wildcardSchema,
			`<strictEnvelope xmlns="http://test.com"><known>fine</known></strictEnvelope>`))
	})
}

func TestAttributeWildcard(t *testing.T) {
	t.Run("other-namespace attribute allowed", func(t *testing.T) {
		assert.Empty(t, validate(t, wildcardSchema,
			`<envelope xmlns="http://test.com" xmlns:x="http://x.com" x:extra="1"><header>h</header></envelope>`))
	})
	t.Run("local attribute outside the wildcard", func(t *testing.T) {
		violations := validate(t, wildcardSchema,
			`<envelope xmlns="http://test.com" extra="1"><header>h</header></envelope>`)
		require.NotEmpty(t, violations)
		assert.Equal(t, "cvc-complex-type.3.2.2", violations[0].Code)
	})
}

func TestBuildAnyElementDefaults(t *testing.T) {
	schema := mustParseSchema(t, wildcardSchema)
	decl, err := schema.GetElement(QName{Namespace: "http://test.com", Local: "strictEnvelope"})
	require.NoError(t, err)

	ct, ok := decl.TypeOf().(*ComplexType)
	require.True(t, ok)
	group := ct.ContentModel()
	require.NotNil(t, group)
	require.Len(t, group.Particles, 1)

	any, ok := group.Particles[0].(*AnyElement)
	require.True(t, ok)
	assert.Equal(t, StrictProcess, any.ProcessContents)
	assert.Equal(t, 1, any.MinOccurs())
	assert.Equal(t, 1, any.MaxOccurs())
	assert.True(t, any.Matches("http://anything"))
}

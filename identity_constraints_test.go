package xsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const librarySchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
    targetNamespace="http://test.com" xmlns="http://test.com"
    elementFormDefault="qualified">
  <xs:element name="library">
    <xs:complexType>
      <xs:choice minOccurs="0" maxOccurs="unbounded">
        <xs:element name="book">
          <xs:complexType>
            <xs:attribute name="isbn" type="xs:string"/>
            <xs:attribute name="title" type="xs:string"/>
          </xs:complexType>
        </xs:element>
        <xs:element name="loan">
          <xs:complexType>
            <xs:attribute name="book" type="xs:string"/>
          </xs:complexType>
        </xs:element>
      </xs:choice>
    </xs:complexType>
    <xs:key name="bookKey">
      <xs:selector xpath="book"/>
      <xs:field xpath="@isbn"/>
    </xs:key>
    <xs:keyref name="loanRef" refer="bookKey">
      <xs:selector xpath="loan"/>
      <xs:field xpath="@book"/>
    </xs:keyref>
    <xs:unique name="titleUnique">
      <xs:selector xpath="book"/>
      <xs:field xpath="@title"/>
    </xs:unique>
  </xs:element>
</xs:schema>`

func TestKeyUniqueness(t *testing.T) {
	t.Run("distinct keys", func(t *testing.T) {
		assert.Empty(t, validate(t, librarySchema,
			`<library xmlns="http://test.com">
			   <book isbn="1" title="A"/>
			   <book isbn="2" title="B"/>
			 </library>`))
	})
	t.Run("duplicate key", func(t *testing.T) {
		violations := validate(t, librarySchema,
			`<library xmlns="http://test.com">
			   <book isbn="1" title="A"/>
			   <book isbn="1" title="B"/>
			 </library>`)
		require.NotEmpty(t, violations)
		assert.True(t, hasCode(violations, "cvc-identity-constraint.4.1"),
			"got %+v", violations)
	})
	t.Run("key field must be present", func(t *testing.T) {
		violations := validate(t, librarySchema,
			`<library xmlns="http://test.com">
			   <book title="A"/>
			 </library>`)
		assert.NotEmpty(t, violations)
	})
}

func TestUniqueConstraint(t *testing.T) {
	t.Run("absent field tuples are skipped", func(t *testing.T) {
		assert.Empty(t, validate(t, librarySchema,
			`<library xmlns="http://test.com">
			   <book isbn="1"/>
			   <book isbn="2"/>
			 </library>`))
	})
	t.Run("duplicate unique value", func(t *testing.T) {
		violations := validate(t, librarySchema,
			`<library xmlns="http://test.com">
			   <book isbn="1" title="Same"/>
			   <book isbn="2" title="Same"/>
			 </library>`)
		require.NotEmpty(t, violations)
		assert.True(t, hasCode(violations, "cvc-identity-constraint.4.1"),
			"got %+v", violations)
	})
}

func TestKeyrefResolution(t *testing.T) {
	t.Run("keyref resolves", func(t *testing.T) {
		assert.Empty(t, validate(t, librarySchema,
			`<library xmlns="http://test.com">
			   <book isbn="1" title="A"/>
			   <loan book="1"/>
			 </library>`))
	})
	t.Run("keyref to missing key", func(t *testing.T) {
		violations := validate(t, librarySchema,
			`<library xmlns="http://test.com">
			   <book isbn="1" title="A"/>
			   <loan book="9"/>
			 </library>`)
		require.NotEmpty(t, violations)
		assert.True(t, hasCode(violations, "cvc-identity-constraint.4.3"),
			"got %+v", violations)
	})
	t.Run("forward reference within document", func(t *testing.T) {
		// Keyrefs resolve after the whole tree is collected, so the loan
		// may precede the book it refers to.
		assert.Empty(t, validate(t, librarySchema,
			`<library xmlns="http://test.com">
			   <loan book="7"/>
			   <book isbn="7" title="Z"/>
			 </library>`))
	})
}

func TestConstraintRegistration(t *testing.T) {
	schema := mustParseSchema(t, librarySchema)

	decl, err := schema.GetElement(QName{Namespace: "http://test.com", Local: "library"})
	require.NoError(t, err)
	constraints := decl.IdentityConstraints()
	require.Len(t, constraints, 3)

	kinds := make(map[IdentityConstraintKind]int)
	for _, c := range constraints {
		kinds[c.Kind]++
		assert.NotNil(t, c.Selector)
		assert.NotEmpty(t, c.Fields)
	}
	assert.Equal(t, 1, kinds[KeyConstraint])
	assert.Equal(t, 1, kinds[KeyRefConstraint])
	assert.Equal(t, 1, kinds[UniqueConstraint])

	keyref := schema.Registry().Identities[QName{Namespace: "http://test.com", Local: "loanRef"}]
	require.NotNil(t, keyref)
	assert.NotNil(t, keyref.Referenced, "keyref binds to its key during build")
	assert.Equal(t, QName{Namespace: "http://test.com", Local: "bookKey"}, keyref.Refer)
}

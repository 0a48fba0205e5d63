package xsd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lint(t *testing.T, src string) []*ParseError {
	t.Helper()
	return NewSchemaLinter().Lint(mustParseDoc(t, src))
}

func hasProblem(problems []*ParseError, substr string) bool {
	for _, p := range problems {
		if strings.Contains(p.Message, substr) {
			return true
		}
	}
	return false
}

func TestLintCleanSchema(t *testing.T) {
	problems := lint(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="library">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="book" minOccurs="0" maxOccurs="unbounded">
          <xs:complexType>
            <xs:sequence>
              <xs:element name="title" type="xs:string"/>
            </xs:sequence>
            <xs:attribute name="isbn" type="xs:string" use="required"/>
          </xs:complexType>
        </xs:element>
      </xs:sequence>
    </xs:complexType>
    <xs:key name="bookKey">
      <xs:selector xpath="book"/>
      <xs:field xpath="@isbn"/>
    </xs:key>
  </xs:element>
  <xs:simpleType name="isbn">
    <xs:restriction base="xs:string">
      <xs:pattern value="[0-9-]+"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`)
	assert.Empty(t, problems)
}

func TestLintStructuralProblems(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "element with name and ref",
			body: `<xs:element name="a" ref="b"/>`,
			want: "cannot carry both name and ref",
		},
		{
			name: "global element without name",
			body: `<xs:element type="xs:string"/>`,
			want: "global element needs a name",
		},
		{
			name: "min greater than max",
			body: `<xs:complexType name="t">
  <xs:sequence>
    <xs:element name="a" type="xs:string" minOccurs="3" maxOccurs="2"/>
  </xs:sequence>
</xs:complexType>`,
			want: "minOccurs 3 greater than maxOccurs 2",
		},
		{
			name: "malformed maxOccurs",
			body: `<xs:complexType name="t">
  <xs:sequence maxOccurs="lots"/>
</xs:complexType>`,
			want: "not a non-negative integer",
		},
		{
			name: "simpleType without derivation",
			body: `<xs:simpleType name="t"/>`,
			want: "exactly one of restriction, list or union",
		},
		{
			name: "union without members",
			body: `<xs:simpleType name="t"><xs:union/></xs:simpleType>`,
			want: "memberTypes attribute or inline simpleTypes",
		},
		{
			name: "keyref without refer",
			body: `<xs:element name="root" type="xs:string">
  <xs:keyref name="r">
    <xs:selector xpath="x"/>
    <xs:field xpath="@y"/>
  </xs:keyref>
</xs:element>`,
			want: "keyref needs a refer attribute",
		},
		{
			name: "overbounded all group member",
			body: `<xs:complexType name="t">
  <xs:all>
    <xs:element name="a" type="xs:string" maxOccurs="5"/>
  </xs:all>
</xs:complexType>`,
			want: "limited to maxOccurs 0 or 1",
		},
		{
			name: "compositor nested inside all group",
			body: `<xs:complexType name="t">
  <xs:all>
    <xs:sequence>
      <xs:element name="a" type="xs:string"/>
    </xs:sequence>
  </xs:all>
</xs:complexType>`,
			want: "may only contain element particles",
		},
		{
			name: "invalid attribute use",
			body: `<xs:complexType name="t">
  <xs:attribute name="a" type="xs:string" use="mandatory"/>
</xs:complexType>`,
			want: `use "mandatory" must be one of`,
		},
		{
			name: "attribute with default and fixed",
			body: `<xs:complexType name="t">
  <xs:attribute name="a" type="xs:string" default="x" fixed="y"/>
</xs:complexType>`,
			want: "cannot carry both default and fixed",
		},
		{
			name: "extension without base",
			body: `<xs:complexType name="t">
  <xs:simpleContent><xs:extension/></xs:simpleContent>
</xs:complexType>`,
			want: "extension needs a base attribute",
		},
		{
			name: "unknown schema element",
			body: `<xs:bogus/>`,
			want: "unknown schema element xs:bogus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := lint(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">`+tt.body+`</xs:schema>`)
			require.NotEmpty(t, problems)
			assert.True(t, hasProblem(problems, tt.want),
				"want a problem containing %q, got %v", tt.want, problems)
		})
	}
}

func TestLintDuplicateIDs(t *testing.T) {
	problems := lint(t, `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element id="e1" name="a" type="xs:string"/>
  <xs:element id="e1" name="b" type="xs:string"/>
</xs:schema>`)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Message, `duplicate id "e1"`)
}

func TestLintRejectsNonSchemaRoot(t *testing.T) {
	problems := lint(t, `<root/>`)
	require.NotEmpty(t, problems)
	assert.Contains(t, problems[0].Message, "must be an xs:schema element")
}

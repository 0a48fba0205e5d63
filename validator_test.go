package xsd

import (
	"strings"
	"testing"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseSchema(t *testing.T, src string) *Schema {
	t.Helper()
	doc, err := xmldom.Decode(strings.NewReader(src))
	require.NoError(t, err, "schema XML must parse")
	schema, err := Parse(doc)
	require.NoError(t, err, "schema must build")
	return schema
}

func mustParseDoc(t *testing.T, src string) xmldom.Document {
	t.Helper()
	doc, err := xmldom.Decode(strings.NewReader(src))
	require.NoError(t, err, "instance XML must parse")
	return doc
}

func validate(t *testing.T, xsdSrc, xmlSrc string) []Violation {
	t.Helper()
	schema := mustParseSchema(t, xsdSrc)
	return NewValidator(schema).Validate(mustParseDoc(t, xmlSrc))
}

func hasCode(violations []Violation, code string) bool {
	for _, v := range violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

const personSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
    targetNamespace="http://test.com" xmlns="http://test.com"
    elementFormDefault="qualified">
  <xs:element name="person">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="name" type="xs:string"/>
        <xs:element name="age" type="xs:integer" minOccurs="0"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`

func TestSequenceValidation(t *testing.T) {
	tests := []struct {
		name      string
		xml       string
		wantError bool
		errorCode string
	}{
		{
			name:      "valid full sequence",
			xml:       `<person xmlns="http://test.com"><name>Ada</name><age>36</age></person>`,
			wantError: false,
		},
		{
			name:      "valid without optional element",
			xml:       `<person xmlns="http://test.com"><name>Ada</name></person>`,
			wantError: false,
		},
		{
			name:      "missing required element",
			xml:       `<person xmlns="http://test.com"><age>36</age></person>`,
			wantError: true,
			errorCode: "cvc-complex-type.2.4.b",
		},
		{
			name:      "wrong order",
			xml:       `<person xmlns="http://test.com"><age>36</age><name>Ada</name></person>`,
			wantError: true,
		},
		{
			name:      "unexpected element",
			xml:       `<person xmlns="http://test.com"><name>Ada</name><email>a@b.c</email></person>`,
			wantError: true,
			errorCode: "cvc-complex-type.2.4.a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := validate(t, personSchema, tt.xml)
			if tt.wantError {
				require.NotEmpty(t, violations, "expected validation error")
				if tt.errorCode != "" {
					assert.True(t, hasCode(violations, tt.errorCode),
						"want code %s, got %+v", tt.errorCode, violations)
				}
			} else {
				assert.Empty(t, violations)
			}
		})
	}
}

func TestMissingRequiredElementReportedOnce(t *testing.T) {
	violations := validate(t, personSchema,
		`<person xmlns="http://test.com"><age>36</age></person>`)
	require.Len(t, violations, 1)
	assert.Equal(t, "cvc-complex-type.2.4.b", violations[0].Code)
	assert.Contains(t, violations[0].Message, "name")
}

func TestChoiceValidation(t *testing.T) {
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns="http://test.com"
      elementFormDefault="qualified">
    <xs:element name="contact">
      <xs:complexType>
        <xs:choice>
          <xs:element name="email" type="xs:string"/>
          <xs:element name="phone" type="xs:string"/>
        </xs:choice>
      </xs:complexType>
    </xs:element>
  </xs:schema>`

	tests := []struct {
		name      string
		xml       string
		wantError bool
	}{
		{"first branch", `<contact xmlns="http://test.com"><email>a@b.c</email></contact>`, false},
		{"second branch", `<contact xmlns="http://test.com"><phone>555</phone></contact>`, false},
		{"both branches", `<contact xmlns="http://test.com"><email>a@b.c</email><phone>555</phone></contact>`, true},
		{"empty", `<contact xmlns="http://test.com"/>`, true},
		{"unknown branch", `<contact xmlns="http://test.com"><fax>555</fax></contact>`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := validate(t, schema, tt.xml)
			if tt.wantError {
				assert.NotEmpty(t, violations)
			} else {
				assert.Empty(t, violations, "violations: %+v", violations)
			}
		})
	}
}

func TestOccurrenceValidation(t *testing.T) {
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns="http://test.com"
      elementFormDefault="qualified">
    <xs:element name="lineup">
      <xs:complexType>
        <xs:sequence>
          <xs:element name="player" type="xs:string" minOccurs="2" maxOccurs="4"/>
          <xs:element name="sub" type="xs:string" minOccurs="0" maxOccurs="unbounded"/>
        </xs:sequence>
      </xs:complexType>
    </xs:element>
  </xs:schema>`

	players := func(n int) string {
		var sb strings.Builder
		sb.WriteString(`<lineup xmlns="http://test.com">`)
		for i := 0; i < n; i++ {
			sb.WriteString("<player>p</player>")
		}
		sb.WriteString("</lineup>")
		return sb.String()
	}

	tests := []struct {
		name      string
		xml       string
		wantError bool
	}{
		{"minimum occurrences", players(2), false},
		{"maximum occurrences", players(4), false},
		{"too few", players(1), true},
		{"too many", players(5), true},
		{"unbounded tail", `<lineup xmlns="http://test.com"><player>a</player><player>b</player><sub>c</sub><sub>d</sub><sub>e</sub></lineup>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := validate(t, schema, tt.xml)
			if tt.wantError {
				assert.NotEmpty(t, violations)
			} else {
				assert.Empty(t, violations, "violations: %+v", violations)
			}
		})
	}
}

func TestAllGroupValidation(t *testing.T) {
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns="http://test.com"
      elementFormDefault="qualified">
    <xs:element name="config">
      <xs:complexType>
        <xs:all>
          <xs:element name="host" type="xs:string"/>
          <xs:element name="port" type="xs:integer"/>
          <xs:element name="debug" type="xs:boolean" minOccurs="0"/>
        </xs:all>
      </xs:complexType>
    </xs:element>
  </xs:schema>`

	tests := []struct {
		name      string
		xml       string
		wantError bool
	}{
		{"declaration order", `<config xmlns="http://test.com"><host>h</host><port>1</port><debug>true</debug></config>`, false},
		{"any order", `<config xmlns="http://test.com"><port>1</port><debug>true</debug><host>h</host></config>`, false},
		{"optional omitted", `<config xmlns="http://test.com"><port>1</port><host>h</host></config>`, false},
		{"required missing", `<config xmlns="http://test.com"><host>h</host></config>`, true},
		{"duplicate member", `<config xmlns="http://test.com"><host>h</host><host>h</host><port>1</port></config>`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := validate(t, schema, tt.xml)
			if tt.wantError {
				assert.NotEmpty(t, violations)
			} else {
				assert.Empty(t, violations, "violations: %+v", violations)
			}
		})
	}
}

func TestSimpleTypeElementValue(t *testing.T) {
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns="http://test.com"
      elementFormDefault="qualified">
    <xs:element name="count" type="xs:integer"/>
  </xs:schema>`

	t.Run("valid value", func(t *testing.T) {
		assert.Empty(t, validate(t, schema, `<count xmlns="http://test.com">42</count>`))
	})
	t.Run("invalid value", func(t *testing.T) {
		violations := validate(t, schema, `<count xmlns="http://test.com">forty-two</count>`)
		require.NotEmpty(t, violations)
		assert.Equal(t, "cvc-type.3.1.3", violations[0].Code)
	})
	t.Run("child elements rejected", func(t *testing.T) {
		violations := validate(t, schema, `<count xmlns="http://test.com"><n>1</n></count>`)
		require.NotEmpty(t, violations)
		assert.Equal(t, "cvc-type.3.1.2", violations[0].Code)
	})
}

func TestMixedContentValidation(t *testing.T) {
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns="http://test.com"
      elementFormDefault="qualified">
    <xs:element name="para">
      <xs:complexType mixed="true">
        <xs:sequence>
          <xs:element name="em" type="xs:string" minOccurs="0" maxOccurs="unbounded"/>
        </xs:sequence>
      </xs:complexType>
    </xs:element>
    <xs:element name="strictPara">
      <xs:complexType>
        <xs:sequence>
          <xs:element name="em" type="xs:string" minOccurs="0" maxOccurs="unbounded"/>
        </xs:sequence>
      </xs:complexType>
    </xs:element>
  </xs:schema>`

	t.Run("mixed allows interleaved text", func(t *testing.T) {
		assert.Empty(t, validate(t, schema,
			`<para xmlns="http://test.com">Hello <em>world</em> again</para>`))
	})
	t.Run("element-only rejects text", func(t *testing.T) {
		violations := validate(t, schema,
			`<strictPara xmlns="http://test.com">Hello <em>world</em></strictPara>`)
		require.NotEmpty(t, violations)
		assert.Equal(t, "cvc-complex-type.2.3", violations[0].Code)
	})
	t.Run("element-only ignores whitespace", func(t *testing.T) {
		assert.Empty(t, validate(t, schema,
			`<strictPara xmlns="http://test.com">  <em>world</em>  </strictPara>`))
	})
}

func TestAttributeValidation(t *testing.T) {
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns="http://test.com"
      elementFormDefault="qualified">
    <xs:element name="item">
      <xs:complexType>
        <xs:attribute name="id" type="xs:string" use="required"/>
        <xs:attribute name="note" type="xs:string"/>
        <xs:attribute name="kind" type="xs:string" fixed="widget"/>
      </xs:complexType>
    </xs:element>
  </xs:schema>`

	tests := []struct {
		name      string
		xml       string
		errorCode string
	}{
		{"all attributes valid", `<item xmlns="http://test.com" id="a" note="n" kind="widget"/>`, ""},
		{"only required", `<item xmlns="http://test.com" id="a"/>`, ""},
		{"missing required", `<item xmlns="http://test.com" note="n"/>`, "cvc-complex-type.4"},
		{"unknown attribute", `<item xmlns="http://test.com" id="a" bogus="x"/>`, "cvc-complex-type.3.2.2"},
		{"fixed mismatch", `<item xmlns="http://test.com" id="a" kind="gadget"/>`, "cvc-attribute.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := validate(t, schema, tt.xml)
			if tt.errorCode == "" {
				assert.Empty(t, violations, "violations: %+v", violations)
			} else {
				require.NotEmpty(t, violations)
				assert.True(t, hasCode(violations, tt.errorCode),
					"want code %s, got %+v", tt.errorCode, violations)
			}
		})
	}
}

func TestIDREFValidation(t *testing.T) {
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns="http://test.com"
      elementFormDefault="qualified">
    <xs:element name="doc">
      <xs:complexType>
        <xs:sequence>
          <xs:element name="node" minOccurs="0" maxOccurs="unbounded">
            <xs:complexType>
              <xs:attribute name="id" type="xs:ID"/>
              <xs:attribute name="ref" type="xs:IDREF"/>
            </xs:complexType>
          </xs:element>
        </xs:sequence>
      </xs:complexType>
    </xs:element>
  </xs:schema>`

	tests := []struct {
		name      string
		xml       string
		errorCode string
	}{
		{
			"valid reference",
			`<doc xmlns="http://test.com"><node id="n1"/><node ref="n1"/></doc>`,
			"",
		},
		{
			"dangling reference",
			`<doc xmlns="http://test.com"><node id="n1"/><node ref="n2"/></doc>`,
			"cvc-id.1",
		},
		{
			"duplicate ID",
			`<doc xmlns="http://test.com"><node id="n1"/><node id="n1"/></doc>`,
			"cvc-id.2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := validate(t, schema, tt.xml)
			if tt.errorCode == "" {
				assert.Empty(t, violations, "violations: %+v", violations)
			} else {
				require.NotEmpty(t, violations)
				assert.Equal(t, tt.errorCode, violations[0].Code)
			}
		})
	}
}

func TestNillableElement(t *testing.T) {
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns="http://test.com"
      elementFormDefault="qualified">
    <xs:element name="value" type="xs:integer" nillable="true"/>
    <xs:element name="strictValue" type="xs:integer"/>
  </xs:schema>`

	t.Run("nil on nillable element", func(t *testing.T) {
		assert.Empty(t, validate(t, schema,
			`<value xmlns="http://test.com" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:nil="true"/>`))
	})
	t.Run("nil with content", func(t *testing.T) {
		violations := validate(t, schema,
			`<value xmlns="http://test.com" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:nil="true">7</value>`)
		require.NotEmpty(t, violations)
		assert.Equal(t, "cvc-elt.3.2.1", violations[0].Code)
	})
	t.Run("nil on non-nillable element", func(t *testing.T) {
		violations := validate(t, schema,
			`<strictValue xmlns="http://test.com" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:nil="true"/>`)
		require.NotEmpty(t, violations)
		assert.Equal(t, "cvc-elt.3.1", violations[0].Code)
	})
}

func TestElementFixedValue(t *testing.T) {
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns="http://test.com"
      elementFormDefault="qualified">
    <xs:element name="version" type="xs:string" fixed="1.0"/>
  </xs:schema>`

	t.Run("matching value", func(t *testing.T) {
		assert.Empty(t, validate(t, schema, `<version xmlns="http://test.com">1.0</version>`))
	})
	t.Run("empty takes the fixed value", func(t *testing.T) {
		assert.Empty(t, validate(t, schema, `<version xmlns="http://test.com"/>`))
	})
	t.Run("mismatch", func(t *testing.T) {
		violations := validate(t, schema, `<version xmlns="http://test.com">2.0</version>`)
		require.NotEmpty(t, violations)
		assert.Equal(t, "cvc-elt.5.2.2.2", violations[0].Code)
		assert.Equal(t, []string{"1.0"}, violations[0].Expected)
	})
}

func TestUndeclaredRootElement(t *testing.T) {
	violations := validate(t, personSchema, `<unknown xmlns="http://test.com"/>`)
	require.NotEmpty(t, violations)
	assert.Equal(t, "cvc-elt.1", violations[0].Code)
}

func TestSkipModeSuppressesViolations(t *testing.T) {
	schema := mustParseSchema(t, personSchema)
	doc := mustParseDoc(t, `<person xmlns="http://test.com"><age>36</age></person>`)
	assert.Empty(t, NewValidatorWithMode(schema, ValidationSkip).Validate(doc))
}

func TestLaxModeAcceptsUndeclaredRoot(t *testing.T) {
	schema := mustParseSchema(t, personSchema)
	doc := mustParseDoc(t, `<unknown xmlns="http://test.com"/>`)

	strict := NewValidatorWithMode(schema, ValidationStrict).Validate(doc)
	require.NotEmpty(t, strict)
	assert.Equal(t, "cvc-elt.1", strict[0].Code)

	assert.Empty(t, NewValidatorWithMode(schema, ValidationLax).Validate(doc))

	// Declared elements still validate fully in lax mode.
	bad := mustParseDoc(t, `<person xmlns="http://test.com"><age>36</age></person>`)
	assert.NotEmpty(t, NewValidatorWithMode(schema, ValidationLax).Validate(bad))
}

func TestValidateFirst(t *testing.T) {
	schema := mustParseSchema(t, personSchema)

	err := NewValidator(schema).ValidateFirst(mustParseDoc(t,
		`<person xmlns="http://test.com"><name>Ada</name></person>`))
	assert.NoError(t, err)

	err = NewValidator(schema).ValidateFirst(mustParseDoc(t,
		`<person xmlns="http://test.com"><age>36</age></person>`))
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), verr.Violations[0].Code)
}

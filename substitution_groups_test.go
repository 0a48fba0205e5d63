package xsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vehicleSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
    targetNamespace="http://test.com" xmlns:tns="http://test.com"
    elementFormDefault="qualified">
  <xs:complexType name="vehicleType">
    <xs:sequence>
      <xs:element name="wheels" type="xs:integer"/>
    </xs:sequence>
  </xs:complexType>
  <xs:complexType name="carType">
    <xs:complexContent>
      <xs:extension base="tns:vehicleType">
        <xs:sequence>
          <xs:element name="doors" type="xs:integer"/>
        </xs:sequence>
      </xs:extension>
    </xs:complexContent>
  </xs:complexType>

  <xs:element name="vehicle" type="tns:vehicleType"/>
  <xs:element name="car" type="tns:carType" substitutionGroup="tns:vehicle"/>
  <xs:element name="bike" type="tns:vehicleType" substitutionGroup="tns:vehicle"/>

  <xs:element name="fleet">
    <xs:complexType>
      <xs:sequence>
        <xs:element ref="tns:vehicle" minOccurs="0" maxOccurs="unbounded"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`

func TestSubstitutionGroupRegistration(t *testing.T) {
	schema := mustParseSchema(t, vehicleSchema)

	head := QName{Namespace: "http://test.com", Local: "vehicle"}
	members := schema.Registry().SubstitutionGroups[head]
	assert.ElementsMatch(t, []QName{
		{Namespace: "http://test.com", Local: "car"},
		{Namespace: "http://test.com", Local: "bike"},
	}, members)
}

func TestSubstitutionInContentModel(t *testing.T) {
	tests := []struct {
		name      string
		xml       string
		wantError bool
	}{
		{
			"head element accepted",
			`<fleet xmlns="http://test.com"><vehicle><wheels>4</wheels></vehicle></fleet>`,
			false,
		},
		{
			"member substitutes for head",
			`<fleet xmlns="http://test.com"><car><wheels>4</wheels><doors>5</doors></car></fleet>`,
			false,
		},
		{
			"member validated against its own type",
			`<fleet xmlns="http://test.com"><car><wheels>4</wheels></car></fleet>`,
			true, // carType requires doors
		},
		{
			"mixed members",
			`<fleet xmlns="http://test.com">
			   <bike><wheels>2</wheels></bike>
			   <car><wheels>4</wheels><doors>3</doors></car>
			 </fleet>`,
			false,
		},
		{
			"undeclared element rejected",
			`<fleet xmlns="http://test.com"><truck><wheels>6</wheels></truck></fleet>`,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := validate(t, vehicleSchema, tt.xml)
			if tt.wantError {
				assert.NotEmpty(t, violations)
			} else {
				assert.Empty(t, violations, "violations: %+v", violations)
			}
		})
	}
}

func TestSubstitutionRequiresDerivedType(t *testing.T) {
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns:tns="http://test.com">
    <xs:element name="amount" type="xs:integer"/>
    <xs:element name="label" type="xs:string" substitutionGroup="tns:amount"/>
  </xs:schema>`

	doc := mustParseDoc(t, schema)
	_, err := Parse(doc)
	assert.Error(t, err, "member type must derive from the head type")
}

func TestAbstractHeadElement(t *testing.T) {
	const schema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
      targetNamespace="http://test.com" xmlns:tns="http://test.com"
      elementFormDefault="qualified">
    <xs:element name="shape" type="xs:string" abstract="true"/>
    <xs:element name="circle" type="xs:string" substitutionGroup="tns:shape"/>
    <xs:element name="drawing">
      <xs:complexType>
        <xs:sequence>
          <xs:element ref="tns:shape" maxOccurs="unbounded"/>
        </xs:sequence>
      </xs:complexType>
    </xs:element>
  </xs:schema>`

	t.Run("member substitutes for abstract head", func(t *testing.T) {
		assert.Empty(t, validate(t, schema,
			`<drawing xmlns="http://test.com"><circle>r=1</circle></drawing>`))
	})
	t.Run("abstract head cannot appear", func(t *testing.T) {
		violations := validate(t, schema,
			`<drawing xmlns="http://test.com"><shape>r=1</shape></drawing>`)
		require.NotEmpty(t, violations)
	})
}

package xsd

import (
	"fmt"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// Diagnostic represents a rustc-style validation diagnostic
type Diagnostic struct {
	Severity  Severity  `json:"severity"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Position  Position  `json:"position"`
	Tag       string    `json:"tag"`
	Attribute string    `json:"attribute,omitempty"`
	SpecRef   string    `json:"spec_ref,omitempty"`
	Hints     []string  `json:"hints,omitempty"`
	Related   []Related `json:"related,omitempty"`
}

// Severity represents the severity level of a diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Position contains source position information for a node
type Position struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Offset int64  `json:"offset"`
}

// Related points to a related location in the source
type Related struct {
	Label    string   `json:"label"`
	Position Position `json:"position"`
}

// DiagnosticConverter converts validation violations to rustc-style
// diagnostics with source positions.
type DiagnosticConverter struct {
	fileName string
	source   string
}

// NewDiagnosticConverter creates a new converter
func NewDiagnosticConverter(fileName, source string) *DiagnosticConverter {
	return &DiagnosticConverter{
		fileName: fileName,
		source:   source,
	}
}

// Convert converts violations to diagnostics
func (dc *DiagnosticConverter) Convert(violations []Violation) []Diagnostic {
	diagnostics := make([]Diagnostic, 0, len(violations))
	for _, v := range violations {
		diagnostics = append(diagnostics, dc.convertViolation(v))
	}
	return diagnostics
}

func (dc *DiagnosticConverter) convertViolation(v Violation) Diagnostic {
	diag := Diagnostic{
		Severity:  dc.getSeverity(v.Code),
		Code:      dc.mapErrorCode(v.Code),
		Message:   dc.formatMessage(v),
		Position:  dc.getPosition(v.Element, v.Attribute),
		Tag:       dc.getTag(v.Element),
		Attribute: v.Attribute,
		SpecRef:   dc.getSpecRef(v.Code),
		Hints:     dc.generateHints(v),
	}
	return diag
}

func (dc *DiagnosticConverter) getSeverity(code string) Severity {
	if strings.HasPrefix(code, "xsd-warn-") {
		return SeverityWarning
	}
	return SeverityError
}

// mapErrorCode maps constraint violation codes to short display codes
func (dc *DiagnosticConverter) mapErrorCode(xsdCode string) string {
	codeMap := map[string]string{
		"cvc-complex-type.3.2.2": "E200", // invalid attribute
		"cvc-complex-type.2.4.a": "E201", // invalid child element
		"cvc-complex-type.2.4.b": "E202", // missing required element
		"cvc-complex-type.2.4.d": "E203", // too many occurrences
		"cvc-complex-type.4":     "E204", // missing required attribute
		"cvc-id.1":               "E205", // IDREF binding error
		"cvc-id.2":               "E206", // duplicate ID
		"cvc-elt.1":              "E207", // element not declared
		"cvc-type.3.1.3":         "E208", // invalid value for type
		"cvc-enumeration-valid":  "E209", // value not in enumeration
		"cvc-pattern-valid":      "E210", // pattern mismatch
		"cvc-attribute.3":        "E211", // invalid attribute value
		"cvc-attribute.4":        "E212", // fixed attribute mismatch
		"xsd-null-document":      "E001",
		"xsd-no-root":            "E002",
	}
	if mapped, ok := codeMap[xsdCode]; ok {
		return mapped
	}
	return "E" + strings.ReplaceAll(xsdCode, ".", "_")
}

func (dc *DiagnosticConverter) formatMessage(v Violation) string {
	if v.Code == "cvc-complex-type.2.4.a" && len(v.Expected) > 0 {
		return fmt.Sprintf("Invalid element '%s'. Expected one of: %s",
			v.Actual, strings.Join(v.Expected, ", "))
	}
	return v.Message
}

func (dc *DiagnosticConverter) getPosition(elem xmldom.Element, attrName string) Position {
	if elem == nil {
		return Position{File: dc.fileName}
	}

	if attrName != "" {
		if attr := elem.GetAttributeNode(xmldom.DOMString(attrName)); attr != nil {
			line, col, offset := attr.Position()
			if line > 0 {
				return Position{
					File:   dc.fileName,
					Line:   line,
					Column: col,
					Offset: offset,
				}
			}
		}
	}

	line, col, offset := elem.Position()
	return Position{
		File:   dc.fileName,
		Line:   line,
		Column: col,
		Offset: offset,
	}
}

func (dc *DiagnosticConverter) getTag(elem xmldom.Element) string {
	if elem == nil {
		return ""
	}
	return string(elem.LocalName())
}

func (dc *DiagnosticConverter) getSpecRef(code string) string {
	if strings.HasPrefix(code, "cvc-") {
		return "W3C XML Schema Part 1: Structures"
	}
	return ""
}

// generateHints creates hints for the common violation classes
func (dc *DiagnosticConverter) generateHints(v Violation) []string {
	var hints []string

	switch v.Code {
	case "cvc-complex-type.3.2.2":
		if len(v.Expected) > 0 {
			hints = append(hints, fmt.Sprintf("Did you mean: %s?", strings.Join(v.Expected, " or ")))
		}

	case "cvc-complex-type.2.4.a":
		if len(v.Expected) > 0 {
			hints = append(hints,
				fmt.Sprintf("Valid elements here are: %s", strings.Join(v.Expected, ", ")))
		}

	case "cvc-id.1":
		hints = append(hints,
			fmt.Sprintf("Ensure there is an element with id='%s' in the document", v.Actual),
			"Check for typos in the ID reference; IDs are case-sensitive")

	case "cvc-id.2":
		hints = append(hints,
			"Each id attribute value must be unique within the document")

	case "cvc-complex-type.4":
		if len(v.Expected) == 1 {
			hints = append(hints, fmt.Sprintf("Add required attribute: %s=\"...\"", v.Expected[0]))
		}

	case "cvc-enumeration-valid":
		if len(v.Expected) > 0 {
			hints = append(hints,
				fmt.Sprintf("Valid values are: %s", strings.Join(v.Expected, ", ")))
		}

	case "cvc-attribute.4", "cvc-elt.5.2.2.2":
		if len(v.Expected) == 1 {
			hints = append(hints, fmt.Sprintf("The schema fixes this value to %q", v.Expected[0]))
		}
	}

	if len(hints) == 0 && len(v.Expected) > 0 {
		hints = append(hints, fmt.Sprintf("Expected: %s", strings.Join(v.Expected, ", ")))
	}
	return hints
}

// ErrorFormatter provides rustc-style error formatting
type ErrorFormatter struct {
	Color           bool
	ShowFullElement bool
	ContextLines    int
}

// Format formats a diagnostic in rustc style
func (ef *ErrorFormatter) Format(diag Diagnostic, source string) string {
	var sb strings.Builder

	severity := string(diag.Severity)
	if ef.Color {
		switch diag.Severity {
		case SeverityError:
			severity = "\033[31;1merror\033[0m"
		case SeverityWarning:
			severity = "\033[33;1mwarning\033[0m"
		case SeverityInfo:
			severity = "\033[36;1minfo\033[0m"
		}
	}

	sb.WriteString(fmt.Sprintf("%s[%s]: %s\n", severity, diag.Code, diag.Message))
	sb.WriteString(fmt.Sprintf(" --> %s:%d:%d\n",
		diag.Position.File, diag.Position.Line, diag.Position.Column))

	if source != "" && diag.Position.Line > 0 {
		lines := strings.Split(source, "\n")
		if diag.Position.Line <= len(lines) {
			sb.WriteString(fmt.Sprintf("%4d | ", diag.Position.Line))
			sb.WriteString(lines[diag.Position.Line-1] + "\n")

			sb.WriteString("     | ")
			if diag.Position.Column > 0 {
				sb.WriteString(strings.Repeat(" ", diag.Position.Column-1))
				if ef.Color {
					sb.WriteString("\033[31;1m^\033[0m")
				} else {
					sb.WriteString("^")
				}
				if diag.Attribute != "" {
					sb.WriteString(strings.Repeat("~", len(diag.Attribute)))
				}
			}
			sb.WriteString("\n")
		}
	}

	if len(diag.Hints) > 0 {
		sb.WriteString("     |\n")
		for _, hint := range diag.Hints {
			sb.WriteString("     = help: " + hint + "\n")
		}
	}

	if diag.SpecRef != "" {
		sb.WriteString("     = note: see " + diag.SpecRef + "\n")
	}

	for _, rel := range diag.Related {
		sb.WriteString(fmt.Sprintf("\n     %s\n", rel.Label))
		sb.WriteString(fmt.Sprintf("      --> %s:%d:%d\n",
			rel.Position.File, rel.Position.Line, rel.Position.Column))
	}

	return sb.String()
}

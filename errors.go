package xsd

import (
	"fmt"

	"github.com/agentflare-ai/go-xmldom"
)

// ValidationMode controls how errors found during schema build or instance
// validation are reported.
type ValidationMode string

const (
	// ValidationStrict raises at the first error.
	ValidationStrict ValidationMode = "strict"
	// ValidationLax collects errors and continues with a best-effort result.
	ValidationLax ValidationMode = "lax"
	// ValidationSkip suppresses error generation entirely.
	ValidationSkip ValidationMode = "skip"
)

// ParseError is a structural or semantic violation discovered while building
// the schema component graph. It is always attributable to a source element.
type ParseError struct {
	Message string
	Elem    xmldom.Element
	Name    QName
}

func (e *ParseError) Error() string {
	if e.Name.Local != "" {
		return fmt.Sprintf("schema parse error at %s: %s", e.Name, e.Message)
	}
	return "schema parse error: " + e.Message
}

func newParseError(elem xmldom.Element, format string, args ...any) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...), Elem: elem}
}

// CircularityError is raised when the staged-build state machine detects
// reentrant construction of the same global without a redefinition anchor.
type CircularityError struct {
	Name QName
	Kind ComponentKind
}

func (e *CircularityError) Error() string {
	return fmt.Sprintf("circular definition of %s %s", e.Kind, e.Name)
}

// NotFoundError is returned by registry lookups for unknown global names.
type NotFoundError struct {
	Name QName
	Kind ComponentKind
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("global %s %s not found", e.Kind, e.Name)
}

// ModelError is a build-time deterministic-matching failure: a Unique
// Particle Attribution or Element Declarations Consistent violation. It is
// distinct from ParseError because it needs the fully-built particle tree.
type ModelError struct {
	Group   *ModelGroup
	Message string
}

func (e *ModelError) Error() string {
	return "content model error: " + e.Message
}

func newModelError(group *ModelGroup, format string, args ...any) *ModelError {
	return &ModelError{Group: group, Message: fmt.Sprintf(format, args...)}
}

// ErrorCollector accumulates parse diagnostics according to a validation
// mode: strict returns the error to the caller, lax appends it, skip drops
// it. This is the sole channel for build-time constraint reporting.
type ErrorCollector struct {
	Mode   ValidationMode
	Errors []*ParseError
}

// Add records err according to the collector's mode. The returned error is
// non-nil only in strict mode.
func (c *ErrorCollector) Add(err *ParseError) error {
	switch c.Mode {
	case ValidationLax:
		c.Errors = append(c.Errors, err)
		return nil
	case ValidationSkip:
		return nil
	default:
		return err
	}
}

// AddError coerces an arbitrary build error into the collector. Non
// ParseError values (circularity, model errors) pass through strict mode
// unchanged and are wrapped for lax accumulation.
func (c *ErrorCollector) AddError(err error, elem xmldom.Element) error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*ParseError); ok {
		return c.Add(pe)
	}
	if c.Mode == ValidationStrict {
		return err
	}
	return c.Add(&ParseError{Message: err.Error(), Elem: elem})
}

// Package docerr defines the error taxonomy shared by the paragraph store,
// resolver, document and merge packages.
//
// Every error carries a Code. Callers branch on the category with errors.Is
// against the package sentinels or with the Is* helpers:
//
//	if docerr.IsNotFound(err) { ... }
//	if errors.Is(err, docerr.ErrCyclicReference) { ... }
package docerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes document engine errors.
type Code string

const (
	// CodeValidation indicates malformed input: bad reference attributes,
	// unparseable block structure, or a duplicate id introduced by an edit.
	CodeValidation Code = "VALIDATION"

	// CodeCorruptOriginal indicates that text previously exported from the
	// document no longer validates. It also matches ErrValidation.
	CodeCorruptOriginal Code = "CORRUPT_ORIGINAL"

	// CodeNotFound indicates a missing document, paragraph or version.
	CodeNotFound Code = "NOT_FOUND"

	// CodeCyclicReference indicates a reference chain that loops back on itself.
	CodeCyclicReference Code = "CYCLIC_REFERENCE"

	// CodeReference indicates a reference that cannot be followed.
	CodeReference Code = "REFERENCE"

	// CodeInvalidArea indicates a named area whose start or end marker is missing.
	CodeInvalidArea Code = "INVALID_AREA"

	// CodeInUse indicates garbage collection of content that is still referenced.
	CodeInUse Code = "IN_USE"

	// CodeAlreadyExists indicates an id collision on creation.
	CodeAlreadyExists Code = "ALREADY_EXISTS"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Code.
var (
	ErrValidation      = errors.New("validation error")
	ErrCorruptOriginal = errors.New("corrupt original text")
	ErrNotFound        = errors.New("not found")
	ErrCyclicReference = errors.New("cyclic reference")
	ErrReference       = errors.New("reference error")
	ErrInvalidArea     = errors.New("invalid area reference")
	ErrInUse           = errors.New("in use")
	ErrAlreadyExists   = errors.New("already exists")
)

var sentinels = map[Code]error{
	CodeValidation:      ErrValidation,
	CodeCorruptOriginal: ErrCorruptOriginal,
	CodeNotFound:        ErrNotFound,
	CodeCyclicReference: ErrCyclicReference,
	CodeReference:       ErrReference,
	CodeInvalidArea:     ErrInvalidArea,
	CodeInUse:           ErrInUse,
	CodeAlreadyExists:   ErrAlreadyExists,
}

// Error is a categorized document engine error.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// DocID identifies the affected document (0 when not applicable).
	DocID int

	// ParID identifies the affected paragraph.
	ParID string

	// Path holds the "doc:par" cycle for CodeCyclicReference errors.
	Path []string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	switch {
	case e.DocID != 0 && e.ParID != "":
		fmt.Fprintf(&b, " (doc=%d, par=%s)", e.DocID, e.ParID)
	case e.DocID != 0:
		fmt.Fprintf(&b, " (doc=%d)", e.DocID)
	case e.ParID != "":
		fmt.Fprintf(&b, " (par=%s)", e.ParID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's code.
// Corrupt original errors are also validation errors.
func (e *Error) Is(target error) bool {
	if s, ok := sentinels[e.Code]; ok && s == target {
		return true
	}
	return e.Code == CodeCorruptOriginal && target == ErrValidation
}

// WithDoc returns a copy of e with DocID set.
func (e *Error) WithDoc(docID int) *Error {
	c := *e
	c.DocID = docID
	return &c
}

// WithPar returns a copy of e with ParID set.
func (e *Error) WithPar(parID string) *Error {
	c := *e
	c.ParID = parID
	return &c
}

func newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a CodeValidation error.
func Validation(format string, args ...any) *Error {
	return newf(CodeValidation, format, args...)
}

// CorruptOriginal creates a CodeCorruptOriginal error wrapping the parse failure.
func CorruptOriginal(err error) *Error {
	return &Error{
		Code:    CodeCorruptOriginal,
		Message: "the original document contained a syntax error; this is probably an internal bug, please report it",
		Err:     err,
	}
}

// NotFound creates a CodeNotFound error.
func NotFound(format string, args ...any) *Error {
	return newf(CodeNotFound, format, args...)
}

// Reference creates a CodeReference error.
func Reference(format string, args ...any) *Error {
	return newf(CodeReference, format, args...)
}

// InvalidArea creates a CodeInvalidArea error for the named area.
func InvalidArea(name string) *Error {
	return newf(CodeInvalidArea, "area not found: %s", name)
}

// InUse creates a CodeInUse error.
func InUse(format string, args ...any) *Error {
	return newf(CodeInUse, format, args...)
}

// AlreadyExists creates a CodeAlreadyExists error.
func AlreadyExists(format string, args ...any) *Error {
	return newf(CodeAlreadyExists, format, args...)
}

// CyclicReference creates a CodeCyclicReference error for the given path.
// The path lists "doc:par" nodes in traversal order, ending with the node
// that closed the loop.
func CyclicReference(path []string) *Error {
	return &Error{
		Code:    CodeCyclicReference,
		Message: "infinite referencing loop detected: " + strings.Join(path, " -> "),
		Path:    path,
	}
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsCorruptOriginal reports whether err reports a corrupt original text.
func IsCorruptOriginal(err error) bool { return errors.Is(err, ErrCorruptOriginal) }

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsCyclicReference reports whether err is a reference cycle.
func IsCyclicReference(err error) bool { return errors.Is(err, ErrCyclicReference) }

// IsReference reports whether err is a reference error.
func IsReference(err error) bool { return errors.Is(err, ErrReference) }

// IsInvalidArea reports whether err is a missing area error.
func IsInvalidArea(err error) bool { return errors.Is(err, ErrInvalidArea) }

// IsInUse reports whether err is an in use error.
func IsInUse(err error) bool { return errors.Is(err, ErrInUse) }

// IsAlreadyExists reports whether err is an already exists error.
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

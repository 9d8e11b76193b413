package playset

import (
	"errors"
	"fmt"
)

// Parse failures. A *ParseError wraps exactly one of these.
var (
	ErrUnterminatedLiteralSet = errors.New("unterminated literal set")
	ErrMissingOperands        = errors.New("operator is missing operands")
	ErrTrailingOperands       = errors.New("more than one operand left at end of input")
	ErrEmptyExpression        = errors.New("empty expression")
	ErrUnresolvedItemName     = errors.New("unresolved item name")
	ErrUnexpectedToken        = errors.New("unexpected token")
	ErrDanglingName           = errors.New("name is not terminated by a separator")
)

// Reference failures. A *ReferenceError wraps one of these.
var (
	ErrUnknownSetReference = errors.New("unknown set reference")
	ErrCyclicReference     = errors.New("cyclic set reference")
)

// Store failures.
var (
	ErrDuplicateName      = errors.New("set name already exists")
	ErrInvalidName        = errors.New("invalid set name")
	ErrImmutableUniversal = errors.New("the universal set cannot be edited")
	ErrReservedCharacter  = errors.New("name contains a reserved character")
	ErrUnknownOperator    = errors.New("unknown operator")
)

// ParseError reports where the encoding of a set could not be parsed.
type ParseError struct {
	Set    string
	Offset int
	Item   string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Item != "" {
		return fmt.Sprintf("parsing set %q at offset %d: %v: %q", e.Set, e.Offset, e.Err, e.Item)
	}
	return fmt.Sprintf("parsing set %q at offset %d: %v", e.Set, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ReferenceError reports a set reference that is unknown or cyclic.
type ReferenceError struct {
	Name string
	Err  error
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Name)
}

func (e *ReferenceError) Unwrap() error {
	return e.Err
}

// DuplicateNameError is returned when a set is created under a name the
// library already holds.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("set %q already exists", e.Name)
}

func (e *DuplicateNameError) Is(target error) bool {
	return target == ErrDuplicateName
}

// IOError classifies filesystem failures while loading or persisting sets.
// The underlying error stays reachable, so errors.Is(err, fs.ErrNotExist)
// and errors.Is(err, fs.ErrPermission) work as usual.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Kind names the error class for diagnostics, e.g. in API responses.
func Kind(err error) string {
	var (
		parseErr *ParseError
		refErr   *ReferenceError
		ioErr    *IOError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &refErr), errors.Is(err, ErrUnresolvedItemName):
		return "reference"
	case errors.Is(err, ErrDuplicateName),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrImmutableUniversal),
		errors.Is(err, ErrReservedCharacter),
		errors.Is(err, ErrUnknownOperator):
		return "store"
	case errors.As(err, &ioErr):
		return "io"
	}
	return "internal"
}

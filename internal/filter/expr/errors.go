package expr

import "fmt"

// TypeMismatchError is raised when an operator or traversal step is applied
// to a value of the wrong kind (array access on a scalar, key access on an
// array, non-numeric ordering comparison, ...).
type TypeMismatchError struct {
	Detail string
}

func (e *TypeMismatchError) Error() string { return "expr: type mismatch: " + e.Detail }

// FieldNotFoundError is raised when a `.Key` traversal step or a bare
// parameter name does not resolve.
type FieldNotFoundError struct {
	Field string
}

func (e *FieldNotFoundError) Error() string { return fmt.Sprintf("expr: field not found: %s", e.Field) }

// IndexOutOfBoundsError is raised when a `[Index]` traversal step exceeds
// the array's bounds.
type IndexOutOfBoundsError struct {
	Index int
}

func (e *IndexOutOfBoundsError) Error() string {
	return fmt.Sprintf("expr: index out of bounds: %d", e.Index)
}

// UnsupportedOperatorError is raised when an operator is applied to operand
// kinds that do not support it (e.g. `contains` on a number).
type UnsupportedOperatorError struct {
	Op   Op
	Kind string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("expr: unsupported operator %q for kind %q", e.Op, e.Kind)
}

// ParseError wraps a JSON parse failure encountered during traversal, with
// the path at which it occurred.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("expr: parse error at %s: %v", e.Path, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

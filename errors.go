package flatlake

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Code classifies a transform failure. Every error surfaced by this
// package carries exactly one Code so that callers can decide whether to
// retry, quarantine the input, or alert without string-matching messages.
type Code string

const (
	// ErrParse means the input bytes are not well-formed JSON. Retrying
	// with the same input cannot succeed.
	ErrParse Code = "parse_error"

	// ErrSchemaNotFound means the requested contract version does not
	// exist in the registry. A configuration problem, not a data problem.
	ErrSchemaNotFound Code = "schema_not_found"

	// ErrSchemaMismatch means the input record does not satisfy the
	// contract's input shape. Fatal for this input only.
	ErrSchemaMismatch Code = "schema_mismatch"

	// ErrTypeCoercion means a value could not be cast to its declared
	// output column type under the strict coercion policy.
	ErrTypeCoercion Code = "type_coercion"

	// ErrUnsupportedShape means the contract itself is structurally
	// invalid (colliding flattened names, unresolvable column sources,
	// more array fields than the configured policy allows). Raised at
	// load time, before any record is processed.
	ErrUnsupportedShape Code = "unsupported_shape"

	// ErrEncoding means a row handed to the encoder violated the row
	// invariant. Given a compiled contract and a successful flatten this
	// indicates a bug, not bad data.
	ErrEncoding Code = "encoding_error"
)

// Error is the structured error type for the whole transform. Path points
// into the record (or the contract, for shape errors) using dot notation,
// e.g. "customer.name" or "products.price".
type Error struct {
	Code     Code
	Path     string
	Expected string
	Actual   string
	Version  string
	msg      string
}

func (e *Error) Error() string {
	b := &strings.Builder{}
	b.WriteString(string(e.Code))
	if e.Path != "" {
		fmt.Fprintf(b, " at %s", e.Path)
	}
	if e.Version != "" {
		fmt.Fprintf(b, " (schema %s)", e.Version)
	}
	if e.msg != "" {
		fmt.Fprintf(b, ": %s", e.msg)
	}
	if e.Expected != "" || e.Actual != "" {
		fmt.Fprintf(b, ": expected %s, got %s", e.Expected, e.Actual)
	}
	return b.String()
}

// Errorf builds a taxonomy error with a formatted message. Sub-packages
// (notably the parquet encoder) use it to stay inside the same taxonomy.
func Errorf(code Code, path, format string, args ...interface{}) *Error {
	return &Error{Code: code, Path: path, msg: fmt.Sprintf(format, args...)}
}

func newError(code Code, path, format string, args ...interface{}) *Error {
	return Errorf(code, path, format, args...)
}

func typeError(code Code, path, expected string, actual interface{}) *Error {
	return &Error{Code: code, Path: path, Expected: expected, Actual: typeName(actual)}
}

// CodeOf returns the Code carried by err, unwrapping as needed. Errors
// which did not originate here report the empty Code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err (or anything it wraps) carries code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// typeName renders a value's type the way error messages and contracts
// talk about it, rather than the Go type name.
func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case jsonNumber:
		return "number"
	case int64, float64:
		return "number"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

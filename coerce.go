package flatlake

import (
	"strings"
	"time"
)

// Strict coercion from decoded JSON values to declared column types. A
// value of the wrong type fails with ErrTypeCoercion - never silently
// nulled, never promoted. The same contract therefore yields the same
// column types on every batch no matter what the data looked like.

// coerceValue casts v to col's declared type. A nil v is returned as nil
// when the column is nullable and rejected otherwise.
func coerceValue(v interface{}, col *Column, path string) (interface{}, error) {
	if v == nil {
		if col.Nullable {
			return nil, nil
		}
		return nil, newError(ErrSchemaMismatch, path, "null value for non-nullable column %s", col.Name)
	}
	switch col.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, typeError(ErrTypeCoercion, path, "string", v)
		}
		return s, nil
	case TypeInt:
		return coerceInt(v, path)
	case TypeFloat:
		return coerceFloat(v, path)
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, typeError(ErrTypeCoercion, path, "bool", v)
		}
		return b, nil
	case TypeTime:
		return coerceTime(v, col, path)
	}
	return nil, newError(ErrTypeCoercion, path, "unknown column type %q", col.Type)
}

func coerceInt(v interface{}, path string) (interface{}, error) {
	n, ok := v.(jsonNumber)
	if !ok {
		return nil, typeError(ErrTypeCoercion, path, "int", v)
	}
	i, err := n.Int64()
	if err != nil {
		// "1.5" and "1.0" both fail here: a fractional literal is not an int
		return nil, typeError(ErrTypeCoercion, path, "int", v)
	}
	return i, nil
}

func coerceFloat(v interface{}, path string) (interface{}, error) {
	n, ok := v.(jsonNumber)
	if !ok {
		return nil, typeError(ErrTypeCoercion, path, "float", v)
	}
	f, err := n.Float64()
	if err != nil {
		return nil, typeError(ErrTypeCoercion, path, "float", v)
	}
	return f, nil
}

func coerceTime(v interface{}, col *Column, path string) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return nil, typeError(ErrTypeCoercion, path, "timestamp", v)
	}
	layout := col.TimeLayout
	if layout == "" {
		layout = time.RFC3339
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return nil, &Error{
			Code:     ErrTypeCoercion,
			Path:     path,
			Expected: "timestamp (" + layout + ")",
			Actual:   quoteShort(s),
		}
	}
	return t.UTC(), nil
}

func quoteShort(s string) string {
	if len(s) > 32 {
		s = s[:32] + "..."
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

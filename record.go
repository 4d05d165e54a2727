package flatlake

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

type jsonNumber = json.Number

// Record is one parsed input record: scalar leaves, nested objects, and
// arrays of objects. Records belong to a single invocation and are
// discarded after flattening.
type Record map[string]interface{}

// DecodeRecord parses raw bytes into a Record. Numbers are kept as
// json.Number so that strict coercion can distinguish integers from
// floats without loss. Anything that is not a single well-formed JSON
// object fails with ErrParse before any schema checking happens.
func DecodeRecord(b []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, newError(ErrParse, "", "decoding record: %v", err)
	}
	if rec == nil {
		return nil, newError(ErrParse, "", "record is null")
	}
	// trailing garbage after the object is malformed input, not a second record
	if dec.More() {
		return nil, newError(ErrParse, "", "trailing data after record")
	}
	return rec, nil
}

// ValidateRecord checks a parsed record against the contract's input
// shape: required fields present, container kinds matching, and - when
// strict is set - no fields beyond the declared shape. Value-level type
// casting is the flattener's job; this pass is purely structural.
func (c *Contract) ValidateRecord(rec Record, strict bool) error {
	if c.comp == nil {
		return newError(ErrUnsupportedShape, "", "contract %s is not compiled", c.Version)
	}
	for i := range c.Input {
		f := &c.Input[i]
		v, present := rec[f.Name]
		if !present || v == nil {
			if !f.Nullable {
				return newError(ErrSchemaMismatch, f.Name, "required field is missing")
			}
			continue
		}
		switch f.Kind {
		case KindScalar:
			if !isScalarValue(v) {
				return typeError(ErrSchemaMismatch, f.Name, "scalar", v)
			}
		case KindObject:
			obj, ok := v.(map[string]interface{})
			if !ok {
				return typeError(ErrSchemaMismatch, f.Name, "object", v)
			}
			if err := validateElement(f, f.Name, obj, strict); err != nil {
				return err
			}
		case KindArray:
			arr, ok := v.([]interface{})
			if !ok {
				return typeError(ErrSchemaMismatch, f.Name, "array", v)
			}
			for idx, ev := range arr {
				elem, ok := ev.(map[string]interface{})
				if !ok {
					return typeError(ErrSchemaMismatch, fmt.Sprintf("%s[%d]", f.Name, idx), "object element", ev)
				}
				if err := validateElement(f, f.Name, elem, strict); err != nil {
					return err
				}
			}
		}
	}
	if strict {
		for k := range rec {
			if _, declared := c.comp.fields[k]; !declared {
				return newError(ErrSchemaMismatch, k, "unknown field")
			}
		}
	}
	return nil
}

func validateElement(f *Field, path string, elem map[string]interface{}, strict bool) error {
	for j := range f.Fields {
		sub := &f.Fields[j]
		subPath := path + "." + sub.Name
		v, present := elem[sub.Name]
		if !present || v == nil {
			if !sub.Nullable {
				return newError(ErrSchemaMismatch, subPath, "required field is missing")
			}
			continue
		}
		if !isScalarValue(v) {
			return typeError(ErrSchemaMismatch, subPath, "scalar", v)
		}
	}
	if strict {
		for k := range elem {
			if findField(f.Fields, k) == nil {
				return newError(ErrSchemaMismatch, path+"."+k, "unknown field")
			}
		}
	}
	return nil
}

func isScalarValue(v interface{}) bool {
	switch v.(type) {
	case string, bool, jsonNumber:
		return true
	}
	return false
}

package flatlake

import "time"

// Row is one flattened output row. Values are aligned with the contract's
// output columns: index i holds the value for Output[i], or nil. Building
// rows positionally means every row from one flatten carries exactly the
// declared column set in the declared order.
type Row []interface{}

// CheckRow verifies the row invariant the encoder depends on: declared
// width and declared value types. Violations carry ErrEncoding since a
// row that got past the flattener with the wrong shape is an engine bug.
func CheckRow(row Row, c *Contract) error {
	if len(row) != len(c.Output) {
		return newError(ErrEncoding, "", "row has %d values, contract %s declares %d columns", len(row), c.Version, len(c.Output))
	}
	for i, v := range row {
		col := &c.Output[i]
		if v == nil {
			if !col.Nullable {
				return newError(ErrEncoding, col.Name, "null value in non-nullable column")
			}
			continue
		}
		if !valueMatches(v, col.Type) {
			return typeError(ErrEncoding, col.Name, string(col.Type), v)
		}
	}
	return nil
}

func valueMatches(v interface{}, t ScalarType) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeInt:
		_, ok := v.(int64)
		return ok
	case TypeFloat:
		_, ok := v.(float64)
		return ok
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeTime:
		_, ok := v.(time.Time)
		return ok
	}
	return false
}

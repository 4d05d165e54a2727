package parquet

import (
	"bytes"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/flatlake/flatlake"
)

// Decode reads an encoded part back into rows aligned with the contract's
// output columns. It exists for round-trip verification - the production
// consumers of these files are external query engines, not this package.
func Decode(b []byte, c *flatlake.Contract) ([]flatlake.Row, error) {
	pf := buffer.NewBufferFileFromBytes(b)
	pr, err := reader.NewParquetReader(pf, nil, 1)
	if err != nil {
		return nil, errors.Wrap(err, "opening file")
	}
	defer pr.ReadStop()

	num := int(pr.GetNumRows())
	raw, err := pr.ReadByNumber(num)
	if err != nil {
		return nil, errors.Wrap(err, "reading rows")
	}

	// ReadByNumber hands back dynamically built structs whose field names
	// are parquet-go's exported forms of the column names. Round-tripping
	// through JSON gets us back to plain maps.
	enc, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, "remarshaling rows")
	}
	dec := json.NewDecoder(bytes.NewReader(enc))
	dec.UseNumber()
	var maps []map[string]interface{}
	if err := dec.Decode(&maps); err != nil {
		return nil, errors.Wrap(err, "decoding rows")
	}

	rows := make([]flatlake.Row, 0, len(maps))
	for i, m := range maps {
		row := make(flatlake.Row, len(c.Output))
		for ci := range c.Output {
			col := &c.Output[ci]
			v, ok := lookupFold(m, col.Name)
			if !ok {
				return nil, flatlake.Errorf(flatlake.ErrEncoding, col.Name, "row %d is missing the column", i)
			}
			cv, err := readValue(v, col)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d", i)
			}
			row[ci] = cv
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// lookupFold finds a key case-insensitively; parquet-go capitalizes
// column names to make them exported struct fields.
func lookupFold(m map[string]interface{}, name string) (interface{}, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func readValue(v interface{}, col *flatlake.Column) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case flatlake.TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("column %s: expected string, got %T", col.Name, v)
		}
		return s, nil
	case flatlake.TypeInt, flatlake.TypeTime:
		n, ok := v.(json.Number)
		if !ok {
			return nil, errors.Errorf("column %s: expected number, got %T", col.Name, v)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", col.Name)
		}
		if col.Type == flatlake.TypeTime {
			return time.UnixMilli(i).UTC(), nil
		}
		return i, nil
	case flatlake.TypeFloat:
		n, ok := v.(json.Number)
		if !ok {
			return nil, errors.Errorf("column %s: expected number, got %T", col.Name, v)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", col.Name)
		}
		return f, nil
	case flatlake.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, errors.Errorf("column %s: expected bool, got %T", col.Name, v)
		}
		return b, nil
	}
	return nil, errors.Errorf("column %s: unknown type %q", col.Name, col.Type)
}

// Package parquet encodes flattened rows into self-describing Parquet
// files, one per partition group. The schema is taken verbatim from the
// contract's output columns - never re-inferred from the data - and the
// compression codec is recorded in the file so readers need no external
// knowledge.
package parquet

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/flatlake/flatlake"
)

// Codec names the compression codec written into every file.
type Codec string

const (
	CodecSnappy Codec = "snappy"
	CodecGzip   Codec = "gzip"
	CodecZstd   Codec = "zstd"
	CodecNone   Codec = "none"
)

// hiveNullPartition is what Hive-family engines expect for a null
// partition value.
const hiveNullPartition = "__HIVE_DEFAULT_PARTITION__"

// Options configures an Encoder.
type Options struct {
	// Codec defaults to snappy.
	Codec Codec
	// PartitionKeys are output column names to group rows by, in order.
	// Each distinct value tuple becomes one file under a hive-style
	// "key=value" directory fragment. Partition columns stay in the file
	// as well, so every part remains independently readable.
	PartitionKeys []string
}

// Encoder implements flatlake.Encoder on top of parquet-go. It is
// stateless and safe for concurrent use.
type Encoder struct {
	codec parquet.CompressionCodec
	keys  []string
}

// NewEncoder validates the options and returns an encoder.
func NewEncoder(opts Options) (*Encoder, error) {
	codec, err := compressionCodec(opts.Codec)
	if err != nil {
		return nil, err
	}
	return &Encoder{codec: codec, keys: opts.PartitionKeys}, nil
}

func compressionCodec(c Codec) (parquet.CompressionCodec, error) {
	switch c {
	case "", CodecSnappy:
		return parquet.CompressionCodec_SNAPPY, nil
	case CodecGzip:
		return parquet.CompressionCodec_GZIP, nil
	case CodecZstd:
		return parquet.CompressionCodec_ZSTD, nil
	case CodecNone:
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	}
	return 0, errors.Errorf("unknown compression codec %q", c)
}

// Encode groups rows by the configured partition keys and writes one
// Parquet file per group, preserving row order within each group. The
// operation is all or nothing: every row is checked against the contract
// before the first byte is written, and any failure discards the whole
// batch.
func (e *Encoder) Encode(rows []flatlake.Row, c *flatlake.Contract) ([]flatlake.Part, error) {
	for i, row := range rows {
		if err := flatlake.CheckRow(row, c); err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
	}
	keyIdx := make([]int, len(e.keys))
	for i, k := range e.keys {
		idx := c.ColumnIndex(k)
		if idx < 0 {
			return nil, flatlake.Errorf(flatlake.ErrEncoding, k, "partition key is not an output column")
		}
		keyIdx[i] = idx
	}

	groups, order := groupRows(rows, keyIdx, e.keys)
	schema, err := fileSchema(c)
	if err != nil {
		return nil, err
	}

	parts := make([]flatlake.Part, 0, len(order))
	for _, dir := range order {
		grouped := groups[dir]
		b, err := e.writeFile(schema, grouped, c)
		if err != nil {
			return nil, errors.Wrapf(err, "writing partition %q", dir)
		}
		parts = append(parts, flatlake.Part{Dir: dir, Bytes: b, Rows: int64(len(grouped))})
	}
	return parts, nil
}

// groupRows splits rows by partition value tuple. Group order is the
// order of first appearance, which keeps output deterministic for a
// deterministic row stream.
func groupRows(rows []flatlake.Row, keyIdx []int, keys []string) (map[string][]flatlake.Row, []string) {
	groups := make(map[string][]flatlake.Row)
	var order []string
	for _, row := range rows {
		frags := make([]string, len(keyIdx))
		for i, idx := range keyIdx {
			frags[i] = keys[i] + "=" + partitionValue(row[idx])
		}
		dir := strings.Join(frags, "/")
		if _, ok := groups[dir]; !ok {
			order = append(order, dir)
		}
		groups[dir] = append(groups[dir], row)
	}
	return groups, order
}

func partitionValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return hiveNullPartition
	case string:
		return url.PathEscape(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return url.PathEscape(x.UTC().Format(time.RFC3339))
	}
	return url.PathEscape(fmt.Sprint(v))
}

// writeFile serializes one row group into a complete Parquet file in
// memory. A single marshal goroutine keeps the byte layout stable across
// invocations over identical input.
func (e *Encoder) writeFile(schema string, rows []flatlake.Row, c *flatlake.Contract) ([]byte, error) {
	buf := &bytes.Buffer{}
	pf := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(schema, pf, 1)
	if err != nil {
		return nil, errors.Wrap(err, "creating writer")
	}
	pw.CompressionType = e.codec

	for _, row := range rows {
		rec := make(map[string]interface{}, len(c.Output))
		for i := range c.Output {
			rec[c.Output[i].Name] = fileValue(row[i])
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, errors.Wrap(err, "marshaling row")
		}
		if err := pw.Write(string(b)); err != nil {
			return nil, errors.Wrap(err, "writing row")
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, errors.Wrap(err, "closing writer")
	}
	return buf.Bytes(), nil
}

// fileValue maps engine values onto what the writer stores. Timestamps
// become epoch milliseconds to match their TIMESTAMP_MILLIS column.
func fileValue(v interface{}) interface{} {
	if t, ok := v.(time.Time); ok {
		return t.UnixMilli()
	}
	return v
}

// fileSchema renders the contract's output columns as the JSON schema
// parquet-go expects.
func fileSchema(c *flatlake.Contract) (string, error) {
	fields := make([]map[string]string, 0, len(c.Output))
	for i := range c.Output {
		col := &c.Output[i]
		tag, err := columnTag(col)
		if err != nil {
			return "", err
		}
		fields = append(fields, map[string]string{"Tag": tag})
	}
	root := map[string]interface{}{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, err := json.Marshal(root)
	if err != nil {
		return "", errors.Wrap(err, "marshaling schema")
	}
	return string(b), nil
}

func columnTag(col *flatlake.Column) (string, error) {
	var typ string
	switch col.Type {
	case flatlake.TypeString:
		typ = "type=BYTE_ARRAY, convertedtype=UTF8"
	case flatlake.TypeInt:
		typ = "type=INT64"
	case flatlake.TypeFloat:
		typ = "type=DOUBLE"
	case flatlake.TypeBool:
		typ = "type=BOOLEAN"
	case flatlake.TypeTime:
		typ = "type=INT64, convertedtype=TIMESTAMP_MILLIS"
	default:
		return "", flatlake.Errorf(flatlake.ErrEncoding, col.Name, "no parquet mapping for type %q", col.Type)
	}
	rep := "REQUIRED"
	if col.Nullable {
		rep = "OPTIONAL"
	}
	return fmt.Sprintf("name=%s, %s, repetitiontype=%s", col.Name, typ, rep), nil
}

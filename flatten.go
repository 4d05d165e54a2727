package flatlake

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// EmptyArrayPolicy decides what an exploded array of length zero
// produces.
type EmptyArrayPolicy string

const (
	// EmptyArraySkip emits zero rows for the record: no orphaned
	// parent-only row. The default.
	EmptyArraySkip EmptyArrayPolicy = "skip"
	// EmptyArrayNullRow emits one row whose array-derived columns are all
	// null - outer-join semantics. Requires those columns to be nullable.
	EmptyArrayNullRow EmptyArrayPolicy = "emitNullRow"
)

// MultiArrayPolicy decides how a contract with more than one array field
// is handled.
type MultiArrayPolicy string

const (
	// MultiArrayReject refuses such contracts at load time. The default:
	// one record explodes along at most one axis.
	MultiArrayReject MultiArrayPolicy = "reject"
	// MultiArrayCross explodes the cross product of all array fields, in
	// declared field order, outermost first.
	MultiArrayCross MultiArrayPolicy = "cross"
)

// FlattenOptions is the engine's configuration surface.
type FlattenOptions struct {
	StrictUnknownFields bool
	EmptyArrays         EmptyArrayPolicy
	MultiArrays         MultiArrayPolicy
}

// Flattener turns one parsed record into zero or more rows under a single
// contract. It holds no per-record state: Flatten is a pure function and
// safe for concurrent use.
type Flattener struct {
	contract *Contract
	opts     FlattenOptions

	baseBindings  []int
	arrayFields   []*Field
	arrayBindings map[string][]int
}

// NewFlattener compiles the contract and checks every structural property
// up front so that nothing shape-related can fail per record: flattened
// name collisions, unresolvable columns, the array-count policy, and the
// nullability demands of the emitNullRow policy.
func NewFlattener(c *Contract, opts FlattenOptions) (*Flattener, error) {
	if opts.EmptyArrays == "" {
		opts.EmptyArrays = EmptyArraySkip
	}
	if opts.MultiArrays == "" {
		opts.MultiArrays = MultiArrayReject
	}
	switch opts.EmptyArrays {
	case EmptyArraySkip, EmptyArrayNullRow:
	default:
		return nil, errors.Errorf("unknown empty-array policy %q", opts.EmptyArrays)
	}
	switch opts.MultiArrays {
	case MultiArrayReject, MultiArrayCross:
	default:
		return nil, errors.Errorf("unknown multi-array policy %q", opts.MultiArrays)
	}
	if err := c.Compile(); err != nil {
		return nil, errors.Wrap(err, "compiling contract")
	}

	f := &Flattener{
		contract:      c,
		opts:          opts,
		arrayBindings: map[string][]int{},
	}
	seen := map[string]bool{}
	for i := range c.comp.bindings {
		b := &c.comp.bindings[i]
		if !b.fromArray {
			f.baseBindings = append(f.baseBindings, i)
			continue
		}
		if !seen[b.array.Name] {
			seen[b.array.Name] = true
			f.arrayFields = append(f.arrayFields, b.array)
		}
		f.arrayBindings[b.array.Name] = append(f.arrayBindings[b.array.Name], i)
		if opts.EmptyArrays == EmptyArrayNullRow && !b.col.Nullable {
			return nil, newError(ErrUnsupportedShape, b.col.Name,
				"emitNullRow requires array-derived columns to be nullable")
		}
	}
	if len(f.arrayFields) > 1 && opts.MultiArrays == MultiArrayReject {
		return nil, newError(ErrUnsupportedShape, "",
			"contract %s explodes %d array fields; only one is supported under the reject policy",
			c.Version, len(f.arrayFields))
	}
	return f, nil
}

// Contract returns the compiled contract this flattener was built for.
func (f *Flattener) Contract() *Contract { return f.contract }

// Flatten validates rec against the contract and produces the flat rows.
// One record with a single bound array field of length N yields exactly N
// rows (0 under the skip policy when N is 0); the base columns are
// byte-identical across all of them. No partial output: any failure
// returns a nil row set.
func (f *Flattener) Flatten(rec Record) ([]Row, error) {
	c := f.contract
	if err := c.ValidateRecord(rec, f.opts.StrictUnknownFields); err != nil {
		return nil, err
	}

	base := make(Row, len(c.Output))
	for _, i := range f.baseBindings {
		b := &c.comp.bindings[i]
		v, err := coerceValue(lookup(rec, b.path), b.col, strings.Join(b.path, "."))
		if err != nil {
			return nil, err
		}
		base[i] = v
	}

	if len(f.arrayFields) == 0 {
		return []Row{base}, nil
	}

	// Elements per exploded array, with the empty-array policy applied. A
	// nil element stands for the all-null row of the emitNullRow policy.
	axes := make([][]interface{}, len(f.arrayFields))
	for ai, af := range f.arrayFields {
		elems, _ := rec[af.Name].([]interface{})
		if len(elems) == 0 {
			if f.opts.EmptyArrays == EmptyArraySkip {
				return nil, nil
			}
			elems = []interface{}{nil}
		}
		axes[ai] = elems
	}

	var rows []Row
	var emit func(depth int, row Row) error
	emit = func(depth int, row Row) error {
		if depth == len(f.arrayFields) {
			out := make(Row, len(row))
			copy(out, row)
			rows = append(rows, out)
			return nil
		}
		af := f.arrayFields[depth]
		for idx, ev := range axes[depth] {
			for _, bi := range f.arrayBindings[af.Name] {
				b := &c.comp.bindings[bi]
				var raw interface{}
				if elem, ok := ev.(map[string]interface{}); ok {
					raw = elem[b.elem]
				}
				path := fmt.Sprintf("%s[%d].%s", af.Name, idx, b.elem)
				v, err := coerceValue(raw, b.col, path)
				if err != nil {
					return err
				}
				row[bi] = v
			}
			if err := emit(depth+1, row); err != nil {
				return err
			}
		}
		return nil
	}
	if err := emit(0, base); err != nil {
		return nil, err
	}
	return rows, nil
}

// lookup walks a compiled source path into the record. Validation has
// already pinned the container kinds, so a missing level is just null.
func lookup(rec Record, path []string) interface{} {
	v := rec[path[0]]
	if len(path) == 1 {
		return v
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	return obj[path[1]]
}

package flatlake

import (
	"strings"
)

// Kind says whether an input field holds a scalar leaf, a nested object
// whose fields are projected into the parent row, or an array of objects
// which multiplies rows.
type Kind string

const (
	KindScalar Kind = "scalar"
	KindObject Kind = "object"
	KindArray  Kind = "array"
)

// ScalarType is the declared type of a leaf value. Output batches carry
// exactly these types; nothing is ever inferred from the data.
type ScalarType string

const (
	TypeString ScalarType = "string"
	TypeInt    ScalarType = "int"
	TypeFloat  ScalarType = "float"
	TypeBool   ScalarType = "bool"
	TypeTime   ScalarType = "timestamp"
)

// Field describes one input field. Object and array fields carry their
// element fields in Fields; those must all be scalar - the engine flattens
// exactly one level.
type Field struct {
	Name     string     `json:"name"`
	Kind     Kind       `json:"kind"`
	Nullable bool       `json:"nullable"`
	Scalar   ScalarType `json:"scalarType,omitempty"`
	Fields   []Field    `json:"fields,omitempty"`
}

// Column describes one output column. Source is the dot path of the input
// leaf it is derived from ("order_id", "customer.name", "products.price");
// when empty it defaults to Name. TimeLayout overrides the layout used to
// parse timestamp values, defaulting to RFC 3339.
type Column struct {
	Name       string     `json:"name"`
	Type       ScalarType `json:"type"`
	Nullable   bool       `json:"nullable"`
	Source     string     `json:"source,omitempty"`
	TimeLayout string     `json:"timeLayout,omitempty"`
}

// Contract is the versioned schema contract: the expected input shape and
// the exact output column set. Contracts are immutable once published -
// schema evolution means a new version, never a mutation.
type Contract struct {
	Version string   `json:"version"`
	Input   []Field  `json:"input"`
	Output  []Column `json:"output"`

	comp *compiledContract
}

// binding resolves one output column to the input leaf it reads from.
type binding struct {
	col       *Column
	path      []string
	fromArray bool
	array     *Field // set when fromArray
	elem      string // leaf name inside the array element
	leaf      *Field
}

type compiledContract struct {
	fields   map[string]*Field
	arrays   []*Field
	bindings []binding
	colIndex map[string]int
}

// Compile validates the contract's structure and caches the column
// bindings. It must be called once before the contract is used; every
// failure carries ErrUnsupportedShape. Compile is not safe for concurrent
// use - registries call it under their own lock before publishing the
// contract to callers.
func (c *Contract) Compile() error {
	if c.comp != nil {
		return nil
	}
	if c.Version == "" {
		return newError(ErrUnsupportedShape, "", "contract has no version")
	}
	if len(c.Output) == 0 {
		return newError(ErrUnsupportedShape, "", "contract %s declares no output columns", c.Version)
	}

	comp := &compiledContract{
		fields:   make(map[string]*Field, len(c.Input)),
		colIndex: make(map[string]int, len(c.Output)),
	}
	for i := range c.Input {
		f := &c.Input[i]
		if f.Name == "" {
			return newError(ErrUnsupportedShape, "", "contract %s: input field %d has no name", c.Version, i)
		}
		if _, dup := comp.fields[f.Name]; dup {
			return newError(ErrUnsupportedShape, f.Name, "duplicate input field")
		}
		switch f.Kind {
		case KindScalar:
			if err := checkScalarType(f.Name, f.Scalar); err != nil {
				return err
			}
		case KindObject, KindArray:
			if len(f.Fields) == 0 {
				return newError(ErrUnsupportedShape, f.Name, "%s field declares no element fields", f.Kind)
			}
			seen := map[string]bool{}
			for j := range f.Fields {
				sub := &f.Fields[j]
				path := f.Name + "." + sub.Name
				if sub.Kind != KindScalar {
					// one level of nesting only
					return newError(ErrUnsupportedShape, path, "nested %s fields are not supported", sub.Kind)
				}
				if seen[sub.Name] {
					return newError(ErrUnsupportedShape, path, "duplicate field")
				}
				seen[sub.Name] = true
				if err := checkScalarType(path, sub.Scalar); err != nil {
					return err
				}
			}
			if f.Kind == KindArray {
				comp.arrays = append(comp.arrays, f)
			}
		default:
			return newError(ErrUnsupportedShape, f.Name, "unknown field kind %q", f.Kind)
		}
		comp.fields[f.Name] = f
	}

	// Flattened-name collisions are a property of the contract, caught
	// here once rather than per record.
	if err := c.checkCollisions(); err != nil {
		return err
	}

	comp.bindings = make([]binding, len(c.Output))
	for i := range c.Output {
		col := &c.Output[i]
		if col.Name == "" {
			return newError(ErrUnsupportedShape, "", "contract %s: output column %d has no name", c.Version, i)
		}
		if _, dup := comp.colIndex[col.Name]; dup {
			return newError(ErrUnsupportedShape, col.Name, "duplicate output column")
		}
		comp.colIndex[col.Name] = i
		if err := checkScalarType(col.Name, col.Type); err != nil {
			return err
		}
		b, err := c.bind(comp, col)
		if err != nil {
			return err
		}
		comp.bindings[i] = b
	}

	c.comp = comp
	return nil
}

// bind resolves a column's source path to exactly one declared input leaf.
func (c *Contract) bind(comp *compiledContract, col *Column) (binding, error) {
	src := col.Source
	if src == "" {
		src = col.Name
	}
	path := strings.Split(src, ".")
	if len(path) > 2 {
		return binding{}, newError(ErrUnsupportedShape, src, "source paths deeper than one level are not supported")
	}
	f, ok := comp.fields[path[0]]
	if !ok {
		return binding{}, newError(ErrUnsupportedShape, src, "column %s is not derivable from any input field", col.Name)
	}
	b := binding{col: col, path: path, leaf: f}
	switch f.Kind {
	case KindScalar:
		if len(path) != 1 {
			return binding{}, newError(ErrUnsupportedShape, src, "field %s is scalar, not a container", path[0])
		}
	case KindObject, KindArray:
		if len(path) != 2 {
			return binding{}, newError(ErrUnsupportedShape, src, "column %s must name a field inside %s", col.Name, path[0])
		}
		leaf := findField(f.Fields, path[1])
		if leaf == nil {
			return binding{}, newError(ErrUnsupportedShape, src, "column %s is not derivable from any input field", col.Name)
		}
		b.leaf = leaf
		if f.Kind == KindArray {
			b.fromArray = true
			b.array = f
			b.elem = path[1]
		}
	}
	return b, nil
}

// checkCollisions derives a flattened name for every input leaf and fails
// when two distinct paths end up with the same name, e.g. a top level
// field literally named "customer.name" next to a customer object with a
// name field.
func (c *Contract) checkCollisions() error {
	seen := map[string]string{}
	for i := range c.Input {
		f := &c.Input[i]
		paths := [][]string{}
		if f.Kind == KindScalar {
			paths = append(paths, []string{f.Name})
		} else {
			for j := range f.Fields {
				paths = append(paths, []string{f.Name, f.Fields[j].Name})
			}
		}
		for _, p := range paths {
			name, err := DotNamer.Name(p)
			if err != nil {
				return newError(ErrUnsupportedShape, strings.Join(p, "."), "%v", err)
			}
			if prev, dup := seen[name]; dup {
				return newError(ErrUnsupportedShape, name, "flattened name collides with %s", prev)
			}
			seen[name] = strings.Join(p, ".")
		}
	}
	return nil
}

// ColumnIndex returns the position of the named output column, or -1.
func (c *Contract) ColumnIndex(name string) int {
	if c.comp == nil {
		return -1
	}
	i, ok := c.comp.colIndex[name]
	if !ok {
		return -1
	}
	return i
}

// ArrayFields returns the array-kind input fields in declared order.
func (c *Contract) ArrayFields() []*Field {
	if c.comp == nil {
		return nil
	}
	return c.comp.arrays
}

// DeriveColumns builds an output column set covering every input leaf,
// named by the given Namer. It is a contract-authoring aid: the derived
// set is a starting point to edit down, not something the engine ever
// computes on its own at transform time.
func (c *Contract) DeriveColumns(n Namer) ([]Column, error) {
	var cols []Column
	add := func(path []string, leaf *Field, nullable bool) error {
		name, err := n.Name(path)
		if err != nil {
			return newError(ErrUnsupportedShape, strings.Join(path, "."), "%v", err)
		}
		if name == "" {
			return nil
		}
		cols = append(cols, Column{
			Name:     name,
			Type:     leaf.Scalar,
			Nullable: nullable,
			Source:   strings.Join(path, "."),
		})
		return nil
	}
	for i := range c.Input {
		f := &c.Input[i]
		if f.Kind == KindScalar {
			if err := add([]string{f.Name}, f, f.Nullable); err != nil {
				return nil, err
			}
			continue
		}
		for j := range f.Fields {
			sub := &f.Fields[j]
			if err := add([]string{f.Name, sub.Name}, sub, f.Nullable || sub.Nullable); err != nil {
				return nil, err
			}
		}
	}
	return cols, nil
}

func checkScalarType(path string, t ScalarType) error {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeTime:
		return nil
	}
	return newError(ErrUnsupportedShape, path, "unknown scalar type %q", t)
}

func findField(fields []Field, name string) *Field {
	for i := range fields {
		if fields[i].Name == name {
			return &fields[i]
		}
	}
	return nil
}

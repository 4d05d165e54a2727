package flatlake_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flatlake/flatlake"
)

// orderContract is the canonical test contract: an order with three
// scalar fields, a nested customer object, and a products array. Five
// base columns, five product columns.
func orderContract() *flatlake.Contract {
	return &flatlake.Contract{
		Version: "orders-v1",
		Input: []flatlake.Field{
			{Name: "order_id", Kind: flatlake.KindScalar, Scalar: flatlake.TypeString},
			{Name: "order_date", Kind: flatlake.KindScalar, Scalar: flatlake.TypeTime},
			{Name: "total_amount", Kind: flatlake.KindScalar, Scalar: flatlake.TypeFloat},
			{Name: "customer", Kind: flatlake.KindObject, Fields: []flatlake.Field{
				{Name: "name", Kind: flatlake.KindScalar, Scalar: flatlake.TypeString},
				{Name: "email", Kind: flatlake.KindScalar, Scalar: flatlake.TypeString, Nullable: true},
			}},
			{Name: "products", Kind: flatlake.KindArray, Fields: []flatlake.Field{
				{Name: "product_id", Kind: flatlake.KindScalar, Scalar: flatlake.TypeString},
				{Name: "name", Kind: flatlake.KindScalar, Scalar: flatlake.TypeString},
				{Name: "price", Kind: flatlake.KindScalar, Scalar: flatlake.TypeFloat},
				{Name: "quantity", Kind: flatlake.KindScalar, Scalar: flatlake.TypeInt},
				{Name: "category", Kind: flatlake.KindScalar, Scalar: flatlake.TypeString, Nullable: true},
			}},
		},
		Output: []flatlake.Column{
			{Name: "order_id", Type: flatlake.TypeString},
			{Name: "order_date", Type: flatlake.TypeTime, TimeLayout: "2006-01-02"},
			{Name: "total_amount", Type: flatlake.TypeFloat},
			{Name: "customer_name", Type: flatlake.TypeString, Source: "customer.name"},
			{Name: "customer_email", Type: flatlake.TypeString, Nullable: true, Source: "customer.email"},
			{Name: "product_id", Type: flatlake.TypeString, Nullable: true, Source: "products.product_id"},
			{Name: "product_name", Type: flatlake.TypeString, Nullable: true, Source: "products.name"},
			{Name: "price", Type: flatlake.TypeFloat, Nullable: true, Source: "products.price"},
			{Name: "quantity", Type: flatlake.TypeInt, Nullable: true, Source: "products.quantity"},
			{Name: "category", Type: flatlake.TypeString, Nullable: true, Source: "products.category"},
		},
	}
}

const orderJSON = `{
	"order_id": "ord-1001",
	"order_date": "2024-11-05",
	"total_amount": 99.5,
	"customer": {"name": "Ada", "email": "ada@example.com"},
	"products": [
		{"product_id": "p-1", "name": "widget", "price": 19.5, "quantity": 2, "category": "tools"},
		{"product_id": "p-2", "name": "gadget", "price": 60.5, "quantity": 1}
	]
}`

func mustFlattener(t *testing.T, opts flatlake.FlattenOptions) *flatlake.Flattener {
	t.Helper()
	fl, err := flatlake.NewFlattener(orderContract(), opts)
	require.NoError(t, err)
	return fl
}

func TestFlattenExplodesArray(t *testing.T) {
	fl := mustFlattener(t, flatlake.FlattenOptions{})
	rec, err := flatlake.DecodeRecord([]byte(orderJSON))
	require.NoError(t, err)

	rows, err := fl.Flatten(rec)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	c := fl.Contract()
	for _, row := range rows {
		require.Len(t, row, len(c.Output))
		// base columns are duplicated identically across exploded rows
		require.Equal(t, "ord-1001", row[c.ColumnIndex("order_id")])
		require.Equal(t, time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC), row[c.ColumnIndex("order_date")])
		require.Equal(t, 99.5, row[c.ColumnIndex("total_amount")])
		require.Equal(t, "Ada", row[c.ColumnIndex("customer_name")])
		require.Equal(t, "ada@example.com", row[c.ColumnIndex("customer_email")])
	}
	require.Equal(t, "p-1", rows[0][c.ColumnIndex("product_id")])
	require.Equal(t, int64(2), rows[0][c.ColumnIndex("quantity")])
	require.Equal(t, "tools", rows[0][c.ColumnIndex("category")])
	require.Equal(t, "p-2", rows[1][c.ColumnIndex("product_id")])
	require.Equal(t, 60.5, rows[1][c.ColumnIndex("price")])
	require.Nil(t, rows[1][c.ColumnIndex("category")])
}

func TestFlattenRowCountLaw(t *testing.T) {
	fl := mustFlattener(t, flatlake.FlattenOptions{})
	for _, n := range []int{1, 3, 7} {
		rec, err := flatlake.DecodeRecord([]byte(orderJSON))
		require.NoError(t, err)
		products := make([]interface{}, n)
		for i := range products {
			products[i] = map[string]interface{}{
				"product_id": "p", "name": "x", "price": mustNumber("1.0"), "quantity": mustNumber("1"),
			}
		}
		rec["products"] = products
		rows, err := fl.Flatten(rec)
		require.NoError(t, err)
		require.Len(t, rows, n)
	}
}

func TestFlattenEmptyArrayPolicies(t *testing.T) {
	rec := func(t *testing.T) flatlake.Record {
		r, err := flatlake.DecodeRecord([]byte(orderJSON))
		require.NoError(t, err)
		r["products"] = []interface{}{}
		return r
	}

	t.Run("skip", func(t *testing.T) {
		fl := mustFlattener(t, flatlake.FlattenOptions{EmptyArrays: flatlake.EmptyArraySkip})
		rows, err := fl.Flatten(rec(t))
		require.NoError(t, err)
		require.Empty(t, rows)
	})

	t.Run("emitNullRow", func(t *testing.T) {
		fl := mustFlattener(t, flatlake.FlattenOptions{EmptyArrays: flatlake.EmptyArrayNullRow})
		rows, err := fl.Flatten(rec(t))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		c := fl.Contract()
		require.Equal(t, "ord-1001", rows[0][c.ColumnIndex("order_id")])
		for _, name := range []string{"product_id", "product_name", "price", "quantity", "category"} {
			require.Nil(t, rows[0][c.ColumnIndex(name)], name)
		}
	})
}

func TestEmitNullRowNeedsNullableColumns(t *testing.T) {
	c := orderContract()
	idx := -1
	for i := range c.Output {
		if c.Output[i].Name == "product_id" {
			idx = i
		}
	}
	c.Output[idx].Nullable = false

	_, err := flatlake.NewFlattener(c, flatlake.FlattenOptions{EmptyArrays: flatlake.EmptyArrayNullRow})
	require.Error(t, err)
	require.True(t, flatlake.HasCode(err, flatlake.ErrUnsupportedShape))
}

func TestFlattenNoArrayColumns(t *testing.T) {
	c := &flatlake.Contract{
		Version: "v1",
		Input: []flatlake.Field{
			{Name: "id", Kind: flatlake.KindScalar, Scalar: flatlake.TypeString},
			{Name: "meta", Kind: flatlake.KindObject, Fields: []flatlake.Field{
				{Name: "region", Kind: flatlake.KindScalar, Scalar: flatlake.TypeString},
			}},
		},
		Output: []flatlake.Column{
			{Name: "id", Type: flatlake.TypeString},
			{Name: "region", Type: flatlake.TypeString, Source: "meta.region"},
		},
	}
	fl, err := flatlake.NewFlattener(c, flatlake.FlattenOptions{})
	require.NoError(t, err)
	rec, err := flatlake.DecodeRecord([]byte(`{"id":"a","meta":{"region":"eu"}}`))
	require.NoError(t, err)
	rows, err := fl.Flatten(rec)
	require.NoError(t, err)
	// projection never changes the row count
	require.Len(t, rows, 1)
	require.Equal(t, flatlake.Row{"a", "eu"}, rows[0])
}

func multiArrayContract() *flatlake.Contract {
	return &flatlake.Contract{
		Version: "multi-v1",
		Input: []flatlake.Field{
			{Name: "id", Kind: flatlake.KindScalar, Scalar: flatlake.TypeString},
			{Name: "colors", Kind: flatlake.KindArray, Fields: []flatlake.Field{
				{Name: "name", Kind: flatlake.KindScalar, Scalar: flatlake.TypeString},
			}},
			{Name: "sizes", Kind: flatlake.KindArray, Fields: []flatlake.Field{
				{Name: "label", Kind: flatlake.KindScalar, Scalar: flatlake.TypeString},
			}},
		},
		Output: []flatlake.Column{
			{Name: "id", Type: flatlake.TypeString},
			{Name: "color", Type: flatlake.TypeString, Nullable: true, Source: "colors.name"},
			{Name: "size", Type: flatlake.TypeString, Nullable: true, Source: "sizes.label"},
		},
	}
}

func TestMultiArrayPolicies(t *testing.T) {
	t.Run("reject", func(t *testing.T) {
		_, err := flatlake.NewFlattener(multiArrayContract(), flatlake.FlattenOptions{})
		require.Error(t, err)
		require.True(t, flatlake.HasCode(err, flatlake.ErrUnsupportedShape))
	})

	t.Run("cross", func(t *testing.T) {
		fl, err := flatlake.NewFlattener(multiArrayContract(), flatlake.FlattenOptions{
			MultiArrays: flatlake.MultiArrayCross,
		})
		require.NoError(t, err)
		rec, err := flatlake.DecodeRecord([]byte(`{
			"id": "x",
			"colors": [{"name": "red"}, {"name": "blue"}],
			"sizes": [{"label": "S"}, {"label": "M"}, {"label": "L"}]
		}`))
		require.NoError(t, err)
		rows, err := fl.Flatten(rec)
		require.NoError(t, err)
		require.Len(t, rows, 6)
		// declared field order, outermost first
		require.Equal(t, flatlake.Row{"x", "red", "S"}, rows[0])
		require.Equal(t, flatlake.Row{"x", "red", "M"}, rows[1])
		require.Equal(t, flatlake.Row{"x", "blue", "S"}, rows[3])
		require.Equal(t, flatlake.Row{"x", "blue", "L"}, rows[5])
	})

	t.Run("cross with empty axis skips", func(t *testing.T) {
		fl, err := flatlake.NewFlattener(multiArrayContract(), flatlake.FlattenOptions{
			MultiArrays: flatlake.MultiArrayCross,
		})
		require.NoError(t, err)
		rec, err := flatlake.DecodeRecord([]byte(`{"id":"x","colors":[{"name":"red"}],"sizes":[]}`))
		require.NoError(t, err)
		rows, err := fl.Flatten(rec)
		require.NoError(t, err)
		require.Empty(t, rows)
	})
}

func TestFlattenRejections(t *testing.T) {
	fl := mustFlattener(t, flatlake.FlattenOptions{})

	t.Run("missing required scalar", func(t *testing.T) {
		rec, err := flatlake.DecodeRecord([]byte(orderJSON))
		require.NoError(t, err)
		delete(rec, "order_id")
		_, err = fl.Flatten(rec)
		require.True(t, flatlake.HasCode(err, flatlake.ErrSchemaMismatch), "got: %v", err)
	})

	t.Run("string where float is declared", func(t *testing.T) {
		rec, err := flatlake.DecodeRecord([]byte(orderJSON))
		require.NoError(t, err)
		rec["total_amount"] = "a lot"
		_, err = fl.Flatten(rec)
		require.True(t, flatlake.HasCode(err, flatlake.ErrTypeCoercion), "got: %v", err)
	})

	t.Run("fractional value in int column", func(t *testing.T) {
		rec, err := flatlake.DecodeRecord([]byte(orderJSON))
		require.NoError(t, err)
		products := rec["products"].([]interface{})
		products[0].(map[string]interface{})["quantity"] = mustNumber("2.5")
		_, err = fl.Flatten(rec)
		require.True(t, flatlake.HasCode(err, flatlake.ErrTypeCoercion), "got: %v", err)
	})

	t.Run("unparseable timestamp", func(t *testing.T) {
		rec, err := flatlake.DecodeRecord([]byte(orderJSON))
		require.NoError(t, err)
		rec["order_date"] = "november fifth"
		_, err = fl.Flatten(rec)
		require.True(t, flatlake.HasCode(err, flatlake.ErrTypeCoercion), "got: %v", err)
	})

	t.Run("array where scalar is declared", func(t *testing.T) {
		rec, err := flatlake.DecodeRecord([]byte(orderJSON))
		require.NoError(t, err)
		rec["order_id"] = []interface{}{"a"}
		_, err = fl.Flatten(rec)
		require.True(t, flatlake.HasCode(err, flatlake.ErrSchemaMismatch), "got: %v", err)
	})

	t.Run("no partial output on late failure", func(t *testing.T) {
		rec, err := flatlake.DecodeRecord([]byte(orderJSON))
		require.NoError(t, err)
		// second element is broken; the first must not leak out
		products := rec["products"].([]interface{})
		products[1].(map[string]interface{})["price"] = "free"
		rows, err := fl.Flatten(rec)
		require.Error(t, err)
		require.Nil(t, rows)
	})
}

func TestStrictUnknownFields(t *testing.T) {
	withExtra := `{
		"order_id": "ord-1", "order_date": "2024-01-01", "total_amount": 1,
		"customer": {"name": "Ada"},
		"products": [{"product_id": "p", "name": "x", "price": 1, "quantity": 1}],
		"surprise": true
	}`

	t.Run("permissive ignores extras", func(t *testing.T) {
		fl := mustFlattener(t, flatlake.FlattenOptions{})
		rec, err := flatlake.DecodeRecord([]byte(withExtra))
		require.NoError(t, err)
		rows, err := fl.Flatten(rec)
		require.NoError(t, err)
		require.Len(t, rows, 1)
	})

	t.Run("strict rejects extras", func(t *testing.T) {
		fl := mustFlattener(t, flatlake.FlattenOptions{StrictUnknownFields: true})
		rec, err := flatlake.DecodeRecord([]byte(withExtra))
		require.NoError(t, err)
		_, err = fl.Flatten(rec)
		require.True(t, flatlake.HasCode(err, flatlake.ErrSchemaMismatch), "got: %v", err)
	})

	t.Run("strict rejects extras inside elements", func(t *testing.T) {
		fl := mustFlattener(t, flatlake.FlattenOptions{StrictUnknownFields: true})
		rec, err := flatlake.DecodeRecord([]byte(orderJSON))
		require.NoError(t, err)
		products := rec["products"].([]interface{})
		products[0].(map[string]interface{})["stock"] = mustNumber("3")
		_, err = fl.Flatten(rec)
		require.True(t, flatlake.HasCode(err, flatlake.ErrSchemaMismatch), "got: %v", err)
	})
}

func TestFlattenIsDeterministic(t *testing.T) {
	fl := mustFlattener(t, flatlake.FlattenOptions{})
	rec1, err := flatlake.DecodeRecord([]byte(orderJSON))
	require.NoError(t, err)
	rec2, err := flatlake.DecodeRecord([]byte(orderJSON))
	require.NoError(t, err)

	rows1, err := fl.Flatten(rec1)
	require.NoError(t, err)
	rows2, err := fl.Flatten(rec2)
	require.NoError(t, err)
	require.Equal(t, rows1, rows2)
}

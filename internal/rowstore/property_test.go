package rowstore

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_UpdateTouchesOnlyNamedFields validates that for any subset
// of mutable fields, Update changes exactly that subset and leaves every
// other field identical.
func TestProperty_UpdateTouchesOnlyNamedFields(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	mutable := []string{"businessId", "itemName", "price", "inStock"}

	properties.Property("untouched fields survive partial updates", prop.ForAll(
		func(mask []bool, name string, price int, inStock bool) bool {
			s, err := Open(Options{Name: "items", Schema: itemSchema(), IDPrefix: "itm"})
			if err != nil {
				return false
			}
			id, err := s.Append(Record{
				"businessId": "t1",
				"itemName":   "original",
				"price":      10,
				"inStock":    true,
			})
			if err != nil {
				return false
			}
			before, err := s.Get(id)
			if err != nil {
				return false
			}

			fresh := Record{
				"businessId": "t2",
				"itemName":   name,
				"price":      price,
				"inStock":    inStock,
			}
			partial := Record{}
			for i, field := range mutable {
				if i < len(mask) && mask[i] {
					partial[field] = fresh[field]
				}
			}
			if err := s.Update(id, partial); err != nil {
				return false
			}

			after, err := s.Get(id)
			if err != nil {
				return false
			}
			for _, field := range mutable {
				if _, touched := partial[field]; touched {
					if !reflect.DeepEqual(after[field], partial[field]) {
						return false
					}
				} else if !reflect.DeepEqual(after[field], before[field]) {
					return false
				}
			}
			return after["itemId"] == id
		},
		gen.SliceOfN(4, gen.Bool()),
		gen.AlphaString(),
		gen.IntRange(0, 100000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

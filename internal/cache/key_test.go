package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"parts only", NewKey("product", "42"), "product/42"},
		{"params sorted", NewKey("products").With("page", "1").With("category", "Beverages"), "products?category=Beverages&page=1"},
		{"empty param dropped", NewKey("products").With("search", ""), "products"},
		{"escaped", NewKey("products").With("search", "cold brew&tea"), "products?search=cold+brew%26tea"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())
		})
	}
}

func TestKey_WithDoesNotMutateReceiver(t *testing.T) {
	base := NewKey("products").With("page", "1")

	_ = base.With("category", "Beverages")

	assert.Equal(t, "products?page=1", base.String())
}

func TestKey_DistinctFiltersAreDistinctKeys(t *testing.T) {
	all := NewKey("products").With("page", "1")
	beverages := all.With("category", "Beverages")

	assert.NotEqual(t, all.String(), beverages.String())
	assert.NotEqual(t, beverages.String(), all.With("category", "Snacks").String())
}

func TestKey_Matches(t *testing.T) {
	list := NewKey("products").With("category", "Beverages").With("page", "2")

	assert.True(t, list.Matches(NewKey("products")))
	assert.True(t, list.Matches(NewKey("products").With("category", "Beverages")))
	assert.False(t, list.Matches(NewKey("products").With("category", "Snacks")))
	assert.False(t, list.Matches(NewKey("product")))
	assert.False(t, list.Matches(Key{}))

	detail := NewKey("product", "42")
	assert.True(t, detail.Matches(NewKey("product", "42")))
	assert.True(t, detail.Matches(NewKey("product")))
	assert.False(t, detail.Matches(NewKey("product", "43")))
	assert.False(t, NewKey("product").Matches(detail))
}

func TestKey_Resource(t *testing.T) {
	assert.Equal(t, "templates", NewKey("templates").With("format", "story").Resource())
	assert.Equal(t, "", Key{}.Resource())
	assert.Equal(t, "Beverages", NewKey("products").With("category", "Beverages").Param("category"))
}

package cache

import (
	"net/url"
	"slices"
	"strings"
)

// Key identifies a cached query: resource path parts plus filter params.
// Distinct param combinations are distinct keys. The zero Key matches nothing.
type Key struct {
	parts  []string
	params map[string]string
}

// NewKey builds a key from resource path parts, e.g. NewKey("product", "42").
func NewKey(parts ...string) Key {
	return Key{parts: slices.Clone(parts)}
}

// With returns a copy of k with the filter param set. Empty values are
// dropped, so an unset filter and an empty one share a key.
func (k Key) With(name, value string) Key {
	params := make(map[string]string, len(k.params)+1)
	for n, v := range k.params {
		params[n] = v
	}
	if value == "" {
		delete(params, name)
	} else {
		params[name] = value
	}
	return Key{parts: k.parts, params: params}
}

// Resource is the first part of the key, used as a bounded metrics label.
func (k Key) Resource() string {
	if len(k.parts) == 0 {
		return ""
	}
	return k.parts[0]
}

// Parts returns a copy of the key's path parts.
func (k Key) Parts() []string {
	return slices.Clone(k.parts)
}

// Param returns the value of a filter param.
func (k Key) Param(name string) string {
	return k.params[name]
}

// String renders the canonical form, e.g. "products?category=Beverages&page=1".
func (k Key) String() string {
	var b strings.Builder
	for i, p := range k.parts {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(url.PathEscape(p))
	}
	if len(k.params) > 0 {
		q := make(url.Values, len(k.params))
		for n, v := range k.params {
			q.Set(n, v)
		}
		b.WriteByte('?')
		// Encode sorts by name
		b.WriteString(q.Encode())
	}
	return b.String()
}

// Matches reports whether k falls under prefix: prefix's parts lead k's
// parts and every param on prefix has the same value on k.
func (k Key) Matches(prefix Key) bool {
	if len(prefix.parts) == 0 || len(prefix.parts) > len(k.parts) {
		return false
	}
	for i, p := range prefix.parts {
		if k.parts[i] != p {
			return false
		}
	}
	for n, v := range prefix.params {
		if k.params[n] != v {
			return false
		}
	}
	return true
}

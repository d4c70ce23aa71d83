// Package resource provides the typed queries and mutations every dashboard
// screen uses. Reads go through the query cache; writes go through
// cache.Mutate so the keys they affect are invalidated only after the API
// confirms them.
package resource

import (
	"context"
	"io"
	"net/url"
	"strconv"

	"postraft-facade/internal/cache"
	"postraft-facade/internal/validation"
)

// API is the part of the API client the services use.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string) error
	Upload(ctx context.Context, path, field, filename string, r io.Reader, out any) error
}

// Services bundles every resource service over one cache and client.
type Services struct {
	Products  *Products
	Templates *Templates
	Posters   *Posters
	Dashboard *Dashboard
}

// New wires the services.
func New(c *cache.Cache, api API) *Services {
	v := validation.New()
	products := &Products{cache: c, api: api, validate: v}
	templates := &Templates{cache: c, api: api, validate: v}
	posters := &Posters{cache: c, api: api, validate: v}
	return &Services{
		Products:  products,
		Templates: templates,
		Posters:   posters,
		Dashboard: &Dashboard{products: products, templates: templates, posters: posters},
	}
}

func id(n int64) string {
	return strconv.FormatInt(n, 10)
}

// positive renders n for a query string, or "" to leave the param out.
func positive(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// withParams sets every non-empty value of params on key and query alike,
// so the cache key and the request can never disagree.
func withParams(key cache.Key, params [][2]string) (cache.Key, url.Values) {
	q := url.Values{}
	for _, p := range params {
		if p[1] == "" {
			continue
		}
		key = key.With(p[0], p[1])
		q.Set(p[0], p[1])
	}
	return key, q
}

package resource

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"postraft-facade/internal/domain"
)

// Dashboard section names.
const (
	SectionStats     = "stats"
	SectionProducts  = "products"
	SectionTemplates = "templates"
	SectionPosters   = "posters"
)

// overviewPageSize is how many recent products and posters the overview shows.
const overviewPageSize = 5

// Overview is the dashboard landing page. A section that failed to load is
// left empty and its error is reported in Errors.
type Overview struct {
	Stats          *domain.GenerationStats `json:"stats,omitempty"`
	ProductTotal   int                     `json:"product_total"`
	RecentProducts []domain.Product        `json:"recent_products"`
	TemplateCount  int                     `json:"template_count"`
	PosterTotal    int                     `json:"poster_total"`
	RecentPosters  []domain.Poster         `json:"recent_posters"`
	Errors         map[string]error        `json:"-"`
}

// Failed reports whether any section failed.
func (o *Overview) Failed() bool {
	return len(o.Errors) > 0
}

// Dashboard assembles the overview from the other services' cached queries.
type Dashboard struct {
	products  *Products
	templates *Templates
	posters   *Posters
}

// Overview loads every section concurrently. It only fails as a whole when
// every section failed or the session was rejected.
func (d *Dashboard) Overview(ctx context.Context) (*Overview, error) {
	o := &Overview{
		RecentProducts: []domain.Product{},
		RecentPosters:  []domain.Poster{},
		Errors:         map[string]error{},
	}
	var mu sync.Mutex
	record := func(section string, err error) {
		mu.Lock()
		o.Errors[section] = err
		mu.Unlock()
	}

	// Sections never return errors to the group, so one failure does not
	// cancel the others.
	var g errgroup.Group
	g.Go(func() error {
		stats, err := d.posters.Stats(ctx)
		if err != nil {
			record(SectionStats, err)
			return nil
		}
		mu.Lock()
		o.Stats = stats
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		page, err := d.products.List(ctx, ProductFilter{Page: 1, PerPage: overviewPageSize})
		if err != nil {
			record(SectionProducts, err)
			return nil
		}
		mu.Lock()
		o.ProductTotal = page.Total
		o.RecentProducts = page.Products
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		templates, err := d.templates.List(ctx, "")
		if err != nil {
			record(SectionTemplates, err)
			return nil
		}
		mu.Lock()
		o.TemplateCount = len(templates)
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		page, err := d.posters.List(ctx, PosterFilter{Page: 1, PerPage: overviewPageSize})
		if err != nil {
			record(SectionPosters, err)
			return nil
		}
		mu.Lock()
		o.PosterTotal = page.Total
		o.RecentPosters = page.Posters
		mu.Unlock()
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range o.Errors {
		if domain.KindOf(err) == domain.KindAuth {
			return nil, err
		}
	}
	if len(o.Errors) == 4 {
		return nil, o.Errors[SectionProducts]
	}
	if o.RecentProducts == nil {
		o.RecentProducts = []domain.Product{}
	}
	if o.RecentPosters == nil {
		o.RecentPosters = []domain.Poster{}
	}
	return o, nil
}

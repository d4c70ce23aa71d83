package resource

import (
	"context"
	"net/url"
	"strconv"

	"postraft-facade/internal/cache"
	"postraft-facade/internal/domain"
	"postraft-facade/internal/validation"
)

// Cache key prefixes for posters.
var (
	PostersKey     = cache.NewKey("posters")
	PosterStatsKey = cache.NewKey("poster-stats")
)

// PosterKey is the cache key of one poster.
func PosterKey(posterID int64) cache.Key {
	return cache.NewKey("poster", id(posterID))
}

// JobKey is the cache key of a generation job's status.
func JobKey(jobID string) cache.Key {
	return cache.NewKey("poster-job", jobID)
}

// PosterFilter selects a page of posters.
type PosterFilter struct {
	ProductID  int64
	TemplateID int64
	CampaignID int64
	Status     domain.PosterStatus
	Page       int
	PerPage    int
}

func (f PosterFilter) request() (cache.Key, url.Values) {
	ref := func(n int64) string {
		if n <= 0 {
			return ""
		}
		return id(n)
	}
	return withParams(PostersKey, [][2]string{
		{"product_id", ref(f.ProductID)},
		{"template_id", ref(f.TemplateID)},
		{"campaign_id", ref(f.CampaignID)},
		{"status", string(f.Status)},
		{"page", positive(f.Page)},
		{"per_page", positive(f.PerPage)},
	})
}

// Posters reads generated posters and queues new generations.
type Posters struct {
	cache    *cache.Cache
	api      API
	validate *validation.Validator
}

func (p *Posters) listFetcher(f PosterFilter) (cache.Key, cache.Fetcher[*domain.PosterPage]) {
	key, q := f.request()
	return key, func(ctx context.Context) (*domain.PosterPage, error) {
		var page domain.PosterPage
		if err := p.api.Get(ctx, "/posters", q, &page); err != nil {
			return nil, err
		}
		return &page, nil
	}
}

// List returns one page of posters matching f.
func (p *Posters) List(ctx context.Context, f PosterFilter) (*domain.PosterPage, error) {
	key, fetch := p.listFetcher(f)
	return cache.Fetch(ctx, p.cache, key, fetch)
}

// ObserveList mounts a view on one page of posters.
func (p *Posters) ObserveList(f PosterFilter) *cache.Observer[*domain.PosterPage] {
	key, fetch := p.listFetcher(f)
	return cache.Observe(p.cache, key, fetch)
}

// Get returns one poster.
func (p *Posters) Get(ctx context.Context, posterID int64) (*domain.Poster, error) {
	return cache.Fetch(ctx, p.cache, PosterKey(posterID), func(ctx context.Context) (*domain.Poster, error) {
		var poster domain.Poster
		if err := p.api.Get(ctx, "/posters/"+id(posterID), nil, &poster); err != nil {
			return nil, err
		}
		return &poster, nil
	})
}

// Delete removes a poster.
func (p *Posters) Delete(ctx context.Context, posterID int64) error {
	_, err := cache.Mutate(ctx, p.cache, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.api.Delete(ctx, "/posters/"+id(posterID))
	}, cache.MutateOptions{
		Invalidates:    []cache.Key{PostersKey, PosterKey(posterID), PosterStatsKey},
		SuccessMessage: "Poster deleted successfully",
		ErrorMessage:   "Failed to delete poster",
	})
	return err
}

// Generate queues poster generation for products with one template.
func (p *Posters) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationJob, error) {
	return cache.Mutate(ctx, p.cache, func(ctx context.Context) (*domain.GenerationJob, error) {
		if err := p.validate.Validate(req); err != nil {
			return nil, err
		}
		var job domain.GenerationJob
		if err := p.api.Post(ctx, "/posters/generate", req, &job); err != nil {
			return nil, err
		}
		return &job, nil
	}, cache.MutateOptions{
		Invalidates:    []cache.Key{PostersKey, PosterStatsKey},
		SuccessMessage: queuedMessage(len(req.ProductIDs)),
		ErrorMessage:   "Failed to queue poster generation",
	})
}

func queuedMessage(n int) string {
	if n == 1 {
		return "Poster queued for generation"
	}
	return strconv.Itoa(n) + " posters queued for generation"
}

// JobStatus polls a generation job. Job state changes quickly, so it is
// always refetched.
func (p *Posters) JobStatus(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	return cache.Fetch(ctx, p.cache, JobKey(jobID), func(ctx context.Context) (*domain.JobStatus, error) {
		var status domain.JobStatus
		if err := p.api.Get(ctx, "/posters/job/"+url.PathEscape(jobID), nil, &status); err != nil {
			return nil, err
		}
		return &status, nil
	}, cache.WithStaleTime(0))
}

func (p *Posters) statsFetcher() cache.Fetcher[*domain.GenerationStats] {
	return func(ctx context.Context) (*domain.GenerationStats, error) {
		var stats domain.GenerationStats
		if err := p.api.Get(ctx, "/posters/stats", nil, &stats); err != nil {
			return nil, err
		}
		return &stats, nil
	}
}

// Stats returns the user's monthly generation usage.
func (p *Posters) Stats(ctx context.Context) (*domain.GenerationStats, error) {
	return cache.Fetch(ctx, p.cache, PosterStatsKey, p.statsFetcher())
}

// ObserveStats mounts a view on the generation quota.
func (p *Posters) ObserveStats() *cache.Observer[*domain.GenerationStats] {
	return cache.Observe(p.cache, PosterStatsKey, p.statsFetcher())
}

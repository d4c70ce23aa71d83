package resource

import (
	"context"

	"postraft-facade/internal/cache"
	"postraft-facade/internal/domain"
	"postraft-facade/internal/validation"
)

// TemplatesKey is the prefix of every template list key.
var TemplatesKey = cache.NewKey("templates")

// TemplateKey is the cache key of one template.
func TemplateKey(templateID int64) cache.Key {
	return cache.NewKey("template", id(templateID))
}

// Templates reads and writes poster templates.
type Templates struct {
	cache    *cache.Cache
	api      API
	validate *validation.Validator
}

func (t *Templates) listFetcher(format domain.TemplateFormat) (cache.Key, cache.Fetcher[[]domain.Template]) {
	key, q := withParams(TemplatesKey, [][2]string{{"format", string(format)}})
	return key, func(ctx context.Context) ([]domain.Template, error) {
		var list domain.TemplateList
		if err := t.api.Get(ctx, "/templates", q, &list); err != nil {
			return nil, err
		}
		if list.Templates == nil {
			list.Templates = []domain.Template{}
		}
		return list.Templates, nil
	}
}

// List returns system and user templates, optionally of one format.
func (t *Templates) List(ctx context.Context, format domain.TemplateFormat) ([]domain.Template, error) {
	key, fetch := t.listFetcher(format)
	return cache.Fetch(ctx, t.cache, key, fetch)
}

// ObserveList mounts a view on the template list.
func (t *Templates) ObserveList(format domain.TemplateFormat) *cache.Observer[[]domain.Template] {
	key, fetch := t.listFetcher(format)
	return cache.Observe(t.cache, key, fetch)
}

func (t *Templates) getFetcher(templateID int64) cache.Fetcher[*domain.Template] {
	return func(ctx context.Context) (*domain.Template, error) {
		var tpl domain.Template
		if err := t.api.Get(ctx, "/templates/"+id(templateID), nil, &tpl); err != nil {
			return nil, err
		}
		return &tpl, nil
	}
}

// Get returns one template.
func (t *Templates) Get(ctx context.Context, templateID int64) (*domain.Template, error) {
	return cache.Fetch(ctx, t.cache, TemplateKey(templateID), t.getFetcher(templateID))
}

// ObserveTemplate mounts a view on one template.
func (t *Templates) ObserveTemplate(templateID int64) *cache.Observer[*domain.Template] {
	return cache.Observe(t.cache, TemplateKey(templateID), t.getFetcher(templateID))
}

// Create adds a user template.
func (t *Templates) Create(ctx context.Context, in domain.TemplateInput) (*domain.Template, error) {
	return cache.Mutate(ctx, t.cache, func(ctx context.Context) (*domain.Template, error) {
		if err := t.validate.Validate(in); err != nil {
			return nil, err
		}
		var created domain.Template
		if err := t.api.Post(ctx, "/templates", in, &created); err != nil {
			return nil, err
		}
		return &created, nil
	}, cache.MutateOptions{
		Invalidates:    []cache.Key{TemplatesKey},
		SuccessMessage: "Template created successfully",
		ErrorMessage:   "Failed to create template",
	})
}

// Update replaces a user template. System templates are rejected by the API.
func (t *Templates) Update(ctx context.Context, templateID int64, in domain.TemplateInput) (*domain.Template, error) {
	return cache.Mutate(ctx, t.cache, func(ctx context.Context) (*domain.Template, error) {
		if err := t.validate.Validate(in); err != nil {
			return nil, err
		}
		var updated domain.Template
		if err := t.api.Put(ctx, "/templates/"+id(templateID), in, &updated); err != nil {
			return nil, err
		}
		return &updated, nil
	}, cache.MutateOptions{
		Invalidates:    []cache.Key{TemplatesKey, TemplateKey(templateID)},
		SuccessMessage: "Template updated successfully",
		ErrorMessage:   "Failed to update template",
	})
}

// Delete removes a user template.
func (t *Templates) Delete(ctx context.Context, templateID int64) error {
	_, err := cache.Mutate(ctx, t.cache, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.api.Delete(ctx, "/templates/"+id(templateID))
	}, cache.MutateOptions{
		Invalidates:    []cache.Key{TemplatesKey, TemplateKey(templateID)},
		SuccessMessage: "Template deleted successfully",
		ErrorMessage:   "Failed to delete template",
	})
	return err
}

// Duplicate copies a template, system or not, into the user's templates.
func (t *Templates) Duplicate(ctx context.Context, templateID int64) (*domain.Template, error) {
	return cache.Mutate(ctx, t.cache, func(ctx context.Context) (*domain.Template, error) {
		var copied domain.Template
		if err := t.api.Post(ctx, "/templates/"+id(templateID)+"/duplicate", nil, &copied); err != nil {
			return nil, err
		}
		return &copied, nil
	}, cache.MutateOptions{
		Invalidates:    []cache.Key{TemplatesKey},
		SuccessMessage: "Template duplicated successfully",
		ErrorMessage:   "Failed to duplicate template",
	})
}

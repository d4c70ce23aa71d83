package resource

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"postraft-facade/internal/cache"
	"postraft-facade/internal/domain"
	"postraft-facade/internal/validation"
)

// MaxBulkProducts is the most products one bulk request may carry.
const MaxBulkProducts = 100

// Cache key prefixes for products.
var (
	ProductsKey   = cache.NewKey("products")
	CategoriesKey = cache.NewKey("product-categories")
)

// ProductKey is the cache key of one product.
func ProductKey(productID int64) cache.Key {
	return cache.NewKey("product", id(productID))
}

// ProductFilter selects a page of products. Zero values are left to the API defaults.
type ProductFilter struct {
	Category string
	Search   string
	Page     int
	PerPage  int
}

func (f ProductFilter) request() (cache.Key, url.Values) {
	return withParams(ProductsKey, [][2]string{
		{"category", f.Category},
		{"search", f.Search},
		{"page", positive(f.Page)},
		{"per_page", positive(f.PerPage)},
	})
}

// Products reads and writes the product catalogue.
type Products struct {
	cache    *cache.Cache
	api      API
	validate *validation.Validator
}

func (p *Products) listFetcher(f ProductFilter) (cache.Key, cache.Fetcher[*domain.ProductPage]) {
	key, q := f.request()
	return key, func(ctx context.Context) (*domain.ProductPage, error) {
		var page domain.ProductPage
		if err := p.api.Get(ctx, "/products", q, &page); err != nil {
			return nil, err
		}
		return &page, nil
	}
}

// List returns one page of products matching f.
func (p *Products) List(ctx context.Context, f ProductFilter) (*domain.ProductPage, error) {
	key, fetch := p.listFetcher(f)
	return cache.Fetch(ctx, p.cache, key, fetch)
}

// ObserveList mounts a view on one page of products.
func (p *Products) ObserveList(f ProductFilter) *cache.Observer[*domain.ProductPage] {
	key, fetch := p.listFetcher(f)
	return cache.Observe(p.cache, key, fetch)
}

func (p *Products) getFetcher(productID int64) cache.Fetcher[*domain.Product] {
	return func(ctx context.Context) (*domain.Product, error) {
		var product domain.Product
		if err := p.api.Get(ctx, "/products/"+id(productID), nil, &product); err != nil {
			return nil, err
		}
		return &product, nil
	}
}

// Get returns one product.
func (p *Products) Get(ctx context.Context, productID int64) (*domain.Product, error) {
	return cache.Fetch(ctx, p.cache, ProductKey(productID), p.getFetcher(productID))
}

// ObserveProduct mounts a view on one product.
func (p *Products) ObserveProduct(productID int64) *cache.Observer[*domain.Product] {
	return cache.Observe(p.cache, ProductKey(productID), p.getFetcher(productID))
}

func (p *Products) categoriesFetcher() cache.Fetcher[[]string] {
	return func(ctx context.Context) ([]string, error) {
		var list domain.CategoryList
		if err := p.api.Get(ctx, "/products/categories", nil, &list); err != nil {
			return nil, err
		}
		if list.Categories == nil {
			list.Categories = []string{}
		}
		return list.Categories, nil
	}
}

// Categories returns the distinct product categories.
func (p *Products) Categories(ctx context.Context) ([]string, error) {
	return cache.Fetch(ctx, p.cache, CategoriesKey, p.categoriesFetcher())
}

// ObserveCategories mounts a view on the category list.
func (p *Products) ObserveCategories() *cache.Observer[[]string] {
	return cache.Observe(p.cache, CategoriesKey, p.categoriesFetcher())
}

// Create adds a product. The product lists and categories are refetched.
func (p *Products) Create(ctx context.Context, in domain.ProductInput) (*domain.Product, error) {
	return cache.Mutate(ctx, p.cache, func(ctx context.Context) (*domain.Product, error) {
		if err := p.validate.Validate(in); err != nil {
			return nil, err
		}
		var created domain.Product
		if err := p.api.Post(ctx, "/products", in, &created); err != nil {
			return nil, err
		}
		return &created, nil
	}, cache.MutateOptions{
		Invalidates:    []cache.Key{ProductsKey, CategoriesKey},
		SuccessMessage: "Product created successfully",
		ErrorMessage:   "Failed to create product",
	})
}

// Update replaces a product's fields.
func (p *Products) Update(ctx context.Context, productID int64, in domain.ProductInput) (*domain.Product, error) {
	return cache.Mutate(ctx, p.cache, func(ctx context.Context) (*domain.Product, error) {
		if err := p.validate.Validate(in); err != nil {
			return nil, err
		}
		var updated domain.Product
		if err := p.api.Put(ctx, "/products/"+id(productID), in, &updated); err != nil {
			return nil, err
		}
		return &updated, nil
	}, cache.MutateOptions{
		Invalidates:    []cache.Key{ProductsKey, ProductKey(productID), CategoriesKey},
		SuccessMessage: "Product updated successfully",
		ErrorMessage:   "Failed to update product",
	})
}

// Delete removes a product. On success the record and every list are
// refetched; on failure cached lists still contain it.
func (p *Products) Delete(ctx context.Context, productID int64) error {
	_, err := cache.Mutate(ctx, p.cache, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.api.Delete(ctx, "/products/"+id(productID))
	}, cache.MutateOptions{
		Invalidates:    []cache.Key{ProductsKey, ProductKey(productID), CategoriesKey},
		SuccessMessage: "Product deleted successfully",
		ErrorMessage:   "Failed to delete product",
	})
	return err
}

// UploadImage attaches an image to a product. Both the product and the
// product lists are refetched.
func (p *Products) UploadImage(ctx context.Context, productID int64, filename string, r io.Reader) (*domain.ImageUpload, error) {
	return cache.Mutate(ctx, p.cache, func(ctx context.Context) (*domain.ImageUpload, error) {
		if err := p.validate.Var("image", filename, "required"); err != nil {
			return nil, err
		}
		var uploaded domain.ImageUpload
		if err := p.api.Upload(ctx, "/products/"+id(productID)+"/image", "image", filename, r, &uploaded); err != nil {
			return nil, err
		}
		return &uploaded, nil
	}, cache.MutateOptions{
		Invalidates:    []cache.Key{ProductsKey, ProductKey(productID)},
		SuccessMessage: "Image uploaded successfully",
		ErrorMessage:   "Failed to upload image",
	})
}

// BulkCreate adds up to MaxBulkProducts products. Rows the API rejects are
// reported in the result, not as an error.
func (p *Products) BulkCreate(ctx context.Context, in []domain.ProductInput) (*domain.BulkProductResult, error) {
	return cache.Mutate(ctx, p.cache, func(ctx context.Context) (*domain.BulkProductResult, error) {
		if len(in) == 0 {
			return nil, domain.NewValidationError(map[string]string{"products": "products is required"})
		}
		if len(in) > MaxBulkProducts {
			return nil, domain.NewValidationError(map[string]string{
				"products": fmt.Sprintf("at most %d products per request", MaxBulkProducts),
			})
		}
		var result domain.BulkProductResult
		body := map[string][]domain.ProductInput{"products": in}
		if err := p.api.Post(ctx, "/products/bulk", body, &result); err != nil {
			return nil, err
		}
		return &result, nil
	}, cache.MutateOptions{
		Invalidates:    []cache.Key{ProductsKey, CategoriesKey},
		SuccessMessage: "Products imported",
		ErrorMessage:   "Bulk creation failed",
	})
}

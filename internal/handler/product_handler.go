package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"postraft-facade/internal/domain"
	"postraft-facade/internal/resource"
)

// maxImageBytes bounds product image uploads.
const maxImageBytes = 10 << 20

// ProductService is the product catalogue as seen by the facade.
type ProductService interface {
	List(ctx context.Context, f resource.ProductFilter) (*domain.ProductPage, error)
	Get(ctx context.Context, productID int64) (*domain.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, in domain.ProductInput) (*domain.Product, error)
	Update(ctx context.Context, productID int64, in domain.ProductInput) (*domain.Product, error)
	Delete(ctx context.Context, productID int64) error
	UploadImage(ctx context.Context, productID int64, filename string, r io.Reader) (*domain.ImageUpload, error)
	BulkCreate(ctx context.Context, in []domain.ProductInput) (*domain.BulkProductResult, error)
}

// ProductHandler serves /v1/products.
type ProductHandler struct {
	products ProductService
	logger   *slog.Logger
}

// NewProductHandler creates a new product handler.
func NewProductHandler(products ProductService, logger *slog.Logger) *ProductHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductHandler{products: products, logger: logger}
}

// Register mounts the product routes on mux behind guard.
func (h *ProductHandler) Register(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	mux.Handle("GET /v1/products", guard(http.HandlerFunc(h.list)))
	mux.Handle("POST /v1/products", guard(http.HandlerFunc(h.create)))
	mux.Handle("GET /v1/products/categories", guard(http.HandlerFunc(h.categories)))
	mux.Handle("POST /v1/products/bulk", guard(http.HandlerFunc(h.bulkCreate)))
	mux.Handle("GET /v1/products/{id}", guard(http.HandlerFunc(h.get)))
	mux.Handle("PUT /v1/products/{id}", guard(http.HandlerFunc(h.update)))
	mux.Handle("DELETE /v1/products/{id}", guard(http.HandlerFunc(h.delete)))
	mux.Handle("POST /v1/products/{id}/image", guard(http.HandlerFunc(h.uploadImage)))
}

func (h *ProductHandler) list(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	result, err := h.products.List(r.Context(), f)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func productFilter(r *http.Request) (resource.ProductFilter, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return resource.ProductFilter{}, err
	}
	perPage, err := queryInt(r, "per_page")
	if err != nil {
		return resource.ProductFilter{}, err
	}
	q := r.URL.Query()
	return resource.ProductFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		Page:     page,
		PerPage:  perPage,
	}, nil
}

func (h *ProductHandler) categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.products.Categories(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CategoryList{Categories: categories})
}

func (h *ProductHandler) get(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	product, err := h.products.Get(r.Context(), productID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.ProductInput
	if err := decodeJSON(w, r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	product, err := h.products.Create(r.Context(), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *ProductHandler) update(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var in domain.ProductInput
	if err := decodeJSON(w, r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	product, err := h.products.Update(r.Context(), productID, in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) delete(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if err := h.products.Delete(r.Context(), productID); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandler) uploadImage(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, r, badRequest("image too large"))
			return
		}
		WriteError(w, r, domain.NewValidationError(map[string]string{"image": "image is required"}))
		return
	}
	defer file.Close()

	uploaded, err := h.products.UploadImage(r.Context(), productID, header.Filename, file)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.logger.DebugContext(r.Context(), "product image uploaded", "product_id", productID, "filename", header.Filename)
	writeJSON(w, http.StatusOK, uploaded)
}

type bulkCreateRequest struct {
	Products []domain.ProductInput `json:"products"`
}

func (h *ProductHandler) bulkCreate(w http.ResponseWriter, r *http.Request) {
	var req bulkCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	result, err := h.products.BulkCreate(r.Context(), req.Products)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

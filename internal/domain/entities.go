package domain

import "encoding/json"

// User is the authenticated account as returned by /auth/me.
type User struct {
	ID                 int64  `json:"id"`
	UserName           string `json:"user_name"`
	Email              string `json:"email"`
	PlanID             int64  `json:"plan_id"`
	MonthlyGenerations int    `json:"monthly_generations"`
	CreatedAt          string `json:"created_at"`
}

// Plan describes the subscription limits attached to a user.
type Plan struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	Price              float64         `json:"price"`
	MaxProducts        int             `json:"max_products"`
	MaxTemplates       int             `json:"max_templates"`
	MonthlyGenerations int             `json:"monthly_generations"`
	Features           map[string]bool `json:"features"`
}

// HasFeature reports whether the plan enables the named feature.
func (p *Plan) HasFeature(name string) bool {
	if p == nil {
		return false
	}
	return p.Features[name]
}

// Product is a catalogue item posters are generated from.
type Product struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Category    string  `json:"category,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	SKU         string  `json:"sku,omitempty"`
	Description string  `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

// ProductInput is the writable subset of Product.
type ProductInput struct {
	Name        string  `json:"name" validate:"notblank,min=2,max=200"`
	Price       float64 `json:"price" validate:"gt=0,lte=1000000000"`
	Category    string  `json:"category,omitempty" validate:"max=100"`
	SKU         string  `json:"sku,omitempty" validate:"max=100"`
	Description string  `json:"description,omitempty" validate:"max=5000"`
}

// TemplateFormat is the canvas format of a template.
type TemplateFormat string

const (
	FormatSquare TemplateFormat = "square"
	FormatStory  TemplateFormat = "story"
	FormatA4     TemplateFormat = "a4"
)

// Template is a system or user-owned poster layout. JSONDefinition is opaque.
type Template struct {
	ID             int64           `json:"id"`
	UserID         *int64          `json:"user_id,omitempty"`
	Name           string          `json:"name"`
	Format         TemplateFormat  `json:"format"`
	Description    string          `json:"description,omitempty"`
	BackgroundURL  string          `json:"background_url,omitempty"`
	JSONDefinition json.RawMessage `json:"json_definition"`
	PreviewURL     string          `json:"preview_url,omitempty"`
	IsSystem       bool            `json:"is_system"`
	CreatedAt      string          `json:"created_at"`
	LastUsedAt     string          `json:"last_used_at,omitempty"`
}

// TemplateInput is the writable subset of Template.
type TemplateInput struct {
	Name           string          `json:"name" validate:"required,max=200"`
	Format         TemplateFormat  `json:"format" validate:"required,oneof=square story a4"`
	Description    string          `json:"description,omitempty"`
	BackgroundURL  string          `json:"background_url,omitempty" validate:"omitempty,url"`
	PreviewURL     string          `json:"preview_url,omitempty" validate:"omitempty,url"`
	JSONDefinition json.RawMessage `json:"json_definition" validate:"required"`
}

// Campaign groups posters under a schedule. Rules is opaque.
type Campaign struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	Name       string          `json:"name"`
	StartDate  string          `json:"start_date,omitempty"`
	EndDate    string          `json:"end_date,omitempty"`
	TemplateID *int64          `json:"template_id,omitempty"`
	Rules      json.RawMessage `json:"rules"`
	CreatedAt  string          `json:"created_at"`
}

// PosterStatus is the rendering state of a poster.
type PosterStatus string

const (
	PosterGenerating PosterStatus = "generating"
	PosterGenerated  PosterStatus = "generated"
	PosterFailed     PosterStatus = "failed"
)

// Poster is a rendered image for one product and template.
type Poster struct {
	ID         int64        `json:"id"`
	UserID     int64        `json:"user_id"`
	ProductID  int64        `json:"product_id"`
	CampaignID *int64       `json:"campaign_id,omitempty"`
	TemplateID int64        `json:"template_id"`
	ImageURL   string       `json:"image_url"`
	Format     string       `json:"format"`
	Status     PosterStatus `json:"status"`
	CreatedAt  string       `json:"created_at"`
}

// Pagination is embedded in every paged collection.
type Pagination struct {
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

// ProductPage is one page of GET /products.
type ProductPage struct {
	Products []Product `json:"products"`
	Pagination
}

// PosterPage is one page of GET /posters.
type PosterPage struct {
	Posters []Poster `json:"posters"`
	Pagination
}

// TemplateList is the payload of GET /templates.
type TemplateList struct {
	Templates []Template `json:"templates"`
}

// CategoryList is the payload of GET /products/categories.
type CategoryList struct {
	Categories []string `json:"categories"`
}

// BulkProductResult is the payload of POST /products/bulk.
type BulkProductResult struct {
	Created      []Product         `json:"created"`
	Errors       []json.RawMessage `json:"errors"`
	TotalCreated int               `json:"total_created"`
	TotalErrors  int               `json:"total_errors"`
}

// ImageUpload is the payload of POST /products/{id}/image.
type ImageUpload struct {
	ImageURL string `json:"image_url"`
}

// GenerationRequest asks the backend to render posters.
type GenerationRequest struct {
	TemplateID int64   `json:"template_id" validate:"required,gt=0"`
	ProductIDs []int64 `json:"product_ids" validate:"required,min=1,dive,gt=0"`
	CampaignID *int64  `json:"campaign_id,omitempty"`
}

// GenerationJob is the queued job returned by POST /posters/generate.
type GenerationJob struct {
	JobID string `json:"job_id"`
	Type  string `json:"type"`
	Total int    `json:"total"`
}

// JobStatus is the payload of GET /posters/job/{id}. Result is opaque.
type JobStatus struct {
	Status    string          `json:"status"`
	CreatedAt string          `json:"created_at,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// GenerationStats is the payload of GET /posters/stats.
type GenerationStats struct {
	Used         int `json:"used"`
	Limit        int `json:"limit"`
	Remaining    int `json:"remaining"`
	TotalPosters int `json:"total_posters"`
}

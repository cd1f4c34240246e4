package model

import "time"

// Attachment is a file linked from a product page (datasheet, manual).
type Attachment struct {
	URL         string `json:"url"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Pages       int    `json:"pages,omitempty"`
	Valid       bool   `json:"valid"`
}

// Product is one record produced by a strategy. It lives only until it has
// been handed to the staging sinks.
type Product struct {
	SKU         string            `json:"sku"`
	Title       string            `json:"title"`
	Price       *float64          `json:"price"`
	Description string            `json:"description,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	Images      []string          `json:"images,omitempty"`
	SourceURL   string            `json:"source_url"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	ScrapedAt   time.Time         `json:"scraped_at"`

	SiteID   string `json:"site_id"`
	RunID    string `json:"run_id"`
	Strategy string `json:"strategy"`
}

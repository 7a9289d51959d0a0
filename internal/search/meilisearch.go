// Package search mirrors committed listings into a Meilisearch index.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"emlak-aggregator/internal/models"
)

// Document is the indexed form of a listing
type Document struct {
	ID           uint              `json:"id"`
	Title        string            `json:"title"`
	Price        *float64          `json:"price,omitempty"`
	PriceText    string            `json:"price_text"`
	Platform     string            `json:"platform"`
	Category     string            `json:"category"`
	ListingType  string            `json:"listing_type"`
	Subcategory  string            `json:"subcategory,omitempty"`
	City         string            `json:"city"`
	District     string            `json:"district"`
	Neighborhood string            `json:"neighborhood"`
	SourceURL    string            `json:"source_url"`
	Agency       string            `json:"agency,omitempty"`
	ImageURL     string            `json:"image_url,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	Featured     bool              `json:"featured"`
	CreatedAt    int64             `json:"created_at"`
	UpdatedAt    int64             `json:"updated_at"`
}

// NewDocument maps a listing to its index document. Location must be loaded
// for the location fields to be set.
func NewDocument(l models.Listing) Document {
	d := Document{
		ID:          l.ID,
		Title:       l.Title,
		Price:       l.Price,
		PriceText:   l.PriceText,
		Platform:    l.Platform,
		Category:    l.Category,
		ListingType: l.ListingType,
		Subcategory: l.Subcategory,
		SourceURL:   l.SourceURL,
		Agency:      l.Agency,
		ImageURL:    l.ImageURL,
		Details:     l.Details.Data(),
		Featured:    l.Featured,
		CreatedAt:   l.CreatedAt.Unix(),
		UpdatedAt:   l.UpdatedAt.Unix(),
	}
	if l.Location != nil {
		d.City = l.Location.Province
		d.District = l.Location.District
		d.Neighborhood = l.Location.Neighborhood
	}
	return d
}

// Client indexes and searches listings
type Client struct {
	client *meilisearch.Client
	index  string
}

// NewClient creates a search client for the given index
func NewClient(host, apiKey, index string) *Client {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:    host,
		APIKey:  apiKey,
		Timeout: 10 * time.Second,
	})
	if index == "" {
		index = "listings"
	}
	return &Client{client: client, index: index}
}

// InitIndex creates the index and configures its attributes
func (c *Client) InitIndex() error {
	_, err := c.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        c.index,
		PrimaryKey: "id",
	})
	// index creation is asynchronous; an existing index fails the task, not the call
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	idx := c.client.Index(c.index)
	if _, err := idx.UpdateSearchableAttributes(&[]string{
		"title",
		"city",
		"district",
		"neighborhood",
		"agency",
		"subcategory",
	}); err != nil {
		return fmt.Errorf("failed to set searchable attributes: %w", err)
	}
	if _, err := idx.UpdateFilterableAttributes(&[]string{
		"platform",
		"category",
		"listing_type",
		"city",
		"district",
		"price",
		"featured",
	}); err != nil {
		return fmt.Errorf("failed to set filterable attributes: %w", err)
	}
	if _, err := idx.UpdateSortableAttributes(&[]string{
		"price",
		"created_at",
		"updated_at",
	}); err != nil {
		return fmt.Errorf("failed to set sortable attributes: %w", err)
	}
	return nil
}

// IndexListings adds or replaces the documents of the given listings
func (c *Client) IndexListings(ctx context.Context, listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	docs := make([]Document, len(listings))
	for i, l := range listings {
		docs[i] = NewDocument(l)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.client.Index(c.index).AddDocuments(docs, "id")
	if err != nil {
		return fmt.Errorf("failed to index %d listings: %w", len(docs), err)
	}
	return nil
}

// Result is one page of search hits
type Result struct {
	Hits           []Document `json:"hits"`
	TotalHits      int64      `json:"total_hits"`
	ProcessingTime int64      `json:"processing_time_ms"`
}

// Search runs a filtered full-text query
func (c *Client) Search(ctx context.Context, p Params) (*Result, error) {
	req := &meilisearch.SearchRequest{
		Limit:  p.limit(),
		Offset: p.Offset,
	}
	if filter := p.Filter(); filter != "" {
		req.Filter = filter
	}
	if sort := p.sort(); sort != "" {
		req.Sort = []string{sort}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := c.client.Index(c.index).Search(p.Query, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	out := &Result{
		Hits:           make([]Document, 0, len(res.Hits)),
		TotalHits:      res.EstimatedTotalHits,
		ProcessingTime: res.ProcessingTimeMs,
	}
	for _, hit := range res.Hits {
		if d, ok := decodeHit(hit); ok {
			out.Hits = append(out.Hits, d)
		}
	}
	return out, nil
}

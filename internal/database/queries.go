package database

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"emlak-aggregator/internal/analytics"
	"emlak-aggregator/internal/models"
)

// ListingFilter narrows listing queries. Empty fields match everything.
type ListingFilter struct {
	Platform    string `form:"platform" json:"platform,omitempty"`
	Category    string `form:"category" json:"category,omitempty"`
	ListingType string `form:"listing_type" json:"listing_type,omitempty"`
	City        string `form:"city" json:"city,omitempty"`
	District    string `form:"district" json:"district,omitempty"`
}

func (f ListingFilter) apply(db *gorm.DB) *gorm.DB {
	q := db.Model(&models.Listing{})
	if f.Platform != "" {
		q = q.Where("listings.platform = ?", f.Platform)
	}
	if f.Category != "" {
		q = q.Where("listings.category = ?", f.Category)
	}
	if f.ListingType != "" {
		q = q.Where("listings.listing_type = ?", f.ListingType)
	}
	if f.City != "" || f.District != "" {
		q = q.Joins("JOIN locations ON locations.id = listings.location_id")
		if f.City != "" {
			q = q.Where("locations.province = ?", f.City)
		}
		if f.District != "" {
			q = q.Where("locations.district = ?", f.District)
		}
	}
	return q
}

// GetListingByURL returns the listing stored for a source URL
func (s *Store) GetListingByURL(ctx context.Context, url string) (*models.Listing, error) {
	var l models.Listing
	err := s.db.WithContext(ctx).Preload("Location").Where("source_url = ?", url).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetListing returns a listing by id
func (s *Store) GetListing(ctx context.Context, id uint) (*models.Listing, error) {
	var l models.Listing
	err := s.db.WithContext(ctx).Preload("Location").First(&l, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListListings returns a page of matching listings, newest first, and the
// total number of matches
func (s *Store) ListListings(ctx context.Context, f ListingFilter, limit, offset int) ([]models.Listing, int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset = max(offset, 0)

	var total int64
	if err := f.apply(s.db.WithContext(ctx)).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var listings []models.Listing
	err := f.apply(s.db.WithContext(ctx)).
		Preload("Location").
		Order("listings.created_at DESC, listings.id DESC").
		Limit(limit).Offset(offset).
		Find(&listings).Error
	return listings, total, err
}

// ListingsByIDs loads listings with their locations
func (s *Store) ListingsByIDs(ctx context.Context, ids []uint) ([]models.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var listings []models.Listing
	err := s.db.WithContext(ctx).Preload("Location").Where("id IN ?", ids).Order("id").Find(&listings).Error
	return listings, err
}

// PriceHistoryFor returns the price changes of a listing, oldest first
func (s *Store) PriceHistoryFor(ctx context.Context, listingID uint) ([]models.PriceHistory, error) {
	var history []models.PriceHistory
	err := s.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("changed_at, id").
		Find(&history).Error
	return history, err
}

func (s *Store) prices(ctx context.Context, f ListingFilter) ([]float64, error) {
	var prices []float64
	err := f.apply(s.db.WithContext(ctx)).
		Where("listings.price IS NOT NULL").
		Pluck("listings.price", &prices).Error
	return prices, err
}

// PriceSummary summarizes the known prices of matching listings. It returns
// analytics.ErrNoData when none match.
func (s *Store) PriceSummary(ctx context.Context, f ListingFilter) (analytics.Summary, error) {
	prices, err := s.prices(ctx, f)
	if err != nil {
		return analytics.Summary{}, err
	}
	return analytics.Summarize(prices)
}

// PriceDistribution buckets the known prices of matching listings
func (s *Store) PriceDistribution(ctx context.Context, f ListingFilter, buckets int) ([]analytics.Bucket, error) {
	prices, err := s.prices(ctx, f)
	if err != nil {
		return nil, err
	}
	return analytics.Distribution(prices, buckets)
}

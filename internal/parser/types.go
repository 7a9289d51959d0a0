// Package parser extracts canonical listing records from listing cards.
// Each (portal, category) pair has its own parser; For looks them up.
package parser

import (
	"fmt"
	"strings"
)

// Portal identifies a listing site
type Portal string

const (
	PortalPrimary   Portal = "hepsiemlak"
	PortalSecondary Portal = "emlakjet"
)

// Portals lists every supported site
var Portals = []Portal{PortalPrimary, PortalSecondary}

// ParsePortal accepts a portal name or its role alias
func ParsePortal(s string) (Portal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hepsiemlak", "primary", "":
		return PortalPrimary, nil
	case "emlakjet", "secondary":
		return PortalSecondary, nil
	}
	return "", fmt.Errorf("unknown portal %q", s)
}

// Category is the top-level property type
type Category string

const (
	CategoryResidence  Category = "residence"
	CategoryLand       Category = "land"
	CategoryCommercial Category = "commercial"
	CategoryTourism    Category = "tourism"
	CategoryTimeshare  Category = "timeshare"
)

// Categories lists every category in display order
var Categories = []Category{CategoryResidence, CategoryLand, CategoryCommercial, CategoryTourism, CategoryTimeshare}

var categoryAliases = map[string]Category{
	"residence":        CategoryResidence,
	"konut":            CategoryResidence,
	"land":             CategoryLand,
	"arsa":             CategoryLand,
	"commercial":       CategoryCommercial,
	"isyeri":           CategoryCommercial,
	"tourism":          CategoryTourism,
	"tourism-facility": CategoryTourism,
	"turistik-tesis":   CategoryTourism,
	"timeshare":        CategoryTimeshare,
	"devremulk":        CategoryTimeshare,
}

// ParseCategory accepts an English name or the Turkish path segment
func ParseCategory(s string) (Category, error) {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// ListingType is for-sale or for-rent
type ListingType string

const (
	ListingForSale ListingType = "for-sale"
	ListingForRent ListingType = "for-rent"
)

// ParseListingType accepts "for-sale"/"for-rent" or "satilik"/"kiralik"
func ParseListingType(s string) (ListingType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "for-sale", "satilik":
		return ListingForSale, nil
	case "for-rent", "kiralik":
		return ListingForRent, nil
	}
	return "", fmt.Errorf("unknown listing type %q", s)
}

// Slug is the Turkish URL segment for the listing type
func (t ListingType) Slug() string {
	if t == ListingForRent {
		return "kiralik"
	}
	return "satilik"
}

// Record is one listing as extracted from a card, in canonical form
type Record struct {
	Title        string
	PriceText    string
	Price        *float64
	Platform     Portal
	Category     Category
	ListingType  ListingType
	Subcategory  string
	LocationText string
	Province     string
	District     string
	Neighborhood string
	URL          string
	PostedAt     string
	Agency       string
	ImageURL     string
	Details      map[string]string
	Featured     bool
	New          bool
}

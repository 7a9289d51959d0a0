package search

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Params are the query string parameters of a listing search
type Params struct {
	Query       string   `form:"q"`
	Platform    string   `form:"platform"`
	Category    string   `form:"category"`
	ListingType string   `form:"listing_type"`
	City        string   `form:"city"`
	District    string   `form:"district"`
	MinPrice    *float64 `form:"min_price"`
	MaxPrice    *float64 `form:"max_price"`
	SortBy      string   `form:"sort"` // price_asc, price_desc, newest
	Limit       int64    `form:"limit"`
	Offset      int64    `form:"offset"`
}

// Filter builds the Meilisearch filter expression for p
func (p Params) Filter() string {
	var filters []string
	eq := func(attr, value string) {
		if value = strings.TrimSpace(value); value != "" {
			filters = append(filters, fmt.Sprintf("%s = %s", attr, quote(value)))
		}
	}
	eq("platform", p.Platform)
	eq("category", p.Category)
	eq("listing_type", p.ListingType)
	eq("city", p.City)
	eq("district", p.District)

	if p.MinPrice != nil {
		filters = append(filters, "price >= "+strconv.FormatFloat(*p.MinPrice, 'f', -1, 64))
	}
	if p.MaxPrice != nil {
		filters = append(filters, "price <= "+strconv.FormatFloat(*p.MaxPrice, 'f', -1, 64))
	}
	return strings.Join(filters, " AND ")
}

func (p Params) sort() string {
	switch p.SortBy {
	case "price_asc":
		return "price:asc"
	case "price_desc":
		return "price:desc"
	case "newest":
		return "created_at:desc"
	}
	return ""
}

func (p Params) limit() int64 {
	switch {
	case p.Limit <= 0:
		return 20
	case p.Limit > 200:
		return 200
	}
	return p.Limit
}

// quote renders s as a double-quoted filter literal
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// decodeHit converts a raw hit back into a Document
func decodeHit(hit interface{}) (Document, bool) {
	raw, err := json.Marshal(hit)
	if err != nil {
		return Document{}, false
	}
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return Document{}, false
	}
	return d, true
}

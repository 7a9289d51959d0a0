package sites

import (
	"strings"

	"emlak-aggregator/internal/parser"
)

// NewPrimary returns the hepsiemlak adapter. Its URLs put the place and the
// listing type in one segment and the category after it:
//
//	https://www.hepsiemlak.com/istanbul-kadikoy-satilik/daire?page=2
func NewPrimary() Adapter {
	return &site{
		portal:    parser.PortalPrimary,
		host:      "https://www.hepsiemlak.com",
		pageParam: "page",
		perPage:   30,
		maxPages:  50,
		sel: pageSelectors{
			Ready:         "ul.list-items-container, .no-results-found",
			Cards:         "li.listing-item",
			Count:         ".applied-filters__count, .search-results-count",
			Pagination:    ".he-pagination a",
			Empty:         ".no-results-found",
			Districts:     ".he-filter-location__districts a",
			Neighborhoods: ".he-filter-location__neighborhoods a",
			Similar:       ".similar-listings, .similar-realty",
		},
		segments: map[parser.Category]string{
			parser.CategoryResidence:  "konut",
			parser.CategoryLand:       "arsa",
			parser.CategoryCommercial: "isyeri",
			parser.CategoryTourism:    "turistik-isletme",
			parser.CategoryTimeshare:  "devremulk",
		},
		root: func(s *site, q Query) string {
			return s.host + "/" + q.ListingType.Slug() + "/" + s.segment(q)
		},
		place: func(s *site, q Query, parts ...string) string {
			slugs := make([]string, 0, len(parts)+1)
			for _, p := range parts {
				slugs = append(slugs, Slugify(p))
			}
			slugs = append(slugs, q.ListingType.Slug())
			url := s.host + "/" + strings.Join(slugs, "-")
			if seg := s.segment(q); seg != "" {
				url += "/" + seg
			}
			return url
		},
	}
}

package sites

import (
	"strings"

	"emlak-aggregator/internal/parser"
)

// NewSecondary returns the emlakjet adapter. The category path comes first
// and the place is a single hyphenated segment:
//
//	https://www.emlakjet.com/satilik-konut/istanbul-kadikoy?sayfa=2
func NewSecondary() Adapter {
	return &site{
		portal:    parser.PortalSecondary,
		host:      "https://www.emlakjet.com",
		pageParam: "sayfa",
		perPage:   30,
		maxPages:  50,
		sel: pageSelectors{
			Ready:         "div.listing-list, .no-result",
			Cards:         "article.listing-card",
			Count:         ".listing-count, .result-count",
			Pagination:    "nav.pagination a",
			Empty:         ".no-result",
			Districts:     ".location-filter [data-level=district] a",
			Neighborhoods: ".location-filter [data-level=neighborhood] a",
			Similar:       ".similar-listings, [data-widget=similar-listings]",
		},
		segments: map[parser.Category]string{
			parser.CategoryResidence:  "konut",
			parser.CategoryLand:       "arsa",
			parser.CategoryCommercial: "isyeri",
			parser.CategoryTourism:    "turistik-tesis",
			parser.CategoryTimeshare:  "devremulk",
		},
		root: func(s *site, q Query) string {
			return s.host + "/" + q.ListingType.Slug() + "-" + s.segment(q)
		},
		place: func(s *site, q Query, parts ...string) string {
			slugs := make([]string, 0, len(parts))
			for _, p := range parts {
				slugs = append(slugs, Slugify(p))
			}
			return s.root(s, q) + "/" + strings.Join(slugs, "-")
		},
	}
}

// Package sites holds the per-portal knowledge: URL conventions, page-level
// selectors, result counts, pagination and the location hierarchy.
package sites

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"emlak-aggregator/internal/dom"
	"emlak-aggregator/internal/normalize"
	"emlak-aggregator/internal/parser"
)

// Query is what a job asks a portal for
type Query struct {
	ListingType parser.ListingType
	Category    parser.Category
	Subcategory string // portal-specific path fragment, e.g. "daire"
}

// Adapter encodes everything the traversal engine needs to know about one
// portal
type Adapter interface {
	Portal() parser.Portal
	RootURL(q Query) string
	Cities() []string
	CityURL(q Query, city string) string
	DistrictURL(q Query, city, district string) string
	NeighborhoodURL(q Query, city, district, neighborhood string) string
	PageURL(base string, page int) string
	PaginationCeiling() int
	ReadySelector() string
	DiscoverPagination(p *dom.Page) int
	DiscoverListingCount(p *dom.Page) int
	IsEmpty(p *dom.Page) bool
	Districts(p *dom.Page) []string
	Neighborhoods(p *dom.Page) []string
	ListingNodes(p *dom.Page) []*goquery.Selection
	Parser(c parser.Category) (parser.Parser, error)
}

// pageSelectors locate the page-level widgets of a portal
type pageSelectors struct {
	Ready         string
	Cards         string
	Count         string
	Pagination    string
	Empty         string
	Districts     string
	Neighborhoods string
	Similar       string
}

var (
	countRe    = regexp.MustCompile(`\d{1,3}(?:[.,]\d{3})+|\d+`)
	trailingRe = regexp.MustCompile(`\s*\(\s*[\d.,]+\s*\)\s*$`)

	emptyPhrases = []string{"sonuç bulunamadı", "ilan bulunamadı", "kriterlere uygun ilan", "no results found"}
)

// site is the shared adapter implementation; portals differ only in data
type site struct {
	portal    parser.Portal
	host      string
	pageParam string
	perPage   int
	maxPages  int
	sel       pageSelectors
	segments  map[parser.Category]string

	root  func(s *site, q Query) string
	place func(s *site, q Query, parts ...string) string
}

func (s *site) Portal() parser.Portal { return s.portal }

func (s *site) Cities() []string { return Cities() }

func (s *site) RootURL(q Query) string { return s.root(s, q) }

func (s *site) CityURL(q Query, city string) string {
	return s.place(s, q, city)
}

func (s *site) DistrictURL(q Query, city, district string) string {
	return s.place(s, q, city, district)
}

func (s *site) NeighborhoodURL(q Query, city, district, neighborhood string) string {
	return s.place(s, q, city, district, neighborhood)
}

// PaginationCeiling is the number of results reachable by paging one scope
func (s *site) PaginationCeiling() int { return s.perPage * s.maxPages }

func (s *site) ReadySelector() string { return s.sel.Ready }

func (s *site) PageURL(base string, page int) string {
	if page <= 1 {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Sprintf("%s?%s=%d", base, s.pageParam, page)
	}
	q := u.Query()
	q.Set(s.pageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *site) DiscoverPagination(p *dom.Page) int {
	max := 1
	for _, link := range p.FindAll(s.sel.Pagination) {
		candidates := []string{p.AttributeOf(link, "data-page"), p.TextOf(link)}
		if href := p.AttributeOf(link, "href"); href != "" {
			if u, err := url.Parse(href); err == nil {
				candidates = append(candidates, u.Query().Get(s.pageParam))
			}
		}
		for _, c := range candidates {
			if n, err := strconv.Atoi(strings.TrimSpace(c)); err == nil && n > max {
				max = n
			}
		}
	}
	return max
}

func (s *site) DiscoverListingCount(p *dom.Page) int {
	if s.IsEmpty(p) {
		return 0
	}
	if text := p.Text(s.sel.Count); text != "" {
		if n, ok := parseCount(text); ok {
			return n
		}
	}
	// no count widget: estimate from what is on the page
	cards := len(s.ListingNodes(p))
	if cards == 0 {
		return 0
	}
	return cards * s.DiscoverPagination(p)
}

func (s *site) IsEmpty(p *dom.Page) bool {
	if len(p.FindAll(s.sel.Empty)) > 0 {
		return true
	}
	// banner text elsewhere on a page with results is a prompt, not a verdict
	if len(s.ListingNodes(p)) > 0 {
		return false
	}
	body := normalize.Lower(p.Text("body"))
	for _, phrase := range emptyPhrases {
		if strings.Contains(body, phrase) {
			return true
		}
	}
	return false
}

func (s *site) Districts(p *dom.Page) []string {
	return placeNames(p, s.sel.Districts)
}

func (s *site) Neighborhoods(p *dom.Page) []string {
	return placeNames(p, s.sel.Neighborhoods)
}

func (s *site) ListingNodes(p *dom.Page) []*goquery.Selection {
	var out []*goquery.Selection
	for _, card := range p.FindAll(s.sel.Cards) {
		if s.sel.Similar != "" && p.HasAncestor(card, s.sel.Similar) {
			continue
		}
		out = append(out, card)
	}
	return out
}

func (s *site) Parser(c parser.Category) (parser.Parser, error) {
	return parser.For(s.portal, c)
}

// segment is the category part of a URL: the subcategory when given,
// otherwise the portal's name for the category
func (s *site) segment(q Query) string {
	if sub := strings.Trim(strings.TrimSpace(q.Subcategory), "/"); sub != "" {
		return sub
	}
	return s.segments[q.Category]
}

func parseCount(text string) (int, bool) {
	m := countRe.FindString(text)
	if m == "" {
		return 0, false
	}
	m = strings.NewReplacer(".", "", ",", "").Replace(m)
	n, err := strconv.Atoi(m)
	return n, err == nil
}

func placeNames(p *dom.Page, selector string) []string {
	var names []string
	seen := map[string]bool{}
	for _, link := range p.FindAll(selector) {
		name := p.AttributeOf(link, "data-name")
		if name == "" {
			name = trailingRe.ReplaceAllString(p.TextOf(link), "")
		}
		key := Slugify(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names
}

// ForPortal returns the adapter of a portal
func ForPortal(portal parser.Portal) (Adapter, error) {
	switch portal {
	case parser.PortalPrimary:
		return NewPrimary(), nil
	case parser.PortalSecondary:
		return NewSecondary(), nil
	}
	return nil, fmt.Errorf("no adapter for portal %q", portal)
}

// Package sitetest renders portal result pages for tests. The markup carries
// only the hooks the adapters and parsers select on.
package sitetest

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"emlak-aggregator/internal/parser"
)

// Listing is one rendered card
type Listing struct {
	Title    string
	Price    string
	Location string
	Href     string
	Chips    []string
	Agency   string
	Featured bool
	New      bool
}

// Page describes a result page. Count < 0 omits the count widget.
type Page struct {
	Count         int
	Pages         int
	Listings      []Listing
	Similar       []Listing
	Districts     []string
	Neighborhoods []string
	Empty         bool
}

// Listings builds n residence cards whose links are /ilan/{prefix}-{i}
func Listings(n int, prefix, location string) []Listing {
	out := make([]Listing, n)
	for i := range out {
		out[i] = Listing{
			Title:    fmt.Sprintf("%s satılık daire %d", prefix, i+1),
			Price:    FormatCount(1_000_000+i*10_000) + " TL",
			Location: location,
			Href:     fmt.Sprintf("/ilan/%s-%d", prefix, i+1),
			Chips:    []string{"Daire", "3+1", "2. Kat", "120 m²"},
		}
	}
	return out
}

// FormatCount groups digits with periods the way both portals print totals
func FormatCount(n int) string {
	s := strconv.Itoa(n)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Render produces the HTML of p in the markup of portal
func Render(portal parser.Portal, p Page) string {
	if portal == parser.PortalSecondary {
		return secondary(p)
	}
	return primary(p)
}

func primary(p Page) string {
	var b strings.Builder
	b.WriteString("<html><body>\n")
	if p.Empty {
		b.WriteString(`<div class="no-results-found">Aradığınız kriterlere uygun ilan bulunamadı.</div>`)
		b.WriteString("\n</body></html>")
		return b.String()
	}
	if p.Count >= 0 {
		fmt.Fprintf(&b, `<span class="applied-filters__count">%s ilan</span>`+"\n", FormatCount(p.Count))
	}
	links(&b, `<ul class="he-filter-location__districts">`, "</ul>", p.Districts)
	links(&b, `<ul class="he-filter-location__neighborhoods">`, "</ul>", p.Neighborhoods)
	b.WriteString(`<ul class="list-items-container">` + "\n")
	for _, l := range p.Listings {
		primaryCard(&b, l)
	}
	b.WriteString("</ul>\n")
	if len(p.Similar) > 0 {
		b.WriteString(`<section class="similar-listings"><ul>` + "\n")
		for _, l := range p.Similar {
			primaryCard(&b, l)
		}
		b.WriteString("</ul></section>\n")
	}
	if p.Pages > 1 {
		b.WriteString(`<ul class="he-pagination">`)
		for n := 1; n <= p.Pages; n++ {
			fmt.Fprintf(&b, `<li><a href="?page=%d">%d</a></li>`, n, n)
		}
		b.WriteString(`<li><a href="?page=2">Sonraki</a></li></ul>` + "\n")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func primaryCard(b *strings.Builder, l Listing) {
	class := "listing-item"
	if l.Featured {
		class += " featured"
	}
	fmt.Fprintf(b, `<li class="%s">`, class)
	fmt.Fprintf(b, `<a class="card-link" href="%s"></a>`, html.EscapeString(l.Href))
	fmt.Fprintf(b, `<div class="list-view-title"><h3>%s</h3></div>`, html.EscapeString(l.Title))
	fmt.Fprintf(b, `<span class="list-view-price">%s</span>`, html.EscapeString(l.Price))
	fmt.Fprintf(b, `<div class="list-view-location">%s</div>`, html.EscapeString(l.Location))
	b.WriteString(`<img class="list-view-image" src="data:image/gif;base64,R0lGOD" data-src="/img/1.jpg">`)
	if l.Agency != "" {
		fmt.Fprintf(b, `<p class="listing-card--owner-info__firm-name">%s</p>`, html.EscapeString(l.Agency))
	}
	if l.New {
		b.WriteString(`<span class="listing-card-badge">Yeni</span>`)
	}
	chips(b, `<ul class="short-property">`, "</ul>", l.Chips)
	b.WriteString("</li>\n")
}

func secondary(p Page) string {
	var b strings.Builder
	b.WriteString("<html><body>\n")
	if p.Empty {
		b.WriteString(`<div class="no-result">Aramanıza uygun ilan bulunamadı</div>`)
		b.WriteString("\n</body></html>")
		return b.String()
	}
	if p.Count >= 0 {
		fmt.Fprintf(&b, `<div class="result-count">%s ilan bulundu</div>`+"\n", FormatCount(p.Count))
	}
	b.WriteString(`<div class="location-filter">`)
	links(&b, `<ul data-level="district">`, "</ul>", p.Districts)
	links(&b, `<ul data-level="neighborhood">`, "</ul>", p.Neighborhoods)
	b.WriteString("</div>\n")
	b.WriteString(`<div class="listing-list">` + "\n")
	for _, l := range p.Listings {
		secondaryCard(&b, l)
	}
	b.WriteString("</div>\n")
	if len(p.Similar) > 0 {
		b.WriteString(`<div data-widget="similar-listings">` + "\n")
		for _, l := range p.Similar {
			secondaryCard(&b, l)
		}
		b.WriteString("</div>\n")
	}
	if p.Pages > 1 {
		b.WriteString(`<nav class="pagination">`)
		for n := 1; n <= p.Pages; n++ {
			fmt.Fprintf(&b, `<a href="?sayfa=%d">%d</a>`, n, n)
		}
		b.WriteString("</nav>\n")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func secondaryCard(b *strings.Builder, l Listing) {
	b.WriteString(`<article class="listing-card">`)
	fmt.Fprintf(b, `<a class="listing-link" href="%s"><h3 class="listing-title">%s</h3></a>`,
		html.EscapeString(l.Href), html.EscapeString(l.Title))
	fmt.Fprintf(b, `<div class="listing-price">%s</div>`, html.EscapeString(l.Price))
	fmt.Fprintf(b, `<div class="listing-location">%s</div>`, html.EscapeString(l.Location))
	b.WriteString(`<div class="listing-image"><img src="/img/1.jpg"></div>`)
	if l.Agency != "" {
		fmt.Fprintf(b, `<div class="listing-agency">%s</div>`, html.EscapeString(l.Agency))
	}
	if l.Featured {
		b.WriteString(`<span class="listing-badge">Öne Çıkan</span>`)
	}
	if l.New {
		b.WriteString(`<span class="listing-badge">Yeni</span>`)
	}
	chips(b, `<ul class="listing-quick-info">`, "</ul>", l.Chips)
	b.WriteString("</article>\n")
}

func links(b *strings.Builder, open, close string, names []string) {
	if len(names) == 0 {
		return
	}
	b.WriteString(open)
	for i, n := range names {
		fmt.Fprintf(b, `<li><a href="#">%s (%d)</a></li>`, html.EscapeString(n), (i+1)*10)
	}
	b.WriteString(close + "\n")
}

func chips(b *strings.Builder, open, close string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(open)
	for _, c := range items {
		fmt.Fprintf(b, "<li>%s</li>", html.EscapeString(c))
	}
	b.WriteString(close)
}

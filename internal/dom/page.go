package dom

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is a parsed snapshot of a loaded document. Lookups never fail:
// missing elements yield empty slices and empty strings.
type Page struct {
	url *url.URL
	doc *goquery.Document
}

// NewPage parses html as the document found at rawURL
func NewPage(rawURL, html string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", rawURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Url = u
	return &Page{url: u, doc: doc}, nil
}

// URL returns the address the snapshot was taken from
func (p *Page) URL() string {
	return p.url.String()
}

// Document exposes the underlying goquery document
func (p *Page) Document() *goquery.Document {
	return p.doc
}

// FindAll returns every element matching selector, one selection each
func (p *Page) FindAll(selector string) []*goquery.Selection {
	return split(p.doc.Find(selector))
}

// FindIn returns the descendants of node matching selector
func (p *Page) FindIn(node *goquery.Selection, selector string) []*goquery.Selection {
	if node == nil {
		return nil
	}
	return split(node.Find(selector))
}

// First returns the first descendant of node matching selector, or an
// empty selection
func (p *Page) First(node *goquery.Selection, selector string) *goquery.Selection {
	if node == nil {
		return p.doc.Find(selector).First()
	}
	return node.Find(selector).First()
}

// Text returns the text of the first element matching selector
func (p *Page) Text(selector string) string {
	return p.TextOf(p.doc.Find(selector).First())
}

// TextOf returns the whitespace-collapsed text of node
func (p *Page) TextOf(node *goquery.Selection) string {
	if node == nil || node.Length() == 0 {
		return ""
	}
	return strings.Join(strings.Fields(node.Text()), " ")
}

// AttributeOf returns the named attribute of node, or ""
func (p *Page) AttributeOf(node *goquery.Selection, name string) string {
	if node == nil {
		return ""
	}
	v, _ := node.Attr(name)
	return strings.TrimSpace(v)
}

// HasAncestor reports whether any ancestor of node matches selector
func (p *Page) HasAncestor(node *goquery.Selection, selector string) bool {
	return node != nil && node.ParentsFiltered(selector).Length() > 0
}

// Resolve turns a possibly relative href into an absolute URL
func (p *Page) Resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return p.url.ResolveReference(ref).String()
}

func split(sel *goquery.Selection) []*goquery.Selection {
	out := make([]*goquery.Selection, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, s)
	})
	return out
}

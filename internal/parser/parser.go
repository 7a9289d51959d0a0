package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"emlak-aggregator/internal/dom"
	"emlak-aggregator/internal/normalize"
)

// Parser turns one listing card into a record. It reports false when the
// card lacks a required field or sits inside a "similar listings" widget.
type Parser interface {
	Parse(p *dom.Page, card *goquery.Selection) (Record, bool)
}

// CardSelectors locate the fields of a listing card on one portal
type CardSelectors struct {
	Title    string
	Link     string
	Price    string
	Location string
	Image    string
	Date     string
	Agency   string
	Chips    string
	Badges   string
	Similar  string // ancestor marking the similar listings widget
}

var cardSelectors = map[Portal]CardSelectors{
	PortalPrimary: {
		Title:    ".list-view-title h3, .list-view-title",
		Link:     "a.card-link",
		Price:    ".list-view-price",
		Location: ".list-view-location",
		Image:    "img.list-view-image",
		Date:     ".list-view-date",
		Agency:   ".listing-card--owner-info__firm-name",
		Chips:    ".short-property li",
		Badges:   ".listing-card-badge, .list-view-badge",
		Similar:  ".similar-listings, .similar-realty",
	},
	PortalSecondary: {
		Title:    "h3.listing-title",
		Link:     "a.listing-link",
		Price:    ".listing-price",
		Location: ".listing-location",
		Image:    ".listing-image img",
		Date:     ".listing-date",
		Agency:   ".listing-agency",
		Chips:    ".listing-quick-info li",
		Badges:   ".listing-badge",
		Similar:  ".similar-listings, [data-widget=similar-listings]",
	},
}

// Selectors returns the card selectors of a portal
func Selectors(portal Portal) CardSelectors {
	return cardSelectors[portal]
}

type decomposer func(title string, chips []string) map[string]string

var decomposers = map[Category]decomposer{
	CategoryResidence:  residenceDetails,
	CategoryLand:       landDetails,
	CategoryCommercial: commercialDetails,
	CategoryTourism:    tourismDetails,
	CategoryTimeshare:  timeshareDetails,
}

var registry = buildRegistry()

func buildRegistry() map[Portal]map[Category]Parser {
	reg := make(map[Portal]map[Category]Parser, len(Portals))
	for _, portal := range Portals {
		reg[portal] = make(map[Category]Parser, len(Categories))
		for _, c := range Categories {
			reg[portal][c] = &cardParser{
				portal:    portal,
				category:  c,
				sel:       cardSelectors[portal],
				decompose: decomposers[c],
			}
		}
	}
	return reg
}

// For returns the parser for a portal and category
func For(portal Portal, c Category) (Parser, error) {
	if byCategory, ok := registry[portal]; ok {
		if p, ok := byCategory[c]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no parser for portal %q category %q", portal, c)
}

type cardParser struct {
	portal    Portal
	category  Category
	sel       CardSelectors
	decompose decomposer
}

func (cp *cardParser) Parse(p *dom.Page, card *goquery.Selection) (Record, bool) {
	if card == nil || card.Length() == 0 {
		return Record{}, false
	}
	if cp.sel.Similar != "" && p.HasAncestor(card, cp.sel.Similar) {
		return Record{}, false
	}

	rec := Record{
		Title:        p.TextOf(p.First(card, cp.sel.Title)),
		PriceText:    p.TextOf(p.First(card, cp.sel.Price)),
		LocationText: p.TextOf(p.First(card, cp.sel.Location)),
		Platform:     cp.portal,
		Category:     cp.category,
		PostedAt:     p.TextOf(p.First(card, cp.sel.Date)),
		Agency:       p.TextOf(p.First(card, cp.sel.Agency)),
	}
	if normalize.Validate(rec.Title, rec.PriceText, rec.LocationText) != nil {
		return Record{}, false
	}

	link := p.First(card, cp.sel.Link)
	if link.Length() == 0 && goquery.NodeName(card) == "a" {
		link = card
	}
	rec.URL = p.Resolve(p.AttributeOf(link, "href"))

	img := p.First(card, cp.sel.Image)
	src := p.AttributeOf(img, "data-src")
	if src == "" {
		src = p.AttributeOf(img, "src")
	}
	if !strings.HasPrefix(src, "data:") {
		rec.ImageURL = p.Resolve(src)
	}

	if v, ok := normalize.ParsePrice(rec.PriceText); ok {
		rec.Price = &v
	}
	rec.Province, rec.District, rec.Neighborhood = normalize.SplitLocation(rec.LocationText)

	var chips []string
	for _, chip := range p.FindIn(card, cp.sel.Chips) {
		if text := p.TextOf(chip); text != "" {
			chips = append(chips, text)
		}
	}
	rec.Details = cp.decompose(rec.Title, chips)

	rec.Featured, rec.New = badges(p, card, cp.sel.Badges)
	return rec, true
}

func badges(p *dom.Page, card *goquery.Selection, selector string) (featured, isNew bool) {
	class := normalize.Lower(p.AttributeOf(card, "class"))
	featured = strings.Contains(class, "featured") || strings.Contains(class, "vitrin")
	isNew = strings.Contains(class, "is-new")
	for _, b := range p.FindIn(card, selector) {
		text := normalize.Lower(p.TextOf(b))
		switch {
		case strings.Contains(text, "öne çıkan"), strings.Contains(text, "vitrin"), strings.Contains(text, "featured"):
			featured = true
		case strings.Contains(text, "yeni"), text == "new":
			isNew = true
		}
	}
	return featured, isNew
}

package dom

import "testing"

const cardsHTML = `<html><body>
<ul class="results">
  <li class="card"><a class="title" href="/ilan/1">  Deniz  manzaralı
     daire </a><span class="price">1.250.000 TL</span></li>
  <li class="card"><a class="title" href="https://www.example.com/ilan/2">Bahçeli villa</a></li>
</ul>
<section class="similar"><ul><li class="card"><a class="title" href="/ilan/9">Benzer</a></li></ul></section>
</body></html>`

func TestPageLookups(t *testing.T) {
	p, err := NewPage("https://www.example.com/istanbul-satilik?page=2", cardsHTML)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	cards := p.FindAll("li.card")
	if len(cards) != 3 {
		t.Fatalf("found %d cards; want 3", len(cards))
	}

	title := p.First(cards[0], "a.title")
	if got := p.TextOf(title); got != "Deniz manzaralı daire" {
		t.Errorf("TextOf = %q", got)
	}
	if got := p.Resolve(p.AttributeOf(title, "href")); got != "https://www.example.com/ilan/1" {
		t.Errorf("resolved href = %q", got)
	}
	if got := p.TextOf(p.First(cards[1], "span.price")); got != "" {
		t.Errorf("missing price should be empty, got %q", got)
	}
	if p.HasAncestor(cards[0], ".similar") || !p.HasAncestor(cards[2], ".similar") {
		t.Error("HasAncestor misreports the similar listings widget")
	}
	if got := len(p.FindIn(cards[0], "span")); got != 1 {
		t.Errorf("FindIn = %d; want 1", got)
	}
	if got := p.FindIn(nil, "span"); got != nil {
		t.Errorf("FindIn(nil) = %v", got)
	}
	if p.AttributeOf(cards[0], "data-id") != "" {
		t.Error("absent attribute should be empty")
	}
}

package parser

import (
	"testing"

	"emlak-aggregator/internal/dom"
)

const primaryCards = `<html><body><ul class="list-items-container">
<li class="listing-item featured">
  <a class="card-link" href="/istanbul-kadikoy-moda-satilik/daire/12345-1"></a>
  <div class="list-view-title"><h3>Moda'da deniz manzaralı 3+1 daire</h3></div>
  <span class="list-view-price">4.250.000 TL</span>
  <span class="list-view-location">İstanbul / Kadıköy / Caferağa Mah.</span>
  <img class="list-view-image" src="data:image/gif;base64,R0lG" data-src="https://img.example.com/1.jpg">
  <span class="list-view-date">12-03-2024</span>
  <p class="listing-card--owner-info__firm-name">Moda Emlak</p>
  <ul class="short-property"><li>Daire</li><li>3 + 1</li><li>120 m²</li><li>2. Kat</li></ul>
  <span class="listing-card-badge">Yeni</span>
</li>
<li class="listing-item">
  <a class="card-link" href="/istanbul-kadikoy-satilik/daire/2"></a>
  <div class="list-view-title"><h3>Fiyatsız ilan</h3></div>
  <span class="list-view-location">İstanbul / Kadıköy</span>
</li>
</ul>
<div class="similar-listings"><ul><li class="listing-item">
  <a class="card-link" href="/x/3"></a><div class="list-view-title"><h3>Benzer ilan</h3></div>
  <span class="list-view-price">1.000.000 TL</span><span class="list-view-location">İstanbul / Beşiktaş</span>
</li></ul></div>
</body></html>`

const secondaryCards = `<html><body><div class="listing-list">
<article class="listing-card">
  <a class="listing-link" href="https://www.emlakjet.com/ilan/imarli-arsa-777">
  <h3 class="listing-title">Çanakkale Merkez imarlı satılık arsa</h3></a>
  <div class="listing-price">2,5 milyon TL</div>
  <div class="listing-location">Çanakkale, Merkez, Kepez</div>
  <ul class="listing-quick-info"><li>Tarla</li><li>1.250 m²</li></ul>
  <span class="listing-badge">Öne Çıkan</span>
</article>
<article class="listing-card">
  <a class="listing-link" href="/ilan/otel-1"><h3 class="listing-title">Butik otel</h3></a>
  <div class="listing-price">45.000.000 TL</div>
  <div class="listing-location">Muğla / Bodrum / Gümbet</div>
  <ul class="listing-quick-info"><li>Otel</li><li>24 Oda</li><li>4 Yıldız</li></ul>
</article>
</div></body></html>`

func TestPrimaryResidenceParser(t *testing.T) {
	p, err := dom.NewPage("https://www.hepsiemlak.com/istanbul-satilik/daire", primaryCards)
	if err != nil {
		t.Fatal(err)
	}
	parse, err := For(PortalPrimary, CategoryResidence)
	if err != nil {
		t.Fatal(err)
	}

	var got []Record
	for _, card := range p.FindAll("li.listing-item") {
		if rec, ok := parse.Parse(p, card); ok {
			got = append(got, rec)
		}
	}
	// the price-less card and the similar-listings card are dropped
	if len(got) != 1 {
		t.Fatalf("parsed %d records; want 1", len(got))
	}

	rec := got[0]
	if rec.URL != "https://www.hepsiemlak.com/istanbul-kadikoy-moda-satilik/daire/12345-1" {
		t.Errorf("URL = %q", rec.URL)
	}
	if rec.Price == nil || *rec.Price != 4250000 {
		t.Errorf("Price = %v", rec.Price)
	}
	if rec.Province != "İstanbul" || rec.District != "Kadıköy" || rec.Neighborhood != "Caferağa Mah." {
		t.Errorf("location = %q/%q/%q", rec.Province, rec.District, rec.Neighborhood)
	}
	if rec.ImageURL != "https://img.example.com/1.jpg" {
		t.Errorf("ImageURL = %q", rec.ImageURL)
	}
	if rec.Agency != "Moda Emlak" || rec.PostedAt != "12-03-2024" {
		t.Errorf("agency/date = %q/%q", rec.Agency, rec.PostedAt)
	}
	want := map[string]string{"property_type": "Daire", "rooms": "3+1", "area": "120", "floor": "2. Kat"}
	for k, v := range want {
		if rec.Details[k] != v {
			t.Errorf("Details[%s] = %q; want %q", k, rec.Details[k], v)
		}
	}
	if !rec.Featured || !rec.New {
		t.Errorf("badges featured=%v new=%v", rec.Featured, rec.New)
	}
	if rec.Platform != PortalPrimary || rec.Category != CategoryResidence {
		t.Errorf("platform/category = %s/%s", rec.Platform, rec.Category)
	}
}

func TestSecondaryCategoryParsers(t *testing.T) {
	p, err := dom.NewPage("https://www.emlakjet.com/satilik-arsa/canakkale", secondaryCards)
	if err != nil {
		t.Fatal(err)
	}
	cards := p.FindAll("article.listing-card")

	land, _ := For(PortalSecondary, CategoryLand)
	rec, ok := land.Parse(p, cards[0])
	if !ok {
		t.Fatal("land card rejected")
	}
	if rec.Details["zoning_status"] != "zoned" || rec.Details["area"] != "1250" || rec.Details["parcel_type"] != "Tarla" {
		t.Errorf("land details = %v", rec.Details)
	}
	if rec.Price == nil || *rec.Price != 2500000 {
		t.Errorf("Price = %v", rec.Price)
	}
	if !rec.Featured || rec.New {
		t.Errorf("badges featured=%v new=%v", rec.Featured, rec.New)
	}

	tourism, _ := For(PortalSecondary, CategoryTourism)
	rec, ok = tourism.Parse(p, cards[1])
	if !ok {
		t.Fatal("tourism card rejected")
	}
	if rec.URL != "https://www.emlakjet.com/ilan/otel-1" {
		t.Errorf("URL = %q", rec.URL)
	}
	want := map[string]string{"facility_type": "Otel", "room_count": "24", "stars": "4"}
	for k, v := range want {
		if rec.Details[k] != v {
			t.Errorf("Details[%s] = %q; want %q", k, rec.Details[k], v)
		}
	}
}

func TestChipDecomposition(t *testing.T) {
	tests := []struct {
		name  string
		fn    decomposer
		title string
		chips []string
		want  map[string]string
	}{
		{"commercial", commercialDetails, "", []string{"Dükkan", "Zemin Kat", "85 m²"},
			map[string]string{"unit_type": "Dükkan", "floor": "Zemin Kat", "area": "85"}},
		{"timeshare", timeshareDetails, "", []string{"Stüdyo", "45 m²", "Sıfır Bina", "3. Kat"},
			map[string]string{"rooms": "1+0", "area": "45", "building_age": "0", "floor": "3. Kat"}},
		{"tourism beds win over stars", tourismDetails, "", []string{"Pansiyon", "12 Oda", "30 Yatak", "3 Yıldız"},
			map[string]string{"facility_type": "Pansiyon", "room_count": "12", "bed_count": "30"}},
		{"unzoned land", landDetails, "Köy içi İMARSIZ tarla", []string{"Tarla"},
			map[string]string{"parcel_type": "Tarla", "zoning_status": "unzoned"}},
		{"titled land", landDetails, "Müstakil tapulu bağ", nil,
			map[string]string{"zoning_status": "titled"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(tt.title, tt.chips)
			if len(got) != len(tt.want) {
				t.Errorf("got %v; want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("[%s] = %q; want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestLookups(t *testing.T) {
	if _, err := For(PortalPrimary, Category("castle")); err == nil {
		t.Error("expected error for unknown category")
	}
	if c, err := ParseCategory("Konut"); err != nil || c != CategoryResidence {
		t.Errorf("ParseCategory(Konut) = %v, %v", c, err)
	}
	if lt, err := ParseListingType("kiralik"); err != nil || lt != ListingForRent || lt.Slug() != "kiralik" {
		t.Errorf("ParseListingType(kiralik) = %v, %v", lt, err)
	}
	if _, err := ParseListingType("swap"); err == nil {
		t.Error("expected error for unknown listing type")
	}
	if p, err := ParsePortal("secondary"); err != nil || p != PortalSecondary {
		t.Errorf("ParsePortal(secondary) = %v, %v", p, err)
	}
}

package sites

import (
	"strings"

	"emlak-aggregator/internal/normalize"
)

// Upper-case letters fold before lowercasing; strings.ToLower maps İ to
// "i̇" (i + combining dot).
var (
	upperFold = strings.NewReplacer("İ", "i", "I", "i", "Ş", "s", "Ğ", "g", "Ü", "u", "Ö", "o", "Ç", "c")
	lowerFold = strings.NewReplacer("ı", "i", "ş", "s", "ğ", "g", "ü", "u", "ö", "o", "ç", "c", "â", "a", "î", "i", "û", "u")
)

// Slugify transliterates a Turkish place name into its URL segment
func Slugify(name string) string {
	s := upperFold.Replace(strings.TrimSpace(name))
	s = strings.ToLower(s)
	s = lowerFold.Replace(s)

	var b strings.Builder
	hyphen := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			hyphen = false
		case r == ' ' || r == '-' || r == '_' || r == '.' || r == '\'':
			if !hyphen && b.Len() > 0 {
				b.WriteByte('-')
				hyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// cities are the 81 provinces in licence-plate order
var cities = []string{
	"Adana", "Adıyaman", "Afyonkarahisar", "Ağrı", "Amasya", "Ankara", "Antalya", "Artvin", "Aydın",
	"Balıkesir", "Bilecik", "Bingöl", "Bitlis", "Bolu", "Burdur", "Bursa", "Çanakkale", "Çankırı",
	"Çorum", "Denizli", "Diyarbakır", "Edirne", "Elazığ", "Erzincan", "Erzurum", "Eskişehir",
	"Gaziantep", "Giresun", "Gümüşhane", "Hakkari", "Hatay", "Isparta", "Mersin", "İstanbul", "İzmir",
	"Kars", "Kastamonu", "Kayseri", "Kırklareli", "Kırşehir", "Kocaeli", "Konya", "Kütahya", "Malatya",
	"Manisa", "Kahramanmaraş", "Mardin", "Muğla", "Muş", "Nevşehir", "Niğde", "Ordu", "Rize", "Sakarya",
	"Samsun", "Siirt", "Sinop", "Sivas", "Tekirdağ", "Tokat", "Trabzon", "Tunceli", "Şanlıurfa", "Uşak",
	"Van", "Yozgat", "Zonguldak", "Aksaray", "Bayburt", "Karaman", "Kırıkkale", "Batman", "Şırnak",
	"Bartın", "Ardahan", "Iğdır", "Yalova", "Karabük", "Kilis", "Osmaniye", "Düzce",
}

var cityIndex = func() map[string]string {
	idx := make(map[string]string, len(cities)*2)
	for _, c := range cities {
		idx[normalize.Lower(c)] = c
		idx[Slugify(c)] = c
	}
	return idx
}()

// Cities returns the province names in stable order
func Cities() []string {
	return append([]string(nil), cities...)
}

// LookupCity resolves a user-supplied province name, ignoring Turkish case
// and diacritics, to its canonical spelling
func LookupCity(name string) (string, bool) {
	n := strings.TrimSpace(name)
	if c, ok := cityIndex[normalize.Lower(n)]; ok {
		return c, true
	}
	c, ok := cityIndex[Slugify(n)]
	return c, ok
}

// SameName compares two place names the way slugs would
func SameName(a, b string) bool {
	return Slugify(a) == Slugify(b)
}

package parser

// TargiKielceName is the extractor for the fair's own exhibitor pages.
const TargiKielceName = "targi_kielce"

// GenericName is the extractor for sites using company-* class names.
const GenericName = "generic"

// NewTargiKielce returns the extractor for targikielce.pl detail pages. When
// the page carries no website link, the page URL itself is used.
func NewTargiKielce() Extractor {
	return &selectorExtractor{
		name: TargiKielceName,
		selectors: fieldSelectors{
			name:        []string{"h1", ".company-name", ".firma-nazwa"},
			address:     []string{".address", ".adres"},
			phone:       []string{".phone", ".telefon"},
			email:       []string{".email", ".e-mail"},
			description: []string{".description", ".opis"},
			website:     []string{"a.www[href]", ".www a[href]", ".website a[href]"},
		},
		externalWWW: true,
		pageAsWWW:   true,
	}
}

// NewGeneric returns an extractor for pages marked up with company-* classes.
func NewGeneric() Extractor {
	return &selectorExtractor{
		name: GenericName,
		selectors: fieldSelectors{
			name:        []string{"h1.company-name", ".company-name"},
			address:     []string{".company-address"},
			phone:       []string{".company-phone"},
			email:       []string{".company-email"},
			description: []string{".company-description"},
			website:     []string{"a.company-website[href]"},
		},
	}
}

func builtins() map[string]func() Extractor {
	return map[string]func() Extractor{
		TargiKielceName: NewTargiKielce,
		GenericName:     NewGeneric,
	}
}

package tradefair

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExhibitorsURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://www.targikielce.pl/agrotech/o-targach":        "https://www.targikielce.pl/agrotech/lista-wystawcow",
		"https://www.targikielce.pl/agrotech":                  "https://www.targikielce.pl/agrotech/lista-wystawcow",
		"https://www.targikielce.pl/agrotech/":                 "https://www.targikielce.pl/agrotech/lista-wystawcow",
		"https://www.targikielce.pl/agrotech/lista-wystawcow":  "https://www.targikielce.pl/agrotech/lista-wystawcow",
		"https://www.targikielce.pl/agrotech/o-targach?ref=nav": "https://www.targikielce.pl/agrotech/lista-wystawcow",
	}
	for in, want := range cases {
		assert.Equal(t, want, ExhibitorsURL(in), in)
		assert.Equal(t, want, ExhibitorsURL(ExhibitorsURL(in)), "idempotent for %s", in)
	}
}

func TestEventSlug(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "agrotech", EventSlug("https://www.targikielce.pl/agrotech/o-targach"))
	assert.Equal(t, "metal", EventSlug("https://www.targikielce.pl/metal/lista-wystawcow"))
	assert.Equal(t, "plastpol", EventSlug("https://www.targikielce.pl/plastpol"))
	assert.Empty(t, EventSlug("https://www.targikielce.pl/"))
}

func TestSameSite(t *testing.T) {
	t.Parallel()

	assert.True(t, sameSite("www.targikielce.pl", "targikielce.pl"))
	assert.True(t, sameSite("TARGIKIELCE.pl", "www.targikielce.pl"))
	assert.False(t, sameSite("partner.example.com", "www.targikielce.pl"))
}

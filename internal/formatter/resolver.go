package formatter

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/yourorg/address-formatter/internal/canon"
)

var placeholderPattern = regexp.MustCompile(`\$(\w*)`)

// resolveCountry settles the country code, follows dependent territory
// redirects and writes the final code back into the components.
func (f *Formatter) resolveCountry(c *canon.Components, fallback string) (string, error) {
	explicit := strings.TrimSpace(c.Value(canon.CountryCode))
	fallback = strings.TrimSpace(fallback)
	if explicit == "" && fallback == "" {
		return "", ErrMissingCountryCode
	}

	code, ok := f.validCode(explicit)
	if !ok {
		if fallback == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidCountryCode, explicit)
		}
		if code, ok = f.validCode(fallback); !ok {
			return "", fmt.Errorf("%w: %q", ErrInvalidCountryCode, fallback)
		}
	}

	if rec, _ := f.reg.Country(code); rec != nil && rec.UseCountry != "" {
		if rec.ChangeCountry != "" {
			c.SetField(canon.Country, changeCountry(rec.ChangeCountry, c))
		}
		if key, value, ok := strings.Cut(rec.AddComponent, "="); ok && strings.TrimSpace(key) == "state" {
			c.SetField(canon.State, strings.TrimSpace(value))
		}
		code = rec.UseCountry
	}

	if code == "NL" {
		code = caribbeanNetherlands(c, code)
	}

	c.SetField(canon.CountryCode, code)
	return code, nil
}

func (f *Formatter) validCode(raw string) (string, bool) {
	code := strings.ToUpper(raw)
	if code == "UK" {
		code = "GB"
	}
	if len(code) != 2 || !f.reg.Has(code) {
		return "", false
	}
	return code, true
}

// changeCountry substitutes the first $field token of tmpl with that
// component's value, or removes it when the component is absent.
func changeCountry(tmpl string, c *canon.Components) string {
	m := placeholderPattern.FindStringSubmatch(tmpl)
	if m == nil {
		return tmpl
	}
	value, _ := c.Get(m[1])
	return strings.TrimSpace(strings.Replace(tmpl, m[0], value, 1))
}

// caribbeanNetherlands reinterprets NL addresses whose state names one of
// the constituent countries of the kingdom.
func caribbeanNetherlands(c *canon.Components, code string) string {
	state, ok := c.Field(canon.State)
	if !ok || state == "" {
		return code
	}
	lower := strings.ToLower(state)
	switch {
	case norm.NFC.String(state) == "Curaçao":
		c.SetField(canon.Country, "Curaçao")
		return "CW"
	case strings.Contains(lower, "sint maarten"):
		c.SetField(canon.Country, "Sint Maarten")
		return "SX"
	case strings.Contains(lower, "aruba"):
		c.SetField(canon.Country, "Aruba")
		return "AW"
	}
	return code
}

package formatter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yourorg/address-formatter/internal/canon"
	"github.com/yourorg/address-formatter/internal/registry"
)

const maxPostcodeLen = 20

var (
	washingtonDC      = regexp.MustCompile(`(?i)^washington,? d\.?c\.?`)
	multiPostcode     = regexp.MustCompile(`\d+;\d+`)
	zipPlusZip        = regexp.MustCompile(`^(\d{5}),\d{5}`)
	urlValue          = regexp.MustCompile(`^https?://`)
	asciiWordBoundary = regexp.MustCompile(`^\w.*\w$|^\w$`)
)

// clean prepares components for rendering. Nothing here fails: data that
// cannot be used is dropped, moved to attention, or left as is.
func (f *Formatter) clean(c *canon.Components, rec *registry.CountryRecord, code string) {
	fixNumericCountry(c)
	f.applyReplace(c, rec)
	f.deriveStateCode(c, code)
	f.deriveCountyCode(c, code)
	f.collectAttention(c)
	sanitizePostcode(c)
	if f.abbreviate {
		f.applyAbbreviations(c, code)
	}
	c.Filter(func(_, v string) bool { return !urlValue.MatchString(v) })
}

// fixNumericCountry handles upstream data that puts the state in country
// and a number in its place.
func fixNumericCountry(c *canon.Components) {
	country, ok := c.Field(canon.Country)
	if !ok {
		return
	}
	state, ok := c.Field(canon.State)
	if !ok {
		return
	}
	if _, err := strconv.Atoi(strings.TrimSpace(country)); err != nil {
		return
	}
	c.SetField(canon.Country, state)
	c.DeleteField(canon.State)
}

func (f *Formatter) applyReplace(c *canon.Components, rec *registry.CountryRecord) {
	for _, rule := range rec.Replace {
		for _, key := range c.Keys() {
			value, _ := c.Get(key)
			if next := rule.ApplyTo(f.compiled.rules, key, value); next != value {
				c.Set(key, next)
			}
		}
	}
}

func (f *Formatter) deriveStateCode(c *canon.Components, code string) {
	if c.Value(canon.StateCode) != "" {
		return
	}
	state := c.Value(canon.State)
	if state == "" {
		return
	}
	if washingtonDC.MatchString(state) {
		c.SetField(canon.StateCode, "DC")
		c.SetField(canon.State, "District of Columbia")
		c.SetField(canon.City, "Washington")
		return
	}
	if sc, ok := f.reg.StateCode(code, state); ok {
		c.SetField(canon.StateCode, sc)
	}
}

func (f *Formatter) deriveCountyCode(c *canon.Components, code string) {
	if c.Value(canon.CountyCode) != "" {
		return
	}
	county := c.Value(canon.County)
	if county == "" {
		return
	}
	if cc, ok := f.reg.CountyCode(code, county); ok {
		c.SetField(canon.CountyCode, cc)
	}
}

// collectAttention gathers the values of keys the rule tables do not know.
func (f *Formatter) collectAttention(c *canon.Components) {
	var unknown []string
	for _, key := range c.Keys() {
		if f.reg.IsKnownComponent(key) {
			continue
		}
		if v, _ := c.Get(key); v != "" {
			unknown = append(unknown, v)
		}
	}
	if len(unknown) > 0 {
		c.SetField(canon.Attention, strings.Join(unknown, ", "))
	}
}

func sanitizePostcode(c *canon.Components) {
	pc, ok := c.Field(canon.Postcode)
	if !ok {
		return
	}
	switch {
	case len(pc) > maxPostcodeLen:
		c.DeleteField(canon.Postcode)
	case multiPostcode.MatchString(pc):
		c.DeleteField(canon.Postcode)
	default:
		if m := zipPlusZip.FindStringSubmatch(pc); m != nil {
			c.SetField(canon.Postcode, m[1])
		}
	}
}

func (f *Formatter) applyAbbreviations(c *canon.Components, code string) {
	for _, lang := range f.reg.Languages(code) {
		for _, rule := range f.reg.Abbreviations(lang) {
			value, ok := c.Get(rule.Component)
			if !ok || value == "" {
				continue
			}
			for _, r := range rule.Replacements {
				re, err := f.compiled.rules.Compile(wholeWord(r.Src))
				if err != nil {
					continue
				}
				value = re.ReplaceAllString(value, "${1}"+strings.ReplaceAll(r.Dest, "$", "$$")+"${2}")
			}
			c.Set(rule.Component, value)
		}
	}
}

// wholeWord builds a pattern matching src as a whole word. Sources that start
// and end with ASCII word characters use \b; others (Straße) need a
// Unicode-aware boundary, which RE2's \b is not. Both forms expose the
// surrounding boundary text as groups 1 and 2.
func wholeWord(src string) string {
	quoted := regexp.QuoteMeta(src)
	if asciiWordBoundary.MatchString(src) {
		return `()\b` + quoted + `\b()`
	}
	return `(^|[^\p{L}\p{N}_])` + quoted + `($|[^\p{L}\p{N}_])`
}

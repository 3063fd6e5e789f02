package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"
)

// SnakeCase converts camelCase, PascalCase and upper-case keys to lower
// snake_case: "houseNumber" and "HOUSE_NUMBER" both become "house_number".
func SnakeCase(key string) string {
	key = strings.TrimSpace(key)
	rs := []rune(key)
	var b strings.Builder
	b.Grow(len(key) + 4)
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := rs[i-1]
				nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if r == '-' || r == ' ' {
			r = '_'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Normalize keys raw pairs by their snake_case name. When two raw keys
// normalize to the same name the first one wins. Values are not altered.
func Normalize(raw []Pair) *Components {
	c := New()
	for _, p := range raw {
		key := SnakeCase(p.Key)
		if key == "" || c.Has(key) {
			continue
		}
		c.Set(key, p.Value)
	}
	return c
}

// Key derives a stable identity for a format request. Components that format
// differently never share a key: canonical fields are hashed in their fixed
// order, other keys in insertion order (which sets the attention order), and
// values exactly as given.
func Key(c *Components, fallback string, flags ...string) string {
	h := sha256.New()
	field := func(s string) {
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}
	for _, k := range c.Keys() {
		v, _ := c.Get(k)
		field(k)
		field(v)
	}
	field(strings.ToUpper(strings.TrimSpace(fallback)))
	for _, f := range flags {
		field(f)
	}
	return hex.EncodeToString(h.Sum(nil))
}

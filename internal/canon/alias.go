package canon

// AliasResolver lists, in table order, the canonical names a key is an alias
// for. A canonical name is listed as an alias of itself.
type AliasResolver interface {
	AliasesFor(key string) []string
}

// ApplyAliases adds the canonical name for every aliased key. The first
// canonical name that is not already present wins; the original key stays in
// place so templates can still refer to it.
func ApplyAliases(c *Components, r AliasResolver) {
	for _, key := range c.Keys() {
		value, _ := c.Get(key)
		for _, name := range r.AliasesFor(key) {
			if c.Has(name) {
				continue
			}
			c.Set(name, value)
			break
		}
	}
}

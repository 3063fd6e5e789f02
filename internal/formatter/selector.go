package formatter

import (
	"strings"

	"github.com/yourorg/address-formatter/internal/canon"
	"github.com/yourorg/address-formatter/internal/registry"
)

func (f *Formatter) selectRecord(code string) *registry.CountryRecord {
	if rec, ok := f.reg.Country(code); ok {
		return rec
	}
	return f.reg.Default()
}

// templateText picks the primary template, or the fallback one when the
// address has neither a road nor a postcode. A record without the wanted
// template borrows it from the default record.
func (f *Formatter) templateText(rec *registry.CountryRecord, c *canon.Components) string {
	def := f.reg.Default()
	ref, defRef := rec.AddressTemplate, def.AddressTemplate
	if c.Value(canon.Road) == "" && c.Value(canon.Postcode) == "" {
		ref, defRef = rec.FallbackTemplate, def.FallbackTemplate
	}
	if strings.TrimSpace(ref) == "" {
		ref = defRef
	}
	return f.reg.ResolveTemplate(ref)
}

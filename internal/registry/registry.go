// Package registry holds the address rule tables: per-country template
// records, component aliases, abbreviations, languages, country names and
// state/county codes. A Registry is built once and is read-only afterwards, so
// it can be shared by concurrent formatting calls without locking.
package registry

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/yourorg/address-formatter/internal/rules"
)

// DefaultKey names the record used when a country has no record of its own.
const DefaultKey = "default"

// CountryRecord is one entry of the worldwide template table.
type CountryRecord struct {
	Code              string
	AddressTemplate   string
	FallbackTemplate  string
	Replace           rules.List
	PostformatReplace rules.List
	UseCountry        string
	ChangeCountry     string
	AddComponent      string
}

// AliasEntry maps an alias to its canonical component name.
type AliasEntry struct {
	Alias string `json:"alias"`
	Name  string `json:"name"`
}

// Replacement is one abbreviation pair.
type Replacement struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
}

// AbbreviationRule lists the abbreviations of one language for one component.
type AbbreviationRule struct {
	Component    string        `json:"component"`
	Replacements []Replacement `json:"replacements"`
}

// CodeEntry is a region short code with its names. Name is the plain value or
// the "default" sub-key; Alternates holds the other sub-keys (usually
// per-language names).
type CodeEntry struct {
	Code       string
	Name       string
	Alternates map[string]string
}

// Registry is the immutable rule set.
type Registry struct {
	countries     map[string]*CountryRecord
	templates     map[string]string
	aliases       []AliasEntry
	aliasIndex    map[string][]string
	abbreviations map[string][]AbbreviationRule
	languages     map[string][]string
	countryNames  map[string]string
	stateCodes    map[string][]CodeEntry
	countyCodes   map[string][]CodeEntry
}

// Has reports whether code has a record. The default record is not a country.
func (r *Registry) Has(code string) bool {
	if code == DefaultKey {
		return false
	}
	_, ok := r.countries[code]
	return ok
}

// Country returns the record for code.
func (r *Registry) Country(code string) (*CountryRecord, bool) {
	rec, ok := r.countries[code]
	return rec, ok
}

// Default returns the default record.
func (r *Registry) Default() *CountryRecord {
	return r.countries[DefaultKey]
}

// Codes lists every country code with a record, sorted.
func (r *Registry) Codes() []string {
	out := make([]string, 0, len(r.countries))
	for code := range r.countries {
		if code != DefaultKey {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}

// Template returns a named template.
func (r *Registry) Template(name string) (string, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// ResolveTemplate turns a template reference into template text: a name of a
// shared template resolves to that template, anything else is inline text.
func (r *Registry) ResolveTemplate(ref string) string {
	if t, ok := r.Template(strings.TrimSpace(ref)); ok {
		return t
	}
	return ref
}

// Aliases returns the alias table in order.
func (r *Registry) Aliases() []AliasEntry {
	return append([]AliasEntry(nil), r.aliases...)
}

// AliasesFor lists the canonical names key is an alias for, in table order.
func (r *Registry) AliasesFor(key string) []string {
	return r.aliasIndex[key]
}

// IsKnownComponent reports whether key is a canonical name or an alias.
func (r *Registry) IsKnownComponent(key string) bool {
	_, ok := r.aliasIndex[key]
	return ok
}

// Abbreviations returns the rules of an upper-cased language code.
func (r *Registry) Abbreviations(lang string) []AbbreviationRule {
	return r.abbreviations[strings.ToUpper(lang)]
}

// Languages returns the upper-cased languages spoken in a country.
func (r *Registry) Languages(code string) []string {
	return r.languages[code]
}

// CountryName returns the display name of a country.
func (r *Registry) CountryName(code string) (string, bool) {
	n, ok := r.countryNames[code]
	return n, ok
}

// StateCode looks up the short code of a state by name, case-insensitively.
func (r *Registry) StateCode(country, state string) (string, bool) {
	return lookupCode(r.stateCodes[country], state)
}

// CountyCode looks up the short code of a county by name, case-insensitively.
func (r *Registry) CountyCode(country, county string) (string, bool) {
	return lookupCode(r.countyCodes[country], county)
}

func lookupCode(entries []CodeEntry, name string) (string, bool) {
	if len(entries) == 0 {
		return "", false
	}
	want := foldName(name)
	for _, e := range entries {
		if e.Name != "" && foldName(e.Name) == want {
			return e.Code, true
		}
	}
	return "", false
}

func foldName(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

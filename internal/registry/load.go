package registry

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/address-formatter/internal/rules"
)

// Asset file names, relative to the rules root.
const (
	WorldwideFile     = "countries/worldwide.yaml"
	ComponentsFile    = "components.yaml"
	CountryNamesFile  = "country_codes.yaml"
	Country2LangFile  = "country2lang.yaml"
	StateCodesFile    = "state_codes.yaml"
	CountyCodesFile   = "county_codes.yaml"
	AbbreviationsDir  = "abbreviations"
	abbreviationsGlob = ".yaml"
)

// Assets is the raw rule data. Worldwide and Components are required; the
// other tables may be empty. Abbreviations is keyed by language code.
type Assets struct {
	Worldwide     []byte
	Components    []byte
	CountryNames  []byte
	Country2Lang  []byte
	StateCodes    []byte
	CountyCodes   []byte
	Abbreviations map[string][]byte
}

//go:embed conf
var embedded embed.FS

// Default builds the registry shipped with the binary.
func Default() (*Registry, error) {
	sub, err := fs.Sub(embedded, "conf")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub)
}

// LoadFS reads the rule layout from fsys and parses it.
func LoadFS(fsys fs.FS) (*Registry, error) {
	var a Assets
	var err error
	if a.Worldwide, err = fs.ReadFile(fsys, WorldwideFile); err != nil {
		return nil, fmt.Errorf("read %s: %w", WorldwideFile, err)
	}
	if a.Components, err = fs.ReadFile(fsys, ComponentsFile); err != nil {
		return nil, fmt.Errorf("read %s: %w", ComponentsFile, err)
	}
	optional := []struct {
		name string
		dst  *[]byte
	}{
		{CountryNamesFile, &a.CountryNames},
		{Country2LangFile, &a.Country2Lang},
		{StateCodesFile, &a.StateCodes},
		{CountyCodesFile, &a.CountyCodes},
	}
	for _, o := range optional {
		b, err := fs.ReadFile(fsys, o.name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", o.name, err)
		}
		*o.dst = b
	}

	entries, err := fs.ReadDir(fsys, AbbreviationsDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", AbbreviationsDir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), abbreviationsGlob) {
			continue
		}
		name := path.Join(AbbreviationsDir, e.Name())
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if a.Abbreviations == nil {
			a.Abbreviations = make(map[string][]byte)
		}
		a.Abbreviations[strings.TrimSuffix(e.Name(), abbreviationsGlob)] = b
	}
	return Parse(a)
}

// Parse builds a Registry from raw assets.
func Parse(a Assets) (*Registry, error) {
	r := &Registry{
		countries:     make(map[string]*CountryRecord),
		templates:     make(map[string]string),
		aliasIndex:    make(map[string][]string),
		abbreviations: make(map[string][]AbbreviationRule),
		languages:     make(map[string][]string),
		countryNames:  make(map[string]string),
		stateCodes:    make(map[string][]CodeEntry),
		countyCodes:   make(map[string][]CodeEntry),
	}
	if err := r.parseWorldwide(a.Worldwide); err != nil {
		return nil, fmt.Errorf("%s: %w", WorldwideFile, err)
	}
	if err := r.parseComponents(a.Components); err != nil {
		return nil, fmt.Errorf("%s: %w", ComponentsFile, err)
	}
	if err := decodeOptional(a.CountryNames, &r.countryNames); err != nil {
		return nil, fmt.Errorf("%s: %w", CountryNamesFile, err)
	}
	if err := r.parseCountry2Lang(a.Country2Lang); err != nil {
		return nil, fmt.Errorf("%s: %w", Country2LangFile, err)
	}
	var err error
	if r.stateCodes, err = parseCodes(a.StateCodes); err != nil {
		return nil, fmt.Errorf("%s: %w", StateCodesFile, err)
	}
	if r.countyCodes, err = parseCodes(a.CountyCodes); err != nil {
		return nil, fmt.Errorf("%s: %w", CountyCodesFile, err)
	}
	for lang, b := range a.Abbreviations {
		list, err := parseAbbreviations(b)
		if err != nil {
			return nil, fmt.Errorf("%s/%s%s: %w", AbbreviationsDir, lang, abbreviationsGlob, err)
		}
		r.abbreviations[strings.ToUpper(lang)] = list
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

type rawRecord struct {
	AddressTemplate   string     `yaml:"address_template"`
	FallbackTemplate  string     `yaml:"fallback_template"`
	Replace           [][]string `yaml:"replace"`
	PostformatReplace [][]string `yaml:"postformat_replace"`
	UseCountry        string     `yaml:"use_country"`
	ChangeCountry     string     `yaml:"change_country"`
	AddComponent      string     `yaml:"add_component"`
}

func (r *Registry) parseWorldwide(b []byte) error {
	if len(bytes.TrimSpace(b)) == 0 {
		return errors.New("empty worldwide table")
	}
	var top map[string]yaml.Node
	if err := yaml.Unmarshal(b, &top); err != nil {
		return err
	}
	for key, node := range top {
		n := node
		if n.Kind == yaml.AliasNode && n.Alias != nil {
			n = *n.Alias
		}
		switch n.Kind {
		case yaml.ScalarNode:
			r.templates[key] = n.Value
		case yaml.MappingNode:
			var raw rawRecord
			if err := n.Decode(&raw); err != nil {
				return fmt.Errorf("record %s: %w", key, err)
			}
			rec := &CountryRecord{
				Code:             key,
				AddressTemplate:  raw.AddressTemplate,
				FallbackTemplate: raw.FallbackTemplate,
				UseCountry:       strings.ToUpper(strings.TrimSpace(raw.UseCountry)),
				ChangeCountry:    raw.ChangeCountry,
				AddComponent:     strings.TrimSpace(raw.AddComponent),
			}
			var err error
			if rec.Replace, err = toRules(raw.Replace); err != nil {
				return fmt.Errorf("record %s replace: %w", key, err)
			}
			if rec.PostformatReplace, err = toRules(raw.PostformatReplace); err != nil {
				return fmt.Errorf("record %s postformat_replace: %w", key, err)
			}
			r.countries[key] = rec
		default:
			return fmt.Errorf("entry %s: unexpected node kind %d", key, n.Kind)
		}
	}
	return nil
}

func toRules(pairs [][]string) (rules.List, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(rules.List, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("rule %d: want [pattern, replacement], got %d items", i, len(p))
		}
		rule := rules.Parse(p[0], p[1])
		if !rule.Scoped() {
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
		}
		out = append(out, rule)
	}
	return out, nil
}

type rawComponent struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// parseComponents reads the multi-document component list and flattens it
// into alias entries: every alias of a component, then the component itself.
func (r *Registry) parseComponents(b []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	for {
		var c rawComponent
		err := dec.Decode(&c)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if c.Name == "" {
			continue
		}
		for _, alias := range c.Aliases {
			r.addAlias(alias, c.Name)
		}
		r.addAlias(c.Name, c.Name)
	}
	if len(r.aliases) == 0 {
		return errors.New("no components defined")
	}
	return nil
}

func (r *Registry) addAlias(alias, name string) {
	r.aliases = append(r.aliases, AliasEntry{Alias: alias, Name: name})
	r.aliasIndex[alias] = append(r.aliasIndex[alias], name)
}

func (r *Registry) parseCountry2Lang(b []byte) error {
	raw := map[string]string{}
	if err := decodeOptional(b, &raw); err != nil {
		return err
	}
	for code, langs := range raw {
		for _, l := range strings.Split(langs, ",") {
			if l = strings.TrimSpace(l); l != "" {
				r.languages[code] = append(r.languages[code], strings.ToUpper(l))
			}
		}
	}
	return nil
}

func decodeOptional(b []byte, dst any) error {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	return yaml.Unmarshal(b, dst)
}

// parseCodes reads a country -> (code -> name | {default: name, ...}) table,
// keeping entry order.
func parseCodes(b []byte) (map[string][]CodeEntry, error) {
	out := make(map[string][]CodeEntry)
	if len(bytes.TrimSpace(b)) == 0 {
		return out, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	root := documentRoot(&doc)
	if root == nil {
		return out, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("expected a mapping of countries")
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		country, codes := root.Content[i].Value, root.Content[i+1]
		if codes.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%s: expected a mapping of codes", country)
		}
		for j := 0; j+1 < len(codes.Content); j += 2 {
			e := CodeEntry{Code: codes.Content[j].Value}
			v := codes.Content[j+1]
			switch v.Kind {
			case yaml.ScalarNode:
				e.Name = v.Value
			case yaml.MappingNode:
				names := map[string]string{}
				if err := v.Decode(&names); err != nil {
					return nil, fmt.Errorf("%s/%s: %w", country, e.Code, err)
				}
				e.Name = names["default"]
				delete(names, "default")
				if len(names) > 0 {
					e.Alternates = names
				}
			default:
				return nil, fmt.Errorf("%s/%s: unexpected value", country, e.Code)
			}
			out[country] = append(out[country], e)
		}
	}
	return out, nil
}

// parseAbbreviations reads component -> (src -> dest) mappings in file order.
func parseAbbreviations(b []byte) ([]AbbreviationRule, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	root := documentRoot(&doc)
	if root == nil {
		return nil, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("expected a mapping of components")
	}
	var out []AbbreviationRule
	for i := 0; i+1 < len(root.Content); i += 2 {
		rule := AbbreviationRule{Component: root.Content[i].Value}
		pairs := root.Content[i+1]
		if pairs.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%s: expected a mapping of abbreviations", rule.Component)
		}
		for j := 0; j+1 < len(pairs.Content); j += 2 {
			rule.Replacements = append(rule.Replacements, Replacement{
				Src:  pairs.Content[j].Value,
				Dest: pairs.Content[j+1].Value,
			})
		}
		out = append(out, rule)
	}
	return out, nil
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil
		}
		return doc.Content[0]
	}
	return doc
}

// validate enforces that every template lookup terminates: the default record
// carries both templates and every redirect points at a real record.
func (r *Registry) validate() error {
	def, ok := r.countries[DefaultKey]
	if !ok {
		return fmt.Errorf("%s: missing %q record", WorldwideFile, DefaultKey)
	}
	if strings.TrimSpace(r.ResolveTemplate(def.AddressTemplate)) == "" {
		return fmt.Errorf("%s: default record has no address_template", WorldwideFile)
	}
	if strings.TrimSpace(r.ResolveTemplate(def.FallbackTemplate)) == "" {
		return fmt.Errorf("%s: default record has no fallback_template", WorldwideFile)
	}
	for code, rec := range r.countries {
		if rec.UseCountry == "" {
			continue
		}
		if _, ok := r.countries[rec.UseCountry]; !ok {
			return fmt.Errorf("%s: %s redirects to unknown country %s", WorldwideFile, code, rec.UseCountry)
		}
	}
	return nil
}

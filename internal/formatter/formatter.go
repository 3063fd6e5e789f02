// Package formatter turns geocoder-style address components into a postal
// address laid out the way the destination country writes it.
//
// A call runs the pipeline normalize → resolve country → append country →
// alias → select template → clean → render. Every call works on its own copy
// of the components; a Formatter only holds the immutable registry and
// concurrency-safe caches, so one value can serve any number of goroutines.
package formatter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/yourorg/address-formatter/internal/canon"
	"github.com/yourorg/address-formatter/internal/registry"
	"github.com/yourorg/address-formatter/internal/rules"
)

var (
	ErrMalformedInput     = canon.ErrMalformedInput
	ErrMissingCountryCode = errors.New("no country code provided")
	ErrInvalidCountryCode = errors.New("invalid country code")
	ErrInvalidOutput      = errors.New("invalid output format")
)

// Output selects how a formatted address is handed back to callers.
type Output int

const (
	// OutputString is the newline-terminated text block.
	OutputString Output = iota
	// OutputArray is one element per address line.
	OutputArray
)

// ParseOutput accepts "string" (the default when empty) or "array".
func ParseOutput(s string) (Output, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "string":
		return OutputString, nil
	case "array":
		return OutputArray, nil
	}
	return OutputString, fmt.Errorf("%w: %q", ErrInvalidOutput, s)
}

func (o Output) String() string {
	if o == OutputArray {
		return "array"
	}
	return "string"
}

// Lines splits formatted output into its address lines. The empty address
// has no lines.
func Lines(formatted string) []string {
	s := strings.TrimSuffix(formatted, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

type Formatter struct {
	reg           *registry.Registry
	compiled      *compiled
	abbreviate    bool
	appendCountry bool
	logger        *slog.Logger
}

// compiled memoizes the regexps and templates derived from the registry.
type compiled struct {
	rules     *rules.Cache
	templates sync.Map // template text -> *tmpl.Template
}

type Option func(*Formatter)

// WithAbbreviate enables the per-language abbreviation tables.
func WithAbbreviate(on bool) Option {
	return func(f *Formatter) {
		f.abbreviate = on
	}
}

// WithAppendCountry fills in the country name when the input has none.
func WithAppendCountry(on bool) Option {
	return func(f *Formatter) {
		f.appendCountry = on
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Formatter) {
		f.logger = logger
	}
}

func New(reg *registry.Registry, opts ...Option) (*Formatter, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	f := &Formatter{
		reg:      reg,
		compiled: &compiled{rules: rules.NewCache()},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// With returns a Formatter sharing f's registry and caches with opts applied
// on top of f's settings.
func (f *Formatter) With(opts ...Option) *Formatter {
	cp := *f
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// Registry returns the rule set the formatter reads.
func (f *Formatter) Registry() *registry.Registry { return f.reg }

func (f *Formatter) Abbreviates() bool { return f.abbreviate }

func (f *Formatter) AppendsCountry() bool { return f.appendCountry }

// Prepared is the state of a call right before rendering.
type Prepared struct {
	CountryCode string
	Record      *registry.CountryRecord
	Template    string
	Components  *canon.Components
}

// Format formats a plain component map. Map iteration order is not stable, so
// keys are taken in sorted order; use FormatPairs when input order matters.
func (f *Formatter) Format(ctx context.Context, components map[string]string, fallback string) (string, error) {
	return f.FormatPairs(ctx, canon.SortedPairs(components), fallback)
}

// FormatLines is FormatPairs returning one element per address line.
func (f *Formatter) FormatLines(ctx context.Context, raw []canon.Pair, fallback string) ([]string, error) {
	out, err := f.FormatPairs(ctx, raw, fallback)
	if err != nil {
		return nil, err
	}
	return Lines(out), nil
}

// FormatRaw decodes a JSON (or relaxed JSON) object of components and formats it.
func (f *Formatter) FormatRaw(ctx context.Context, data []byte, fallback string) (string, error) {
	pairs, err := canon.Decode(data)
	if err != nil {
		return "", err
	}
	return f.FormatPairs(ctx, pairs, fallback)
}

// FormatPairs formats components given in input order. fallback is the
// country code to use when the components carry no usable one.
func (f *Formatter) FormatPairs(ctx context.Context, raw []canon.Pair, fallback string) (string, error) {
	p, err := f.Prepare(ctx, raw, fallback)
	if err != nil {
		return "", err
	}
	out, err := f.Render(p)
	if err != nil {
		return "", err
	}
	f.logger.DebugContext(ctx, "address formatted",
		"country_code", p.CountryCode,
		"components", p.Components.Len(),
	)
	return out, nil
}

// Prepare runs every stage except rendering.
func (f *Formatter) Prepare(ctx context.Context, raw []canon.Pair, fallback string) (*Prepared, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := canon.Normalize(raw)

	code, err := f.resolveCountry(c, fallback)
	if err != nil {
		return nil, err
	}
	if f.appendCountry {
		f.appendCountryName(c, code)
	}
	canon.ApplyAliases(c, f.reg)

	rec := f.selectRecord(code)
	text := f.templateText(rec, c)
	f.clean(c, rec, code)

	return &Prepared{
		CountryCode: code,
		Record:      rec,
		Template:    text,
		Components:  c,
	}, nil
}

// Render fills p's template with its components and tidies the result.
func (f *Formatter) Render(p *Prepared) (string, error) { return f.render(p) }

func (f *Formatter) appendCountryName(c *canon.Components, code string) {
	if c.Value(canon.Country) != "" {
		return
	}
	if name, ok := f.reg.CountryName(code); ok {
		c.SetField(canon.Country, name)
	}
}

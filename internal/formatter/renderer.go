package formatter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yourorg/address-formatter/internal/tmpl"
)

// maxCleanupPasses bounds the fixpoint loop in Cleanup.
const maxCleanupPasses = 64

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// cleanupRewrites run in order; several only make sense after the ones
// before them.
var cleanupRewrites = []rewrite{
	{regexp.MustCompile(`[},\s]+$`), ""},
	{regexp.MustCompile(`^[,\s]+`), ""},
	{regexp.MustCompile(`^- `), ""},
	{regexp.MustCompile(`,\s*,`), ", "},
	{regexp.MustCompile(`[\t\p{Zs}]+,[\t\p{Zs}]+`), ", "},
	{regexp.MustCompile(`[\t\p{Zs}][\t\p{Zs}]+`), " "},
	{regexp.MustCompile(`[\t\p{Zs}]\n`), "\n"},
	{regexp.MustCompile(`\n,`), "\n"},
	{regexp.MustCompile(`,+`), ","},
	{regexp.MustCompile(`,\n`), "\n"},
	{regexp.MustCompile(`\n[\t\p{Zs}]+`), "\n"},
	{regexp.MustCompile(`\n+`), "\n"},
}

var helpers = map[string]tmpl.Helper{
	"first": First,
}

// First returns the first non-empty of the "||"-separated alternatives in body.
func First(body string) string {
	for _, alt := range strings.Split(body, "||") {
		if alt = strings.TrimSpace(alt); alt != "" {
			return alt
		}
	}
	return ""
}

func (f *Formatter) render(p *Prepared) (string, error) {
	t, err := f.compiled.template(p.Template)
	if err != nil {
		return "", fmt.Errorf("template for %s: %w", p.CountryCode, err)
	}
	out := Cleanup(t.Execute(p.Components, helpers))
	if len(p.Record.PostformatReplace) > 0 {
		out = p.Record.PostformatReplace.Apply(f.compiled.rules, out)
	}
	out = Cleanup(out)
	return strings.TrimSpace(out) + "\n", nil
}

func (c *compiled) template(text string) (*tmpl.Template, error) {
	if v, ok := c.templates.Load(text); ok {
		return v.(*tmpl.Template), nil
	}
	t, err := tmpl.Parse(text)
	if err != nil {
		return nil, err
	}
	v, _ := c.templates.LoadOrStore(text, t)
	return v.(*tmpl.Template), nil
}

// Cleanup normalizes rendered template output: stray punctuation and
// whitespace are collapsed, empty lines removed, and repeated tokens within a
// line and repeated lines dropped. It is repeated until the text stops
// changing, so Cleanup(Cleanup(s)) == Cleanup(s).
func Cleanup(s string) string {
	for i := 0; i < maxCleanupPasses; i++ {
		next := dedupe(rewriteOnce(s))
		if next == s {
			break
		}
		s = next
	}
	return s
}

func rewriteOnce(s string) string {
	for _, rw := range cleanupRewrites {
		s = rw.re.ReplaceAllString(s, rw.repl)
	}
	return s
}

// dedupe drops repeated ", "-separated tokens within each line and then
// repeated lines, keeping first occurrences.
func dedupe(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	seenLines := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		tokens := strings.Split(line, ", ")
		kept := tokens[:0]
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			kept = append(kept, tok)
		}
		line = strings.Join(kept, ", ")
		if line == "" {
			continue
		}
		if _, dup := seenLines[line]; dup {
			continue
		}
		seenLines[line] = struct{}{}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

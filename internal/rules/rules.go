// Package rules applies ordered regular-expression rewrite rules, the way the
// address rule tables express them: a list of (pattern, replacement) pairs, some
// scoped to a single component with a "^field=value" pattern.
package rules

import (
	"regexp"
	"strings"
	"sync"
)

// Cache memoizes compiled patterns by their source text.
type Cache struct {
	m sync.Map // pattern -> *regexp.Regexp
}

// NewCache returns an empty pattern cache safe for concurrent use.
func NewCache() *Cache { return &Cache{} }

// Compile returns the compiled pattern, compiling it on first use.
func (c *Cache) Compile(pattern string) (*regexp.Regexp, error) {
	if v, ok := c.m.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	v, _ := c.m.LoadOrStore(pattern, re)
	return v.(*regexp.Regexp), nil
}

// Rule is one rewrite step. A scoped rule (Field != "") replaces the whole
// value of Field when it equals Match; an unscoped rule is a global regexp
// substitution.
type Rule struct {
	Field       string
	Match       string
	Pattern     string
	Replacement string
}

var scopedPattern = regexp.MustCompile(`^\^([a-z_]+)=(.*)$`)

// Parse turns a raw (pattern, replacement) pair into a Rule.
func Parse(pattern, replacement string) Rule {
	if m := scopedPattern.FindStringSubmatch(pattern); m != nil {
		return Rule{Field: m[1], Match: m[2], Pattern: pattern, Replacement: replacement}
	}
	return Rule{Pattern: pattern, Replacement: ExpandReplacement(replacement)}
}

// Scoped reports whether the rule targets a single component.
func (r Rule) Scoped() bool { return r.Field != "" }

// ApplyTo rewrites value for the component named field. Scoped rules for other
// fields leave the value untouched. Invalid patterns are skipped.
func (r Rule) ApplyTo(c *Cache, field, value string) string {
	if r.Scoped() {
		if r.Field == field && value == r.Match {
			return r.Replacement
		}
		return value
	}
	re, err := c.Compile(r.Pattern)
	if err != nil {
		return value
	}
	return re.ReplaceAllString(value, r.Replacement)
}

// Apply runs a global substitution over text; scoped rules never match
// rendered text.
func (r Rule) Apply(c *Cache, text string) string {
	if r.Scoped() {
		return text
	}
	re, err := c.Compile(r.Pattern)
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, r.Replacement)
}

// List is an ordered rule chain; every rule sees the previous rule's output.
type List []Rule

// ApplyTo runs the chain against one component value.
func (l List) ApplyTo(c *Cache, field, value string) string {
	for _, r := range l {
		value = r.ApplyTo(c, field, value)
	}
	return value
}

// Apply runs the chain against free text.
func (l List) Apply(c *Cache, text string) string {
	for _, r := range l {
		text = r.Apply(c, text)
	}
	return text
}

// ExpandReplacement rewrites numeric group references ($1) into the braced
// form ($1 followed by letters would otherwise name a group).
func ExpandReplacement(repl string) string {
	if !strings.Contains(repl, "$") {
		return repl
	}
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		ch := repl[i]
		if ch != '$' || i+1 >= len(repl) || repl[i+1] < '0' || repl[i+1] > '9' {
			b.WriteByte(ch)
			continue
		}
		j := i + 1
		for j < len(repl) && repl[j] >= '0' && repl[j] <= '9' {
			j++
		}
		b.WriteString("${")
		b.WriteString(repl[i+1 : j])
		b.WriteString("}")
		i = j - 1
	}
	return b.String()
}

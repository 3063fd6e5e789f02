// Package tmpl implements the small mustache subset used by address templates:
// variable interpolation, truthy and inverted sections, comments, and named
// helper sections such as {{#first}} a || b {{/first}}.
package tmpl

import (
	"errors"
	"fmt"
	"html"
	"strings"
)

// Context resolves a variable name to its value.
type Context interface {
	Lookup(name string) (string, bool)
}

// Map is a Context backed by a plain map.
type Map map[string]string

func (m Map) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Helper post-processes the rendered body of a section.
type Helper func(body string) string

var ErrSyntax = errors.New("template syntax error")

type nodeKind int

const (
	textNode nodeKind = iota
	varNode
	sectionNode
	invertedNode
)

type node struct {
	kind     nodeKind
	text     string
	escape   bool
	children []node
}

// Template is a parsed template, safe for concurrent Execute calls.
type Template struct {
	nodes []node
}

// Parse compiles template text.
func Parse(src string) (*Template, error) {
	p := &parser{src: src}
	nodes, closer, err := p.parse("")
	if err != nil {
		return nil, err
	}
	if closer != "" {
		return nil, fmt.Errorf("%w: unexpected {{/%s}}", ErrSyntax, closer)
	}
	return &Template{nodes: nodes}, nil
}

// Execute renders the template.
func (t *Template) Execute(ctx Context, helpers map[string]Helper) string {
	var b strings.Builder
	render(&b, t.nodes, ctx, helpers)
	return b.String()
}

func render(b *strings.Builder, nodes []node, ctx Context, helpers map[string]Helper) {
	for _, n := range nodes {
		switch n.kind {
		case textNode:
			b.WriteString(n.text)
		case varNode:
			v, _ := ctx.Lookup(n.text)
			if n.escape {
				v = html.EscapeString(v)
			}
			b.WriteString(v)
		case sectionNode:
			if h, ok := helpers[n.text]; ok {
				var inner strings.Builder
				render(&inner, n.children, ctx, helpers)
				b.WriteString(h(inner.String()))
				continue
			}
			if v, ok := ctx.Lookup(n.text); ok && v != "" {
				render(b, n.children, ctx, helpers)
			}
		case invertedNode:
			if v, ok := ctx.Lookup(n.text); !ok || v == "" {
				render(b, n.children, ctx, helpers)
			}
		}
	}
}

type parser struct {
	src string
	pos int
}

// parse reads nodes until the closing tag for section (or EOF when section is
// empty) and returns the name of the closing tag it stopped at.
func (p *parser) parse(section string) ([]node, string, error) {
	var nodes []node
	for p.pos < len(p.src) {
		open := strings.Index(p.src[p.pos:], "{{")
		if open < 0 {
			nodes = append(nodes, node{kind: textNode, text: p.src[p.pos:]})
			p.pos = len(p.src)
			break
		}
		if open > 0 {
			nodes = append(nodes, node{kind: textNode, text: p.src[p.pos : p.pos+open]})
		}
		p.pos += open

		if strings.HasPrefix(p.src[p.pos:], "{{{") {
			end := strings.Index(p.src[p.pos+3:], "}}}")
			if end < 0 {
				return nil, "", fmt.Errorf("%w: unclosed {{{ at offset %d", ErrSyntax, p.pos)
			}
			name := strings.TrimSpace(p.src[p.pos+3 : p.pos+3+end])
			nodes = append(nodes, node{kind: varNode, text: name})
			p.pos += 3 + end + 3
			continue
		}

		end := strings.Index(p.src[p.pos+2:], "}}")
		if end < 0 {
			return nil, "", fmt.Errorf("%w: unclosed {{ at offset %d", ErrSyntax, p.pos)
		}
		tag := strings.TrimSpace(p.src[p.pos+2 : p.pos+2+end])
		p.pos += 2 + end + 2
		if tag == "" {
			return nil, "", fmt.Errorf("%w: empty tag at offset %d", ErrSyntax, p.pos)
		}

		switch tag[0] {
		case '!':
		case '&':
			nodes = append(nodes, node{kind: varNode, text: strings.TrimSpace(tag[1:])})
		case '#', '^':
			name := strings.TrimSpace(tag[1:])
			children, closer, err := p.parse(name)
			if err != nil {
				return nil, "", err
			}
			if closer != name {
				return nil, "", fmt.Errorf("%w: section %q is not closed", ErrSyntax, name)
			}
			kind := sectionNode
			if tag[0] == '^' {
				kind = invertedNode
			}
			nodes = append(nodes, node{kind: kind, text: name, children: children})
		case '/':
			name := strings.TrimSpace(tag[1:])
			if name != section {
				return nil, "", fmt.Errorf("%w: {{/%s}} closes %q", ErrSyntax, name, section)
			}
			return nodes, name, nil
		default:
			nodes = append(nodes, node{kind: varNode, text: tag, escape: true})
		}
	}
	return nodes, "", nil
}

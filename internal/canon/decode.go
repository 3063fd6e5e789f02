package canon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrMalformedInput is returned when component data cannot be read as a flat
// key/value mapping.
var ErrMalformedInput = errors.New("malformed component input")

// Decode reads a flat mapping of components. Strict JSON is tried first; the
// relaxed forms geocoder clients tend to send (unquoted keys, single quotes,
// trailing commas) are read as YAML flow mappings. Number and boolean values
// keep their literal text; null values are skipped. Input order is preserved.
func Decode(data []byte) ([]Pair, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedInput)
	}
	if pairs, ok := decodeJSON(data); ok {
		return pairs, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, fmt.Errorf("%w: expected a single document", ErrMalformedInput)
	}
	return pairsOf(doc.Content[0])
}

// DecodeNode reads components from an already-parsed mapping node.
func DecodeNode(n *yaml.Node) ([]Pair, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: missing components", ErrMalformedInput)
	}
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		n = n.Content[0]
	}
	return pairsOf(n)
}

func pairsOf(n *yaml.Node) ([]Pair, error) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: expected a mapping at line %d", ErrMalformedInput, n.Line)
	}
	out := make([]Pair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind == yaml.AliasNode && v.Alias != nil {
			v = v.Alias
		}
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: non-scalar key at line %d", ErrMalformedInput, k.Line)
		}
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: value of %q is not a scalar", ErrMalformedInput, k.Value)
		}
		if v.Tag == "!!null" {
			continue
		}
		out = append(out, Pair{Key: k.Value, Value: v.Value})
	}
	return out, nil
}

// decodeJSON reads data as a strict JSON object of scalars. ok is false for
// anything else, including valid JSON of another shape.
func decodeJSON(data []byte) (pairs []Pair, ok bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, false
	}
	pairs = []Pair{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, isKey := tok.(string)
		if !isKey {
			return nil, false
		}
		if tok, err = dec.Token(); err != nil {
			return nil, false
		}
		switch v := tok.(type) {
		case string:
			pairs = append(pairs, Pair{Key: key, Value: v})
		case json.Number:
			pairs = append(pairs, Pair{Key: key, Value: v.String()})
		case bool:
			pairs = append(pairs, Pair{Key: key, Value: strconv.FormatBool(v)})
		case nil:
		default:
			return nil, false
		}
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return pairs, true
}

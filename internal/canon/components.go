package canon

import (
	"sort"
	"strconv"
	"strings"
)

// Field is a canonical address component.
type Field int

const (
	Attention Field = iota
	House
	HouseNumber
	Road
	Hamlet
	Village
	Neighbourhood
	Suburb
	PostalCity
	City
	Municipality
	County
	CountyCode
	StateDistrict
	State
	StateCode
	Region
	Island
	Archipelago
	Postcode
	Country
	CountryCode
	Continent

	numFields
)

var fieldNames = [numFields]string{
	Attention:     "attention",
	House:         "house",
	HouseNumber:   "house_number",
	Road:          "road",
	Hamlet:        "hamlet",
	Village:       "village",
	Neighbourhood: "neighbourhood",
	Suburb:        "suburb",
	PostalCity:    "postal_city",
	City:          "city",
	Municipality:  "municipality",
	County:        "county",
	CountyCode:    "county_code",
	StateDistrict: "state_district",
	State:         "state",
	StateCode:     "state_code",
	Region:        "region",
	Island:        "island",
	Archipelago:   "archipelago",
	Postcode:      "postcode",
	Country:       "country",
	CountryCode:   "country_code",
	Continent:     "continent",
}

var fieldsByName = func() map[string]Field {
	m := make(map[string]Field, numFields)
	for f, name := range fieldNames {
		m[name] = Field(f)
	}
	return m
}()

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return "field(" + strconv.Itoa(int(f)) + ")"
	}
	return fieldNames[f]
}

// ParseField maps a snake_case name to its Field.
func ParseField(name string) (Field, bool) {
	f, ok := fieldsByName[name]
	return f, ok
}

// Fields lists every canonical field in declaration order.
func Fields() []Field {
	out := make([]Field, numFields)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// Pair is a raw key/value as supplied by the caller, in input order.
type Pair struct {
	Key   string
	Value string
}

// Components holds one address being formatted. Canonical fields live in
// fixed slots; any other key is kept, in insertion order, in a side table.
// A Components value is owned by a single format call.
type Components struct {
	values [numFields]string
	set    [numFields]bool
	extra  []Pair
}

// New returns an empty component set.
func New() *Components { return &Components{} }

// FromMap builds components from a map; key order among non-canonical keys
// follows the sorted key order so results are deterministic.
func FromMap(m map[string]string) *Components {
	c := New()
	for _, p := range SortedPairs(m) {
		c.Set(p.Key, p.Value)
	}
	return c
}

// SortedPairs lists the entries of m ordered by key.
func SortedPairs(m map[string]string) []Pair {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Pair, 0, len(keys))
	for _, k := range keys {
		out = append(out, Pair{Key: k, Value: m[k]})
	}
	return out
}

// Field returns the value of a canonical field.
func (c *Components) Field(f Field) (string, bool) {
	if f < 0 || f >= numFields || !c.set[f] {
		return "", false
	}
	return c.values[f], true
}

// Value returns the field value or "" when absent.
func (c *Components) Value(f Field) string {
	v, _ := c.Field(f)
	return v
}

// SetField stores a canonical field.
func (c *Components) SetField(f Field, v string) {
	c.values[f] = v
	c.set[f] = true
}

// DeleteField removes a canonical field.
func (c *Components) DeleteField(f Field) {
	c.values[f] = ""
	c.set[f] = false
}

// Get returns the value stored under name.
func (c *Components) Get(name string) (string, bool) {
	if f, ok := fieldsByName[name]; ok {
		return c.Field(f)
	}
	for _, p := range c.extra {
		if p.Key == name {
			return p.Value, true
		}
	}
	return "", false
}

// Lookup lets Components act as a template context.
func (c *Components) Lookup(name string) (string, bool) { return c.Get(name) }

// Has reports whether name is present.
func (c *Components) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Set stores value under name, overwriting any previous value.
func (c *Components) Set(name, value string) {
	if f, ok := fieldsByName[name]; ok {
		c.SetField(f, value)
		return
	}
	for i := range c.extra {
		if c.extra[i].Key == name {
			c.extra[i].Value = value
			return
		}
	}
	c.extra = append(c.extra, Pair{Key: name, Value: value})
}

// Delete removes name.
func (c *Components) Delete(name string) {
	if f, ok := fieldsByName[name]; ok {
		c.DeleteField(f)
		return
	}
	for i := range c.extra {
		if c.extra[i].Key == name {
			c.extra = append(c.extra[:i], c.extra[i+1:]...)
			return
		}
	}
}

// Keys lists present keys: canonical fields in declaration order, then other
// keys in insertion order.
func (c *Components) Keys() []string {
	keys := make([]string, 0, int(numFields)+len(c.extra))
	for f := Field(0); f < numFields; f++ {
		if c.set[f] {
			keys = append(keys, fieldNames[f])
		}
	}
	for _, p := range c.extra {
		keys = append(keys, p.Key)
	}
	return keys
}

// Len is the number of present keys.
func (c *Components) Len() int {
	n := len(c.extra)
	for _, ok := range c.set {
		if ok {
			n++
		}
	}
	return n
}

// Map flattens the components into a plain map.
func (c *Components) Map() map[string]string {
	m := make(map[string]string, c.Len())
	for _, k := range c.Keys() {
		m[k], _ = c.Get(k)
	}
	return m
}

// Filter drops every key for which keep returns false.
func (c *Components) Filter(keep func(key, value string) bool) {
	for _, k := range c.Keys() {
		v, _ := c.Get(k)
		if !keep(k, v) {
			c.Delete(k)
		}
	}
}

// String renders the components as "key=value" pairs, for logs.
func (c *Components) String() string {
	parts := make([]string, 0, c.Len())
	for _, k := range c.Keys() {
		v, _ := c.Get(k)
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}

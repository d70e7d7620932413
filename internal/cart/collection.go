package cart

import (
	"iter"
	"sort"
)

// Collection is an insertion-ordered container of values with unique string keys.
// The zero value is ready to use.
type Collection[V any] struct {
	keys   []string
	values map[string]V
}

// Group is one bucket produced by Collection.GroupBy.
type Group[V any] struct {
	Key    string
	Values []V
}

// LineItems holds the rows of a cart keyed by row identifier.
type LineItems = Collection[LineItem]

// PriceRules holds the price rules of a cart keyed by rule identifier.
type PriceRules = Collection[PriceRule]

// TaxRules holds aggregated tax rules keyed by tax identifier.
type TaxRules = Collection[TaxRule]

// NewCollection builds a collection from values keyed by key, preserving order.
// Later values replace earlier ones that share a key.
func NewCollection[V any](values []V, key func(V) string) *Collection[V] {
	c := &Collection[V]{values: make(map[string]V, len(values))}
	for _, v := range values {
		c.Put(key(v), v)
	}
	return c
}

// Has reports whether key is present.
func (c *Collection[V]) Has(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.values[key]
	return ok
}

// Get returns the value stored under key.
func (c *Collection[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	v, ok := c.values[key]
	return v, ok
}

// Put stores v under key. An existing key keeps its position.
func (c *Collection[V]) Put(key string, v V) {
	if c.values == nil {
		c.values = make(map[string]V)
	}
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = v
}

// Remove deletes key and returns the value it held.
func (c *Collection[V]) Remove(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	v, ok := c.values[key]
	if !ok {
		return zero, false
	}
	delete(c.values, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i:i], c.keys[i+1:]...)
			break
		}
	}
	return v, true
}

// Len returns the number of entries.
func (c *Collection[V]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Keys returns the keys in insertion order.
func (c *Collection[V]) Keys() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.keys...)
}

// Values returns the values in insertion order.
func (c *Collection[V]) Values() []V {
	if c == nil {
		return nil
	}
	out := make([]V, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.values[k])
	}
	return out
}

// All iterates over key/value pairs in insertion order.
func (c *Collection[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		if c == nil {
			return
		}
		for _, k := range c.Keys() {
			if !yield(k, c.values[k]) {
				return
			}
		}
	}
}

// Filter returns a new collection with the entries for which keep returns true.
func (c *Collection[V]) Filter(keep func(V) bool) *Collection[V] {
	out := &Collection[V]{values: make(map[string]V)}
	for k, v := range c.All() {
		if keep(v) {
			out.Put(k, v)
		}
	}
	return out
}

// Map returns a new collection holding fn applied to every value. Keys and order are kept.
func (c *Collection[V]) Map(fn func(V) V) *Collection[V] {
	out := &Collection[V]{values: make(map[string]V, c.Len())}
	for k, v := range c.All() {
		out.Put(k, fn(v))
	}
	return out
}

// SortBy returns the values ordered by less. Equal values keep insertion order.
func (c *Collection[V]) SortBy(less func(a, b V) bool) []V {
	values := c.Values()
	sort.SliceStable(values, func(i, j int) bool { return less(values[i], values[j]) })
	return values
}

// GroupBy buckets the values by key, with groups ordered by first appearance.
func (c *Collection[V]) GroupBy(key func(V) string) []Group[V] {
	var groups []Group[V]
	index := make(map[string]int)
	for _, v := range c.All() {
		k := key(v)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group[V]{Key: k})
		}
		groups[i].Values = append(groups[i].Values, v)
	}
	return groups
}

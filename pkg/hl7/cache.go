package hl7

import "sort"

// childCache is the indexed child cache shared by both tree models: a
// memoizing, integer-keyed factory holding one child wrapper per coordinate.
// Repeated lookups return the same handle, so callers may keep a handle and
// observe later mutations through it. Any index is storable; depth-specific
// minimums are enforced by the node that owns the cache.
type childCache[E any] struct {
	items map[int]E
}

func newChildCache[E any]() *childCache[E] {
	return &childCache[E]{items: make(map[int]E)}
}

// get returns the cached handle for index, invoking build to create it on
// first access. Addressing an index reserves it even when no content exists.
func (c *childCache[E]) get(index int, build func(int) E) E {
	if item, ok := c.items[index]; ok {
		return item
	}
	item := build(index)
	c.items[index] = item
	return item
}

// peek returns the handle for index without creating one.
func (c *childCache[E]) peek(index int) (E, bool) {
	item, ok := c.items[index]
	return item, ok
}

// clear drops every cached handle. Used when an ancestor's text is replaced
// wholesale; children are lazily re-created on next access.
func (c *childCache[E]) clear() {
	c.items = make(map[int]E)
}

// indices returns the cached indices in ascending numeric order. Assignment
// order is irrelevant for serialization; only the numeric order counts.
func (c *childCache[E]) indices() []int {
	keys := make([]int, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

package locate

import "sort"

// UsedSet records token indexes already claimed by a located field. One
// set exists per document.
type UsedSet map[int]struct{}

// NewUsedSet returns an empty set.
func NewUsedSet() UsedSet { return UsedSet{} }

// Has reports whether the token index is claimed.
func (u UsedSet) Has(i int) bool {
	_, ok := u[i]
	return ok
}

// Add claims the token indexes.
func (u UsedSet) Add(idx ...int) {
	for _, i := range idx {
		u[i] = struct{}{}
	}
}

// Sorted returns the claimed indexes in ascending order.
func (u UsedSet) Sorted() []int {
	out := make([]int, 0, len(u))
	for i := range u {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

package flatshelf

import (
	"encoding/json"
	"fmt"
	"slices"
)

// leafBinding ties a collection proxy to its leaf: the parent mapping plus the
// leaf's key within it.
type leafBinding struct {
	parent binding
	key    string
}

func (lb *leafBinding) Path() string {
	return JoinKey(appendChain(lb.parent.chain, lb.key)...)
}

// writeThrough stores v as the whole new value of the leaf, keeping the
// leaf's position among its siblings.
func (lb *leafBinding) writeThrough(v any) error {
	parent, err := lb.parent.resolve()
	if err != nil {
		return err
	}
	return lb.parent.s.rewriteLeaf(parent, lb.parent.chain, lb.key, v)
}

func (lb *leafBinding) reload() (nodeKind, any, error) {
	if _, err := lb.parent.resolve(); err != nil {
		return 0, nil, err
	}
	return lb.parent.s.fetch(appendChain(lb.parent.chain, lb.key))
}

// List is a live view of a stored sequence. It keeps a copy of the sequence
// loaded when the proxy was created; every mutation updates the copy and then
// rewrites the whole sequence to the store.
type List struct {
	leafBinding
	items []any
}

func (l *List) Len() int {
	return len(l.items)
}

// Values returns a copy of the elements.
func (l *List) Values() []any {
	return slices.Clone(l.items)
}

func (l *List) index(i int) (int, error) {
	if i < 0 {
		i += len(l.items)
	}
	if i < 0 || i >= len(l.items) {
		return 0, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(l.items))
	}
	return i, nil
}

// At returns the element at i; negative indices count from the end.
func (l *List) At(i int) (any, error) {
	i, err := l.index(i)
	if err != nil {
		return nil, err
	}
	return l.items[i], nil
}

// Index returns the position of the first element equal to v, or -1.
func (l *List) Index(v any) int {
	nv, err := normalize(v)
	if err != nil {
		return -1
	}
	return slices.IndexFunc(l.items, func(e any) bool { return valuesEqual(e, nv) })
}

func (l *List) Contains(v any) bool {
	return l.Index(v) >= 0
}

func (l *List) Count(v any) int {
	nv, err := normalize(v)
	if err != nil {
		return 0
	}
	var n int
	for _, e := range l.items {
		if valuesEqual(e, nv) {
			n++
		}
	}
	return n
}

// commit writes next through to the store and adopts it as the local copy.
func (l *List) commit(next []any) error {
	if err := l.writeThrough(next); err != nil {
		return err
	}
	l.items = next
	return nil
}

func normalizeAll(vs []any) ([]any, error) {
	out := make([]any, len(vs))
	for i, v := range vs {
		nv, err := normalize(v)
		if err != nil {
			return nil, err
		}
		out[i] = nv
	}
	return out, nil
}

func (l *List) Append(vs ...any) error {
	return l.Extend(vs)
}

func (l *List) Extend(vs []any) error {
	nvs, err := normalizeAll(vs)
	if err != nil {
		return err
	}
	return l.commit(append(slices.Clone(l.items), nvs...))
}

// Insert puts v before position i. Out-of-range positions are clamped.
func (l *List) Insert(i int, v any) error {
	nv, err := normalize(v)
	if err != nil {
		return err
	}
	n := len(l.items)
	if i < 0 {
		i = max(i+n, 0)
	}
	i = min(i, n)
	return l.commit(slices.Insert(slices.Clone(l.items), i, nv))
}

func (l *List) SetAt(i int, v any) error {
	i, err := l.index(i)
	if err != nil {
		return err
	}
	nv, err := normalize(v)
	if err != nil {
		return err
	}
	next := slices.Clone(l.items)
	next[i] = nv
	return l.commit(next)
}

// Remove deletes the first element equal to v.
func (l *List) Remove(v any) error {
	i := l.Index(v)
	if i < 0 {
		return fmt.Errorf("%w: %v not in list", ErrKeyNotFound, v)
	}
	return l.commit(slices.Delete(slices.Clone(l.items), i, i+1))
}

// Pop removes and returns the last element.
func (l *List) Pop() (any, error) {
	return l.PopAt(-1)
}

func (l *List) PopAt(i int) (any, error) {
	i, err := l.index(i)
	if err != nil {
		return nil, err
	}
	v := l.items[i]
	if err := l.commit(slices.Delete(slices.Clone(l.items), i, i+1)); err != nil {
		return nil, err
	}
	return v, nil
}

// Sort orders the elements ascending. All elements must be mutually
// comparable scalars (numbers, strings, bools or times).
func (l *List) Sort() error {
	next := slices.Clone(l.items)
	var cmpErr error
	slices.SortStableFunc(next, func(a, b any) int {
		c, ok := compareScalars(a, b)
		if !ok && cmpErr == nil {
			cmpErr = fmt.Errorf("%w: cannot order %T and %T", ErrNotComparable, a, b)
		}
		return c
	})
	if cmpErr != nil {
		return cmpErr
	}
	return l.commit(next)
}

func (l *List) Reverse() error {
	next := slices.Clone(l.items)
	slices.Reverse(next)
	return l.commit(next)
}

func (l *List) Clear() error {
	return l.commit([]any{})
}

// Reload replaces the local copy with what is currently stored.
func (l *List) Reload() error {
	_, v, err := l.reload()
	if err != nil {
		return err
	}
	items, ok := v.([]any)
	if !ok {
		return fmt.Errorf("%w: %s is no longer a list", ErrStaleNode, l.Path())
	}
	l.items = items
	return nil
}

func (l *List) materializeValue() (any, error) {
	return l.Values(), nil
}

func (l *List) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.items)
}

func (l *List) String() string {
	return formatValue(l.items)
}

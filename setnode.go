package flatshelf

import (
	"encoding/json"
	"fmt"
)

// SetNode is a live view of a stored set. Like List, it keeps a local copy
// and rewrites the whole set on every mutation. Set algebra queries return
// new *Set values and never write.
type SetNode struct {
	leafBinding
	set *Set
}

// toSet accepts *Set, Set, *SetNode, or anything that normalizes to a list.
func toSet(v any) (*Set, error) {
	switch x := v.(type) {
	case *SetNode:
		return x.set, nil
	case *Set:
		return x, nil
	}
	nv, err := normalize(v)
	if err != nil {
		return nil, err
	}
	switch x := nv.(type) {
	case *Set:
		return x, nil
	case []any:
		return setFromSlice(x)
	default:
		return nil, fmt.Errorf("%w: %T is not a collection", ErrUnsupportedValue, v)
	}
}

func toSets(vs []any) ([]*Set, error) {
	out := make([]*Set, len(vs))
	for i, v := range vs {
		s, err := toSet(v)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (n *SetNode) commit(next *Set) error {
	if err := n.writeThrough(next); err != nil {
		return err
	}
	n.set = next
	return nil
}

func (n *SetNode) Len() int {
	return n.set.Len()
}

func (n *SetNode) Contains(v any) bool {
	return n.set.Has(v)
}

func (n *SetNode) Values() []any {
	return n.set.Values()
}

// Copy returns a detached copy of the local set.
func (n *SetNode) Copy() *Set {
	return n.set.Clone()
}

func (n *SetNode) Add(v any) error {
	next := n.set.Clone()
	if err := next.Add(v); err != nil {
		return err
	}
	return n.commit(next)
}

// Discard removes v if present.
func (n *SetNode) Discard(v any) error {
	next := n.set.Clone()
	next.Discard(v)
	return n.commit(next)
}

// Remove removes v, failing with ErrKeyNotFound if it is absent.
func (n *SetNode) Remove(v any) error {
	if !n.set.Has(v) {
		return fmt.Errorf("%w: %v not in set", ErrKeyNotFound, v)
	}
	return n.Discard(v)
}

// Pop removes and returns the oldest element.
func (n *SetNode) Pop() (any, error) {
	next := n.set.Clone()
	v, ok := next.Pop()
	if !ok {
		return nil, fmt.Errorf("%w: pop from an empty set", ErrKeyNotFound)
	}
	if err := n.commit(next); err != nil {
		return nil, err
	}
	return v, nil
}

func (n *SetNode) Clear() error {
	return n.commit(&Set{})
}

// Update adds the elements of every given collection.
func (n *SetNode) Update(others ...any) error {
	sets, err := toSets(others)
	if err != nil {
		return err
	}
	return n.commit(n.set.Union(sets...))
}

func (n *SetNode) DifferenceUpdate(others ...any) error {
	sets, err := toSets(others)
	if err != nil {
		return err
	}
	return n.commit(n.set.Difference(sets...))
}

func (n *SetNode) IntersectionUpdate(others ...any) error {
	sets, err := toSets(others)
	if err != nil {
		return err
	}
	return n.commit(n.set.Intersection(sets...))
}

func (n *SetNode) SymmetricDifferenceUpdate(other any) error {
	o, err := toSet(other)
	if err != nil {
		return err
	}
	return n.commit(n.set.SymmetricDifference(o))
}

func (n *SetNode) Union(others ...*Set) *Set {
	return n.set.Union(others...)
}

func (n *SetNode) Intersection(others ...*Set) *Set {
	return n.set.Intersection(others...)
}

func (n *SetNode) Difference(others ...*Set) *Set {
	return n.set.Difference(others...)
}

func (n *SetNode) SymmetricDifference(o *Set) *Set {
	return n.set.SymmetricDifference(o)
}

func (n *SetNode) IsSubset(o *Set) bool   { return n.set.IsSubset(o) }
func (n *SetNode) IsSuperset(o *Set) bool { return n.set.IsSuperset(o) }
func (n *SetNode) IsDisjoint(o *Set) bool { return n.set.IsDisjoint(o) }
func (n *SetNode) Equal(o *Set) bool      { return n.set.Equal(o) }

// Reload replaces the local copy with what is currently stored.
func (n *SetNode) Reload() error {
	_, v, err := n.reload()
	if err != nil {
		return err
	}
	set, ok := v.(*Set)
	if !ok {
		return fmt.Errorf("%w: %s is no longer a set", ErrStaleNode, n.Path())
	}
	n.set = set
	return nil
}

func (n *SetNode) materializeValue() (any, error) {
	return n.set.Clone(), nil
}

func (n *SetNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.set)
}

func (n *SetNode) String() string {
	return n.set.String()
}

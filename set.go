package flatshelf

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Set is an insertion-ordered set of scalar values. Elements are normalized
// the same way stored values are, so NewSet(1) and NewSet(int64(1)) are equal.
// Numbers of equal value are the same element: NewSet(1, 1.0) holds just the
// first one, int64(1).
//
// The zero value is an empty set ready for use.
type Set struct {
	items []any
	pos   map[any]int
}

// NewSet returns a set of the given items. It panics if an item cannot be a
// set element; use (*Set).Add to get an error instead.
func NewSet(items ...any) *Set {
	s := &Set{}
	for _, item := range items {
		if err := s.Add(item); err != nil {
			panic(err)
		}
	}
	return s
}

func setFromSlice(items []any) (*Set, error) {
	s := &Set{}
	for _, item := range items {
		if err := s.Add(item); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func setElement(v any) (any, error) {
	nv, err := normalize(v)
	if err != nil {
		return nil, err
	}
	switch nv.(type) {
	case []byte, []any, map[string]any, *Set:
		return nil, fmt.Errorf("%w: %T", ErrNotComparable, v)
	}
	return nv, nil
}

// setKey is the identity of a normalized element in pos. Integral floats
// share the identity of the equal integer.
func setKey(e any) any {
	if f, ok := e.(float64); ok && f == math.Trunc(f) {
		if f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f)
		}
		if f >= 0 && f < math.MaxUint64 {
			return uint64(f)
		}
	}
	return e
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Add inserts v, returning an error if v cannot be a set element.
func (s *Set) Add(v any) error {
	e, err := setElement(v)
	if err != nil {
		return err
	}
	k := setKey(e)
	if _, found := s.pos[k]; found {
		return nil
	}
	if s.pos == nil {
		s.pos = make(map[any]int)
	}
	s.pos[k] = len(s.items)
	s.items = append(s.items, e)
	return nil
}

func (s *Set) Has(v any) bool {
	if s == nil {
		return false
	}
	e, err := setElement(v)
	if err != nil {
		return false
	}
	_, found := s.pos[setKey(e)]
	return found
}

// Discard removes v and reports whether it was present.
func (s *Set) Discard(v any) bool {
	if s == nil {
		return false
	}
	e, err := setElement(v)
	if err != nil {
		return false
	}
	k := setKey(e)
	i, found := s.pos[k]
	if !found {
		return false
	}
	delete(s.pos, k)
	s.items = slices.Delete(s.items, i, i+1)
	for j := i; j < len(s.items); j++ {
		s.pos[setKey(s.items[j])] = j
	}
	return true
}

// Pop removes and returns the oldest element.
func (s *Set) Pop() (any, bool) {
	if s.Len() == 0 {
		return nil, false
	}
	e := s.items[0]
	s.Discard(e)
	return e, true
}

// Values returns the elements in insertion order.
func (s *Set) Values() []any {
	if s == nil {
		return []any{}
	}
	return slices.Clone(s.items)
}

func (s *Set) Clone() *Set {
	out := &Set{}
	if s == nil {
		return out
	}
	out.items = slices.Clone(s.items)
	out.pos = make(map[any]int, len(s.items))
	for i, e := range out.items {
		out.pos[setKey(e)] = i
	}
	return out
}

func (s *Set) Equal(o *Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	return s.IsSubset(o)
}

func (s *Set) Union(others ...*Set) *Set {
	out := s.Clone()
	for _, o := range others {
		for _, e := range o.Values() {
			out.mustAdd(e)
		}
	}
	return out
}

func (s *Set) Intersection(others ...*Set) *Set {
	out := &Set{}
outer:
	for _, e := range s.Values() {
		for _, o := range others {
			if !o.Has(e) {
				continue outer
			}
		}
		out.mustAdd(e)
	}
	return out
}

func (s *Set) Difference(others ...*Set) *Set {
	out := &Set{}
outer:
	for _, e := range s.Values() {
		for _, o := range others {
			if o.Has(e) {
				continue outer
			}
		}
		out.mustAdd(e)
	}
	return out
}

func (s *Set) SymmetricDifference(o *Set) *Set {
	out := s.Difference(o)
	for _, e := range o.Values() {
		if !s.Has(e) {
			out.mustAdd(e)
		}
	}
	return out
}

func (s *Set) IsSubset(o *Set) bool {
	for _, e := range s.Values() {
		if !o.Has(e) {
			return false
		}
	}
	return true
}

func (s *Set) IsSuperset(o *Set) bool {
	return o.IsSubset(s)
}

func (s *Set) IsDisjoint(o *Set) bool {
	for _, e := range s.Values() {
		if o.Has(e) {
			return false
		}
	}
	return true
}

// mustAdd inserts an element that is already known to be valid.
func (s *Set) mustAdd(e any) {
	if err := s.Add(e); err != nil {
		panic(err)
	}
}

func (s *Set) String() string {
	var buf strings.Builder
	buf.WriteByte('{')
	for i, e := range s.Values() {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%v", e)
	}
	buf.WriteByte('}')
	return buf.String()
}

func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

package flatshelf

import (
	"slices"
	"testing"
)

func storedList(t testing.TB, s *Store, key string) []any {
	t.Helper()
	return must(s.Get(key)).(*List).Values()
}

func TestList_Mutators(t *testing.T) {
	forEachBackend(t, allBackends, func(t *testing.T, s *Store) {
		ensure(t, s.Set("l", []int{3, 1, 2}))
		l := must(s.Get("l")).(*List)
		deepEqual(t, l.Path(), "l")
		deepEqual(t, l.Len(), 3)

		ensure(t, l.Append(4, 5))
		deepEqual(t, storedList(t, s, "l"), []any{int64(3), int64(1), int64(2), int64(4), int64(5)})

		ensure(t, l.Insert(0, 0))
		ensure(t, l.Insert(-1, "x"))
		ensure(t, l.Insert(100, "end"))
		deepEqual(t, storedList(t, s, "l"), []any{int64(0), int64(3), int64(1), int64(2), int64(4), "x", int64(5), "end"})

		deepEqual(t, must(l.Pop()), any("end"))
		deepEqual(t, must(l.PopAt(0)), any(int64(0)))
		ensure(t, l.Remove("x"))
		isErr(t, l.Remove("x"), ErrKeyNotFound)
		deepEqual(t, storedList(t, s, "l"), []any{int64(3), int64(1), int64(2), int64(4), int64(5)})

		ensure(t, l.SetAt(-1, 50))
		ensure(t, l.Sort())
		deepEqual(t, storedList(t, s, "l"), []any{int64(1), int64(2), int64(3), int64(4), int64(50)})

		ensure(t, l.Reverse())
		deepEqual(t, storedList(t, s, "l"), []any{int64(50), int64(4), int64(3), int64(2), int64(1)})

		ensure(t, l.Extend([]any{1.5}))
		deepEqual(t, l.Count(1), 1)
		deepEqual(t, l.Index(1.5), 5)
		deepEqual(t, l.Contains(int8(4)), true)
		deepEqual(t, l.Index("missing"), -1)

		ensure(t, l.Clear())
		deepEqual(t, l.Len(), 0)
		deepEqual(t, storedList(t, s, "l"), []any{})
	})
}

func TestList_IndexErrors(t *testing.T) {
	s := setup(t, BackendMemory)
	ensure(t, s.Set("l", []any{"a"}))
	l := must(s.Get("l")).(*List)

	deepEqual(t, must(l.At(-1)), any("a"))
	_, err := l.At(1)
	isErr(t, err, ErrIndexOutOfRange)
	_, err = l.At(-2)
	isErr(t, err, ErrIndexOutOfRange)
	isErr(t, l.SetAt(5, "b"), ErrIndexOutOfRange)

	must(l.Pop())
	_, err = l.Pop()
	isErr(t, err, ErrIndexOutOfRange)
}

func TestList_SortRejectsMixedTypes(t *testing.T) {
	s := setup(t, BackendMemory)
	ensure(t, s.Set("l", []any{"b", 1, "a"}))
	l := must(s.Get("l")).(*List)
	isErr(t, l.Sort(), ErrNotComparable)
	deepEqual(t, storedList(t, s, "l"), []any{"b", int64(1), "a"})
}

func TestList_WriteThroughKeepsPosition(t *testing.T) {
	s := setup(t, BackendMemory)
	ensure(t, s.Set("a", 1))
	ensure(t, s.Set("l", []any{}))
	ensure(t, s.Set("z", 2))

	l := must(s.Get("l")).(*List)
	ensure(t, l.Append(1))
	deepEqual(t, slices.Collect(s.Root().Keys()), []string{"a", "l", "z"})
}

func TestList_NestedValues(t *testing.T) {
	s := setup(t, BackendMemory)
	ensure(t, s.Set("l", []any{map[string]any{"k.with.dots": []any{1}}}))
	l := must(s.Get("l")).(*List)
	valueEqual(t, must(l.At(0)), map[string]any{"k.with.dots": []any{1}})
	isErr(t, l.Append(NewSet(1)), ErrUnsupportedValue)
	deepEqual(t, l.Len(), 1)
}

func TestList_Reload(t *testing.T) {
	s := setup(t, BackendMemory)
	ensure(t, s.Set("l", []any{1}))
	l1 := must(s.Get("l")).(*List)
	l2 := must(s.Get("l")).(*List)
	ensure(t, l1.Append(2))
	deepEqual(t, l2.Len(), 1)
	ensure(t, l2.Reload())
	deepEqual(t, l2.Values(), []any{int64(1), int64(2)})

	ensure(t, s.Set("l", "scalar"))
	isErr(t, l2.Reload(), ErrStaleNode)

	must(s.Pop("l"))
	isErr(t, l2.Reload(), ErrKeyNotFound)
}

func TestList_NestedInDict(t *testing.T) {
	forEachBackend(t, diskBackends, func(t *testing.T, s *Store) {
		ensure(t, s.Set("a.b", map[string]any{"tags": []any{"x"}}))
		tags := must(s.Get("a.b.tags")).(*List)
		deepEqual(t, tags.Path(), "a.b.tags")
		ensure(t, tags.Append("y"))

		s = reopen(t, s)
		deepEqual(t, storedList(t, s, "a.b.tags"), []any{"x", "y"})
	})
}

package flatshelf

import (
	"slices"
	"testing"
)

func buildIndex() *keyIndex {
	ki := newKeyIndex()
	a := ki.addChild(rootID, "a", kindInterior)
	ki.addChild(a, "x", kindScalar)
	b := ki.addChild(a, "b", kindInterior)
	ki.addChild(b, "l", kindSequence)
	ki.addChild(a, "e", kindInterior)
	ki.addChild(rootID, "s", kindSet)
	return ki
}

func TestKeyIndex_Lookup(t *testing.T) {
	ki := buildIndex()

	id := must(ki.lookup(rootID, []string{"a", "b", "l"}))
	deepEqual(t, ki.kind(id), kindSequence)
	deepEqual(t, ki.chainOf(id), []string{"a", "b", "l"})

	b := must(ki.locate(rootID, []string{"a", "b"}))
	deepEqual(t, ki.name(b), "b")
	deepEqual(t, must(ki.lookup(b, []string{"l"})), id)
	deepEqual(t, must(ki.lookup(b, nil)), b)

	_, err := ki.locate(rootID, []string{"a", "x"})
	isErr(t, err, ErrNotInterior)
	_, err = ki.locate(rootID, []string{"a", "x", "y"})
	isErr(t, err, ErrNotInterior)
	_, err = ki.locate(rootID, []string{"a", "nope"})
	isErr(t, err, ErrPathNotFound)
	_, err = ki.lookup(rootID, []string{"a", "nope"})
	isErr(t, err, ErrPathNotFound)
	_, err = ki.lookup(rootID, []string{"s", "nope"})
	isErr(t, err, ErrNotInterior)
}

func TestKeyIndex_FlatKeys(t *testing.T) {
	ki := buildIndex()
	deepEqual(t, slices.Collect(ki.collectFlatKeys(rootID, nil)), []string{"a.x", "a.b.l", "a.e", "s"})

	a := must(ki.locate(rootID, []string{"a"}))
	deepEqual(t, slices.Collect(ki.collectFlatKeys(a, []string{"a"})), []string{"a.x", "a.b.l", "a.e"})

	var first []string
	for k := range ki.collectFlatKeys(rootID, nil) {
		first = append(first, k)
		break
	}
	deepEqual(t, first, []string{"a.x"})

	deepEqual(t, slices.Collect(newKeyIndex().collectFlatKeys(rootID, nil)), []string(nil))
}

func TestKeyIndex_Counts(t *testing.T) {
	ki := buildIndex()
	deepEqual(t, ki.counts(), indexCounts{Interiors: 4, Leaves: 3, Placeholders: 1})
	deepEqual(t, newKeyIndex().counts(), indexCounts{Interiors: 1})
}

func TestKeyIndex_RemoveAndReuse(t *testing.T) {
	ki := buildIndex()
	a := must(ki.locate(rootID, []string{"a"}))
	ha := ki.handle(a)
	hl := ki.handle(must(ki.lookup(rootID, []string{"a", "b", "l"})))

	deepEqual(t, ki.removeChild(rootID, "a"), true)
	deepEqual(t, ki.removeChild(rootID, "a"), false)
	deepEqual(t, ki.valid(ha), false)
	deepEqual(t, ki.valid(hl), false)
	deepEqual(t, ki.counts(), indexCounts{Interiors: 1, Leaves: 1})

	// freed slots are reused with a new generation
	n := len(ki.nodes)
	var ids []nodeID
	for _, name := range []string{"p", "q", "r", "t", "u"} {
		ids = append(ids, ki.addChild(rootID, name, kindScalar))
	}
	deepEqual(t, len(ki.nodes), n)
	if !slices.Contains(ids, a) {
		t.Errorf("** slot %d was not reused: %v", a, ids)
	}
	deepEqual(t, ki.valid(ha), false)
	deepEqual(t, ki.valid(ki.handle(a)), true)

	deepEqual(t, slices.Collect(ki.collectFlatKeys(rootID, nil)), []string{"s", "p", "q", "r", "t", "u"})
	last, ok := ki.lastChild(rootID)
	deepEqual(t, ok, true)
	deepEqual(t, ki.name(last), "u")
}

func TestKeyIndex_Reset(t *testing.T) {
	ki := buildIndex()
	hs := ki.handle(must(ki.lookup(rootID, []string{"s"})))
	ki.reset()
	deepEqual(t, ki.valid(hs), false)
	deepEqual(t, ki.valid(ki.handle(rootID)), true)
	deepEqual(t, len(ki.children(rootID)), 0)
	_, ok := ki.lastChild(rootID)
	deepEqual(t, ok, false)

	id := ki.addChild(rootID, "s", kindScalar)
	deepEqual(t, ki.valid(hs), false)
	deepEqual(t, ki.valid(ki.handle(id)), true)
}

func TestKeyIndex_DuplicateChildPanics(t *testing.T) {
	ki := buildIndex()
	defer func() {
		if recover() == nil {
			t.Errorf("** duplicate addChild did not panic")
		}
	}()
	ki.addChild(rootID, "a", kindScalar)
}

func TestNodeKind_String(t *testing.T) {
	deepEqual(t, kindInterior.String(), "map")
	deepEqual(t, kindScalar.String(), "scalar")
	deepEqual(t, kindSequence.String(), "list")
	deepEqual(t, kindSet.String(), "set")
	deepEqual(t, nodeKind(9).String(), "kind(9)")
}

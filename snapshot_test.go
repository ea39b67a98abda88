package flatshelf

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func sampleIndex() *keyIndex {
	ki := newKeyIndex()
	for i := range 50 {
		ki.addChild(rootID, "k"+string(rune('a'+i%26))+string(rune('a'+i/26)), kindScalar)
	}
	m := ki.addChild(rootID, "m", kindInterior)
	ki.addChild(m, "empty", kindInterior)
	ki.addChild(m, "list", kindSequence)
	ki.addChild(m, "set", kindSet)
	return ki
}

func sameShape(t testing.TB, a, e *keyIndex) {
	t.Helper()
	deepEqual(t, a.snapshot(), e.snapshot())
	deepEqual(t, slices.Collect(a.collectFlatKeys(rootID, nil)), slices.Collect(e.collectFlatKeys(rootID, nil)))
}

func TestSnapshot_RoundTrip(t *testing.T) {
	ki := sampleIndex()
	for _, comp := range []Compression{CompressDefault, CompressNone, CompressZstd, CompressLZ4} {
		t.Run(comp.String(), func(t *testing.T) {
			data := must(encodeSnapshot(ki, comp))
			deepEqual(t, string(data[:8]), snapshotMagic)
			got := must(decodeSnapshot(data))
			sameShape(t, got, ki)
		})
	}
}

func TestSnapshot_EmptyIndex(t *testing.T) {
	for _, comp := range []Compression{CompressNone, CompressZstd, CompressLZ4} {
		data := must(encodeSnapshot(newKeyIndex(), comp))
		got := must(decodeSnapshot(data))
		deepEqual(t, len(got.children(rootID)), 0)
	}
}

func TestSnapshot_Corrupt(t *testing.T) {
	data := must(encodeSnapshot(sampleIndex(), CompressZstd))

	flip := slices.Clone(data)
	flip[len(flip)-1] ^= 0xFF
	short := data[:len(data)-3]
	badMagic := slices.Clone(data)
	badMagic[0] = 'X'
	badVersion := slices.Clone(data)
	badVersion[8] = 9
	badComp := slices.Clone(data)
	badComp[9] = 77

	for name, d := range map[string][]byte{
		"checksum":    flip,
		"short":       short,
		"magic":       badMagic,
		"version":     badVersion,
		"compression": badComp,
		"header only": data[:snapshotHeaderSize-1],
	} {
		_, err := decodeSnapshot(d)
		if err == nil {
			t.Errorf("** %s: decodeSnapshot succeeded", name)
		}
	}
}

func TestSnapshot_InvalidTree(t *testing.T) {
	tests := map[string]snapshotNode{
		"leaf root":     {Kind: kindScalar},
		"dotted name":   {Children: []snapshotNode{{Name: "a.b", Kind: kindScalar}}},
		"empty name":    {Children: []snapshotNode{{Name: "", Kind: kindScalar}}},
		"duplicate":     {Children: []snapshotNode{{Name: "a", Kind: kindScalar}, {Name: "a", Kind: kindSet}}},
		"leaf children": {Children: []snapshotNode{{Name: "a", Kind: kindSequence, Children: []snapshotNode{{Name: "b"}}}}},
		"unknown kind":  {Children: []snapshotNode{{Name: "a", Kind: 7}}},
	}
	for name, root := range tests {
		if _, err := keyIndexFromSnapshot(root); err == nil {
			t.Errorf("** %s: keyIndexFromSnapshot succeeded", name)
		}
	}
}

func TestSnapshotFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.map.db")

	ki, err := readSnapshotFile(path)
	ensure(t, err)
	if ki != nil {
		t.Fatalf("readSnapshotFile(missing) = %v, wanted nil", ki)
	}

	ensure(t, writeSnapshotFile(path, must(encodeSnapshot(sampleIndex(), CompressLZ4))))
	ensure(t, writeSnapshotFile(path, must(encodeSnapshot(sampleIndex(), CompressNone))))
	sameShape(t, must(readSnapshotFile(path)), sampleIndex())

	entries := must(os.ReadDir(dir))
	deepEqual(t, len(entries), 1)

	ensure(t, os.WriteFile(path, []byte("garbage"), 0666))
	_, err = readSnapshotFile(path)
	var de *DataError
	if !errors.As(err, &de) {
		t.Errorf("** readSnapshotFile(garbage) = %v, wanted *DataError", err)
	}
}

func TestSnapshotPath(t *testing.T) {
	deepEqual(t, snapshotPath("/tmp/shelf.db"), "/tmp/shelf.map.db")
	deepEqual(t, snapshotPath("shelf"), "shelf.map.db")
	deepEqual(t, snapshotPath(".db"), ".db.map.db")
}

func TestCompression_String(t *testing.T) {
	deepEqual(t, CompressDefault.String(), "zstd")
	deepEqual(t, CompressNone.String(), "none")
	deepEqual(t, CompressLZ4.String(), "lz4")
	deepEqual(t, Compression(99).String(), "compression(99)")
}

func TestOpen_CorruptSnapshot(t *testing.T) {
	for _, b := range diskBackends {
		t.Run(b.String(), func(t *testing.T) {
			s := setup(t, b)
			ensure(t, s.Set("a.b", []any{1}))
			ensure(t, s.Set("c", "d"))
			ensure(t, s.Close())
			ensure(t, os.WriteFile(s.IndexPath(), []byte("FSHLFMAP garbage"), 0666))

			_, err := Open(s.Path(), s.opt)
			if err == nil {
				t.Fatalf("Open with a corrupt snapshot succeeded")
			}

			opt := s.opt
			opt.RecoverIndex = true
			s2 := must(Open(s.Path(), opt))
			defer s2.Close()
			valueEqual(t, must(s2.ToDict()), map[string]any{"a": map[string]any{"b": []any{1}}, "c": "d"})
			deepEqual(t, must(s2.Get("a.b")).(*List).Values(), []any{int64(1)})
		})
	}
}

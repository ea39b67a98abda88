package flatshelf

import (
	"encoding/json"
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpIndex = DumpFlags(1 << iota)
	DumpValues
	DumpFlat
	DumpStats

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	indentStep = "  "
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the key index, and optionally the stored values and the raw
// flat entries, for debugging.
func (s *Store) Dump(f DumpFlags) string {
	var buf strings.Builder
	if s.closed {
		return "CLOSED\n"
	}
	if f.Contains(DumpStats) {
		st := s.Stats()
		fmt.Fprintln(&buf, dumpSep1)
		fmt.Fprintf(&buf, "%s: mappings = %d, leaves = %d, empty = %d, snapshot_bytes = %d\n", s.path, st.Mappings, st.Leaves, st.EmptyMappings, st.SnapshotBytes)
	}
	if f.Contains(DumpIndex) {
		fmt.Fprintln(&buf, dumpSep2)
		s.dumpNode(&buf, f, rootID, nil, "")
	}
	if f.Contains(DumpFlat) {
		fmt.Fprintln(&buf, dumpSep2)
		err := s.flat.ForEach(func(key string, value []byte) error {
			kind, v, err := decodeFlatValue(value)
			if err != nil {
				fmt.Fprintf(&buf, "%s ** ERROR: %v\n", key, err)
			} else {
				fmt.Fprintf(&buf, "%s (%v) %s\n", key, kind, formatValue(v))
			}
			return nil
		})
		if err != nil {
			fmt.Fprintf(&buf, "** ERROR: %v\n", err)
		}
	}
	return buf.String()
}

func (s *Store) dumpNode(w *strings.Builder, f DumpFlags, id nodeID, chain []string, indent string) {
	for _, c := range s.idx.children(id) {
		name := s.idx.name(c)
		cchain := appendChain(chain, name)
		kind := s.idx.kind(c)
		if kind == kindInterior {
			if s.idx.isEmptyInterior(c) {
				fmt.Fprintf(w, "%s%s: {}\n", indent, name)
			} else {
				fmt.Fprintf(w, "%s%s:\n", indent, name)
				s.dumpNode(w, f, c, cchain, indent+indentStep)
			}
			continue
		}
		if !f.Contains(DumpValues) {
			fmt.Fprintf(w, "%s%s: (%v)\n", indent, name, kind)
			continue
		}
		_, v, err := s.fetch(cchain)
		if err != nil {
			fmt.Fprintf(w, "%s%s: (%v) ** ERROR: %v\n", indent, name, kind, err)
		} else {
			fmt.Fprintf(w, "%s%s: (%v) %s\n", indent, name, kind, formatValue(v))
		}
	}
}

// FlatKeys returns every key of the flat store, in the store's order.
func (s *Store) FlatKeys() ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	var keys []string
	err := s.flat.ForEach(func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	return keys, err
}

// FlatMap returns the raw flat entries decoded. Empty mapping placeholders
// decode to empty maps.
func (s *Store) FlatMap() (map[string]any, error) {
	if s.closed {
		return nil, ErrClosed
	}
	m := make(map[string]any)
	err := s.flat.ForEach(func(key string, value []byte) error {
		_, v, err := decodeFlatValue(value)
		if err != nil {
			return keyErr("FlatMap", key, err)
		}
		m[key] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// String renders the materialized store as JSON.
func (s *Store) String() string {
	if s.closed {
		return "<closed>"
	}
	return formatValue(s.Root())
}

func formatValue(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	return string(raw)
}

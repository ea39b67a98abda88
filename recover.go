package flatshelf

import "fmt"

// peekValueKind reads the kind from a flat value header without decoding the
// value itself.
func peekValueKind(data []byte) (nodeKind, error) {
	d := makeByteDecoder(data)
	v, err := d.Uvarint()
	if err != nil {
		return 0, err
	}
	vf := valueFlags(v)
	if (vf&^vfSupportedMask) != 0 || vf.ver() != vfVer1 || vf.kind() > kindSet {
		return 0, dataErrf(data, 0, nil, "invalid value: unsupported flags %x", v)
	}
	return vf.kind(), nil
}

// Rebuild discards the key index and reconstructs it from the flat entries.
// Siblings end up in the flat store's key order, since insertion order is
// only recorded in the snapshot. Entries that contradict the shape implied by
// earlier entries (say, "a.b" after a scalar "a") are skipped and logged.
func (s *Store) Rebuild() error {
	if s.closed {
		return ErrClosed
	}
	if s.idx == nil {
		s.idx = newKeyIndex()
	} else {
		s.idx.reset()
	}
	ki := s.idx

	var placeholders []string
	var conflicts int
	conflict := func(key, msg string) {
		conflicts++
		s.logger.Warn("flatshelf: rebuild: skipping flat entry", "key", key, "reason", msg)
	}

	err := s.flat.ForEach(func(key string, value []byte) error {
		kind, err := peekValueKind(value)
		if err != nil {
			return keyErr("Rebuild", key, err)
		}
		chain := SplitKey(key)
		for _, c := range chain {
			if ValidateComponent(c) != nil {
				conflict(key, "invalid key component")
				return nil
			}
		}
		if len(chain) == 0 {
			conflict(key, "empty key")
			return nil
		}

		id := rootID
		for i, c := range chain[:len(chain)-1] {
			next, found := ki.child(id, c)
			if !found {
				next = ki.addChild(id, c, kindInterior)
			} else if ki.kind(next).isLeaf() {
				conflict(key, fmt.Sprintf("%s is a %v", JoinKey(chain[:i+1]...), ki.kind(next)))
				return nil
			}
			id = next
		}

		name := chain[len(chain)-1]
		if existing, found := ki.child(id, name); found {
			if kind != kindInterior || ki.kind(existing) != kindInterior {
				conflict(key, "duplicate path")
			}
			return nil
		}
		ki.addChild(id, name, kind)
		if kind == kindInterior {
			placeholders = append(placeholders, key)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// A placeholder is stale once its mapping turned out to have children.
	for _, key := range placeholders {
		id, err := ki.lookup(rootID, SplitKey(key))
		if err != nil || ki.isEmptyInterior(id) {
			continue
		}
		if err := s.flat.Delete(key); err != nil {
			return keyErr("Rebuild", key, err)
		}
	}

	c := ki.counts()
	s.logger.Info("flatshelf: rebuilt index", "path", s.path, "mappings", c.Interiors, "leaves", c.Leaves, "skipped", conflicts)
	return nil
}

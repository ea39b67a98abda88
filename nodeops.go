package flatshelf

import (
	"errors"
	"fmt"
	"iter"
	"slices"
)

// The primitives below operate relative to a base mapping node: the root for
// Store methods, the bound node for Dict methods. baseChain is the key chain
// of the base node and keys are relative to it.

func (s *Store) getNode(base nodeID, baseChain []string, op, key string) (any, error) {
	if s.closed {
		return nil, ErrClosed
	}
	chain, err := parseKey(op, key)
	if err != nil {
		return nil, err
	}
	id, err := s.idx.lookup(base, chain)
	if errors.Is(err, ErrPathNotFound) {
		return nil, keyErr(op, JoinKey(appendChain(baseChain, chain...)...), ErrKeyNotFound)
	} else if err != nil {
		return nil, keyErr(op, JoinKey(appendChain(baseChain, chain...)...), err)
	}
	return s.value(id, appendChain(baseChain, chain...))
}

// value returns what a lookup of node id yields: a proxy for mappings and
// collections, the raw value for scalars.
func (s *Store) value(id nodeID, chain []string) (any, error) {
	switch s.idx.kind(id) {
	case kindInterior:
		return &Dict{binding{s: s, h: s.idx.handle(id), chain: chain}}, nil
	case kindScalar:
		_, v, err := s.fetch(chain)
		return v, err
	case kindSequence:
		_, v, err := s.fetch(chain)
		if err != nil {
			return nil, err
		}
		items, ok := v.([]any)
		if !ok {
			return nil, keyErrf("Get", JoinKey(chain...), nil, "flat entry is %T, not a list", v)
		}
		return &List{leafBinding: s.leafBinding(id, chain), items: items}, nil
	case kindSet:
		_, v, err := s.fetch(chain)
		if err != nil {
			return nil, err
		}
		set, ok := v.(*Set)
		if !ok {
			return nil, keyErrf("Get", JoinKey(chain...), nil, "flat entry is %T, not a set", v)
		}
		return &SetNode{leafBinding: s.leafBinding(id, chain), set: set}, nil
	default:
		panic("unreachable")
	}
}

func (s *Store) leafBinding(id nodeID, chain []string) leafBinding {
	parent := s.idx.node(id).parent
	return leafBinding{
		parent: binding{s: s, h: s.idx.handle(parent), chain: chain[:len(chain)-1]},
		key:    chain[len(chain)-1],
	}
}

func (s *Store) fetch(chain []string) (nodeKind, any, error) {
	flatKey := JoinKey(chain...)
	data, err := s.flat.Get(flatKey)
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil, keyErrf("Get", flatKey, ErrKeyNotFound, "indexed key has no flat entry")
	} else if err != nil {
		return 0, nil, keyErr("Get", flatKey, err)
	}
	kind, v, err := decodeFlatValue(data)
	if err != nil {
		return 0, nil, keyErr("Get", flatKey, err)
	}
	return kind, v, nil
}

func (s *Store) setNode(base nodeID, baseChain []string, op, key string, value any) error {
	if s.closed {
		return ErrClosed
	}
	chain, err := parseKey(op, key)
	if err != nil {
		return err
	}
	v, err := normalize(value)
	if err != nil {
		return keyErr(op, key, err)
	}
	if err := validateTree(v); err != nil {
		return keyErr(op, key, err)
	}

	parent, parentChain, err := s.ensurePath(base, baseChain, chain[:len(chain)-1])
	if err != nil {
		return keyErr(op, key, err)
	}
	return s.replaceChild(parent, parentChain, chain[len(chain)-1], v)
}

// rewriteLeaf overwrites the flat entry of an existing leaf of the same kind
// without moving it among its siblings. Otherwise it behaves like setNode.
func (s *Store) rewriteLeaf(parent nodeID, parentChain []string, name string, value any) error {
	if s.closed {
		return ErrClosed
	}
	chain := appendChain(parentChain, name)
	v, err := normalize(value)
	if err != nil {
		return keyErr("WriteThrough", JoinKey(chain...), err)
	}
	if err := validateTree(v); err != nil {
		return keyErr("WriteThrough", JoinKey(chain...), err)
	}
	kind := classify(v)
	id, found := s.idx.child(parent, name)
	if !found || !kind.isLeaf() || s.idx.kind(id) != kind {
		return s.replaceChild(parent, parentChain, name, v)
	}
	data, err := encodeFlatValue(kind, v)
	if err != nil {
		return keyErr("WriteThrough", JoinKey(chain...), err)
	}
	return s.put(chain, data)
}

// replaceChild removes the named child of parent together with all of its
// flat entries, if any, then builds v in its place.
func (s *Store) replaceChild(parent nodeID, parentChain []string, name string, v any) error {
	if old, found := s.idx.child(parent, name); found {
		if err := s.deleteFlatKeys(old, appendChain(parentChain, name)); err != nil {
			return err
		}
		s.idx.removeChild(parent, name)
	} else if err := s.dropPlaceholder(parent, parentChain); err != nil {
		return err
	}
	return s.build(parent, parentChain, name, v)
}

// ensurePath walks chain from base, creating missing mappings.
func (s *Store) ensurePath(base nodeID, baseChain []string, chain []string) (nodeID, []string, error) {
	id := base
	idChain := baseChain
	for _, c := range chain {
		idChain = appendChain(idChain, c)
		if next, found := s.idx.child(id, c); found {
			if s.idx.kind(next).isLeaf() {
				return 0, nil, fmt.Errorf("%w: %s is a %v", ErrNotInterior, JoinKey(idChain...), s.idx.kind(next))
			}
			id = next
			continue
		}
		if err := s.dropPlaceholder(id, idChain[:len(idChain)-1]); err != nil {
			return 0, nil, err
		}
		id = s.idx.addChild(id, c, kindInterior)
	}
	return id, idChain, nil
}

// build adds v under parent as name. v must be normalized.
func (s *Store) build(parent nodeID, parentChain []string, name string, v any) error {
	chain := appendChain(parentChain, name)
	kind := classify(v)
	id := s.idx.addChild(parent, name, kind)
	if kind == kindInterior {
		m := v.(map[string]any)
		if len(m) == 0 {
			return s.put(chain, encodePlaceholder())
		}
		for _, k := range sortedKeys(m) {
			if err := s.build(id, chain, k, m[k]); err != nil {
				return err
			}
		}
		return nil
	}
	data, err := encodeFlatValue(kind, v)
	if err != nil {
		return keyErr("Set", JoinKey(chain...), err)
	}
	return s.put(chain, data)
}

func (s *Store) put(chain []string, data []byte) error {
	flatKey := JoinKey(chain...)
	if s.opt.Verbose {
		s.logger.Debug("flatshelf: put", "key", flatKey, "bytes", len(data))
	}
	if err := s.flat.Put(flatKey, data); err != nil {
		return keyErr("Set", flatKey, err)
	}
	return nil
}

func (s *Store) deleteFlatKeys(id nodeID, chain []string) error {
	keys := slices.Collect(s.idx.collectFlatKeys(id, chain))
	for _, k := range keys {
		if s.opt.Verbose {
			s.logger.Debug("flatshelf: delete", "key", k)
		}
		if err := s.flat.Delete(k); err != nil {
			return keyErr("Delete", k, err)
		}
	}
	return nil
}

// dropPlaceholder removes the "empty mapping" entry of id if id is an empty
// non-root mapping that is about to gain a child.
func (s *Store) dropPlaceholder(id nodeID, chain []string) error {
	if id == rootID || !s.idx.isEmptyInterior(id) {
		return nil
	}
	return s.deleteFlatKeys(id, chain)
}

func (s *Store) containsNode(base nodeID, baseChain []string, key string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	chain := SplitKey(key)
	if len(chain) == 0 {
		return false, nil
	}
	found, err := s.flat.Has(JoinKey(appendChain(baseChain, chain...)...))
	if err != nil {
		return false, keyErr("Contains", key, err)
	}
	if found {
		return true, nil
	}
	prefix, leaf := SplitLast(key)
	parent, err := s.idx.locate(base, SplitKey(prefix))
	if err != nil {
		return false, nil
	}
	_, found = s.idx.child(parent, leaf)
	return found, nil
}

func (s *Store) resolveChild(base nodeID, baseChain []string, op, key string) (parent, id nodeID, chain []string, err error) {
	if s.closed {
		return 0, 0, nil, ErrClosed
	}
	rel, err := parseKey(op, key)
	if err != nil {
		return 0, 0, nil, err
	}
	chain = appendChain(baseChain, rel...)
	parent, err = s.idx.locate(base, rel[:len(rel)-1])
	if err != nil {
		return 0, 0, nil, keyErr(op, JoinKey(chain...), err)
	}
	id, found := s.idx.child(parent, rel[len(rel)-1])
	if !found {
		return 0, 0, nil, keyErr(op, JoinKey(chain...), ErrKeyNotFound)
	}
	return parent, id, chain, nil
}

func (s *Store) popNode(base nodeID, baseChain []string, op, key string) (any, error) {
	parent, id, chain, err := s.resolveChild(base, baseChain, op, key)
	if err != nil {
		return nil, err
	}
	v, err := s.materialize(id, chain)
	if err != nil {
		return nil, err
	}
	return v, s.detach(parent, id, chain)
}

func (s *Store) deleteNode(base nodeID, baseChain []string, op, key string) error {
	parent, id, chain, err := s.resolveChild(base, baseChain, op, key)
	if err != nil {
		return err
	}
	return s.detach(parent, id, chain)
}

// detach removes node id (named chain) from parent along with all of its flat
// entries. A non-root parent left empty gets its placeholder.
func (s *Store) detach(parent, id nodeID, chain []string) error {
	if err := s.deleteFlatKeys(id, chain); err != nil {
		return err
	}
	s.idx.removeChild(parent, chain[len(chain)-1])
	if parent != rootID && s.idx.isEmptyInterior(parent) {
		return s.put(chain[:len(chain)-1], encodePlaceholder())
	}
	return nil
}

func (s *Store) popItemNode(base nodeID, baseChain []string) (string, any, error) {
	if s.closed {
		return "", nil, ErrClosed
	}
	last, found := s.idx.lastChild(base)
	if !found {
		return "", nil, keyErrf("PopItem", JoinKey(baseChain...), ErrKeyNotFound, "mapping is empty")
	}
	name := s.idx.name(last)
	v, err := s.popNode(base, baseChain, "PopItem", name)
	return name, v, err
}

func (s *Store) setDefaultNode(base nodeID, baseChain []string, key string, def any) (any, error) {
	v, err := s.getNode(base, baseChain, "SetDefault", key)
	if !errors.Is(err, ErrKeyNotFound) {
		return v, err
	}
	if err := s.setNode(base, baseChain, "SetDefault", key, def); err != nil {
		return nil, err
	}
	return s.getNode(base, baseChain, "SetDefault", key)
}

func (s *Store) updateNode(base nodeID, baseChain []string, m map[string]any) error {
	for _, k := range sortedKeys(m) {
		if err := s.setNode(base, baseChain, "Update", k, m[k]); err != nil {
			return err
		}
	}
	return nil
}

// updateFromNode sets entries in the order seq yields them, stopping at the
// first failure. Entries already written stay written.
func (s *Store) updateFromNode(base nodeID, baseChain []string, seq iter.Seq2[string, any]) error {
	for k, v := range seq {
		if err := s.setNode(base, baseChain, "Update", k, v); err != nil {
			return err
		}
	}
	return nil
}

// materialize reconstructs the plain value of node id: map[string]any for
// mappings, and the stored value for leaves.
func (s *Store) materialize(id nodeID, chain []string) (any, error) {
	if s.idx.kind(id).isLeaf() {
		_, v, err := s.fetch(chain)
		return v, err
	}
	children := s.idx.children(id)
	m := make(map[string]any, len(children))
	for _, c := range children {
		name := s.idx.name(c)
		v, err := s.materialize(c, appendChain(chain, name))
		if err != nil {
			return nil, err
		}
		m[name] = v
	}
	return m, nil
}

// nodeKeys yields the names of the children of id in insertion order.
func (s *Store) nodeKeys(id nodeID) iter.Seq[string] {
	return func(yield func(string) bool) {
		if s.closed {
			return
		}
		for _, name := range s.childNames(id) {
			if !yield(name) {
				return
			}
		}
	}
}

// nodeItems yields the children of id as Get would return them. It panics if
// a value cannot be read.
func (s *Store) nodeItems(id nodeID, chain []string) iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if s.closed {
			return
		}
		for _, name := range s.childNames(id) {
			c, found := s.idx.child(id, name)
			if !found {
				continue // removed while iterating
			}
			v, err := s.value(c, appendChain(chain, name))
			if err != nil {
				panic(err)
			}
			if !yield(name, v) {
				return
			}
		}
	}
}

func (s *Store) childNames(id nodeID) []string {
	children := s.idx.children(id)
	names := make([]string, len(children))
	for i, c := range children {
		names[i] = s.idx.name(c)
	}
	return names
}

// validateTree checks that every mapping key in a normalized value can be a
// key component, and that no set hides inside a list.
func validateTree(v any) error {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			if err := ValidateComponent(k); err != nil {
				return fmt.Errorf("%w: %q", err, k)
			}
			if err := validateTree(e); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range x {
			if err := validateElement(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateElement checks a value stored inside a collection. Keys of mappings
// nested in a list are not key components, so any string is fine there.
func validateElement(v any) error {
	switch x := v.(type) {
	case *Set:
		return fmt.Errorf("%w: set inside a list", ErrUnsupportedValue)
	case []any:
		for _, e := range x {
			if err := validateElement(e); err != nil {
				return err
			}
		}
	case map[string]any:
		for _, e := range x {
			if err := validateElement(e); err != nil {
				return err
			}
		}
	}
	return nil
}

package flatshelf

import (
	"encoding/json"
	"iter"
)

// binding ties a proxy to a mapping node. It holds the node's handle and key
// chain rather than a reference into the index. If the node has been replaced
// since, the chain is resolved again.
type binding struct {
	s     *Store
	h     handle
	chain []string
}

func (b *binding) resolve() (nodeID, error) {
	s := b.s
	if s.closed {
		return 0, ErrClosed
	}
	if s.idx.valid(b.h) {
		return b.h.id, nil
	}
	id, err := s.idx.locate(rootID, b.chain)
	if err != nil {
		return 0, keyErr("resolve", JoinKey(b.chain...), ErrStaleNode)
	}
	b.h = s.idx.handle(id)
	return id, nil
}

// Dict is a live view of a nested mapping. It stores nothing itself; every
// call reads or writes the store. Keys are relative to the mapping and may
// themselves be dotted paths.
type Dict struct {
	binding
}

// Path returns the flat key of the mapping ("" for the root).
func (d *Dict) Path() string {
	return JoinKey(d.chain...)
}

func (d *Dict) Get(key string) (any, error) {
	id, err := d.resolve()
	if err != nil {
		return nil, err
	}
	return d.s.getNode(id, d.chain, "Get", key)
}

func (d *Dict) GetDefault(key string, def any) (any, error) {
	return orDefault(d.Get(key))(def)
}

func (d *Dict) Set(key string, value any) error {
	id, err := d.resolve()
	if err != nil {
		return err
	}
	return d.s.setNode(id, d.chain, "Set", key, value)
}

func (d *Dict) Contains(key string) (bool, error) {
	id, err := d.resolve()
	if err != nil {
		return false, err
	}
	return d.s.containsNode(id, d.chain, key)
}

func (d *Dict) Pop(key string) (any, error) {
	id, err := d.resolve()
	if err != nil {
		return nil, err
	}
	return d.s.popNode(id, d.chain, "Pop", key)
}

func (d *Dict) PopDefault(key string, def any) (any, error) {
	return orDefault(d.Pop(key))(def)
}

func (d *Dict) Delete(key string) error {
	id, err := d.resolve()
	if err != nil {
		return err
	}
	return d.s.deleteNode(id, d.chain, "Delete", key)
}

func (d *Dict) PopItem() (string, any, error) {
	id, err := d.resolve()
	if err != nil {
		return "", nil, err
	}
	return d.s.popItemNode(id, d.chain)
}

func (d *Dict) SetDefault(key string, def any) (any, error) {
	id, err := d.resolve()
	if err != nil {
		return nil, err
	}
	return d.s.setDefaultNode(id, d.chain, key, def)
}

func (d *Dict) Update(m map[string]any) error {
	id, err := d.resolve()
	if err != nil {
		return err
	}
	return d.s.updateNode(id, d.chain, m)
}

func (d *Dict) UpdateFrom(seq iter.Seq2[string, any]) error {
	id, err := d.resolve()
	if err != nil {
		return err
	}
	return d.s.updateFromNode(id, d.chain, seq)
}

// Clear removes the whole mapping, like popping its own path. Clearing the
// root mapping clears the store.
func (d *Dict) Clear() error {
	id, err := d.resolve()
	if err != nil {
		return err
	}
	if id == rootID {
		return d.s.Clear()
	}
	return d.s.detach(d.s.idx.node(id).parent, id, d.chain)
}

func (d *Dict) Len() int {
	id, err := d.resolve()
	if err != nil {
		return 0
	}
	return len(d.s.idx.children(id))
}

// Keys yields the direct children's names in insertion order. A stale or
// closed proxy yields nothing.
func (d *Dict) Keys() iter.Seq[string] {
	id, err := d.resolve()
	if err != nil {
		return func(func(string) bool) {}
	}
	return d.s.nodeKeys(id)
}

// Items yields the direct children as Get would return them. It panics if a
// stored value cannot be read.
func (d *Dict) Items() iter.Seq2[string, any] {
	id, err := d.resolve()
	if err != nil {
		return func(func(string, any) bool) {}
	}
	return d.s.nodeItems(id, d.chain)
}

func (d *Dict) Values() iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, v := range d.Items() {
			if !yield(v) {
				return
			}
		}
	}
}

// ToDict materializes the mapping into plain values.
func (d *Dict) ToDict() (map[string]any, error) {
	id, err := d.resolve()
	if err != nil {
		return nil, err
	}
	v, err := d.s.materialize(id, d.chain)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func (d *Dict) materializeValue() (any, error) {
	return d.ToDict()
}

func (d *Dict) MarshalJSON() ([]byte, error) {
	m, err := d.ToDict()
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func (d *Dict) String() string {
	return formatValue(d)
}

package flatshelf

import (
	"fmt"
	"iter"
	"slices"
)

type nodeKind uint8

const (
	kindInterior nodeKind = iota
	kindScalar
	kindSequence
	kindSet
)

func (k nodeKind) isLeaf() bool {
	return k != kindInterior
}

func (k nodeKind) String() string {
	switch k {
	case kindInterior:
		return "map"
	case kindScalar:
		return "scalar"
	case kindSequence:
		return "list"
	case kindSet:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type nodeID uint32

const rootID nodeID = 0

// handle identifies a node together with the generation it was observed at.
// Freed node slots are reused, and the generation tells a reused slot apart
// from the node a proxy was originally bound to.
type handle struct {
	id  nodeID
	gen uint32
}

type indexNode struct {
	kind     nodeKind
	live     bool
	gen      uint32
	parent   nodeID
	name     string
	children []nodeID // insertion order
	byName   map[string]nodeID
}

// keyIndex is an arena-allocated tree mirroring the shape of the logical
// document. Node 0 is always the root mapping.
type keyIndex struct {
	nodes []indexNode
	free  []nodeID
}

func newKeyIndex() *keyIndex {
	return &keyIndex{
		nodes: []indexNode{{kind: kindInterior, live: true}},
	}
}

func (ki *keyIndex) node(id nodeID) *indexNode {
	return &ki.nodes[id]
}

func (ki *keyIndex) handle(id nodeID) handle {
	return handle{id, ki.nodes[id].gen}
}

func (ki *keyIndex) valid(h handle) bool {
	if int(h.id) >= len(ki.nodes) {
		return false
	}
	n := &ki.nodes[h.id]
	return n.live && n.gen == h.gen
}

func (ki *keyIndex) kind(id nodeID) nodeKind {
	return ki.nodes[id].kind
}

func (ki *keyIndex) isEmptyInterior(id nodeID) bool {
	n := &ki.nodes[id]
	return n.kind == kindInterior && len(n.children) == 0
}

func (ki *keyIndex) child(parent nodeID, name string) (nodeID, bool) {
	id, ok := ki.nodes[parent].byName[name]
	return id, ok
}

func (ki *keyIndex) children(parent nodeID) []nodeID {
	return ki.nodes[parent].children
}

func (ki *keyIndex) name(id nodeID) string {
	return ki.nodes[id].name
}

// locate walks chain from the given interior node and returns the interior
// node it names.
func (ki *keyIndex) locate(from nodeID, chain []string) (nodeID, error) {
	id := from
	for _, c := range chain {
		if ki.nodes[id].kind.isLeaf() {
			return 0, ErrNotInterior
		}
		next, ok := ki.child(id, c)
		if !ok {
			return 0, ErrPathNotFound
		}
		id = next
	}
	if ki.nodes[id].kind.isLeaf() {
		return 0, ErrNotInterior
	}
	return id, nil
}

// lookup resolves chain to a node of any kind. Every node but the last must
// be an interior.
func (ki *keyIndex) lookup(from nodeID, chain []string) (nodeID, error) {
	if len(chain) == 0 {
		return from, nil
	}
	parent, err := ki.locate(from, chain[:len(chain)-1])
	if err != nil {
		return 0, err
	}
	id, ok := ki.child(parent, chain[len(chain)-1])
	if !ok {
		return 0, ErrPathNotFound
	}
	return id, nil
}

func (ki *keyIndex) alloc() nodeID {
	if n := len(ki.free); n > 0 {
		id := ki.free[n-1]
		ki.free = ki.free[:n-1]
		return id
	}
	ki.nodes = append(ki.nodes, indexNode{})
	return nodeID(len(ki.nodes) - 1)
}

// addChild appends a new node named name to parent. The name must not be
// present yet.
func (ki *keyIndex) addChild(parent nodeID, name string, kind nodeKind) nodeID {
	if _, exists := ki.child(parent, name); exists {
		panic(fmt.Errorf("index: duplicate child %q", name))
	}
	id := ki.alloc()
	n := &ki.nodes[id]
	n.kind = kind
	n.live = true
	n.parent = parent
	n.name = name
	n.children = nil
	n.byName = nil

	p := &ki.nodes[parent]
	if p.byName == nil {
		p.byName = make(map[string]nodeID)
	}
	p.byName[name] = id
	p.children = append(p.children, id)
	return id
}

// removeChild detaches the named child of parent and frees its whole subtree.
func (ki *keyIndex) removeChild(parent nodeID, name string) bool {
	p := &ki.nodes[parent]
	id, ok := p.byName[name]
	if !ok {
		return false
	}
	delete(p.byName, name)
	if i := slices.Index(p.children, id); i >= 0 {
		p.children = slices.Delete(p.children, i, i+1)
	}
	ki.release(id)
	return true
}

func (ki *keyIndex) release(id nodeID) {
	n := &ki.nodes[id]
	children := n.children
	n.live = false
	n.gen++
	n.children = nil
	n.byName = nil
	n.name = ""
	ki.free = append(ki.free, id)
	for _, c := range children {
		ki.release(c)
	}
}

// reset drops everything except the root. Slots are released rather than
// discarded so that generations keep growing and stale handles stay stale.
func (ki *keyIndex) reset() {
	root := &ki.nodes[rootID]
	children := root.children
	root.children = nil
	root.byName = nil
	for _, c := range children {
		ki.release(c)
	}
}

func (ki *keyIndex) lastChild(parent nodeID) (nodeID, bool) {
	ch := ki.nodes[parent].children
	if len(ch) == 0 {
		return 0, false
	}
	return ch[len(ch)-1], true
}

// chainOf returns the key chain of a live node, root-relative.
func (ki *keyIndex) chainOf(id nodeID) []string {
	var chain []string
	for id != rootID {
		n := &ki.nodes[id]
		chain = append(chain, n.name)
		id = n.parent
	}
	slices.Reverse(chain)
	return chain
}

// collectFlatKeys enumerates, in pre-order and insertion order, every flat
// key owned by the subtree at id: one per leaf, plus the placeholder of each
// empty non-root mapping. chain is the key chain of id.
func (ki *keyIndex) collectFlatKeys(id nodeID, chain []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		ki.walkFlatKeys(id, chain, yield)
	}
}

func (ki *keyIndex) walkFlatKeys(id nodeID, chain []string, yield func(string) bool) bool {
	n := &ki.nodes[id]
	if n.kind.isLeaf() || (len(n.children) == 0 && id != rootID) {
		return yield(JoinKey(chain...))
	}
	for _, c := range n.children {
		if !ki.walkFlatKeys(c, appendChain(chain, ki.nodes[c].name), yield) {
			return false
		}
	}
	return true
}

type indexCounts struct {
	Interiors    int
	Leaves       int
	Placeholders int
}

func (ki *keyIndex) counts() indexCounts {
	var c indexCounts
	for i := range ki.nodes {
		n := &ki.nodes[i]
		if !n.live {
			continue
		}
		if n.kind.isLeaf() {
			c.Leaves++
		} else {
			c.Interiors++
			if len(n.children) == 0 && nodeID(i) != rootID {
				c.Placeholders++
			}
		}
	}
	return c
}

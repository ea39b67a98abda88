/*
Package flatshelf implements a persistent nested mapping on top of a flat
key-value store (Bolt by default, or Badger).

Callers see mappings, lists and sets nested to any depth. Physically, only leaf
values are stored, one entry per leaf, under a dot-joined path:

	s.Set("auth", map[string]any{"password": "1234", "tags": []any{"a"}})

	// flat entries: "auth.password" => "1234", "auth.tags" => ["a"]

# Technical Details

**Key index.**
The shape of the document lives in an in-memory tree, the key index. Interior
nodes are mappings; leaves are tagged scalar, list or set, and each leaf has
exactly one flat entry at its own path. An empty mapping also owns a
placeholder entry, so that emptiness survives a round trip. The index is an
arena of nodes addressed by integer ids; proxies hold an id plus a generation
number, never a pointer.

**Writes are full replacements.**
Setting a key first deletes every flat entry of whatever was there, then
builds the new value. Lists and sets are not split into elements; a collection
is stored whole under its leaf key, and List and SetNode proxies rewrite the
whole collection on every mutation.

Nothing is atomic across multiple flat entries. A failure in the middle of Set
or Pop can leave orphaned entries behind; Rebuild recovers a consistent index
from whatever the flat store holds.

**Key components** must not contain the separator ("."). A dotted key passed to
Set, Get, etc. is always interpreted as a path.

## Binary encoding

**Flat value**: flags (uvarint), then msgpack of the value.
Flags carry a format version (bits 0-3) and the leaf kind (bits 4-6), which
lets Rebuild restore leaf kinds without the snapshot.

**Index snapshot** lives next to the data file ("x.db" => "x.map.db"): a fixed
header with an xxhash64 checksum, followed by the msgpack-encoded tree,
compressed with zstd (default) or lz4.

**Numbers** read back as int64 (uint64 if they do not fit) and float64,
whatever integer or float type was stored.
*/
package flatshelf

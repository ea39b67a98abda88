package flatshelf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how the key index snapshot is compressed on disk.
type Compression uint8

const (
	// CompressDefault is CompressZstd.
	CompressDefault Compression = iota
	CompressNone
	CompressZstd
	CompressLZ4
)

func (c Compression) resolve() Compression {
	if c == CompressDefault {
		return CompressZstd
	}
	return c
}

func (c Compression) String() string {
	switch c.resolve() {
	case CompressNone:
		return "none"
	case CompressZstd:
		return "zstd"
	case CompressLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// Snapshot file format:
//
//   - magic:64 ("FSHLFMAP")
//   - version:8 compression:8 reserved:16
//   - rawSize:32 bodySize:32 (little-endian)
//   - checksum:64 (xxhash of body, little-endian)
//   - body: msgpack of snapshotNode, compressed as the header says
const (
	snapshotMagic      = "FSHLFMAP"
	snapshotVersion1   = 1
	snapshotHeaderSize = 8 + 4 + 4 + 4 + 8
	maxSnapshotRawSize = 1 << 31
)

type snapshotNode struct {
	Name     string         `msgpack:"n"`
	Kind     nodeKind       `msgpack:"k"`
	Children []snapshotNode `msgpack:"c,omitempty"`
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func (ki *keyIndex) snapshot() snapshotNode {
	return ki.snapshotOf(rootID)
}

func (ki *keyIndex) snapshotOf(id nodeID) snapshotNode {
	n := &ki.nodes[id]
	sn := snapshotNode{Name: n.name, Kind: n.kind}
	if len(n.children) > 0 {
		sn.Children = make([]snapshotNode, len(n.children))
		for i, c := range n.children {
			sn.Children[i] = ki.snapshotOf(c)
		}
	}
	return sn
}

func keyIndexFromSnapshot(root snapshotNode) (*keyIndex, error) {
	if root.Kind != kindInterior {
		return nil, fmt.Errorf("snapshot root is a %v", root.Kind)
	}
	ki := newKeyIndex()
	if err := ki.loadChildren(rootID, root.Children); err != nil {
		return nil, err
	}
	return ki, nil
}

func (ki *keyIndex) loadChildren(parent nodeID, children []snapshotNode) error {
	for _, sn := range children {
		if err := ValidateComponent(sn.Name); err != nil {
			return fmt.Errorf("snapshot node %q: %w", sn.Name, err)
		}
		if sn.Kind > kindSet {
			return fmt.Errorf("snapshot node %q: unknown kind %d", sn.Name, sn.Kind)
		}
		if _, dup := ki.child(parent, sn.Name); dup {
			return fmt.Errorf("snapshot node %q: duplicate", sn.Name)
		}
		if sn.Kind.isLeaf() && len(sn.Children) > 0 {
			return fmt.Errorf("snapshot node %q: %v with children", sn.Name, sn.Kind)
		}
		id := ki.addChild(parent, sn.Name, sn.Kind)
		if err := ki.loadChildren(id, sn.Children); err != nil {
			return err
		}
	}
	return nil
}

func encodeSnapshot(ki *keyIndex, comp Compression) ([]byte, error) {
	raw, err := appendMsgpack(nil, ki.snapshot())
	if err != nil {
		return nil, err
	}
	if len(raw) >= maxSnapshotRawSize {
		return nil, fmt.Errorf("snapshot too large: %d bytes", len(raw))
	}

	comp = comp.resolve()
	var body []byte
	switch comp {
	case CompressZstd:
		enc := getZstdEncoder()
		body = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	case CompressLZ4:
		body = make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, body, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		if n == 0 {
			// incompressible
			comp, body = CompressNone, raw
		} else {
			body = body[:n]
		}
	default:
		comp, body = CompressNone, raw
	}

	bb := bytesBuilder{make([]byte, 0, snapshotHeaderSize+len(body))}
	bb.Write([]byte(snapshotMagic))
	bb.WriteByte(snapshotVersion1)
	bb.WriteByte(byte(comp))
	bb.WriteByte(0)
	bb.WriteByte(0)
	bb.AppendFixedUint32(uint32(len(raw)))
	bb.AppendFixedUint32(uint32(len(body)))
	bb.AppendFixedUint64(xxhash.Sum64(body))
	bb.Write(body)
	return bb.Buf, nil
}

func decodeSnapshot(data []byte) (*keyIndex, error) {
	d := makeByteDecoder(data)
	magic, err := d.Raw(len(snapshotMagic))
	if err != nil || string(magic) != snapshotMagic {
		return nil, dataErrf(data, 0, err, "snapshot: bad magic")
	}
	ver, err := d.Byte()
	if err != nil {
		return nil, err
	}
	if ver != snapshotVersion1 {
		return nil, dataErrf(data, d.Off(), nil, "snapshot: unsupported version %d", ver)
	}
	compByte, err := d.Byte()
	if err != nil {
		return nil, err
	}
	if _, err := d.Raw(2); err != nil {
		return nil, err
	}
	rawSize, err := d.FixedUint32()
	if err != nil {
		return nil, err
	}
	bodySize, err := d.FixedUint32()
	if err != nil {
		return nil, err
	}
	checksum, err := d.FixedUint64()
	if err != nil {
		return nil, err
	}
	if uint64(len(d.Buf)) != uint64(bodySize) {
		return nil, dataErrf(data, d.Off(), nil, "snapshot: got %d body bytes, expected %d", len(d.Buf), bodySize)
	}
	body := d.Buf
	if actual := xxhash.Sum64(body); actual != checksum {
		return nil, dataErrf(data, d.Off(), nil, "snapshot: checksum mismatch: %016x != %016x", actual, checksum)
	}
	if rawSize >= maxSnapshotRawSize {
		return nil, dataErrf(data, d.Off(), nil, "snapshot: raw size %d too large", rawSize)
	}

	var raw []byte
	switch Compression(compByte) {
	case CompressNone:
		raw = body
	case CompressZstd:
		dec := getZstdDecoder()
		raw, err = dec.DecodeAll(body, make([]byte, 0, rawSize))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, dataErrf(data, d.Off(), err, "snapshot: zstd")
		}
	case CompressLZ4:
		raw = make([]byte, rawSize)
		n, err := lz4.UncompressBlock(body, raw)
		if err != nil {
			return nil, dataErrf(data, d.Off(), err, "snapshot: lz4")
		}
		raw = raw[:n]
	default:
		return nil, dataErrf(data, d.Off(), nil, "snapshot: unknown compression %d", compByte)
	}
	if uint64(len(raw)) != uint64(rawSize) {
		return nil, dataErrf(data, d.Off(), nil, "snapshot: decompressed %d bytes, expected %d", len(raw), rawSize)
	}

	var root snapshotNode
	if err := decodeMsgpackInto(raw, &root); err != nil {
		return nil, err
	}
	ki, err := keyIndexFromSnapshot(root)
	if err != nil {
		return nil, dataErrf(data, d.Off(), err, "snapshot: invalid tree")
	}
	return ki, nil
}

// readSnapshotFile loads the key index from path. A missing file yields a
// nil index and no error.
func readSnapshotFile(path string) (*keyIndex, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

// writeSnapshotFile replaces the file at path with data atomically.
func writeSnapshotFile(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

// snapshotPath derives the index snapshot file name from the data file name.
func snapshotPath(dataPath string) string {
	const dataSuffix, indexSuffix = ".db", ".map.db"
	if n := len(dataPath) - len(dataSuffix); n > 0 && dataPath[n:] == dataSuffix {
		return dataPath[:n] + indexSuffix
	}
	return dataPath + indexSuffix
}

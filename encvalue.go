package flatshelf

import "fmt"

// Every flat store value starts with a uvarint of valueFlags, followed by the
// msgpack encoding of the value. The flags record the leaf kind so that the
// key index can be rebuilt from the flat store alone.
type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfVerBit2
	vfVerBit3
	vfKindBit0
	vfKindBit1
	vfKindBit2

	vfVerMask       = (vfVerBit0 | vfVerBit1 | vfVerBit2 | vfVerBit3)
	vfKindMask      = (vfKindBit0 | vfKindBit1 | vfKindBit2)
	vfKindShift     = 4
	vfVer1          = vfVerBit0
	vfSupportedMask = (vfVer1 | vfKindMask)

	minValueSize = 2
)

func (vf valueFlags) ver() valueFlags {
	return vf & vfVerMask
}

// kind is the node kind of the entry; kindInterior marks the placeholder of
// an empty mapping.
func (vf valueFlags) kind() nodeKind {
	return nodeKind((vf & vfKindMask) >> vfKindShift)
}

func makeValueFlags(kind nodeKind) valueFlags {
	return vfVer1 | (valueFlags(kind)<<vfKindShift)&vfKindMask
}

// encodeFlatValue encodes a normalized value of the given kind.
func encodeFlatValue(kind nodeKind, v any) ([]byte, error) {
	var bb bytesBuilder
	bb.AppendUvarint(uint64(makeValueFlags(kind)))

	var payload any
	switch kind {
	case kindInterior:
		payload = map[string]any{}
	case kindSet:
		payload = v.(*Set).Values()
	default:
		payload = v
	}
	return appendMsgpack(bb.Buf, payload)
}

// encodePlaceholder encodes the entry of an empty mapping.
func encodePlaceholder() []byte {
	return must(encodeFlatValue(kindInterior, nil))
}

func decodeFlatValue(data []byte) (nodeKind, any, error) {
	if len(data) < minValueSize {
		return 0, nil, dataErrf(data, 0, nil, "invalid value: at least %d bytes required", minValueSize)
	}
	d := makeByteDecoder(data)
	v, err := d.Uvarint()
	if err != nil {
		return 0, nil, err
	}
	vf := valueFlags(v)
	if (vf &^ vfSupportedMask) != 0 {
		return 0, nil, dataErrf(data, 0, nil, "invalid value: unsupported flags %x", v)
	}
	if vf.ver() != vfVer1 {
		return 0, nil, dataErrf(data, 0, nil, "invalid value: unsupported version %d", vf.ver())
	}
	kind := vf.kind()
	if kind > kindSet {
		return 0, nil, dataErrf(data, 0, nil, "invalid value: unknown kind %d", kind)
	}

	raw, err := decodeMsgpackAny(d.Buf)
	if err != nil {
		return 0, nil, err
	}
	val, err := normalize(raw)
	if err != nil {
		return 0, nil, dataErrf(data, d.Off(), err, "invalid value")
	}

	switch kind {
	case kindInterior:
		return kind, map[string]any{}, nil
	case kindSequence:
		if _, ok := val.([]any); !ok {
			return 0, nil, dataErrf(data, d.Off(), nil, "invalid value: list expected, got %T", val)
		}
	case kindSet:
		items, ok := val.([]any)
		if !ok {
			return 0, nil, dataErrf(data, d.Off(), nil, "invalid value: set expected, got %T", val)
		}
		set, err := setFromSlice(items)
		if err != nil {
			return 0, nil, dataErrf(data, d.Off(), err, "invalid value")
		}
		return kind, set, nil
	}
	return kind, val, nil
}

func (vf valueFlags) String() string {
	return fmt.Sprintf("v%d/%v", vf.ver(), vf.kind())
}

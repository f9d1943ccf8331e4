package field

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of field.proto.
const (
	vec3X protowire.Number = 1
	vec3Y protowire.Number = 2
	vec3Z protowire.Number = 3

	entryPosition  protowire.Number = 1
	entryDirection protowire.Number = 2

	fieldBoundsMin protowire.Number = 1
	fieldCellSize  protowire.Number = 2
	fieldEntries   protowire.Number = 3
)

// EncodeBinary encodes the field with the protobuf wire layout described in
// field.proto. Output is deterministic for a given field.
func EncodeBinary(f BakedField) []byte {
	b := make([]byte, 0, 64+len(f.Entries)*60)

	b = protowire.AppendTag(b, fieldBoundsMin, protowire.BytesType)
	b = protowire.AppendBytes(b, appendVec3(nil, f.BoundsMin))

	b = protowire.AppendTag(b, fieldCellSize, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(f.CellSize))

	var entry []byte
	for _, e := range f.Entries {
		entry = entry[:0]

		entry = protowire.AppendTag(entry, entryPosition, protowire.BytesType)
		entry = protowire.AppendBytes(entry, appendVec3(nil, e.Position))
		entry = protowire.AppendTag(entry, entryDirection, protowire.BytesType)
		entry = protowire.AppendBytes(entry, appendVec3(nil, e.Direction))

		b = protowire.AppendTag(b, fieldEntries, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}

	return b
}

func appendVec3(b []byte, v r3.Vec) []byte {
	b = protowire.AppendTag(b, vec3X, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(v.X))
	b = protowire.AppendTag(b, vec3Y, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(v.Y))
	b = protowire.AppendTag(b, vec3Z, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(v.Z))
	return b
}

// DecodeBinary decodes a binary artifact. Unknown fields are skipped and
// directions are re-normalized.
func DecodeBinary(b []byte) (BakedField, error) {
	var f BakedField

	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldBoundsMin && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			vec, err := decodeVec3(v)
			if err != nil {
				return 0, err
			}
			f.BoundsMin = vec
			return n, nil

		case num == fieldCellSize && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			f.CellSize = math.Float64frombits(v)
			return n, nil

		case num == fieldEntries && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			e, err := decodeEntry(v)
			if err != nil {
				return 0, err
			}
			f.Entries = append(f.Entries, e)
			return n, nil

		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return BakedField{}, err
	}

	if err := f.Validate(); err != nil {
		return BakedField{}, err
	}
	return f.sanitize(), nil
}

func decodeEntry(b []byte) (Entry, error) {
	var e Entry

	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType || (num != entryPosition && num != entryDirection) {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		vec, err := decodeVec3(v)
		if err != nil {
			return 0, err
		}

		if num == entryPosition {
			e.Position = vec
		} else {
			e.Direction = vec
		}
		return n, nil
	})
	return e, err
}

func decodeVec3(b []byte) (r3.Vec, error) {
	var v r3.Vec

	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.Fixed64Type {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}

		bits, n := protowire.ConsumeFixed64(b)
		switch num {
		case vec3X:
			v.X = math.Float64frombits(bits)
		case vec3Y:
			v.Y = math.Float64frombits(bits)
		case vec3Z:
			v.Z = math.Float64frombits(bits)
		}
		return n, nil
	})
	return v, err
}

// consumeMessage walks the fields of one message. consumeField returns how
// many bytes of the field value it consumed, or a negative protowire error
// code.
func consumeMessage(b []byte, consumeField func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.New("reading binary artifact tag failed").
				WithType(ErrTypeInvalidArtifact).
				Wrap(protowire.ParseError(n))
		}
		b = b[n:]

		n, err := consumeField(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return errors.New("reading binary artifact field failed").
				WithType(ErrTypeInvalidArtifact).
				WithTag("field", num).
				Wrap(protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

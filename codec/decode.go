package codec

import (
	"fmt"

	"github.com/hexbus/dbusrest/signature"
	"github.com/hexbus/dbusrest/wire"
)

// Decode reads a value off dec according to sig and returns its JSON
// representation.
//
// If sig splits into more than one top-level type, the result is a
// []any with one element per type, in order. If sig is a single
// complete type, the result is that type's decoded value directly.
func Decode(dec *wire.Decoder, sig string) (any, error) {
	parts, err := signature.Split(sig)
	if err != nil {
		return nil, err
	}
	if len(parts) == 1 {
		return decodeOne(dec, parts[0])
	}
	ret := make([]any, len(parts))
	for i, p := range parts {
		v, err := decodeOne(dec, p)
		if err != nil {
			return nil, err
		}
		ret[i] = v
	}
	return ret, nil
}

func decodeOne(dec *wire.Decoder, typeCode string) (any, error) {
	switch typeCode[0] {
	case 's', 'o':
		return dec.String()
	case 'g':
		return dec.Signature()
	case 'y':
		return dec.Uint8()
	case 'q':
		return dec.Uint16()
	case 'u':
		return dec.Uint32()
	case 't':
		return dec.Uint64()
	case 'n':
		u, err := dec.Uint16()
		return int16(u), err
	case 'i':
		u, err := dec.Uint32()
		return int32(u), err
	case 'x':
		u, err := dec.Uint64()
		return int64(u), err
	case 'd':
		u, err := dec.Uint64()
		return float64frombits(u), err
	case 'b':
		u, err := dec.Uint32()
		if err != nil {
			return nil, err
		}
		// Compatibility quirk: decoded bools are emitted as the
		// integer 1 or 0, not a JSON bool, to match the legacy REST
		// encoding this bridge replaces.
		if u != 0 {
			return 1, nil
		}
		return 0, nil
	case 'v':
		return decodeVariant(dec)
	case 'a':
		return decodeArray(dec, typeCode)
	case '(':
		return decodeStruct(dec, typeCode)
	default:
		return nil, fmt.Errorf("codec: unexpected top-level type code %q", typeCode)
	}
}

func decodeVariant(dec *wire.Decoder) (any, error) {
	inner, err := dec.Signature()
	if err != nil {
		return nil, err
	}
	return Decode(dec, inner)
}

func decodeArray(dec *wire.Decoder, typeCode string) (any, error) {
	elemType := typeCode[1:]
	if elemType[0] == '{' {
		return decodeDict(dec, elemType)
	}

	var ret []any
	_, err := dec.Array(elemType[0] == '(', func(int) error {
		v, err := decodeOne(dec, elemType)
		if err != nil {
			return err
		}
		ret = append(ret, v)
		return nil
	})
	if ret == nil {
		ret = []any{}
	}
	return ret, err
}

func decodeDict(dec *wire.Decoder, dictType string) (any, error) {
	fields, err := signature.Split(dictType[1 : len(dictType)-1])
	if err != nil {
		return nil, err
	}
	if len(fields) != 2 {
		return nil, fmt.Errorf("codec: dict-entry %q must have exactly 2 fields", dictType)
	}
	keyType, valType := fields[0], fields[1]

	ret := map[string]any{}
	_, err = dec.Array(true, func(int) error {
		return dec.Struct(func() error {
			k, err := decodeOne(dec, keyType)
			if err != nil {
				return err
			}
			v, err := decodeOne(dec, valType)
			if err != nil {
				return err
			}
			ret[fmt.Sprint(k)] = v
			return nil
		})
	})
	return ret, err
}

func decodeStruct(dec *wire.Decoder, typeCode string) (any, error) {
	fields, err := signature.Split(typeCode[1 : len(typeCode)-1])
	if err != nil {
		return nil, err
	}
	ret := make([]any, 0, len(fields))
	err = dec.Struct(func() error {
		for _, f := range fields {
			v, err := decodeOne(dec, f)
			if err != nil {
				return err
			}
			ret = append(ret, v)
		}
		return nil
	})
	return ret, err
}

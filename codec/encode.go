package codec

import (
	"github.com/hexbus/dbusrest/signature"
	"github.com/hexbus/dbusrest/wire"
)

// Encode writes json to enc according to sig.
//
// If sig splits into more than one top-level type, json must be a
// JSON array whose length matches the split; each element is encoded
// against its corresponding type. If sig is a single complete type,
// json is encoded against it directly.
func Encode(enc *wire.Encoder, sig string, json any) error {
	parts, err := signature.Split(sig)
	if err != nil {
		return err
	}
	if len(parts) == 1 {
		return encodeOne(enc, parts[0], json)
	}
	arr, ok := json.([]any)
	if !ok {
		return mismatch(sig, "signature has %d top-level types, but JSON value is not an array", len(parts))
	}
	if len(arr) != len(parts) {
		return mismatch(sig, "signature has %d top-level types, but JSON array has %d elements", len(parts), len(arr))
	}
	for i, p := range parts {
		if err := encodeOne(enc, p, arr[i]); err != nil {
			return err
		}
	}
	return nil
}

// EncodeVariant writes json as a variant whose inner signature is
// innerSig: the variant signature header followed by the value
// itself. Callers that already know the target type out of band (the
// PUT handler reading a property's introspected type, for example)
// use this instead of routing a bare "v" through [Encode].
func EncodeVariant(enc *wire.Encoder, innerSig string, json any) error {
	if err := signature.Validate(innerSig); err != nil {
		return err
	}
	enc.Signature(innerSig)
	return Encode(enc, innerSig, json)
}

func encodeOne(enc *wire.Encoder, typeCode string, v any) error {
	switch typeCode[0] {
	case 's', 'o', 'g':
		s, ok := v.(string)
		if !ok {
			return mismatch(typeCode, "want JSON string, got %T", v)
		}
		if typeCode[0] == 'g' {
			enc.Signature(s)
		} else {
			enc.String(s)
		}
		return nil
	case 'y':
		u, ok := asUint64(v)
		if !ok || u > 0xff {
			return mismatch(typeCode, "value %v does not fit in u8", v)
		}
		enc.Uint8(uint8(u))
		return nil
	case 'q':
		u, ok := asUint64(v)
		if !ok || u > 0xffff {
			return mismatch(typeCode, "value %v does not fit in u16", v)
		}
		enc.Uint16(uint16(u))
		return nil
	case 'u':
		u, ok := asUint64(v)
		if !ok || u > 0xffffffff {
			return mismatch(typeCode, "value %v does not fit in u32", v)
		}
		enc.Uint32(uint32(u))
		return nil
	case 't':
		u, ok := asUint64(v)
		if !ok {
			return mismatch(typeCode, "value %v is not an unsigned integer", v)
		}
		enc.Uint64(u)
		return nil
	case 'n':
		i, ok := asInt64(v)
		if !ok || i < -0x8000 || i > 0x7fff {
			return mismatch(typeCode, "value %v does not fit in i16", v)
		}
		enc.Uint16(uint16(int16(i)))
		return nil
	case 'i':
		i, ok := asInt64(v)
		if !ok || i < -0x80000000 || i > 0x7fffffff {
			return mismatch(typeCode, "value %v does not fit in i32", v)
		}
		enc.Uint32(uint32(int32(i)))
		return nil
	case 'x':
		i, ok := asInt64(v)
		if !ok {
			return mismatch(typeCode, "value %v is not an integer", v)
		}
		enc.Uint64(uint64(i))
		return nil
	case 'd':
		f, ok := asFloat64(v)
		if !ok {
			return mismatch(typeCode, "value %v is not a number", v)
		}
		enc.Uint64(float64bits(f))
		return nil
	case 'b':
		b, ok := asBool(v)
		if !ok {
			return mismatch(typeCode, "value %v is not boolean-like", v)
		}
		u := uint32(0)
		if b {
			u = 1
		}
		enc.Uint32(u)
		return nil
	case 'v':
		return encodeExplicitVariant(enc, v)
	case 'a':
		return encodeArray(enc, typeCode, v)
	case '(':
		return encodeStruct(enc, typeCode, v)
	default:
		return mismatch(typeCode, "unexpected top-level type code")
	}
}

// encodeExplicitVariant handles a bare "v" type reached through
// [Encode] (for example, a method argument the introspection data
// declares as variant-typed). Since the signature alphabet gives no
// way to carry the variant's inner type inline, the JSON value must
// self-describe it.
func encodeExplicitVariant(enc *wire.Encoder, v any) error {
	obj, ok := v.(map[string]any)
	if !ok {
		return mismatch("v", "variant argument must be a JSON object with \"signature\" and \"value\" keys")
	}
	sig, ok := obj["signature"].(string)
	if !ok {
		return mismatch("v", "variant argument missing string \"signature\" key")
	}
	return EncodeVariant(enc, sig, obj["value"])
}

func encodeArray(enc *wire.Encoder, typeCode string, v any) error {
	elemType := typeCode[1:]
	if elemType[0] == '{' {
		return encodeDict(enc, elemType, v)
	}

	arr, ok := v.([]any)
	if !ok {
		return mismatch(typeCode, "want JSON array, got %T", v)
	}
	containsStructs := elemType[0] == '('
	return enc.Array(containsStructs, func() error {
		for _, elem := range arr {
			if err := encodeOne(enc, elemType, elem); err != nil {
				return err
			}
		}
		return nil
	})
}

func encodeDict(enc *wire.Encoder, dictType string, v any) error {
	fields, err := signature.Split(dictType[1 : len(dictType)-1])
	if err != nil {
		return err
	}
	if len(fields) != 2 {
		return mismatch(dictType, "dict-entry must have exactly 2 fields, got %d", len(fields))
	}
	keyType, valType := fields[0], fields[1]

	obj, ok := v.(map[string]any)
	if !ok {
		return mismatch("a"+dictType, "want JSON object, got %T", v)
	}

	return enc.Array(true, func() error {
		for k, val := range obj {
			err := enc.Struct(func() error {
				if err := encodeOne(enc, keyType, keyFromString(keyType, k)); err != nil {
					return err
				}
				return encodeOne(enc, valType, val)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// keyFromString converts a JSON object key (always a Go string) back
// to the JSON-ish value encodeOne expects for keyType, since object
// keys carry no numeric type information of their own.
func keyFromString(keyType, k string) any {
	switch keyType[0] {
	case 's', 'o', 'g':
		return k
	default:
		return jsonNumberFromString(k)
	}
}

func encodeStruct(enc *wire.Encoder, typeCode string, v any) error {
	inner := typeCode[1 : len(typeCode)-1]
	fields, err := signature.Split(inner)
	if err != nil {
		return err
	}
	arr, ok := v.([]any)
	if !ok {
		return mismatch(typeCode, "want JSON array, got %T", v)
	}
	if len(arr) != len(fields) {
		return mismatch(typeCode, "struct has %d fields, but JSON array has %d elements", len(fields), len(arr))
	}
	return enc.Struct(func() error {
		for i, f := range fields {
			if err := encodeOne(enc, f, arr[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

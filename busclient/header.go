package busclient

import (
	"fmt"

	"github.com/hexbus/dbusrest/wire"
)

// msgType is the type of a DBus message.
type msgType byte

const (
	msgTypeCall msgType = iota + 1
	msgTypeReturn
	msgTypeError
	msgTypeSignal
)

// Header field codes, per the DBus message protocol.
const (
	fieldPath        = 1
	fieldInterface   = 2
	fieldMember      = 3
	fieldErrName     = 4
	fieldReplySerial = 5
	fieldDestination = 6
	fieldSender      = 7
	fieldSignature   = 8
	fieldNumFDs      = 9
)

const protocolVersion = 1

// flagNoReplyExpected is the header flag bit that tells the peer not
// to send a method reply.
const flagNoReplyExpected = 0x1

// header is a decoded DBus message header. Unlike the rest of this
// package, header fields are not signature-driven: the header's shape
// is fixed by the DBus specification, so it is encoded and decoded
// directly rather than through the generic codec.
type header struct {
	Type        msgType
	Flags       byte
	BodyLength  uint32
	Serial      uint32
	Path        ObjectPath
	Interface   string
	Member      string
	ErrName     string
	ReplySerial uint32
	Destination string
	Sender      string
	Signature   string
	NumFDs      uint32
}

func (h *header) wantReply() bool {
	return h.Type == msgTypeCall && h.Flags&flagNoReplyExpected == 0
}

func (h *header) valid() error {
	if h.Serial == 0 {
		return &ProtocolError{"message with zero serial"}
	}
	switch h.Type {
	case msgTypeCall:
		if h.Path == "" || h.Member == "" {
			return &ProtocolError{"call message missing path or member"}
		}
	case msgTypeReturn, msgTypeError:
		if h.ReplySerial == 0 {
			return &ProtocolError{"return/error message missing reply serial"}
		}
	case msgTypeSignal:
		if h.Path == "" || h.Interface == "" || h.Member == "" {
			return &ProtocolError{"signal message missing path, interface or member"}
		}
	default:
		return &ProtocolError{fmt.Sprintf("unknown message type %d", h.Type)}
	}
	return nil
}

// encodeHeader writes h's fixed preamble and header field array. The
// caller is responsible for following it with h.BodyLength bytes of
// body and for having set h.Signature/h.NumFDs to match that body.
func encodeHeader(enc *wire.Encoder, h *header) error {
	enc.ByteOrderFlag()
	enc.Uint8(byte(h.Type))
	enc.Uint8(h.Flags)
	enc.Uint8(protocolVersion)
	enc.Uint32(h.BodyLength)
	enc.Uint32(h.Serial)

	err := enc.Array(true, func() error {
		writeField := func(code byte, sig string, write func()) {
			enc.Struct(func() error {
				enc.Uint8(code)
				enc.Signature(sig)
				write()
				return nil
			})
		}
		if h.Path != "" {
			writeField(fieldPath, "o", func() { enc.String(string(h.Path)) })
		}
		if h.Interface != "" {
			writeField(fieldInterface, "s", func() { enc.String(h.Interface) })
		}
		if h.Member != "" {
			writeField(fieldMember, "s", func() { enc.String(h.Member) })
		}
		if h.ErrName != "" {
			writeField(fieldErrName, "s", func() { enc.String(h.ErrName) })
		}
		if h.ReplySerial != 0 {
			writeField(fieldReplySerial, "u", func() { enc.Uint32(h.ReplySerial) })
		}
		if h.Destination != "" {
			writeField(fieldDestination, "s", func() { enc.String(h.Destination) })
		}
		if h.Sender != "" {
			writeField(fieldSender, "s", func() { enc.String(h.Sender) })
		}
		if h.Signature != "" {
			writeField(fieldSignature, "g", func() { enc.Signature(h.Signature) })
		}
		if h.NumFDs != 0 {
			writeField(fieldNumFDs, "u", func() { enc.Uint32(h.NumFDs) })
		}
		return nil
	})
	if err != nil {
		return err
	}

	enc.Pad(8)
	return nil
}

// decodeHeader reads a fixed preamble and header field array. The
// caller must read exactly h.BodyLength further bytes for the body.
func decodeHeader(dec *wire.Decoder) (*header, error) {
	if err := dec.ByteOrderFlag(); err != nil {
		return nil, err
	}
	t, err := dec.Uint8()
	if err != nil {
		return nil, err
	}
	h := &header{Type: msgType(t)}
	if h.Flags, err = dec.Uint8(); err != nil {
		return nil, err
	}
	if _, err := dec.Uint8(); err != nil { // protocol version, unused
		return nil, err
	}
	if h.BodyLength, err = dec.Uint32(); err != nil {
		return nil, err
	}
	if h.Serial, err = dec.Uint32(); err != nil {
		return nil, err
	}

	_, err = dec.Array(true, func(int) error {
		return dec.Struct(func() error {
			code, err := dec.Uint8()
			if err != nil {
				return err
			}
			sig, err := dec.Signature()
			if err != nil {
				return err
			}
			switch code {
			case fieldPath:
				s, err := dec.String()
				h.Path = ObjectPath(s)
				return err
			case fieldInterface:
				h.Interface, err = dec.String()
				return err
			case fieldMember:
				h.Member, err = dec.String()
				return err
			case fieldErrName:
				h.ErrName, err = dec.String()
				return err
			case fieldReplySerial:
				h.ReplySerial, err = dec.Uint32()
				return err
			case fieldDestination:
				h.Destination, err = dec.String()
				return err
			case fieldSender:
				h.Sender, err = dec.String()
				return err
			case fieldSignature:
				h.Signature, err = dec.Signature()
				return err
			case fieldNumFDs:
				h.NumFDs, err = dec.Uint32()
				return err
			default:
				return skipUnknownField(dec, sig)
			}
		})
	})
	if err != nil {
		return nil, err
	}

	if err := dec.Pad(8); err != nil {
		return nil, err
	}
	return h, nil
}

// skipUnknownField consumes and discards the value of a header field
// this package does not recognize, so that decoding can continue past
// it. Only the small set of basic types that can plausibly appear in
// a header value are supported; anything else is a protocol error,
// since there is no generic way to skip an arbitrary dbus value
// without knowing its full signature recursively.
func skipUnknownField(dec *wire.Decoder, sig string) error {
	switch sig {
	case "s", "o":
		_, err := dec.String()
		return err
	case "g":
		_, err := dec.Signature()
		return err
	case "u", "i":
		_, err := dec.Uint32()
		return err
	case "y":
		_, err := dec.Uint8()
		return err
	default:
		return &ProtocolError{fmt.Sprintf("unknown header field with unsupported type %q", sig)}
	}
}

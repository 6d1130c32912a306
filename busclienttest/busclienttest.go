// Package busclienttest provides an in-memory fake bus peer for
// exercising the action handlers (C6) and resolver (C4) without a
// real system bus connection. It speaks just enough of the wire
// protocol to answer Hello and then dispatch every subsequent call to
// a test-registered handler, keyed by interface and method name.
package busclienttest

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hexbus/dbusrest/busclient"
	"github.com/hexbus/dbusrest/wire"
)

// Reply is the outcome a registered Handler produces for one call.
type Reply struct {
	Sig  string
	Body []byte
}

// Handler answers one method call's raw argument body with a raw
// reply body of its own signature.
type Handler func(path, body []byte) Reply

type call struct {
	iface  string
	member string
}

// Bus is a fake bus peer backed by a net.Pipe, answering calls
// through test-registered handlers rather than a real bus daemon.
type Bus struct {
	t    *testing.T
	conn net.Conn

	mu       sync.Mutex
	handlers map[call]Handler
}

// New starts a fake bus and returns the busclient.Conn dialed against
// it. The caller registers handlers with Handle before issuing any
// calls that should reach them; an unhandled call causes an immediate
// test failure.
func New(t *testing.T) (*Bus, *busclient.Conn) {
	t.Helper()
	client, server := net.Pipe()
	b := &Bus{t: t, conn: server, handlers: map[call]Handler{}}

	go b.serve()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := busclient.NewConn(ctx, client, slog.Default())
	if err != nil {
		t.Fatalf("busclienttest: NewConn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return b, conn
}

// Handle registers fn to answer every call to iface.member, regardless
// of destination or object path (this fake has no routing concept
// beyond the interface/method pair, matching how the object resolver's
// own returned connection names are opaque aliases on a single fake
// transport).
func (b *Bus) Handle(iface, member string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[call{iface, member}] = fn
}

func (b *Bus) serve() {
	h, _ := b.readRaw()
	if h.member != "Hello" {
		b.t.Errorf("busclienttest: first call = %q, want Hello", h.member)
	}
	enc := &wire.Encoder{Order: wire.NativeEndian}
	enc.String(":1.1")
	b.writeReturn(h.serial, "s", enc.Out)

	for {
		h, body := b.readRaw()
		if h.typ == 0 {
			return
		}
		b.mu.Lock()
		fn, ok := b.handlers[call{h.iface, h.member}]
		b.mu.Unlock()
		if !ok {
			b.t.Errorf("busclienttest: no handler registered for %s.%s", h.iface, h.member)
			b.writeReturn(h.serial, "", nil)
			continue
		}
		r := fn([]byte(h.path), body)
		b.writeReturn(h.serial, r.Sig, r.Body)
	}
}

type rawHeader struct {
	typ    byte
	serial uint32
	path   string
	iface  string
	member string
}

// readRaw parses just enough of a message (type, serial, path,
// interface, member, body length) to drive this fixture, without
// depending on busclient's unexported header type.
func (b *Bus) readRaw() (rawHeader, []byte) {
	dec := &wire.Decoder{Order: wire.NativeEndian, In: b.conn}
	if err := dec.ByteOrderFlag(); err != nil {
		return rawHeader{}, nil // pipe closed
	}
	typ, err := dec.Uint8()
	if err != nil {
		return rawHeader{}, nil
	}
	if _, err := dec.Uint8(); err != nil { // flags
		b.t.Fatalf("busclienttest: flags: %v", err)
	}
	if _, err := dec.Uint8(); err != nil { // protocol version
		b.t.Fatalf("busclienttest: version: %v", err)
	}
	bodyLen, err := dec.Uint32()
	if err != nil {
		b.t.Fatalf("busclienttest: body length: %v", err)
	}
	serial, err := dec.Uint32()
	if err != nil {
		b.t.Fatalf("busclienttest: serial: %v", err)
	}

	h := rawHeader{typ: typ, serial: serial}
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
			case 1: // path
				h.path, err = dec.String()
			case 2: // interface
				h.iface, err = dec.String()
			case 3: // member
				h.member, err = dec.String()
			case 6: // destination
				_, err = dec.String()
			case 7: // sender
				_, err = dec.String()
			default:
				switch sig {
				case "s", "o":
					_, err = dec.String()
				case "u":
					_, err = dec.Uint32()
				case "g":
					_, err = dec.Signature()
				}
			}
			return err
		})
	})
	if err != nil {
		b.t.Fatalf("busclienttest: header fields: %v", err)
	}
	if err := dec.Pad(8); err != nil {
		b.t.Fatalf("busclienttest: header padding: %v", err)
	}

	body, err := dec.Read(int(bodyLen))
	if err != nil {
		b.t.Fatalf("busclienttest: body: %v", err)
	}
	return h, body
}

func (b *Bus) writeReturn(replySerial uint32, sig string, body []byte) {
	enc := &wire.Encoder{Order: wire.NativeEndian}
	enc.ByteOrderFlag()
	enc.Uint8(2) // msgTypeReturn
	enc.Uint8(0)
	enc.Uint8(1)
	enc.Uint32(uint32(len(body)))
	enc.Uint32(1) // serial, unused by the client
	enc.Array(true, func() error {
		enc.Struct(func() error {
			enc.Uint8(5)
			enc.Signature("u")
			enc.Uint32(replySerial)
			return nil
		})
		if sig != "" {
			enc.Struct(func() error {
				enc.Uint8(8)
				enc.Signature("g")
				enc.Signature(sig)
				return nil
			})
		}
		return nil
	})
	enc.Pad(8)
	enc.Write(body)
	if _, err := b.conn.Write(enc.Out); err != nil {
		b.t.Fatalf("busclienttest: write reply: %v", err)
	}
}

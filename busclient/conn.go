// Package busclient is a minimal, signature-driven DBus client.
//
// Unlike a general-purpose binding, busclient never encodes or decodes
// Go values: every call site supplies and receives already-serialized
// wire bytes plus the signature string describing them. That split
// exists because this client's callers are themselves translating a
// dynamic JSON payload to and from the wire, driven by a signature
// string read from introspection at request time — there is no
// compile-time Go type to reflect over.
//
// Method replies are delivered from the connection's single read-loop
// goroutine: [Interface.CallAsync] returns as soon as the call is
// written, and the supplied callback runs later, serially with every
// other pending call's callback, from that one goroutine. Callers
// that fan out many calls against a shared piece of state (the
// txn package's job) therefore need no locking of their own.
package busclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/hexbus/dbusrest/transport"
	"github.com/hexbus/dbusrest/wire"
)

// ReplyFunc receives the result of an asynchronous method call: the
// reply body's signature and raw wire bytes on success, or a non-nil
// err (typically a [CallError] or a context error) on failure.
type ReplyFunc func(sig string, body []byte, err error)

// Conn is a connection to a message bus.
type Conn struct {
	t       transport.Transport
	localID string
	logger  *slog.Logger
	writeMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	calls      map[uint32]*pendingCall
	lastSerial uint32
}

type pendingCall struct {
	reply   ReplyFunc
	once    sync.Once
	cancel  context.CancelFunc
}

// Dial connects to the bus reachable over the unix-domain socket at
// socketPath and completes the Hello handshake that assigns this
// connection its unique bus name.
func Dial(ctx context.Context, socketPath string, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t, err := transport.DialUnix(ctx, socketPath)
	if err != nil {
		return nil, fmt.Errorf("dialing bus: %w", err)
	}
	return newConn(ctx, t, logger)
}

// NewConn wraps an already-authenticated transport and performs the
// Hello handshake. Dial is the usual entry point; this is exported
// for callers (and tests) that have their own transport, e.g. a
// forwarding proxy or an in-memory fixture, rather than a real
// unix-domain socket.
func NewConn(ctx context.Context, t transport.Transport, logger *slog.Logger) (*Conn, error) {
	return newConn(ctx, t, logger)
}

func newConn(ctx context.Context, t transport.Transport, logger *slog.Logger) (*Conn, error) {
	c := &Conn{
		t:      t,
		logger: logger,
		calls:  map[uint32]*pendingCall{},
	}

	go c.readLoop()

	type helloResult struct {
		sig  string
		body []byte
		err  error
	}
	done := make(chan helloResult, 1)
	c.CallAsync(ctx, "org.freedesktop.DBus", "/org/freedesktop/DBus", "org.freedesktop.DBus", "Hello", "", nil,
		func(sig string, body []byte, err error) {
			done <- helloResult{sig, body, err}
		})

	select {
	case res := <-done:
		if res.err != nil {
			c.Close()
			return nil, fmt.Errorf("Hello handshake: %w", res.err)
		}
		if res.sig != "s" {
			c.Close()
			return nil, &ProtocolError{fmt.Sprintf("Hello reply had signature %q, want \"s\"", res.sig)}
		}
		dec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(res.body)}
		name, err := dec.String()
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("decoding Hello reply: %w", err)
		}
		c.localID = name
		return c, nil
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
}

// Close closes the underlying transport and fails any calls still
// awaiting a reply.
func (c *Conn) Close() error {
	var pending map[uint32]*pendingCall
	c.mu.Lock()
	c.closed = true
	pending, c.calls = c.calls, nil
	c.mu.Unlock()

	for _, p := range pending {
		p.complete("", nil, net.ErrClosed)
	}
	return c.t.Close()
}

// LocalName returns the unique bus name the message bus assigned this
// connection during the Hello handshake.
func (c *Conn) LocalName() string {
	return c.localID
}

// Peer returns a handle for the bus name name. The returned value is
// purely local bookkeeping: it does not verify that a peer by that
// name currently owns the bus name.
func (c *Conn) Peer(name string) Peer {
	return Peer{c: c, name: name}
}

func (p *pendingCall) complete(sig string, body []byte, err error) {
	p.once.Do(func() {
		p.reply(sig, body, err)
	})
}

// CallAsync sends a method-call message and returns immediately. reply
// is invoked exactly once, from the connection's read loop, either
// with the call's reply or with an error (a [CallError] from the bus,
// or ctx's error if ctx is done before a reply arrives).
func (c *Conn) CallAsync(ctx context.Context, destination string, path ObjectPath, iface, method, argSig string, argBody []byte, reply ReplyFunc) {
	ctx, cancel := context.WithCancel(ctx)
	pending := &pendingCall{reply: reply, cancel: cancel}

	serial, err := c.registerCall(pending)
	if err != nil {
		cancel()
		pending.complete("", nil, err)
		return
	}

	h := &header{
		Type:        msgTypeCall,
		Serial:      serial,
		Path:        path,
		Interface:   iface,
		Member:      method,
		Destination: destination,
		Signature:   argSig,
		BodyLength:  uint32(len(argBody)),
	}
	if err := c.writeMsg(h, argBody); err != nil {
		c.dropCall(serial)
		cancel()
		pending.complete("", nil, err)
		return
	}

	go func() {
		<-ctx.Done()
		if c.dropCall(serial) {
			pending.complete("", nil, ctx.Err())
		}
	}()
}

func (c *Conn) registerCall(p *pendingCall) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	c.lastSerial++
	serial := c.lastSerial
	c.calls[serial] = p
	return serial, nil
}

// dropCall removes serial's pending call, if still registered, and
// reports whether it did so (false means the reply already arrived
// and completed the call first).
func (c *Conn) dropCall(serial uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.calls[serial]; !ok {
		return false
	}
	delete(c.calls, serial)
	return true
}

func (c *Conn) writeMsg(h *header, body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	enc := &wire.Encoder{Order: wire.NativeEndian}
	if err := encodeHeader(enc, h); err != nil {
		return err
	}
	if _, err := c.t.Write(enc.Out); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := c.t.Write(body); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) readLoop() {
	for {
		if err := c.dispatchOne(); err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			c.logger.Error("bus read error", "error", err)
			return
		}
	}
}

func (c *Conn) dispatchOne() error {
	dec := &wire.Decoder{Order: wire.NativeEndian, In: c.t}
	h, err := decodeHeader(dec)
	if err != nil {
		return err
	}
	if err := h.valid(); err != nil {
		return err
	}
	body, err := io.ReadAll(io.LimitReader(c.t, int64(h.BodyLength)))
	if err != nil {
		return err
	}

	switch h.Type {
	case msgTypeReturn:
		c.completeCall(h.ReplySerial, h.Signature, body, nil)
	case msgTypeError:
		c.completeCall(h.ReplySerial, "", nil, CallError{Name: h.ErrName, Detail: errorDetail(h, body)})
	case msgTypeCall, msgTypeSignal:
		// This client never exports methods or watches signals: it is
		// a pure outbound caller, so these are logged and dropped.
		c.logger.Debug("ignoring inbound message", "type", h.Type, "interface", h.Interface, "member", h.Member)
	}
	return nil
}

func (c *Conn) completeCall(replySerial uint32, sig string, body []byte, err error) {
	c.mu.Lock()
	p := c.calls[replySerial]
	delete(c.calls, replySerial)
	c.mu.Unlock()

	if p == nil {
		// Reply to a call we already gave up on (context canceled).
		return
	}
	p.cancel()
	p.complete(sig, body, err)
}

// errorDetail extracts the human-readable string from an error
// reply's body, if it has one. Error replies conventionally carry a
// single string argument describing the failure.
func errorDetail(h *header, body []byte) string {
	if h.Signature != "s" {
		return ""
	}
	dec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(body)}
	s, err := dec.String()
	if err != nil {
		return ""
	}
	return s
}

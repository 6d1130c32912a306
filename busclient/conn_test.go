package busclient

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/hexbus/dbusrest/wire"
)

// fakePeer answers a subset of bus traffic by hand, playing the role
// of the bus daemon and whatever service is being called.
type fakePeer struct {
	t    *testing.T
	conn net.Conn
}

func (p *fakePeer) readMsg() (*header, []byte) {
	dec := &wire.Decoder{Order: wire.NativeEndian, In: p.conn}
	h, err := decodeHeader(dec)
	if err != nil {
		p.t.Fatalf("fake peer: decoding header: %v", err)
	}
	var body []byte
	if h.BodyLength > 0 {
		var err error
		body, err = dec.Read(int(h.BodyLength))
		if err != nil {
			p.t.Fatalf("fake peer: reading body: %v", err)
		}
	}
	return h, body
}

func (p *fakePeer) reply(req *header, sig string, body []byte) {
	resp := &header{
		Type:        msgTypeReturn,
		Serial:      1,
		ReplySerial: req.Serial,
		Destination: req.Sender,
		Signature:   sig,
		BodyLength:  uint32(len(body)),
	}
	enc := &wire.Encoder{Order: wire.NativeEndian}
	if err := encodeHeader(enc, resp); err != nil {
		p.t.Fatalf("fake peer: encoding reply: %v", err)
	}
	enc.Write(body)
	if _, err := p.conn.Write(enc.Out); err != nil {
		p.t.Fatalf("fake peer: writing reply: %v", err)
	}
}

func (p *fakePeer) replyError(req *header, name, detail string) {
	enc := &wire.Encoder{Order: wire.NativeEndian}
	enc.String(detail)
	resp := &header{
		Type:        msgTypeError,
		Serial:      1,
		ReplySerial: req.Serial,
		Destination: req.Sender,
		ErrName:     name,
		Signature:   "s",
		BodyLength:  uint32(len(enc.Out)),
	}
	hdrEnc := &wire.Encoder{Order: wire.NativeEndian}
	if err := encodeHeader(hdrEnc, resp); err != nil {
		p.t.Fatalf("fake peer: encoding error reply: %v", err)
	}
	hdrEnc.Write(enc.Out)
	if _, err := p.conn.Write(hdrEnc.Out); err != nil {
		p.t.Fatalf("fake peer: writing error reply: %v", err)
	}
}

func dialFake(t *testing.T) (*Conn, *fakePeer) {
	client, server := net.Pipe()
	peer := &fakePeer{t: t, conn: server}

	go func() {
		req, _ := peer.readMsg()
		if req.Member != "Hello" {
			t.Errorf("first message = %q, want Hello", req.Member)
		}
		enc := &wire.Encoder{Order: wire.NativeEndian}
		enc.String(":1.1")
		peer.reply(req, "s", enc.Out)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := newConn(ctx, client, slog.Default())
	if err != nil {
		t.Fatalf("newConn: %v", err)
	}
	return c, peer
}

func TestHelloHandshake(t *testing.T) {
	c, _ := dialFake(t)
	defer c.Close()

	if c.LocalName() != ":1.1" {
		t.Errorf("LocalName() = %q, want \":1.1\"", c.LocalName())
	}
}

func TestCallReturn(t *testing.T) {
	c, peer := dialFake(t)
	defer c.Close()

	go func() {
		req, _ := peer.readMsg()
		if req.Member != "GetTemp" {
			t.Errorf("member = %q, want GetTemp", req.Member)
		}
		enc := &wire.Encoder{Order: wire.NativeEndian}
		enc.Uint32(42)
		peer.reply(req, "u", enc.Out)
	}()

	iface := c.Peer("xyz.openbmc_project.HwmonTemp").Object("/xyz/openbmc_project/sensors/cpu").Interface("xyz.openbmc_project.Sensor.Value")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sig, body, err := iface.Call(ctx, "GetTemp", "", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if sig != "u" {
		t.Fatalf("reply sig = %q, want \"u\"", sig)
	}
	dec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(body)}
	got, err := dec.Uint32()
	if err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if got != 42 {
		t.Errorf("reply = %d, want 42", got)
	}
}

func TestCallErrorReply(t *testing.T) {
	c, peer := dialFake(t)
	defer c.Close()

	go func() {
		req, _ := peer.readMsg()
		peer.replyError(req, "org.freedesktop.DBus.Error.UnknownMethod", "no such method Frobnicate")
	}()

	iface := c.Peer("xyz.openbmc_project.Foo").Object("/xyz/openbmc_project/foo").Interface("xyz.openbmc_project.Foo")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := iface.Call(ctx, "Frobnicate", "", nil)
	if err == nil {
		t.Fatal("Call: want error, got nil")
	}
	ce, ok := err.(CallError)
	if !ok {
		t.Fatalf("err = %v (%T), want CallError", err, err)
	}
	if ce.Name != "org.freedesktop.DBus.Error.UnknownMethod" {
		t.Errorf("CallError.Name = %q", ce.Name)
	}
	if ce.Detail != "no such method Frobnicate" {
		t.Errorf("CallError.Detail = %q", ce.Detail)
	}
}

func TestCallAsyncDeliversFromReadLoop(t *testing.T) {
	c, peer := dialFake(t)
	defer c.Close()

	go func() {
		req, _ := peer.readMsg()
		enc := &wire.Encoder{Order: wire.NativeEndian}
		enc.String("fan-out-ok")
		peer.reply(req, "s", enc.Out)
	}()

	iface := c.Peer("xyz.openbmc_project.Foo").Object("/xyz/openbmc_project/foo").Interface("xyz.openbmc_project.Foo")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	var gotSig string
	var gotBody []byte
	var gotErr error
	iface.CallAsync(ctx, "Frobnicate", "", nil, func(sig string, body []byte, err error) {
		gotSig, gotBody, gotErr = sig, body, err
		close(done)
	})

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("CallAsync: reply never delivered")
	}
	if gotErr != nil {
		t.Fatalf("CallAsync reply err = %v", gotErr)
	}
	if gotSig != "s" {
		t.Fatalf("reply sig = %q, want \"s\"", gotSig)
	}
	dec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(gotBody)}
	s, err := dec.String()
	if err != nil || s != "fan-out-ok" {
		t.Errorf("reply body = %q, %v, want \"fan-out-ok\"", s, err)
	}
}

func TestCallContextCanceled(t *testing.T) {
	c, peer := dialFake(t)
	defer c.Close()

	// The fake peer reads the call off the wire (so the client's write
	// doesn't block forever on the unbuffered pipe) but never replies.
	go peer.readMsg()

	iface := c.Peer("xyz.openbmc_project.Foo").Object("/xyz/openbmc_project/foo").Interface("xyz.openbmc_project.Foo")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := iface.Call(ctx, "Slow", "", nil)
	if err == nil {
		t.Fatal("Call: want error, got nil")
	}
}

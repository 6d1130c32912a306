package busclient

import (
	"context"
	"fmt"
)

// Interface is a named DBus interface offered by an [Object].
type Interface struct {
	o    Object
	name string
}

// Conn returns the connection backing this interface.
func (f Interface) Conn() *Conn { return f.o.Peer().c }

// Object returns the object that offers this interface.
func (f Interface) Object() Object { return f.o }

// Name returns the interface's name.
func (f Interface) Name() string { return f.name }

func (f Interface) String() string {
	return fmt.Sprintf("%s:%s", f.o, f.name)
}

// CallAsync invokes method on this interface, sending argBody (of
// wire signature argSig) as the call body. reply is invoked once,
// later, from the connection's read loop.
//
// This is a raw, byte-oriented call: the caller is responsible for
// having already encoded argBody according to argSig, and for
// decoding the bytes reply receives according to the signature it
// receives alongside them.
func (f Interface) CallAsync(ctx context.Context, method, argSig string, argBody []byte, reply ReplyFunc) {
	f.Conn().CallAsync(ctx, f.o.Peer().Name(), f.o.Path(), f.name, method, argSig, argBody, reply)
}

// Call is a blocking convenience wrapper around CallAsync, for call
// sites that have no fan-out of their own and just want the reply in
// hand before continuing (the object resolver, for instance).
func (f Interface) Call(ctx context.Context, method, argSig string, argBody []byte) (replySig string, replyBody []byte, err error) {
	type result struct {
		sig  string
		body []byte
		err  error
	}
	done := make(chan result, 1)
	f.CallAsync(ctx, method, argSig, argBody, func(sig string, body []byte, err error) {
		done <- result{sig, body, err}
	})
	r := <-done
	return r.sig, r.body, r.err
}

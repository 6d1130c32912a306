package action

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/hexbus/dbusrest/busclient"
	"github.com/hexbus/dbusrest/codec"
	"github.com/hexbus/dbusrest/introspect"
	"github.com/hexbus/dbusrest/resolver"
	"github.com/hexbus/dbusrest/txn"
	"github.com/hexbus/dbusrest/wire"
)

// Action implements handle_action(path, method_name, args): invokes
// method_name on the first interface of every owning connection that
// declares it.
func (h *Handlers) Action(ctx context.Context, resp txn.Response, path, methodName string, body []byte) {
	var args []any
	adec := json.NewDecoder(bytes.NewReader(body))
	adec.UseNumber()
	if err := adec.Decode(&args); err != nil {
		resp.Status(400)
		finish(resp)
		return
	}

	owners, err := resolver.GetObject(ctx, h.Conn, busclient.ObjectPath(path), nil)
	if err != nil {
		h.resolverErr(resp, err)
		return
	}
	if len(owners) == 0 {
		// Method dispatch failure: no connection owns the object at all.
		resp.Status(500)
		finish(resp)
		return
	}

	tx := txn.Begin(resp)
	tx.SetData(nil)
	for _, o := range owners {
		o := o
		tx.Ref()
		h.Conn.Peer(o.Connection).Object(busclient.ObjectPath(path)).Interface(introspectableInterface).
			CallAsync(ctx, "Introspect", "", nil, func(sig string, xmlBody []byte, callErr error) {
				defer tx.Drop()
				if callErr != nil {
					h.Logger.Warn("introspect failed", "connection", o.Connection, "error", callErr)
					tx.SetError()
					return
				}
				node, perr := parseIntrospectReply(path, xmlBody)
				if perr != nil {
					h.Logger.Warn("introspect parse failed", "connection", o.Connection, "error", perr)
					tx.SetError()
					return
				}
				for _, iface := range node.Interfaces {
					m, ok := iface.Method(methodName)
					if !ok {
						continue
					}
					h.dispatchMethod(ctx, tx, o.Connection, path, iface.Name, m, args)
					return
				}
			})
	}
	tx.Drop()
}

func (h *Handlers) dispatchMethod(ctx context.Context, tx *txn.Transaction, conn, path, ifaceName string, m introspect.Method, args []any) {
	inArgs := m.InArgs()
	if len(inArgs) != len(args) {
		h.Logger.Warn("argument count mismatch", "connection", conn, "method", m.Name, "want", len(inArgs), "got", len(args))
		tx.SetError()
		return
	}

	var argSig string
	for _, a := range inArgs {
		argSig += a.Type
	}
	enc := &wire.Encoder{Order: wire.NativeEndian}
	if argSig != "" {
		if err := codec.Encode(enc, argSig, argsToJSON(inArgs, args)); err != nil {
			h.Logger.Warn("encoding method arguments", "connection", conn, "method", m.Name, "error", err)
			tx.SetError()
			return
		}
	}

	tx.Ref()
	h.Conn.Peer(conn).Object(busclient.ObjectPath(path)).Interface(ifaceName).
		CallAsync(ctx, m.Name, argSig, enc.Out, func(sig string, body []byte, callErr error) {
			defer tx.Drop()
			if callErr != nil {
				h.Logger.Warn("method call failed", "connection", conn, "method", m.Name, "error", callErr)
				tx.SetError()
			}
		})
}

// argsToJSON packages inArgs/args back into the shape codec.Encode
// expects: a bare value when there is exactly one argument, a JSON
// array otherwise (mirroring signature.Split's single-vs-multi-type
// convention).
func argsToJSON(inArgs []introspect.Arg, args []any) any {
	if len(inArgs) == 1 {
		return args[0]
	}
	return args
}

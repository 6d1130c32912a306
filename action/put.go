package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/hexbus/dbusrest/busclient"
	"github.com/hexbus/dbusrest/codec"
	"github.com/hexbus/dbusrest/resolver"
	"github.com/hexbus/dbusrest/txn"
	"github.com/hexbus/dbusrest/wire"
)

// Put implements handle_put(path, property_name, value). body is the
// raw request body; it must decode to a JSON object with a "data"
// key.
func (h *Handlers) Put(ctx context.Context, resp txn.Response, path, propertyName string, body []byte) {
	var raw map[string]json.RawMessage
	rdec := json.NewDecoder(bytes.NewReader(body))
	rdec.UseNumber()
	if err := rdec.Decode(&raw); err != nil {
		resp.Status(400)
		finish(resp)
		return
	}
	dataRaw, ok := raw["data"]
	if !ok {
		resp.Status(400)
		finish(resp)
		return
	}
	var value any
	vdec := json.NewDecoder(bytes.NewReader(dataRaw))
	vdec.UseNumber()
	if err := vdec.Decode(&value); err != nil {
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
		resp.Status(404)
		finish(resp)
		return
	}

	tx := txn.Begin(resp)
	tx.SetData(nil)
	matched := false
	tx.OnFinalize(func(tx *txn.Transaction) {
		if !matched {
			tx.Fail(403, map[string]any{"data": map[string]any{
				"message": fmt.Sprintf("The specified property cannot be created: %s", propertyName),
			}})
		}
	})

	for _, o := range owners {
		o := o
		tx.Ref()
		h.Conn.Peer(o.Connection).Object(busclient.ObjectPath(path)).Interface(introspectableInterface).
			CallAsync(ctx, "Introspect", "", nil, func(sig string, xmlBody []byte, callErr error) {
				defer tx.Drop()
				if callErr != nil {
					h.Logger.Warn("introspect failed", "connection", o.Connection, "error", callErr)
					return
				}
				node, perr := parseIntrospectReply(path, xmlBody)
				if perr != nil {
					h.Logger.Warn("introspect parse failed", "connection", o.Connection, "error", perr)
					return
				}
				for _, iface := range node.Interfaces {
					prop, ok := iface.Property(propertyName)
					if !ok {
						continue
					}
					matched = true
					h.dispatchSet(ctx, tx, o.Connection, path, iface.Name, propertyName, prop.Type, value)
					break
				}
			})
	}
	tx.Drop()
}

func (h *Handlers) dispatchSet(ctx context.Context, tx *txn.Transaction, conn, path, ifaceName, propertyName, propType string, value any) {
	argEnc := &wire.Encoder{Order: wire.NativeEndian}
	argEnc.String(ifaceName)
	argEnc.String(propertyName)
	if err := codec.EncodeVariant(argEnc, propType, value); err != nil {
		h.Logger.Warn("encoding property value", "connection", conn, "interface", ifaceName, "property", propertyName, "error", err)
		return
	}

	tx.Ref()
	h.Conn.Peer(conn).Object(busclient.ObjectPath(path)).Interface(propertiesInterface).
		CallAsync(ctx, "Set", "ssv", argEnc.Out, func(sig string, body []byte, setErr error) {
			defer tx.Drop()
			if setErr != nil {
				tx.ReplaceEnvelope(map[string]any{"status": "error", "message": setErr.Error()})
			}
		})
}

package action

import (
	"bytes"
	"context"

	"github.com/hexbus/dbusrest/busclient"
	"github.com/hexbus/dbusrest/codec"
	"github.com/hexbus/dbusrest/resolver"
	"github.com/hexbus/dbusrest/txn"
	"github.com/hexbus/dbusrest/wire"
)

// Get implements handle_get(path, property_name). With an empty
// property name, every readable property across every interface the
// object offers is returned, keyed by name; with a property name, the
// matching value alone is returned as a bare scalar.
func (h *Handlers) Get(ctx context.Context, resp txn.Response, path, propertyName string) {
	owners, err := resolver.GetObject(ctx, h.Conn, busclient.ObjectPath(path), nil)
	if err != nil {
		// A mapper error and an empty owner set are the same outcome
		// from the caller's perspective: nothing answers for path.
		h.Logger.Warn("GetObject failed", "error", err)
		resp.Status(404)
		finish(resp)
		return
	}
	if len(owners) == 0 {
		resp.Status(404)
		finish(resp)
		return
	}
	for _, o := range owners {
		if len(o.Interfaces) == 0 {
			resp.Status(404)
			finish(resp)
			return
		}
	}

	tx := txn.Begin(resp)
	for _, o := range owners {
		for _, ifaceName := range o.Interfaces {
			tx.Ref()
			argEnc := &wire.Encoder{Order: wire.NativeEndian}
			argEnc.String(ifaceName)
			h.Conn.Peer(o.Connection).Object(busclient.ObjectPath(path)).Interface(propertiesInterface).
				CallAsync(ctx, "GetAll", "s", argEnc.Out, func(sig string, body []byte, callErr error) {
					defer tx.Drop()
					if callErr != nil {
						h.Logger.Warn("GetAll failed", "connection", o.Connection, "interface", ifaceName, "error", callErr)
						return
					}
					dec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(body)}
					v, err := codec.Decode(dec, "a{sv}")
					if err != nil {
						h.Logger.Warn("decoding GetAll reply", "connection", o.Connection, "interface", ifaceName, "error", err)
						return
					}
					props, _ := v.(map[string]any)
					for name, val := range props {
						if propertyName == "" {
							tx.Data()[name] = val
						} else if name == propertyName {
							tx.SetData(val)
						}
					}
				})
		}
	}
	tx.Drop()
}

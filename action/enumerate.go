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

// Enumerate implements handle_enumerate(path): every object managed
// by any connection that owns something under path, keyed by object
// path, with each object's properties flattened across interfaces.
func (h *Handlers) Enumerate(ctx context.Context, resp txn.Response, path string) {
	entries, err := resolver.GetSubTree(ctx, h.Conn, busclient.ObjectPath(path), 0, nil)
	if err != nil {
		// A mapper error here means no object exists under path at all:
		// the original implementation reports that as a successful,
		// empty enumeration rather than a failure.
		h.Logger.Warn("GetSubTree failed", "error", err)
		tx := txn.Begin(resp)
		tx.SetData(map[string]any{})
		tx.Drop()
		return
	}

	conns := connectionSet(entries)
	if len(conns) == 0 {
		resp.Status(404)
		finish(resp)
		return
	}

	tx := txn.Begin(resp)
	for conn := range conns {
		tx.Ref()
		h.Conn.Peer(conn).Object(busclient.ObjectPath(path)).Interface(objectManagerInterface).
			CallAsync(ctx, "GetManagedObjects", "", nil, func(sig string, body []byte, callErr error) {
				defer tx.Drop()
				if callErr != nil {
					h.Logger.Warn("GetManagedObjects failed", "connection", conn, "error", callErr)
					return
				}
				dec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(body)}
				v, err := codec.Decode(dec, "a{oa{sa{sv}}}")
				if err != nil {
					h.Logger.Warn("decoding GetManagedObjects reply", "connection", conn, "error", err)
					return
				}
				objects, _ := v.(map[string]any)
				for objPath, ifacesAny := range objects {
					ifaces, _ := ifacesAny.(map[string]any)
					dst, ok := tx.Data()[objPath].(map[string]any)
					if !ok {
						dst = map[string]any{}
						tx.Data()[objPath] = dst
					}
					for _, propsAny := range ifaces {
						props, _ := propsAny.(map[string]any)
						for name, val := range props {
							dst[name] = val
						}
					}
				}
			})
	}
	tx.Drop()
}

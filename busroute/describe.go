package busroute

import (
	"bytes"
	"context"
	"strings"

	"github.com/hexbus/dbusrest/busclient"
	"github.com/hexbus/dbusrest/introspect"
	"github.com/hexbus/dbusrest/txn"
	"github.com/hexbus/dbusrest/wire"
)

// DescribePath implements `GET /bus/system/<conn>/<path...>`.
//
// rawPath is everything after the connection name, still slash-joined
// and not yet split into segments. Leading and trailing slashes are
// stripped before splitting: if no segment contains a ".", the whole
// thing is an object path and the response lists its interfaces. The
// first segment containing a "." is taken as an interface name, with
// everything before it the object path; at most one further segment
// (a method or signal name, accepted but otherwise unused by this
// read-only route) may follow it.
func (h *Handlers) DescribePath(ctx context.Context, resp txn.Response, connection, rawPath string) {
	segments := strings.Split(strings.Trim(rawPath, "/"), "/")
	ifaceIdx := -1
	for i, s := range segments {
		if strings.Contains(s, ".") {
			ifaceIdx = i
			break
		}
	}

	if ifaceIdx < 0 {
		objectPath := "/" + strings.Join(segments, "/")
		h.describeObject(ctx, resp, connection, objectPath)
		return
	}

	if len(segments)-ifaceIdx > 2 {
		resp.Status(404)
		finish(resp)
		return
	}
	objectPath := "/"
	if ifaceIdx > 0 {
		objectPath += strings.Join(segments[:ifaceIdx], "/")
	}
	h.describeInterface(ctx, resp, connection, objectPath, segments[ifaceIdx])
}

func (h *Handlers) describeObject(ctx context.Context, resp txn.Response, connection, path string) {
	h.Conn.Peer(connection).Object(busclient.ObjectPath(path)).Interface(introspectableInterface).
		CallAsync(ctx, "Introspect", "", nil, func(sig string, xmlBody []byte, callErr error) {
			defer finish(resp)
			if callErr != nil {
				h.Logger.Warn("introspect failed", "connection", connection, "path", path, "error", callErr)
				resp.Status(500)
				return
			}
			dec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(xmlBody)}
			xmlDoc, perr := dec.String()
			var node introspect.Node
			if perr == nil {
				node, perr = introspect.Parse(path, []byte(xmlDoc))
			}
			if perr != nil {
				h.Logger.Warn("introspect parse failed", "connection", connection, "path", path, "error", perr)
				resp.Status(500)
				return
			}
			ifaces := make([]map[string]string, len(node.Interfaces))
			for i, iface := range node.Interfaces {
				ifaces[i] = map[string]string{"name": iface.Name}
			}
			resp.Status(200)
			resp.JSON(map[string]any{
				"status":      "ok",
				"bus_name":    connection,
				"object_path": path,
				"interfaces":  ifaces,
			})
		})
}

// describeInterface delegates to handle_interface_describe
// (action.Handlers.InterfaceDescribe) and reshapes its standard
// envelope into this route's bus_name/object_path/interface shape.
func (h *Handlers) describeInterface(ctx context.Context, resp txn.Response, connection, path, interfaceName string) {
	defer finish(resp)
	cap := newCapture()
	h.actions.InterfaceDescribe(ctx, cap, connection, path, interfaceName)
	<-cap.done

	if cap.code != 200 {
		resp.Status(cap.code)
		return
	}
	data, ok := cap.envelopeData()
	if !ok {
		resp.Status(500)
		return
	}
	resp.Status(200)
	resp.JSON(map[string]any{
		"status":      "ok",
		"bus_name":    connection,
		"object_path": path,
		"interface":   interfaceName,
		"methods":     data["methods"],
		"signals":     data["signals"],
	})
}

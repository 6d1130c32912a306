package action

import (
	"context"
	"fmt"

	"github.com/hexbus/dbusrest/busclient"
	"github.com/hexbus/dbusrest/introspect"
	"github.com/hexbus/dbusrest/txn"
)

// InterfaceDescribe implements handle_interface_describe(connection,
// path, interface_name): the methods and signals interface_name
// declares, each method annotated with the URI that would invoke it.
func (h *Handlers) InterfaceDescribe(ctx context.Context, resp txn.Response, connection, path, interfaceName string) {
	tx := txn.Begin(resp)
	h.Conn.Peer(connection).Object(busclient.ObjectPath(path)).Interface(introspectableInterface).
		CallAsync(ctx, "Introspect", "", nil, func(sig string, xmlBody []byte, callErr error) {
			defer tx.Drop()
			if callErr != nil {
				h.Logger.Warn("introspect failed", "connection", connection, "path", path, "error", callErr)
				tx.SetError()
				return
			}
			node, perr := parseIntrospectReply(path, xmlBody)
			if perr != nil {
				h.Logger.Warn("introspect parse failed", "connection", connection, "path", path, "error", perr)
				tx.SetError()
				return
			}
			iface, ok := node.Interface(interfaceName)
			if !ok {
				tx.FailStatus(404)
				return
			}
			tx.Data()["interface"] = interfaceName
			tx.Data()["methods"] = DescribeMethods(connection, path, iface)
			tx.Data()["signals"] = DescribeSignals(iface)
		})
}

// DescribeMethods renders iface's methods, each annotated with the URI
// that would invoke it. Exported so the `/bus/system/<conn>/<path>`
// supplemental route (package busroute) can share this rendering
// rather than duplicate it.
func DescribeMethods(connection, path string, iface introspect.Interface) []map[string]any {
	methods := make([]map[string]any, 0, len(iface.Methods))
	for _, m := range iface.Methods {
		methods = append(methods, map[string]any{
			"name": m.Name,
			"uri":  fmt.Sprintf("/bus/system/%s%s/%s/%s", connection, path, iface.Name, m.Name),
			"args": DescribeArgs(m.Args),
		})
	}
	return methods
}

// DescribeSignals renders iface's signals.
func DescribeSignals(iface introspect.Interface) []map[string]any {
	signals := make([]map[string]any, 0, len(iface.Signals))
	for _, s := range iface.Signals {
		signals = append(signals, map[string]any{
			"name": s.Name,
			"args": DescribeArgs(s.Args),
		})
	}
	return signals
}

// DescribeArgs renders a method or signal's arguments.
func DescribeArgs(args []introspect.Arg) []map[string]any {
	ret := make([]map[string]any, 0, len(args))
	for _, a := range args {
		ret = append(ret, map[string]any{
			"name":      a.Name,
			"type":      a.Type,
			"direction": string(a.Direction),
		})
	}
	return ret
}

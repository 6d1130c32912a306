package action

import (
	"context"

	"github.com/creachadair/mds/queue"
	"github.com/hexbus/dbusrest/busclient"
	"github.com/hexbus/dbusrest/txn"
)

// IntrospectWalk implements handle_introspect_walk(connection, root):
// a breadth-first traversal of every object reachable under root on
// connection, via child <node> elements in each introspection
// document.
//
// Each node's introspect reply drains a shared work queue of
// newly-discovered children rather than recursing into them directly,
// so a wide or deep tree dispatches iteratively instead of building a
// deep call chain.
func (h *Handlers) IntrospectWalk(ctx context.Context, resp txn.Response, connection, root string) {
	tx := txn.Begin(resp)

	var pending queue.Queue[string]
	objects := []map[string]string{}

	var visit func(path string)
	visit = func(path string) {
		h.Conn.Peer(connection).Object(busclient.ObjectPath(path)).Interface(introspectableInterface).
			CallAsync(ctx, "Introspect", "", nil, func(sig string, xmlBody []byte, callErr error) {
				defer tx.Drop()
				if callErr != nil {
					h.Logger.Warn("introspect failed", "connection", connection, "path", path, "error", callErr)
					return
				}
				node, perr := parseIntrospectReply(path, xmlBody)
				if perr != nil {
					h.Logger.Warn("introspect parse failed", "connection", connection, "path", path, "error", perr)
					return
				}
				objects = append(objects, map[string]string{"path": path})
				for _, child := range node.Children {
					pending.Add(joinChildPath(path, child))
				}
				for {
					next, ok := pending.Pop()
					if !ok {
						break
					}
					tx.Ref()
					visit(next)
				}
			})
	}

	tx.OnFinalize(func(tx *txn.Transaction) {
		tx.Data()["objects"] = objects
	})

	tx.Ref()
	visit(root)
	tx.Drop()
}

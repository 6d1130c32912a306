package action

import (
	"context"

	"github.com/hexbus/dbusrest/busclient"
	"github.com/hexbus/dbusrest/resolver"
	"github.com/hexbus/dbusrest/txn"
)

// List implements handle_list(path): every object path reachable
// under path, per the object mapper's subtree index, in the order the
// mapper returned them.
func (h *Handlers) List(ctx context.Context, resp txn.Response, path string) {
	paths, err := resolver.GetSubTreePaths(ctx, h.Conn, busclient.ObjectPath(path), 99, nil)
	if err != nil {
		h.resolverErr(resp, err)
		return
	}

	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = string(p)
	}

	tx := txn.Begin(resp)
	tx.SetData(out)
	tx.Drop()
}

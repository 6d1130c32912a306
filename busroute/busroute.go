// Package busroute implements the `/bus/...` HTTP routes: a thin,
// read-only window onto the bus itself, supplementing the `/xyz/...`
// object-path surface that action/dispatch cover. These routes were
// present in the system this bridge replaces but are not part of its
// core REST contract, so they are kept separate from package action.
package busroute

import (
	"context"
	"log/slog"
	"sort"

	"github.com/hexbus/dbusrest/action"
	"github.com/hexbus/dbusrest/busclient"
	"github.com/hexbus/dbusrest/txn"
)

const introspectableInterface = "org.freedesktop.DBus.Introspectable"

// finish signals resp's Finisher, if it has one, once a route that
// writes resp directly (rather than through a txn.Transaction) is
// done with it. httpio.Adapt blocks on exactly this signal.
func finish(resp txn.Response) {
	if f, ok := resp.(txn.Finisher); ok {
		f.Finish()
	}
}

// Handlers binds the bus-inspection routes to a live bus connection.
// WalkConnection and DescribePath delegate their traversal and
// describe logic to the C6 action handlers (handle_introspect_walk
// and handle_interface_describe), reshaping the result into this
// route family's distinct envelope rather than reimplementing the
// traversal.
type Handlers struct {
	Conn    *busclient.Conn
	Logger  *slog.Logger
	actions *action.Handlers
}

func New(conn *busclient.Conn, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{Conn: conn, Logger: logger, actions: action.New(conn, logger)}
}

// ListBusses implements `GET /bus/`. This bridge only ever speaks to
// the system bus, so the list is a constant.
func (h *Handlers) ListBusses(resp txn.Response) {
	defer finish(resp)
	resp.Status(200)
	resp.JSON(map[string]any{
		"status": "ok",
		"busses": []map[string]string{{"name": "system"}},
	})
}

// ListConnections implements `GET /bus/system/`: every bus name
// currently claimed, sorted.
func (h *Handlers) ListConnections(ctx context.Context, resp txn.Response) {
	defer finish(resp)
	names, err := h.Conn.ListNames(ctx)
	if err != nil {
		h.Logger.Warn("ListNames failed", "error", err)
		resp.Status(500)
		return
	}
	sort.Strings(names)
	objects := make([]map[string]string, len(names))
	for i, n := range names {
		objects[i] = map[string]string{"name": n}
	}
	resp.Status(200)
	resp.JSON(map[string]any{"status": "ok", "objects": objects})
}

// WalkConnection implements `GET /bus/system/<conn>/`: every object
// path reachable under "/" on connection. The traversal itself is
// handle_introspect_walk (action.Handlers.IntrospectWalk); this
// handler only reshapes that operation's standard envelope into the
// bus_name/objects shape this route family uses.
func (h *Handlers) WalkConnection(ctx context.Context, resp txn.Response, connection string) {
	defer finish(resp)
	cap := newCapture()
	h.actions.IntrospectWalk(ctx, cap, connection, "/")
	<-cap.done

	if cap.code != 200 {
		resp.Status(cap.code)
		return
	}
	data, _ := cap.envelopeData()
	objects, _ := data["objects"]
	resp.Status(200)
	resp.JSON(map[string]any{"status": "ok", "bus_name": connection, "objects": objects})
}

// Package action implements the REST surface's seven operations:
// list, enumerate, get, put, invoke-method, recursive introspection
// walk, and single-interface description. Each handler fans bus calls
// out through a [txn.Transaction] and writes its HTTP response exactly
// once, when every fanned-out call has completed.
package action

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/creachadair/mds/mapset"
	"github.com/hexbus/dbusrest/busclient"
	"github.com/hexbus/dbusrest/introspect"
	"github.com/hexbus/dbusrest/resolver"
	"github.com/hexbus/dbusrest/txn"
	"github.com/hexbus/dbusrest/wire"
)

const (
	propertiesInterface    = "org.freedesktop.DBus.Properties"
	introspectableInterface = "org.freedesktop.DBus.Introspectable"
	objectManagerInterface = "org.freedesktop.DBus.ObjectManager"
)

// Handlers binds the seven action handlers to a live bus connection.
type Handlers struct {
	Conn   *busclient.Conn
	Logger *slog.Logger
}

func New(conn *busclient.Conn, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{Conn: conn, Logger: logger}
}

func (h *Handlers) resolverErr(resp txn.Response, err error) bool {
	if err == nil {
		return false
	}
	h.Logger.Error("object resolver call failed", "error", err)
	resp.Status(500)
	finish(resp)
	return true
}

// finish signals resp's Finisher, if it has one. Every handler that
// writes resp directly on an early-return path, before ever reaching
// txn.Begin, must call this: txn.Transaction.finalize does the
// equivalent for the handlers that fan out bus calls, but a path that
// never builds a Transaction has no other way to signal the HTTP
// adapter that the response is ready to stream back.
func finish(resp txn.Response) {
	if f, ok := resp.(txn.Finisher); ok {
		f.Finish()
	}
}

// parseIntrospectReply decodes the body of an Introspect reply, a
// single wire string holding the XML document, and parses that
// document.
func parseIntrospectReply(path string, body []byte) (introspect.Node, error) {
	dec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(body)}
	xmlDoc, err := dec.String()
	if err != nil {
		return introspect.Node{}, fmt.Errorf("decoding introspection reply: %w", err)
	}
	return introspect.Parse(path, []byte(xmlDoc))
}

// joinChildPath appends a single relative path component, as found in
// an introspection document's child <node> element, to a parent
// object path.
func joinChildPath(parent, child string) string {
	if parent == "/" {
		return "/" + child
	}
	return parent + "/" + child
}

// connectionSet returns the distinct connection names referenced by
// entries. Per §5's ordering guarantees, enumerate's aggregation
// across connections is allowed to be non-deterministic, so a plain
// set (rather than a stable-order list) is the right shape.
func connectionSet(entries []resolver.SubTreeEntry) mapset.Set[string] {
	conns := mapset.New[string]()
	for _, e := range entries {
		for _, o := range e.Owners {
			conns.Add(o.Connection)
		}
	}
	return conns
}

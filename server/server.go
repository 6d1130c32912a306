// Package server wires the bridging engine's components together
// behind a single net/http.Handler: the seven action handlers (C6),
// the URL dispatcher (C7), the supplemental `/bus/...` routes, and the
// httpio adapter (A4) that drives them all from net/http.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hexbus/dbusrest/action"
	"github.com/hexbus/dbusrest/busclient"
	"github.com/hexbus/dbusrest/busroute"
	"github.com/hexbus/dbusrest/dispatch"
	"github.com/hexbus/dbusrest/httpio"
)

// New builds the complete HTTP surface over conn.
func New(conn *busclient.Conn, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	actions := action.New(conn, logger)
	routes := busroute.New(conn, logger)
	disp := dispatch.New(actions)

	mux := http.NewServeMux()

	mux.Handle("GET /bus/", httpio.Adapt(func(req httpio.Request, resp *httpio.Response) {
		routes.ListBusses(resp)
	}, logger))

	mux.Handle("GET /bus/system/", httpio.Adapt(func(req httpio.Request, resp *httpio.Response) {
		routes.ListConnections(context.Background(), resp)
	}, logger))

	mux.Handle("GET /bus/system/{conn}/{$}", httpio.Adapt(func(req httpio.Request, resp *httpio.Response) {
		conn := connFromPath(req.Path, "/bus/system/")
		routes.WalkConnection(context.Background(), resp, conn)
	}, logger))

	mux.Handle("GET /bus/system/{conn}/{path...}", httpio.Adapt(func(req httpio.Request, resp *httpio.Response) {
		conn, rest := splitConnPath(req.Path, "/bus/system/")
		routes.DescribePath(context.Background(), resp, conn, rest)
	}, logger))

	mux.Handle("GET /list/", httpio.Adapt(func(req httpio.Request, resp *httpio.Response) {
		actions.List(context.Background(), resp, "/")
	}, logger))

	mux.Handle("/xyz/", httpio.Adapt(func(req httpio.Request, resp *httpio.Response) {
		disp.Dispatch(context.Background(), resp, req.Method, req.Path, req.Body)
	}, logger))

	return mux
}

// connFromPath extracts the connection name segment immediately
// following prefix, with no further path remaining (the
// "/bus/system/<conn>/" route).
func connFromPath(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	return strings.TrimSuffix(rest, "/")
}

// splitConnPath strips prefix from path and splits what remains,
// "<conn>/<rest...>", into the connection name and the remaining path.
func splitConnPath(path, prefix string) (conn, rest string) {
	trimmed := strings.TrimPrefix(path, prefix)
	i := strings.Index(trimmed, "/")
	if i < 0 {
		return trimmed, ""
	}
	return trimmed[:i], trimmed[i+1:]
}

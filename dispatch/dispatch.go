// Package dispatch implements the URL dispatcher (C7): it decides,
// from an HTTP method and an object-path-shaped URL suffix, which
// action handler a request maps to, and invokes it.
package dispatch

import (
	"context"
	"strings"

	"github.com/hexbus/dbusrest/txn"
)

// Handlers is the subset of action.Handlers the dispatcher drives.
// Defined here, rather than depending on the concrete type directly,
// so tests can exercise the routing logic against a fake.
type Handlers interface {
	List(ctx context.Context, resp txn.Response, path string)
	Enumerate(ctx context.Context, resp txn.Response, path string)
	Get(ctx context.Context, resp txn.Response, path, propertyName string)
	Put(ctx context.Context, resp txn.Response, path, propertyName string, body []byte)
	Action(ctx context.Context, resp txn.Response, path, methodName string, body []byte)
}

// Dispatcher routes requests under the "/xyz/..." object-path prefix
// to the appropriate action handler.
type Dispatcher struct {
	Handlers Handlers
}

func New(h Handlers) *Dispatcher {
	return &Dispatcher{Handlers: h}
}

const (
	attrSeparator   = "/attr/"
	actionSeparator = "/action/"
)

// Dispatch handles one request. rawPath is the object path portion of
// the URL, including its leading "/xyz" prefix, not yet trimmed of a
// trailing slash. body is the raw request body, if any.
func (d *Dispatcher) Dispatch(ctx context.Context, resp txn.Response, method, rawPath string, body []byte) {
	path := rawPath
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	switch method {
	case "GET":
		d.dispatchGet(ctx, resp, path)
	case "POST":
		d.dispatchPost(ctx, resp, path, body)
	case "PUT":
		d.dispatchPut(ctx, resp, path, body)
	default:
		resp.Status(405)
		finish(resp)
	}
}

// finish signals resp's Finisher, if it has one, for a path that
// writes resp directly instead of through a txn.Transaction.
func finish(resp txn.Response) {
	if f, ok := resp.(txn.Finisher); ok {
		f.Finish()
	}
}

func (d *Dispatcher) dispatchGet(ctx context.Context, resp txn.Response, path string) {
	if rest, ok := cutSuffix(path, "/enumerate"); ok {
		d.Handlers.Enumerate(ctx, resp, rest)
		return
	}
	if rest, ok := cutSuffix(path, "/list"); ok {
		d.Handlers.List(ctx, resp, rest)
		return
	}
	if objPath, prop, ok := lastSplit(path, attrSeparator); ok {
		d.Handlers.Get(ctx, resp, objPath, prop)
		return
	}
	d.Handlers.Get(ctx, resp, path, "")
}

func (d *Dispatcher) dispatchPost(ctx context.Context, resp txn.Response, path string, body []byte) {
	objPath, method, ok := lastSplit(path, actionSeparator)
	if !ok {
		resp.Status(405)
		finish(resp)
		return
	}
	d.Handlers.Action(ctx, resp, objPath, method, body)
}

func (d *Dispatcher) dispatchPut(ctx context.Context, resp txn.Response, path string, body []byte) {
	objPath, prop := path, ""
	if p, a, ok := lastSplit(path, attrSeparator); ok {
		objPath, prop = p, a
	}
	d.Handlers.Put(ctx, resp, objPath, prop, body)
}

// cutSuffix strips suffix from s, reporting whether it was present.
func cutSuffix(s, suffix string) (string, bool) {
	if !strings.HasSuffix(s, suffix) {
		return s, false
	}
	return strings.TrimSuffix(s, suffix), true
}

// lastSplit splits s on the last occurrence of sep, per the
// dispatcher's "last-occurring separator wins" rule.
func lastSplit(s, sep string) (before, after string, ok bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+len(sep):], true
}

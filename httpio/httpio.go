// Package httpio is the concrete net/http realization of the
// Request/Response capability the bridging engine's handlers consume.
// It carries no routing, authentication, or TLS logic: just enough to
// read a method, path, and body off an incoming request and stream a
// status code and JSON body back once the handler has produced one.
package httpio

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// Request is the inbound side of one HTTP request, already drained
// into memory: handlers never need to worry about partial reads or
// streaming bodies.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

// Response accumulates a handler's status code and JSON body, and
// signals readiness through Done once Finish is called, including for
// handlers whose fanned-out bus calls complete
// well after the Response was constructed. A zero Response is not
// usable; construct one with NewResponse.
type Response struct {
	once sync.Once
	done chan struct{}

	mu   sync.Mutex
	code int
	body any
	has  bool
}

// NewResponse returns a Response with status 200, ready for a handler
// to write to.
func NewResponse() *Response {
	return &Response{code: http.StatusOK, done: make(chan struct{})}
}

// Status sets the HTTP status code to write.
func (r *Response) Status(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code = code
}

// JSON sets the response body, marshaled as JSON.
func (r *Response) JSON(body any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.body = body
	r.has = true
}

// Finish implements txn.Finisher: it closes Done once the owning
// Transaction has written its final Status/JSON call, even if that
// happens asynchronously from the bus connection's read-loop
// goroutine, long after the request handler that created this
// Response has returned.
func (r *Response) Finish() {
	r.once.Do(func() { close(r.done) })
}

// Done closes once the Response has been fully written and is safe to
// stream back to the client.
func (r *Response) Done() <-chan struct{} {
	return r.done
}

// WriteTo flushes the Response to w. Callers must only call this after
// Done has closed.
func (r *Response) WriteTo(w http.ResponseWriter) error {
	r.mu.Lock()
	code, body, has := r.code, r.body, r.has
	r.mu.Unlock()

	if !has {
		w.WriteHeader(code)
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(body)
}

// HandlerFunc is the shape of a function that drives one request against
// the bridging engine's dispatcher: build a Request, dispatch it
// against resp, and return (the dispatch itself may return long
// before resp.Done() closes, if it fanned out asynchronous bus calls).
type HandlerFunc func(req Request, resp *Response)

// Adapt wraps fn as a net/http.Handler: it reads the request body,
// constructs a Request and Response, invokes fn, waits for the
// Response to finish (bounded by the request's context), and writes
// the result back.
func Adapt(fn HandlerFunc, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "error reading request body", http.StatusBadRequest)
			return
		}

		req := Request{Method: r.Method, Path: r.URL.Path, Body: body}
		resp := NewResponse()
		fn(req, resp)

		select {
		case <-resp.Done():
		case <-r.Context().Done():
			// The client disconnected; outstanding bus calls still run
			// to completion on the reactor goroutine, but there is no
			// one left to write to, per the bridging engine's
			// cancellation model.
			logger.Debug("client disconnected before response was ready", "method", req.Method, "path", req.Path)
			return
		}

		if err := resp.WriteTo(w); err != nil {
			logger.Warn("writing response", "method", req.Method, "path", req.Path, "error", err)
		}
	})
}

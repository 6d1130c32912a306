// Package txn implements the "fan out N asynchronous bus calls,
// finalize exactly once" coordination pattern shared by every action
// handler.
//
// A [Transaction] is only ever touched from the goroutine that owns
// it: the handler goroutine that calls [Begin], and the bus
// connection's single read-loop goroutine that later delivers each
// fanned-out call's reply via busclient.ReplyFunc. Both run serially
// with respect to the Transaction's state as long as every reply
// callback is registered before the handler drops its own reference,
// so Transaction needs no internal locking.
package txn

// Response is the minimal capability a Transaction needs from its
// HTTP layer: emit a status code and, for non-error responses, a JSON
// body.
type Response interface {
	Status(code int)
	JSON(body any)
}

// Transaction coordinates a handler's fan-out of bus calls and
// guarantees its Response is written exactly once, when the last
// outstanding reference drops.
type Transaction struct {
	resp Response

	refs  int
	err   bool
	failCode  int // explicit status for a failed Transaction; 0 means the bare 500 default
	errMsg    any
	hasErrMsg bool

	// successBody/successSet override the default success envelope at
	// finalize time, for handlers whose result isn't the working data
	// map (handle_list's array of paths, handle_action's literal
	// null). successSet tracks whether SetData was ever called, since
	// a nil successBody is itself a valid override.
	successBody any
	successSet  bool
	successCode int

	// rawEnvelope, if non-nil, replaces the entire top-level JSON body
	// at finalize time in place of the {status, message, data}
	// wrapper; a failed Transaction still takes the error path. Used
	// by handle_put, whose bus-error
	// envelope ({"status":"error","message":...}) still reports a
	// success HTTP status.
	rawEnvelope any

	// preFinalize, if set, runs once at the start of finalize, before
	// any envelope is built. Handlers use it to inspect state that only
	// settles once every fanned-out call has completed (handle_put's
	// "was any property ever matched" check, for instance).
	preFinalize func(*Transaction)

	data map[string]any
}

// Begin constructs a Transaction with refcount 1 (the caller's own
// reference) and an empty data document.
func Begin(resp Response) *Transaction {
	return &Transaction{
		resp:        resp,
		refs:        1,
		successCode: 200,
		data:        map[string]any{},
	}
}

// Ref acquires one additional reference, to be held by a spawned bus
// callback. Call this before dispatching the call, and Drop from
// within the callback once it completes (success or failure).
func (t *Transaction) Ref() {
	t.refs++
}

// Drop releases a reference. When the last reference (the handler's
// own, plus every Ref'd callback) has been dropped, the Transaction
// finalizes: it writes the Response exactly once.
func (t *Transaction) Drop() {
	t.refs--
	if t.refs < 0 {
		panic("txn: Drop called more times than Ref")
	}
	if t.refs == 0 {
		t.finalize()
	}
}

// SetError marks the Transaction as failed. At finalize, a failed
// Transaction discards its accumulated data and emits 500 with no
// body, unless a handler has called [Transaction.FailStatus] or
// [Transaction.Fail] to set a more specific outcome.
func (t *Transaction) SetError() {
	t.err = true
}

// FailStatus marks the Transaction as failed with a specific status
// code and no JSON body, overriding the bare 500 that SetError alone
// would produce.
func (t *Transaction) FailStatus(code int) {
	t.err = true
	t.failCode = code
}

// Fail marks the Transaction as failed with a specific status code
// and JSON body. Used by handlers with a distinct error envelope,
// like the PUT handler's 403 "property cannot be created" response.
func (t *Transaction) Fail(code int, body any) {
	t.err = true
	t.failCode = code
	t.errMsg = body
	t.hasErrMsg = true
}

// Data returns the Transaction's working JSON document, for handlers
// to mutate directly.
func (t *Transaction) Data() map[string]any {
	return t.data
}

// SetData replaces the Transaction's success body wholesale, for
// handlers whose result isn't a map (handle_list's array of paths,
// for instance).
func (t *Transaction) SetData(v any) {
	t.successBody = v
	t.successSet = true
}

// HasData reports whether the working document or an explicit
// SetData body has been set.
func (t *Transaction) HasData() bool {
	return t.successSet || len(t.data) > 0
}

// ReplaceEnvelope replaces the entire success body with v, bypassing
// the default {status, message, data} wrap. It does not bypass the
// error path: a Transaction marked failed by SetError, FailStatus or
// Fail still finalizes as an error. Otherwise the response reports
// t's success status, 200.
func (t *Transaction) ReplaceEnvelope(v any) {
	t.rawEnvelope = v
}

// OnFinalize registers f to run once, at the start of finalize,
// before any envelope is built or written. f may still call Fail,
// SetError, SetData, or ReplaceEnvelope to affect the outcome.
func (t *Transaction) OnFinalize(f func(*Transaction)) {
	t.preFinalize = f
}

// Finisher is implemented by a Response that needs to observe when a
// Transaction has finished writing it, such as the HTTP adapter's
// Response signaling its Done channel once the reply is ready to
// stream back.
type Finisher interface {
	Finish()
}

func (t *Transaction) finalize() {
	if f, ok := t.resp.(Finisher); ok {
		defer f.Finish()
	}
	if t.preFinalize != nil {
		t.preFinalize(t)
	}

	if t.err {
		code := t.failCode
		if code == 0 {
			code = 500
		}
		t.resp.Status(code)
		if t.hasErrMsg {
			t.resp.JSON(t.errMsg)
		}
		return
	}

	if t.rawEnvelope != nil {
		t.resp.Status(t.successCode)
		t.resp.JSON(t.rawEnvelope)
		return
	}

	body := any(t.data)
	if t.successSet {
		body = t.successBody
	}
	t.resp.Status(t.successCode)
	t.resp.JSON(envelope{Status: "ok", Message: "200 OK", Data: body})
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// EnvelopeData extracts the "data" field from a value previously
// written by a Transaction's standard success envelope, for a caller
// that needs to inspect one handler's result in order to reshape it
// into a different envelope (the `/bus/...` routes built atop
// handle_introspect_walk, for instance). It reports false for any
// value that isn't such an envelope, including one built via
// ReplaceEnvelope.
func EnvelopeData(v any) (any, bool) {
	e, ok := v.(envelope)
	if !ok {
		return nil, false
	}
	return e.Data, true
}

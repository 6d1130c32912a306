package busroute

import (
	"sync"

	"github.com/hexbus/dbusrest/txn"
)

// capture is a txn.Response that records a Transaction's outcome in
// memory rather than writing it anywhere, so a route in this package
// can drive one of the action package's handlers as an internal
// collaborator and reshape its result. It implements txn.Finisher so
// the owning Transaction signals completion through done even when
// that happens asynchronously, from the bus connection's read-loop
// goroutine, well after the call that constructed it has returned.
type capture struct {
	once sync.Once
	done chan struct{}

	mu   sync.Mutex
	code int
	body any
}

func newCapture() *capture {
	return &capture{code: 200, done: make(chan struct{})}
}

func (c *capture) Status(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code = code
}

func (c *capture) JSON(body any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.body = body
}

func (c *capture) Finish() {
	c.once.Do(func() { close(c.done) })
}

// envelopeData returns the "data" field of the standard success
// envelope the captured handler wrote, if it wrote one.
func (c *capture) envelopeData() (map[string]any, bool) {
	c.mu.Lock()
	body := c.body
	c.mu.Unlock()

	data, ok := txn.EnvelopeData(body)
	if !ok {
		return nil, false
	}
	m, ok := data.(map[string]any)
	return m, ok
}

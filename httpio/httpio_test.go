package httpio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestResponseWriteToNoBody(t *testing.T) {
	resp := NewResponse()
	resp.Status(204)

	rec := httptest.NewRecorder()
	if err := resp.WriteTo(rec); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if rec.Code != 204 {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestResponseWriteToJSON(t *testing.T) {
	resp := NewResponse()
	resp.JSON(map[string]any{"ok": true})

	rec := httptest.NewRecorder()
	if err := resp.WriteTo(rec); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q, want application/json", ct)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"ok":true}` {
		t.Errorf("body = %q", got)
	}
}

func TestResponseFinishIsIdempotent(t *testing.T) {
	resp := NewResponse()
	resp.Finish()
	resp.Finish() // must not panic on double-close

	select {
	case <-resp.Done():
	default:
		t.Fatal("Done() did not close after Finish")
	}
}

func TestAdaptWaitsForDone(t *testing.T) {
	released := make(chan struct{})
	handler := Adapt(func(req Request, resp *Response) {
		go func() {
			<-released
			resp.Status(200)
			resp.JSON([]string{req.Path})
			resp.Finish()
		}()
	}, nil)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/bus/system/foo", nil)

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(rec, r)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("handler returned before the Response finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(released)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never returned after Finish")
	}

	if rec.Code != 200 {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `["/bus/system/foo"]` {
		t.Errorf("body = %q", got)
	}
}

func TestAdaptReadsRequestBody(t *testing.T) {
	var gotBody []byte
	gotMethod := ""
	handler := Adapt(func(req Request, resp *Response) {
		gotBody = req.Body
		gotMethod = req.Method
		resp.Status(200)
		resp.Finish()
	}, nil)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut, "/bus/system/foo/Bar", strings.NewReader(`{"data":1}`))
	handler.ServeHTTP(rec, r)

	if gotMethod != http.MethodPut {
		t.Errorf("method = %q, want PUT", gotMethod)
	}
	if string(gotBody) != `{"data":1}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestAdaptClientDisconnect(t *testing.T) {
	neverFinishes := make(chan struct{})
	handler := Adapt(func(req Request, resp *Response) {
		// A real handler fans its bus calls out and returns immediately;
		// the Response is finished later, from the reactor goroutine.
		go func() { <-neverFinishes }()
	}, nil)

	r := httptest.NewRequest(http.MethodGet, "/bus/system/foo", nil)
	ctx, cancel := context.WithCancel(r.Context())
	r = r.WithContext(ctx)
	cancel()

	rec := httptest.NewRecorder()
	rec.Code = 0 // NewRecorder starts at 200; zero it so any WriteHeader shows

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(rec, r)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after client disconnect")
	}
	close(neverFinishes)

	if rec.Code != 0 {
		t.Errorf("status = %d, want unset (handler must not write after disconnect)", rec.Code)
	}
}


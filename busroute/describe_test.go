package busroute

import (
	"context"
	"testing"
)

type recordingResponse struct {
	code int
	body any
}

func (r *recordingResponse) Status(code int) { r.code = code }
func (r *recordingResponse) JSON(body any)   { r.body = body }

// TestDescribePathTooManyTrailingSegments exercises the one case in
// DescribePath's segment parsing that never reaches the bus: more than
// one segment after the interface name is a 404 before any call is
// dispatched, so no fake Conn is needed here.
func TestDescribePathTooManyTrailingSegments(t *testing.T) {
	h := &Handlers{Conn: nil}
	resp := &recordingResponse{}

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("DescribePath touched the bus connection: %v", r)
		}
	}()

	h.DescribePath(context.Background(), resp, "system.conn", "foo/com.example.Iface/Method/Extra")
	if resp.code != 404 {
		t.Errorf("code = %d, want 404", resp.code)
	}
}

package busroute

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hexbus/dbusrest/busclienttest"
	"github.com/hexbus/dbusrest/codec"
	"github.com/hexbus/dbusrest/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitingResponse is a txn.Response (plus txn.Finisher) that signals
// done once a route has finished writing it, for the routes exercised
// here through a real (fake) bus connection rather than synchronously.
type waitingResponse struct {
	done chan struct{}
	code int
	body any
}

func newWaitingResponse() *waitingResponse {
	return &waitingResponse{done: make(chan struct{}), code: 200}
}

func (r *waitingResponse) Status(code int) { r.code = code }
func (r *waitingResponse) JSON(body any)   { r.body = body }
func (r *waitingResponse) Finish()         { close(r.done) }

func (r *waitingResponse) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("route never finished its response")
	}
}

func encodeBody(t *testing.T, sig string, json any) []byte {
	t.Helper()
	enc := &wire.Encoder{Order: wire.NativeEndian}
	if err := codec.Encode(enc, sig, json); err != nil {
		t.Fatalf("encoding test fixture body (sig %q): %v", sig, err)
	}
	return enc.Out
}

func TestListBusses(t *testing.T) {
	h := &Handlers{}
	resp := newWaitingResponse()
	h.ListBusses(resp)
	resp.wait(t)

	if resp.code != 200 {
		t.Fatalf("status = %d, want 200", resp.code)
	}
	body, ok := resp.body.(map[string]any)
	if !ok {
		t.Fatalf("body = %#v, want map", resp.body)
	}
	busses, ok := body["busses"].([]map[string]string)
	if !ok || len(busses) != 1 || busses[0]["name"] != "system" {
		t.Errorf("busses = %#v, want one entry named system", body["busses"])
	}
}

func TestListConnections(t *testing.T) {
	bus, conn := busclienttest.New(t)
	bus.Handle("org.freedesktop.DBus", "ListNames", func(path, body []byte) busclienttest.Reply {
		return busclienttest.Reply{Sig: "as", Body: encodeBody(t, "as", []any{
			"org.freedesktop.DBus", "xyz.openbmc_project.Example",
		})}
	})

	h := New(conn, testLogger())
	resp := newWaitingResponse()
	h.ListConnections(context.Background(), resp)
	resp.wait(t)

	if resp.code != 200 {
		t.Fatalf("status = %d, want 200", resp.code)
	}
	body := resp.body.(map[string]any)
	objects, ok := body["objects"].([]map[string]string)
	if !ok || len(objects) != 2 {
		t.Fatalf("objects = %#v, want 2 entries", body["objects"])
	}
	if objects[0]["name"] != "org.freedesktop.DBus" {
		t.Errorf("objects[0] = %v, want org.freedesktop.DBus first (sorted)", objects[0])
	}
}

func TestWalkConnection(t *testing.T) {
	bus, conn := busclienttest.New(t)
	bus.Handle(introspectableInterface, "Introspect", func(path, body []byte) busclienttest.Reply {
		var xml string
		switch string(path) {
		case "/":
			xml = `<node><node name="example"/></node>`
		case "/example":
			xml = `<node></node>`
		default:
			t.Fatalf("unexpected introspect path %q", path)
		}
		return busclienttest.Reply{Sig: "s", Body: encodeBody(t, "s", xml)}
	})

	h := New(conn, testLogger())
	resp := newWaitingResponse()
	h.WalkConnection(context.Background(), resp, "xyz.openbmc_project.Example")
	resp.wait(t)

	if resp.code != 200 {
		t.Fatalf("status = %d, want 200", resp.code)
	}
	body := resp.body.(map[string]any)
	if body["bus_name"] != "xyz.openbmc_project.Example" {
		t.Errorf("bus_name = %v", body["bus_name"])
	}
	objects, ok := body["objects"].([]map[string]string)
	if !ok || len(objects) != 2 {
		t.Fatalf("objects = %#v, want 2 entries", body["objects"])
	}
}

func TestDescribePathObject(t *testing.T) {
	bus, conn := busclienttest.New(t)
	bus.Handle(introspectableInterface, "Introspect", func(path, body []byte) busclienttest.Reply {
		xml := `<node><interface name="xyz.openbmc_project.Example.Iface"/></node>`
		return busclienttest.Reply{Sig: "s", Body: encodeBody(t, "s", xml)}
	})

	h := New(conn, testLogger())
	resp := newWaitingResponse()
	h.DescribePath(context.Background(), resp, "xyz.openbmc_project.Example", "xyz/openbmc_project/example")
	resp.wait(t)

	if resp.code != 200 {
		t.Fatalf("status = %d, want 200", resp.code)
	}
	body := resp.body.(map[string]any)
	if body["object_path"] != "/xyz/openbmc_project/example" {
		t.Errorf("object_path = %v", body["object_path"])
	}
	ifaces, ok := body["interfaces"].([]map[string]string)
	if !ok || len(ifaces) != 1 || ifaces[0]["name"] != "xyz.openbmc_project.Example.Iface" {
		t.Errorf("interfaces = %#v", body["interfaces"])
	}
}

func TestDescribePathInterface(t *testing.T) {
	bus, conn := busclienttest.New(t)
	bus.Handle(introspectableInterface, "Introspect", func(path, body []byte) busclienttest.Reply {
		xml := `<node><interface name="xyz.openbmc_project.Example.Iface">
			<method name="DoThing"/>
		</interface></node>`
		return busclienttest.Reply{Sig: "s", Body: encodeBody(t, "s", xml)}
	})

	h := New(conn, testLogger())
	resp := newWaitingResponse()
	h.DescribePath(context.Background(), resp, "xyz.openbmc_project.Example",
		"xyz/openbmc_project/example/xyz.openbmc_project.Example.Iface")
	resp.wait(t)

	if resp.code != 200 {
		t.Fatalf("status = %d, want 200", resp.code)
	}
	body := resp.body.(map[string]any)
	if body["interface"] != "xyz.openbmc_project.Example.Iface" {
		t.Errorf("interface = %v", body["interface"])
	}
	methods, ok := body["methods"].([]map[string]any)
	if !ok || len(methods) != 1 {
		t.Fatalf("methods = %#v", body["methods"])
	}
}

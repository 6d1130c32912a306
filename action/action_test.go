package action

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hexbus/dbusrest/busclienttest"
	"github.com/hexbus/dbusrest/codec"
	"github.com/hexbus/dbusrest/resolver"
	"github.com/hexbus/dbusrest/txn"
	"github.com/hexbus/dbusrest/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingResponse is a txn.Response (plus txn.Finisher) that records
// the handler's outcome and signals done once the owning Transaction
// has written its final Status/JSON call.
type recordingResponse struct {
	done chan struct{}
	code int
	body any
}

func newRecordingResponse() *recordingResponse {
	return &recordingResponse{done: make(chan struct{}), code: 200}
}

func (r *recordingResponse) Status(code int) { r.code = code }
func (r *recordingResponse) JSON(body any)   { r.body = body }
func (r *recordingResponse) Finish()         { close(r.done) }

func (r *recordingResponse) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never finalized its response")
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

func introspectXML(body string) []byte {
	return []byte(`<node>` + body + `</node>`)
}

func envelopeDataForTest(t *testing.T, body any) any {
	t.Helper()
	data, ok := txn.EnvelopeData(body)
	if !ok {
		t.Fatalf("body = %#v, want the standard success envelope", body)
	}
	return data
}

func TestList(t *testing.T) {
	bus, conn := busclienttest.New(t)
	bus.Handle(resolver.MapperInterface, "GetSubTreePaths", func(path, body []byte) busclienttest.Reply {
		return busclienttest.Reply{Sig: "as", Body: encodeBody(t, "as", []any{
			"/xyz/openbmc_project/sensors/temperature/cpu",
			"/xyz/openbmc_project/sensors/temperature/ambient",
		})}
	})

	h := New(conn, testLogger())
	resp := newRecordingResponse()
	h.List(context.Background(), resp, "/xyz/openbmc_project/sensors")
	resp.wait(t)

	if resp.code != 200 {
		t.Fatalf("status = %d, want 200", resp.code)
	}
	want := []string{
		"/xyz/openbmc_project/sensors/temperature/cpu",
		"/xyz/openbmc_project/sensors/temperature/ambient",
	}
	data := envelopeDataForTest(t, resp.body)
	got, ok := data.([]string)
	if !ok {
		t.Fatalf("data = %#v (%T), want []string", data, data)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diff (-want +got):\n%s", diff)
	}
}

func TestGetAllProperties(t *testing.T) {
	bus, conn := busclienttest.New(t)
	bus.Handle(resolver.MapperInterface, "GetObject", func(path, body []byte) busclienttest.Reply {
		return busclienttest.Reply{Sig: "a{sas}", Body: encodeBody(t, "a{sas}", map[string]any{
			"xyz.openbmc_project.HwmonTemp": []any{"xyz.openbmc_project.Sensor.Value"},
		})}
	})
	bus.Handle(propertiesInterface, "GetAll", func(path, body []byte) busclienttest.Reply {
		return busclienttest.Reply{Sig: "a{sv}", Body: encodeBody(t, "a{sv}", map[string]any{
			"Value": map[string]any{"signature": "d", "value": 42.5},
			"Unit":  map[string]any{"signature": "s", "value": "xyz.openbmc_project.Sensor.Value.Unit.DegreesC"},
		})}
	})

	h := New(conn, testLogger())
	resp := newRecordingResponse()
	h.Get(context.Background(), resp, "/xyz/openbmc_project/sensors/temperature/cpu", "")
	resp.wait(t)

	if resp.code != 200 {
		t.Fatalf("status = %d, want 200", resp.code)
	}
	data := envelopeDataForTest(t, resp.body).(map[string]any)
	if data["Value"] != float64(42.5) {
		t.Errorf("Value = %v, want 42.5", data["Value"])
	}
	if data["Unit"] != "xyz.openbmc_project.Sensor.Value.Unit.DegreesC" {
		t.Errorf("Unit = %v, want DegreesC", data["Unit"])
	}
}

func TestGetSingleProperty(t *testing.T) {
	bus, conn := busclienttest.New(t)
	bus.Handle(resolver.MapperInterface, "GetObject", func(path, body []byte) busclienttest.Reply {
		return busclienttest.Reply{Sig: "a{sas}", Body: encodeBody(t, "a{sas}", map[string]any{
			"xyz.openbmc_project.HwmonTemp": []any{"xyz.openbmc_project.Sensor.Value"},
		})}
	})
	bus.Handle(propertiesInterface, "GetAll", func(path, body []byte) busclienttest.Reply {
		return busclienttest.Reply{Sig: "a{sv}", Body: encodeBody(t, "a{sv}", map[string]any{
			"Value": map[string]any{"signature": "d", "value": 42.5},
		})}
	})

	h := New(conn, testLogger())
	resp := newRecordingResponse()
	h.Get(context.Background(), resp, "/xyz/openbmc_project/sensors/temperature/cpu", "Value")
	resp.wait(t)

	data := envelopeDataForTest(t, resp.body)
	if data != float64(42.5) {
		t.Errorf("data = %v, want bare 42.5", data)
	}
}

func TestGetNoOwner404(t *testing.T) {
	bus, conn := busclienttest.New(t)
	bus.Handle(resolver.MapperInterface, "GetObject", func(path, body []byte) busclienttest.Reply {
		return busclienttest.Reply{Sig: "a{sas}", Body: encodeBody(t, "a{sas}", map[string]any{})}
	})

	h := New(conn, testLogger())
	resp := newRecordingResponse()
	h.Get(context.Background(), resp, "/xyz/openbmc_project/no/such/object", "")
	resp.wait(t)

	if resp.code != 404 {
		t.Fatalf("status = %d, want 404", resp.code)
	}
}

func TestEnumerate(t *testing.T) {
	bus, conn := busclienttest.New(t)
	bus.Handle(resolver.MapperInterface, "GetSubTree", func(path, body []byte) busclienttest.Reply {
		return busclienttest.Reply{Sig: "a{sa{sas}}", Body: encodeBody(t, "a{sa{sas}}", map[string]any{
			"/xyz/openbmc_project/sensors": map[string]any{
				"xyz.openbmc_project.HwmonTemp": []any{"xyz.openbmc_project.Sensor.Value"},
			},
		})}
	})
	bus.Handle(objectManagerInterface, "GetManagedObjects", func(path, body []byte) busclienttest.Reply {
		return busclienttest.Reply{Sig: "a{oa{sa{sv}}}", Body: encodeBody(t, "a{oa{sa{sv}}}", map[string]any{
			"/xyz/openbmc_project/sensors/temperature/cpu": map[string]any{
				"xyz.openbmc_project.Sensor.Value": map[string]any{
					"Value": map[string]any{"signature": "d", "value": 55.0},
				},
			},
		})}
	})

	h := New(conn, testLogger())
	resp := newRecordingResponse()
	h.Enumerate(context.Background(), resp, "/xyz/openbmc_project/sensors")
	resp.wait(t)

	if resp.code != 200 {
		t.Fatalf("status = %d, want 200", resp.code)
	}
	data := envelopeDataForTest(t, resp.body).(map[string]any)
	obj, ok := data["/xyz/openbmc_project/sensors/temperature/cpu"].(map[string]any)
	if !ok {
		t.Fatalf("missing object entry in %#v", data)
	}
	if obj["Value"] != float64(55) {
		t.Errorf("Value = %v, want 55", obj["Value"])
	}
}

func TestAction(t *testing.T) {
	bus, conn := busclienttest.New(t)
	bus.Handle(resolver.MapperInterface, "GetObject", func(path, body []byte) busclienttest.Reply {
		return busclienttest.Reply{Sig: "a{sas}", Body: encodeBody(t, "a{sas}", map[string]any{
			"xyz.openbmc_project.Example": []any{"xyz.openbmc_project.Example.Iface"},
		})}
	})
	bus.Handle(introspectableInterface, "Introspect", func(path, body []byte) busclienttest.Reply {
		xml := introspectXML(`<interface name="xyz.openbmc_project.Example.Iface">
			<method name="DoThing">
				<arg name="count" type="i" direction="in"/>
				<arg name="result" type="s" direction="out"/>
			</method>
		</interface>`)
		return busclienttest.Reply{Sig: "s", Body: encodeBody(t, "s", string(xml))}
	})
	bus.Handle("xyz.openbmc_project.Example.Iface", "DoThing", func(path, body []byte) busclienttest.Reply {
		return busclienttest.Reply{Sig: "s", Body: encodeBody(t, "s", "ok")}
	})

	h := New(conn, testLogger())
	resp := newRecordingResponse()
	h.Action(context.Background(), resp, "/xyz/openbmc_project/example", "DoThing", []byte(`[3]`))
	resp.wait(t)

	if resp.code != 200 {
		t.Fatalf("status = %d, want 200", resp.code)
	}
	if data := envelopeDataForTest(t, resp.body); data != nil {
		t.Errorf("data = %v, want nil", data)
	}
}

func TestPut(t *testing.T) {
	bus, conn := busclienttest.New(t)
	bus.Handle(resolver.MapperInterface, "GetObject", func(path, body []byte) busclienttest.Reply {
		return busclienttest.Reply{Sig: "a{sas}", Body: encodeBody(t, "a{sas}", map[string]any{
			"xyz.openbmc_project.Example": []any{"xyz.openbmc_project.Example.Iface"},
		})}
	})
	bus.Handle(introspectableInterface, "Introspect", func(path, body []byte) busclienttest.Reply {
		xml := introspectXML(`<interface name="xyz.openbmc_project.Example.Iface">
			<property name="Enabled" type="b" access="readwrite"/>
		</interface>`)
		return busclienttest.Reply{Sig: "s", Body: encodeBody(t, "s", string(xml))}
	})
	var sawSet bool
	bus.Handle(propertiesInterface, "Set", func(path, body []byte) busclienttest.Reply {
		sawSet = true
		return busclienttest.Reply{Sig: "", Body: nil}
	})

	h := New(conn, testLogger())
	resp := newRecordingResponse()
	h.Put(context.Background(), resp, "/xyz/openbmc_project/example", "Enabled", []byte(`{"data": true}`))
	resp.wait(t)

	if resp.code != 200 {
		t.Fatalf("status = %d, want 200", resp.code)
	}
	if !sawSet {
		t.Error("Properties.Set was never called")
	}
}

func TestPutUnknownProperty(t *testing.T) {
	bus, conn := busclienttest.New(t)
	bus.Handle(resolver.MapperInterface, "GetObject", func(path, body []byte) busclienttest.Reply {
		return busclienttest.Reply{Sig: "a{sas}", Body: encodeBody(t, "a{sas}", map[string]any{
			"xyz.openbmc_project.Example": []any{"xyz.openbmc_project.Example.Iface"},
		})}
	})
	bus.Handle(introspectableInterface, "Introspect", func(path, body []byte) busclienttest.Reply {
		xml := introspectXML(`<interface name="xyz.openbmc_project.Example.Iface"></interface>`)
		return busclienttest.Reply{Sig: "s", Body: encodeBody(t, "s", string(xml))}
	})

	h := New(conn, testLogger())
	resp := newRecordingResponse()
	h.Put(context.Background(), resp, "/xyz/openbmc_project/example", "NoSuchProperty", []byte(`{"data": true}`))
	resp.wait(t)

	if resp.code != 403 {
		t.Fatalf("status = %d, want 403", resp.code)
	}
}

func TestIntrospectWalk(t *testing.T) {
	bus, conn := busclienttest.New(t)
	bus.Handle(introspectableInterface, "Introspect", func(path, body []byte) busclienttest.Reply {
		var xml string
		switch string(path) {
		case "/xyz/openbmc_project/example":
			xml = `<node><node name="child"/></node>`
		case "/xyz/openbmc_project/example/child":
			xml = `<node></node>`
		default:
			t.Fatalf("unexpected introspect path %q", path)
		}
		return busclienttest.Reply{Sig: "s", Body: encodeBody(t, "s", xml)}
	})

	h := New(conn, testLogger())
	resp := newRecordingResponse()
	h.IntrospectWalk(context.Background(), resp, "xyz.openbmc_project.Example", "/xyz/openbmc_project/example")
	resp.wait(t)

	if resp.code != 200 {
		t.Fatalf("status = %d, want 200", resp.code)
	}
	data := envelopeDataForTest(t, resp.body).(map[string]any)
	objects, ok := data["objects"].([]map[string]string)
	if !ok {
		t.Fatalf("objects = %#v, want []map[string]string", data["objects"])
	}
	if len(objects) != 2 {
		t.Fatalf("len(objects) = %d, want 2", len(objects))
	}
}

func TestInterfaceDescribe(t *testing.T) {
	bus, conn := busclienttest.New(t)
	bus.Handle(introspectableInterface, "Introspect", func(path, body []byte) busclienttest.Reply {
		xml := introspectXML(`<interface name="xyz.openbmc_project.Example.Iface">
			<method name="DoThing">
				<arg name="count" type="i" direction="in"/>
			</method>
			<signal name="Changed"/>
		</interface>`)
		return busclienttest.Reply{Sig: "s", Body: encodeBody(t, "s", string(xml))}
	})

	h := New(conn, testLogger())
	resp := newRecordingResponse()
	h.InterfaceDescribe(context.Background(), resp, "xyz.openbmc_project.Example",
		"/xyz/openbmc_project/example", "xyz.openbmc_project.Example.Iface")
	resp.wait(t)

	if resp.code != 200 {
		t.Fatalf("status = %d, want 200", resp.code)
	}
	data := envelopeDataForTest(t, resp.body).(map[string]any)
	methods, ok := data["methods"].([]map[string]any)
	if !ok || len(methods) != 1 {
		t.Fatalf("methods = %#v, want one entry", data["methods"])
	}
	if methods[0]["uri"] != "/bus/system/xyz.openbmc_project.Example/xyz/openbmc_project/example/xyz.openbmc_project.Example.Iface/DoThing" {
		t.Errorf("uri = %v", methods[0]["uri"])
	}
}

package busclient

import (
	"bytes"
	"context"
	"fmt"

	"github.com/hexbus/dbusrest/wire"
)

const (
	busService   = "org.freedesktop.DBus"
	busPath      = ObjectPath("/org/freedesktop/DBus")
	busInterface = "org.freedesktop.DBus"
)

func busIface(c *Conn) Interface {
	return c.Peer(busService).Object(busPath).Interface(busInterface)
}

// ListNames returns every bus name currently claimed on this bus,
// matching org.freedesktop.DBus.ListNames.
func (c *Conn) ListNames(ctx context.Context) ([]string, error) {
	sig, body, err := busIface(c).Call(ctx, "ListNames", "", nil)
	if err != nil {
		return nil, fmt.Errorf("ListNames: %w", err)
	}
	if sig != "as" {
		return nil, fmt.Errorf("ListNames: unexpected reply signature %q", sig)
	}
	dec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(body)}
	var names []string
	_, err = dec.Array(false, func(int) error {
		s, err := dec.String()
		if err != nil {
			return err
		}
		names = append(names, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ListNames: decoding reply: %w", err)
	}
	return names, nil
}

// Package resolver calls the well-known ObjectMapper bus service to
// discover which connections own a given object path, or to walk a
// subtree of paths.
package resolver

import (
	"bytes"
	"context"
	"fmt"

	"github.com/hexbus/dbusrest/busclient"
	"github.com/hexbus/dbusrest/wire"
)

// DefaultMapperService and DefaultMapperPath are the object mapper's
// well-known address on a stock system bus.
const (
	DefaultMapperService = "xyz.openbmc_project.ObjectMapper"
	DefaultMapperPath    = busclient.ObjectPath("/xyz/openbmc_project/object_mapper")
)

// MapperService and MapperPath are the object mapper's address this
// package's functions call against. They default to the well-known
// address but are package variables, rather than constants, so a test
// (or a deployment with a non-standard bus layout) can point them at
// a private mapper instance via [SetMapperAddress]. The bus-control
// methods (§4.9) are still reached through a hardcoded
// org.freedesktop.DBus address: only the mapper's address is
// configurable, matching spec.md §5's "compile-time constant" framing
// of the mapper address as the one exception worth overriding for
// tests.
var (
	MapperService   = DefaultMapperService
	MapperPath      = DefaultMapperPath
	MapperInterface = DefaultMapperService
)

// SetMapperAddress overrides the object mapper's bus name and path,
// for tests that run against a private mapper fixture instead of a
// real system bus.
func SetMapperAddress(service string, path busclient.ObjectPath) {
	MapperService = service
	MapperPath = path
	MapperInterface = service
}

// Error reports that a call to the object mapper failed.
type Error struct {
	Method string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("object mapper %s: %s", e.Method, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Owner is one connection's claim on an object path, and the
// interfaces it offers there.
type Owner struct {
	Connection string
	Interfaces []string
}

// SubTreeEntry is one path in a GetSubTree result, together with its
// owners.
type SubTreeEntry struct {
	Path   busclient.ObjectPath
	Owners []Owner
}

func mapperInterface(conn *busclient.Conn) busclient.Interface {
	return conn.Peer(MapperService).Object(MapperPath).Interface(MapperInterface)
}

// GetObject returns the connections that own path, restricted to
// interfaces if non-empty. An empty result means no owner was found;
// that is not itself an error.
func GetObject(ctx context.Context, conn *busclient.Conn, path busclient.ObjectPath, interfaces []string) ([]Owner, error) {
	enc := &wire.Encoder{Order: wire.NativeEndian}
	enc.String(string(path))
	if err := encodeStringArray(enc, interfaces); err != nil {
		return nil, &Error{"GetObject", err}
	}

	sig, body, err := mapperInterface(conn).Call(ctx, "GetObject", "sas", enc.Out)
	if err != nil {
		return nil, &Error{"GetObject", err}
	}
	if sig != "a{sas}" {
		return nil, &Error{"GetObject", fmt.Errorf("unexpected reply signature %q", sig)}
	}

	dec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(body)}
	owners, err := decodeOwnerMap(dec)
	if err != nil {
		return nil, &Error{"GetObject", err}
	}
	return owners, nil
}

// GetSubTree returns every path under root (to the given depth; 0
// means unlimited in the mapper's convention) that offers one of
// interfaces, together with each path's owners.
func GetSubTree(ctx context.Context, conn *busclient.Conn, root busclient.ObjectPath, depth uint32, interfaces []string) ([]SubTreeEntry, error) {
	enc := &wire.Encoder{Order: wire.NativeEndian}
	enc.String(string(root))
	enc.Uint32(depth)
	if err := encodeStringArray(enc, interfaces); err != nil {
		return nil, &Error{"GetSubTree", err}
	}

	sig, body, err := mapperInterface(conn).Call(ctx, "GetSubTree", "suas", enc.Out)
	if err != nil {
		return nil, &Error{"GetSubTree", err}
	}
	if sig != "a{sa{sas}}" {
		return nil, &Error{"GetSubTree", fmt.Errorf("unexpected reply signature %q", sig)}
	}

	dec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(body)}
	var ret []SubTreeEntry
	_, err = dec.Array(true, func(int) error {
		return dec.Struct(func() error {
			p, err := dec.String()
			if err != nil {
				return err
			}
			owners, err := decodeOwnerMap(dec)
			if err != nil {
				return err
			}
			ret = append(ret, SubTreeEntry{Path: busclient.ObjectPath(p), Owners: owners})
			return nil
		})
	})
	if err != nil {
		return nil, &Error{"GetSubTree", err}
	}
	return ret, nil
}

// GetSubTreePaths is GetSubTree without the owner detail: just the
// matching paths.
func GetSubTreePaths(ctx context.Context, conn *busclient.Conn, root busclient.ObjectPath, depth uint32, interfaces []string) ([]busclient.ObjectPath, error) {
	enc := &wire.Encoder{Order: wire.NativeEndian}
	enc.String(string(root))
	enc.Uint32(depth)
	if err := encodeStringArray(enc, interfaces); err != nil {
		return nil, &Error{"GetSubTreePaths", err}
	}

	sig, body, err := mapperInterface(conn).Call(ctx, "GetSubTreePaths", "suas", enc.Out)
	if err != nil {
		return nil, &Error{"GetSubTreePaths", err}
	}
	if sig != "as" {
		return nil, &Error{"GetSubTreePaths", fmt.Errorf("unexpected reply signature %q", sig)}
	}

	dec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(body)}
	var ret []busclient.ObjectPath
	_, err = dec.Array(false, func(int) error {
		s, err := dec.String()
		if err != nil {
			return err
		}
		ret = append(ret, busclient.ObjectPath(s))
		return nil
	})
	if err != nil {
		return nil, &Error{"GetSubTreePaths", err}
	}
	return ret, nil
}

func encodeStringArray(enc *wire.Encoder, ss []string) error {
	return enc.Array(false, func() error {
		for _, s := range ss {
			enc.String(s)
		}
		return nil
	})
}

// decodeOwnerMap decodes an a{sas} value: connection name to
// interface list.
func decodeOwnerMap(dec *wire.Decoder) ([]Owner, error) {
	var ret []Owner
	_, err := dec.Array(true, func(int) error {
		return dec.Struct(func() error {
			conn, err := dec.String()
			if err != nil {
				return err
			}
			var ifaces []string
			_, err = dec.Array(false, func(int) error {
				s, err := dec.String()
				if err != nil {
					return err
				}
				ifaces = append(ifaces, s)
				return nil
			})
			if err != nil {
				return err
			}
			ret = append(ret, Owner{Connection: conn, Interfaces: ifaces})
			return nil
		})
	})
	return ret, err
}

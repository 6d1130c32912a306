package busclient

import "fmt"

// CallError is returned when a method call completes with a DBus
// error reply.
type CallError struct {
	// Name is the error name the peer provided, e.g.
	// "org.freedesktop.DBus.Error.UnknownMethod".
	Name string
	// Detail is the human-readable explanation carried in the error
	// reply body, if that body is a single string (signature "s").
	Detail string
}

func (e CallError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("call error %s", e.Name)
	}
	return fmt.Sprintf("call error %s: %s", e.Name, e.Detail)
}

// ProtocolError reports that a peer sent bytes that do not conform to
// the DBus wire protocol.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "dbus protocol error: " + e.Reason
}

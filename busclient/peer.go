package busclient

// Peer is a bus name, reachable through a [Conn].
//
// A Peer is a purely local handle: constructing one does not contact
// the bus, and does not imply that a service by that name currently
// exists.
type Peer struct {
	c    *Conn
	name string
}

// Name returns the peer's bus name.
func (p Peer) Name() string { return p.name }

// Object returns the object at path, offered by this peer.
func (p Peer) Object(path ObjectPath) Object {
	return Object{p: p, path: path}
}

// Object is an object path offered by a [Peer].
type Object struct {
	p    Peer
	path ObjectPath
}

// Peer returns the peer that offers this object.
func (o Object) Peer() Peer { return o.p }

// Path returns the object's path.
func (o Object) Path() ObjectPath { return o.path }

// Interface returns the named interface offered by this object.
func (o Object) Interface(name string) Interface {
	return Interface{o: o, name: name}
}

func (o Object) String() string {
	return o.p.name + string(o.path)
}

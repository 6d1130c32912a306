// Package introspect parses DBus introspection XML into a structured
// model: nodes, interfaces, methods, properties, and signals.
//
// The shapes here are deliberately close to the wire XML (see the
// "org.freedesktop.DBus.Introspectable" standard interface): this
// package does not resolve child node paths into absolute object
// paths, and does not validate that property/argument type strings
// are well-formed beyond what [encoding/xml] and [signature.Split]
// already check in passing.
package introspect

import (
	"encoding/xml"
	"fmt"

	"github.com/hexbus/dbusrest/signature"
)

// Direction is the direction of a method argument: in from the
// caller, or out from the callee.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Arg describes one argument of a method or signal.
type Arg struct {
	Name      string
	Type      string
	Direction Direction
}

// Method describes a callable method exposed by an interface.
type Method struct {
	Name string
	Args []Arg
}

// InArgs returns the method's "in" direction arguments, in
// declaration order.
func (m Method) InArgs() []Arg {
	var ret []Arg
	for _, a := range m.Args {
		if a.Direction == DirectionIn {
			ret = append(ret, a)
		}
	}
	return ret
}

// Signal describes a signal emitted by an interface. Signal arguments
// have no direction: they are always outbound from the emitter's
// perspective.
type Signal struct {
	Name string
	Args []Arg
}

// Property describes a property exposed by an interface.
type Property struct {
	Name   string
	Type   string
	Access string // "read", "write", or "readwrite"
}

// Readable reports whether the property can be read.
func (p Property) Readable() bool {
	return p.Access == "read" || p.Access == "readwrite"
}

// Writable reports whether the property can be written.
func (p Property) Writable() bool {
	return p.Access == "write" || p.Access == "readwrite"
}

// Interface describes one DBus interface exposed by a node.
type Interface struct {
	Name       string
	Methods    []Method
	Properties []Property
	Signals    []Signal
}

// Method returns the method named name on the interface, if any.
func (i Interface) Method(name string) (Method, bool) {
	for _, m := range i.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// Property returns the property named name on the interface, if any.
func (i Interface) Property(name string) (Property, bool) {
	for _, p := range i.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Node is the root of a parsed introspection document: the
// interfaces offered directly at the introspected path, plus the
// relative names of any child objects nested under it.
type Node struct {
	Interfaces []Interface
	// Children holds the relative path segment of each child <node>
	// element. Per the DBus specification these are single path
	// components, not full paths.
	Children []string
}

// Interface returns the named interface, if the node offers it.
func (n Node) Interface(name string) (Interface, bool) {
	for _, i := range n.Interfaces {
		if i.Name == name {
			return i, true
		}
	}
	return Interface{}, false
}

// ParseError reports that introspection XML failed to parse.
//
// Parse returns an empty Node alongside every ParseError: nothing is
// recovered from a document that fails to parse.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("introspection parse error: %s", e.Err)
	}
	return fmt.Sprintf("introspection parse error at %s: %s", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// rawDoc mirrors the wire shape of the introspection XML document.
type rawDoc struct {
	XMLName    xml.Name       `xml:"node"`
	Interfaces []rawInterface `xml:"interface"`
	Nodes      []rawNode      `xml:"node"`
}

type rawNode struct {
	Name string `xml:"name,attr"`
}

type rawInterface struct {
	Name       string        `xml:"name,attr"`
	Methods    []rawMethod   `xml:"method"`
	Signals    []rawSignal   `xml:"signal"`
	Properties []rawProperty `xml:"property"`
}

type rawMethod struct {
	Name string `xml:"name,attr"`
	Args []rawArg `xml:"arg"`
}

type rawSignal struct {
	Name string   `xml:"name,attr"`
	Args []rawArg `xml:"arg"`
}

type rawArg struct {
	Name      string `xml:"name,attr"`
	Type      string `xml:"type,attr"`
	Direction string `xml:"direction,attr"`
}

type rawProperty struct {
	Name   string `xml:"name,attr"`
	Type   string `xml:"type,attr"`
	Access string `xml:"access,attr"`
}

// Parse parses DBus introspection XML into a [Node].
//
// Parse validates each method/signal argument type and property type
// against [signature.Split], but does not otherwise interpret them; a
// bad type string anywhere in the document fails the whole parse, since
// there is no way to recover a partial method or property signature.
func Parse(path string, xmlDoc []byte) (Node, error) {
	var raw rawDoc
	if err := xml.Unmarshal(xmlDoc, &raw); err != nil {
		return Node{}, &ParseError{path, err}
	}

	node := Node{
		Children: make([]string, 0, len(raw.Nodes)),
	}
	for _, n := range raw.Nodes {
		if n.Name != "" {
			node.Children = append(node.Children, n.Name)
		}
	}

	for _, ri := range raw.Interfaces {
		iface := Interface{Name: ri.Name}
		for _, rm := range ri.Methods {
			m := Method{Name: rm.Name}
			for _, ra := range rm.Args {
				if err := signature.Validate(ra.Type); err != nil {
					return Node{}, &ParseError{path, fmt.Errorf("method %s.%s arg %s: %w", ri.Name, rm.Name, ra.Name, err)}
				}
				dir := DirectionIn
				if ra.Direction == "out" {
					dir = DirectionOut
				}
				m.Args = append(m.Args, Arg{Name: ra.Name, Type: ra.Type, Direction: dir})
			}
			iface.Methods = append(iface.Methods, m)
		}
		for _, rs := range ri.Signals {
			s := Signal{Name: rs.Name}
			for _, ra := range rs.Args {
				if err := signature.Validate(ra.Type); err != nil {
					return Node{}, &ParseError{path, fmt.Errorf("signal %s.%s arg %s: %w", ri.Name, rs.Name, ra.Name, err)}
				}
				s.Args = append(s.Args, Arg{Name: ra.Name, Type: ra.Type, Direction: DirectionOut})
			}
			iface.Signals = append(iface.Signals, s)
		}
		for _, rp := range ri.Properties {
			if err := signature.Validate(rp.Type); err != nil {
				return Node{}, &ParseError{path, fmt.Errorf("property %s.%s: %w", ri.Name, rp.Name, err)}
			}
			iface.Properties = append(iface.Properties, Property{Name: rp.Name, Type: rp.Type, Access: rp.Access})
		}
		node.Interfaces = append(node.Interfaces, iface)
	}

	return node, nil
}

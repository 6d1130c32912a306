// Command busctl is a small debug CLI for the bridging engine's bus
// connection: introspect an object, call a method directly, or list
// bus names, all without going through HTTP. Grounded in the
// teacher's own cmd/dbus tool.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/hexbus/dbusrest/busclient"
	"github.com/hexbus/dbusrest/codec"
	"github.com/hexbus/dbusrest/introspect"
	"github.com/hexbus/dbusrest/wire"
)

const callTimeout = 30 * time.Second

var globalArgs struct {
	SocketPath string `flag:"socket,DBus socket path"`
}

func main() {
	globalArgs.SocketPath = "/var/run/dbus/system_bus_socket"

	root := &command.C{
		Name:     "busctl",
		Usage:    "command args...",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "introspect",
				Usage: "introspect <connection> <path>",
				Help:  "Print the introspection XML and parsed interface list for an object.",
				Run:   command.Adapt(runIntrospect),
			},
			{
				Name:  "call",
				Usage: "call <connection> <path> <interface> <method> <json-args>",
				Help:  "Call a method, encoding json-args (a JSON array) against the method's introspected signature.",
				Run:   command.Adapt(runCall),
			},
			{
				Name:  "names",
				Usage: "names",
				Help:  "List bus names currently claimed.",
				Run:   command.Adapt(runNames),
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

func dial(ctx context.Context) (*busclient.Conn, error) {
	return busclient.Dial(ctx, globalArgs.SocketPath, slog.Default())
}

func runIntrospect(env *command.Env, connName, path string) error {
	ctx, cancel := context.WithTimeout(env.Context(), callTimeout)
	defer cancel()
	conn, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	sig, body, err := conn.Peer(connName).Object(busclient.ObjectPath(path)).
		Interface("org.freedesktop.DBus.Introspectable").Call(ctx, "Introspect", "", nil)
	if err != nil {
		return fmt.Errorf("introspecting %s%s: %w", connName, path, err)
	}
	if sig != "s" {
		return fmt.Errorf("unexpected reply signature %q", sig)
	}
	dec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(body)}
	xmlDoc, err := dec.String()
	if err != nil {
		return fmt.Errorf("decoding introspection reply: %w", err)
	}

	node, err := introspect.Parse(path, []byte(xmlDoc))
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: parsing introspection XML:", err)
	} else {
		for _, iface := range node.Interfaces {
			fmt.Printf("interface %s\n", iface.Name)
			for _, m := range iface.Methods {
				fmt.Printf("  method %s\n", m.Name)
			}
			for _, p := range iface.Properties {
				fmt.Printf("  property %s %s (%s)\n", p.Name, p.Type, p.Access)
			}
			for _, s := range iface.Signals {
				fmt.Printf("  signal %s\n", s.Name)
			}
		}
	}

	fmt.Println(xmlDoc)
	return nil
}

func runCall(env *command.Env, connName, path, ifaceName, method, jsonArgs string) error {
	ctx, cancel := context.WithTimeout(env.Context(), callTimeout)
	defer cancel()
	conn, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	_, body, err := conn.Peer(connName).Object(busclient.ObjectPath(path)).
		Interface("org.freedesktop.DBus.Introspectable").Call(ctx, "Introspect", "", nil)
	if err != nil {
		return fmt.Errorf("introspecting %s%s: %w", connName, path, err)
	}
	dec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(body)}
	xmlDoc, err := dec.String()
	if err != nil {
		return fmt.Errorf("decoding introspection reply: %w", err)
	}
	node, err := introspect.Parse(path, []byte(xmlDoc))
	if err != nil {
		return fmt.Errorf("parsing introspection XML: %w", err)
	}
	iface, ok := node.Interface(ifaceName)
	if !ok {
		return fmt.Errorf("interface %q not found at %s%s", ifaceName, connName, path)
	}
	m, ok := iface.Method(method)
	if !ok {
		return fmt.Errorf("method %q not found on %s", method, ifaceName)
	}

	var args any
	if jsonArgs != "" {
		if err := json.Unmarshal([]byte(jsonArgs), &args); err != nil {
			return fmt.Errorf("parsing json-args: %w", err)
		}
	}

	var argSig string
	inArgs := m.InArgs()
	for _, a := range inArgs {
		argSig += a.Type
	}
	// A one-argument method's value is the array's sole element, not
	// the array itself.
	if len(inArgs) == 1 {
		if arr, ok := args.([]any); ok && len(arr) == 1 {
			args = arr[0]
		}
	}

	enc := &wire.Encoder{Order: wire.NativeEndian}
	if argSig != "" {
		if err := codec.Encode(enc, argSig, args); err != nil {
			return fmt.Errorf("encoding arguments: %w", err)
		}
	}

	replySig, replyBody, err := conn.Peer(connName).Object(busclient.ObjectPath(path)).
		Interface(ifaceName).Call(ctx, method, argSig, enc.Out)
	if err != nil {
		return fmt.Errorf("calling %s.%s: %w", ifaceName, method, err)
	}
	if replySig == "" {
		fmt.Println("(no reply arguments)")
		return nil
	}
	rdec := &wire.Decoder{Order: wire.NativeEndian, In: bytes.NewReader(replyBody)}
	v, err := codec.Decode(rdec, replySig)
	if err != nil {
		return fmt.Errorf("decoding reply: %w", err)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting reply: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runNames(env *command.Env) error {
	ctx, cancel := context.WithTimeout(env.Context(), callTimeout)
	defer cancel()
	conn, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	names, err := conn.ListNames(ctx)
	if err != nil {
		return fmt.Errorf("listing names: %w", err)
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

// Package dbusconn adapts a D-Bus connection (github.com/godbus/dbus)
// to the watch.Conn contract: textual match-rule management plus a
// filter chain fed from the connection's signal stream.
package dbusconn

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/petal-labs/namewatch/watch"
)

// Bus selects which message bus to connect to.
const (
	BusSystem  = "system"
	BusSession = "session"
)

// signalBufferSize is the buffer of the godbus signal channel. godbus
// drops deliveries that would block, so the buffer has to absorb
// bursts while filters run.
const signalBufferSize = 256

// Config configures a connection.
type Config struct {
	// Bus is "system", "session", or a raw bus address
	// (e.g. "unix:path=/run/dbus/system_bus_socket"). Default "system".
	Bus string

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Conn is a watch.Conn backed by a real D-Bus connection. Signals are
// dispatched to filters in installation order on a dedicated
// goroutine; a filter returning true stops the chain for that message.
type Conn struct {
	conn    *dbus.Conn
	logger  *slog.Logger
	signals chan *dbus.Signal

	mu      sync.Mutex
	filters []watch.FilterFunc
	closed  bool

	done chan struct{}
}

// Connect opens a bus connection and starts the dispatch goroutine.
func Connect(cfg Config) (*Conn, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		conn *dbus.Conn
		err  error
	)
	switch cfg.Bus {
	case "", BusSystem:
		conn, err = dbus.ConnectSystemBus()
	case BusSession:
		conn, err = dbus.ConnectSessionBus()
	default:
		conn, err = dbus.Connect(cfg.Bus)
	}
	if err != nil {
		return nil, fmt.Errorf("dbusconn: connect: %w", err)
	}

	c := &Conn{
		conn:    conn,
		logger:  logger,
		signals: make(chan *dbus.Signal, signalBufferSize),
		done:    make(chan struct{}),
	}
	conn.Signal(c.signals)
	go c.dispatch()
	logger.Debug("bus connected", "unique_name", conn.Names()[0])
	return c, nil
}

// AddFilter installs an inbound signal filter. Filters run in
// installation order on the dispatch goroutine.
func (c *Conn) AddFilter(f watch.FilterFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("dbusconn: connection closed")
	}
	c.filters = append(c.filters, f)
	return nil
}

// AddMatch sends an AddMatch call to the bus daemon with the literal
// rule text and waits for the reply.
func (c *Conn) AddMatch(rule string) error {
	call := c.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule)
	if call.Err != nil {
		return fmt.Errorf("dbusconn: add match %q: %w", rule, call.Err)
	}
	return nil
}

// RemoveMatch sends a RemoveMatch call to the bus daemon with the
// literal rule text and waits for the reply. The text must be
// byte-identical to what AddMatch sent for the daemon to pair them.
func (c *Conn) RemoveMatch(rule string) error {
	call := c.conn.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, rule)
	if call.Err != nil {
		return fmt.Errorf("dbusconn: remove match %q: %w", rule, call.Err)
	}
	return nil
}

// Close removes the signal channel, closes the bus connection, and
// waits for the dispatch goroutine to drain.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.conn.RemoveSignal(c.signals)
	close(c.signals)
	err := c.conn.Close()
	<-c.done
	if err != nil {
		return fmt.Errorf("dbusconn: close: %w", err)
	}
	return nil
}

func (c *Conn) dispatch() {
	defer close(c.done)

	for sig := range c.signals {
		decoded := toSignal(sig)

		c.mu.Lock()
		filters := make([]watch.FilterFunc, len(c.filters))
		copy(filters, c.filters)
		c.mu.Unlock()

		for _, f := range filters {
			if f(decoded) {
				break
			}
		}
	}
}

// toSignal converts a godbus signal to the watch.Signal shape. godbus
// carries interface and member joined as "iface.Member" in Name.
func toSignal(sig *dbus.Signal) *watch.Signal {
	iface, member := splitSignalName(sig.Name)
	return &watch.Signal{
		Sender:    sig.Sender,
		Path:      string(sig.Path),
		Interface: iface,
		Member:    member,
		Body:      sig.Body,
	}
}

func splitSignalName(name string) (iface, member string) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}

// Compile-time interface check.
var _ watch.Conn = (*Conn)(nil)

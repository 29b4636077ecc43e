package network

import (
	"fmt"
	"time"

	"golang.org/x/net/trace"

	tnet "badc0de.net/pkg/go-ragnarok/net"
	"badc0de.net/pkg/go-ragnarok/net/crypt"
	"badc0de.net/pkg/go-ragnarok/net/transport"
)

// Role tells which server a connection talks to. Only gameplay connections
// are ciphered.
type Role int

const (
	RoleLogin Role = iota
	RoleCharSelect
	RoleGameplay
)

func (r Role) String() string {
	switch r {
	case RoleLogin:
		return "login"
	case RoleCharSelect:
		return "char-select"
	case RoleGameplay:
		return "gameplay"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Connection is one transport connection and the state the manager keeps for
// it. All fields are owned by the manager's event loop.
type Connection struct {
	ID   string
	Role Role
	Addr string

	socket transport.Socket
	frames *tnet.Reassembler
	cipher crypt.Cipher

	stopKeepalive func()

	since time.Time

	// Set by deliveries and closes which arrive before the dial completion has
	// been processed on the loop.
	early        []byte
	remoteClosed bool

	closed   bool
	events   trace.EventLog
	finished bool
}

// ConnInfo is a snapshot of a connection for diagnostics.
type ConnInfo struct {
	ID        string
	Role      Role
	Addr      string
	Transport string
	Primary   bool
	Ciphered  bool
	Keepalive bool
	Pending   int
	Since     time.Time
}

func (c *Connection) info(primary bool) ConnInfo {
	ci := ConnInfo{
		ID:        c.ID,
		Role:      c.Role,
		Addr:      c.Addr,
		Primary:   primary,
		Ciphered:  c.cipher != nil,
		Keepalive: c.stopKeepalive != nil,
		Pending:   c.frames.Pending(),
		Since:     c.since,
	}
	if c.socket != nil {
		ci.Transport = c.socket.Kind()
	}
	return ci
}

func (c *Connection) logf(format string, a ...interface{}) {
	if !c.finished {
		c.events.Printf(format, a...)
	}
}

func (c *Connection) errorf(format string, a ...interface{}) {
	if !c.finished {
		c.events.Errorf(format, a...)
	}
}

func (c *Connection) finish() {
	if !c.finished {
		c.finished = true
		c.events.Finish()
	}
}

func (c *Connection) disarmKeepalive() {
	if c.stopKeepalive != nil {
		c.stopKeepalive()
		c.stopKeepalive = nil
	}
}

// Package network is the client's connection manager. It owns the open
// connections, turns their byte streams into dispatched records, sends
// encoded records on the active connection and keeps it alive.
//
// A Manager is driven by a single event loop (see package loop). Transport
// deliveries, dial completions and keepalive ticks are posted to the loop, and
// all Manager methods must be called on it, from inside callbacks or through
// loop.Call. Nothing in this package takes a lock.
package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/net/trace"
	"golang.org/x/time/rate"

	tnet "badc0de.net/pkg/go-ragnarok/net"
	"badc0de.net/pkg/go-ragnarok/net/crypt"
	"badc0de.net/pkg/go-ragnarok/net/packetlen"
	"badc0de.net/pkg/go-ragnarok/net/packets"
	"badc0de.net/pkg/go-ragnarok/net/transport"
)

var (
	// ErrNotInitialized is returned when connecting or sending before Init
	// loaded a packet length table.
	ErrNotInitialized = errors.New("network: packet length table not loaded")
	// ErrNotConnected is returned when there is no active connection.
	ErrNotConnected = errors.New("network: not connected")
)

const (
	DefaultKeepaliveInterval = 10 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
)

// Executor runs callbacks on the event loop. *loop.Loop implements it.
type Executor interface {
	Post(f func()) bool
	// Defer is Post for code already running on the loop; it never blocks.
	Defer(f func())
	Every(period time.Duration, f func()) (stop func())
}

// Options configure a Manager.
type Options struct {
	// Loop is required.
	Loop Executor

	// Transport selects the default transport strategy. Strategy, when set,
	// replaces it.
	Transport transport.Options
	Strategy  transport.Strategy

	// Buckets default to packetlen.Buckets.
	Buckets []packetlen.Bucket

	// NewCipher creates the cipher of each gameplay connection. It defaults to
	// crypt.Nop.
	NewCipher func() (crypt.Cipher, error)

	// PacketDump mirrors every frame sent or received to the log.
	PacketDump bool

	KeepaliveInterval time.Duration
	ConnectTimeout    time.Duration

	// OnDisconnect is called once when the active connection is closed by the
	// remote end or the transport fails.
	OnDisconnect func()
}

// Manager is the connection manager. Create it with New.
type Manager struct {
	opts     Options
	strategy transport.Strategy

	cache    *packetlen.Cache
	table    *packetlen.Table
	registry *packets.Registry

	conns   []*Connection
	primary *Connection

	readNext func(*tnet.Message)

	unknownLog rate.Sometimes
}

// New creates a manager. Init must be called before connecting.
func New(opts Options) (*Manager, error) {
	if opts.Loop == nil {
		return nil, errors.New("network: Options.Loop is required")
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Buckets == nil {
		opts.Buckets = packetlen.Buckets
	}
	if opts.NewCipher == nil {
		opts.NewCipher = func() (crypt.Cipher, error) { return crypt.Nop{}, nil }
	}

	strategy := opts.Strategy
	if len(strategy) == 0 {
		strategy = transport.NewStrategy(opts.Transport)
	}

	return &Manager{
		opts:       opts,
		strategy:   strategy,
		cache:      packetlen.NewCache(opts.Buckets),
		registry:   packets.NewRegistry(),
		unknownLog: rate.Sometimes{First: 10, Interval: 10 * time.Second},
	}, nil
}

// Init loads the packet length table for version, replacing any table loaded
// before. It blocks until the table is ready and must complete before any
// connection is attempted; an unresolvable version is fatal for the session.
func (m *Manager) Init(ctx context.Context, version int) error {
	t, err := m.cache.Load(ctx, version)
	if err != nil {
		return errors.Wrapf(err, "initializing protocol version %d", version)
	}
	m.table = t
	return nil
}

// Length resolves packet lengths through the active table.
func (m *Manager) Length(id uint16) (int, bool) {
	if m.table == nil {
		panic("network: decoding before the packet length table was loaded")
	}
	return m.table.Length(id)
}

// Table returns the active packet length table, or nil before Init.
func (m *Manager) Table() *packetlen.Table {
	return m.table
}

// Register adds or replaces the descriptor of an incoming packet.
func (m *Manager) Register(d packets.Descriptor) {
	m.registry.Register(d)
}

// Subscribe sets the callback of a registered packet. Subscribing to a packet
// that was never registered is a programming error and is reported as such.
func (m *Manager) Subscribe(id uint16, h packets.Handler) error {
	if err := m.registry.Subscribe(id, h); err != nil {
		glog.Errorf("%s", err)
		return err
	}
	return nil
}

// Descriptors lists the registered packets.
func (m *Manager) Descriptors() []packets.Descriptor {
	return m.registry.Descriptors()
}

// ReadNext arms a one-shot raw reader: on the next delivery of the active
// connection, fn reads from the start of the buffered bytes before framing.
func (m *Manager) ReadNext(fn func(*tnet.Message)) {
	m.readNext = fn
}

// Connect opens a connection to host:port in the background. onComplete runs
// on the loop with the outcome. On success the new connection becomes the
// active one.
//
// Connect only returns an error for calls made before Init; transport
// failures are reported through onComplete.
func (m *Manager) Connect(host string, port int, role Role, onComplete func(ok bool)) error {
	if m.table == nil {
		return ErrNotInitialized
	}

	addr := net.JoinHostPort(host, fmt.Sprint(port))
	c := &Connection{
		ID:     uuid.NewString(),
		Role:   role,
		Addr:   addr,
		frames: tnet.NewReassembler(m),
		events: trace.NewEventLog("network.Connection", addr),
	}

	d, err := m.strategy.Select()
	if err != nil {
		glog.Errorf("failed to connect to %s: %s", addr, err)
		c.errorf("%s", err)
		c.finish()
		m.opts.Loop.Defer(func() { onComplete(false) })
		return nil
	}
	glog.V(1).Infof("connecting to %s as %s via %s", addr, role, d.Name())
	c.logf("dialing via %s as %s", d.Name(), role)

	h := transport.Handlers{
		OnMessage: func(b []byte) {
			m.opts.Loop.Post(func() { m.receive(c, b) })
		},
		OnClose: func() {
			m.opts.Loop.Post(func() { m.onClose(c) })
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.ConnectTimeout)
		defer cancel()
		s, err := d.Dial(ctx, host, port, h)
		m.opts.Loop.Post(func() { m.completeConnect(c, s, err, onComplete) })
	}()
	return nil
}

func (m *Manager) completeConnect(c *Connection, s transport.Socket, err error, onComplete func(bool)) {
	if err != nil {
		glog.Errorf("failed to connect to %s: %s", c.Addr, err)
		c.errorf("dial: %s", err)
		c.finish()
		onComplete(false)
		return
	}

	if c.Role == RoleGameplay {
		cipher, err := m.opts.NewCipher()
		if err != nil {
			glog.Errorf("failed to set up cipher for %s: %s", c.Addr, err)
			c.errorf("cipher: %s", err)
			c.closed = true
			c.finish()
			s.Close()
			onComplete(false)
			return
		}
		c.cipher = cipher
	}

	c.socket = s
	c.since = time.Now()
	if m.primary != nil {
		m.primary.disarmKeepalive()
	}
	m.conns = append(m.conns, c)
	m.primary = c

	glog.Infof("connected to %s via %s", c.Addr, s.Kind())
	c.logf("connected via %s", s.Kind())
	onComplete(true)

	if len(c.early) > 0 {
		early := c.early
		c.early = nil
		m.receive(c, early)
	}
	if c.remoteClosed {
		m.onClose(c)
	}
}

func (m *Manager) receive(c *Connection, b []byte) {
	if c.socket == nil {
		c.early = append(c.early, b...)
		return
	}
	if c.closed {
		glog.V(2).Infof("dropping %d bytes received on closed connection %s", len(b), c.Addr)
		return
	}

	c.frames.Write(b)
	if c == m.primary && m.readNext != nil {
		fn := m.readNext
		m.readNext = nil
		c.frames.ReadRaw(fn)
	}
	// A handler closing c resets its frames, which ends this pass.
	c.frames.Frames(func(f tnet.Frame) {
		m.dispatch(c, f)
	})
	if c.closed {
		c.frames.Reset()
	}
}

func (m *Manager) dispatch(c *Connection, f tnet.Frame) {
	desc, h, ok := m.registry.Lookup(f.ID)
	if m.opts.PacketDump {
		glog.Info(tnet.Dump("recv", f.ID, desc.Name, f.Payload))
	}

	if !ok {
		m.unknownLog.Do(func() {
			glog.Errorf("packet 0x%04x not registered, skipping %d bytes", f.ID, f.Length)
		})
		c.logf("skipped unregistered packet 0x%04x (%d bytes)", f.ID, f.Length)
		return
	}
	if desc.Length != tnet.Variable && desc.Length != f.Length {
		glog.V(1).Infof("%s: table length %d differs from registered length %d", desc.Name, f.Length, desc.Length)
	}
	if desc.Decode == nil {
		glog.Errorf("%s (0x%04x) has no decoder, skipping", desc.Name, f.ID)
		return
	}

	rec, err := desc.Decode(tnet.NewMessageFromBytes(f.Payload))
	if err != nil {
		glog.Errorf("decoding %s (0x%04x): %s", desc.Name, f.ID, err)
		c.errorf("decoding %s: %s", desc.Name, err)
		return
	}

	if h == nil {
		glog.V(1).Infof("recv %s (no callback): %+v", desc.Name, rec)
		return
	}
	glog.V(1).Infof("recv %s: %+v", desc.Name, rec)
	h(rec)
}

// SendMessage encodes rec and sends it on the active connection.
func (m *Manager) SendMessage(rec packets.Encoder) error {
	if m.table == nil {
		return ErrNotInitialized
	}
	if m.primary == nil {
		return ErrNotConnected
	}
	b, err := packets.Encode(rec, m)
	if err != nil {
		return err
	}
	if m.opts.PacketDump {
		glog.Info(tnet.Dump("send", rec.PacketID(), fmt.Sprintf("%T", rec), b))
	}
	glog.V(1).Infof("send %T: %+v", rec, rec)
	return m.Send(b)
}

// Send sends an already encoded frame on the active connection, passing it
// through the connection's cipher first. Frames must be sent in order: the
// cipher state advances with every call.
func (m *Manager) Send(b []byte) error {
	c := m.primary
	if c == nil {
		return ErrNotConnected
	}
	if c.cipher != nil {
		b = append([]byte(nil), b...)
		c.cipher.Process(b)
	}
	if err := c.socket.Send(b); err != nil {
		c.errorf("send: %s", err)
		return err
	}
	return nil
}

// SetKeepalive calls fn periodically on the active connection, replacing any
// earlier keepalive. Every other open connection is closed.
func (m *Manager) SetKeepalive(fn func()) error {
	c := m.primary
	if c == nil {
		return ErrNotConnected
	}
	c.disarmKeepalive()
	c.stopKeepalive = m.opts.Loop.Every(m.opts.KeepaliveInterval, fn)
	c.logf("keepalive armed every %s", m.opts.KeepaliveInterval)

	for _, o := range append([]*Connection(nil), m.conns...) {
		if o != c {
			glog.V(1).Infof("closing stale connection to %s", o.Addr)
			m.closeConn(o)
		}
	}
	return nil
}

// Close closes the active connection. No disconnect notification is raised.
func (m *Manager) Close() {
	c := m.primary
	if c == nil {
		return
	}
	m.primary = nil
	m.closeConn(c)
}

// Teardown closes every connection.
func (m *Manager) Teardown() {
	m.primary = nil
	for _, c := range append([]*Connection(nil), m.conns...) {
		m.closeConn(c)
	}
	m.readNext = nil
}

// Connections returns a snapshot of the open connections.
func (m *Manager) Connections() []ConnInfo {
	out := make([]ConnInfo, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c.info(c == m.primary))
	}
	return out
}

func (m *Manager) closeConn(c *Connection) {
	m.remove(c)
	c.closed = true
	c.disarmKeepalive()
	if c.cipher != nil {
		c.cipher.Reset()
	}
	if n := c.frames.Reset(); n > 0 {
		glog.V(2).Infof("discarding %d bytes of partial frame from %s", n, c.Addr)
	}
	c.logf("closed locally")
	if err := c.socket.Close(); err != nil {
		glog.V(2).Infof("closing %s: %s", c.Addr, err)
	}
}

// onClose handles the transport reporting a closed socket.
func (m *Manager) onClose(c *Connection) {
	if c.socket == nil {
		c.remoteClosed = true
		return
	}
	if !m.remove(c) {
		// Closed locally earlier.
		c.finish()
		return
	}

	c.closed = true
	if n := c.frames.Reset(); n > 0 {
		glog.V(2).Infof("discarding %d bytes of partial frame from %s", n, c.Addr)
	}

	if c == m.primary {
		glog.Warningf("disconnected from server %s", c.Addr)
		c.disarmKeepalive()
		if c.cipher != nil {
			c.cipher.Reset()
		}
		m.primary = nil
		if m.opts.OnDisconnect != nil {
			m.opts.OnDisconnect()
		}
	}
	c.logf("closed by transport")
	c.finish()
}

func (m *Manager) remove(c *Connection) bool {
	for i, o := range m.conns {
		if o == c {
			m.conns = append(m.conns[:i], m.conns[i+1:]...)
			return true
		}
	}
	return false
}

// Package transport provides the byte-stream sockets a client can connect
// through, and the fixed priority order in which they are tried.
//
// All variants share one contract: Dial connects and returns a Socket; every
// received chunk is passed to Handlers.OnMessage from the socket's read
// goroutine; Handlers.OnClose is called exactly once when the socket closes,
// whichever side closed it.
package transport

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// ErrNoTransport is returned when no variant is usable in this environment.
var ErrNoTransport = errors.New("transport: no usable transport")

const readBufferSize = 64 * 1024

// Handlers receive socket events. Both are called from the socket's own
// goroutine.
type Handlers struct {
	OnMessage func(b []byte)
	OnClose   func()
}

// Socket is a connected byte stream.
type Socket interface {
	Send(b []byte) error
	Close() error
	// Kind names the variant, e.g. "tcp" or "websocket".
	Kind() string
	RemoteAddr() string
}

// Dialer is one transport variant.
type Dialer interface {
	Name() string
	// Supported probes whether the variant can be used at all.
	Supported() bool
	Dial(ctx context.Context, host string, port int, h Handlers) (Socket, error)
}

// Options configure the default strategy.
type Options struct {
	// HostDial is a dial function provided by an embedding host. When set, it
	// takes precedence over everything else.
	HostDial func(ctx context.Context, network, addr string) (net.Conn, error)
	// DisableNative turns off direct TCP sockets.
	DisableNative bool
	// ProxyURL is a websocket relay endpoint, e.g. "ws://127.0.0.1:5999".
	ProxyURL string
}

// Strategy is an ordered list of variants; the first supported one wins.
type Strategy []Dialer

// NewStrategy returns the variants in priority order: host-provided socket,
// native TCP, websocket relay (only with a proxy endpoint), and finally the
// environment-configured bridge.
func NewStrategy(o Options) Strategy {
	return Strategy{
		&HostDialer{DialFunc: o.HostDial},
		&TCPDialer{Disabled: o.DisableNative},
		&WebSocketDialer{ProxyURL: o.ProxyURL},
		&BridgeDialer{},
	}
}

// Select returns the first supported variant. It is evaluated once per
// connection attempt.
func (s Strategy) Select() (Dialer, error) {
	for _, d := range s {
		if d.Supported() {
			return d, nil
		}
		glog.V(2).Infof("transport %s not supported here", d.Name())
	}
	return nil, ErrNoTransport
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// streamSocket adapts a net.Conn to Socket.
type streamSocket struct {
	kind string
	conn net.Conn
	h    Handlers

	closeOnce sync.Once
}

func newStreamSocket(kind string, conn net.Conn, h Handlers) *streamSocket {
	s := &streamSocket{kind: kind, conn: conn, h: h}
	go s.readLoop()
	return s
}

func (s *streamSocket) readLoop() {
	defer s.closeOnce.Do(s.h.OnClose)

	buf := make([]byte, readBufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			glog.V(3).Infof("%s: received %d bytes", s.kind, n)
			s.h.OnMessage(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			if err != io.EOF {
				glog.V(1).Infof("%s: read from %s: %s", s.kind, s.RemoteAddr(), err)
			}
			return
		}
	}
}

func (s *streamSocket) Send(b []byte) error {
	if _, err := s.conn.Write(b); err != nil {
		return errors.Wrapf(err, "%s: send to %s", s.kind, s.RemoteAddr())
	}
	return nil
}

// Close closes the connection; the read loop then reports OnClose.
func (s *streamSocket) Close() error {
	return s.conn.Close()
}

func (s *streamSocket) Kind() string {
	return s.kind
}

func (s *streamSocket) RemoteAddr() string {
	if a := s.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

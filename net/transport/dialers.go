package transport

import (
	"context"
	"net"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/net/proxy"
)

// HostDialer uses a socket supplied by the embedding host application.
type HostDialer struct {
	DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)
}

func (d *HostDialer) Name() string    { return "host" }
func (d *HostDialer) Supported() bool { return d.DialFunc != nil }

func (d *HostDialer) Dial(ctx context.Context, host string, port int, h Handlers) (Socket, error) {
	conn, err := d.DialFunc(ctx, "tcp", joinHostPort(host, port))
	if err != nil {
		return nil, errors.Wrap(err, "host dial")
	}
	return newStreamSocket(d.Name(), conn, h), nil
}

// TCPDialer opens a native TCP socket.
type TCPDialer struct {
	Disabled bool
}

func (d *TCPDialer) Name() string    { return "tcp" }
func (d *TCPDialer) Supported() bool { return nativeSockets && !d.Disabled }

func (d *TCPDialer) Dial(ctx context.Context, host string, port int, h Handlers) (Socket, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", joinHostPort(host, port))
	if err != nil {
		return nil, errors.Wrap(err, "tcp dial")
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return newStreamSocket(d.Name(), conn, h), nil
}

// BridgeDialer is the last resort: it dials through whatever proxy the
// environment configures (ALL_PROXY, typically a SOCKS5 bridge), or directly
// if none is set.
type BridgeDialer struct{}

func (d *BridgeDialer) Name() string    { return "bridge" }
func (d *BridgeDialer) Supported() bool { return true }

func (d *BridgeDialer) Dial(ctx context.Context, host string, port int, h Handlers) (Socket, error) {
	pd := proxy.FromEnvironment()
	addr := joinHostPort(host, port)

	var (
		conn net.Conn
		err  error
	)
	if cd, ok := pd.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", addr)
	} else {
		glog.V(2).Infof("bridge dialer for %s does not take a context", addr)
		conn, err = pd.Dial("tcp", addr)
	}
	if err != nil {
		return nil, errors.Wrap(err, "bridge dial")
	}
	return newStreamSocket(d.Name(), conn, h), nil
}

// Package login drives a session with a login server: it sends the
// credentials, keeps the connection alive once accepted and reports the
// character server list.
package login

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"badc0de.net/pkg/go-ragnarok/net/packets"
	"badc0de.net/pkg/go-ragnarok/network"
)

// Manager is the part of network.Manager a login session uses.
type Manager interface {
	Register(d packets.Descriptor)
	Subscribe(id uint16, h packets.Handler) error
	Connect(host string, port int, role network.Role, onComplete func(ok bool)) error
	SendMessage(rec packets.Encoder) error
	SetKeepalive(fn func()) error
}

// Result is the outcome of a login attempt. Exactly one of the pointers is
// set, unless Err is.
type Result struct {
	Accepted *AcceptLogin
	Refused  *RefuseLogin
	Banned   *NotifyBan
	Err      error
}

// Client logs into a login server. Like the manager it works on, it must only
// be used from the event loop.
type Client struct {
	m Manager

	Version    uint32
	Username   string
	Password   string
	ClientType uint8

	done func(Result)
}

// NewClient registers the login server records on m and subscribes to them.
func NewClient(m Manager, version uint32, username, password string) (*Client, error) {
	c := &Client{
		m:          m,
		Version:    version,
		Username:   username,
		Password:   password,
		ClientType: 0x16,
	}
	for _, d := range Descriptors() {
		m.Register(d)
	}
	subs := map[uint16]packets.Handler{
		IDAcceptLogin: c.onAccept,
		IDRefuseLogin: c.onRefuse,
		IDNotifyBan:   c.onBan,
	}
	for id, h := range subs {
		if err := m.Subscribe(id, h); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Login connects to host:port and sends the credentials. done is called once
// with the server's answer or the connection failure.
func (c *Client) Login(host string, port int, done func(Result)) error {
	c.done = done
	return c.m.Connect(host, port, network.RoleLogin, func(ok bool) {
		if !ok {
			c.finish(Result{Err: errors.Errorf("could not connect to login server %s:%d", host, port)})
			return
		}
		glog.V(1).Infof("sending credentials of %q", c.Username)
		err := c.m.SendMessage(Login{
			Version:    c.Version,
			Username:   c.Username,
			Password:   c.Password,
			ClientType: c.ClientType,
		})
		if err != nil {
			c.finish(Result{Err: errors.Wrap(err, "sending login")})
		}
	})
}

func (c *Client) onAccept(r packets.Record) {
	a := r.(AcceptLogin)
	glog.Infof("login accepted: account %d, %d servers", a.AccountID, len(a.Servers))
	err := c.m.SetKeepalive(func() {
		if err := c.m.SendMessage(ConnectInfoChanged{Username: c.Username}); err != nil {
			glog.Warningf("login keepalive: %s", err)
		}
	})
	if err != nil {
		glog.Warningf("arming login keepalive: %s", err)
	}
	c.finish(Result{Accepted: &a})
}

func (c *Client) onRefuse(r packets.Record) {
	ref := r.(RefuseLogin)
	glog.Warningf("login refused: %s", ref.Reason())
	c.finish(Result{Refused: &ref})
}

func (c *Client) onBan(r packets.Record) {
	b := r.(NotifyBan)
	glog.Warningf("notified of ban, code %d", b.Code)
	c.finish(Result{Banned: &b})
}

func (c *Client) finish(res Result) {
	if c.done == nil {
		return
	}
	done := c.done
	c.done = nil
	done(res)
}

package login

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"badc0de.net/pkg/go-ragnarok/loop"
	tnet "badc0de.net/pkg/go-ragnarok/net"
	"badc0de.net/pkg/go-ragnarok/net/packetlen"
	"badc0de.net/pkg/go-ragnarok/net/packets"
	"badc0de.net/pkg/go-ragnarok/net/transport"
	"badc0de.net/pkg/go-ragnarok/network"
	"badc0de.net/pkg/go-ragnarok/ttesting"
)

func table(t *testing.T) *packetlen.Table {
	t.Helper()
	tbl, err := packetlen.NewCache(packetlen.Buckets).Load(context.Background(), 20120410)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

// roundTrip encodes rec, reassembles the frame and decodes it with d.
func roundTrip(t *testing.T, rec packets.Encoder, d packets.Decoder) packets.Record {
	t.Helper()
	tbl := table(t)
	b, err := packets.Encode(rec, tbl)
	if err != nil {
		t.Fatal(err)
	}
	var frames []tnet.Frame
	r := tnet.NewReassembler(tbl)
	r.Write(b)
	r.Frames(func(f tnet.Frame) { frames = append(frames, f) })
	if len(frames) != 1 {
		t.Fatalf("got %d frames; want 1", len(frames))
	}
	out, err := d(tnet.NewMessageFromBytes(frames[0].Payload))
	if err != nil {
		t.Fatal(err)
	}
	return out
}

var sampleAccept = AcceptLogin{
	AuthCode:  0x11223344,
	AccountID: 2000000,
	UserLevel: 0,
	LastIP:    0x0100007f,
	LastTime:  "2012-04-10 12:00:00",
	Sex:       1,
	Servers: []ServerEntry{
		{IP: 0x0100007f, Port: 6121, Name: "Local", Users: 12},
		{IP: 0x0a01a8c0, Port: 6122, Name: "Another", Users: 3, Property: 1},
	},
}

func TestLoginLength(t *testing.T) {
	b, err := packets.Encode(Login{Version: 55, Username: "user", Password: "pass", ClientType: 0x16}, table(t))
	if err != nil {
		t.Fatal(err)
	}
	ttesting.AssertEqualInt(t, "frame size", len(b), 2+53)
	ttesting.AssertEqualBytes(t, "header", b[:6], []byte{0x64, 0x00, 55, 0, 0, 0})
	ttesting.AssertEqualString(t, "username", string(b[6:10]), "user")
	ttesting.AssertEqualInt(t, "client type", int(b[54]), 0x16)
}

func TestAcceptLoginRoundTrip(t *testing.T) {
	got := roundTrip(t, sampleAccept, DecodeAcceptLogin).(AcceptLogin)
	ttesting.AssertEqualUint32(t, "account", got.AccountID, 2000000)
	ttesting.AssertEqualString(t, "last time", got.LastTime, sampleAccept.LastTime)
	ttesting.AssertEqualInt(t, "servers", len(got.Servers), 2)
	ttesting.AssertEqualString(t, "name", got.Servers[1].Name, "Another")
	ttesting.AssertEqualString(t, "addr", got.Servers[1].Addr(), "192.168.1.10:6122")
	ttesting.AssertEqualString(t, "first addr", got.Servers[0].Addr(), "127.0.0.1:6121")
}

func TestAcceptLoginBadServerList(t *testing.T) {
	msg := tnet.NewMessage()
	if err := sampleAccept.Encode(msg); err != nil {
		t.Fatal(err)
	}
	msg.WriteByte(0)
	if _, err := DecodeAcceptLogin(msg); err == nil {
		t.Errorf("got nil error for a truncated server entry")
	}
	if _, err := DecodeAcceptLogin(tnet.NewMessageFromBytes(make([]byte, 10))); err == nil {
		t.Errorf("got nil error for a truncated header")
	}
}

func TestRefuseLogin(t *testing.T) {
	got := roundTrip(t, RefuseLogin{Code: 6, BlockDate: "2030-01-01"}, DecodeRefuseLogin).(RefuseLogin)
	ttesting.AssertEqualString(t, "reason", got.Reason(), "account blocked until 2030-01-01")
	ttesting.AssertEqualString(t, "known", RefuseLogin{Code: 1}.Reason(), "incorrect password")
	ttesting.AssertEqualString(t, "unknown", RefuseLogin{Code: 42}.Reason(), "refused with code 42")
}

func TestNotifyBan(t *testing.T) {
	got := roundTrip(t, NotifyBan{Code: 2}, DecodeNotifyBan).(NotifyBan)
	ttesting.AssertEqualInt(t, "code", int(got.Code), 2)
}

func TestDescriptorsMatchTable(t *testing.T) {
	tbl := table(t)
	for _, d := range Descriptors() {
		n, ok := tbl.Length(d.ID)
		if !ok {
			t.Errorf("%s missing from the table", d.Name)
			continue
		}
		ttesting.AssertEqualInt(t, d.Name, d.Length, n)
	}
	b, err := packets.Encode(ConnectInfoChanged{Username: "user"}, tbl)
	if err != nil {
		t.Fatal(err)
	}
	ttesting.AssertEqualInt(t, "keepalive frame", len(b), 2+24)
}

// serveLogin answers one CA_LOGIN on conn with the encoded frame resp.
func serveLogin(t *testing.T, conn net.Conn, resp []byte) {
	req := make([]byte, 2+53)
	if _, err := io.ReadFull(conn, req); err != nil {
		t.Errorf("reading CA_LOGIN: %v", err)
		return
	}
	if req[0] != 0x64 || req[1] != 0x00 {
		t.Errorf("got packet %x; want CA_LOGIN", req[:2])
	}
	conn.Write(resp)
}

func encode(t *testing.T, rec packets.Encoder) []byte {
	t.Helper()
	b, err := packets.Encode(rec, table(t))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func startManager(t *testing.T, server chan<- net.Conn) (*loop.Loop, *network.Manager) {
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)

	m, err := network.New(network.Options{
		Loop:              l,
		KeepaliveInterval: time.Hour,
		Transport: transport.Options{
			HostDial: func(context.Context, string, string) (net.Conn, error) {
				c, s := net.Pipe()
				server <- s
				return c, nil
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Init(context.Background(), 20120410); err != nil {
		t.Fatal(err)
	}
	return l, m
}

func TestClientAccepted(t *testing.T) {
	server := make(chan net.Conn, 1)
	l, m := startManager(t, server)

	results := make(chan Result, 1)
	var err error
	l.Call(func() {
		var c *Client
		if c, err = NewClient(m, 55, "user", "pass"); err != nil {
			return
		}
		err = c.Login("127.0.0.1", 6900, func(r Result) { results <- r })
	})
	if err != nil {
		t.Fatal(err)
	}

	conn := <-server
	defer conn.Close()
	go serveLogin(t, conn, encode(t, sampleAccept))

	select {
	case r := <-results:
		if r.Accepted == nil {
			t.Fatalf("got %+v; want accepted", r)
		}
		ttesting.AssertEqualInt(t, "servers", len(r.Accepted.Servers), 2)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the login result")
	}

	var conns []network.ConnInfo
	l.Call(func() { conns = m.Connections() })
	if len(conns) != 1 || !conns[0].Keepalive {
		t.Errorf("got %+v; want the login connection kept alive", conns)
	}
}

func TestClientRefused(t *testing.T) {
	server := make(chan net.Conn, 1)
	l, m := startManager(t, server)

	results := make(chan Result, 1)
	l.Call(func() {
		c, err := NewClient(m, 55, "user", "wrong")
		if err != nil {
			t.Error(err)
			return
		}
		c.Login("127.0.0.1", 6900, func(r Result) { results <- r })
	})

	conn := <-server
	defer conn.Close()
	go serveLogin(t, conn, encode(t, RefuseLogin{Code: 1}))

	select {
	case r := <-results:
		if r.Refused == nil || r.Refused.Code != 1 {
			t.Errorf("got %+v; want refused with code 1", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the login result")
	}
}

func TestClientConnectFailure(t *testing.T) {
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	m, err := network.New(network.Options{
		Loop: l,
		Transport: transport.Options{
			HostDial: func(context.Context, string, string) (net.Conn, error) {
				return nil, io.ErrClosedPipe
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Init(context.Background(), 20120410); err != nil {
		t.Fatal(err)
	}

	results := make(chan Result, 1)
	l.Call(func() {
		c, err := NewClient(m, 55, "user", "pass")
		if err != nil {
			t.Error(err)
			return
		}
		c.Login("127.0.0.1", 6900, func(r Result) { results <- r })
	})
	select {
	case r := <-results:
		if r.Err == nil {
			t.Errorf("got %+v; want an error", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the login result")
	}
}

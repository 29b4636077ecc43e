package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// WebSocketDialer tunnels the stream through a websocket relay. The relay is
// told the destination in the request path: ProxyURL + "/host:port".
type WebSocketDialer struct {
	ProxyURL string

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

func (d *WebSocketDialer) Name() string    { return "websocket" }
func (d *WebSocketDialer) Supported() bool { return d.ProxyURL != "" }

func (d *WebSocketDialer) Dial(ctx context.Context, host string, port int, h Handlers) (Socket, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	u := fmt.Sprintf("%s/%s", strings.TrimRight(d.ProxyURL, "/"), joinHostPort(host, port))
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "websocket dial %s", u)
	}
	glog.V(1).Infof("websocket: relaying through %s", u)

	s := &wsSocket{conn: conn, h: h}
	go s.readLoop()
	return s, nil
}

type wsSocket struct {
	conn *websocket.Conn
	h    Handlers

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *wsSocket) readLoop() {
	defer s.closeOnce.Do(s.h.OnClose)
	for {
		_, b, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.V(1).Infof("websocket: read from %s: %s", s.RemoteAddr(), err)
			}
			return
		}
		if len(b) > 0 {
			glog.V(3).Infof("websocket: received %d bytes", len(b))
			s.h.OnMessage(b)
		}
	}
}

func (s *wsSocket) Send(b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return errors.Wrapf(err, "websocket: send to %s", s.RemoteAddr())
	}
	return nil
}

func (s *wsSocket) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}

func (s *wsSocket) Kind() string {
	return "websocket"
}

func (s *wsSocket) RemoteAddr() string {
	if a := s.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

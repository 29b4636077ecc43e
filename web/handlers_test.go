package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tnet "badc0de.net/pkg/go-ragnarok/net"
	"badc0de.net/pkg/go-ragnarok/net/packetlen"
	"badc0de.net/pkg/go-ragnarok/net/packets"
	"badc0de.net/pkg/go-ragnarok/network"
	"badc0de.net/pkg/go-ragnarok/ttesting"
)

type fakeSource struct {
	conns []network.ConnInfo
	descs []packets.Descriptor
	table *packetlen.Table
}

func (s *fakeSource) Connections() []network.ConnInfo   { return s.conns }
func (s *fakeSource) Descriptors() []packets.Descriptor { return s.descs }
func (s *fakeSource) Table() *packetlen.Table           { return s.table }

type direct struct{ stopped bool }

func (d direct) Call(f func()) bool {
	if d.stopped {
		return false
	}
	f()
	return true
}

func newServer(t *testing.T, src Source, exec Caller) *httptest.Server {
	srv := httptest.NewServer(NewHandler(src, exec).Router())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func sampleSource() *fakeSource {
	return &fakeSource{
		conns: []network.ConnInfo{{
			ID:        "c1",
			Role:      network.RoleGameplay,
			Addr:      "127.0.0.1:5121",
			Transport: "tcp",
			Primary:   true,
			Ciphered:  true,
			Since:     time.Now().Add(-time.Minute),
		}},
		descs: []packets.Descriptor{
			{ID: 0x0069, Name: "AC_ACCEPT_LOGIN", Length: tnet.Variable},
			{ID: 0x0999, Name: "UNKNOWN_TO_TABLE", Length: 3},
		},
		table: packetlen.NewTable(20120410, 20120000, map[uint16]int{0x0069: tnet.Variable}),
	}
}

func TestConnections(t *testing.T) {
	srv := newServer(t, sampleSource(), direct{})
	var got []map[string]interface{}
	ttesting.AssertEqualInt(t, "status", get(t, srv, "/debug/connections", &got), http.StatusOK)
	ttesting.AssertEqualInt(t, "count", len(got), 1)
	ttesting.AssertEqualString(t, "role", got[0]["Role"].(string), "gameplay")
	ttesting.AssertEqualString(t, "age", got[0]["Age"].(string), "1m0s")
}

func TestPackets(t *testing.T) {
	srv := newServer(t, sampleSource(), direct{})
	var got []packetJSON
	ttesting.AssertEqualInt(t, "status", get(t, srv, "/debug/packets", &got), http.StatusOK)
	ttesting.AssertEqualInt(t, "count", len(got), 2)
	ttesting.AssertEqualString(t, "id", got[0].ID, "0x0069")
	if got[0].TableLength == nil || *got[0].TableLength != tnet.Variable {
		t.Errorf("got table length %v; want variable", got[0].TableLength)
	}
	if got[1].TableLength != nil {
		t.Errorf("got table length %d for an id unknown to the table", *got[1].TableLength)
	}
}

func TestPacket(t *testing.T) {
	srv := newServer(t, sampleSource(), direct{})
	var got packetJSON
	ttesting.AssertEqualInt(t, "status", get(t, srv, "/debug/packets/0069", &got), http.StatusOK)
	ttesting.AssertEqualString(t, "name", got.Name, "AC_ACCEPT_LOGIN")
	ttesting.AssertEqualInt(t, "not registered", get(t, srv, "/debug/packets/0070", nil), http.StatusNotFound)
	ttesting.AssertEqualInt(t, "too wide", get(t, srv, "/debug/packets/10000", nil), http.StatusBadRequest)
}

func TestTable(t *testing.T) {
	src := sampleSource()
	srv := newServer(t, src, direct{})
	var got tableJSON
	ttesting.AssertEqualInt(t, "status", get(t, srv, "/debug/table", &got), http.StatusOK)
	ttesting.AssertEqualInt(t, "version", got.Version, 20120410)
	ttesting.AssertEqualInt(t, "known", got.Known, 1)

	src.table = nil
	ttesting.AssertEqualInt(t, "not loaded", get(t, srv, "/debug/table", nil), http.StatusNotFound)
}

func TestStoppedClient(t *testing.T) {
	srv := newServer(t, sampleSource(), direct{stopped: true})
	ttesting.AssertEqualInt(t, "status", get(t, srv, "/debug/connections", nil), http.StatusServiceUnavailable)
}

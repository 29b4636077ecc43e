// Package web serves debug pages describing the state of a running client.
package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/net/trace"

	"badc0de.net/pkg/go-ragnarok/net/packetlen"
	"badc0de.net/pkg/go-ragnarok/net/packets"
	"badc0de.net/pkg/go-ragnarok/network"
)

// Source is the state a Handler reports on. *network.Manager implements it.
type Source interface {
	Connections() []network.ConnInfo
	Descriptors() []packets.Descriptor
	Table() *packetlen.Table
}

// Caller runs a function on the goroutine owning the Source and waits for it.
// *loop.Loop implements it.
type Caller interface {
	Call(f func()) bool
}

type Handler struct {
	src  Source
	exec Caller
}

// NewHandler constructs the debug handler. Every read of src goes through
// exec.
func NewHandler(src Source, exec Caller) *Handler {
	return &Handler{src: src, exec: exec}
}

type connectionJSON struct {
	network.ConnInfo
	Age string
}

type packetJSON struct {
	ID          string
	Name        string
	Length      int
	TableLength *int `json:",omitempty"`
}

type tableJSON struct {
	Version   int
	Threshold int
	Known     int
}

// snapshot copies out of the source on its own goroutine.
func (h *Handler) snapshot(f func()) bool {
	return h.exec.Call(f)
}

func (h *Handler) connectionsHandler(w http.ResponseWriter, r *http.Request) {
	var conns []network.ConnInfo
	if !h.snapshot(func() { conns = h.src.Connections() }) {
		http.Error(w, "client stopped", http.StatusServiceUnavailable)
		return
	}

	now := time.Now()
	out := make([]connectionJSON, 0, len(conns))
	for _, c := range conns {
		out = append(out, connectionJSON{ConnInfo: c, Age: now.Sub(c.Since).Truncate(time.Second).String()})
	}
	writeJSON(w, out)
}

func (h *Handler) packetsHandler(w http.ResponseWriter, r *http.Request) {
	var descs []packets.Descriptor
	var table *packetlen.Table
	if !h.snapshot(func() {
		descs = h.src.Descriptors()
		table = h.src.Table()
	}) {
		http.Error(w, "client stopped", http.StatusServiceUnavailable)
		return
	}

	out := make([]packetJSON, 0, len(descs))
	for _, d := range descs {
		out = append(out, describe(d, table))
	}
	writeJSON(w, out)
}

func (h *Handler) packetHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 16, 16)
	if err != nil {
		http.Error(w, "id not a 16 bit hex number", http.StatusBadRequest)
		return
	}

	var descs []packets.Descriptor
	var table *packetlen.Table
	if !h.snapshot(func() {
		descs = h.src.Descriptors()
		table = h.src.Table()
	}) {
		http.Error(w, "client stopped", http.StatusServiceUnavailable)
		return
	}

	for _, d := range descs {
		if d.ID == uint16(id) {
			writeJSON(w, describe(d, table))
			return
		}
	}
	http.Error(w, fmt.Sprintf("packet 0x%04x not registered", id), http.StatusNotFound)
}

func (h *Handler) tableHandler(w http.ResponseWriter, r *http.Request) {
	var table *packetlen.Table
	if !h.snapshot(func() { table = h.src.Table() }) {
		http.Error(w, "client stopped", http.StatusServiceUnavailable)
		return
	}
	if table == nil {
		http.Error(w, "packet length table not loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, tableJSON{Version: table.Version, Threshold: table.Threshold, Known: table.Len()})
}

func describe(d packets.Descriptor, table *packetlen.Table) packetJSON {
	p := packetJSON{ID: fmt.Sprintf("0x%04x", d.ID), Name: d.Name, Length: d.Length}
	if table != nil {
		if n, ok := table.Length(d.ID); ok {
			p.TableLength = &n
		}
	}
	return p
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		glog.V(1).Infof("writing debug response: %s", err)
	}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/debug/connections", h.connectionsHandler)
	r.HandleFunc("/debug/packets", h.packetsHandler)
	r.HandleFunc("/debug/packets/{id:[0-9a-fA-F]+}", h.packetHandler)
	r.HandleFunc("/debug/table", h.tableHandler)
	r.HandleFunc("/debug/requests", trace.Traces)
	r.HandleFunc("/debug/events", trace.Events)
}

// Router returns every debug route behind an access log written to glog.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return handlers.LoggingHandler(glogWriter{}, r)
}

// glogWriter adapts glog to the io.Writer access logs are written to.
type glogWriter struct{}

var _ io.Writer = glogWriter{}

func (glogWriter) Write(p []byte) (int, error) {
	glog.V(1).Infof("%s", p)
	return len(p), nil
}

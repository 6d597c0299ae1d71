// Package web serves the daemon's diagnostic status page and its JSON form.
// It only reads the status tracker and never touches the control loop.
package web

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sweeney/keypad-sync/internal/status"
)

// Server exposes a status.Tracker over HTTP.
type Server struct {
	srv     *http.Server
	tracker *status.Tracker
}

// New creates a Server for addr. Nothing listens until ListenAndServe or
// Serve is called.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	page := readOnly(s.page)
	mux.Handle("/", page)
	mux.Handle("/index.html", page)
	mux.Handle("/index.json", readOnly(s.json))
	return mux
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// readOnly admits GET and HEAD only. Responses are live snapshots and are
// marked no-store.
func readOnly(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		h(w, r)
	})
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	var buf bytes.Buffer
	if err := renderHTML(&buf, s.tracker.Snapshot()); err != nil {
		http.Error(w, "render status: "+err.Error(), http.StatusInternalServerError)
		return
	}
	write(w, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) json(w http.ResponseWriter, r *http.Request) {
	write(w, "application/json", status.FormatJSON(s.tracker.Snapshot()))
}

func write(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Write(body)
}

// Package server exposes the range matcher, the hostname gate and full
// compatibility reports over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ipshipyard/sitecheck/cache"
	"github.com/ipshipyard/sitecheck/cidr"
	"github.com/ipshipyard/sitecheck/compat"
	"github.com/ipshipyard/sitecheck/denylist"
)

var log = logging.Logger("sitecheck/server")

const shutdownTimeout = 5 * time.Second

// Server is the sitecheck HTTP API.
type Server struct {
	gate    *compat.HostnameGate
	lists   *denylist.Manager
	clients *denylist.Manager
	runner  *compat.Runner
	cache   *cache.Cache

	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithGate replaces the default hostname gate.
func WithGate(g *compat.HostnameGate) Option {
	return func(s *Server) { s.gate = g }
}

// WithLists exposes the operator lists on /v1/lists.
func WithLists(m *denylist.Manager) Option {
	return func(s *Server) { s.lists = m }
}

// WithClientLists rejects API requests from denied client addresses.
// X-Forwarded-For is honoured, so put the server behind a proxy that
// overwrites it.
func WithClientLists(m *denylist.Manager) Option {
	return func(s *Server) { s.clients = m }
}

// WithRunner enables /v1/report.
func WithRunner(r *compat.Runner) Option {
	return func(s *Server) { s.runner = r }
}

// WithCache caches /v1/report results.
func WithCache(c *cache.Cache) Option {
	return func(s *Server) { s.cache = c }
}

func New(opts ...Option) *Server {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}
	if s.gate == nil {
		s.gate = compat.NewHostnameGate(compat.WithLists(s.lists))
	}
	initMetrics()

	r := mux.NewRouter()
	r.HandleFunc("/v1/range", s.handleRange).Methods(http.MethodGet)
	r.HandleFunc("/v1/hostname", s.handleHostname).Methods(http.MethodGet)
	r.HandleFunc("/v1/report", s.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/v1/lists", s.handleLists).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Use(withRequestMetrics, withClientLists(s.clients))

	s.handler = r
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

// Serve serves the API on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("HTTP API listener at %s", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

type errorResponse struct {
	Error string `json:"error"`
}

type rangeResponse struct {
	InRange bool `json:"in_range"`
}

type hostnameResponse struct {
	Hostname   string      `json:"hostname"`
	Compatible bool        `json:"compatible"`
	Code       compat.Code `json:"code,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

type reportResponse struct {
	compat.Report
	Compatible bool `json:"compatible"`
	Cached     bool `json:"cached"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("writing response: %v", err)
	}
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mask, err := strconv.Atoi(q.Get("mask"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "mask must be an integer"})
		return
	}
	in, err := cidr.InRange(q.Get("ip"), q.Get("subnet"), mask)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rangeResponse{InRange: in})
}

func (s *Server) handleHostname(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hostname, port := q.Get("hostname"), q.Get("port")
	if hostname == "" {
		hostname = r.Host
		if h, p, err := net.SplitHostPort(r.Host); err == nil {
			hostname, port = h, p
		}
	}

	resp := hostnameResponse{Hostname: hostname, Compatible: true}
	if err := s.gate.Check(hostname, port); err != nil {
		resp.Compatible = false
		resp.Code, _ = compat.CodeOf(err)
		resp.Reason = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no site configured"})
		return
	}
	var refresh bool
	if v := r.URL.Query().Get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "refresh must be a boolean"})
			return
		}
		refresh = b
	}
	ctx := r.Context()
	site := s.runner.Site()

	if s.cache != nil && !refresh {
		report, ok, err := s.cache.Get(ctx, site)
		if err != nil {
			log.Warnf("report cache: %v", err)
		}
		if ok {
			writeJSON(w, http.StatusOK, reportResponse{Report: report, Compatible: report.Compatible(), Cached: true})
			return
		}
	}

	report := s.runner.Run(ctx)
	if s.cache != nil && ctx.Err() == nil {
		if err := s.cache.Put(ctx, site, report); err != nil {
			log.Warnf("report cache: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, reportResponse{Report: report, Compatible: report.Compatible()})
}

func (s *Server) handleLists(w http.ResponseWriter, r *http.Request) {
	lists := s.lists.Lists()
	if lists == nil {
		lists = []denylist.ListInfo{}
	}
	writeJSON(w, http.StatusOK, lists)
}

// Package webserver hosts the ingestion endpoint, the REST read API and
// the WebSocket broadcast endpoint.
package webserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pulseboard/pulseboard/internal/hub"
	"github.com/pulseboard/pulseboard/internal/ingest"
	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/internal/store"
)

// Options configures web server behavior.
type Options struct {
	Host      string
	Port      int
	TLSMode   string // "", "self-signed" or "custom"
	CertFile  string
	KeyFile   string
	Password  string // WebSocket handshake credential; empty disables the handshake
	AuthToken string // REST bearer token; empty disables REST auth
	RateLimit float64

	// Notifier, when set, receives every notification alongside the
	// WebSocket hub (push alerts and the like).
	Notifier ingest.Notifier
}

// Server wires the store, the ingestion processor and the client hub
// behind one HTTP listener.
type Server struct {
	store      *store.Store
	hub        *hub.Hub
	processor  *ingest.Processor
	httpServer *http.Server
	host       string
	port       int
	tlsMode    string
	certFile   string
	keyFile    string
	password   string
	authToken  string
	rateLimit  float64
}

func New(st *store.Store, h *hub.Hub, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "127.0.0.1"
	}

	port := opts.Port
	if port < 0 {
		port = 0
	}

	var notifier ingest.Notifier = h
	if opts.Notifier != nil {
		notifier = ingest.MultiNotifier{h, opts.Notifier}
	}

	srv := &Server{
		store:     st,
		hub:       h,
		processor: ingest.NewProcessor(st, notifier),
		host:      host,
		port:      port,
		tlsMode:   strings.TrimSpace(opts.TLSMode),
		certFile:  strings.TrimSpace(opts.CertFile),
		keyFile:   strings.TrimSpace(opts.KeyFile),
		password:  opts.Password,
		authToken: strings.TrimSpace(opts.AuthToken),
		rateLimit: opts.RateLimit,
	}

	mux := http.NewServeMux()
	srv.setupRoutes(mux)

	handler := corsMiddleware(logMiddleware(rateLimitMiddleware(srv.rateLimit, authMiddleware(srv.authToken, mux))))
	srv.httpServer = &http.Server{
		Addr:              srv.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv
}

// Handler exposes the full middleware chain for tests.
func (srv *Server) Handler() http.Handler {
	return srv.httpServer.Handler
}

// Start starts the server in a background goroutine and returns once
// the listener is bound, so Addr reports the real port even when 0 was
// requested.
func (srv *Server) Start() error {
	if srv.httpServer == nil {
		return fmt.Errorf("webserver not initialized")
	}

	if srv.tlsMode != "" {
		var cert tls.Certificate
		var err error

		switch srv.tlsMode {
		case "self-signed":
			cert, err = generateSelfSignedCert(srv.host)
			if err != nil {
				return fmt.Errorf("generating self-signed certificate: %w", err)
			}
		case "custom":
			cert, err = tls.LoadX509KeyPair(srv.certFile, srv.keyFile)
			if err != nil {
				return fmt.Errorf("loading TLS certificate: %w", err)
			}
		default:
			return fmt.Errorf("unsupported TLS mode: %q", srv.tlsMode)
		}

		srv.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}

	ln, err := net.Listen("tcp", srv.Addr())
	if err != nil {
		return err
	}

	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		srv.port = tcpAddr.Port
		srv.httpServer.Addr = srv.Addr()
	}

	go func() {
		var err error
		if srv.tlsMode != "" {
			err = srv.httpServer.ServeTLS(ln, "", "")
		} else {
			err = srv.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger.Error("server stopped with error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully stops the HTTP server.
func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.httpServer == nil {
		return nil
	}
	return srv.httpServer.Shutdown(ctx)
}

// Addr returns the bound host:port address.
func (srv *Server) Addr() string {
	return net.JoinHostPort(srv.host, strconv.Itoa(srv.port))
}

// Scheme returns the URL scheme for the running server.
func (srv *Server) Scheme() string {
	if srv.tlsMode != "" {
		return "https"
	}
	return "http"
}

func (srv *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/events", srv.handleIngest)

	mux.HandleFunc("GET /api/sessions", srv.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", srv.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", srv.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/timeline", srv.handleSessionTimeline)
	mux.HandleFunc("GET /api/instances", srv.handleListInstances)
	mux.HandleFunc("GET /api/stats/usage", srv.handleUsageStats)

	mux.HandleFunc("GET /ws", srv.handleWebSocket)

	mux.HandleFunc("/api/{rest...}", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

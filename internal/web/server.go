// Package web serves the time console: the snapshot API, a websocket push
// channel, recent logs, metrics and health endpoints, and the embedded page.
package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ntpzones/ntpzones/internal/logger"
	"github.com/ntpzones/ntpzones/internal/report"
	"github.com/ntpzones/ntpzones/pkg/health"
)

//go:embed static/*
var staticFiles embed.FS

const (
	defaultPushInterval = 20 * time.Second
	defaultLogLines     = 100
	maxLogLines         = 1000

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// SnapshotFunc produces a fresh snapshot for one request
type SnapshotFunc func(ctx context.Context) report.Snapshot

// Server provides the web console HTTP server
type Server struct {
	addr         string
	password     string
	pushInterval time.Duration
	snapshot     SnapshotFunc
	metrics      http.Handler
	health       *health.Monitor
	log          *logger.Logger

	mux      *http.ServeMux
	server   *http.Server
	upgrader websocket.Upgrader

	stopOnce sync.Once
	stopCh   chan struct{}
}

// ServerConfig configures the web server
type ServerConfig struct {
	Addr         string
	Password     string        // Empty disables basic auth
	PushInterval time.Duration // Websocket refresh, default 20s
	Snapshot     SnapshotFunc
	Metrics      http.Handler    // Optional /metrics handler
	Health       *health.Monitor // Serves /healthz and /readyz; Snapshot is expected to feed it
	Logger       *logger.Logger
}

// NewServer creates a new web server
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		addr:         cfg.Addr,
		password:     cfg.Password,
		pushInterval: cfg.PushInterval,
		snapshot:     cfg.Snapshot,
		metrics:      cfg.Metrics,
		health:       cfg.Health,
		log:          cfg.Logger,
		mux:          http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		stopCh: make(chan struct{}),
	}
	if s.pushInterval <= 0 {
		s.pushInterval = defaultPushInterval
	}
	if s.health == nil {
		s.health = health.NewMonitor()
	}
	if s.log == nil {
		s.log = logger.Default()
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API routes (auth when a password is configured)
	s.mux.HandleFunc("/api/times", s.authMiddleware(s.handleTimes))
	s.mux.HandleFunc("/api/logs", s.authMiddleware(s.handleLogs))
	s.mux.HandleFunc("/ws/times", s.authMiddleware(s.handleTimesWS))

	// Probes and scraping (no auth)
	s.mux.HandleFunc("/healthz", s.health.HealthHandler)
	s.mux.HandleFunc("/readyz", s.health.ReadyHandler)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics)
	}

	staticFS, _ := fs.Sub(staticFiles, "static")
	fileServer := http.FileServer(http.FS(staticFS))
	s.mux.HandleFunc("/", s.authMiddleware(fileServer.ServeHTTP))
}

// GetMux returns the route multiplexer
func (s *Server) GetMux() http.Handler {
	return s.requestID(s.mux)
}

// Start starts the web server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.GetMux(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("Web console listening", "addr", s.addr, "auth", s.password != "")
	return s.server.ListenAndServe()
}

// Stop closes websocket streams and shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Middleware

func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.password == "" {
			next(w, r)
			return
		}
		_, password, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="NTP Zones"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// requestID tags every request so console actions can be matched to log lines
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		s.log.Debug("HTTP request", "id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// API Handlers

func (s *Server) handleTimes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Source failures are part of the document, so this is always 200
	snap := s.snapshot(r.Context())
	writeJSON(w, snap)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	n := defaultLogLines
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = min(v, maxLogLines)
	}

	entries := logger.GetRecentLogs(n)
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, e := range entries {
			fmt.Fprintln(w, logger.FormatEntry(e))
		}
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleTimesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	clientID := uuid.New().String()
	s.log.Info("Websocket client connected", "client", clientID, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	go s.readPump(conn, cancel)
	s.pushLoop(ctx, conn, clientID)
	cancel()
	_ = conn.Close()

	s.log.Info("Websocket client disconnected", "client", clientID)
}

// readPump drains client frames so control messages are processed, and
// cancels the stream once the client goes away
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Websocket closed unexpectedly", "error", err)
			}
			return
		}
	}
}

// pushLoop is the only writer on conn
func (s *Server) pushLoop(ctx context.Context, conn *websocket.Conn, clientID string) {
	push := time.NewTicker(s.pushInterval)
	defer push.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := s.pushSnapshot(ctx, conn); err != nil {
		s.log.Debug("Websocket push failed", "client", clientID, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-push.C:
			if err := s.pushSnapshot(ctx, conn); err != nil {
				s.log.Debug("Websocket push failed", "client", clientID, "error", err)
				return
			}
		}
	}
}

func (s *Server) pushSnapshot(ctx context.Context, conn *websocket.Conn) error {
	data, err := json.Marshal(s.snapshot(ctx))
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encode response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// Package gateway exposes a local HTTP + WebSocket control surface: health
// and session listings over HTTP, plus a WebSocket chat endpoint that acts
// as a regular conversation channel.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voidlock/squire/internal/channel"
	"github.com/voidlock/squire/internal/config"
	"github.com/voidlock/squire/internal/domain"
	"github.com/voidlock/squire/internal/logging"
	"github.com/voidlock/squire/internal/relay"
	"github.com/voidlock/squire/internal/version"
)

// Server is the squire gateway. It doubles as a domain.Channel ("gateway")
// so WebSocket chats flow through the same orchestrator and streamer as
// any other channel.
type Server struct {
	cfg      config.GatewayConfig
	log      *logging.Logger
	sessions relay.SessionStore
	channels *channel.Registry
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	onMention func(ev domain.MentionEvent)
	onReset   func(ev domain.MentionEvent)
	conns     map[string]*wsConn
	running   bool

	startedAt  time.Time
	httpServer *http.Server
}

// New creates a gateway server. sessions and channels feed the status
// endpoints and may not be nil.
func New(cfg config.GatewayConfig, sessions relay.SessionStore, channels *channel.Registry, log *logging.Logger) *Server {
	return &Server{
		cfg:      cfg,
		log:      log.Sub("gateway"),
		sessions: sessions,
		channels: channels,
		conns:    make(map[string]*wsConn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (s *Server) ID() string { return "gateway" }

func (s *Server) OnMention(handler func(ev domain.MentionEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMention = handler
}

func (s *Server) OnReset(handler func(ev domain.MentionEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReset = handler
}

// Status reports the gateway's channel status.
func (s *Server) Status() domain.ChannelStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: "gateway",
		Connected: s.running,
		Running:   s.running,
	}
}

// Send delivers one outbound chunk to the WebSocket client identified by
// msg.To.
func (s *Server) Send(ctx context.Context, msg domain.OutboundMessage) error {
	s.mu.RLock()
	conn := s.conns[msg.To]
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("gateway: no such connection: %s", msg.To)
	}
	return conn.write(chatFrame{Type: "message", Body: msg.Body})
}

// Handler returns the HTTP handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /api/sessions", s.requireToken(http.HandlerFunc(s.handleSessions)))
	mux.Handle("GET /api/channels", s.requireToken(http.HandlerFunc(s.handleChannels)))
	mux.Handle("GET /api/chat", s.requireToken(http.HandlerFunc(s.handleChat)))
	return withMiddleware(mux, s.log)
}

// Start begins listening. It blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := s.bindAddr()

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Msg("gateway listening")

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	conns := make([]*wsConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) bindAddr() string {
	host := "127.0.0.1"
	if s.cfg.Bind == "lan" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, s.cfg.Port)
}

// requireToken enforces bearer-token auth. The token may also arrive as a
// query parameter for WebSocket clients that cannot set headers.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
		if s.cfg.Auth.Token == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Auth.Token)) != 1 {
			s.log.Warn().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).Msg("unauthorized request")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	startedAt := s.startedAt
	s.mu.RUnlock()

	uptime := time.Duration(0)
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"version":       version.Version,
		"uptimeSeconds": int(uptime.Seconds()),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.Snapshot()
	if sessions == nil {
		sessions = []domain.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"channels": s.channels.Status()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

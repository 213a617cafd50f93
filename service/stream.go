package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/c360/eventrouter/routing"
)

// streamBuffer is the per-client decision backlog; slow consumers drop
// the oldest entries rather than stall dispatch.
const streamBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Introspection surface, same-origin policy is the deployment's concern
	CheckOrigin: func(*http.Request) bool { return true },
}

// IntrospectionServer serves the engine's read-side HTTP surface:
// rules, audit log, decisions, paths, impact estimates, and a
// websocket stream of live routing decisions.
type IntrospectionServer struct {
	engine *routing.Engine
	port   int
	limit  rate.Limit
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	server  *http.Server
}

type streamClient struct {
	conn    *websocket.Conn
	send    chan routing.RoutingDecision
	limiter *rate.Limiter
}

// NewIntrospectionServer creates the introspection server. perSecond
// throttles how many decisions each stream client receives.
func NewIntrospectionServer(engine *routing.Engine, port int, perSecond float64) *IntrospectionServer {
	if perSecond <= 0 {
		perSecond = 50
	}
	s := &IntrospectionServer{
		engine:  engine,
		port:    port,
		limit:   rate.Limit(perSecond),
		logger:  slog.Default().With("component", "introspection-server"),
		clients: make(map[*streamClient]struct{}),
	}
	engine.Tracker().AddListener(s.broadcast)
	return s
}

// Handler returns the HTTP routing for the introspection surface
func (s *IntrospectionServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rules", s.handleRules)
	mux.HandleFunc("GET /audit", s.handleAudit)
	mux.HandleFunc("GET /decisions", s.handleDecisions)
	mux.HandleFunc("GET /decisions/stream", s.handleStream)
	mux.HandleFunc("GET /path/{eventID}", s.handlePath)
	mux.HandleFunc("GET /impact/{ruleID}", s.handleImpact)
	return mux
}

// Start serves until the listener fails or Stop is called
func (s *IntrospectionServer) Start() error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	server := s.server
	s.mu.Unlock()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop closes the server and all stream clients
func (s *IntrospectionServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	for client := range s.clients {
		close(client.send)
	}
	s.clients = make(map[*streamClient]struct{})
	server := s.server
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// broadcast fans a decision out to connected stream clients. Full
// client buffers drop the decision for that client only.
func (s *IntrospectionServer) broadcast(decision routing.RoutingDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		select {
		case client.send <- decision:
		default:
		}
	}
}

func (s *IntrospectionServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	burst := int(s.limit)
	if burst < 1 {
		burst = 1
	}
	client := &streamClient{
		conn:    conn,
		send:    make(chan routing.RoutingDecision, streamBuffer),
		limiter: rate.NewLimiter(s.limit, burst),
	}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("Stream client connected", "remote", r.RemoteAddr)
	go s.writeLoop(client)
	go s.readLoop(client)
}

func (s *IntrospectionServer) writeLoop(client *streamClient) {
	defer func() { _ = client.conn.Close() }()

	for decision := range client.send {
		if !client.limiter.Allow() {
			continue // throttled, drop
		}
		_ = client.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.conn.WriteJSON(decision); err != nil {
			s.drop(client)
			return
		}
	}
}

// readLoop discards client frames and detects disconnects
func (s *IntrospectionServer) readLoop(client *streamClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			s.drop(client)
			return
		}
	}
}

func (s *IntrospectionServer) drop(client *streamClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
}

func (s *IntrospectionServer) handleRules(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		actor = routing.SystemActor
	}

	filter := routing.Filter{
		SourcePattern: r.URL.Query().Get("pattern"),
		Target:        r.URL.Query().Get("target"),
		CreatedBy:     r.URL.Query().Get("created_by"),
		Scope:         routing.Scope(r.URL.Query().Get("scope")),
	}

	rules, err := s.engine.QueryRules(r.Context(), actor, filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rules)
}

func (s *IntrospectionServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := routing.AuditFilter{
		Type:   query.Get("type"),
		Actor:  query.Get("actor"),
		RuleID: query.Get("rule_id"),
	}
	if raw := query.Get("success"); raw != "" {
		success := raw == "true"
		filter.Success = &success
	}
	limit, _ := strconv.Atoi(query.Get("limit"))

	writeJSON(w, s.engine.AuditLog(filter, limit))
}

func (s *IntrospectionServer) handleDecisions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, s.engine.Decisions(r.URL.Query().Get("pattern"), limit))
}

func (s *IntrospectionServer) handlePath(w http.ResponseWriter, r *http.Request) {
	path, err := s.engine.Path(r.PathValue("eventID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"path": path})
}

func (s *IntrospectionServer) handleImpact(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var window time.Duration
	if raw := query.Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			http.Error(w, "invalid window: "+err.Error(), http.StatusBadRequest)
			return
		}
		window = parsed
	}

	summary, err := s.engine.Impact(r.PathValue("ruleID"), query["pattern"], window)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, summary)
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}

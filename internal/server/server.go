// Package server provides HTTP and WebSocket handlers
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/soundwatch/internal/classifier"
	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
	"github.com/GriffinCanCode/soundwatch/internal/orchestrator"
	"github.com/GriffinCanCode/soundwatch/internal/patterns"
	"github.com/GriffinCanCode/soundwatch/internal/store"
	"github.com/GriffinCanCode/soundwatch/internal/trace"
)

// Detector is the part of the orchestrator the server drives.
type Detector interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
	ProcessingStats() orchestrator.Stats
	Patterns() *patterns.Registry
	AddReferencePattern(ctx context.Context, name string, samples []float32, active bool) (patterns.Pattern, []string, error)
	UpdatePatternActive(name string, active bool) error
	RemoveReferencePattern(name string) error
	RecognizeType(seconds float64) classifier.TypeResult
	Feedback(pattern string, accepted bool)
}

// Store persists patterns and detection history. Optional.
type Store interface {
	SavePattern(rec store.PatternRecord) error
	DeletePattern(name string) error
	SetPatternActive(name string, active bool) error
	RecentDetections(limit int) ([]store.DetectionRecord, error)
	SetDetectionFeedback(id string, at time.Time, accepted bool) error
}

// Message types.
type Message struct {
	Type string `json:"type"`
}

type DetectionMessage struct {
	Type string `json:"type"`
	orchestrator.DetectionEvent
}

type StatsMessage struct {
	Type  string             `json:"type"`
	Stats orchestrator.Stats `json:"stats"`
}

type RateLimitedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	det   Detector
	store Store // nil keeps patterns and history in memory only

	mu    sync.RWMutex
	conns map[*websocket.Conn]*rateLimiter
}

// New creates a new server. st may be nil.
func New(det Detector, st Store) *Server {
	return &Server{
		det:   det,
		store: st,
		conns: make(map[*websocket.Conn]*rateLimiter),
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/patterns", s.handleListPatterns)
	mux.HandleFunc("POST /api/patterns", s.handleAddPattern)
	mux.HandleFunc("PUT /api/patterns/{name}/active", s.handleSetActive)
	mux.HandleFunc("DELETE /api/patterns/{name}", s.handleRemovePattern)
	mux.HandleFunc("POST /api/detector/start", s.handleStart)
	mux.HandleFunc("POST /api/detector/stop", s.handleStop)
	mux.HandleFunc("GET /api/sound-type", s.handleSoundType)
	mux.HandleFunc("GET /api/detections", s.handleDetections)
	mux.HandleFunc("POST /api/detections/{pattern}/feedback", s.handleFeedback)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	rl := &rateLimiter{}
	s.mu.Lock()
	s.conns[conn] = rl
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	ctx := r.Context()
	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(ctx, conn, RateLimitedMessage{
				Type:    "error",
				Message: "rate limit exceeded",
			})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		msgCtx := ctx
		if tc, ok := trace.ExtractFromJSON(msg); ok {
			msgCtx = trace.WithContext(ctx, tc)
		}

		switch base.Type {
		case "stats":
			_ = wsjson.Write(msgCtx, conn, StatsMessage{Type: "stats", Stats: s.det.ProcessingStats()})
		default:
			trace.Logger(msgCtx).Debug("unknown websocket message", "type", base.Type)
		}
	}
}

// Broadcast pushes a detection to every connected client. It never blocks
// the caller; slow clients miss the message.
func (s *Server) Broadcast(ctx context.Context, ev orchestrator.DetectionEvent) {
	msg := DetectionMessage{Type: "detection", DetectionEvent: ev}
	ctx = context.WithoutCancel(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.conns {
		go func(c *websocket.Conn) {
			wctx, cancel := context.WithTimeout(ctx, BroadcastTimeout)
			defer cancel()
			if err := wsjson.Write(wctx, c, msg); err != nil {
				trace.Logger(ctx).Debug("broadcast write failed", "error", err)
			}
		}(conn)
	}
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error    string            `json:"error"`
	Code     string            `json:"code"`
	Metadata map[string]string `json:"metadata,omitempty"`
	TraceID  string            `json:"trace_id,omitempty"`
}

// writeError maps AppErrors onto their HTTP status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error(), Code: apperrors.CodeInternal.String()}
	status := http.StatusInternalServerError
	if appErr, ok := apperrors.As(err); ok {
		body = errorBody{Error: appErr.Message, Code: appErr.Code.String(), Metadata: appErr.Metadata}
		status = appErr.HTTPStatus()
	}
	if tc, ok := trace.FromContext(r.Context()); ok {
		body.TraceID = tc.TraceID
	}

	log := trace.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		log.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

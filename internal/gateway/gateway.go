// Package gateway serves the HTTP API: message intake for the pipeline
// plus read-only dashboard views of agents, the queue and per-conversation
// event feeds.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bridgedesk/bridgedesk/internal/config"
	"github.com/bridgedesk/bridgedesk/internal/convo"
	"github.com/bridgedesk/bridgedesk/internal/orchestrator"
	"github.com/bridgedesk/bridgedesk/internal/queue"
	"github.com/bridgedesk/bridgedesk/internal/registry"
)

// Server is the HTTP server. Dashboard endpoints are read-only; intake
// endpoints hand user turns to the orchestrator.
type Server struct {
	cfg    config.GatewayConfig
	orch   *orchestrator.Orchestrator
	reg    *registry.Registry
	queue  *queue.Queue
	convos *convo.Manager
	srv    *http.Server
}

// New creates a gateway server.
func New(cfg config.GatewayConfig, orch *orchestrator.Orchestrator, reg *registry.Registry, q *queue.Queue, convos *convo.Manager) *Server {
	s := &Server{cfg: cfg, orch: orch, reg: reg, queue: q, convos: convos}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/queue", s.handleQueue)
	mux.HandleFunc("GET /api/conversations", s.handleConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleConversation)
	mux.HandleFunc("GET /api/conversations/{id}/events", s.handleEvents)
	mux.HandleFunc("POST /api/conversations", s.handleOpen)
	mux.HandleFunc("POST /api/conversations/{id}/messages", s.handleMessage)
	mux.HandleFunc("POST /api/conversations/{id}/close", s.handleClose)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"status": "ok", "time": time.Now()})
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.reg.Snapshot())
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"length": s.queue.Len(),
		"items":  s.queue.Snapshot(),
	})
}

func (s *Server) handleConversations(w http.ResponseWriter, _ *http.Request) {
	type summary struct {
		ID            string `json:"id"`
		Open          bool   `json:"open"`
		AssignedAgent string `json:"assigned_agent,omitempty"`
		Messages      int    `json:"messages"`
		Events        int    `json:"events"`
	}
	convos := s.convos.List()
	out := make([]summary, 0, len(convos))
	for _, c := range convos {
		out = append(out, summary{
			ID:            c.ID,
			Open:          c.Open,
			AssignedAgent: c.AssignedAgent,
			Messages:      len(c.Messages),
			Events:        len(c.Events),
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	c, err := s.convos.Snapshot(r.PathValue("id"))
	if err != nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	writeJSON(w, c)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	c, err := s.convos.Snapshot(r.PathValue("id"))
	if err != nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	writeJSON(w, c.Events)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VIP bool `json:"vip"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	id := s.orch.OpenConversation(body.VIP)
	writeJSON(w, map[string]string{"id": id})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	res, err := s.orch.HandleTurn(r.Context(), r.PathValue("id"), body.Text)
	switch {
	case errors.Is(err, convo.ErrConversationNotFound):
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	case errors.Is(err, convo.ErrConversationClosed):
		http.Error(w, "conversation closed", http.StatusConflict)
		return
	case errors.Is(err, queue.ErrCapacityExceeded):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.CloseConversation(r.PathValue("id")); err != nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"status": "resolved"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("gateway: encode response", "error", err)
	}
}

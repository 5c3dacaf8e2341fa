// Package server exposes the bridge's admin HTTP surface: health, stats,
// registry listings, thread inspection and a websocket event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/domain/bridge"
	"revbridge/internal/errs"
	"revbridge/internal/usecase/conversation"
	"revbridge/internal/usecase/identity"
	"revbridge/internal/usecase/rooms"
	"revbridge/internal/usecase/threads"
)

// Server is the admin API. It is read-mostly; the only mutation it offers
// is resolving a thread, mirroring what operators do from chat.
type Server struct {
	identities    *identity.Service
	rooms         *rooms.Service
	conversations *conversation.Service
	threads       *threads.Service
	broker        *Broker

	http *http.Server
}

func New(
	addr string,
	identities *identity.Service,
	roomSvc *rooms.Service,
	conversations *conversation.Service,
	threadSvc *threads.Service,
	broker *Broker,
) *Server {
	s := &Server{
		identities:    identities,
		rooms:         roomSvc,
		conversations: conversations,
		threads:       threadSvc,
		broker:        broker,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/rooms", s.handleRooms)
		r.Get("/identities", s.handleIdentities)
		r.Get("/threads", s.handleThreads)
		r.Get("/threads/{ref}", s.handleThread)
		r.Post("/threads/{ref}/resolve", s.handleResolveThread)
	})
	r.Get("/stream", s.handleStream)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until the listener fails. Blocking.
func (s *Server) Start() error {
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatsResponse aggregates the per-engine counters into one document.
type StatsResponse struct {
	Identities    identity.Stats     `json:"identities"`
	Rooms         rooms.Stats        `json:"rooms"`
	Conversations conversation.Stats `json:"conversations"`
	Threads       threads.Stats      `json:"threads"`
	Subscribers   int                `json:"stream_subscribers"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var resp StatsResponse
	var err error
	if resp.Identities, err = s.identities.Stats(ctx); err != nil {
		writeError(w, r, err)
		return
	}
	if resp.Rooms, err = s.rooms.Stats(ctx); err != nil {
		writeError(w, r, err)
		return
	}
	if resp.Conversations, err = s.conversations.Stats(ctx); err != nil {
		writeError(w, r, err)
		return
	}
	if resp.Threads, err = s.threads.Stats(ctx); err != nil {
		writeError(w, r, err)
		return
	}
	resp.Subscribers = s.broker.Subscribers()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roomList, err := s.rooms.ListRooms(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	mappings, err := s.rooms.ListMappings(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rooms":    roomList,
		"mappings": mappings,
	})
}

func (s *Server) handleIdentities(w http.ResponseWriter, r *http.Request) {
	identities, err := s.identities.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"identities": identities})
}

func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		list []bridge.Thread
		err  error
	)
	switch {
	case r.URL.Query().Get("room") != "":
		list, err = s.threads.ByRoom(ctx, r.URL.Query().Get("room"))
	case r.URL.Query().Get("participant") != "":
		list, err = s.threads.ByParticipant(ctx, r.URL.Query().Get("participant"))
	default:
		list, err = s.threads.List(ctx)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": list})
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	threadID, err := bridge.ParseThreadRef(chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	thread, found, err := s.threads.Get(ctx, threadID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "thread not found"})
		return
	}
	messages, err := s.threads.Messages(ctx, threadID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"thread":   thread,
		"messages": messages,
	})
}

func (s *Server) handleResolveThread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	threadID, err := bridge.ParseThreadRef(chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body struct {
		ResolvedBy string `json:"resolved_by"`
		Reason     string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	if err := s.threads.Resolve(ctx, threads.ResolveInput{
		ThreadID:   threadID,
		ResolvedBy: body.ResolvedBy,
		Reason:     body.Reason,
	}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, bridge.ErrInvalidOperation) {
		status = http.StatusBadRequest
	}
	logging.Error(r.Context(), "admin api error",
		slog.String("path", r.URL.Path),
		slog.Any("err", errs.Loggable(err)))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/crewbase/crewsync/internal/advisor"
	"github.com/crewbase/crewsync/internal/audit"
	"github.com/crewbase/crewsync/internal/config"
	"github.com/crewbase/crewsync/internal/coordinator"
	"github.com/crewbase/crewsync/internal/event"
	"github.com/crewbase/crewsync/internal/eventbus"
	"github.com/crewbase/crewsync/internal/notify"
	"github.com/crewbase/crewsync/internal/workspace"
	"github.com/crewbase/crewsync/pkg/clog"
)

// Server exposes the coordination state over HTTP: board snapshot, latest
// health report, advisory log, a server-sent event stream of change events,
// and push subscription registration.
type Server struct {
	server        *http.Server
	env           *config.Env
	coordinator   *coordinator.Coordinator
	auditor       *audit.Auditor
	advisor       *advisor.Advisor
	changes       *eventbus.Bus[*event.Change]
	subscriptions *notify.SubscriptionRepository
	provisioner   *workspace.Provisioner
}

func NewServer(
	env *config.Env,
	coord *coordinator.Coordinator,
	auditor *audit.Auditor,
	adv *advisor.Advisor,
	changes *eventbus.Bus[*event.Change],
	subscriptions *notify.SubscriptionRepository,
	provisioner *workspace.Provisioner,
) *Server {
	return &Server{
		env:           env,
		coordinator:   coord,
		auditor:       auditor,
		advisor:       adv,
		changes:       changes,
		subscriptions: subscriptions,
		provisioner:   provisioner,
	}
}

// ListenAndServe starts the HTTP server. The provided context is the base
// context for all incoming requests, so cancelling it also cancels open SSE
// streams and lets shutdown complete without waiting on them.
func (s *Server) ListenAndServe(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(clog.SlogChiMiddleware())

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/board", s.handleBoard)
		r.Get("/report", s.handleReport)
		r.Get("/suggestions", s.handleSuggestions)
		r.Get("/events", s.handleEvents)
		r.Post("/subscriptions", s.handleSubscribe)
		r.Delete("/subscriptions/{id}", s.handleUnsubscribe)
		r.Get("/workspaces", s.handleListWorkspaces)
		r.Post("/workspaces", s.handleProvisionWorkspace)
		r.Delete("/workspaces/{agentID}", s.handleRemoveWorkspace)
	})

	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr: addr,
		Handler: h2c.NewHandler(cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(s.apiKeyMiddleware(r)), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health stays unauthenticated for load balancer probes.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.Header.Get("Authorization")
			if len(apiKey) > 7 && apiKey[:7] == "Bearer " {
				apiKey = apiKey[7:]
			}
		}
		if apiKey != s.env.APIKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	snap := s.coordinator.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no board snapshot yet"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"captured_at": snap.CapturedAt,
		"tasks":       snap.Tasks,
		"agents":      snap.Agents,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report := s.auditor.Latest()
	if report == nil {
		report = s.auditor.RunChecks(r.Context(), nil)
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, _ *http.Request) {
	suggestions := s.advisor.Suggestions()
	if suggestions == nil {
		suggestions = []*advisor.Suggestion{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}

// handleEvents streams change events as server-sent events until the client
// disconnects or the server shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, ch := s.changes.Subscribe(32)
	defer s.changes.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(change)
			if err != nil {
				slog.Error("failed to marshal change event", "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", change.ID, change.Type, data)
			flusher.Flush()
		}
	}
}

type subscribeRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dh_key"`
	AuthKey   string `json:"auth_key"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if s.subscriptions == nil {
		http.Error(w, "push notifications not configured", http.StatusNotImplemented)
		return
	}
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		http.Error(w, "invalid subscription payload", http.StatusBadRequest)
		return
	}
	sub := &notify.Subscription{
		ID:        ulid.Make().String(),
		Endpoint:  req.Endpoint,
		P256dhKey: req.P256dhKey,
		AuthKey:   req.AuthKey,
	}
	if err := s.subscriptions.Create(r.Context(), sub); err != nil {
		slog.ErrorContext(r.Context(), "failed to store subscription", "error", err)
		http.Error(w, "failed to store subscription", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": sub.ID})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if s.subscriptions == nil {
		http.Error(w, "push notifications not configured", http.StatusNotImplemented)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.subscriptions.Delete(r.Context(), id); err != nil {
		http.Error(w, "subscription not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	if s.provisioner == nil {
		http.Error(w, "workspace provisioning not configured", http.StatusNotImplemented)
		return
	}
	paths, err := s.provisioner.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list workspaces", "error", err)
		http.Error(w, "failed to list workspaces", http.StatusInternalServerError)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"workspaces": paths})
}

type provisionRequest struct {
	AgentID string `json:"agent_id"`
}

func (s *Server) handleProvisionWorkspace(w http.ResponseWriter, r *http.Request) {
	if s.provisioner == nil {
		http.Error(w, "workspace provisioning not configured", http.StatusNotImplemented)
		return
	}
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}
	path, err := s.provisioner.Provision(r.Context(), req.AgentID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to provision workspace", "agent_id", req.AgentID, "error", err)
		http.Error(w, "failed to provision workspace", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"agent_id": req.AgentID, "workspace": path})
}

func (s *Server) handleRemoveWorkspace(w http.ResponseWriter, r *http.Request) {
	if s.provisioner == nil {
		http.Error(w, "workspace provisioning not configured", http.StatusNotImplemented)
		return
	}
	agentID := chi.URLParam(r, "agentID")
	if err := s.provisioner.Remove(r.Context(), agentID); err != nil {
		http.Error(w, "workspace not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// userResponse is the admin API view of a user. Password hashes never
// leave the server.
type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// adminRouter builds the HTTP surface: the static admin page, the
// JSON API, metrics and health.
func (s *Server) adminRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleIndex)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/users", s.handleListUsers)
		r.Get("/users/{id}/messages", s.handleUserMessages)
		r.Delete("/users/{id}", s.handleDeleteUser)
	})

	return r
}

// StartHTTP starts the admin HTTP server. It runs in the background and
// shuts down when the server context is cancelled.
func (s *Server) StartHTTP() {
	addr := s.cfg.HTTPAddr
	if addr == "" {
		return // admin surface disabled
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.adminRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpSrv = srv

	go func() {
		slog.Info("admin HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("admin HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.cfg.StaticDir, "index.html"))
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	s.metrics.WritePrometheus(w)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.NonTx().ListUsers()
	if err != nil {
		slog.Error("list users failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userResponse{ID: u.ID, Username: u.Username})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUserMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	user, err := s.store.NonTx().GetUserByID(id)
	if err != nil {
		slog.Error("get user failed", "id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}

	messages, err := s.store.NonTx().ListMessagesByUser(id)
	if err != nil {
		slog.Error("list messages failed", "id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	contents := make([]string, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, m.Content)
	}
	writeJSON(w, http.StatusOK, contents)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	existed, err := s.store.NonTx().DeleteUser(id)
	if err != nil {
		slog.Error("delete user failed", "id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !existed {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}

	// A deleted user loses any live session with them.
	if s.Kick(id) {
		slog.Info("kicked deleted user", "user_id", id)
	}

	slog.Info("user deleted via admin API", "user_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// userIDParam parses the {id} path parameter, writing a 400 on failure.
func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "err", err)
	}
}

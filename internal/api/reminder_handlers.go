// Package api exposes the targeted-run surface for the reminder engine.
// The endpoints exist so an external scheduler or an administrator can
// trigger a scan on demand; the engine's contract is the Go-level
// TaskRunner, not this HTTP layer.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/northcart/reminder-engine/internal/domain"
	"github.com/northcart/reminder-engine/internal/pkg/httputil"
	"github.com/northcart/reminder-engine/internal/service/reminder"
)

// ReminderService wires the task runner into HTTP handlers.
type ReminderService struct {
	runner *reminder.TaskRunner
}

// NewReminderService creates the handler set.
func NewReminderService(runner *reminder.TaskRunner) *ReminderService {
	return &ReminderService{runner: runner}
}

// Router builds the service's router with CORS for the admin UI.
func (s *ReminderService) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Get("/healthz", s.handleHealth)
	r.Route("/api/reminders", func(r chi.Router) {
		r.Post("/{kind}/run", s.handleRun)
	})
	return r
}

func (s *ReminderService) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// handleRun triggers one scan. An optional rule_id query parameter
// restricts the scan to that rule, ignoring its active flag and window.
func (s *ReminderService) handleRun(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseRuleKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	ruleID := r.URL.Query().Get("rule_id")

	if err := s.runner.Run(r.Context(), kind, ruleID); err != nil {
		if errors.Is(err, reminder.ErrRuleNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"kind": string(kind), "status": "completed"})
}

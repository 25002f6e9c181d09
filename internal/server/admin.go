package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/finpanel/report-service/internal/model"
	"github.com/finpanel/report-service/internal/store"
	"github.com/finpanel/report-service/internal/ticket"
	"github.com/go-chi/chi/v5"
)

// adminReportView is the full report representation returned to admins.
type adminReportView struct {
	TicketID    string               `json:"ticketId"`
	Email       string               `json:"email"`
	Subject     string               `json:"subject"`
	Description string               `json:"description"`
	UserAgent   string               `json:"userAgent,omitempty"`
	ClientID    string               `json:"clientId"`
	Assessment  model.RiskAssessment `json:"riskAssessment"`
	Status      model.ReportStatus   `json:"status"`
	Actions     []model.ReportAction `json:"actionHistory,omitempty"`
	CreatedAt   string               `json:"createdAt"`
}

func toAdminView(rpt *model.WebReport) adminReportView {
	return adminReportView{
		TicketID:    rpt.TicketID,
		Email:       rpt.Email,
		Subject:     rpt.Subject,
		Description: rpt.Description,
		UserAgent:   rpt.UserAgent,
		ClientID:    rpt.ClientID,
		Assessment:  rpt.Assessment,
		Status:      rpt.Status,
		Actions:     rpt.Actions,
		CreatedAt:   rpt.CreatedAt.UTC().Format(time.RFC3339),
	}
}

var validStatusFilters = map[model.ReportStatus]bool{
	model.StatusPending:   true,
	model.StatusReviewed:  true,
	model.StatusResponded: true,
	model.StatusClosed:    true,
	model.StatusSpam:      true,
}

// HandleAdminList returns a paginated report list. The query parameters are
// the ones the consuming dashboard already sends: estado (status filter),
// pagina (page, 1-based), limite (page size).
func (s *Server) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := model.ReportStatus(q.Get("estado"))
	if status != "" && !validStatusFilters[status] {
		respondError(w, http.StatusBadRequest, "estado: unknown status")
		return
	}
	page := intParam(q.Get("pagina"), 1)
	limit := intParam(q.Get("limite"), 20)

	reports, total, err := s.store.ListWebReports(r.Context(), status, page, limit)
	if err != nil {
		s.logger.Error("list reports failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]adminReportView, 0, len(reports))
	for _, rpt := range reports {
		views = append(views, toAdminView(rpt))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"reports": views,
		"total":   total,
		"pagina":  page,
		"limite":  limit,
	})
}

// HandleMarkSpam transitions a report to spam.
func (s *Server) HandleMarkSpam(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, model.StatusSpam, "mark-spam")
}

// HandleCloseReport transitions a report to closed.
func (s *Server) HandleCloseReport(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, model.StatusClosed, "close")
}

// HandleRespondReport transitions a report to responded.
func (s *Server) HandleRespondReport(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, model.StatusResponded, "respond")
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, to model.ReportStatus, actionName string) {
	id, ok := ticket.Canonical(chi.URLParam(r, "ticketID"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ticket id")
		return
	}

	// Optional free-text detail recorded in the action history.
	var body struct {
		Detail string `json:"detail"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	action := model.ReportAction{
		Action:    actionName,
		Timestamp: time.Now().UTC(),
		Actor:     s.config.AdminUsername,
		Detail:    body.Detail,
	}
	if action.Actor == "" {
		action.Actor = "admin"
	}

	err := s.store.TransitionWebReport(r.Context(), id, to, action)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "report not found")
		return
	case errors.Is(err, store.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "status transition not allowed")
		return
	case err != nil:
		s.logger.Error("transition failed", "error", err, "ticket_id", id, "to", to)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("report status changed",
		"ticket_id", id, "to", to, "action", actionName, "actor", action.Actor)
	respondJSON(w, http.StatusOK, map[string]any{"ticketId": id, "status": to})
}

// HandleSecurityStats returns the aggregate counters for the dashboard.
func (s *Server) HandleSecurityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.SecurityStats(r.Context())
	if err != nil {
		s.logger.Error("security stats failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

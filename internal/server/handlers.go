package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/finpanel/report-service/internal/model"
	"github.com/finpanel/report-service/internal/report"
	"github.com/finpanel/report-service/internal/store"
	"github.com/finpanel/report-service/internal/ticket"
	"github.com/go-chi/chi/v5"
)

type submitRequest struct {
	Email       string `json:"email"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	ClientInfo  struct {
		UserAgent string `json:"userAgent"`
	} `json:"clientInfo"`
}

// HandleSubmitReport accepts a web report submission and returns its ticket
// ID. The submitted user agent falls back to the transport header.
func (s *Server) HandleSubmitReport(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ua := req.ClientInfo.UserAgent
	if ua == "" {
		ua = r.UserAgent()
	}
	sub := model.ReportSubmission{
		Email:       req.Email,
		Subject:     req.Subject,
		Description: req.Description,
		UserAgent:   ua,
	}

	ticketID, err := s.submitter.Submit(r.Context(), sub, extractIP(r))
	if err != nil {
		var verr *report.ValidationError
		var rerr *report.RateLimitError
		switch {
		case errors.As(err, &verr):
			respondError(w, http.StatusBadRequest, verr.Error())
		case errors.As(err, &rerr):
			respondJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:   rerr.Reason,
				RetryAt: rerr.RetryAt.UTC().Format(time.RFC3339),
			})
		case errors.Is(err, report.ErrSecurityBlocked):
			respondError(w, http.StatusUnprocessableEntity, report.ErrSecurityBlocked.Error())
		default:
			s.logger.Error("submit report failed", "error", err,
				"request_id", RequestIDFromContext(r.Context()))
			respondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"ticketId": ticketID})
}

// HandleReportStatus returns the public status view for one ticket. Ticket
// IDs are accepted case-insensitively.
func (s *Server) HandleReportStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := ticket.Canonical(chi.URLParam(r, "ticketID"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ticket id")
		return
	}

	rpt, err := s.store.GetWebReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "report not found")
			return
		}
		s.logger.Error("get report failed", "error", err, "ticket_id", id)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ticketId":  rpt.TicketID,
		"status":    rpt.Status,
		"createdAt": rpt.CreatedAt.UTC().Format(time.RFC3339),
	})
}

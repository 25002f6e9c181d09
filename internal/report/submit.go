// Package report orchestrates web report submission: validation, rate
// limiting, risk assessment, ticketing, and persistence.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/finpanel/report-service/internal/model"
	"github.com/finpanel/report-service/internal/ratelimit"
	"github.com/finpanel/report-service/internal/risk"
	"github.com/finpanel/report-service/internal/store"
	"github.com/finpanel/report-service/internal/ticket"
)

// Submission field bounds.
const (
	MinSubjectLen     = 5
	MaxSubjectLen     = 200
	MinDescriptionLen = 10
	MaxDescriptionLen = 5000
)

// ErrSecurityBlocked is returned when the risk score reaches the hard block
// threshold. The message is deliberately generic: detection internals must
// not leak to a possible attacker. The full assessment is logged
// server-side instead.
var ErrSecurityBlocked = errors.New("report cannot be processed")

// ValidationError reports a malformed or missing input field. Safe to
// surface verbatim to the caller.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// RateLimitError reports a denied admission. Recoverable by waiting.
type RateLimitError struct {
	Reason  string
	RetryAt time.Time
}

func (e *RateLimitError) Error() string {
	return e.Reason
}

// Notifier is told about reports that were auto-flagged as spam. Failures
// are logged, never surfaced to the submitter.
type Notifier interface {
	NotifySpamFlagged(ctx context.Context, rpt *model.WebReport) error
}

// Submitter composes the scorer, limiter, and store into the submission
// pipeline. One instance per process; constructed explicitly and passed by
// reference so tests get fresh state.
type Submitter struct {
	scorer   atomic.Pointer[risk.Scorer]
	limiter  *ratelimit.Limiter
	store    store.Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewSubmitter creates a Submitter. notifier may be nil.
func NewSubmitter(scorer *risk.Scorer, limiter *ratelimit.Limiter, st store.Store, notifier Notifier, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Submitter{
		limiter:  limiter,
		store:    st,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	s.scorer.Store(scorer)
	return s
}

// SetScorer atomically swaps the risk scorer, used by keyword hot reload.
// In-flight submissions keep the scorer they started with.
func (s *Submitter) SetScorer(scorer *risk.Scorer) {
	s.scorer.Store(scorer)
}

// Limiter exposes the rate limiter for read-only quota endpoints.
func (s *Submitter) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// Submit runs the full pipeline for one submission from clientID. On
// success it returns the new ticket ID; every failure path returns one of
// the typed errors above.
func (s *Submitter) Submit(ctx context.Context, sub model.ReportSubmission, clientID string) (string, error) {
	if err := validate(sub); err != nil {
		return "", err
	}

	if d := s.limiter.CanAdmit(clientID); !d.Allowed {
		return "", &RateLimitError{Reason: d.Reason, RetryAt: d.RetryAt}
	}

	assessment := s.scorer.Load().Assess(sub.Email, sub.Subject, sub.Description, sub.UserAgent)
	if risk.ShouldBlock(assessment) {
		s.logger.Warn("submission blocked",
			"client_id", clientID,
			"total_risk", assessment.TotalRiskScore,
			"malicious_score", assessment.MaliciousPatternScore,
			"spam_score", assessment.SpamScore,
			"forbidden_words", assessment.ForbiddenWords,
		)
		return "", ErrSecurityBlocked
	}

	now := s.now().UTC()
	rpt := &model.WebReport{
		TicketID:    ticket.New(now),
		Email:       sub.Email,
		Subject:     sub.Subject,
		Description: sub.Description,
		UserAgent:   sub.UserAgent,
		ClientID:    clientID,
		Assessment:  assessment,
		Status:      model.StatusPending,
		CreatedAt:   now,
	}
	if risk.ShouldAutoFlagSpam(assessment) {
		rpt.Status = model.StatusSpam
		rpt.Actions = []model.ReportAction{{
			Action:    "auto-flagged",
			Timestamp: now,
			Actor:     "system",
			Detail:    fmt.Sprintf("risk score %d", assessment.TotalRiskScore),
		}}
	}

	if err := s.store.CreateWebReport(ctx, rpt); err != nil {
		return "", fmt.Errorf("persist report: %w", err)
	}

	s.limiter.Record(clientID)

	if rpt.Status == model.StatusSpam {
		s.logger.Info("report auto-flagged as spam",
			"ticket_id", rpt.TicketID, "total_risk", assessment.TotalRiskScore)
		if s.notifier != nil {
			go func(rpt *model.WebReport) {
				nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := s.notifier.NotifySpamFlagged(nctx, rpt); err != nil {
					s.logger.Error("spam notification failed", "ticket_id", rpt.TicketID, "error", err)
				}
			}(rpt)
		}
	}

	return rpt.TicketID, nil
}

func validate(sub model.ReportSubmission) error {
	if sub.Email == "" {
		return &ValidationError{Field: "email", Msg: "is required"}
	}
	if !ValidEmail(sub.Email) {
		return &ValidationError{Field: "email", Msg: "must be a valid email address"}
	}
	subjLen := len([]rune(sub.Subject))
	if subjLen < MinSubjectLen || subjLen > MaxSubjectLen {
		return &ValidationError{
			Field: "subject",
			Msg:   fmt.Sprintf("must be between %d and %d characters", MinSubjectLen, MaxSubjectLen),
		}
	}
	descLen := len([]rune(sub.Description))
	if descLen < MinDescriptionLen || descLen > MaxDescriptionLen {
		return &ValidationError{
			Field: "description",
			Msg:   fmt.Sprintf("must be between %d and %d characters", MinDescriptionLen, MaxDescriptionLen),
		}
	}
	return nil
}

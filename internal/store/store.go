package store

import (
	"context"
	"errors"

	"github.com/finpanel/report-service/internal/model"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when an admin action would move a report
// to a status its current status does not permit.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store defines the persistence interface for the report service.
type Store interface {
	// Web reports. Reports are never deleted; they only transition status.
	CreateWebReport(ctx context.Context, report *model.WebReport) error
	GetWebReport(ctx context.Context, ticketID string) (*model.WebReport, error)
	// ListWebReports returns one page of reports, newest first, optionally
	// filtered by status (empty means all), plus the total matching count.
	ListWebReports(ctx context.Context, status model.ReportStatus, page, limit int) ([]*model.WebReport, int, error)
	// TransitionWebReport moves a report to a new status and appends the
	// action to its history, enforcing lifecycle legality.
	TransitionWebReport(ctx context.Context, ticketID string, to model.ReportStatus, action model.ReportAction) error
	SecurityStats(ctx context.Context) (*model.SecurityStats, error)

	// Secret route (singleton row).
	SaveSecretRoute(ctx context.Context, route *model.SecretRoute) error
	GetSecretRoute(ctx context.Context) (*model.SecretRoute, error)
	DeleteSecretRoute(ctx context.Context) error

	// Admin sessions.
	CreateAdminSession(ctx context.Context, sess *model.AdminSession) error
	GetAdminSession(ctx context.Context, token string) (*model.AdminSession, error)
	DeleteAdminSession(ctx context.Context, token string) error
	DeleteExpiredAdminSessions(ctx context.Context) error
}

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/finpanel/report-service/internal/model"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

const timeFormat = "2006-01-02 15:04:05"

// SQLiteStore implements Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at the given path and runs migrations.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename to ensure order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// --- Web reports ---

func (s *SQLiteStore) CreateWebReport(ctx context.Context, report *model.WebReport) error {
	assessmentJSON, err := json.Marshal(report.Assessment)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	actionsJSON, err := json.Marshal(report.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	if report.Actions == nil {
		actionsJSON = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO web_reports (ticket_id, email, subject, description, user_agent, client_id,
		 risk_assessment, total_risk, is_suspicious, status, action_history, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.TicketID, report.Email, report.Subject, report.Description,
		report.UserAgent, report.ClientID,
		string(assessmentJSON), report.Assessment.TotalRiskScore, boolToInt(report.Assessment.IsSuspicious),
		string(report.Status), string(actionsJSON),
		report.CreatedAt.UTC().Format(timeFormat))
	return err
}

const reportColumns = `ticket_id, email, subject, description, user_agent, client_id,
	risk_assessment, status, action_history, created_at`

func (s *SQLiteStore) GetWebReport(ctx context.Context, ticketID string) (*model.WebReport, error) {
	r, err := scanReport(s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM web_reports WHERE ticket_id = ?`, ticketID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) ListWebReports(ctx context.Context, status model.ReportStatus, page, limit int) ([]*model.WebReport, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	where := ""
	args := []any{}
	if status != "" {
		where = " WHERE status = ?"
		args = append(args, string(status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM web_reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, (page-1)*limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM web_reports`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reports []*model.WebReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, r)
	}
	return reports, total, rows.Err()
}

func (s *SQLiteStore) TransitionWebReport(ctx context.Context, ticketID string, to model.ReportStatus, action model.ReportAction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status, actionsJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT status, action_history FROM web_reports WHERE ticket_id = ?`, ticketID).
		Scan(&status, &actionsJSON)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	from := model.ReportStatus(status)
	if !model.ValidStatusTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	var actions []model.ReportAction
	_ = json.Unmarshal([]byte(actionsJSON), &actions)
	actions = append(actions, action)
	updated, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE web_reports SET status = ?, action_history = ? WHERE ticket_id = ?`,
		string(to), string(updated), ticketID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) SecurityStats(ctx context.Context) (*model.SecurityStats, error) {
	var stats model.SecurityStats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = 'spam' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(is_suspicious), 0),
		        AVG(total_risk)
		 FROM web_reports`).
		Scan(&stats.TotalReports, &stats.PendingReports, &stats.SpamReports,
			&stats.SuspiciousCount, &avg)
	if err != nil {
		return nil, err
	}
	stats.AverageRiskScore = avg.Float64
	return &stats, nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanReport(row scannable) (*model.WebReport, error) {
	var r model.WebReport
	var assessmentJSON, actionsJSON, status, createdAt string
	err := row.Scan(&r.TicketID, &r.Email, &r.Subject, &r.Description,
		&r.UserAgent, &r.ClientID, &assessmentJSON, &status, &actionsJSON, &createdAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(assessmentJSON), &r.Assessment)
	_ = json.Unmarshal([]byte(actionsJSON), &r.Actions)
	r.Status = model.ReportStatus(status)
	r.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &r, nil
}

// --- Secret route ---

func (s *SQLiteStore) SaveSecretRoute(ctx context.Context, route *model.SecretRoute) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secret_route (id, path, created_at, expires_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET path = excluded.path,
		 created_at = excluded.created_at, expires_at = excluded.expires_at`,
		route.Path, route.CreatedAt.UnixMilli(), route.ExpiresAt.UnixMilli())
	return err
}

func (s *SQLiteStore) GetSecretRoute(ctx context.Context) (*model.SecretRoute, error) {
	var route model.SecretRoute
	var createdMs, expiresMs int64
	err := s.db.QueryRowContext(ctx,
		`SELECT path, created_at, expires_at FROM secret_route WHERE id = 1`).
		Scan(&route.Path, &createdMs, &expiresMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	route.CreatedAt = time.UnixMilli(createdMs).UTC()
	route.ExpiresAt = time.UnixMilli(expiresMs).UTC()
	return &route, nil
}

func (s *SQLiteStore) DeleteSecretRoute(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM secret_route WHERE id = 1`)
	return err
}

// --- Admin sessions ---

func (s *SQLiteStore) CreateAdminSession(ctx context.Context, sess *model.AdminSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_sessions (token, created_at, expires_at) VALUES (?, ?, ?)`,
		sess.Token, sess.CreatedAt.UTC().Format(timeFormat), sess.ExpiresAt.UTC().Format(timeFormat))
	return err
}

func (s *SQLiteStore) GetAdminSession(ctx context.Context, token string) (*model.AdminSession, error) {
	var sess model.AdminSession
	var createdAt, expiresAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT token, created_at, expires_at FROM admin_sessions WHERE token = ?`, token).
		Scan(&sess.Token, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	sess.ExpiresAt, _ = time.Parse(timeFormat, expiresAt)
	return &sess, nil
}

func (s *SQLiteStore) DeleteAdminSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE token = ?`, token)
	return err
}

func (s *SQLiteStore) DeleteExpiredAdminSessions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM admin_sessions WHERE expires_at < ?`, time.Now().UTC().Format(timeFormat))
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

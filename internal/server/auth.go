package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/finpanel/report-service/internal/model"
	"github.com/finpanel/report-service/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionTTL        = time.Hour
	sessionCookieName = "admin_session"
)

// sessionManager issues and validates admin sessions. Memory is
// authoritative; the store is written best-effort so sessions survive a
// restart, mirroring the secret route manager's degradation rule.
type sessionManager struct {
	store  store.Store
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*model.AdminSession

	now func() time.Time
}

func newSessionManager(st store.Store, logger *slog.Logger) *sessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &sessionManager{
		store:    st,
		logger:   logger,
		sessions: make(map[string]*model.AdminSession),
		now:      time.Now,
	}
}

// create mints a session token of the form temp-access-{epoch-ms}-{random}.
func (sm *sessionManager) create(ctx context.Context) *model.AdminSession {
	now := sm.now().UTC()
	u := uuid.New()
	sess := &model.AdminSession{
		Token:     fmt.Sprintf("temp-access-%d-%x", now.UnixMilli(), u[:]),
		CreatedAt: now,
		ExpiresAt: now.Add(sessionTTL),
	}

	sm.mu.Lock()
	sm.sessions[sess.Token] = sess
	sm.mu.Unlock()

	if sm.store != nil {
		if err := sm.store.CreateAdminSession(ctx, sess); err != nil {
			sm.logger.Warn("admin session not persisted, continuing in memory", "error", err)
		}
		_ = sm.store.DeleteExpiredAdminSessions(ctx)
	}
	return sess
}

// lookup returns the unexpired session for token, or nil. Expired sessions
// are dropped on read.
func (sm *sessionManager) lookup(ctx context.Context, token string) *model.AdminSession {
	now := sm.now()

	sm.mu.Lock()
	sess, ok := sm.sessions[token]
	if ok && !now.Before(sess.ExpiresAt) {
		delete(sm.sessions, token)
		ok = false
	}
	sm.mu.Unlock()
	if ok {
		return sess
	}

	if sm.store == nil {
		return nil
	}
	sess, err := sm.store.GetAdminSession(ctx, token)
	if err != nil {
		return nil
	}
	if !now.Before(sess.ExpiresAt) {
		_ = sm.store.DeleteAdminSession(ctx, token)
		return nil
	}
	sm.mu.Lock()
	sm.sessions[token] = sess
	sm.mu.Unlock()
	return sess
}

func (sm *sessionManager) destroy(ctx context.Context, token string) {
	sm.mu.Lock()
	delete(sm.sessions, token)
	sm.mu.Unlock()
	if sm.store != nil {
		if err := sm.store.DeleteAdminSession(ctx, token); err != nil {
			sm.logger.Warn("admin session not deleted from storage", "error", err)
		}
	}
}

// checkCredentials verifies the configured admin credentials. The username
// comparison is constant-time like the password check.
func (s *Server) checkCredentials(username, password string) bool {
	if s.config.AdminUsername == "" || s.config.AdminPasswordHash == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.config.AdminUsername)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(s.config.AdminPasswordHash), []byte(password)) == nil
	return userOK && passOK
}

// HandleAdminAccess verifies admin credentials and mints the secret access
// route. Failures are uniformly 401 without detail.
func (s *Server) HandleAdminAccess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if !s.checkCredentials(req.Username, req.Password) {
		s.logger.Warn("admin access denied", "remote_addr", r.RemoteAddr,
			"request_id", RequestIDFromContext(r.Context()))
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	route, err := s.routes.Generate(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.logger.Info("secret route generated", "expires_at", route.ExpiresAt,
		"request_id", RequestIDFromContext(r.Context()))

	respondJSON(w, http.StatusOK, map[string]any{
		"path":      route.Path,
		"expiresAt": route.ExpiresAt.Format(time.RFC3339),
	})
}

// HandleSecretRouteExchange exchanges a valid secret route for an admin
// session. Invalid, expired, and unknown paths all look like a plain 404.
func (s *Server) HandleSecretRouteExchange(w http.ResponseWriter, r *http.Request) {
	if !s.routes.Validate(r.Context(), r.URL.Path) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	sess := s.sessions.create(r.Context())
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   true,
		Expires:  sess.ExpiresAt,
	})
	respondJSON(w, http.StatusOK, map[string]any{
		"token":     sess.Token,
		"expiresAt": sess.ExpiresAt.Format(time.RFC3339),
	})
}

// RequireAdminSession guards admin endpoints. The token comes from the
// session cookie or an Authorization: Bearer header.
func (s *Server) RequireAdminSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if c, err := r.Cookie(sessionCookieName); err == nil {
				token = c.Value
			}
		}
		if token == "" {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		sess := s.sessions.lookup(r.Context(), token)
		if sess == nil {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}

// HandleExtendAccess pushes the secret route expiry forward by one TTL.
func (s *Server) HandleExtendAccess(w http.ResponseWriter, r *http.Request) {
	if !s.routes.Extend(r.Context()) {
		respondError(w, http.StatusConflict, "no active access window to extend")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"remainingSeconds": int(s.routes.Remaining(r.Context()).Seconds()),
	})
}

// HandleLogout destroys the session and clears the secret route.
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := SessionFromContext(r.Context()); sess != nil {
		s.sessions.destroy(r.Context(), sess.Token)
	}
	_ = s.routes.Clear(r.Context())

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

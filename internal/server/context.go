package server

import (
	"context"

	"github.com/finpanel/report-service/internal/model"
)

type contextKey int

const (
	ctxKeyRequestID contextKey = iota
	ctxKeySession
)

// RequestIDFromContext returns the request ID from the context, if present.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

func withSession(ctx context.Context, sess *model.AdminSession) context.Context {
	return context.WithValue(ctx, ctxKeySession, sess)
}

// SessionFromContext returns the authenticated admin session, or nil.
func SessionFromContext(ctx context.Context) *model.AdminSession {
	s, _ := ctx.Value(ctxKeySession).(*model.AdminSession)
	return s
}

// Package middleware provides HTTP middleware components
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// ContextKey is used for context values
type ContextKey string

const (
	ContextUserID    ContextKey = "userID"
	ContextTenantID  ContextKey = "tenantID"
	ContextRequestID ContextKey = "requestID"
)

const (
	// HeaderUserID carries the authenticated subscriber set by the
	// edge gateway.
	HeaderUserID = "X-User-ID"
	// HeaderTenantID carries the tenant the request acts on.
	HeaderTenantID = "X-Tenant-ID"
)

// Identity extracts the gateway-asserted caller identity into the
// request context. Requests without a valid user id are rejected; the
// tenant header is optional and validated by the handlers that need it.
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := uuid.Parse(r.Header.Get(HeaderUserID))
			if err != nil {
				http.Error(w, `{"error":"missing or invalid user identity"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextUserID, userID)
			if tenantID, err := uuid.Parse(r.Header.Get(HeaderTenantID)); err == nil {
				ctx = context.WithValue(ctx, ContextTenantID, tenantID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID extracts the caller's user ID from context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(ContextUserID).(uuid.UUID)
	return userID, ok
}

// GetTenantID extracts the tenant ID from context
func GetTenantID(ctx context.Context) (uuid.UUID, bool) {
	tenantID, ok := ctx.Value(ContextTenantID).(uuid.UUID)
	return tenantID, ok
}

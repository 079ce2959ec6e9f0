package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Identity is the authenticated caller: the ownership tuple every job is
// stamped with at creation.
type Identity struct {
	TenantID string
	UserID   string
	Email    string
}

// ErrNoIdentity is returned when a request carries no usable identity.
var ErrNoIdentity = errors.New("missing identity")

// Authenticator resolves the caller's identity from a request. The identity
// provider itself (gateway, JWT validation, session store) is an external
// collaborator behind this interface.
type Authenticator interface {
	Authenticate(r *http.Request) (*Identity, error)
}

// HeaderAuthenticator trusts identity headers set by an upstream gateway
// that has already terminated authentication.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	id := &Identity{
		TenantID: strings.TrimSpace(r.Header.Get("X-Tenant-ID")),
		UserID:   strings.TrimSpace(r.Header.Get("X-User-ID")),
		Email:    strings.TrimSpace(r.Header.Get("X-User-Email")),
	}
	if id.TenantID == "" || id.UserID == "" {
		return nil, ErrNoIdentity
	}
	return id, nil
}

type contextKey string

const (
	contextKeyIdentity      contextKey = "identity"
	contextKeyCorrelationID contextKey = "correlation_id"
)

func withIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, id)
}

func identityFrom(ctx context.Context) *Identity {
	if id, ok := ctx.Value(contextKeyIdentity).(*Identity); ok {
		return id
	}
	return nil
}

func withCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyCorrelationID, id)
}

func correlationIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyCorrelationID).(string); ok {
		return id
	}
	return ""
}

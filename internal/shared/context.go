package shared

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// OwnerHeader carries the owning-user scope for API requests.
const OwnerHeader = "X-Owner-ID"

// ErrOwnerRequired indicates the request carried no usable owner scope.
var ErrOwnerRequired = errors.New("owner scope required")

type ownerContextKey struct{}

// ContextWithOwner stores the owner scope in context.
func ContextWithOwner(ctx context.Context, owner uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, owner)
}

// OwnerFromContext extracts the owner scope from context.
func OwnerFromContext(ctx context.Context) (uuid.UUID, bool) {
	owner, ok := ctx.Value(ownerContextKey{}).(uuid.UUID)
	if !ok || owner == uuid.Nil {
		return uuid.Nil, false
	}
	return owner, true
}

// OwnerFromRequest parses the owner header.
func OwnerFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if raw == "" {
		return uuid.Nil, ErrOwnerRequired
	}
	owner, err := uuid.Parse(raw)
	if err != nil || owner == uuid.Nil {
		return uuid.Nil, ErrOwnerRequired
	}
	return owner, nil
}

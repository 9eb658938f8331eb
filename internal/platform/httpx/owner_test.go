package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/royaltyops/royaltyops/internal/shared"
)

func TestRequireOwner(t *testing.T) {
	var seen uuid.UUID
	h := RequireOwner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.OwnerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(shared.OwnerHeader, "not-a-uuid")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	owner := uuid.New()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(shared.OwnerHeader, owner.String())
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, owner, seen)
}

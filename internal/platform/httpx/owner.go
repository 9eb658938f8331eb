package httpx

import (
	"fmt"
	"net/http"

	"github.com/royaltyops/royaltyops/internal/shared"
)

// RequireOwner rejects requests without a valid owner header and stores the
// owner in the request context.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := shared.OwnerFromRequest(r)
		if err != nil {
			RespondError(w, fmt.Errorf("%w: %s header must carry an owner uuid", ErrUnauthorized, shared.OwnerHeader))
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithOwner(r.Context(), owner)))
	})
}

package middleware

import (
	"context"
	"log"
	"net/http"
)

// AdminChecker answers whether a Clerk user holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, clerkID string) (bool, error)
}

// RequireAdmin gates challenge and team management behind the admin role.
// Must run after ClerkAuthMiddleware.
func RequireAdmin(checker AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clerkID, ok := GetClerkID(r.Context())
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "User not authenticated")
				return
			}

			isAdmin, err := checker.IsAdmin(r.Context(), clerkID)
			if err != nil {
				log.Printf("Admin check failed for %s: %v", clerkID, err)
				respondWithError(w, http.StatusInternalServerError, "Failed to verify permissions")
				return
			}
			if !isAdmin {
				respondWithError(w, http.StatusForbidden, "Admin access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

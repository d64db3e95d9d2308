package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/middleware/request"
	platformstrings "kycflow/pkg/platform/strings"
	"kycflow/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator. The
// identity subsystem issues tokens; the engine only trusts what they carry.
type JWTClaims struct {
	UserID      string
	Roles       []string
	BranchID    string
	Permissions []string
}

// Actor converts validated claims into the domain actor.
func (c *JWTClaims) Actor() (id.Actor, error) {
	userID, err := id.ParseUserID(c.UserID)
	if err != nil {
		return id.Actor{}, err
	}
	actor := id.Actor{
		UserID:      userID,
		Roles:       platformstrings.DedupeNames(c.Roles),
		Permissions: platformstrings.DedupeScopes(c.Permissions),
	}
	if c.BranchID != "" {
		branchID, err := id.ParseBranchID(c.BranchID)
		if err != nil {
			return id.Actor{}, err
		}
		actor.BranchID = branchID
	}
	return actor, nil
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth validates the bearer token and stores the actor in the request
// context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			actor, err := claims.Actor()
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed claims",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid token claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, actor)))
		})
	}
}

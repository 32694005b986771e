package middleware

import (
	"context"
	"strings"

	"github.com/communityconnect/connect/backend/go-services/internal/models"
	"github.com/communityconnect/connect/backend/go-services/pkg/apperr"
	"github.com/communityconnect/connect/backend/go-services/pkg/logger"
	"github.com/communityconnect/connect/backend/go-services/pkg/response"
	"github.com/gin-gonic/gin"
)

const (
	// IdentityKey holds the *models.User attached by Identity.
	IdentityKey = "identity"
	// ClaimsKey holds the verified token claims attached by VerifyBearer.
	ClaimsKey = "claims"
)

// Reason codes returned with 401 responses.
const (
	ReasonMissingIdentity = "missing_identity"
	ReasonUnknownIdentity = "unknown_identity"
	ReasonInactiveAccount = "inactive_account"
	ReasonInvalidToken    = "invalid_token"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// Directory resolves a raw identity header value to a user. A malformed or
// unknown id yields nil, nil.
type Directory interface {
	Lookup(ctx context.Context, rawID string) (*models.User, error)
}

// Identity resolves the caller from X-User-Id, falling back to User-Id and
// then to the Authorization header with any scheme stripped. Requests
// without an active user are rejected with 401.
func Identity(dir Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := headerIdentity(c)
		if raw == "" {
			response.Fail(c, apperr.Unauthenticated(ReasonMissingIdentity, "Authentication required - Please include x-user-id header"))
			return
		}
		u, err := dir.Lookup(c.Request.Context(), raw)
		if err != nil {
			response.Fail(c, apperr.Internal("Authentication failed", err))
			return
		}
		if u == nil {
			logger.Debugf("identity %q not found", raw)
			response.Fail(c, apperr.Unauthenticated(ReasonUnknownIdentity, "User not found - Invalid user ID"))
			return
		}
		if !u.IsActive {
			response.Fail(c, apperr.Unauthenticated(ReasonInactiveAccount, "User account is inactive"))
			return
		}
		c.Set(IdentityKey, u)
		c.Next()
	}
}

func headerIdentity(c *gin.Context) string {
	for _, h := range []string{"X-User-Id", "User-Id"} {
		if v := strings.TrimSpace(c.GetHeader(h)); v != "" {
			return v
		}
	}
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if i := strings.IndexByte(auth, ' '); i >= 0 {
		auth = strings.TrimSpace(auth[i+1:])
	}
	return auth
}

// CurrentUser returns the identity attached by Identity, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

// RequireAdmin must run after Identity.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentUser(c).IsAdmin() {
			response.Fail(c, apperr.Forbidden("Admin access required"))
			return
		}
		c.Next()
	}
}

// VerifyBearer verifies a Bearer ID token with ver and stores its claims
// under ClaimsKey. A nil verifier lets every request through untouched.
func VerifyBearer(ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ver == nil {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if auth == "" {
			response.Fail(c, apperr.Unauthenticated(ReasonMissingIdentity, "missing Authorization header"))
			return
		}
		scheme, token, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			response.Fail(c, apperr.Unauthenticated(ReasonInvalidToken, "invalid Authorization header"))
			return
		}

		idToken, err := ver.Verify(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			logger.Debugf("token verification failed: %v", err)
			response.Fail(c, apperr.Unauthenticated(ReasonInvalidToken, "invalid token"))
			return
		}

		var claims map[string]interface{}
		if err := idToken.Claims(&claims); err != nil {
			response.Fail(c, apperr.Unauthenticated(ReasonInvalidToken, "failed to parse claims"))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

package middleware

import (
	"context"
	"strings"

	"medshop/internal/apperr"
	"medshop/internal/auth"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// Authenticator turns a bearer token into the caller's Principal.
// auth.Service reloads the user, auth.TokenIssuer trusts the claims.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// AuthMiddleware checks if the request carries a valid session JWT and stores
// the caller's Principal in the context.
func AuthMiddleware(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, apperr.Unauthorized("authorization header is required"))
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			abort(c, apperr.Unauthorized("authorization header must start with Bearer"))
			return
		}

		principal, err := authn.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			abort(c, err)
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireRole is a secondary guard that checks for specific permissions.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := Principal(c).Require(role); err != nil {
			abort(c, err)
			return
		}
		c.Next()
	}
}

// Principal returns the authenticated caller, or the zero Principal on public routes.
func Principal(c *gin.Context) auth.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(auth.Principal); ok {
			return p
		}
	}
	return auth.Principal{}
}

// abort records err for ErrorHandler and stops the chain.
func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

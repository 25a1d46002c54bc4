package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/pkg/errors"
	"github.com/hearthly/hearth/pkg/response"
)

const (
	CtxClaimsKey   = "authClaims"
	CtxMemberIDKey = "memberID"
	CtxRoleKey     = "role"
)

// Auth enforces bearer JWT authentication for the given household.
func Auth(jwt *iauth.JWTService, household string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateToken(token)
		if err != nil || (household != "" && claims.Household != household) {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxRoleKey, claims.Role)
		if claims.MemberID != "" {
			c.Set(CtxMemberIDKey, claims.MemberID)
		}

		c.Next()
	}
}

// BearerToken extracts the token from the Authorization header, falling back to
// the access_token query parameter used by websocket clients.
func BearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		if token := strings.TrimSpace(authz[7:]); token != "" {
			return token, true
		}
	}
	if token := strings.TrimSpace(c.Query("access_token")); token != "" {
		return token, true
	}
	return "", false
}

// ClaimsFrom returns the claims stored by Auth.
func ClaimsFrom(c *gin.Context) (*iauth.Claims, bool) {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*iauth.Claims)
	return claims, ok && claims != nil
}

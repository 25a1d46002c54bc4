package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/hearthly/hearth/pkg/errors"
	"github.com/hearthly/hearth/pkg/response"
)

// RequireRole allows the request through only when the token carries one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		role := c.GetString(CtxRoleKey)
		if role == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[role]; !ok {
			response.Error(c, errors.ErrForbidden.WithMessage("role "+role+" may not perform this action"))
			c.Abort()
			return
		}
		c.Next()
	}
}

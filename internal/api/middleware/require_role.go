package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoomemory/internal/utils"
)

const RoleAdmin = "admin"

// RequireRole must run after JWTAuth. Role names compare case-insensitively.
func RequireRole(roles ...string) gin.HandlerFunc {
	want := make([]string, 0, len(roles))
	for _, r := range roles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			want = append(want, r)
		}
	}

	return func(c *gin.Context) {
		role := strings.ToLower(c.GetString(CtxRole))
		if role == "" || !slices.Contains(want, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, apiError{
				Code:    utils.CodeForbidden,
				Message: "role " + strings.Join(want, "|") + " required",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin guards the maintenance routes (sweeps, backfill).
func RequireAdmin() gin.HandlerFunc { return RequireRole(RoleAdmin) }

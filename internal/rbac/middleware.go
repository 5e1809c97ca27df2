package rbac

import (
	"net/http"

	"tutorme-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireAnyRole allows access if the caller has any of the provided roles.
// Rules:
// - admin bypasses all checks
// - lesson-level authorization (is the caller the tutor or the student of
//   this lesson) is NOT done here; the session controller rejects
//   non-participants before any call resources are acquired
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}

		if IsAdmin(role) {
			c.Next()
			return
		}

		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

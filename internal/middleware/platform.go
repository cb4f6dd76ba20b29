package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/vs-ai-ds/hms-backend/internal/repository"
)

// PlatformMiddleware guards tenant lifecycle administration. Only
// platform operators, identified by a user row with no tenant, pass.
type PlatformMiddleware struct {
	users repository.UserRepository
}

func NewPlatformMiddleware(users repository.UserRepository) *PlatformMiddleware {
	return &PlatformMiddleware{users: users}
}

func (m *PlatformMiddleware) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			abortUnauthorized(c, "missing authentication")
			return
		}
		user, err := m.users.Get(c.Request.Context(), userID)
		if err != nil {
			abortUnauthorized(c, "account no longer exists")
			return
		}
		if !user.IsPlatformOperator() {
			abortForbidden(c, "platform_only", "platform operator access required")
			return
		}
		c.Next()
	}
}

package middleware

import (
	"github.com/gin-gonic/gin"
)

const (
	HeaderAccessReason  = "X-Access-Reason"
	ContextAccessReason = "access_reason"
)

// AccessReason captures the caller's stated reason for touching a
// record. Handlers forward it into the audit trail; it is free text
// and never interpreted.
func AccessReason() gin.HandlerFunc {
	return func(c *gin.Context) {
		if reason := c.GetHeader(HeaderAccessReason); reason != "" {
			c.Set(ContextAccessReason, reason)
		}
		c.Next()
	}
}

// NoStore forbids intermediaries and browsers from caching responses.
// Applied to every route that can return clinical data.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}

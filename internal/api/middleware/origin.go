package middleware

import (
	"net/http"

	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/command"
	"github.com/gin-gonic/gin"
)

// TrustedOriginOnly rejects requests whose Origin header is not a local
// shell page under policy.
func TrustedOriginOnly(policy command.OriginPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !policy.Trusted(c.GetHeader("Origin")) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "access denied",
			})
			return
		}
		c.Next()
	}
}

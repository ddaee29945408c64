package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAuthority rejects requests whose principal lacks authority.
func RequireAuthority(authority string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok || !p.HasAuthority(authority) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "insufficient authority")
			c.Abort()
			return
		}
		c.Next()
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, X-Request-Id"
)

// CORS answers preflight requests and echoes allowlisted origins. Entries
// ending in "*" match by prefix, e.g. "chrome-extension://*". An empty
// allowlist allows every origin.
func CORS(allowlist []string) gin.HandlerFunc {
	exact := make(map[string]struct{}, len(allowlist))
	var prefixes []string
	for _, origin := range allowlist {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if strings.HasSuffix(trimmed, "*") {
			prefixes = append(prefixes, strings.TrimSuffix(trimmed, "*"))
			continue
		}
		exact[trimmed] = struct{}{}
	}
	allowAll := len(exact) == 0 && len(prefixes) == 0
	match := func(origin string) bool {
		if _, ok := exact[origin]; ok {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(origin, p) {
				return true
			}
		}
		return false
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		h := c.Writer.Header()
		if allowAll {
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		} else if origin != "" && match(origin) {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

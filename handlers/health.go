package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// RegisterHealth mounts /health (liveness) and /ready. Readiness answers 503
// when any check fails; the body lists every dependency.
func RegisterHealth(r *gin.Engine, started time.Time, checks map[string]Check) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		ready := true
		deps := map[string]bool{}
		for name, check := range checks {
			ok := check(ctx) == nil
			deps[name] = ok
			ready = ready && ok
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(started).String()})
	})
}

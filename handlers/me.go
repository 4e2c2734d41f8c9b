package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qmdoc/doccontrol/internal/directory"
	"github.com/qmdoc/doccontrol/internal/identity"
)

// RegisterMe mounts GET /me, which echoes the actor resolved from the token
// together with the stored directory profile, if any.
func RegisterMe(rg *gin.RouterGroup, dir *directory.Service) {
	rg.GET("/me", func(c *gin.Context) {
		v, _ := c.Get("claims")
		claims, _ := v.(map[string]interface{})
		actor, err := identity.ActorFromClaims(claims)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		resp := gin.H{"actor": actor}
		if dir != nil {
			p, err := dir.Get(c.Request.Context(), actor.ID)
			if err == nil && p != nil {
				resp["profile"] = p
			}
		}
		c.JSON(http.StatusOK, resp)
	})
}

package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmdoc/doccontrol/internal/directory"
	"github.com/qmdoc/doccontrol/internal/identity"
	"github.com/qmdoc/doccontrol/pkg/middleware"
)

func TestReadiness(t *testing.T) {
	g := gin.New()
	healthy := true
	RegisterHealth(g, time.Now(), map[string]Check{
		"storage": func(context.Context) error { return nil },
		"redis": func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("down")
		},
	})

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)

	healthy = false
	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status string          `json:"status"`
		Deps   map[string]bool `json:"deps"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, map[string]bool{"storage": true, "redis": false}, body.Deps)
}

func TestMeReturnsActorAndProfile(t *testing.T) {
	dir := directory.NewService(directory.NewMemoryRepository())
	g := gin.New()
	api := g.Group("/api/v1", middleware.AuthMiddleware(identity.NewInsecureVerifier(), func(ctx context.Context, claims map[string]interface{}) {
		_, _ = dir.UpsertFromClaims(ctx, claims)
	}))
	RegisterMe(api, dir)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+insecureToken(t, map[string]interface{}{"sub": "quinn", "name": "Quinn Q", "roles": []string{"QMB"}}))
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Actor   map[string]interface{} `json:"actor"`
		Profile map[string]interface{} `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "quinn", body.Actor["id"])
	assert.Equal(t, []interface{}{"QMB"}, body.Actor["roles"])
	assert.Equal(t, "Quinn Q", body.Profile["name"])
}

func insecureToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return "e30." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

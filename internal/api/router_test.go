package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbase/fieldbase/internal/database/testutil"
	"github.com/fieldbase/fieldbase/internal/middleware"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r, err := NewRouter(testutil.MustOpenTestDB(t))
	require.NoError(t, err)
	return r
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func do(t *testing.T, r *gin.Engine, method, path, actor string, body any) (int, apiEnvelope) {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(encoded)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(middleware.ActorHeader, actor)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var envelope apiEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), "body: %s", w.Body.String())
	return w.Code, envelope
}

func createUser(t *testing.T, r *gin.Engine, username string) string {
	t.Helper()
	code, envelope := do(t, r, http.MethodPost, "/api/users", "bootstrap", map[string]any{
		"username": username,
		"email":    fmt.Sprintf("%s@example.com", username),
	})
	require.Equal(t, http.StatusCreated, code)

	var user struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &user))
	return user.ID
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAPIRequiresActorHeader(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestLockLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	admin := createUser(t, r, "admin")
	holder := createUser(t, r, "holder")
	successor := createUser(t, r, "successor")

	code, envelope := do(t, r, http.MethodPost, "/api/projects", admin, map[string]any{
		"name": "river survey",
		"kind": "survey",
	})
	require.Equal(t, http.StatusCreated, code)

	var project struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &project))

	for _, userID := range []string{holder, successor} {
		code, _ = do(t, r, http.MethodPost, "/api/projects/"+project.ID+"/grants", admin, map[string]any{
			"principal_type": "user",
			"principal_id":   userID,
			"level":          "read_write",
		})
		require.Equal(t, http.StatusCreated, code)
	}

	// Holder takes the lock; successor is refused.
	code, _ = do(t, r, http.MethodPost, "/api/projects/"+project.ID+"/lock", holder, nil)
	require.Equal(t, http.StatusOK, code)

	code, envelope = do(t, r, http.MethodPost, "/api/projects/"+project.ID+"/lock", successor, nil)
	require.Equal(t, http.StatusConflict, code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "CONFLICT", envelope.Error.Code)

	// Only the holder can write content.
	code, _ = do(t, r, http.MethodPut, "/api/projects/"+project.ID+"/content", successor, map[string]any{
		"content": "stolen draft",
	})
	require.Equal(t, http.StatusForbidden, code)

	code, _ = do(t, r, http.MethodPut, "/api/projects/"+project.ID+"/content", holder, map[string]any{
		"content": "survey notes v1",
	})
	require.Equal(t, http.StatusOK, code)

	// Admin overrides the departed holder's lock; successor takes over.
	code, _ = do(t, r, http.MethodDelete, "/api/projects/"+project.ID+"/lock", admin, map[string]any{
		"comment": "holder unavailable",
	})
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, r, http.MethodPost, "/api/projects/"+project.ID+"/lock", successor, nil)
	require.Equal(t, http.StatusOK, code)

	code, envelope = do(t, r, http.MethodGet, "/api/projects/"+project.ID+"/lock", admin, nil)
	require.Equal(t, http.StatusOK, code)

	var status struct {
		Locked   bool   `json:"locked"`
		HolderID string `json:"holder_id"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &status))
	assert.True(t, status.Locked)
	assert.Equal(t, successor, status.HolderID)
}

func TestGrantRevokeOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	admin := createUser(t, r, "admin")
	member := createUser(t, r, "member")

	code, envelope := do(t, r, http.MethodPost, "/api/projects", admin, map[string]any{
		"name": "delta survey",
	})
	require.Equal(t, http.StatusCreated, code)

	var project struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &project))

	code, _ = do(t, r, http.MethodPost, "/api/projects/"+project.ID+"/grants", admin, map[string]any{
		"principal_type": "user",
		"principal_id":   member,
		"level":          "viewer",
	})
	require.Equal(t, http.StatusCreated, code)

	// Self-revocation is refused even for the admin.
	code, envelope = do(t, r, http.MethodDelete,
		"/api/projects/"+project.ID+"/grants/user/"+admin, admin, nil)
	require.Equal(t, http.StatusConflict, code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "SELF_MODIFY", envelope.Error.Code)

	code, _ = do(t, r, http.MethodDelete,
		"/api/projects/"+project.ID+"/grants/user/"+member, admin, nil)
	require.Equal(t, http.StatusOK, code)

	code, envelope = do(t, r, http.MethodGet, "/api/projects/"+project.ID+"/access/me", member, nil)
	require.Equal(t, http.StatusOK, code)

	var my struct {
		HasAccess bool `json:"has_access"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &my))
	assert.False(t, my.HasAccess)
}

func TestWatchlistWindowValidationOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	admin := createUser(t, r, "admin")

	code, envelope := do(t, r, http.MethodPost, "/api/projects", admin, map[string]any{
		"name": "sensor fleet",
		"kind": "fleet",
	})
	require.Equal(t, http.StatusCreated, code)

	var fleet struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &fleet))

	code, _ = do(t, r, http.MethodGet, "/api/projects/"+fleet.ID+"/watchlist?window_days=abc", admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, http.MethodGet, "/api/projects/"+fleet.ID+"/watchlist?window_days=-3", admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, http.MethodGet, "/api/projects/"+fleet.ID+"/watchlist?window_days=45", admin, nil)
	assert.Equal(t, http.StatusOK, code)
}

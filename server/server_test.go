package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stresstest-server/confs"
	"stresstest-server/entities"
)

func testConfig() *confs.Config {
	cfg := &confs.Config{}
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.Issuer = "stresstest-server"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Auth.AdminUser = "admin"
	cfg.Auth.AdminPassword = "pw"
	cfg.Telemetry.FlushInterval = time.Minute
	cfg.Tests.Versions = entities.DefaultVersions
	return cfg
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv, err := NewServer(testConfig(), nil)
	require.NoError(t, err)
	return srv.Handler()
}

func call(t *testing.T, h http.Handler, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]json.RawMessage
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func login(t *testing.T, h http.Handler) string {
	t.Helper()
	w, out := call(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var token string
	require.NoError(t, json.Unmarshal(out["token"], &token))
	return token
}

func decodeTest(t *testing.T, raw json.RawMessage) entities.DeviceTest {
	t.Helper()
	var d entities.DeviceTest
	require.NoError(t, json.Unmarshal(raw, &d))
	return d
}

func TestHealthAndReady(t *testing.T) {
	h := newTestServer(t)
	w, _ := call(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w, _ = call(t, h, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	h := newTestServer(t)
	w, _ := call(t, h, http.MethodGet, "/api/v1/device-tests", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = call(t, h, http.MethodGet, "/api/v1/device-tests", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = call(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := login(t, h)
	w, _ = call(t, h, http.MethodGet, "/api/v1/device-tests?token="+token, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, out := call(t, h, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(out["data"]), `"username":"admin"`)
}

func TestDeviceTestFlow(t *testing.T) {
	h := newTestServer(t)
	token := login(t, h)

	w, out := call(t, h, http.MethodPost, "/api/v1/device-tests", token, map[string]interface{}{
		"serial_number":    "SN1",
		"imei":             "111111111111111",
		"software_version": "v2.1.3",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeTest(t, out["data"])
	assert.Equal(t, entities.StatusPending, created.Status)
	assert.Equal(t, 100, created.BeforeBattery)

	for _, sn := range []string{"AB2", "CD3"} {
		w, _ = call(t, h, http.MethodPost, "/api/v1/device-tests", token, map[string]interface{}{"serial_number": sn, "imei": "2"})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, out = call(t, h, http.MethodGet, "/api/v1/device-tests?search=sn1&status=all&version=all", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", string(out["count"]))

	w, _ = call(t, h, http.MethodPost, "/api/v1/device-tests/"+created.ID+"/complete", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, out = call(t, h, http.MethodPost, "/api/v1/device-tests/"+created.ID+"/start", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entities.StatusRunning, decodeTest(t, out["data"]).Status)

	w, out = call(t, h, http.MethodPost, "/api/v1/device-tests/"+created.ID+"/complete", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	done := decodeTest(t, out["data"])
	assert.Equal(t, entities.StatusCompleted, done.Status)
	assert.NotNil(t, done.EndTime)

	w, out = call(t, h, http.MethodGet, "/api/v1/device-tests/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":3,"pending":2,"running":0,"completed":1,"failed":0}`, string(out["data"]))

	in := done.Input()
	in.Remarks = "passed"
	w, out = call(t, h, http.MethodPut, "/api/v1/device-tests/"+created.ID, token, in)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "passed", decodeTest(t, out["data"]).Remarks)

	w, _ = call(t, h, http.MethodDelete, "/api/v1/device-tests/"+created.ID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = call(t, h, http.MethodPut, "/api/v1/device-tests/"+created.ID, token, in)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = call(t, h, http.MethodGet, "/api/v1/device-tests/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidationErrorResponse(t *testing.T) {
	h := newTestServer(t)
	token := login(t, h)

	w, out := call(t, h, http.MethodPost, "/api/v1/device-tests", token, map[string]interface{}{
		"serial_number":    "SN1",
		"software_version": "v0.0.1",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(out["fields"], &fields))
	assert.Contains(t, fields, "imei")
	assert.Contains(t, fields, "software_version")
}

func TestVersionsAndReadings(t *testing.T) {
	h := newTestServer(t)
	token := login(t, h)

	w, out := call(t, h, http.MethodGet, "/api/v1/versions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4", string(out["count"]))

	w, _ = call(t, h, http.MethodGet, "/api/v1/device-tests/missing/readings", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, out = call(t, h, http.MethodGet, "/api/v1/cache/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(out["stats"]), "total_readings")

	w, out = call(t, h, http.MethodGet, "/api/v1/devices/connected", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", string(out["count"]))
}

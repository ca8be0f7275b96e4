package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stresstest-server/auth"
)

func engine(v auth.Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recoverer(), RequestID(), Logger())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	r.GET("/ws", RequireUserWS(v), func(c *gin.Context) {
		id, _ := CurrentUser(c)
		c.String(http.StatusOK, id.UserID)
	})
	r.GET("/me", RequireUser(v), func(c *gin.Context) {
		id, ok := CurrentUser(c)
		fromCtx, _ := auth.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"ok": ok, "user": id.Username, "ctx": fromCtx.UserID})
	})
	return r
}

func get(r http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireUser(t *testing.T) {
	issuer := auth.NewIssuer("secret", "test", "", time.Hour)
	r := engine(auth.NewHMACVerifier("secret", "test", ""))
	token, _, err := issuer.Issue(auth.Identity{UserID: "u1", Username: "ops"})
	require.NoError(t, err)

	w := get(r, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(r, "/me", http.Header{"Authorization": {"Basic abc"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(r, "/me", http.Header{"Authorization": {"Bearer " + token}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"user":"ops","ctx":"u1"}`, w.Body.String())

	w = get(r, "/me?token="+token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "query tokens stay off REST routes")

	w = get(r, "/ws?token="+token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())
}

func TestRequestID(t *testing.T) {
	r := engine(auth.NewHMACVerifier("secret", "", ""))

	w := get(r, "/me", http.Header{"X-Request-Id": {"abc-123"}})
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))

	w = get(r, "/me", nil)
	assert.Len(t, w.Header().Get("X-Request-Id"), 36)
}

func TestRecoverer(t *testing.T) {
	r := engine(auth.NewHMACVerifier("secret", "", ""))
	w := get(r, "/panic", http.Header{"X-Request-Id": {"req-1"}})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"unexpected server error","reqid":"req-1"}`, w.Body.String())
}

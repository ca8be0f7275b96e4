package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"stresstest-server/auth"
)

const identityKey = "identity"

// RequireUser rejects requests without a valid bearer token.
func RequireUser(v auth.Verifier) gin.HandlerFunc {
	return requireUser(v, false)
}

// RequireUserWS is RequireUser for the websocket upgrade. Browsers cannot set
// headers on it, so a token query param is accepted as well.
func RequireUserWS(v auth.Verifier) gin.HandlerFunc {
	return requireUser(v, true)
}

func requireUser(v auth.Verifier, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c, allowQuery)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		id, err := v.Verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(identityKey, id)
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// CurrentUser returns the identity set by RequireUser.
func CurrentUser(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

func bearerToken(c *gin.Context, allowQuery bool) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if allowQuery {
		return c.Query("token")
	}
	return ""
}

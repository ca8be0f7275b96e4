package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"stresstest-server/logs"
)

// Logger writes one access log line per request.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logs.Logger.Infof("reqid=%s method=%s uri=%s status=%d bytes=%d dur=%s ip=%s ua=%q",
			GetRequestID(c), c.Request.Method, c.Request.RequestURI, c.Writer.Status(),
			c.Writer.Size(), time.Since(start), c.ClientIP(), c.Request.UserAgent())
	}
}

// Recoverer turns a handler panic into a logged 500.
func Recoverer() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				reqid := GetRequestID(c)
				logs.Logger.Errorf("panic: %v reqid=%s uri=%s method=%s\nstack:\n%s",
					rec, reqid, c.Request.RequestURI, c.Request.Method, string(debug.Stack()))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "unexpected server error",
					"reqid": reqid,
				})
			}
		}()
		c.Next()
	}
}

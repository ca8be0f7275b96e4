package httpHandler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stresstest-server/auth"
	"stresstest-server/entities"
	"stresstest-server/logs"
	"stresstest-server/middleware"
	"stresstest-server/repositories"
	"stresstest-server/usecases"
)

// respondError maps domain errors onto status codes.
func respondError(c *gin.Context, err error) {
	var verr *entities.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, usecases.ErrIDRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, usecases.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Device test not found"})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrStoreUnavailable):
		logs.Logger.Errorf("reqid=%s store unavailable: %v", middleware.GetRequestID(c), err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	default:
		logs.Logger.Errorf("reqid=%s unexpected error: %v", middleware.GetRequestID(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

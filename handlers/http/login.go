package httpHandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stresstest-server/auth"
	"stresstest-server/middleware"
)

type LoginHandler struct {
	auth *auth.Service
}

func NewLoginHandler(svc *auth.Service) *LoginHandler {
	return &LoginHandler{auth: svc}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates a user and returns a bearer token
func (h *LoginHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Me handles GET /api/v1/auth/me
func (h *LoginHandler) Me(c *gin.Context) {
	id, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthenticated.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": id})
}

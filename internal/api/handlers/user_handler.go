package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cloudrent/api/internal/api/middleware"
	"cloudrent/api/internal/auth"
	"cloudrent/api/internal/config"
	"cloudrent/api/internal/services"
)

// UserHandler handles account registration and login.
type UserHandler struct {
	cfg         *config.Config
	userService services.IUserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(cfg *config.Config, userService services.IUserService) *UserHandler {
	return &UserHandler{cfg: cfg, userService: userService}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register handles POST /api/users/register.
func (h *UserHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/users/login. Returns a bearer token identifying the actor.
func (h *UserHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.userService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.IsAdmin, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, gin.H{"token": token, "user": user})
}

// Me handles GET /api/users/me.
func (h *UserHandler) Me(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	user, err := h.userService.FindByID(c.Request.Context(), actorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, user)
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cloudrent/api/internal/api/middleware"
	"cloudrent/api/internal/models"
	"cloudrent/api/internal/services"
	"cloudrent/api/internal/utils"
)

// RentalHandler handles REST requests for the rental lifecycle.
type RentalHandler struct {
	rentalService services.IRentalService
}

// NewRentalHandler creates a new RentalHandler.
func NewRentalHandler(rentalService services.IRentalService) *RentalHandler {
	return &RentalHandler{rentalService: rentalService}
}

type createRentalRequest struct {
	ComputerID string `json:"computerId" binding:"required"`
	StartDate  string `json:"startDate" binding:"required"`
	EndDate    string `json:"endDate" binding:"required"`
	RentalType string `json:"rentalType" binding:"required"`
}

// Create handles POST /api/rentals.
func (h *RentalHandler) Create(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req createRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	computerID, err := utils.ParseSixID(req.ComputerID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid computer ID format")
		return
	}
	startDate, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid start date: expected RFC 3339")
		return
	}
	endDate, err := time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid end date: expected RFC 3339")
		return
	}

	rental, err := h.rentalService.CreateRental(c.Request.Context(), computerID, actorID,
		startDate, endDate, models.RentalType(req.RentalType))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusCreated, rental)
}

// List handles GET /api/rentals, returning rentals where the actor is renter or owner.
func (h *RentalHandler) List(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	rentals, err := h.rentalService.ListRentalsByActor(c.Request.Context(), actorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, rentals)
}

// Get handles GET /api/rentals/:id.
func (h *RentalHandler) Get(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	rentalID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid rental ID format")
		return
	}

	rental, err := h.rentalService.FindRentalByID(c.Request.Context(), rentalID, actorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, rental)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus handles PUT /api/rentals/:id.
func (h *RentalHandler) UpdateStatus(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	rentalID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid rental ID format")
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	rental, err := h.rentalService.UpdateStatus(c.Request.Context(), rentalID, actorID, models.RentalStatus(req.Status))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, rental)
}

type accessDetailsRequest struct {
	IPAddress string `json:"ipAddress" binding:"required"`
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password"`
	AccessURL string `json:"accessUrl"`
}

// SetAccessDetails handles PUT /api/rentals/:id/access. The password is
// encrypted by the service; responses never contain it.
func (h *RentalHandler) SetAccessDetails(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	rentalID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid rental ID format")
		return
	}

	var req accessDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	rental, err := h.rentalService.SetAccessDetails(c.Request.Context(), rentalID, actorID, models.AccessDetails{
		IPAddress:   req.IPAddress,
		Username:    req.Username,
		PasswordEnc: req.Password, // plaintext in transit only; sealed by the service
		AccessURL:   req.AccessURL,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, rental)
}

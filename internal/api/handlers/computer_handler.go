package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cloudrent/api/internal/api/middleware"
	"cloudrent/api/internal/config"
	"cloudrent/api/internal/models"
	"cloudrent/api/internal/services"
	"cloudrent/api/internal/storage"
	"cloudrent/api/internal/tasks"
	"cloudrent/api/internal/utils"
)

// ComputerHandler handles REST requests for computer listings.
type ComputerHandler struct {
	cfg             *config.Config
	computerService services.IComputerService
	storageService  storage.IPhotoStorage
	taskClient      IAsynqClient
}

// NewComputerHandler creates a new ComputerHandler.
func NewComputerHandler(cfg *config.Config, computerService services.IComputerService, storageService storage.IPhotoStorage, taskClient IAsynqClient) *ComputerHandler {
	return &ComputerHandler{
		cfg:             cfg,
		computerService: computerService,
		storageService:  storageService,
		taskClient:      taskClient,
	}
}

type createComputerRequest struct {
	Title       string            `json:"title" binding:"required"`
	Description string            `json:"description"`
	Specs       models.Specs      `json:"specs"`
	Location    string            `json:"location"`
	Price       models.PriceTiers `json:"price"`
}

// Create handles POST /api/computers.
func (h *ComputerHandler) Create(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req createComputerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	computer, err := h.computerService.CreateComputer(c.Request.Context(), actorID,
		req.Title, req.Description, req.Specs, req.Location, req.Price)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusCreated, computer)
}

// List handles GET /api/computers with optional status/location/max_hourly filters.
func (h *ComputerHandler) List(c *gin.Context) {
	filter := services.ComputerFilter{
		Status:   models.AvailabilityStatus(c.Query("status")),
		Location: c.Query("location"),
	}
	if maxHourly := c.Query("max_hourly"); maxHourly != "" {
		if v, err := strconv.ParseFloat(maxHourly, 64); err == nil && v > 0 {
			filter.MaxHourlyPrice = v
		}
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = v
		}
	}
	if ownerStr := c.Query("owner"); ownerStr != "" {
		ownerID, err := utils.ParseSixID(ownerStr)
		if err != nil {
			respondError(c, http.StatusBadRequest, "Invalid owner ID format")
			return
		}
		filter.OwnerID = &ownerID
	}

	computers, err := h.computerService.SearchComputers(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, computers)
}

// Get handles GET /api/computers/:id.
func (h *ComputerHandler) Get(c *gin.Context) {
	computerID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid computer ID format")
		return
	}

	computer, err := h.computerService.FindComputerByID(c.Request.Context(), computerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, computer)
}

// Update handles PUT /api/computers/:id.
func (h *ComputerHandler) Update(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	computerID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid computer ID format")
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	computer, err := h.computerService.UpdateComputer(c.Request.Context(), computerID, actorID, updates)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, computer)
}

// Delete handles DELETE /api/computers/:id.
func (h *ComputerHandler) Delete(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	computerID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid computer ID format")
		return
	}

	if err := h.computerService.DeleteComputer(c.Request.Context(), computerID, actorID); err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, gin.H{"deleted": true})
}

type addReviewRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// AddReview handles POST /api/computers/:id/reviews.
func (h *ComputerHandler) AddReview(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	computerID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid computer ID format")
		return
	}

	var req addReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	computer, err := h.computerService.AddReview(c.Request.Context(), computerID, actorID, req.Rating, req.Comment)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusCreated, computer)
}

type setMaintenanceRequest struct {
	Enabled bool                      `json:"enabled"`
	Window  *models.MaintenanceWindow `json:"window,omitempty"`
}

// SetMaintenance handles PUT /api/computers/:id/maintenance.
func (h *ComputerHandler) SetMaintenance(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	computerID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid computer ID format")
		return
	}

	var req setMaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.computerService.SetMaintenance(c.Request.Context(), computerID, actorID, req.Enabled, req.Window); err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, gin.H{"maintenance": req.Enabled})
}

// UploadPhoto handles POST /api/computers/:id/photos. The raw upload is
// stored under a staging key and processed (resize, re-encode) by the photo
// worker before it appears on the listing.
func (h *ComputerHandler) UploadPhoto(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	computerID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid computer ID format")
		return
	}

	// Ownership check up front: only the owner may attach photos.
	computer, err := h.computerService.FindComputerByID(c.Request.Context(), computerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if computer.OwnerID != actorID {
		respondError(c, http.StatusForbidden, "Only the owner can upload photos")
		return
	}

	maxBytes := int64(h.cfg.PhotoMaxSizeMB) * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1))
	if err != nil || len(body) == 0 {
		respondError(c, http.StatusBadRequest, "Missing upload body")
		return
	}
	if int64(len(body)) > maxBytes {
		respondError(c, http.StatusBadRequest, "Upload exceeds maximum photo size")
		return
	}

	uploadKey, err := h.storageService.PutUpload(c.Request.Context(), computerID.String(), body, c.ContentType())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	payload, _ := json.Marshal(tasks.PhotoProcessPayload{
		ComputerID: computerID.String(),
		UploadKey:  uploadKey,
	})
	if _, err := h.taskClient.Enqueue(tasks.NewPhotoProcessTask(payload)); err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusAccepted, gin.H{"upload_key": uploadKey})
}

package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"cloudrent/api/internal/api/middleware"
	"cloudrent/api/internal/services"
	"cloudrent/api/internal/tasks"
	"cloudrent/api/internal/utils"
)

// ConversationHandler handles REST requests for messaging.
type ConversationHandler struct {
	conversationService services.IConversationService
	taskClient          IAsynqClient
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(conversationService services.IConversationService, taskClient IAsynqClient) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
		taskClient:          taskClient,
	}
}

// List handles GET /api/conversations.
func (h *ConversationHandler) List(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	conversations, err := h.conversationService.ListForUser(c.Request.Context(), actorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, conversations)
}

type getOrCreateRequest struct {
	ComputerID string `json:"computerId" binding:"required"`
}

// GetOrCreate handles POST /api/conversations.
func (h *ConversationHandler) GetOrCreate(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req getOrCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	computerID, err := utils.ParseSixID(req.ComputerID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid computer ID format")
		return
	}

	conversation, err := h.conversationService.GetOrCreate(c.Request.Context(), computerID, actorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, conversation)
}

// Get handles GET /api/conversations/:id.
func (h *ConversationHandler) Get(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	conversationID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid conversation ID format")
		return
	}

	conversation, err := h.conversationService.FindConversationByID(c.Request.Context(), conversationID, actorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, conversation)
}

// GetMessages handles GET /api/conversations/:id/messages.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	conversationID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid conversation ID format")
		return
	}

	messages, err := h.conversationService.GetMessages(c.Request.Context(), conversationID, actorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, messages)
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// SendMessage handles POST /api/conversations/:id/messages.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	conversationID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid conversation ID format")
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	message, err := h.conversationService.SendMessage(c.Request.Context(), conversationID, actorID, req.Content)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// Notify the recipient out of band; delivery failure never fails the send.
	payload, _ := json.Marshal(tasks.MessageNotifyPayload{
		ConversationID: conversationID.String(),
		MessageID:      message.ID.String(),
		SenderID:       actorID.String(),
	})
	if _, err := h.taskClient.Enqueue(tasks.NewMessageNotifyTask(payload)); err != nil {
		log.Printf("WARN: failed to enqueue message notification for conversation %s: %v",
			conversationID.String(), err)
	}

	respondData(c, http.StatusCreated, message)
}

// MarkRead handles PUT /api/conversations/:id/read.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	conversationID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid conversation ID format")
		return
	}

	if err := h.conversationService.MarkRead(c.Request.Context(), conversationID, actorID); err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, gin.H{"read": true})
}

// Unread handles GET /api/conversations/unread.
func (h *ConversationHandler) Unread(c *gin.Context) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	total, err := h.conversationService.UnreadTotal(c.Request.Context(), actorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusOK, gin.H{"unread": total})
}

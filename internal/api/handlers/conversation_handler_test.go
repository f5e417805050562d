package handlers_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"cloudrent/api/internal/api/handlers"
	"cloudrent/api/internal/api/middleware"
	"cloudrent/api/internal/models"
	"cloudrent/api/internal/services"
	"cloudrent/api/internal/tasks"
	"cloudrent/api/internal/utils"
)

func setupConversationRouter(conversationService services.IConversationService, taskClient handlers.IAsynqClient) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewConversationHandler(conversationService, taskClient)
	r := gin.New()
	authed := r.Group("/api", middleware.AuthMiddleware(testJwtSecret))
	authed.GET("/conversations", handler.List)
	authed.POST("/conversations", handler.GetOrCreate)
	authed.GET("/conversations/unread", handler.Unread)
	authed.POST("/conversations/:id/messages", handler.SendMessage)
	authed.PUT("/conversations/:id/read", handler.MarkRead)
	return r
}

func TestConversationHandler_GetOrCreate(t *testing.T) {
	mockSvc := new(MockConversationService)
	router := setupConversationRouter(mockSvc, new(MockAsynqClient))

	buyerID := utils.NewSixID()
	computerID := utils.NewSixID()
	conversation := &models.Conversation{Base: models.Base{ID: utils.NewSixID()}, ComputerID: computerID, BuyerID: buyerID}
	mockSvc.On("GetOrCreate", mock.Anything, computerID, buyerID).Return(conversation, nil)

	body := gin.H{"computerId": computerID.String()}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/conversations", body, buyerID))
	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestConversationHandler_SendMessage_EnqueuesNotification(t *testing.T) {
	mockSvc := new(MockConversationService)
	mockClient := new(MockAsynqClient)
	router := setupConversationRouter(mockSvc, mockClient)

	senderID := utils.NewSixID()
	conversationID := utils.NewSixID()
	message := &models.Message{Base: models.Base{ID: utils.NewSixID()}, ConversationID: conversationID, SenderID: senderID, Content: "hi"}
	mockSvc.On("SendMessage", mock.Anything, conversationID, senderID, "hi").Return(message, nil)

	mockClient.On("Enqueue", mock.MatchedBy(func(task *asynq.Task) bool {
		if task.Type() != tasks.TypeMessageNotify {
			return false
		}
		var payload tasks.MessageNotifyPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return false
		}
		return payload.ConversationID == conversationID.String() &&
			payload.MessageID == message.ID.String() &&
			payload.SenderID == senderID.String()
	}), mock.Anything).Return(&asynq.TaskInfo{}, nil)

	body := gin.H{"content": "hi"}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/conversations/"+conversationID.String()+"/messages", body, senderID))

	assert.Equal(t, http.StatusCreated, w.Code)
	mockClient.AssertExpectations(t)
}

func TestConversationHandler_SendMessage_EnqueueFailureIsNotFatal(t *testing.T) {
	mockSvc := new(MockConversationService)
	mockClient := new(MockAsynqClient)
	router := setupConversationRouter(mockSvc, mockClient)

	senderID := utils.NewSixID()
	conversationID := utils.NewSixID()
	message := &models.Message{Base: models.Base{ID: utils.NewSixID()}, ConversationID: conversationID, SenderID: senderID, Content: "hi"}
	mockSvc.On("SendMessage", mock.Anything, conversationID, senderID, "hi").Return(message, nil)
	mockClient.On("Enqueue", mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))

	body := gin.H{"content": "hi"}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/conversations/"+conversationID.String()+"/messages", body, senderID))

	// The message was persisted; a lost notification does not fail the request.
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestConversationHandler_Unread(t *testing.T) {
	mockSvc := new(MockConversationService)
	router := setupConversationRouter(mockSvc, new(MockAsynqClient))

	actorID := utils.NewSixID()
	mockSvc.On("UnreadTotal", mock.Anything, actorID).Return(3, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/conversations/unread", nil, actorID))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unread":3`)
}

func TestConversationHandler_MarkRead(t *testing.T) {
	mockSvc := new(MockConversationService)
	router := setupConversationRouter(mockSvc, new(MockAsynqClient))

	actorID := utils.NewSixID()
	conversationID := utils.NewSixID()
	mockSvc.On("MarkRead", mock.Anything, conversationID, actorID).Return(nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodPut, "/api/conversations/"+conversationID.String()+"/read", nil, actorID))
	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

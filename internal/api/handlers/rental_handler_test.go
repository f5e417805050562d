package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cloudrent/api/internal/api/handlers"
	"cloudrent/api/internal/api/middleware"
	"cloudrent/api/internal/auth"
	"cloudrent/api/internal/models"
	"cloudrent/api/internal/services"
	"cloudrent/api/internal/utils"
)

const testJwtSecret = "testsecret"

func setupRentalRouter(rentalService services.IRentalService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewRentalHandler(rentalService)
	r := gin.New()
	authed := r.Group("/api", middleware.AuthMiddleware(testJwtSecret))
	authed.POST("/rentals", handler.Create)
	authed.GET("/rentals", handler.List)
	authed.GET("/rentals/:id", handler.Get)
	authed.PUT("/rentals/:id", handler.UpdateStatus)
	authed.PUT("/rentals/:id/access", handler.SetAccessDetails)
	return r
}

func authedRequest(t *testing.T, method, path string, body interface{}, actorID utils.SixID) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	token, err := auth.GenerateJWT(actorID, false, testJwtSecret, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestRentalHandler_Create(t *testing.T) {
	mockSvc := new(MockRentalService)
	router := setupRentalRouter(mockSvc)

	renterID := utils.NewSixID()
	computerID := utils.NewSixID()
	start := time.Now().UTC().Truncate(time.Second)
	end := start.Add(2 * time.Hour)

	rental := &models.Rental{
		Base:       models.Base{ID: utils.NewSixID()},
		ComputerID: computerID,
		RenterID:   renterID,
		Status:     models.RentalActive,
		TotalPrice: 5.0,
	}
	mockSvc.On("CreateRental", mock.Anything, computerID, renterID, mock.Anything, mock.Anything, models.RentalHourly).
		Return(rental, nil)

	body := gin.H{
		"computerId": computerID.String(),
		"startDate":  start.Format(time.RFC3339),
		"endDate":    end.Format(time.RFC3339),
		"rentalType": "hourly",
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/rentals", body, renterID))

	assert.Equal(t, http.StatusCreated, w.Code)
	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)
	mockSvc.AssertExpectations(t)
}

func TestRentalHandler_Create_BadInput(t *testing.T) {
	mockSvc := new(MockRentalService)
	router := setupRentalRouter(mockSvc)
	actorID := utils.NewSixID()

	cases := []struct {
		name string
		body gin.H
	}{
		{"missing fields", gin.H{"computerId": utils.NewSixID().String()}},
		{"bad computer id", gin.H{"computerId": "nope", "startDate": "2025-01-01T00:00:00Z", "endDate": "2025-01-02T00:00:00Z", "rentalType": "daily"}},
		{"bad start date", gin.H{"computerId": utils.NewSixID().String(), "startDate": "January 1st", "endDate": "2025-01-02T00:00:00Z", "rentalType": "daily"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/rentals", tc.body, actorID))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, decodeEnvelope(t, w).Success)
		})
	}
	mockSvc.AssertNotCalled(t, "CreateRental")
}

func TestRentalHandler_Create_Unauthenticated(t *testing.T) {
	router := setupRentalRouter(new(MockRentalService))

	req := httptest.NewRequest(http.MethodPost, "/api/rentals", bytes.NewBufferString("{}"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRentalHandler_ServiceErrorMapping(t *testing.T) {
	actorID := utils.NewSixID()
	rentalID := utils.NewSixID()

	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: rental", services.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: not yours", services.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("%w: bad transition", services.ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: bad status", services.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		mockSvc := new(MockRentalService)
		router := setupRentalRouter(mockSvc)
		mockSvc.On("UpdateStatus", mock.Anything, rentalID, actorID, models.RentalCancelled).
			Return(nil, tc.err)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest(t, http.MethodPut, "/api/rentals/"+rentalID.String(),
			gin.H{"status": "cancelled"}, actorID))
		assert.Equal(t, tc.want, w.Code)
		env := decodeEnvelope(t, w)
		assert.False(t, env.Success)
		if tc.want == http.StatusInternalServerError {
			assert.Equal(t, "Internal server error", env.Error)
		}
	}
}

func TestRentalHandler_SetAccessDetails_PasswordNeverSerialized(t *testing.T) {
	mockSvc := new(MockRentalService)
	router := setupRentalRouter(mockSvc)

	ownerID := utils.NewSixID()
	rentalID := utils.NewSixID()

	returned := &models.Rental{
		Base:   models.Base{ID: rentalID},
		Status: models.RentalActive,
		AccessDetails: &models.AccessDetails{
			IPAddress:   "203.0.113.7",
			Username:    "tenant",
			PasswordEnc: "c2VhbGVkLWNpcGhlcnRleHQ=",
			AccessURL:   "ssh://203.0.113.7",
		},
	}
	mockSvc.On("SetAccessDetails", mock.Anything, rentalID, ownerID,
		mock.MatchedBy(func(d models.AccessDetails) bool {
			// The handler forwards the plaintext for the service to seal.
			return d.IPAddress == "203.0.113.7" && d.PasswordEnc == "hunter2"
		})).Return(returned, nil)

	body := gin.H{"ipAddress": "203.0.113.7", "username": "tenant", "password": "hunter2", "accessUrl": "ssh://203.0.113.7"}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodPut, "/api/rentals/"+rentalID.String()+"/access", body, ownerID))

	assert.Equal(t, http.StatusOK, w.Code)
	// Neither plaintext nor ciphertext may ever appear in a response.
	assert.NotContains(t, w.Body.String(), "hunter2")
	assert.NotContains(t, w.Body.String(), "c2VhbGVkLWNpcGhlcnRleHQ=")
	assert.Contains(t, w.Body.String(), "203.0.113.7")
	mockSvc.AssertExpectations(t)
}

func TestRentalHandler_List(t *testing.T) {
	mockSvc := new(MockRentalService)
	router := setupRentalRouter(mockSvc)
	actorID := utils.NewSixID()

	mockSvc.On("ListRentalsByActor", mock.Anything, actorID).
		Return([]models.Rental{{Base: models.Base{ID: utils.NewSixID()}}}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/rentals", nil, actorID))
	assert.Equal(t, http.StatusOK, w.Code)

	var rentals []models.Rental
	env := decodeEnvelope(t, w)
	require.NoError(t, json.Unmarshal(env.Data, &rentals))
	assert.Len(t, rentals, 1)
}

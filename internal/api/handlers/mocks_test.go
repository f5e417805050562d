package handlers_test

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"

	"cloudrent/api/internal/models"
	"cloudrent/api/internal/services"
	"cloudrent/api/internal/utils"
)

// --- Mock UserService ---

type MockUserService struct {
	mock.Mock
}

var _ services.IUserService = (*MockUserService)(nil)

func (m *MockUserService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	args := m.Called(ctx, name, email, password)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	args := m.Called(ctx, email, password)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	args := m.Called(ctx, userID)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

// --- Mock ComputerService ---

type MockComputerService struct {
	mock.Mock
}

var _ services.IComputerService = (*MockComputerService)(nil)

func (m *MockComputerService) CreateComputer(ctx context.Context, ownerID utils.SixID, title, description string, specs models.Specs, location string, price models.PriceTiers) (*models.Computer, error) {
	args := m.Called(ctx, ownerID, title, description, specs, location, price)
	computer, _ := args.Get(0).(*models.Computer)
	return computer, args.Error(1)
}

func (m *MockComputerService) FindComputerByID(ctx context.Context, computerID utils.SixID) (*models.Computer, error) {
	args := m.Called(ctx, computerID)
	computer, _ := args.Get(0).(*models.Computer)
	return computer, args.Error(1)
}

func (m *MockComputerService) SearchComputers(ctx context.Context, filter services.ComputerFilter) ([]models.Computer, error) {
	args := m.Called(ctx, filter)
	computers, _ := args.Get(0).([]models.Computer)
	return computers, args.Error(1)
}

func (m *MockComputerService) UpdateComputer(ctx context.Context, computerID, actorID utils.SixID, updates map[string]interface{}) (*models.Computer, error) {
	args := m.Called(ctx, computerID, actorID, updates)
	computer, _ := args.Get(0).(*models.Computer)
	return computer, args.Error(1)
}

func (m *MockComputerService) DeleteComputer(ctx context.Context, computerID, actorID utils.SixID) error {
	args := m.Called(ctx, computerID, actorID)
	return args.Error(0)
}

func (m *MockComputerService) AddReview(ctx context.Context, computerID, reviewerID utils.SixID, rating int, comment string) (*models.Computer, error) {
	args := m.Called(ctx, computerID, reviewerID, rating, comment)
	computer, _ := args.Get(0).(*models.Computer)
	return computer, args.Error(1)
}

func (m *MockComputerService) AddPhoto(ctx context.Context, computerID utils.SixID, photoKey string) error {
	args := m.Called(ctx, computerID, photoKey)
	return args.Error(0)
}

func (m *MockComputerService) SetMaintenance(ctx context.Context, computerID, actorID utils.SixID, enabled bool, window *models.MaintenanceWindow) error {
	args := m.Called(ctx, computerID, actorID, enabled, window)
	return args.Error(0)
}

// --- Mock RentalService ---

type MockRentalService struct {
	mock.Mock
}

var _ services.IRentalService = (*MockRentalService)(nil)

func (m *MockRentalService) CreateRental(ctx context.Context, computerID, renterID utils.SixID, startDate, endDate time.Time, rentalType models.RentalType) (*models.Rental, error) {
	args := m.Called(ctx, computerID, renterID, startDate, endDate, rentalType)
	rental, _ := args.Get(0).(*models.Rental)
	return rental, args.Error(1)
}

func (m *MockRentalService) UpdateStatus(ctx context.Context, rentalID, actorID utils.SixID, target models.RentalStatus) (*models.Rental, error) {
	args := m.Called(ctx, rentalID, actorID, target)
	rental, _ := args.Get(0).(*models.Rental)
	return rental, args.Error(1)
}

func (m *MockRentalService) SetAccessDetails(ctx context.Context, rentalID, actorID utils.SixID, details models.AccessDetails) (*models.Rental, error) {
	args := m.Called(ctx, rentalID, actorID, details)
	rental, _ := args.Get(0).(*models.Rental)
	return rental, args.Error(1)
}

func (m *MockRentalService) FindRentalByID(ctx context.Context, rentalID, actorID utils.SixID) (*models.Rental, error) {
	args := m.Called(ctx, rentalID, actorID)
	rental, _ := args.Get(0).(*models.Rental)
	return rental, args.Error(1)
}

func (m *MockRentalService) ListRentalsByActor(ctx context.Context, actorID utils.SixID) ([]models.Rental, error) {
	args := m.Called(ctx, actorID)
	rentals, _ := args.Get(0).([]models.Rental)
	return rentals, args.Error(1)
}

func (m *MockRentalService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

// --- Mock ConversationService ---

type MockConversationService struct {
	mock.Mock
}

var _ services.IConversationService = (*MockConversationService)(nil)

func (m *MockConversationService) GetOrCreate(ctx context.Context, computerID, buyerID utils.SixID) (*models.Conversation, error) {
	args := m.Called(ctx, computerID, buyerID)
	conversation, _ := args.Get(0).(*models.Conversation)
	return conversation, args.Error(1)
}

func (m *MockConversationService) SendMessage(ctx context.Context, conversationID, senderID utils.SixID, content string) (*models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, content)
	message, _ := args.Get(0).(*models.Message)
	return message, args.Error(1)
}

func (m *MockConversationService) MarkRead(ctx context.Context, conversationID, actorID utils.SixID) error {
	args := m.Called(ctx, conversationID, actorID)
	return args.Error(0)
}

func (m *MockConversationService) FindConversationByID(ctx context.Context, conversationID, actorID utils.SixID) (*models.Conversation, error) {
	args := m.Called(ctx, conversationID, actorID)
	conversation, _ := args.Get(0).(*models.Conversation)
	return conversation, args.Error(1)
}

func (m *MockConversationService) ListForUser(ctx context.Context, userID utils.SixID) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	conversations, _ := args.Get(0).([]models.Conversation)
	return conversations, args.Error(1)
}

func (m *MockConversationService) GetMessages(ctx context.Context, conversationID, actorID utils.SixID) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, actorID)
	messages, _ := args.Get(0).([]models.Message)
	return messages, args.Error(1)
}

func (m *MockConversationService) UnreadTotal(ctx context.Context, userID utils.SixID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

// --- Mock PhotoStorage ---

type MockPhotoStorage struct {
	mock.Mock
}

func (m *MockPhotoStorage) PutUpload(ctx context.Context, computerID string, body []byte, contentType string) (string, error) {
	args := m.Called(ctx, computerID, body, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockPhotoStorage) PutPhoto(ctx context.Context, computerID string, body []byte) (string, error) {
	args := m.Called(ctx, computerID, body)
	return args.String(0), args.Error(1)
}

func (m *MockPhotoStorage) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockPhotoStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// --- Mock Asynq Client ---

type MockAsynqClient struct {
	mock.Mock
}

func (m *MockAsynqClient) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(task, opts)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

func (m *MockAsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

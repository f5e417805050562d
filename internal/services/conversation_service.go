package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cloudrent/api/internal/config"
	"cloudrent/api/internal/db"
	"cloudrent/api/internal/models"
	"cloudrent/api/internal/utils"
)

// IConversationService defines the interface for messaging operations.
type IConversationService interface {
	GetOrCreate(ctx context.Context, computerID, buyerID utils.SixID) (*models.Conversation, error)
	SendMessage(ctx context.Context, conversationID, senderID utils.SixID, content string) (*models.Message, error)
	MarkRead(ctx context.Context, conversationID, actorID utils.SixID) error
	FindConversationByID(ctx context.Context, conversationID, actorID utils.SixID) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID utils.SixID) ([]models.Conversation, error)
	GetMessages(ctx context.Context, conversationID, actorID utils.SixID) ([]models.Message, error)
	UnreadTotal(ctx context.Context, userID utils.SixID) (int, error)
}

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

// conversationService implements IConversationService.
type conversationService struct {
	db  *mongo.Database
	cfg *config.Config

	// afterMessageInsert runs between the message insert and the thread
	// bump; nil outside tests.
	afterMessageInsert func()
}

// NewConversationService creates a new ConversationService.
func NewConversationService(db *mongo.Database, cfg *config.Config) IConversationService {
	return &conversationService{db: db, cfg: cfg}
}

// GetOrCreate returns the conversation for (computer, buyer, owner), creating
// it lazily on first contact. The owner is derived from the computer; owners
// cannot open a thread with themselves.
func (s *conversationService) GetOrCreate(ctx context.Context, computerID, buyerID utils.SixID) (*models.Conversation, error) {
	var computer models.Computer
	err := s.db.Collection(computersCollection).FindOne(ctx, bson.M{"_id": computerID}).Decode(&computer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: computer %s", ErrNotFound, computerID.String())
		}
		return nil, fmt.Errorf("error finding computer %s: %w", computerID.String(), err)
	}
	if computer.OwnerID == buyerID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalidInput)
	}

	collection := s.db.Collection(conversationsCollection)
	filter := bson.M{
		"computer_id": computerID,
		"buyer_id":    buyerID,
		"owner_id":    computer.OwnerID,
	}

	var conversation models.Conversation
	err = collection.FindOne(ctx, filter).Decode(&conversation)
	if err == nil {
		return &conversation, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("error finding conversation: %w", err)
	}

	now := time.Now().UTC()
	var created *models.Conversation
	operation := func() error {
		created = &models.Conversation{
			Base:       models.NewBase(),
			ComputerID: computerID,
			BuyerID:    buyerID,
			OwnerID:    computer.OwnerID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		_, insertErr := collection.InsertOne(ctx, created)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		// A concurrent first contact may have created the thread; reuse it.
		if db.IsMongoDuplicateKeyError(err) {
			if findErr := collection.FindOne(ctx, filter).Decode(&conversation); findErr == nil {
				return &conversation, nil
			}
		}
		return nil, fmt.Errorf("failed to create conversation for computer %s: %w", computerID.String(), err)
	}

	return created, nil
}

// SendMessage appends a message, bumps the thread preview and increments the
// recipient's unread counter by exactly one.
func (s *conversationService) SendMessage(ctx context.Context, conversationID, senderID utils.SixID, content string) (*models.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: message content is required", ErrInvalidInput)
	}

	conversation, err := s.findConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(senderID) {
		return nil, fmt.Errorf("%w: user %s is not part of conversation %s", ErrForbidden, senderID.String(), conversationID.String())
	}

	now := time.Now().UTC()
	var message *models.Message
	operation := func() error {
		message = &models.Message{
			Base:           models.NewBase(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        content,
			IsRead:         false,
			CreatedAt:      now,
		}
		_, insertErr := s.db.Collection(messagesCollection).InsertOne(ctx, message)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert message in conversation %s: %w", conversationID.String(), err)
	}

	if s.afterMessageInsert != nil {
		s.afterMessageInsert()
	}

	unreadField := "unread_owner"
	if senderID == conversation.OwnerID {
		unreadField = "unread_buyer"
	}
	update := bson.M{
		"$set": bson.M{
			"last_message":      content,
			"last_message_date": now,
			"updated_at":        now,
		},
		"$inc": bson.M{unreadField: 1},
	}
	res, err := s.db.Collection(conversationsCollection).UpdateByID(ctx, conversationID, update)
	if err == nil && res.MatchedCount == 0 {
		err = fmt.Errorf("conversation %s no longer exists", conversationID.String())
	}
	if err != nil {
		// The message is already persisted; an error response here would
		// make the client retry and double-send.
		log.Printf("WARN: Failed to update conversation %s after message %s: %v", conversationID.String(), message.ID.String(), err)
	}

	return message, nil
}

// MarkRead zeroes the caller's unread counter and flips is_read on all
// messages sent by the other party. The other side's counter is untouched.
func (s *conversationService) MarkRead(ctx context.Context, conversationID, actorID utils.SixID) error {
	conversation, err := s.findConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conversation.HasParticipant(actorID) {
		return fmt.Errorf("%w: user %s is not part of conversation %s", ErrForbidden, actorID.String(), conversationID.String())
	}

	unreadField := "unread_buyer"
	if actorID == conversation.OwnerID {
		unreadField = "unread_owner"
	}
	_, err = s.db.Collection(conversationsCollection).UpdateByID(ctx, conversationID,
		bson.M{"$set": bson.M{unreadField: 0, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to reset unread counter on conversation %s: %w", conversationID.String(), err)
	}

	_, err = s.db.Collection(messagesCollection).UpdateMany(ctx,
		bson.M{
			"conversation_id": conversationID,
			"sender_id":       bson.M{"$ne": actorID},
			"is_read":         false,
		},
		bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return fmt.Errorf("failed to mark messages read in conversation %s: %w", conversationID.String(), err)
	}

	return nil
}

// FindConversationByID fetches a conversation visible to the actor.
func (s *conversationService) FindConversationByID(ctx context.Context, conversationID, actorID utils.SixID) (*models.Conversation, error) {
	conversation, err := s.findConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(actorID) {
		return nil, fmt.Errorf("%w: user %s is not part of conversation %s", ErrForbidden, actorID.String(), conversationID.String())
	}
	return conversation, nil
}

// ListForUser lists conversations the user participates in, most recent activity first.
func (s *conversationService) ListForUser(ctx context.Context, userID utils.SixID) ([]models.Conversation, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"buyer_id": userID},
		bson.M{"owner_id": userID},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})

	cursor, err := s.db.Collection(conversationsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations for user %s: %w", userID.String(), err)
	}
	defer cursor.Close(ctx)

	var conversations []models.Conversation
	if err = cursor.All(ctx, &conversations); err != nil {
		return nil, fmt.Errorf("failed to decode conversations for user %s: %w", userID.String(), err)
	}
	return conversations, nil
}

// GetMessages returns the full thread in insertion order.
func (s *conversationService) GetMessages(ctx context.Context, conversationID, actorID utils.SixID) ([]models.Message, error) {
	if _, err := s.FindConversationByID(ctx, conversationID, actorID); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(messagesCollection).Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages in conversation %s: %w", conversationID.String(), err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages in conversation %s: %w", conversationID.String(), err)
	}
	return messages, nil
}

// UnreadTotal sums the caller's unread counters across all their conversations.
func (s *conversationService) UnreadTotal(ctx context.Context, userID utils.SixID) (int, error) {
	conversations, err := s.ListForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, c := range conversations {
		if userID == c.BuyerID {
			total += c.UnreadBuyer
		} else {
			total += c.UnreadOwner
		}
	}
	return total, nil
}

func (s *conversationService) findConversation(ctx context.Context, conversationID utils.SixID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := s.db.Collection(conversationsCollection).FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID.String())
		}
		return nil, fmt.Errorf("error finding conversation %s: %w", conversationID.String(), err)
	}
	return &conversation, nil
}

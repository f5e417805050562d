package models

import (
	"time"

	"cloudrent/api/internal/utils"
)

// Conversation is a message thread between a buyer and a computer's owner.
// One conversation exists per (computer, buyer, owner) triple.
type Conversation struct {
	Base            `bson:",inline"`
	ComputerID      utils.SixID `bson:"computer_id" json:"computer_id"`
	BuyerID         utils.SixID `bson:"buyer_id" json:"buyer_id"`
	OwnerID         utils.SixID `bson:"owner_id" json:"owner_id"`
	LastMessage     string      `bson:"last_message" json:"last_message"`
	LastMessageDate *time.Time  `bson:"last_message_date,omitempty" json:"last_message_date,omitempty"`
	UnreadBuyer     int         `bson:"unread_buyer" json:"unread_buyer"`
	UnreadOwner     int         `bson:"unread_owner" json:"unread_owner"`
	CreatedAt       time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `bson:"updated_at" json:"updated_at"`
}

// OtherParty returns the conversation participant that is not userID.
func (c *Conversation) OtherParty(userID utils.SixID) utils.SixID {
	if userID == c.BuyerID {
		return c.OwnerID
	}
	return c.BuyerID
}

// HasParticipant reports whether userID is the buyer or the owner.
func (c *Conversation) HasParticipant(userID utils.SixID) bool {
	return userID == c.BuyerID || userID == c.OwnerID
}

// Message is a single append-only entry in a conversation. Only IsRead is
// ever mutated after insert.
type Message struct {
	Base           `bson:",inline"`
	ConversationID utils.SixID `bson:"conversation_id" json:"conversation_id"`
	SenderID       utils.SixID `bson:"sender_id" json:"sender_id"`
	Content        string      `bson:"content" json:"content"`
	IsRead         bool        `bson:"is_read" json:"is_read"`
	CreatedAt      time.Time   `bson:"created_at" json:"created_at"`
}

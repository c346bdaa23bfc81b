package models

import (
	"context"
	"errors"
	"time"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionSystem   Direction = "system"
)

const (
	MessageTypeText   = "text"
	MessageTypeMenu   = "menu"
	MessageTypeSystem = "system"
)

// Status de entrega das mensagens enviadas (barrinhas no painel)
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSent      DeliveryStatus = "sent"      // Uma barra
	StatusDelivered DeliveryStatus = "delivered" // Duas barras
	StatusRead      DeliveryStatus = "read"      // Duas barras azuis
	StatusFailed    DeliveryStatus = "failed"
)

var ErrInvalidTransition = errors.New("invalid delivery status transition")

// ErrDuplicateMessage is returned when a provider message id is stored twice.
var ErrDuplicateMessage = errors.New("message already recorded")

var deliveryRank = map[DeliveryStatus]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

func (s DeliveryStatus) Valid() bool {
	if s == StatusFailed {
		return true
	}
	_, ok := deliveryRank[s]
	return ok
}

func (s DeliveryStatus) Terminal() bool {
	return s == StatusRead || s == StatusFailed
}

// CanTransition reports whether s may move to next. Status only moves
// forward along pending, sent, delivered, read; failed is reachable from any
// non-terminal status. A status never transitions to itself.
func (s DeliveryStatus) CanTransition(next DeliveryStatus) bool {
	if !s.Valid() || !next.Valid() || s == next || s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return deliveryRank[next] > deliveryRank[s]
}

type Message struct {
	ID                string         `json:"id"`
	ConversationID    string         `json:"conversation_id"`
	AdminRef          *int           `json:"admin_ref,omitempty"`
	FromAddress       string         `json:"from_address"`
	ToAddress         string         `json:"to_address"`
	Content           string         `json:"content"`
	Direction         Direction      `json:"direction"`
	MessageType       string         `json:"message_type"`
	DeliveryStatus    DeliveryStatus `json:"delivery_status,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	FailureReason     string         `json:"failure_reason,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// MessageRepository is the append-only message log. Lookups return
// (nil, nil) when nothing matches.
type MessageRepository interface {
	Append(ctx context.Context, message *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	GetByProviderID(ctx context.Context, providerMessageID string) (*Message, error)
	// ListByConversation returns messages in arrival order.
	ListByConversation(ctx context.Context, conversationID string) ([]*Message, error)
	ListSince(ctx context.Context, conversationID string, since time.Time) ([]*Message, error)
	// UpdateDeliveryStatus moves a message from one status to another only if
	// it is still in from. It reports whether the row changed. A non-empty
	// providerMessageID and failureReason are stored alongside.
	UpdateDeliveryStatus(ctx context.Context, id string, from, to DeliveryStatus, providerMessageID, failureReason string) (bool, error)
}

// Package notifier fans domain events out to operator sessions and to
// external brokers.
package notifier

import (
	"time"

	"whatsapp-router/internal/models"
)

type EventType string

const (
	ConversationChanged EventType = "conversation.changed"
	MessageAppended     EventType = "message.appended"
	MessageStatus       EventType = "message.status"
	SupportMessage      EventType = "support.message"
)

// Event is one domain mutation. Consumers de-duplicate by ID and order the
// events of a conversation by Seq.
type Event struct {
	ID             string                 `json:"id"`
	Type           EventType              `json:"type"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	DepartmentID   *int                   `json:"department_id,omitempty"`
	AdminRef       *int                   `json:"admin_ref,omitempty"`
	ClientID       *int                   `json:"client_id,omitempty"`
	Seq            uint64                 `json:"seq"`
	OccurredAt     time.Time              `json:"occurred_at"`
	Conversation   *models.Conversation   `json:"conversation,omitempty"`
	Message        *models.Message        `json:"message,omitempty"`
	SupportMessage *models.SupportMessage `json:"support_message,omitempty"`
}

// IsMessageLevel reports whether the event carries message content, which
// operator sessions only receive for conversations they may access.
func (e Event) IsMessageLevel() bool {
	return e.Type == MessageAppended || e.Type == MessageStatus || e.Type == SupportMessage
}

// StreamKey groups events that must keep their relative order.
func (e Event) StreamKey() string {
	if e.ConversationID != "" {
		return "conversation:" + e.ConversationID
	}
	if e.SupportMessage != nil {
		return "support:" + itoa(e.SupportMessage.ClientID)
	}
	return "global"
}

func NewConversationEvent(c *models.Conversation) Event {
	snapshot := c.Clone()
	return Event{
		Type:           ConversationChanged,
		ConversationID: snapshot.ID,
		DepartmentID:   snapshot.SelectedDepartment,
		AdminRef:       snapshot.AdminRef,
		Conversation:   snapshot,
	}
}

func NewMessageEvent(t EventType, c *models.Conversation, m *models.Message) Event {
	snapshot := c.Clone()
	copied := *m
	return Event{
		Type:           t,
		ConversationID: snapshot.ID,
		DepartmentID:   snapshot.SelectedDepartment,
		AdminRef:       snapshot.AdminRef,
		Conversation:   snapshot,
		Message:        &copied,
	}
}

func NewSupportEvent(m *models.SupportMessage) Event {
	copied := *m
	clientID := m.ClientID
	return Event{
		Type:           SupportMessage,
		ClientID:       &clientID,
		AdminRef:       m.AdminID,
		SupportMessage: &copied,
	}
}

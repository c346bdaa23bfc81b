package models

import (
	"context"
	"errors"
	"time"
)

type ConversationState string

const (
	StateInitial           ConversationState = "INITIAL"
	StateWaitingDepartment ConversationState = "WAITING_DEPARTMENT"
	StateConversing        ConversationState = "CONVERSING"
	StateEnded             ConversationState = "ENDED"
)

func (s ConversationState) Valid() bool {
	switch s {
	case StateInitial, StateWaitingDepartment, StateConversing, StateEnded:
		return true
	}
	return false
}

// ErrDuplicateLiveConversation is returned by the store when a second live
// conversation would be created for the same normalized phone.
var ErrDuplicateLiveConversation = errors.New("live conversation already exists for phone")

type Conversation struct {
	ID                 string            `json:"id"`
	NormalizedPhone    string            `json:"normalized_phone"`
	ClientRef          *int              `json:"client_ref,omitempty"`
	AdminRef           *int              `json:"admin_ref,omitempty"`
	SelectedDepartment *int              `json:"selected_department,omitempty"`
	State              ConversationState `json:"state"`
	MenuAttempts       int               `json:"menu_attempts"`
	NeedsAttention     bool              `json:"needs_attention"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	EndedAt            *time.Time        `json:"ended_at,omitempty"`
}

func (c *Conversation) IsLive() bool {
	return c.State != StateEnded
}

// Clone returns a copy that does not share pointer fields with c.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.ClientRef = cloneInt(c.ClientRef)
	out.AdminRef = cloneInt(c.AdminRef)
	out.SelectedDepartment = cloneInt(c.SelectedDepartment)
	if c.EndedAt != nil {
		t := *c.EndedAt
		out.EndedAt = &t
	}
	return &out
}

// ConversationPatch lists the fields an update touches. Nil fields are left
// as they are; UpdatedAt is always written.
type ConversationPatch struct {
	State              *ConversationState
	AdminRef           *int
	SelectedDepartment *int
	ClientRef          *int
	MenuAttempts       *int
	NeedsAttention     *bool
	UpdatedAt          time.Time
}

// Apply writes the patch onto c. Moving to ENDED stamps EndedAt.
func (p ConversationPatch) Apply(c *Conversation) {
	if p.State != nil {
		c.State = *p.State
		if *p.State == StateEnded {
			t := p.UpdatedAt
			c.EndedAt = &t
		}
	}
	if p.AdminRef != nil {
		c.AdminRef = cloneInt(p.AdminRef)
	}
	if p.SelectedDepartment != nil {
		c.SelectedDepartment = cloneInt(p.SelectedDepartment)
	}
	if p.ClientRef != nil {
		c.ClientRef = cloneInt(p.ClientRef)
	}
	if p.MenuAttempts != nil {
		c.MenuAttempts = *p.MenuAttempts
	}
	if p.NeedsAttention != nil {
		c.NeedsAttention = *p.NeedsAttention
	}
	c.UpdatedAt = p.UpdatedAt
}

// ConversationRepository is the durable conversation store. Lookups return
// (nil, nil) when nothing matches.
type ConversationRepository interface {
	FindLiveByPhone(ctx context.Context, phone string) (*Conversation, error)
	Create(ctx context.Context, conversation *Conversation) error
	GetByID(ctx context.Context, id string) (*Conversation, error)
	// Update patches a live conversation and returns the stored row, or
	// (nil, nil) when id is unknown or already ENDED.
	Update(ctx context.Context, id string, patch ConversationPatch) (*Conversation, error)
	ListActive(ctx context.Context) ([]*Conversation, error)
	ListStale(ctx context.Context, before time.Time) ([]*Conversation, error)
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func IntPtr(v int) *int {
	return &v
}

func StatePtr(s ConversationState) *ConversationState {
	return &s
}

func BoolPtr(b bool) *bool {
	return &b
}

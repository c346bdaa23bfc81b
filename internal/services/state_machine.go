package services

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"whatsapp-router/internal/models"
)

const DefaultMenuHeader = "Olá! Para direcionarmos seu atendimento, responda com o número do setor desejado:"

var errConversationEnded = errors.New("conversation is ended")

// Menu is the department menu sent to contacts that have not chosen yet.
type Menu struct {
	Header      string
	Departments []*models.Department
}

func NewMenu(header string, departments []*models.Department) Menu {
	if strings.TrimSpace(header) == "" {
		header = DefaultMenuHeader
	}
	return Menu{Header: header, Departments: departments}
}

func (m Menu) Text() string {
	var b strings.Builder
	b.WriteString(m.Header)
	for _, d := range m.Departments {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s - %s", d.MenuKey, d.Name)
	}
	return b.String()
}

// Match maps a contact reply to a department by menu key ("2", "2.", " 2)")
// or by department name, case-insensitively.
func (m Menu) Match(input string) (*models.Department, bool) {
	choice := strings.TrimFunc(input, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if choice == "" {
		return nil, false
	}
	for _, d := range m.Departments {
		if d.MenuKey != "" && choice == d.MenuKey {
			return d, true
		}
	}
	for _, d := range m.Departments {
		if strings.EqualFold(choice, strings.TrimSpace(d.Name)) {
			return d, true
		}
	}
	return nil, false
}

// MenuPolicy bounds how many invalid selections re-send the menu. Zero
// means no bound.
type MenuPolicy struct {
	MaxMenuRetries int
}

// Decision is what the engine must do for one inbound message.
type Decision struct {
	NextState         models.ConversationState
	SendMenu          bool
	Department        *models.Department
	ResolveAssignment bool
	InvalidSelection  bool
	MenuAttempts      int
	NeedsAttention    bool
}

// StateChanged reports whether the decision moves conv to another state.
func (d Decision) StateChanged(conv *models.Conversation) bool {
	return d.NextState != conv.State
}

// DecideInbound is the transition function for inbound messages. It has no
// side effects.
func DecideInbound(conv *models.Conversation, content string, menu Menu, policy MenuPolicy) (Decision, error) {
	d := Decision{
		NextState:      conv.State,
		MenuAttempts:   conv.MenuAttempts,
		NeedsAttention: conv.NeedsAttention,
	}

	switch conv.State {
	case models.StateInitial:
		d.NextState = models.StateWaitingDepartment
		d.SendMenu = true
		d.MenuAttempts = 0

	case models.StateWaitingDepartment:
		if dept, ok := menu.Match(content); ok {
			d.NextState = models.StateConversing
			d.Department = dept
			d.ResolveAssignment = true
			d.MenuAttempts = 0
			d.NeedsAttention = false
			return d, nil
		}
		d.InvalidSelection = true
		d.MenuAttempts = conv.MenuAttempts + 1
		if policy.MaxMenuRetries <= 0 || d.MenuAttempts <= policy.MaxMenuRetries {
			d.SendMenu = true
		} else {
			d.NeedsAttention = true
		}

	case models.StateConversing:
		// Mensagens durante o atendimento só são registradas

	case models.StateEnded:
		return d, errConversationEnded

	default:
		return d, fmt.Errorf("unknown conversation state %q", conv.State)
	}

	return d, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"whatsapp-router/internal/models"
	"whatsapp-router/internal/notifier"
	"whatsapp-router/internal/phone"
	"whatsapp-router/internal/utils"
)

const (
	DefaultSendTimeout    = 10 * time.Second
	DefaultClosingMessage = "Atendimento encerrado."
	DefaultIdleMessage    = "Atendimento encerrado por inatividade."
	DefaultRouterAddress  = "router"

	maxGetOrCreateAttempts = 3
)

type EngineOptions struct {
	SendTimeout    time.Duration
	MaxMenuRetries int
	MenuHeader     string
	ClosingMessage string
	IdleMessage    string
	RouterAddress  string
}

type EngineDeps struct {
	Conversations models.ConversationRepository
	Messages      models.MessageRepository
	Admins        models.AdminRepository
	Departments   models.DepartmentRepository
	Clients       models.ClientRepository
	Transport     Transport
	Publisher     notifier.Publisher
	Normalizer    phone.Normalizer
	Metrics       *Metrics
	Now           func() time.Time
	NewID         func() string
}

// Engine owns every conversation and message mutation. Work on one phone or
// one conversation is serialized with keyed locks: inbound events hold the
// phone lock and then the conversation lock, operator actions hold only the
// conversation lock.
type Engine struct {
	conversations models.ConversationRepository
	messages      models.MessageRepository
	admins        models.AdminRepository
	departments   models.DepartmentRepository
	clients       models.ClientRepository
	resolver      *AssignmentResolver
	transport     Transport
	publisher     notifier.Publisher
	normalizer    phone.Normalizer
	metrics       *Metrics
	locks         *KeyedMutex
	clock         *MonotonicClock
	newID         func() string
	opts          EngineOptions
	log           zerolog.Logger
}

func NewEngine(deps EngineDeps, opts EngineOptions) *Engine {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if strings.TrimSpace(opts.ClosingMessage) == "" {
		opts.ClosingMessage = DefaultClosingMessage
	}
	if strings.TrimSpace(opts.IdleMessage) == "" {
		opts.IdleMessage = DefaultIdleMessage
	}
	if opts.RouterAddress == "" {
		opts.RouterAddress = DefaultRouterAddress
	}
	if deps.Transport == nil {
		deps.Transport = DisabledTransport{}
	}
	if deps.Publisher == nil {
		deps.Publisher = discardPublisher{}
	}
	if deps.Normalizer.CountryCode == "" && len(deps.Normalizer.DomesticLengths) == 0 {
		deps.Normalizer = phone.Default
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	return &Engine{
		conversations: deps.Conversations,
		messages:      deps.Messages,
		admins:        deps.Admins,
		departments:   deps.Departments,
		clients:       deps.Clients,
		resolver:      NewAssignmentResolver(deps.Admins),
		transport:     deps.Transport,
		publisher:     deps.Publisher,
		normalizer:    deps.Normalizer,
		metrics:       deps.Metrics,
		locks:         NewKeyedMutex(),
		clock:         NewMonotonicClock(deps.Now),
		newID:         deps.NewID,
		opts:          opts,
		log:           utils.Component("engine"),
	}
}

func (e *Engine) Resolver() *AssignmentResolver {
	return e.resolver
}

type discardPublisher struct{}

func (discardPublisher) Publish(notifier.Event) {}

// InboundEvent is one message received from the external channel.
type InboundEvent struct {
	FromPhone         string
	Content           string
	MessageType       string
	ProviderMessageID string
}

type InboundResult struct {
	Conversation *models.Conversation `json:"conversation"`
	Message      *models.Message      `json:"message"`
	MenuMessage  *models.Message      `json:"menu_message,omitempty"`
	Created      bool                 `json:"created"`
	Duplicate    bool                 `json:"duplicate"`
}

// HandleInbound normalizes the sender, finds or creates the live
// conversation, records the message and runs the state machine.
func (e *Engine) HandleInbound(ctx context.Context, evt InboundEvent) (*InboundResult, error) {
	normalized, err := e.normalizer.Normalize(evt.FromPhone)
	if err != nil {
		e.metrics.inboundResult("invalid_phone")
		return nil, newError(ErrorCodeInvalidPhone, "Telefone inválido", err)
	}
	log := e.log.With().Str("phone", normalized).Str("op", "inbound").Logger()

	unlockPhone := e.locks.Lock(phoneKey(normalized))
	defer unlockPhone()

	if evt.ProviderMessageID != "" {
		existing, err := e.messages.GetByProviderID(ctx, evt.ProviderMessageID)
		if err != nil {
			log.Error().Err(err).Msg("erro ao verificar mensagem duplicada")
			return nil, newError(ErrorCodeInternal, "Erro ao registrar mensagem", err)
		}
		if existing != nil {
			return e.duplicateResult(ctx, existing)
		}
	}

	for attempt := 0; attempt < maxGetOrCreateAttempts; attempt++ {
		conv, created, err := e.getOrCreate(ctx, normalized)
		if err != nil {
			log.Error().Err(err).Msg("erro ao obter conversa")
			return nil, err
		}

		result, retry, err := e.applyInbound(ctx, conv, created, evt)
		if retry {
			// Conversa encerrada entre a busca e o lock: cria uma nova
			continue
		}
		if err != nil {
			return result, err
		}
		e.metrics.inboundResult("ok")
		return result, nil
	}

	e.metrics.inboundResult("conflict")
	return nil, newError(ErrorCodeConflict, "Não foi possível registrar a mensagem", nil)
}

func (e *Engine) duplicateResult(ctx context.Context, existing *models.Message) (*InboundResult, error) {
	e.metrics.duplicateEvent()
	e.metrics.inboundResult("duplicate")
	conv, err := e.conversations.GetByID(ctx, existing.ConversationID)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "Erro ao carregar conversa", err)
	}
	return &InboundResult{Conversation: conv, Message: existing, Duplicate: true}, nil
}

// getOrCreate must run under the phone lock. The unique live index backs it
// up against other processes; a duplicate insert turns into another lookup.
func (e *Engine) getOrCreate(ctx context.Context, normalized string) (*models.Conversation, bool, error) {
	for attempt := 0; attempt < maxGetOrCreateAttempts; attempt++ {
		conv, err := e.conversations.FindLiveByPhone(ctx, normalized)
		if err != nil {
			return nil, false, newError(ErrorCodeInternal, "Erro ao buscar conversa", err)
		}
		if conv != nil {
			return conv, false, nil
		}

		now := e.clock.Now()
		conv = &models.Conversation{
			ID:              e.newID(),
			NormalizedPhone: normalized,
			State:           models.StateInitial,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if e.clients != nil {
			client, err := e.clients.FindByPhone(ctx, normalized)
			if err != nil {
				e.log.Warn().Err(err).Str("phone", normalized).Msg("erro ao buscar cliente")
			} else if client != nil {
				conv.ClientRef = models.IntPtr(client.ID)
			}
		}

		err = e.conversations.Create(ctx, conv)
		if errors.Is(err, models.ErrDuplicateLiveConversation) {
			e.log.Debug().Str("phone", normalized).Msg("conversa criada em paralelo, buscando novamente")
			continue
		}
		if err != nil {
			return nil, false, newError(ErrorCodeInternal, "Erro ao criar conversa", err)
		}

		e.metrics.conversationCreated()
		e.publisher.Publish(notifier.NewConversationEvent(conv))
		return conv, true, nil
	}
	return nil, false, newError(ErrorCodeConflict, "Conflito ao criar conversa", models.ErrDuplicateLiveConversation)
}

func (e *Engine) applyInbound(ctx context.Context, found *models.Conversation, created bool, evt InboundEvent) (*InboundResult, bool, error) {
	unlock := e.locks.Lock(conversationKey(found.ID))
	defer unlock()

	log := e.log.With().Str("conversation_id", found.ID).Str("phone", found.NormalizedPhone).Str("op", "inbound").Logger()

	conv, err := e.conversations.GetByID(ctx, found.ID)
	if err != nil {
		log.Error().Err(err).Msg("erro ao recarregar conversa")
		return nil, false, newError(ErrorCodeInternal, "Erro ao carregar conversa", err)
	}
	if conv == nil || !conv.IsLive() {
		return nil, true, nil
	}

	messageType := evt.MessageType
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	inbound := &models.Message{
		ID:                e.newID(),
		ConversationID:    conv.ID,
		FromAddress:       conv.NormalizedPhone,
		ToAddress:         e.opts.RouterAddress,
		Content:           evt.Content,
		Direction:         models.DirectionInbound,
		MessageType:       messageType,
		ProviderMessageID: evt.ProviderMessageID,
		CreatedAt:         e.clock.Now(),
	}
	if err := e.messages.Append(ctx, inbound); err != nil {
		if errors.Is(err, models.ErrDuplicateMessage) {
			existing, lookupErr := e.messages.GetByProviderID(ctx, evt.ProviderMessageID)
			if lookupErr == nil && existing != nil {
				result, dupErr := e.duplicateResult(ctx, existing)
				return result, false, dupErr
			}
		}
		log.Error().Err(err).Msg("erro ao registrar mensagem recebida")
		return nil, false, newError(ErrorCodeInternal, "Erro ao registrar mensagem", err)
	}
	e.publisher.Publish(notifier.NewMessageEvent(notifier.MessageAppended, conv, inbound))

	menu, err := e.loadMenu(ctx)
	if err != nil {
		log.Error().Err(err).Msg("erro ao carregar setores")
		return nil, false, newError(ErrorCodeInternal, "Erro ao carregar setores", err)
	}

	decision, err := DecideInbound(conv, evt.Content, menu, MenuPolicy{MaxMenuRetries: e.opts.MaxMenuRetries})
	if err != nil {
		return nil, true, nil
	}

	patch := models.ConversationPatch{UpdatedAt: e.clock.Now()}
	if decision.StateChanged(conv) {
		patch.State = models.StatePtr(decision.NextState)
	}
	if decision.MenuAttempts != conv.MenuAttempts {
		patch.MenuAttempts = models.IntPtr(decision.MenuAttempts)
	}
	if decision.NeedsAttention != conv.NeedsAttention {
		patch.NeedsAttention = models.BoolPtr(decision.NeedsAttention)
	}
	if decision.Department != nil {
		patch.SelectedDepartment = models.IntPtr(decision.Department.ID)
		if decision.ResolveAssignment {
			assignee, err := e.resolver.AutoAssignee(ctx, decision.Department.ID)
			if err != nil {
				log.Warn().Err(err).Int("department_id", decision.Department.ID).Msg("erro ao resolver atendente")
			} else if assignee != nil {
				patch.AdminRef = assignee
			}
		}
	}

	updated, err := e.conversations.Update(ctx, conv.ID, patch)
	if err != nil {
		log.Error().Err(err).Msg("erro ao atualizar conversa")
		return nil, false, newError(ErrorCodeInternal, "Erro ao atualizar conversa", err)
	}
	if updated == nil {
		return nil, false, newError(ErrorCodeInternal, "Conversa alterada durante o processamento", nil)
	}
	e.publisher.Publish(notifier.NewConversationEvent(updated))

	if decision.InvalidSelection {
		log.Info().Int("attempts", decision.MenuAttempts).Bool("needs_attention", decision.NeedsAttention).Msg("seleção de setor inválida")
	}

	result := &InboundResult{Conversation: updated, Message: inbound, Created: created}
	if decision.SendMenu {
		// Falha no envio do menu não desfaz a transição
		menuMsg, sendErr := e.sendOutbound(ctx, updated, menu.Text(), menu.Text(), models.MessageTypeMenu, nil)
		result.MenuMessage = menuMsg
		if sendErr != nil {
			log.Warn().Err(sendErr).Msg("menu registrado mas não entregue")
		}
	}
	return result, false, nil
}

func (e *Engine) loadMenu(ctx context.Context) (Menu, error) {
	var departments []*models.Department
	if e.departments != nil {
		list, err := e.departments.List(ctx)
		if err != nil {
			return Menu{}, err
		}
		departments = list
	}
	return NewMenu(e.opts.MenuHeader, departments), nil
}

// sendOutbound records the message as pending, calls the transport with a
// timeout and records sent or failed. The message is persisted whatever the
// transport outcome. Callers hold the conversation lock.
func (e *Engine) sendOutbound(ctx context.Context, conv *models.Conversation, content, wireBody, messageType string, adminRef *int) (*models.Message, error) {
	log := e.log.With().Str("conversation_id", conv.ID).Str("phone", conv.NormalizedPhone).Str("op", "send").Logger()

	msg := &models.Message{
		ID:             e.newID(),
		ConversationID: conv.ID,
		AdminRef:       adminRef,
		FromAddress:    e.opts.RouterAddress,
		ToAddress:      conv.NormalizedPhone,
		Content:        content,
		Direction:      models.DirectionOutbound,
		MessageType:    messageType,
		DeliveryStatus: models.StatusPending,
		CreatedAt:      e.clock.Now(),
	}
	if err := e.messages.Append(ctx, msg); err != nil {
		log.Error().Err(err).Msg("erro ao registrar mensagem enviada")
		return nil, newError(ErrorCodeInternal, "Erro ao registrar mensagem", err)
	}
	e.publisher.Publish(notifier.NewMessageEvent(notifier.MessageAppended, conv, msg))

	sendCtx, cancel := context.WithTimeout(ctx, e.opts.SendTimeout)
	result := e.transport.Send(sendCtx, conv.NormalizedPhone, wireBody)
	if !result.Success && sendCtx.Err() != nil && result.Error == "" {
		result.Error = "timeout"
	}
	cancel()

	next := models.StatusSent
	if !result.Success {
		next = models.StatusFailed
		if result.Error == "" {
			result.Error = "send failed"
		}
	}

	changed, err := e.messages.UpdateDeliveryStatus(ctx, msg.ID, models.StatusPending, next, result.ProviderMessageID, failureReason(result))
	if err != nil {
		log.Error().Err(err).Str("status", string(next)).Msg("erro ao atualizar status de entrega")
	} else if changed {
		msg.DeliveryStatus = next
		msg.ProviderMessageID = result.ProviderMessageID
		msg.FailureReason = failureReason(result)
		e.publisher.Publish(notifier.NewMessageEvent(notifier.MessageStatus, conv, msg))
	}
	e.metrics.outboundStatus(string(next))

	if !result.Success {
		e.metrics.transportFailure()
		log.Warn().Str("message_id", msg.ID).Str("error", result.Error).Msg("falha no envio pelo provedor")
		return msg, newError(ErrorCodeTransport, "Falha ao enviar mensagem", fmt.Errorf("transport: %s", result.Error))
	}
	return msg, nil
}

func failureReason(r SendResult) string {
	if r.Success {
		return ""
	}
	if len(r.Error) > 255 {
		return r.Error[:255]
	}
	return r.Error
}

// lockLive takes the conversation lock and loads the conversation, failing
// with not_found when it does not exist or is ENDED.
func (e *Engine) lockLive(ctx context.Context, conversationID string) (*models.Conversation, func(), error) {
	unlock := e.locks.Lock(conversationKey(conversationID))
	conv, err := e.conversations.GetByID(ctx, conversationID)
	if err != nil {
		unlock()
		return nil, nil, newError(ErrorCodeInternal, "Erro ao carregar conversa", err)
	}
	if conv == nil || !conv.IsLive() {
		unlock()
		return nil, nil, newError(ErrorCodeNotFound, "Conversa não encontrada", nil)
	}
	return conv, unlock, nil
}

func (e *Engine) touch(ctx context.Context, conv *models.Conversation, patch models.ConversationPatch) (*models.Conversation, error) {
	patch.UpdatedAt = e.clock.Now()
	updated, err := e.conversations.Update(ctx, conv.ID, patch)
	if err != nil {
		e.log.Error().Err(err).Str("conversation_id", conv.ID).Str("phone", conv.NormalizedPhone).Msg("erro ao atualizar conversa")
		return nil, newError(ErrorCodeInternal, "Erro ao atualizar conversa", err)
	}
	if updated == nil {
		return nil, newError(ErrorCodeNotFound, "Conversa não encontrada", nil)
	}
	e.publisher.Publish(notifier.NewConversationEvent(updated))
	return updated, nil
}

// SendMessage sends an operator reply. Unless anonymous, the operator name is
// prefixed to the text sent to the contact; the log keeps the plain body.
func (e *Engine) SendMessage(ctx context.Context, conversationID, body string, adminID *int, anonymous bool) (*models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, newError(ErrorCodeValidation, "Mensagem vazia", nil)
	}

	conv, unlock, err := e.lockLive(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	wire := body
	if adminID != nil && !anonymous && e.admins != nil {
		admin, err := e.admins.GetByID(ctx, *adminID)
		if err != nil {
			e.log.Warn().Err(err).Int("admin_id", *adminID).Msg("erro ao buscar atendente")
		} else if admin != nil {
			wire = "*" + admin.Name + "*:\n\n" + body
		}
	}

	msg, sendErr := e.sendOutbound(ctx, conv, body, wire, models.MessageTypeText, adminID)
	if msg == nil {
		return nil, sendErr
	}
	if _, err := e.touch(ctx, conv, models.ConversationPatch{}); err != nil {
		return msg, err
	}
	return msg, sendErr
}

// AssignAdmin sets or overwrites the operator of a live conversation.
func (e *Engine) AssignAdmin(ctx context.Context, conversationID string, adminID int) (*models.Conversation, error) {
	conv, unlock, err := e.lockLive(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if e.admins != nil {
		admin, err := e.admins.GetByID(ctx, adminID)
		if err != nil {
			return nil, newError(ErrorCodeInternal, "Erro ao buscar atendente", err)
		}
		if admin == nil {
			return nil, newError(ErrorCodeNotFound, "Atendente não encontrado", nil)
		}
	}

	return e.touch(ctx, conv, models.ConversationPatch{
		AdminRef:       models.IntPtr(adminID),
		NeedsAttention: models.BoolPtr(false),
	})
}

// EndConversation closes a conversation on behalf of its assigned operator.
func (e *Engine) EndConversation(ctx context.Context, conversationID string, adminID int) (*models.Conversation, error) {
	conv, unlock, err := e.lockLive(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if conv.AdminRef == nil || *conv.AdminRef != adminID {
		return nil, newError(ErrorCodePermissionDenied, "Apenas o atendente responsável pode encerrar a conversa", nil)
	}

	updated, err := e.end(ctx, conv, models.IntPtr(adminID), e.opts.ClosingMessage)
	if err != nil {
		return nil, err
	}
	e.metrics.conversationClosed("operator")
	return updated, nil
}

func (e *Engine) end(ctx context.Context, conv *models.Conversation, adminRef *int, text string) (*models.Conversation, error) {
	closure := &models.Message{
		ID:             e.newID(),
		ConversationID: conv.ID,
		AdminRef:       adminRef,
		FromAddress:    e.opts.RouterAddress,
		ToAddress:      conv.NormalizedPhone,
		Content:        text,
		Direction:      models.DirectionSystem,
		MessageType:    models.MessageTypeSystem,
		CreatedAt:      e.clock.Now(),
	}
	if err := e.messages.Append(ctx, closure); err != nil {
		e.log.Error().Err(err).Str("conversation_id", conv.ID).Str("op", "end").Msg("erro ao registrar encerramento")
		return nil, newError(ErrorCodeInternal, "Erro ao encerrar conversa", err)
	}
	e.publisher.Publish(notifier.NewMessageEvent(notifier.MessageAppended, conv, closure))

	return e.touch(ctx, conv, models.ConversationPatch{State: models.StatePtr(models.StateEnded)})
}

// ResendMenu sends the department menu again without changing state.
func (e *Engine) ResendMenu(ctx context.Context, conversationID string) (*models.Message, error) {
	conv, unlock, err := e.lockLive(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	menu, err := e.loadMenu(ctx)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "Erro ao carregar setores", err)
	}

	msg, sendErr := e.sendOutbound(ctx, conv, menu.Text(), menu.Text(), models.MessageTypeMenu, nil)
	if msg == nil {
		return nil, sendErr
	}
	if _, err := e.touch(ctx, conv, models.ConversationPatch{}); err != nil {
		return msg, err
	}
	return msg, sendErr
}

// CloseIdle ends live conversations with no activity since before. It
// returns how many were closed.
func (e *Engine) CloseIdle(ctx context.Context, before time.Time) (int, error) {
	stale, err := e.conversations.ListStale(ctx, before)
	if err != nil {
		return 0, newError(ErrorCodeInternal, "Erro ao listar conversas inativas", err)
	}

	closed := 0
	for _, candidate := range stale {
		if err := ctx.Err(); err != nil {
			return closed, err
		}
		ok, err := e.closeIfIdle(ctx, candidate.ID, before)
		if err != nil {
			e.log.Warn().Err(err).Str("conversation_id", candidate.ID).Msg("erro ao encerrar conversa inativa")
			continue
		}
		if ok {
			closed++
		}
	}
	return closed, nil
}

func (e *Engine) closeIfIdle(ctx context.Context, conversationID string, before time.Time) (bool, error) {
	conv, unlock, err := e.lockLive(ctx, conversationID)
	if IsCode(err, ErrorCodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer unlock()

	if !conv.UpdatedAt.Before(before) {
		return false, nil
	}
	if _, err := e.end(ctx, conv, nil, e.opts.IdleMessage); err != nil {
		return false, err
	}
	e.metrics.conversationClosed("idle")
	return true, nil
}

// HandleReceipt applies a provider delivery receipt. Receipts for unknown
// messages return not_found; stale or repeated receipts are ignored.
func (e *Engine) HandleReceipt(ctx context.Context, providerMessageID, rawStatus string) (*models.Message, bool, error) {
	status, ok := MapProviderStatus(rawStatus)
	if !ok {
		e.metrics.receipt("invalid")
		return nil, false, newError(ErrorCodeValidation, "Status de entrega desconhecido", nil)
	}
	msg, err := e.messages.GetByProviderID(ctx, providerMessageID)
	if err != nil {
		return nil, false, newError(ErrorCodeInternal, "Erro ao buscar mensagem", err)
	}
	if msg == nil {
		e.metrics.receipt("unknown")
		return nil, false, newError(ErrorCodeNotFound, "Mensagem não encontrada", nil)
	}
	return e.ApplyDeliveryStatus(ctx, msg.ID, status, "")
}

// ApplyDeliveryStatus moves an outbound message to status when the
// transition rules allow it. It reports whether anything changed.
func (e *Engine) ApplyDeliveryStatus(ctx context.Context, messageID string, status models.DeliveryStatus, reason string) (*models.Message, bool, error) {
	msg, err := e.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, false, newError(ErrorCodeInternal, "Erro ao buscar mensagem", err)
	}
	if msg == nil {
		return nil, false, newError(ErrorCodeNotFound, "Mensagem não encontrada", nil)
	}
	if msg.Direction != models.DirectionOutbound {
		return msg, false, newError(ErrorCodeValidation, "Mensagem sem status de entrega", nil)
	}

	unlock := e.locks.Lock(conversationKey(msg.ConversationID))
	defer unlock()

	for attempt := 0; attempt < 2; attempt++ {
		current := msg.DeliveryStatus
		if current == status || !current.CanTransition(status) {
			e.metrics.receipt("ignored")
			return msg, false, nil
		}

		changed, err := e.messages.UpdateDeliveryStatus(ctx, msg.ID, current, status, "", reason)
		if err != nil {
			return msg, false, newError(ErrorCodeInternal, "Erro ao atualizar status de entrega", err)
		}
		if changed {
			msg.DeliveryStatus = status
			if reason != "" {
				msg.FailureReason = reason
			}
			e.metrics.receipt("applied")
			e.afterStatusChange(ctx, msg)
			return msg, true, nil
		}

		// Outro escritor mudou o status: recarrega e reavalia
		msg, err = e.messages.GetByID(ctx, messageID)
		if err != nil || msg == nil {
			return nil, false, newError(ErrorCodeInternal, "Erro ao recarregar mensagem", err)
		}
	}
	e.metrics.receipt("ignored")
	return msg, false, nil
}

func (e *Engine) afterStatusChange(ctx context.Context, msg *models.Message) {
	conv, err := e.conversations.GetByID(ctx, msg.ConversationID)
	if err != nil || conv == nil {
		e.log.Warn().Err(err).Str("conversation_id", msg.ConversationID).Msg("conversa da mensagem não encontrada")
		return
	}
	if conv.IsLive() {
		if updated, err := e.conversations.Update(ctx, conv.ID, models.ConversationPatch{UpdatedAt: e.clock.Now()}); err == nil && updated != nil {
			conv = updated
		}
	}
	e.publisher.Publish(notifier.NewMessageEvent(notifier.MessageStatus, conv, msg))
}

// GetConversation returns a conversation with its messages in arrival
// order. ENDED conversations are readable.
func (e *Engine) GetConversation(ctx context.Context, conversationID string) (*models.ConversationView, error) {
	conv, err := e.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "Erro ao carregar conversa", err)
	}
	if conv == nil {
		return nil, newError(ErrorCodeNotFound, "Conversa não encontrada", nil)
	}
	messages, err := e.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "Erro ao carregar mensagens", err)
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	return &models.ConversationView{Conversation: conv, Messages: messages}, nil
}

func (e *Engine) ListActive(ctx context.Context) ([]*models.Conversation, error) {
	list, err := e.conversations.ListActive(ctx)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "Erro ao listar conversas", err)
	}
	if list == nil {
		list = []*models.Conversation{}
	}
	return list, nil
}

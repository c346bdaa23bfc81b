package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"whatsapp-router/internal/models"
	"whatsapp-router/internal/utils"
)

const (
	IndicatorFailedDeliveries = "failed deliveries present"
	IndicatorPendingBacklog   = "high pending backlog"
	IndicatorNoResponse       = "delivered but no response"
	IndicatorHighVolumeSilent = "high volume, no reply"
	IndicatorHealthy          = "healthy response rate"
	IndicatorLowResponse      = "low response rate"

	DefaultHealthWindow = 24 * time.Hour
	DefaultPollTimeout  = 10 * time.Second
)

// HealthThresholds are the policy constants behind the indicators.
type HealthThresholds struct {
	PendingBacklog     int     `mapstructure:"pending_backlog"`
	HighVolume         int     `mapstructure:"high_volume"`
	HealthyRate        float64 `mapstructure:"healthy_rate"`
	LowRate            float64 `mapstructure:"low_rate"`
	LowRateMinOutbound int     `mapstructure:"low_rate_min_outbound"`
}

func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		PendingBacklog:     3,
		HighVolume:         5,
		HealthyRate:        0.5,
		LowRate:            0.1,
		LowRateMinOutbound: 3,
	}
}

type ConversationHealth struct {
	ConversationID string                        `json:"conversation_id"`
	Window         string                        `json:"window"`
	OutboundCount  int                           `json:"outbound_count"`
	InboundCount   int                           `json:"inbound_count"`
	ResponseRate   float64                       `json:"response_rate"`
	ByStatus       map[models.DeliveryStatus]int `json:"by_status"`
	Indicators     []string                      `json:"indicators"`
	TransportError string                        `json:"transport_error,omitempty"`
	Error          string                        `json:"error,omitempty"`
	GeneratedAt    time.Time                     `json:"generated_at"`
}

type DeliveryReport struct {
	MessageID         string                `json:"message_id,omitempty"`
	ConversationID    string                `json:"conversation_id"`
	ProviderMessageID string                `json:"provider_message_id,omitempty"`
	Status            models.DeliveryStatus `json:"status,omitempty"`
	ProviderStatus    models.DeliveryStatus `json:"provider_status,omitempty"`
	Updated           bool                  `json:"updated"`
	PatternOnly       bool                  `json:"pattern_only"`
	TransportError    string                `json:"transport_error,omitempty"`
	Health            *ConversationHealth   `json:"health"`
}

type ReconcilerOptions struct {
	Window      time.Duration
	PollTimeout time.Duration
	Thresholds  HealthThresholds
}

// Reconciler checks outbound delivery against the provider and summarizes
// conversation health from the message log.
type Reconciler struct {
	engine    *Engine
	messages  models.MessageRepository
	transport Transport
	opts      ReconcilerOptions
	now       func() time.Time
	log       zerolog.Logger
}

func NewReconciler(engine *Engine, transport Transport, opts ReconcilerOptions) *Reconciler {
	if opts.Window <= 0 {
		opts.Window = DefaultHealthWindow
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.Thresholds == (HealthThresholds{}) {
		opts.Thresholds = DefaultHealthThresholds()
	}
	return &Reconciler{
		engine:    engine,
		messages:  engine.messages,
		transport: transport,
		opts:      opts,
		now:       engine.clock.now,
		log:       utils.Component("reconciler"),
	}
}

// Correlate polls the provider once for messageID and applies the result.
// An empty messageID, a message without provider id or a provider failure
// leaves only the pattern analysis of the conversation.
func (r *Reconciler) Correlate(ctx context.Context, messageID, conversationID string) (*DeliveryReport, error) {
	report := &DeliveryReport{MessageID: messageID, ConversationID: conversationID, PatternOnly: true}

	if messageID != "" {
		msg, err := r.messages.GetByID(ctx, messageID)
		if err != nil {
			return nil, newError(ErrorCodeInternal, "Erro ao buscar mensagem", err)
		}
		if msg == nil {
			return nil, newError(ErrorCodeNotFound, "Mensagem não encontrada", nil)
		}
		report.ConversationID = msg.ConversationID
		report.ProviderMessageID = msg.ProviderMessageID
		report.Status = msg.DeliveryStatus

		if msg.Direction == models.DirectionOutbound && msg.ProviderMessageID != "" && r.transport != nil {
			r.poll(ctx, msg, report)
		}
	}

	if report.ConversationID == "" {
		return nil, newError(ErrorCodeValidation, "Informe a mensagem ou a conversa", nil)
	}

	health, err := r.AnalyzeConversation(ctx, report.ConversationID)
	if err != nil {
		return nil, err
	}
	if report.TransportError != "" {
		health.TransportError = report.TransportError
	}
	report.Health = health
	return report, nil
}

func (r *Reconciler) poll(ctx context.Context, msg *models.Message, report *DeliveryReport) {
	pollCtx, cancel := context.WithTimeout(ctx, r.opts.PollTimeout)
	defer cancel()

	status, err := r.transport.Status(pollCtx, msg.ProviderMessageID)
	if err != nil {
		report.TransportError = err.Error()
		r.log.Warn().Err(err).Str("message_id", msg.ID).Str("conversation_id", msg.ConversationID).Msg("falha ao consultar status no provedor")
		return
	}

	report.PatternOnly = false
	report.ProviderStatus = status
	updated, changed, err := r.engine.ApplyDeliveryStatus(ctx, msg.ID, status, "")
	if err != nil {
		r.log.Warn().Err(err).Str("message_id", msg.ID).Msg("erro ao aplicar status do provedor")
		return
	}
	report.Updated = changed
	if updated != nil {
		report.Status = updated.DeliveryStatus
	}
}

// AnalyzeConversation aggregates the trailing window of a conversation.
func (r *Reconciler) AnalyzeConversation(ctx context.Context, conversationID string) (*ConversationHealth, error) {
	now := r.now().UTC()
	messages, err := r.messages.ListSince(ctx, conversationID, now.Add(-r.opts.Window))
	if err != nil {
		return nil, newError(ErrorCodeInternal, "Erro ao carregar mensagens", err)
	}
	health := Summarize(messages, r.opts.Thresholds)
	health.ConversationID = conversationID
	health.Window = r.opts.Window.String()
	health.GeneratedAt = now
	return health, nil
}

// Summarize computes counts, response rate and indicators for messages.
func Summarize(messages []*models.Message, th HealthThresholds) *ConversationHealth {
	h := &ConversationHealth{
		ByStatus:   map[models.DeliveryStatus]int{},
		Indicators: []string{},
	}
	for _, m := range messages {
		switch m.Direction {
		case models.DirectionOutbound:
			h.OutboundCount++
			h.ByStatus[m.DeliveryStatus]++
		case models.DirectionInbound:
			h.InboundCount++
		}
	}
	if h.OutboundCount > 0 {
		h.ResponseRate = float64(h.InboundCount) / float64(h.OutboundCount)
	}

	if h.ByStatus[models.StatusFailed] > 0 {
		h.Indicators = append(h.Indicators, IndicatorFailedDeliveries)
	}
	if h.ByStatus[models.StatusPending] > th.PendingBacklog {
		h.Indicators = append(h.Indicators, IndicatorPendingBacklog)
	}
	if h.ByStatus[models.StatusDelivered] > 0 && h.InboundCount == 0 {
		h.Indicators = append(h.Indicators, IndicatorNoResponse)
	}
	if h.OutboundCount > th.HighVolume && h.InboundCount == 0 && h.ByStatus[models.StatusSent] == 0 {
		h.Indicators = append(h.Indicators, IndicatorHighVolumeSilent)
	}
	if h.ResponseRate > th.HealthyRate {
		h.Indicators = append(h.Indicators, IndicatorHealthy)
	}
	if h.ResponseRate < th.LowRate && h.OutboundCount > th.LowRateMinOutbound {
		h.Indicators = append(h.Indicators, IndicatorLowResponse)
	}
	return h
}

// FleetHealth analyzes every active conversation. A failing conversation is
// reported with its error instead of aborting the run.
func (r *Reconciler) FleetHealth(ctx context.Context) ([]*ConversationHealth, error) {
	defer utils.TimeTrack(time.Now(), "FleetHealth")
	active, err := r.engine.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*ConversationHealth, 0, len(active))
	for _, c := range active {
		h, err := r.AnalyzeConversation(ctx, c.ID)
		if err != nil {
			r.log.Warn().Err(err).Str("conversation_id", c.ID).Msg("erro na análise da conversa")
			out = append(out, &ConversationHealth{
				ConversationID: c.ID,
				Window:         r.opts.Window.String(),
				ByStatus:       map[models.DeliveryStatus]int{},
				Indicators:     []string{},
				Error:          err.Error(),
				GeneratedAt:    r.now().UTC(),
			})
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

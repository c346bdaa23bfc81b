package services

import (
	"context"
	"errors"
	"strings"

	"whatsapp-router/internal/models"
)

// SendResult is the outcome of one outbound send. Success false carries a
// provider or timeout error text.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	Error             string
}

// Transport is the external messaging provider.
type Transport interface {
	Send(ctx context.Context, to string, body string) SendResult
	// Status asks the provider for the delivery state of a sent message.
	Status(ctx context.Context, providerMessageID string) (models.DeliveryStatus, error)
}

var ErrTransportDisabled = errors.New("transport not configured")

var ErrStatusUnknown = errors.New("delivery status unknown")

// DisabledTransport fails every call. Outbound messages are still recorded,
// as failed.
type DisabledTransport struct{}

func (DisabledTransport) Send(ctx context.Context, to string, body string) SendResult {
	return SendResult{Error: ErrTransportDisabled.Error()}
}

func (DisabledTransport) Status(ctx context.Context, providerMessageID string) (models.DeliveryStatus, error) {
	return "", ErrTransportDisabled
}

// MapProviderStatus translates the vocabularies used by providers and
// webhooks into DeliveryStatus.
func MapProviderStatus(raw string) (models.DeliveryStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending", "enqueued":
		return models.StatusPending, true
	case "sent", "server_ack", "accepted":
		return models.StatusSent, true
	case "delivered", "delivery_ack", "received":
		return models.StatusDelivered, true
	case "read", "read_ack", "played", "seen":
		return models.StatusRead, true
	case "failed", "error", "rejected", "undelivered":
		return models.StatusFailed, true
	}
	return "", false
}

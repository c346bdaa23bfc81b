package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSink publishes events to a durable topic exchange with the event type
// as routing key. It keeps one channel in confirm mode and waits for the
// broker ack of every publish.
type AMQPSink struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	if exchange == "" {
		exchange = "router.events"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp sink: dial: %w", err)
	}
	s := &AMQPSink{conn: conn, exchange: exchange}
	ch, err := s.openChannel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp sink: declare exchange: %w", err)
	}
	s.ch = ch
	return s, nil
}

func (s *AMQPSink) openChannel() (*amqp.Channel, error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp sink: channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("amqp sink: confirm mode: %w", err)
	}
	return ch, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

func RoutingKey(event Event) string {
	return string(event.Type)
}

func publishing(event Event) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("amqp sink: marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     event.ID,
		CorrelationId: event.ConversationID,
		Type:          string(event.Type),
		Timestamp:     event.OccurredAt,
		Body:          body,
	}, nil
}

func (s *AMQPSink) Deliver(ctx context.Context, event Event) error {
	msg, err := publishing(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch == nil || s.ch.IsClosed() {
		ch, err := s.openChannel()
		if err != nil {
			return err
		}
		s.ch = ch
	}

	confirm, err := s.ch.PublishWithDeferredConfirmWithContext(ctx, s.exchange, RoutingKey(event), false, false, msg)
	if err != nil {
		return fmt.Errorf("amqp sink: publish: %w", err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("amqp sink: waiting for confirm: %w", err)
	}
	if !acked {
		return errors.New("amqp sink: broker nacked event " + event.ID)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	if s.ch != nil {
		s.ch.Close()
	}
	s.mu.Unlock()
	return s.conn.Close()
}

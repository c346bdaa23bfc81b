package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes each event on "<prefix>.<event type>".
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSSink(conn *nats.Conn, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "router.events"
	}
	return &NATSSink{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Subject(event Event) string {
	return s.prefix + "." + string(event.Type)
}

func (s *NATSSink) message(event Event) (*nats.Msg, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("nats sink: marshal event: %w", err)
	}
	msg := nats.NewMsg(s.Subject(event))
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, event.ID)
	msg.Header.Set("Event-Type", string(event.Type))
	return msg, nil
}

func (s *NATSSink) Deliver(ctx context.Context, event Event) error {
	msg, err := s.message(event)
	if err != nil {
		return err
	}
	if err := s.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats sink: publish: %w", err)
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats sink: flush: %w", err)
	}
	return nil
}

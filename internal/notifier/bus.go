package notifier

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"whatsapp-router/internal/utils"
)

// Publisher is what the engine depends on.
type Publisher interface {
	Publish(event Event)
}

// Sink receives every event the bus dispatches.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

type BusOptions struct {
	MaxAttempts    int
	RetryBackoff   time.Duration
	DeliverTimeout time.Duration
	Now            func() time.Time
}

// Bus queues events in publish order and hands them to every sink from a
// single goroutine, so events of one conversation leave in the order they
// were published. Publish never blocks on a sink.
type Bus struct {
	opts  BusOptions
	log   zerolog.Logger
	sinks []Sink

	mu      sync.Mutex
	queue   []Event
	seqs    map[string]uint64
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	metrics func(sink string, err error)
}

func NewBus(opts BusOptions, sinks ...Sink) *Bus {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	if opts.DeliverTimeout <= 0 {
		opts.DeliverTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	b := &Bus{
		opts:  opts,
		log:   utils.Component("notifier"),
		sinks: sinks,
		seqs:  make(map[string]uint64),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go b.run()
	return b
}

// OnDelivery registers a callback invoked after each sink delivery attempt
// sequence finishes.
func (b *Bus) OnDelivery(fn func(sink string, err error)) {
	b.mu.Lock()
	b.metrics = fn
	b.mu.Unlock()
}

// Publish stamps the event with an ID, timestamp and per-stream sequence
// number and queues it. Events published after Close are dropped.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.log.Warn().Str("type", string(event.Type)).Msg("evento descartado: barramento encerrado")
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = b.opts.Now().UTC()
	}
	key := event.StreamKey()
	b.seqs[key]++
	event.Seq = b.seqs[key]
	b.queue = append(b.queue, event)
	select {
	case b.wake <- struct{}{}:
	default:
	}
	b.mu.Unlock()
}

// Close stops accepting events, delivers what is queued and waits for the
// dispatcher to exit or ctx to expire.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.wake)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) run() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for len(b.queue) == 0 {
			if b.closed {
				b.mu.Unlock()
				return
			}
			b.mu.Unlock()
			<-b.wake
			b.mu.Lock()
		}
		event := b.queue[0]
		b.queue[0] = Event{}
		b.queue = b.queue[1:]
		b.mu.Unlock()

		for _, sink := range b.sinks {
			b.deliver(sink, event)
		}
	}
}

func (b *Bus) deliver(sink Sink, event Event) {
	var err error
	for attempt := 1; attempt <= b.opts.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), b.opts.DeliverTimeout)
		err = sink.Deliver(ctx, event)
		cancel()
		if err == nil {
			break
		}
		b.log.Warn().Err(err).
			Str("sink", sink.Name()).
			Str("event_id", event.ID).
			Int("attempt", attempt).
			Msg("falha ao entregar evento")
		if attempt < b.opts.MaxAttempts {
			time.Sleep(b.opts.RetryBackoff * time.Duration(attempt))
		}
	}
	if err != nil {
		b.log.Error().Err(err).
			Str("sink", sink.Name()).
			Str("event_id", event.ID).
			Str("type", string(event.Type)).
			Msg("evento descartado após tentativas")
	}

	b.mu.Lock()
	fn := b.metrics
	b.mu.Unlock()
	if fn != nil {
		fn(sink.Name(), err)
	}
}

// Pending returns the number of queued events.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func itoa(v int) string {
	return strconv.Itoa(v)
}

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"whatsapp-router/internal/utils"
)

// IdleSweeper periodically ends conversations idle for longer than timeout.
type IdleSweeper struct {
	engine   *Engine
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewIdleSweeper(engine *Engine, timeout, interval time.Duration) *IdleSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &IdleSweeper{
		engine:   engine,
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
		log:      utils.Component("sweeper"),
	}
}

func (s *IdleSweeper) SweepOnce(ctx context.Context) (int, error) {
	if s.timeout <= 0 {
		return 0, nil
	}
	closed, err := s.engine.CloseIdle(ctx, s.now().UTC().Add(-s.timeout))
	if err != nil {
		s.log.Error().Err(err).Msg("erro ao encerrar conversas inativas")
		return closed, err
	}
	if closed > 0 {
		s.log.Info().Int("closed", closed).Msg("conversas inativas encerradas")
	}
	return closed, nil
}

// Run sweeps until ctx is cancelled.
func (s *IdleSweeper) Run(ctx context.Context) {
	if s.timeout <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

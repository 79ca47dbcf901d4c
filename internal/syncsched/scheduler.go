package syncsched

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"mira/internal/config"
	"mira/internal/logging"
)

// State is the polling cadence the scheduler is currently in.
type State string

const (
	StateActive State = "active"
	StateNormal State = "normal"
	StateIdle   State = "idle"
	StateError  State = "error"
)

// quietTicksUntilIdle is how many consecutive empty syncs demote the
// cadence from normal to idle.
const quietTicksUntilIdle = 3

// Scheduler decides how long to wait between sync ticks. Fresh updates pull
// the cadence up to active; consecutive quiet ticks let it decay toward
// idle; failures switch to exponential backoff capped at max_backoff.
type Scheduler struct {
	mu         sync.Mutex
	cfg        config.SyncConfig
	state      State
	quietTicks int
	errCount   int
	seed       func() int64
	wait       func(ctx context.Context, d time.Duration) bool
	logger     logging.Logger
}

// New builds a scheduler starting in the active state, so the first tick
// after startup happens quickly.
func New(cfg config.SyncConfig, logger logging.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		state:  StateActive,
		seed:   rand.Int63,
		wait:   sleepCtx,
		logger: logging.OrNop(logger),
	}
}

// sleepCtx blocks for d or until ctx is done; reports whether the full wait
// elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// State returns the current cadence state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ErrorCount returns the consecutive failure count.
func (s *Scheduler) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errCount
}

// OnSuccess records one completed sync and the number of updates it stored.
func (s *Scheduler) OnSuccess(stored int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errCount = 0

	if stored > 0 {
		s.state = StateActive
		s.quietTicks = 0
		return
	}
	s.quietTicks++
	if s.quietTicks >= quietTicksUntilIdle {
		s.state = StateIdle
	} else {
		s.state = StateNormal
	}
}

// OnFailure records one failed sync.
func (s *Scheduler) OnFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errCount++
	s.state = StateError
	s.logger.Warn("sync failing, consecutive errors: %d", s.errCount)
}

// NextInterval returns how long to wait before the next tick, including
// per-tick jitter so multiple accounts never thundering-herd a provider.
func (s *Scheduler) NextInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var minutes int
	switch s.state {
	case StateActive:
		minutes = s.cfg.ActivePollingMinutes
	case StateNormal:
		minutes = s.cfg.NormalPollingMinutes
	case StateIdle:
		minutes = s.cfg.IdlePollingMinutes
	case StateError:
		minutes = s.backoffMinutes()
	}
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes)*time.Minute + s.jitter()
}

// backoffMinutes doubles the active interval per consecutive failure,
// capped at max_backoff.
func (s *Scheduler) backoffMinutes() int {
	n := s.errCount
	if n > 30 {
		n = 30 // 2^31 overflows; the cap has long since won anyway
	}
	backoff := s.cfg.ActivePollingMinutes
	for i := 0; i < n; i++ {
		backoff *= 2
		if backoff >= s.cfg.MaxBackoffMinutes {
			return s.cfg.MaxBackoffMinutes
		}
	}
	if backoff < 1 {
		backoff = 1
	}
	return backoff
}

func (s *Scheduler) jitter() time.Duration {
	seed := s.seed()
	if seed < 0 {
		seed = -seed
	}
	return time.Duration(seed%31) * time.Second
}

// Run drives the tick loop until the context is cancelled. tick reports how
// many updates it stored; its error switches the scheduler into backoff.
func (s *Scheduler) Run(ctx context.Context, tick func(ctx context.Context) (int, error)) {
	for {
		if !s.wait(ctx, s.NextInterval()) {
			return
		}

		stored, err := tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.OnFailure()
			continue
		}
		s.OnSuccess(stored)
	}
}

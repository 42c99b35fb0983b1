// Package scheduler releases scheduled messages once they fall due.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/weiawesome/wes-messenger/internal/domain"
	pkglog "github.com/weiawesome/wes-messenger/pkg/log"
)

const defaultBatchSize = 100

// Store is the part of the message store the scheduler needs.
type Store interface {
	FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]*domain.Message, error)
	MarkSent(ctx context.Context, id string, at time.Time) (bool, error)
}

// Deliverer fans a sent message out to its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, msg *domain.Message) bool
}

// Result summarises one sweep.
type Result struct {
	Due     int
	Sent    int
	Skipped int
	Failed  int
}

// Scheduler periodically sweeps for due scheduled messages.
type Scheduler struct {
	store     Store
	deliverer Deliverer
	interval  time.Duration
	batchSize int
	now       func() time.Time
	busy      atomic.Bool
	quit      chan struct{}
	doneCh    chan struct{}
}

// New creates a new Scheduler.
func New(store Store, deliverer Deliverer, interval time.Duration, batchSize int) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Scheduler{
		store:     store,
		deliverer: deliverer,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
		quit:      make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the scheduler in a background goroutine. It sweeps once
// immediately to release messages that fell due while stopped.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop signals the scheduler to stop and returns immediately.
// Call Done() to wait for it to exit.
func (s *Scheduler) Stop() {
	close(s.quit)
}

// Done returns a channel that is closed when the scheduler has fully stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick skips the sweep while the previous one is still running.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		l := pkglog.L()
		l.Warn().Msg("scheduler: previous sweep still running, skipping tick")
		return
	}
	defer s.busy.Store(false)

	res, err := s.Sweep(ctx, s.now())
	l := pkglog.L()
	if err != nil {
		l.Error().Err(err).Msg("scheduler: sweep failed")
		return
	}
	if res.Due > 0 {
		l.Info().
			Int("due", res.Due).
			Int("sent", res.Sent).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Msg("scheduler: sweep completed")
	}
}

// Sweep sends every scheduled message due at now. Each message is claimed
// with a conditional update, so concurrent sweeps deliver it once. A
// failing message never stops the rest of the batch.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (Result, error) {
	var res Result
	now = now.UTC()

	for {
		due, err := s.store.FindDueScheduled(ctx, now, s.batchSize)
		if err != nil {
			return res, fmt.Errorf("find due messages: %w", err)
		}
		res.Due += len(due)

		claimed := 0
		for _, msg := range due {
			switch s.release(ctx, msg, now) {
			case outcomeSent:
				res.Sent++
				claimed++
			case outcomeSkipped:
				res.Skipped++
			case outcomeFailed:
				res.Failed++
			}
		}

		// A short batch means nothing is left; a batch with no claims means
		// the remainder belongs to someone else or keeps failing.
		if len(due) < s.batchSize || claimed == 0 || ctx.Err() != nil {
			return res, nil
		}
	}
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (s *Scheduler) release(ctx context.Context, msg *domain.Message, now time.Time) (out outcome) {
	l := pkglog.L().With().Str(pkglog.FieldMessageID, msg.ID).Logger()
	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Msg("scheduler: delivery panicked")
			out = outcomeFailed
		}
	}()

	ok, err := s.store.MarkSent(ctx, msg.ID, now)
	if err != nil {
		l.Error().Err(err).Msg("scheduler: failed to mark message sent")
		return outcomeFailed
	}
	if !ok {
		return outcomeSkipped
	}

	msg.Sent = true
	msg.SentAt = &now
	s.deliverer.Deliver(ctx, msg)
	return outcomeSent
}

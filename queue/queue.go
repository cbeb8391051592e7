// Package queue implements the scheduler that paces dialogue entries into
// the translation pipeline.
//
// Producers append entries with Add at any rate. A ticker fires every
// Interval and pops exactly one entry from the head of the queue, so the
// downstream translator sees at most one new request per interval no
// matter how bursty the input is. The queue is unbounded and strictly FIFO.
//
// Each dispatched entry carries the scheduler epoch. Restart drops every
// queued entry, advances the epoch and cancels the context handed to the
// previous epoch's handlers, so results of calls still in flight can be
// recognised as stale with Current.
package queue

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/minios-linux/dialogkit/dialogue"
)

// DefaultInterval is the drain cadence used when Options.Interval is zero.
const DefaultInterval = time.Second

// Handler processes one drained entry. It runs on its own goroutine so a
// slow translation never delays the next tick.
type Handler func(ctx context.Context, entry *dialogue.Entry, epoch uint64)

// Options configures a Scheduler.
type Options struct {
	// Interval between drain ticks.
	Interval time.Duration
	// Logger receives debug output; nil disables logging.
	Logger *zap.Logger
	// Now overrides the clock used for timestamps.
	Now func() time.Time
}

// Scheduler owns the entry queue and the drain timer.
type Scheduler struct {
	handler  Handler
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	items   []*dialogue.Entry
	epoch   uint64
	ctx     context.Context
	cancel  context.CancelFunc
	stop    chan struct{}
	entropy io.Reader

	inflight atomic.Int64
	wg       sync.WaitGroup
}

// New creates a scheduler that passes drained entries to handler.
// The timer does not run until Start is called.
func New(handler Handler, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		handler:  handler,
		interval: opts.Interval,
		logger:   opts.Logger,
		now:      opts.Now,
		ctx:      ctx,
		cancel:   cancel,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// Start begins draining on the ticker. Calling Start on a running
// scheduler has no effect.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	s.startTimerLocked()
}

func (s *Scheduler) startTimerLocked() {
	stop := make(chan struct{})
	s.stop = stop
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.tick(stop)
			}
		}
	}()
}

func (s *Scheduler) stopTimerLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// Add appends entry to the tail of the queue and returns the queue length.
func (s *Scheduler) Add(entry *dialogue.Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, entry)
	return len(s.items)
}

// Restart stops the timer, drops every queued entry, advances the epoch and
// starts a fresh timer, also on a scheduler that was stopped or never
// started. Handlers already running see their context cancelled. It
// returns the new epoch.
func (s *Scheduler) Restart() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()

	dropped := len(s.items)
	s.items = nil
	s.epoch++
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.startTimerLocked()

	s.logger.Info("scheduler restarted",
		zap.Uint64("epoch", s.epoch),
		zap.Int("dropped", dropped),
	)
	return s.epoch
}

// Stop halts the timer and cancels running handlers. Queued entries stay
// in place and are drained again after Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.cancel()
}

// Len returns the number of queued entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Epoch returns the current epoch.
func (s *Scheduler) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Current reports whether epoch is still the current epoch.
func (s *Scheduler) Current(epoch uint64) bool {
	return s.Epoch() == epoch
}

// Drain blocks until the queue is empty and no handler is running, or ctx
// is done.
func (s *Scheduler) Drain(ctx context.Context) error {
	poll := time.NewTicker(max(s.interval/4, time.Millisecond))
	defer poll.Stop()
	for {
		if s.Len() == 0 && s.inflight.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
		}
	}
}

// Wait blocks until every dispatched handler has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// tick pops the head of the queue and dispatches it. It reports whether an
// entry was dispatched. stop is the channel of the timer that fired; a tick
// whose timer was stopped while it waited for the lock does nothing. A nil
// stop dispatches unconditionally.
func (s *Scheduler) tick(stop <-chan struct{}) bool {
	s.mu.Lock()
	select {
	case <-stop:
		s.mu.Unlock()
		return false
	default:
	}
	if len(s.items) == 0 {
		s.mu.Unlock()
		return false
	}
	entry := s.items[0]
	s.items[0] = nil
	s.items = s.items[1:]

	s.stampLocked(entry)
	entry.Translation.From = entry.SourceLanguage()

	ctx, epoch := s.ctx, s.epoch
	s.inflight.Add(1)
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Debug("dispatching entry",
		zap.String("id", entry.ID),
		zap.String("code", entry.Code),
		zap.String("from", entry.Translation.From),
		zap.Uint64("epoch", epoch),
	)

	go func() {
		defer func() {
			s.inflight.Add(-1)
			s.wg.Done()
		}()
		s.handler(ctx, entry, epoch)
	}()
	return true
}

// stampLocked assigns an id and timestamp to entries that arrived without
// them. Values supplied by the producer are never overwritten.
func (s *Scheduler) stampLocked(entry *dialogue.Entry) {
	now := s.now()
	if entry.Timestamp == 0 {
		entry.Timestamp = now.UnixMilli()
	}
	if entry.ID == "" {
		entry.ID = ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
	}
}

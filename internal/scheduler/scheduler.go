package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/types"
)

type Reconciler interface {
	Reconcile(ctx context.Context) (types.StatsSnapshot, error)
}

// Scheduler periodically rebuilds the platform counters from the ledger
// rows, correcting any drift of the incrementally maintained stats row.
type Scheduler struct {
	reconciler Reconciler
	interval   time.Duration
	log        *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

type Config struct {
	Interval time.Duration
}

func NewScheduler(reconciler Reconciler, config Config, logger *slog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		reconciler: reconciler,
		interval:   config.Interval,
		log:        logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info("Scheduler started", slog.String("type", "scheduler"), slog.Duration("interval", s.interval))
	s.wg.Add(1)
	go s.loop()
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.log.Info("Scheduler stopped", slog.String("type", "scheduler"))
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(s.ctx)
		}
	}
}

// RunOnce performs a single reconciliation.
func (s *Scheduler) RunOnce(ctx context.Context) {
	snap, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("Stats reconcile failed", slog.String("type", "scheduler"), slog.Any("error", err))
		}
		return
	}
	s.log.Info("Stats reconciled",
		slog.String("type", "scheduler"),
		slog.Int64("total_users", snap.TotalUsers),
		slog.Int64("total_chats", snap.TotalChats),
		slog.String("total_earnings", snap.TotalEarnings.String()))
}

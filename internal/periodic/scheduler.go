package periodic

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type RetrySweeper interface {
	RetrySweep(ctx context.Context) (int, error)
}

type JobDispatcher interface {
	DispatchOnce(ctx context.Context) (int, error)
}

type LedgerAuditor interface {
	AuditAll(ctx context.Context) (int, error)
}

type Intervals struct {
	RetrySweep  time.Duration
	OutboxPoll  time.Duration
	LedgerAudit time.Duration
}

// Scheduler drives the background loops of the service: the dispatch retry
// sweep, the outbox poller and the ledger audit.
type Scheduler struct {
	sweeper RetrySweeper
	outbox  JobDispatcher
	auditor LedgerAuditor
	every   Intervals
	log     *zap.Logger
	stopCh  chan struct{}
}

func NewScheduler(sweeper RetrySweeper, outbox JobDispatcher, auditor LedgerAuditor, every Intervals, log *zap.Logger) *Scheduler {
	return &Scheduler{
		sweeper: sweeper,
		outbox:  outbox,
		auditor: auditor,
		every:   every,
		log:     log,
		stopCh:  make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("starting periodic scheduler",
		zap.Duration("retry_sweep", s.every.RetrySweep),
		zap.Duration("outbox_poll", s.every.OutboxPoll),
		zap.Duration("ledger_audit", s.every.LedgerAudit),
	)

	if s.sweeper != nil && s.every.RetrySweep > 0 {
		go s.loop(ctx, "dispatch retry sweep", s.every.RetrySweep, false, s.sweeper.RetrySweep)
	}
	if s.outbox != nil && s.every.OutboxPoll > 0 {
		go s.loop(ctx, "outbox dispatch", s.every.OutboxPoll, true, s.outbox.DispatchOnce)
	}
	if s.auditor != nil && s.every.LedgerAudit > 0 {
		go s.loop(ctx, "ledger audit", s.every.LedgerAudit, false, s.auditor.AuditAll)
	}
}

func (s *Scheduler) Stop() {
	s.log.Info("stopping periodic scheduler")
	close(s.stopCh)
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, immediate bool, fn func(context.Context) (int, error)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	if immediate {
		s.tick(ctx, name, fn)
	}

	for {
		select {
		case <-ticker.C:
			s.tick(ctx, name, fn)
		case <-s.stopCh:
			s.log.Info(name + " stopped")
			return
		case <-ctx.Done():
			s.log.Info(name + " cancelled")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, name string, fn func(context.Context) (int, error)) {
	n, err := fn(ctx)
	if err != nil {
		s.log.Error(name+" failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Debug(name+" done", zap.Int("processed", n))
	}
}

// RunOnceNow runs every configured task once, in order.
func (s *Scheduler) RunOnceNow(ctx context.Context) error {
	if s.sweeper != nil {
		if _, err := s.sweeper.RetrySweep(ctx); err != nil {
			return err
		}
	}
	if s.outbox != nil {
		if _, err := s.outbox.DispatchOnce(ctx); err != nil {
			return err
		}
	}
	if s.auditor != nil {
		if _, err := s.auditor.AuditAll(ctx); err != nil {
			return err
		}
	}
	return nil
}

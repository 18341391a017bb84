package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Consumer interface {
	Consume(ctx context.Context, qids ...string) error
}

// ledgerConsumer moves loans events from the queues into the ledger.
type ledgerConsumer struct {
	logger *zap.Logger
	queue  Queuer
	ledger LedgerStorage
}

func NewLedgerConsumer(logger *zap.Logger, q Queuer, ledger LedgerStorage) Consumer {
	return &ledgerConsumer{logger, q, ledger}
}

// Consume runs until ctx is done. Events which can not be saved are logged and dropped.
func (lc *ledgerConsumer) Consume(ctx context.Context, qids ...string) error {
	for {
		qid, event, err := lc.queue.Pop(ctx, qids...)
		if err != nil && ctx.Err() != nil {
			lc.logger.Info("consumer: queue pop call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if err != nil {
			lc.logger.Error("consumer: error on queue pop call", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		if !isLoanQueue(qid) {
			lc.logger.Warn("consumer: received event on unknown queue id", zap.String("qid", qid), zap.Any("event", event))
			continue
		}

		if err = lc.ledger.Append(ctx, event); err != nil {
			lc.logger.Error("consumer: failed to save event", zap.String("qid", qid), zap.Any("event", event), zap.Error(err))
			continue
		}
		LoanEventsConsumed.WithLabelValues(qid).Inc()
	}
}

func isLoanQueue(qid string) bool {
	for _, q := range LoanQueues {
		if q == qid {
			return true
		}
	}
	return false
}

// finesRefresher fines overdue loans on a fixed interval so that
// listings show late loans without waiting for an admin call.
type finesRefresher struct {
	logger   *zap.Logger
	loans    LoanServiceProvider
	interval time.Duration
}

func NewFinesRefresher(logger *zap.Logger, loans LoanServiceProvider, interval time.Duration) *finesRefresher {
	return &finesRefresher{logger, loans, interval}
}

// Run refreshes fines at each tick until ctx is done.
func (fr *finesRefresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(fr.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fr.logger.Info("fines refresher: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		case <-ticker.C:
		}

		updated, err := fr.loans.RefreshFines(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			fr.logger.Error("fines refresher: failed to refresh fines", zap.Int("updated", updated), zap.Error(err))
			continue
		}
		if updated > 0 {
			fr.logger.Info("fines refresher: loans fined", zap.Int("updated", updated))
		}
	}
}

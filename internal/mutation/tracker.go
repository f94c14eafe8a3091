package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrReverted is reported when the receipt status is failed
var ErrReverted = errors.New("transaction reverted")

// Reader is the part of a node the tracker polls
type Reader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Result is the final state of a watched mutation
type Result struct {
	Mutation        *Mutation
	Status          Status
	BlockNumber     uint64
	Confirmations   uint64
	ContractAddress common.Address
	Err             error
}

// TrackerConfig controls polling
type TrackerConfig struct {
	RequiredConfirmations uint64
	PollInterval          time.Duration
	Timeout               time.Duration
}

// Tracker follows mutations until they are confirmed or fail
type Tracker struct {
	reader Reader
	cfg    TrackerConfig
	logger *zap.Logger
	handle func(context.Context, Result)

	// time from submission to a final status
	finality metric.Float64Histogram

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTracker creates a tracker. handle is called once per watched mutation that
// reaches a final status; watches that time out or are stopped never reach it.
func NewTracker(reader Reader, cfg TrackerConfig, logger *zap.Logger, handle func(context.Context, Result)) *Tracker {
	if cfg.RequiredConfirmations == 0 {
		cfg.RequiredConfirmations = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	finality, err := otel.Meter("github.com/MoMannn/wanchain-example/internal/mutation").Float64Histogram(
		"mutation.finality.duration",
		metric.WithDescription("Time from submission until a mutation completed or failed"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("failed to create finality histogram", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		reader:   reader,
		cfg:      cfg,
		logger:   logger,
		handle:   handle,
		finality: finality,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Watch follows m in the background
func (t *Tracker) Watch(m *Mutation) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ctx := t.ctx
		if t.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
			defer cancel()
		}

		res := t.Wait(ctx, m)
		switch {
		case errors.Is(res.Err, context.Canceled):
			t.logger.Debug("stopped watching mutation", zap.String("id", m.ID))
			return
		case errors.Is(res.Err, context.DeadlineExceeded):
			// the transaction may still confirm, so the mutation stays pending
			t.logger.Warn("gave up watching mutation",
				zap.String("id", m.ID),
				zap.Duration("timeout", t.cfg.Timeout))
			return
		}
		if t.finality != nil {
			t.finality.Record(context.Background(), time.Since(m.SubmittedAt).Seconds(),
				metric.WithAttributes(
					attribute.String("kind", string(m.Kind)),
					attribute.String("status", string(res.Status))))
		}
		if t.handle != nil {
			// the watch context may be done; give the handler its own deadline
			hctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			t.handle(hctx, res)
			cancel()
		}
	}()
}

// Wait polls until m is confirmed, reverted, or ctx ends
func (t *Tracker) Wait(ctx context.Context, m *Mutation) Result {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		res, done := t.check(ctx, m)
		if done {
			return res
		}

		select {
		case <-ctx.Done():
			return Result{Mutation: m, Status: StatusFailed, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

func (t *Tracker) check(ctx context.Context, m *Mutation) (Result, bool) {
	receipt, err := t.reader.TransactionReceipt(ctx, m.Hash())
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			t.logger.Debug("receipt lookup failed", zap.String("id", m.ID), zap.Error(err))
		}
		return Result{}, false
	}

	res := Result{
		Mutation:        m,
		BlockNumber:     receipt.BlockNumber.Uint64(),
		ContractAddress: receipt.ContractAddress,
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%w in block %d", ErrReverted, res.BlockNumber)
		return res, true
	}

	head, err := t.reader.BlockNumber(ctx)
	if err != nil {
		t.logger.Debug("head lookup failed", zap.String("id", m.ID), zap.Error(err))
		return Result{}, false
	}
	if head >= res.BlockNumber {
		res.Confirmations = head - res.BlockNumber + 1
	}
	if res.Confirmations < t.cfg.RequiredConfirmations {
		return Result{}, false
	}

	res.Status = StatusCompleted
	return res, true
}

// Stop cancels all watches and waits for them to return
func (t *Tracker) Stop() {
	t.cancel()
	t.wg.Wait()
}

package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/paychain/gateway-indexer/internal/chain"
	"github.com/paychain/gateway-indexer/internal/config"
	"github.com/paychain/gateway-indexer/internal/events"
	"github.com/paychain/gateway-indexer/internal/logger"
	"github.com/paychain/gateway-indexer/internal/metrics"
	"github.com/paychain/gateway-indexer/internal/processor"
)

// ErrSubscriptionLost marks a watcher whose live log subscription dropped.
// The watcher does not auto-reconnect; an explicit Start is required.
var ErrSubscriptionLost = errors.New("chain subscription lost")

// State is the lifecycle state of a watcher.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
	Failed
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of one chain watcher.
type Status struct {
	ChainID   uint64 `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Running   bool   `json:"running"`
	LastBlock uint64 `json:"last_block"`
	Error     string `json:"error,omitempty"`
}

// EventSink consumes decoded events. Satisfied by *processor.Processor.
type EventSink interface {
	Apply(ctx context.Context, receipts processor.ReceiptSource, ev events.Event) error
}

// CursorStore persists the per-chain backfill cursor.
type CursorStore interface {
	GetCursor(ctx context.Context, chainID uint64) (uint64, error)
	SaveCursor(ctx context.Context, chainID, lastBlock uint64) error
}

// Watcher observes one chain's gateway contract through two delivery paths:
// a live log subscription and a periodic bounded backfill. Both paths feed
// the same sink; the sink's idempotency makes their overlap harmless.
type Watcher struct {
	cfg     config.ChainConfig
	client  chain.Client
	sink    EventSink
	cursors CursorStore
	log     *logger.Logger

	mu      sync.Mutex
	state   State
	epoch   uint64 // bumped by Stop; fences starts that were in flight
	cursor  uint64
	lastErr error
	cancel  context.CancelFunc
	sub     ethereum.Subscription
	wg      sync.WaitGroup
}

// New creates a watcher for one configured chain.
func New(cfg config.ChainConfig, client chain.Client, sink EventSink, cursors CursorStore, log *logger.Logger) *Watcher {
	return &Watcher{
		cfg:     cfg,
		client:  client,
		sink:    sink,
		cursors: cursors,
		log:     log.WithComponent("watcher").WithChain(cfg.Name),
	}
}

// Start brings the watcher to Running: it anchors the cursor a bounded
// window behind the current head, opens the live subscription and launches
// the backfill ticker. Starting an already-running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state == Running || w.state == Starting {
		w.mu.Unlock()
		return nil
	}
	w.state = Starting
	w.lastErr = nil
	epoch := w.epoch
	w.mu.Unlock()

	height, err := w.client.CurrentHeight(ctx)
	if err != nil {
		w.fail(fmt.Errorf("failed to query chain height: %w", err), Stopped)
		return fmt.Errorf("failed to query chain height: %w", err)
	}

	cursor := uint64(0)
	if height > w.cfg.BackfillWindow {
		cursor = height - w.cfg.BackfillWindow
	}

	if err := w.cursors.SaveCursor(ctx, w.cfg.ChainID, cursor); err != nil {
		w.fail(fmt.Errorf("failed to persist cursor: %w", err), Stopped)
		return fmt.Errorf("failed to persist cursor: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	logCh := make(chan types.Log, 128)
	sub, err := w.client.Subscribe(runCtx, logCh)
	if err != nil {
		cancel()
		w.fail(fmt.Errorf("failed to subscribe: %w", err), Stopped)
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	w.mu.Lock()
	if w.state != Starting || w.epoch != epoch {
		// A Stop won the race while this start was talking to the chain.
		// The stop is the later operation; the run must not come up behind it.
		w.mu.Unlock()
		cancel()
		sub.Unsubscribe()
		w.log.Info("start interrupted by stop")
		return nil
	}
	w.cursor = cursor
	w.cancel = cancel
	w.sub = sub
	w.state = Running
	w.mu.Unlock()

	w.wg.Add(2)
	go w.subscriptionLoop(runCtx, sub, logCh)
	go w.backfillLoop(runCtx)

	metrics.WatcherRunningSet(w.cfg.Name, true)
	metrics.LastProcessedBlockSet(w.cfg.Name, cursor)
	w.log.Infof("watcher started - height: %d, cursor: %d, window: %d blocks",
		height, cursor, w.cfg.BackfillWindow)

	return nil
}

// Stop cancels the run and waits for both loops to exit. Idempotent.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.state == Stopped || w.state == Stopping {
		w.mu.Unlock()
		return nil
	}
	w.state = Stopping
	w.epoch++
	cancel := w.cancel
	sub := w.sub
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Unsubscribe()
	}
	w.wg.Wait()

	w.mu.Lock()
	w.state = Stopped
	w.mu.Unlock()

	metrics.WatcherRunningSet(w.cfg.Name, false)
	w.log.Info("watcher stopped")

	return nil
}

// Status returns a snapshot of the watcher.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := Status{
		ChainID:   w.cfg.ChainID,
		ChainName: w.cfg.Name,
		Running:   w.state == Running,
		LastBlock: w.cursor,
	}
	if w.lastErr != nil {
		status.Error = w.lastErr.Error()
	}

	return status
}

// ChainID returns the id of the watched chain.
func (w *Watcher) ChainID() uint64 {
	return w.cfg.ChainID
}

// fail records a terminal error and moves the watcher to the given state.
func (w *Watcher) fail(err error, state State) {
	w.mu.Lock()
	w.state = state
	w.lastErr = err
	cancel := w.cancel
	w.mu.Unlock()

	if state == Failed && cancel != nil {
		cancel()
	}

	metrics.WatcherRunningSet(w.cfg.Name, false)
}

// subscriptionLoop forwards live logs to the sink until the run ends or the
// subscription drops. A dropped subscription is fatal for this run.
func (w *Watcher) subscriptionLoop(ctx context.Context, sub ethereum.Subscription, logCh <-chan types.Log) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if ctx.Err() != nil || err == nil {
				// Unsubscribe during Stop also closes the error channel.
				return
			}
			metrics.SubscriptionDropInc(w.cfg.Name)
			w.log.Errorf("subscription lost: %v", err)
			w.fail(fmt.Errorf("%w: %v", ErrSubscriptionLost, err), Failed)
			return
		case logEntry := <-logCh:
			w.handleLog(ctx, logEntry)
		}
	}
}

// backfillLoop periodically sweeps [cursor+1, head] in bounded sub-ranges.
func (w *Watcher) backfillLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.backfillTick(ctx)
		}
	}
}

// backfillTick queries the range above the cursor in BatchSize sub-ranges.
// An RPC failure leaves the cursor at the last fully processed sub-range;
// the next tick retries from there. Per-log failures are logged and skipped.
func (w *Watcher) backfillTick(ctx context.Context) {
	start := time.Now()

	head, err := w.client.CurrentHeight(ctx)
	if err != nil {
		w.log.Warnf("backfill: failed to query chain height: %v", err)
		return
	}

	w.mu.Lock()
	from := w.cursor + 1
	w.mu.Unlock()

	if from > head {
		return
	}

	for lo := from; lo <= head; lo += w.cfg.BatchSize {
		hi := lo + w.cfg.BatchSize - 1
		if hi > head {
			hi = head
		}

		logs, err := w.client.FilterLogs(ctx, lo, hi)
		if err != nil {
			w.log.Warnf("backfill: failed to query logs [%d, %d]: %v", lo, hi, err)
			return
		}

		for _, logEntry := range logs {
			w.handleLog(ctx, logEntry)
		}

		w.advanceCursor(ctx, hi)
	}

	metrics.BackfillTickDuration(w.cfg.Name, time.Since(start))
}

// advanceCursor persists a new cursor position. Writes from a cancelled run
// are dropped so a stale in-flight tick can never move a cursor owned by a
// newly started instance; the cursor is monotonic within a run.
func (w *Watcher) advanceCursor(ctx context.Context, block uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if block <= w.cursor {
		return
	}

	w.cursor = block
	metrics.LastProcessedBlockSet(w.cfg.Name, block)

	if err := w.cursors.SaveCursor(ctx, w.cfg.ChainID, block); err != nil {
		w.log.Warnf("failed to persist cursor at block %d: %v", block, err)
	}
}

// handleLog decodes one log and hands it to the sink. Failures never abort
// the delivery path that observed the log.
func (w *Watcher) handleLog(ctx context.Context, logEntry types.Log) {
	ev, err := events.Decode(w.cfg.ChainID, logEntry)
	if err != nil {
		metrics.DecodeErrorInc(w.cfg.Name)
		w.log.Warnf("skipping undecodable log (tx %s): %v", logEntry.TxHash, err)
		return
	}

	metrics.EventDecodedInc(w.cfg.Name, ev.Name())

	if err := w.sink.Apply(ctx, w.client, ev); err != nil {
		w.log.Warnf("failed to process %s event (tx %s): %v", ev.Name(), logEntry.TxHash, err)
	}
}

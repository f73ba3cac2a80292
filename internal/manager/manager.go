package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/paychain/gateway-indexer/internal/logger"
	"github.com/paychain/gateway-indexer/internal/watcher"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownChain is returned when an operation targets a chain id no
// watcher is configured for.
var ErrUnknownChain = errors.New("unknown chain")

// settleDelay is the pause between stop and start during a restart, giving
// in-flight backfill ticks time to drain.
const settleDelay = time.Second

// ChainError is one chain's failure within a fan-out operation.
type ChainError struct {
	ChainID uint64
	Err     error
}

func (e ChainError) Error() string {
	return fmt.Sprintf("chain %d: %v", e.ChainID, e.Err)
}

func (e ChainError) Unwrap() error { return e.Err }

// ChainErrors aggregates per-chain failures. A fan-out succeeds for the
// chains not listed.
type ChainErrors []ChainError

func (e ChainErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, ce := range e {
		msgs = append(msgs, ce.Error())
	}
	return strings.Join(msgs, "; ")
}

// Manager owns one watcher per configured chain and fans lifecycle
// operations out to them. It is constructed once in main and injected
// wherever control is needed; there is no global instance.
//
// The context given to New bounds every watcher run the manager starts.
// Control operations arrive from short-lived callers (the API, a CLI
// command); the watchers they start must outlive those callers, so run
// lifetimes are never tied to a caller's context.
type Manager struct {
	runCtx   context.Context
	mu       sync.Mutex
	watchers map[uint64]*watcher.Watcher
	log      *logger.Logger
}

// New creates a manager over the given watchers. ctx is the process-lifetime
// context; cancelling it ends every running watcher.
func New(ctx context.Context, watchers []*watcher.Watcher, log *logger.Logger) *Manager {
	byChain := make(map[uint64]*watcher.Watcher, len(watchers))
	for _, w := range watchers {
		byChain[w.ChainID()] = w
	}

	return &Manager{
		runCtx:   ctx,
		watchers: byChain,
		log:      log.WithComponent("manager"),
	}
}

// StartAll starts every watcher concurrently. Per-chain failures are
// collected into a ChainErrors aggregate; one chain failing to start never
// prevents the others from starting.
func (m *Manager) StartAll() error {
	return m.fanOut(func(w *watcher.Watcher) error {
		return w.Start(m.runCtx)
	})
}

// StopAll stops every watcher concurrently.
func (m *Manager) StopAll() error {
	return m.fanOut(func(w *watcher.Watcher) error {
		return w.Stop()
	})
}

// RestartAll stops everything, waits a settle delay and starts again.
func (m *Manager) RestartAll() error {
	if err := m.StopAll(); err != nil {
		return err
	}

	select {
	case <-time.After(settleDelay):
	case <-m.runCtx.Done():
		return m.runCtx.Err()
	}

	return m.StartAll()
}

// StartIndexer starts the watcher for one chain.
func (m *Manager) StartIndexer(chainID uint64) error {
	w, err := m.watcher(chainID)
	if err != nil {
		return err
	}
	return w.Start(m.runCtx)
}

// StopIndexer stops the watcher for one chain.
func (m *Manager) StopIndexer(chainID uint64) error {
	w, err := m.watcher(chainID)
	if err != nil {
		return err
	}
	return w.Stop()
}

// Status returns a snapshot of every watcher, sorted by chain id.
func (m *Manager) Status() []watcher.Status {
	m.mu.Lock()
	watchers := make([]*watcher.Watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.mu.Unlock()

	statuses := make([]watcher.Status, 0, len(watchers))
	for _, w := range watchers {
		statuses = append(statuses, w.Status())
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].ChainID < statuses[j].ChainID
	})

	return statuses
}

func (m *Manager) watcher(chainID uint64) (*watcher.Watcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.watchers[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	return w, nil
}

// fanOut runs op against every watcher concurrently and collects failures.
func (m *Manager) fanOut(op func(*watcher.Watcher) error) error {
	m.mu.Lock()
	watchers := make([]*watcher.Watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.mu.Unlock()

	var (
		errMu  sync.Mutex
		failed ChainErrors
	)

	var g errgroup.Group
	for _, w := range watchers {
		g.Go(func() error {
			if err := op(w); err != nil {
				errMu.Lock()
				failed = append(failed, ChainError{ChainID: w.ChainID(), Err: err})
				errMu.Unlock()
				m.log.Errorf("chain %d operation failed: %v", w.ChainID(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == 0 {
		return nil
	}

	sort.Slice(failed, func(i, j int) bool { return failed[i].ChainID < failed[j].ChainID })
	return failed
}

package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	icommon "github.com/paychain/gateway-indexer/internal/common"
	"github.com/paychain/gateway-indexer/internal/config"
	"github.com/paychain/gateway-indexer/internal/events"
	"github.com/paychain/gateway-indexer/internal/logger"
	"github.com/paychain/gateway-indexer/internal/processor"
	"github.com/paychain/gateway-indexer/internal/watcher"
	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	errCh chan error
	once  sync.Once
}

func (s *fakeSub) Err() <-chan error { return s.errCh }
func (s *fakeSub) Unsubscribe()      { s.once.Do(func() { close(s.errCh) }) }

type fakeClient struct {
	heightErr error
}

func (c *fakeClient) CurrentHeight(context.Context) (uint64, error) {
	if c.heightErr != nil {
		return 0, c.heightErr
	}
	return 500, nil
}

func (c *fakeClient) FilterLogs(context.Context, uint64, uint64) ([]types.Log, error) {
	return nil, nil
}

func (c *fakeClient) Subscribe(context.Context, chan<- types.Log) (ethereum.Subscription, error) {
	return &fakeSub{errCh: make(chan error, 1)}, nil
}

func (c *fakeClient) Receipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, nil
}

func (c *fakeClient) Close() {}

type nopSink struct{}

func (nopSink) Apply(context.Context, processor.ReceiptSource, events.Event) error { return nil }

type nopCursors struct{}

func (nopCursors) GetCursor(context.Context, uint64) (uint64, error) { return 0, nil }
func (nopCursors) SaveCursor(context.Context, uint64, uint64) error  { return nil }

func newTestWatcher(chainID uint64, name string, client *fakeClient) *watcher.Watcher {
	cfg := config.ChainConfig{
		ChainID:         chainID,
		Name:            name,
		RPCURL:          "ws://localhost:8546",
		ContractAddress: "0x00000000000000000000000000000000c0ffee00",
		BackfillWindow:  100,
		PollInterval:    icommon.NewDuration(time.Hour), // never ticks during tests
		BatchSize:       10,
	}
	return watcher.New(cfg, client, nopSink{}, nopCursors{}, logger.NewNopLogger())
}

func newTestManager() *Manager {
	return New(context.Background(), []*watcher.Watcher{
		newTestWatcher(9001, "push-chain", &fakeClient{}),
		newTestWatcher(1, "ethereum", &fakeClient{}),
	}, logger.NewNopLogger())
}

func TestManagerStartStopAll(t *testing.T) {
	m := newTestManager()

	require.NoError(t, m.StartAll())
	for _, s := range m.Status() {
		require.True(t, s.Running, "chain %d should be running", s.ChainID)
	}

	require.NoError(t, m.StopAll())
	for _, s := range m.Status() {
		require.False(t, s.Running, "chain %d should be stopped", s.ChainID)
	}
}

func TestManagerStatusSorted(t *testing.T) {
	m := newTestManager()

	statuses := m.Status()
	require.Len(t, statuses, 2)
	require.Equal(t, uint64(1), statuses[0].ChainID)
	require.Equal(t, uint64(9001), statuses[1].ChainID)
	require.Equal(t, "ethereum", statuses[0].ChainName)
}

func TestManagerUnknownChain(t *testing.T) {
	m := newTestManager()

	err := m.StartIndexer(999999)
	require.ErrorIs(t, err, ErrUnknownChain)

	err = m.StopIndexer(999999)
	require.ErrorIs(t, err, ErrUnknownChain)
}

func TestManagerSingleChain(t *testing.T) {
	m := newTestManager()

	require.NoError(t, m.StartIndexer(9001))

	statuses := m.Status()
	require.False(t, statuses[0].Running) // ethereum untouched
	require.True(t, statuses[1].Running)

	require.NoError(t, m.StopIndexer(9001))
	require.False(t, m.Status()[1].Running)
}

func TestManagerPartialFailure(t *testing.T) {
	broken := &fakeClient{heightErr: errors.New("connection refused")}
	m := New(context.Background(), []*watcher.Watcher{
		newTestWatcher(9001, "push-chain", &fakeClient{}),
		newTestWatcher(1, "ethereum", broken),
	}, logger.NewNopLogger())
	defer m.StopAll()

	err := m.StartAll()
	require.Error(t, err)

	var chainErrs ChainErrors
	require.ErrorAs(t, err, &chainErrs)
	require.Len(t, chainErrs, 1)
	require.Equal(t, uint64(1), chainErrs[0].ChainID)

	// The healthy chain still started.
	statuses := m.Status()
	require.False(t, statuses[0].Running)
	require.True(t, statuses[1].Running)
}

func TestManagerRestartAll(t *testing.T) {
	m := newTestManager()
	defer m.StopAll()

	require.NoError(t, m.StartAll())
	require.NoError(t, m.RestartAll())

	for _, s := range m.Status() {
		require.True(t, s.Running)
	}
}

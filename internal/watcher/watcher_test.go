package watcher

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	icommon "github.com/paychain/gateway-indexer/internal/common"
	"github.com/paychain/gateway-indexer/internal/config"
	"github.com/paychain/gateway-indexer/internal/events"
	"github.com/paychain/gateway-indexer/internal/logger"
	"github.com/paychain/gateway-indexer/internal/processor"
	"github.com/stretchr/testify/require"
)

type mockSub struct {
	errCh chan error
	once  sync.Once
}

func newMockSub() *mockSub {
	return &mockSub{errCh: make(chan error, 1)}
}

func (s *mockSub) Err() <-chan error { return s.errCh }
func (s *mockSub) Unsubscribe()      { s.once.Do(func() { close(s.errCh) }) }

type mockClient struct {
	mu         sync.Mutex
	height     uint64
	heightGate chan struct{} // when set, CurrentHeight blocks until closed
	logs       []types.Log
	filterErr  func(from, to uint64) error
	logCh      chan<- types.Log
	sub        *mockSub
}

func (c *mockClient) CurrentHeight(context.Context) (uint64, error) {
	if c.heightGate != nil {
		<-c.heightGate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height, nil
}

func (c *mockClient) FilterLogs(_ context.Context, from, to uint64) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.filterErr != nil {
		if err := c.filterErr(from, to); err != nil {
			return nil, err
		}
	}

	var out []types.Log
	for _, l := range c.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *mockClient) Subscribe(_ context.Context, ch chan<- types.Log) (ethereum.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logCh = ch
	c.sub = newMockSub()
	return c.sub, nil
}

func (c *mockClient) Receipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, nil
}

func (c *mockClient) Close() {}

func (c *mockClient) push(l types.Log) {
	c.mu.Lock()
	ch := c.logCh
	c.mu.Unlock()
	ch <- l
}

func (c *mockClient) dropSubscription(err error) {
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	sub.errCh <- err
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Apply(_ context.Context, _ processor.ReceiptSource, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type memCursors struct {
	mu      sync.Mutex
	cursors map[uint64]uint64
}

func newMemCursors() *memCursors {
	return &memCursors{cursors: make(map[uint64]uint64)}
}

func (m *memCursors) GetCursor(_ context.Context, chainID uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[chainID], nil
}

func (m *memCursors) SaveCursor(_ context.Context, chainID, lastBlock uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[chainID] = lastBlock
	return nil
}

func (m *memCursors) get(chainID uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[chainID]
}

func testChainConfig() config.ChainConfig {
	return config.ChainConfig{
		ChainID:         9001,
		Name:            "push-chain",
		RPCURL:          "ws://localhost:8546",
		ContractAddress: "0x00000000000000000000000000000000c0ffee00",
		BackfillWindow:  100,
		PollInterval:    icommon.NewDuration(20 * time.Millisecond),
		BatchSize:       10,
	}
}

func paymentLog(t *testing.T, blockNum uint64, txHash string) types.Log {
	t.Helper()

	uint256Type, err := abi.NewType("uint256", "", nil)
	require.NoError(t, err)
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)

	args := abi.Arguments{{Type: uint256Type}, {Type: stringType}}
	data, err := args.Pack(big.NewInt(100), "USDC")
	require.NoError(t, err)

	return types.Log{
		Topics: []common.Hash{
			events.TopicPaymentReceived,
			events.IDTopic("inv-1"),
			common.BytesToHash(common.HexToAddress("0x1111").Bytes()),
		},
		Data:        data,
		BlockNumber: blockNum,
		TxHash:      common.HexToHash(txHash),
	}
}

func TestWatcherStartAnchorsCursor(t *testing.T) {
	client := &mockClient{height: 150}
	cursors := newMemCursors()
	w := New(testChainConfig(), client, &recordingSink{}, cursors, logger.NewNopLogger())

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Equal(t, uint64(50), cursors.get(9001))

	status := w.Status()
	require.True(t, status.Running)
	require.Equal(t, uint64(50), status.LastBlock)
	require.Equal(t, "push-chain", status.ChainName)
}

func TestWatcherStartNearGenesis(t *testing.T) {
	client := &mockClient{height: 30} // below the backfill window
	cursors := newMemCursors()
	w := New(testChainConfig(), client, &recordingSink{}, cursors, logger.NewNopLogger())

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Equal(t, uint64(0), cursors.get(9001))
}

func TestWatcherBackfillDelivers(t *testing.T) {
	client := &mockClient{
		height: 150,
		logs: []types.Log{
			paymentLog(t, 60, "0xa1"),
			paymentLog(t, 125, "0xa2"),
		},
	}
	cursors := newMemCursors()
	sink := &recordingSink{}
	w := New(testChainConfig(), client, sink, cursors, logger.NewNopLogger())

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Eventually(t, func() bool { return sink.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return cursors.get(9001) == 150 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherSubscriptionDelivers(t *testing.T) {
	client := &mockClient{height: 150}
	sink := &recordingSink{}
	w := New(testChainConfig(), client, sink, newMemCursors(), logger.NewNopLogger())

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	client.push(paymentLog(t, 151, "0xb1"))

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherSubscriptionLostMarksFailed(t *testing.T) {
	client := &mockClient{height: 150}
	w := New(testChainConfig(), client, &recordingSink{}, newMemCursors(), logger.NewNopLogger())

	require.NoError(t, w.Start(context.Background()))

	client.dropSubscription(errors.New("connection reset"))

	require.Eventually(t, func() bool {
		status := w.Status()
		return !status.Running && status.Error != ""
	}, 2*time.Second, 10*time.Millisecond)

	require.Contains(t, w.Status().Error, "subscription lost")
	require.NoError(t, w.Stop())
}

func TestWatcherFailedFilterLeavesCursor(t *testing.T) {
	client := &mockClient{height: 150}
	// First sub-range succeeds, everything above block 60 fails.
	client.filterErr = func(from, to uint64) error {
		if from > 60 {
			return errors.New("rpc unavailable")
		}
		return nil
	}
	cursors := newMemCursors()
	w := New(testChainConfig(), client, &recordingSink{}, cursors, logger.NewNopLogger())

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// Cursor advances to the last fully processed sub-range and stays there.
	require.Eventually(t, func() bool { return cursors.get(9001) == 60 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, uint64(60), cursors.get(9001))
}

func TestWatcherStopIdempotent(t *testing.T) {
	client := &mockClient{height: 150}
	w := New(testChainConfig(), client, &recordingSink{}, newMemCursors(), logger.NewNopLogger())

	require.NoError(t, w.Stop()) // never started

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	require.False(t, w.Status().Running)
}

func TestWatcherStopDuringStartWins(t *testing.T) {
	client := &mockClient{height: 150, heightGate: make(chan struct{})}
	w := New(testChainConfig(), client, &recordingSink{}, newMemCursors(), logger.NewNopLogger())

	startDone := make(chan error, 1)
	go func() { startDone <- w.Start(context.Background()) }()

	// Wait until the start is parked on the chain height call.
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.state == Starting
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, w.Stop())
	close(client.heightGate)
	require.NoError(t, <-startDone)

	// The stop came later; the interrupted start must not resurrect the run.
	require.False(t, w.Status().Running)
	time.Sleep(50 * time.Millisecond)
	require.False(t, w.Status().Running)
}

func TestWatcherRestartResetsCursor(t *testing.T) {
	client := &mockClient{height: 150}
	cursors := newMemCursors()
	w := New(testChainConfig(), client, &recordingSink{}, cursors, logger.NewNopLogger())

	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return cursors.get(9001) == 150 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())

	client.mu.Lock()
	client.height = 400
	client.mu.Unlock()

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Equal(t, uint64(300), w.Status().LastBlock)
}

func TestAdvanceCursorDropsStaleWrites(t *testing.T) {
	client := &mockClient{height: 150}
	cursors := newMemCursors()
	w := New(testChainConfig(), client, &recordingSink{}, cursors, logger.NewNopLogger())

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// A tick whose run context was cancelled must not move the cursor.
	staleCtx, cancel := context.WithCancel(context.Background())
	cancel()
	w.advanceCursor(staleCtx, 9999)

	require.NotEqual(t, uint64(9999), w.Status().LastBlock)
}

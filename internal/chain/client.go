package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/paychain/gateway-indexer/internal/config"
	"github.com/paychain/gateway-indexer/internal/events"
)

// Compile-time check to ensure EthClient implements the Client interface.
var _ Client = (*EthClient)(nil)

// Client is the chain access surface a watcher needs. Implementations must be
// safe for concurrent use.
type Client interface {
	// CurrentHeight returns the latest block number.
	CurrentHeight(ctx context.Context) (uint64, error)
	// FilterLogs returns the gateway contract's logs in [fromBlock, toBlock],
	// both bounds inclusive.
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error)
	// Subscribe opens a live log subscription for the gateway contract and
	// delivers logs on ch until the subscription fails or ctx is cancelled.
	Subscribe(ctx context.Context, ch chan<- types.Log) (ethereum.Subscription, error)
	// Receipt returns the receipt for a transaction, or (nil, nil) if the
	// node does not know the transaction.
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	// Close releases the underlying connection.
	Close()
}

// EthClient accesses one chain's gateway contract over an Ethereum JSON-RPC
// endpoint. All queries are pre-filtered to the contract address and the
// gateway event signatures, so watchers only ever see relevant logs.
type EthClient struct {
	eth       *ethclient.Client
	contract  common.Address
	topics    [][]common.Hash
	chainName string
	retry     *config.RetryConfig
}

// Dial connects to a chain's RPC endpoint described by cfg.
func Dial(ctx context.Context, cfg *config.ChainConfig) (*EthClient, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, err
	}

	return &EthClient{
		eth:       ethclient.NewClient(rpcClient),
		contract:  cfg.Contract(),
		topics:    [][]common.Hash{events.AllTopics()},
		chainName: cfg.Name,
		retry:     cfg.Retry,
	}, nil
}

// Close closes the RPC client connection.
func (c *EthClient) Close() {
	c.eth.Close()
}

// CurrentHeight returns the latest block number.
func (c *EthClient) CurrentHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := retryWithBackoff(ctx, c.retry, c.chainName, "block_number", func() error {
		var err error
		height, err = c.eth.BlockNumber(ctx)
		return err
	})

	return height, err
}

// FilterLogs returns gateway contract logs in [fromBlock, toBlock].
func (c *EthClient) FilterLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.contract},
		Topics:    c.topics,
	}

	var logs []types.Log
	err := retryWithBackoff(ctx, c.retry, c.chainName, "get_logs", func() error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, query)
		return err
	})

	return logs, err
}

// Subscribe opens a live log subscription for the gateway contract.
// Subscriptions are not retried; a failed subscription surfaces to the
// watcher, which owns reconnect policy.
func (c *EthClient) Subscribe(ctx context.Context, ch chan<- types.Log) (ethereum.Subscription, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.contract},
		Topics:    c.topics,
	}

	return c.eth.SubscribeFilterLogs(ctx, query, ch)
}

// Receipt returns the receipt for a transaction, or (nil, nil) if unknown.
func (c *EthClient) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := retryWithBackoff(ctx, c.retry, c.chainName, "get_receipt", func() error {
		var err error
		receipt, err = c.eth.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			receipt = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return receipt, nil
}

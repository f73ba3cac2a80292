package store

import (
	"github.com/ethereum/go-ethereum/common"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceExpired   InvoiceStatus = "expired"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// PaymentStatus is the lifecycle state of a payment record.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxTypePayment    TransactionType = "payment"
	TxTypeWithdrawal TransactionType = "withdrawal"
	TxTypeFee        TransactionType = "fee"
)

// Invoice is a request for payment of a fixed amount, owned by an application.
// Invoices are created by the API layer; the indexing core only performs the
// pending -> paid transition.
type Invoice struct {
	ID        string        `meddler:"id"`
	AppID     string        `meddler:"app_id"`
	Amount    string        `meddler:"amount"` // decimal string
	Currency  string        `meddler:"currency"`
	Status    InvoiceStatus `meddler:"status"`
	PaidAt    int64         `meddler:"paid_at"` // unix seconds, 0 = unpaid
	CreatedAt int64         `meddler:"created_at"`
}

// Payment is a confirmed on-chain settlement of an invoice. The pair
// (ChainID, TxHash) is unique; the database constraint is the final
// deduplication arbiter.
type Payment struct {
	ID          string         `meddler:"id"`
	InvoiceID   string         `meddler:"invoice_id"`
	ChainID     uint64         `meddler:"chain_id"`
	TxHash      common.Hash    `meddler:"tx_hash,hash"`
	Payer       common.Address `meddler:"payer,address"`
	Amount      string         `meddler:"amount"` // decimal string
	Currency    string         `meddler:"currency"`
	Status      PaymentStatus  `meddler:"status"`
	BlockNumber uint64         `meddler:"block_number"`
	BlockHash   common.Hash    `meddler:"block_hash,hash"`
	GasUsed     uint64         `meddler:"gas_used"`
	GasFee      string         `meddler:"gas_fee"` // decimal string, native units
	RecordedAt  int64          `meddler:"recorded_at"`
	ConfirmedAt int64          `meddler:"confirmed_at"`
}

// Transaction is a chain-agnostic ledger entry for any on-chain fund movement
// relevant to an application. The triple (ChainID, TxHash, Type) is unique:
// one hash may carry a payment and a fee, never two entries of the same type.
type Transaction struct {
	ID          string          `meddler:"id"`
	AppID       string          `meddler:"app_id"`
	Type        TransactionType `meddler:"tx_type"`
	ChainID     uint64          `meddler:"chain_id"`
	TxHash      common.Hash     `meddler:"tx_hash,hash"`
	Amount      string          `meddler:"amount"` // decimal string
	Currency    string          `meddler:"currency"`
	Fee         string          `meddler:"fee"` // decimal string
	Status      string          `meddler:"status"`
	BlockNumber uint64          `meddler:"block_number"`
	From        common.Address  `meddler:"from_address,address"`
	To          common.Address  `meddler:"to_address,address"`
	Metadata    string          `meddler:"metadata"` // free-form JSON
	CreatedAt   int64           `meddler:"created_at"`
}

// Cursor is the last block height fully processed by a chain watcher's
// backfill loop.
type Cursor struct {
	ChainID   uint64 `meddler:"chain_id"`
	LastBlock uint64 `meddler:"last_block"`
	UpdatedAt int64  `meddler:"updated_at"`
}

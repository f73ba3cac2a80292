package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Canonical gateway contract event signatures.
const (
	SigPaymentReceived             = "PaymentReceived(bytes32,address,uint256,string)"
	SigWithdrawalExecuted          = "WithdrawalExecuted(bytes32,address,uint256,string)"
	SigFeeCollected                = "FeeCollected(bytes32,uint256,uint256,string)"
	SigCrossChainPaymentInitiated  = "CrossChainPaymentInitiated(bytes32,address,uint256,string,uint64)"
	SigCrossChainPaymentCompleted  = "CrossChainPaymentCompleted(bytes32,uint64)"
)

// Topic-0 hashes for the gateway events.
var (
	TopicPaymentReceived            = crypto.Keccak256Hash([]byte(SigPaymentReceived))
	TopicWithdrawalExecuted         = crypto.Keccak256Hash([]byte(SigWithdrawalExecuted))
	TopicFeeCollected               = crypto.Keccak256Hash([]byte(SigFeeCollected))
	TopicCrossChainPaymentInitiated = crypto.Keccak256Hash([]byte(SigCrossChainPaymentInitiated))
	TopicCrossChainPaymentCompleted = crypto.Keccak256Hash([]byte(SigCrossChainPaymentCompleted))
)

// AllTopics returns the topic-0 set for every gateway event, in the shape a
// log filter expects.
func AllTopics() []common.Hash {
	return []common.Hash{
		TopicPaymentReceived,
		TopicWithdrawalExecuted,
		TopicFeeCollected,
		TopicCrossChainPaymentInitiated,
		TopicCrossChainPaymentCompleted,
	}
}

// Base carries the fields common to every observed event. ChainID is the
// chain the log was observed on, never a value from the event payload.
// Contract is the emitting gateway contract address.
type Base struct {
	ChainID     uint64
	Contract    common.Address
	TxHash      common.Hash
	BlockNumber uint64
	BlockHash   common.Hash
}

// Meta implements the Event interface for every embedding type.
func (b Base) Meta() Base { return b }

// Event is one decoded gateway contract event.
type Event interface {
	Name() string
	Meta() Base
}

// PaymentReceived is a direct settlement of an invoice on the observed chain.
// Amount is in chain-native integer units.
type PaymentReceived struct {
	Base
	InvoiceID string
	Payer     common.Address
	Amount    *big.Int
	Currency  string
}

func (PaymentReceived) Name() string { return "PaymentReceived" }

// WithdrawalExecuted is a payout of application funds to a recipient address.
type WithdrawalExecuted struct {
	Base
	AppID     string
	Recipient common.Address
	Amount    *big.Int
	Currency  string
}

func (WithdrawalExecuted) Name() string { return "WithdrawalExecuted" }

// FeeCollected is a platform/network fee charge against an application.
type FeeCollected struct {
	Base
	AppID       string
	PlatformFee *big.Int
	NetworkFee  *big.Int
	Currency    string
}

func (FeeCollected) Name() string { return "FeeCollected" }

// CrossChainPaymentInitiated marks a payment that left its origin chain and
// settles elsewhere. Informational: it never confirms the payment.
type CrossChainPaymentInitiated struct {
	Base
	InvoiceID     string
	Payer         common.Address
	Amount        *big.Int
	Currency      string
	TargetChainID uint64
}

func (CrossChainPaymentInitiated) Name() string { return "CrossChainPaymentInitiated" }

// CrossChainPaymentCompleted confirms on the settlement chain that a
// cross-chain payment initiated on SourceChainID has settled the invoice.
type CrossChainPaymentCompleted struct {
	Base
	InvoiceID     string
	SourceChainID uint64
}

func (CrossChainPaymentCompleted) Name() string { return "CrossChainPaymentCompleted" }

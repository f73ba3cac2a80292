package events

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DecodeError is returned when a log cannot be turned into a gateway event:
// unknown topic, missing indexed topics, or malformed data payload.
type DecodeError struct {
	ChainID uint64
	TxHash  common.Hash
	Reason  string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to decode log (chain %d, tx %s): %s: %v", e.ChainID, e.TxHash, e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to decode log (chain %d, tx %s): %s", e.ChainID, e.TxHash, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Unindexed argument layouts per event, in emission order.
var (
	typeUint256 = mustType("uint256")
	typeUint64  = mustType("uint64")
	typeString  = mustType("string")

	paymentReceivedArgs = abi.Arguments{
		{Name: "amount", Type: typeUint256},
		{Name: "currency", Type: typeString},
	}

	withdrawalExecutedArgs = abi.Arguments{
		{Name: "amount", Type: typeUint256},
		{Name: "currency", Type: typeString},
	}

	feeCollectedArgs = abi.Arguments{
		{Name: "platformFee", Type: typeUint256},
		{Name: "networkFee", Type: typeUint256},
		{Name: "currency", Type: typeString},
	}

	crossChainInitiatedArgs = abi.Arguments{
		{Name: "amount", Type: typeUint256},
		{Name: "currency", Type: typeString},
		{Name: "targetChainId", Type: typeUint64},
	}

	crossChainCompletedArgs = abi.Arguments{
		{Name: "sourceChainId", Type: typeUint64},
	}
)

// Decode turns one raw log observed on chainID into its typed gateway event.
func Decode(chainID uint64, log types.Log) (Event, error) {
	if len(log.Topics) == 0 {
		return nil, &DecodeError{ChainID: chainID, TxHash: log.TxHash, Reason: "log has no topics"}
	}

	base := Base{
		ChainID:     chainID,
		Contract:    log.Address,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
	}

	switch log.Topics[0] {
	case TopicPaymentReceived:
		return decodePaymentReceived(base, log)
	case TopicWithdrawalExecuted:
		return decodeWithdrawalExecuted(base, log)
	case TopicFeeCollected:
		return decodeFeeCollected(base, log)
	case TopicCrossChainPaymentInitiated:
		return decodeCrossChainInitiated(base, log)
	case TopicCrossChainPaymentCompleted:
		return decodeCrossChainCompleted(base, log)
	default:
		return nil, &DecodeError{
			ChainID: chainID,
			TxHash:  log.TxHash,
			Reason:  fmt.Sprintf("unknown event topic %s", log.Topics[0]),
		}
	}
}

func decodePaymentReceived(base Base, log types.Log) (Event, error) {
	if len(log.Topics) < 3 {
		return nil, &DecodeError{ChainID: base.ChainID, TxHash: base.TxHash, Reason: "PaymentReceived: missing indexed topics"}
	}

	values, err := paymentReceivedArgs.Unpack(log.Data)
	if err != nil {
		return nil, &DecodeError{ChainID: base.ChainID, TxHash: base.TxHash, Reason: "PaymentReceived: malformed data", Err: err}
	}

	return &PaymentReceived{
		Base:      base,
		InvoiceID: topicToID(log.Topics[1]),
		Payer:     topicToAddress(log.Topics[2]),
		Amount:    values[0].(*big.Int),
		Currency:  values[1].(string),
	}, nil
}

func decodeWithdrawalExecuted(base Base, log types.Log) (Event, error) {
	if len(log.Topics) < 3 {
		return nil, &DecodeError{ChainID: base.ChainID, TxHash: base.TxHash, Reason: "WithdrawalExecuted: missing indexed topics"}
	}

	values, err := withdrawalExecutedArgs.Unpack(log.Data)
	if err != nil {
		return nil, &DecodeError{ChainID: base.ChainID, TxHash: base.TxHash, Reason: "WithdrawalExecuted: malformed data", Err: err}
	}

	return &WithdrawalExecuted{
		Base:      base,
		AppID:     topicToID(log.Topics[1]),
		Recipient: topicToAddress(log.Topics[2]),
		Amount:    values[0].(*big.Int),
		Currency:  values[1].(string),
	}, nil
}

func decodeFeeCollected(base Base, log types.Log) (Event, error) {
	if len(log.Topics) < 2 {
		return nil, &DecodeError{ChainID: base.ChainID, TxHash: base.TxHash, Reason: "FeeCollected: missing indexed topics"}
	}

	values, err := feeCollectedArgs.Unpack(log.Data)
	if err != nil {
		return nil, &DecodeError{ChainID: base.ChainID, TxHash: base.TxHash, Reason: "FeeCollected: malformed data", Err: err}
	}

	return &FeeCollected{
		Base:        base,
		AppID:       topicToID(log.Topics[1]),
		PlatformFee: values[0].(*big.Int),
		NetworkFee:  values[1].(*big.Int),
		Currency:    values[2].(string),
	}, nil
}

func decodeCrossChainInitiated(base Base, log types.Log) (Event, error) {
	if len(log.Topics) < 3 {
		return nil, &DecodeError{ChainID: base.ChainID, TxHash: base.TxHash, Reason: "CrossChainPaymentInitiated: missing indexed topics"}
	}

	values, err := crossChainInitiatedArgs.Unpack(log.Data)
	if err != nil {
		return nil, &DecodeError{ChainID: base.ChainID, TxHash: base.TxHash, Reason: "CrossChainPaymentInitiated: malformed data", Err: err}
	}

	return &CrossChainPaymentInitiated{
		Base:          base,
		InvoiceID:     topicToID(log.Topics[1]),
		Payer:         topicToAddress(log.Topics[2]),
		Amount:        values[0].(*big.Int),
		Currency:      values[1].(string),
		TargetChainID: values[2].(uint64),
	}, nil
}

func decodeCrossChainCompleted(base Base, log types.Log) (Event, error) {
	if len(log.Topics) < 2 {
		return nil, &DecodeError{ChainID: base.ChainID, TxHash: base.TxHash, Reason: "CrossChainPaymentCompleted: missing indexed topics"}
	}

	values, err := crossChainCompletedArgs.Unpack(log.Data)
	if err != nil {
		return nil, &DecodeError{ChainID: base.ChainID, TxHash: base.TxHash, Reason: "CrossChainPaymentCompleted: malformed data", Err: err}
	}

	return &CrossChainPaymentCompleted{
		Base:          base,
		InvoiceID:     topicToID(log.Topics[1]),
		SourceChainID: values[0].(uint64),
	}, nil
}

// topicToID extracts an identifier stored as a right-padded UTF-8 bytes32
// topic, e.g. an invoice or application id.
func topicToID(topic common.Hash) string {
	return string(bytes.TrimRight(topic.Bytes(), "\x00"))
}

// topicToAddress extracts an address from an indexed topic (last 20 bytes).
func topicToAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes())
}

// IDTopic packs an identifier into a right-padded bytes32 topic, the inverse
// of topicToID. Identifiers longer than 32 bytes are truncated.
func IDTopic(id string) common.Hash {
	var topic common.Hash
	copy(topic[:], id)
	return topic
}

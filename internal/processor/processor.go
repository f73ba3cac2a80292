package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/paychain/gateway-indexer/internal/config"
	"github.com/paychain/gateway-indexer/internal/events"
	"github.com/paychain/gateway-indexer/internal/logger"
	"github.com/paychain/gateway-indexer/internal/metrics"
	"github.com/paychain/gateway-indexer/internal/store"
	"github.com/shopspring/decimal"
)

// ErrInvoiceNotFound is returned when a payment event references an invoice
// the store does not know. The event is dropped; the anomaly is reported via
// metrics and logs, never a crash.
var ErrInvoiceNotFound = errors.New("invoice not found")

// ReceiptSource provides best-effort receipt lookups for gas enrichment.
// A nil receipt with nil error means the node does not know the transaction.
type ReceiptSource interface {
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Processor applies decoded gateway events to the store. It is the sole
// writer of payments and ledger entries and is safe under arbitrary
// interleaving of subscription and backfill deliveries: the store's
// uniqueness constraints are the final deduplication arbiter, and a conflict
// on insert is treated as already-processed success.
type Processor struct {
	store      *store.Store
	cfg        config.ProcessorConfig
	chainNames map[uint64]string
	log        *logger.Logger
}

// New creates a Processor. chainNames maps chain ids to human-readable names
// for logging and metrics labels.
func New(st *store.Store, cfg config.ProcessorConfig, chainNames map[uint64]string, log *logger.Logger) *Processor {
	return &Processor{
		store:      st,
		cfg:        cfg,
		chainNames: chainNames,
		log:        log.WithComponent("processor"),
	}
}

func (p *Processor) chainLabel(chainID uint64) string {
	if name, ok := p.chainNames[chainID]; ok {
		return name
	}
	return strconv.FormatUint(chainID, 10)
}

// toDecimal converts a chain-native integer amount into a decimal amount
// using the currency's configured token decimals.
func (p *Processor) toDecimal(raw *big.Int, currency string) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -int32(p.cfg.DecimalsFor(currency)))
}

// Apply processes one decoded event. receipts may be nil, in which case gas
// enrichment is skipped. Apply is idempotent per event identity.
func (p *Processor) Apply(ctx context.Context, receipts ReceiptSource, ev events.Event) error {
	chain := p.chainLabel(ev.Meta().ChainID)

	var err error
	switch e := ev.(type) {
	case *events.PaymentReceived:
		amount := p.toDecimal(e.Amount, e.Currency)
		err = p.applyPayment(ctx, receipts, e.Base, e.InvoiceID, e.Payer, amount, e.Currency, nil)
	case *events.CrossChainPaymentCompleted:
		err = p.applyCrossChainCompleted(ctx, receipts, e)
	case *events.WithdrawalExecuted:
		err = p.applyWithdrawal(ctx, e)
	case *events.FeeCollected:
		err = p.applyFee(ctx, e)
	case *events.CrossChainPaymentInitiated:
		err = p.applyCrossChainInitiated(ctx, e)
	default:
		return fmt.Errorf("unhandled event type %T", ev)
	}

	if err != nil {
		return err
	}

	metrics.EventProcessedInc(chain, ev.Name())
	return nil
}

// paymentMeta is extra context attached to the payment ledger entry.
type paymentMeta struct {
	CrossChain    bool   `json:"cross_chain,omitempty"`
	SourceChainID uint64 `json:"source_chain_id,omitempty"`
}

// applyPayment is the payment confirmation path shared by PaymentReceived
// and CrossChainPaymentCompleted.
func (p *Processor) applyPayment(
	ctx context.Context,
	receipts ReceiptSource,
	base events.Base,
	invoiceID string,
	payer common.Address,
	amount decimal.Decimal,
	currency string,
	meta *paymentMeta,
) error {
	chain := p.chainLabel(base.ChainID)

	existing, err := p.store.FindPaymentByChainAndHash(ctx, base.ChainID, base.TxHash)
	if err != nil {
		return err
	}
	if existing != nil {
		metrics.DuplicateEventInc(chain)
		p.log.Debugw("payment already recorded", "chain", chain, "tx_hash", base.TxHash)
		return nil
	}

	invoice, err := p.store.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice == nil {
		metrics.UnknownInvoiceInc(chain)
		p.log.Warnw("payment references unknown invoice",
			"chain", chain, "invoice_id", invoiceID, "tx_hash", base.TxHash)
		return ErrInvoiceNotFound
	}

	gasUsed, gasFee := p.lookupGas(ctx, receipts, base.TxHash)
	now := time.Now()

	payment := &store.Payment{
		ID:          uuid.NewString(),
		InvoiceID:   invoice.ID,
		ChainID:     base.ChainID,
		TxHash:      base.TxHash,
		Payer:       payer,
		Amount:      amount.String(),
		Currency:    currency,
		Status:      store.PaymentConfirmed,
		BlockNumber: base.BlockNumber,
		BlockHash:   base.BlockHash,
		GasUsed:     gasUsed,
		GasFee:      gasFee.String(),
		RecordedAt:  now.Unix(),
		ConfirmedAt: now.Unix(),
	}

	if err := p.store.InsertPayment(ctx, payment); err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.DuplicateEventInc(chain)
			return nil
		}
		return err
	}

	invoiceAmount, err := decimal.NewFromString(invoice.Amount)
	if err != nil {
		return fmt.Errorf("invoice %s has malformed amount %q: %w", invoice.ID, invoice.Amount, err)
	}

	if invoice.Status != store.InvoicePaid && amount.GreaterThanOrEqual(invoiceAmount) {
		if err := p.store.UpdateInvoiceStatus(ctx, invoice.ID, store.InvoicePaid, now); err != nil {
			return err
		}
		p.log.Infow("invoice paid",
			"invoice_id", invoice.ID, "chain", chain, "amount", amount.String(), "tx_hash", base.TxHash)
	}

	metadata := "{}"
	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		metadata = string(raw)
	}

	tx := &store.Transaction{
		ID:          uuid.NewString(),
		AppID:       invoice.AppID,
		Type:        store.TxTypePayment,
		ChainID:     base.ChainID,
		TxHash:      base.TxHash,
		Amount:      amount.String(),
		Currency:    currency,
		Fee:         gasFee.String(),
		Status:      string(store.PaymentConfirmed),
		BlockNumber: base.BlockNumber,
		From:        payer,
		To:          base.Contract,
		Metadata:    metadata,
		CreatedAt:   now.Unix(),
	}

	if err := p.store.InsertTransaction(ctx, tx); err != nil && !errors.Is(err, store.ErrConflict) {
		return err
	}

	return nil
}

// applyCrossChainCompleted confirms a cross-chain payment on the settlement
// chain. The completion event carries no amount; the invoice's own amount is
// recorded, since completion implies full settlement.
func (p *Processor) applyCrossChainCompleted(ctx context.Context, receipts ReceiptSource, e *events.CrossChainPaymentCompleted) error {
	invoice, err := p.store.FindInvoiceByID(ctx, e.InvoiceID)
	if err != nil {
		return err
	}
	if invoice == nil {
		metrics.UnknownInvoiceInc(p.chainLabel(e.ChainID))
		p.log.Warnw("cross-chain completion references unknown invoice",
			"chain", p.chainLabel(e.ChainID), "invoice_id", e.InvoiceID, "tx_hash", e.TxHash)
		return ErrInvoiceNotFound
	}

	amount, err := decimal.NewFromString(invoice.Amount)
	if err != nil {
		return fmt.Errorf("invoice %s has malformed amount %q: %w", invoice.ID, invoice.Amount, err)
	}

	return p.applyPayment(ctx, receipts, e.Base, e.InvoiceID, common.Address{}, amount, invoice.Currency,
		&paymentMeta{CrossChain: true, SourceChainID: e.SourceChainID})
}

func (p *Processor) applyWithdrawal(ctx context.Context, e *events.WithdrawalExecuted) error {
	chain := p.chainLabel(e.ChainID)
	amount := p.toDecimal(e.Amount, e.Currency)

	tx := &store.Transaction{
		ID:          uuid.NewString(),
		AppID:       e.AppID,
		Type:        store.TxTypeWithdrawal,
		ChainID:     e.ChainID,
		TxHash:      e.TxHash,
		Amount:      amount.String(),
		Currency:    e.Currency,
		Fee:         "0",
		Status:      string(store.PaymentConfirmed),
		BlockNumber: e.BlockNumber,
		From:        e.Contract,
		To:          e.Recipient,
		CreatedAt:   time.Now().Unix(),
	}

	if err := p.store.InsertTransaction(ctx, tx); err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.DuplicateEventInc(chain)
			return nil
		}
		return err
	}

	return nil
}

// feeMeta records the fee breakdown in the ledger entry metadata.
type feeMeta struct {
	PlatformFee string `json:"platform_fee"`
	NetworkFee  string `json:"network_fee"`
}

func (p *Processor) applyFee(ctx context.Context, e *events.FeeCollected) error {
	chain := p.chainLabel(e.ChainID)

	platform := p.toDecimal(e.PlatformFee, e.Currency)
	network := p.toDecimal(e.NetworkFee, e.Currency)
	total := platform.Add(network)

	raw, err := json.Marshal(feeMeta{PlatformFee: platform.String(), NetworkFee: network.String()})
	if err != nil {
		return err
	}

	tx := &store.Transaction{
		ID:          uuid.NewString(),
		AppID:       e.AppID,
		Type:        store.TxTypeFee,
		ChainID:     e.ChainID,
		TxHash:      e.TxHash,
		Amount:      total.String(),
		Currency:    e.Currency,
		Fee:         "0",
		Status:      string(store.PaymentConfirmed),
		BlockNumber: e.BlockNumber,
		From:        e.Contract,
		Metadata:    string(raw),
		CreatedAt:   time.Now().Unix(),
	}

	if err := p.store.InsertTransaction(ctx, tx); err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.DuplicateEventInc(chain)
			return nil
		}
		return err
	}

	return nil
}

// crossChainMeta tags a ledger entry as a cross-chain initiation.
type crossChainMeta struct {
	CrossChain    bool   `json:"cross_chain"`
	TargetChainID uint64 `json:"target_chain_id"`
}

// applyCrossChainInitiated records the initiation informationally. It never
// confirms payment and never touches invoices beyond a read for the owning
// application.
func (p *Processor) applyCrossChainInitiated(ctx context.Context, e *events.CrossChainPaymentInitiated) error {
	chain := p.chainLabel(e.ChainID)
	amount := p.toDecimal(e.Amount, e.Currency)

	var appID string
	invoice, err := p.store.FindInvoiceByID(ctx, e.InvoiceID)
	if err != nil {
		return err
	}
	if invoice != nil {
		appID = invoice.AppID
	} else {
		p.log.Warnw("cross-chain initiation references unknown invoice",
			"chain", chain, "invoice_id", e.InvoiceID, "tx_hash", e.TxHash)
	}

	raw, err := json.Marshal(crossChainMeta{CrossChain: true, TargetChainID: e.TargetChainID})
	if err != nil {
		return err
	}

	tx := &store.Transaction{
		ID:          uuid.NewString(),
		AppID:       appID,
		Type:        store.TxTypePayment,
		ChainID:     e.ChainID,
		TxHash:      e.TxHash,
		Amount:      amount.String(),
		Currency:    e.Currency,
		Fee:         "0",
		Status:      string(store.PaymentPending),
		BlockNumber: e.BlockNumber,
		From:        e.Payer,
		To:          e.Contract,
		Metadata:    string(raw),
		CreatedAt:   time.Now().Unix(),
	}

	if err := p.store.InsertTransaction(ctx, tx); err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.DuplicateEventInc(chain)
			return nil
		}
		return err
	}

	return nil
}

// lookupGas fetches gas usage from the transaction receipt, best-effort.
// Missing receipts or lookup failures default to zero; there is no later
// retry to patch the record.
func (p *Processor) lookupGas(ctx context.Context, receipts ReceiptSource, txHash common.Hash) (uint64, decimal.Decimal) {
	if receipts == nil {
		return 0, decimal.Zero
	}

	receipt, err := receipts.Receipt(ctx, txHash)
	if err != nil {
		p.log.Debugw("receipt lookup failed", "tx_hash", txHash, "error", err)
		return 0, decimal.Zero
	}
	if receipt == nil {
		return 0, decimal.Zero
	}

	gasFee := decimal.Zero
	if receipt.EffectiveGasPrice != nil {
		wei := decimal.NewFromBigInt(receipt.EffectiveGasPrice, 0).
			Mul(decimal.NewFromInt(int64(receipt.GasUsed)))
		gasFee = wei.Shift(-config.DefaultTokenDecimals)
	}

	return receipt.GasUsed, gasFee
}

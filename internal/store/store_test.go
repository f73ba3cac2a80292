package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/paychain/gateway-indexer/internal/db"
	"github.com/paychain/gateway-indexer/internal/logger"
	"github.com/paychain/gateway-indexer/internal/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "gateway.db")
	require.NoError(t, migrations.RunMigrations(dbPath))

	database, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return New(database, logger.NewNopLogger(), nil)
}

func testPayment(id string, chainID uint64, txHash string) *Payment {
	return &Payment{
		ID:          id,
		InvoiceID:   "inv-1",
		ChainID:     chainID,
		TxHash:      common.HexToHash(txHash),
		Payer:       common.HexToAddress("0x1111"),
		Amount:      "100",
		Currency:    "USDC",
		Status:      PaymentConfirmed,
		BlockNumber: 42,
		BlockHash:   common.HexToHash("0xb10c"),
		GasFee:      "0",
	}
}

func TestInsertPaymentConflict(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertPayment(ctx, testPayment("pay-1", 1, "0xaa")))

	// Same (chain, tx hash) with a different primary key still conflicts.
	err := st.InsertPayment(ctx, testPayment("pay-2", 1, "0xaa"))
	require.ErrorIs(t, err, ErrConflict)

	// Same hash on another chain is a distinct payment.
	require.NoError(t, st.InsertPayment(ctx, testPayment("pay-3", 9001, "0xaa")))
}

func TestFindPaymentByChainAndHash(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	found, err := st.FindPaymentByChainAndHash(ctx, 1, common.HexToHash("0xaa"))
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, st.InsertPayment(ctx, testPayment("pay-1", 1, "0xaa")))

	found, err = st.FindPaymentByChainAndHash(ctx, 1, common.HexToHash("0xaa"))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "pay-1", found.ID)
	assert.Equal(t, common.HexToHash("0xaa"), found.TxHash)
	assert.NotZero(t, found.RecordedAt)
}

func TestInsertInvoiceDefaults(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertInvoice(ctx, &Invoice{
		ID:       "inv-1",
		AppID:    "app-1",
		Amount:   "50",
		Currency: "USDC",
	}))

	inv, err := st.FindInvoiceByID(ctx, "inv-1")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, InvoicePending, inv.Status)
	assert.NotZero(t, inv.CreatedAt)

	require.ErrorIs(t, st.InsertInvoice(ctx, &Invoice{ID: "inv-1", AppID: "app-1"}), ErrConflict)

	absent, err := st.FindInvoiceByID(ctx, "inv-missing")
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestUpdateInvoiceStatusPaidIsFinal(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertInvoice(ctx, &Invoice{ID: "inv-1", AppID: "app-1", Amount: "50", Currency: "USDC"}))

	firstPaid := time.Unix(1700000000, 0)
	require.NoError(t, st.UpdateInvoiceStatus(ctx, "inv-1", InvoicePaid, firstPaid))

	inv, err := st.FindInvoiceByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid, inv.Status)
	assert.Equal(t, firstPaid.Unix(), inv.PaidAt)

	// A later update must not touch a paid invoice.
	require.NoError(t, st.UpdateInvoiceStatus(ctx, "inv-1", InvoiceExpired, time.Unix(1800000000, 0)))

	inv, err = st.FindInvoiceByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid, inv.Status)
	assert.Equal(t, firstPaid.Unix(), inv.PaidAt)
}

func TestInsertTransactionConflictPerType(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tx := func(id string, txType TransactionType) *Transaction {
		return &Transaction{
			ID:       id,
			AppID:    "app-1",
			Type:     txType,
			ChainID:  1,
			TxHash:   common.HexToHash("0xaa"),
			Amount:   "100",
			Currency: "USDC",
			Fee:      "0",
			Status:   "confirmed",
			From:     common.HexToAddress("0x1111"),
			To:       common.HexToAddress("0x2222"),
		}
	}

	require.NoError(t, st.InsertTransaction(ctx, tx("tx-1", TxTypePayment)))

	// One hash may carry entries of different types, never two of the same.
	require.NoError(t, st.InsertTransaction(ctx, tx("tx-2", TxTypeFee)))
	require.ErrorIs(t, st.InsertTransaction(ctx, tx("tx-3", TxTypePayment)), ErrConflict)

	txs, err := st.ListTransactionsByApp(ctx, "app-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "{}", txs[0].Metadata)
}

func TestListPaymentsByInvoice(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p1 := testPayment("pay-1", 1, "0xaa")
	p1.RecordedAt = 100
	p2 := testPayment("pay-2", 9001, "0xbb")
	p2.RecordedAt = 200

	require.NoError(t, st.InsertPayment(ctx, p2))
	require.NoError(t, st.InsertPayment(ctx, p1))

	payments, err := st.ListPaymentsByInvoice(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "pay-1", payments[0].ID)
	assert.Equal(t, "pay-2", payments[1].ID)
}

func TestCursorRoundtrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Absent cursor reads as genesis.
	block, err := st.GetCursor(ctx, 9001)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), block)

	require.NoError(t, st.SaveCursor(ctx, 9001, 150))

	block, err = st.GetCursor(ctx, 9001)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), block)

	// Upsert replaces the existing row.
	require.NoError(t, st.SaveCursor(ctx, 9001, 175))

	block, err = st.GetCursor(ctx, 9001)
	require.NoError(t, err)
	assert.Equal(t, uint64(175), block)

	// Cursors are per chain.
	block, err = st.GetCursor(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), block)
}

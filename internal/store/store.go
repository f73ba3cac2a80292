package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mattn/go-sqlite3"
	"github.com/paychain/gateway-indexer/internal/db"
	"github.com/paychain/gateway-indexer/internal/logger"
	"github.com/russross/meddler"
)

// ErrConflict is returned when an insert violates a uniqueness constraint,
// i.e. the record for that idempotency key already exists.
var ErrConflict = errors.New("record already exists")

// Store provides access to the shared gateway data store. It is safe for
// concurrent use by all chain watchers; the uniqueness constraints on
// (chain_id, tx_hash) and (chain_id, tx_hash, tx_type) are the single
// synchronization point for event deduplication.
type Store struct {
	db          *sql.DB
	log         *logger.Logger
	maintenance db.Maintenance
}

// New creates a Store on an open database connection. The maintenance
// coordinator may be nil.
func New(database *sql.DB, log *logger.Logger, maintenance db.Maintenance) *Store {
	if maintenance == nil {
		maintenance = &db.NoOpMaintenance{}
	}
	return &Store{
		db:          database,
		log:         log.WithComponent("store"),
		maintenance: maintenance,
	}
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isConflict reports whether err is a sqlite uniqueness violation.
func isConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// FindPaymentByChainAndHash looks up a payment by its idempotency key.
// Returns (nil, nil) when no payment exists.
func (s *Store) FindPaymentByChainAndHash(ctx context.Context, chainID uint64, txHash common.Hash) (*Payment, error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	var p Payment
	err := meddler.QueryRow(s.db, &p,
		`SELECT * FROM payments WHERE chain_id = ? AND tx_hash = ?`, chainID, txHash.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}

	return &p, nil
}

// InsertPayment records a payment. Returns ErrConflict if a payment with the
// same (chain, tx hash) already exists.
func (s *Store) InsertPayment(ctx context.Context, p *Payment) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	if p.RecordedAt == 0 {
		p.RecordedAt = time.Now().Unix()
	}

	if err := meddler.Insert(s.db, "payments", p); err != nil {
		if isConflict(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	return nil
}

// FindInvoiceByID looks up an invoice. Returns (nil, nil) when absent.
func (s *Store) FindInvoiceByID(ctx context.Context, id string) (*Invoice, error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	var inv Invoice
	err := meddler.QueryRow(s.db, &inv, `SELECT * FROM invoices WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice: %w", err)
	}

	return &inv, nil
}

// InsertInvoice creates an invoice row. Invoices are normally created by the
// API layer; the indexing core uses this for tests and seeding only.
func (s *Store) InsertInvoice(ctx context.Context, inv *Invoice) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	if inv.CreatedAt == 0 {
		inv.CreatedAt = time.Now().Unix()
	}
	if inv.Status == "" {
		inv.Status = InvoicePending
	}

	if err := meddler.Insert(s.db, "invoices", inv); err != nil {
		if isConflict(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	return nil
}

// UpdateInvoiceStatus transitions an invoice to the given status. A paid
// invoice is never modified: the transition to paid happens at most once and
// is irreversible from the indexing core's point of view.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, id string, status InvoiceStatus, paidAt time.Time) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	var paidAtUnix int64
	if !paidAt.IsZero() {
		paidAtUnix = paidAt.Unix()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET status = ?, paid_at = ? WHERE id = ? AND status <> ?`,
		status, paidAtUnix, id, InvoicePaid)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.log.Debugw("invoice status unchanged", "invoice_id", id, "status", status)
	}

	return nil
}

// InsertTransaction records a ledger entry. Returns ErrConflict if an entry
// with the same (chain, tx hash, type) already exists.
func (s *Store) InsertTransaction(ctx context.Context, tx *Transaction) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	if tx.CreatedAt == 0 {
		tx.CreatedAt = time.Now().Unix()
	}
	if tx.Metadata == "" {
		tx.Metadata = "{}"
	}

	if err := meddler.Insert(s.db, "ledger_transactions", tx); err != nil {
		if isConflict(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// ListPaymentsByInvoice returns all payments recorded against an invoice,
// oldest first.
func (s *Store) ListPaymentsByInvoice(ctx context.Context, invoiceID string) ([]*Payment, error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	var payments []*Payment
	err := meddler.QueryAll(s.db, &payments,
		`SELECT * FROM payments WHERE invoice_id = ? ORDER BY recorded_at ASC`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	return payments, nil
}

// ListTransactionsByApp returns ledger entries for an application, newest
// first, with pagination.
func (s *Store) ListTransactionsByApp(ctx context.Context, appID string, limit, offset int) ([]*Transaction, error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	var txs []*Transaction
	err := meddler.QueryAll(s.db, &txs,
		`SELECT * FROM ledger_transactions WHERE app_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		appID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return txs, nil
}

// GetCursor returns the persisted cursor for a chain, or 0 if none exists.
func (s *Store) GetCursor(ctx context.Context, chainID uint64) (uint64, error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	var lastBlock uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_block FROM chain_cursors WHERE chain_id = ?`, chainID).Scan(&lastBlock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor: %w", err)
	}

	return lastBlock, nil
}

// SaveCursor upserts the cursor for a chain.
func (s *Store) SaveCursor(ctx context.Context, chainID, lastBlock uint64) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chain_cursors (chain_id, last_block, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(chain_id) DO UPDATE SET last_block = excluded.last_block, updated_at = excluded.updated_at`,
		chainID, lastBlock, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}

	return nil
}

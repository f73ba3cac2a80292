package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/paychain/gateway-indexer/internal/config"
	"github.com/paychain/gateway-indexer/internal/logger"
	"github.com/paychain/gateway-indexer/internal/metrics"
)

// Maintenance serializes background sqlite maintenance against normal store
// operations. Operations take the shared lock; maintenance takes the
// exclusive lock.
type Maintenance interface {
	Start(ctx context.Context) error
	Stop() error
	// AcquireOperationLock acquires the shared lock for a store operation.
	// The returned function releases it.
	AcquireOperationLock() func()
	RunMaintenance(ctx context.Context) error
}

// NoOpMaintenance is used when maintenance is not configured.
type NoOpMaintenance struct{}

func (*NoOpMaintenance) Start(context.Context) error          { return nil }
func (*NoOpMaintenance) Stop() error                          { return nil }
func (*NoOpMaintenance) RunMaintenance(context.Context) error { return nil }
func (*NoOpMaintenance) AcquireOperationLock() func()         { return func() {} }

// MaintenanceCoordinator periodically checkpoints the WAL and vacuums the
// gateway store. The indexer runs indefinitely, so reclaiming WAL space
// matters over long uptimes.
type MaintenanceCoordinator struct {
	db  *sql.DB
	cfg config.MaintenanceConfig
	log *logger.Logger

	// readers = store operations, writer = maintenance
	opLock sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMaintenanceCoordinator creates a maintenance coordinator, or a no-op
// one when cfg is nil.
func NewMaintenanceCoordinator(db *sql.DB, cfg *config.MaintenanceConfig, log *logger.Logger) Maintenance {
	if cfg == nil {
		return &NoOpMaintenance{}
	}

	return &MaintenanceCoordinator{
		db:  db,
		cfg: *cfg,
		log: log.WithComponent("db-maintenance"),
	}
}

// Start begins background maintenance if enabled.
func (m *MaintenanceCoordinator) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.log.Info("background maintenance is disabled")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.worker(runCtx)

	m.log.Infof("background maintenance started - interval: %v, checkpoint mode: %s",
		m.cfg.CheckInterval.Duration, m.cfg.WALCheckpointMode)

	return nil
}

// Stop stops background maintenance and waits for completion.
func (m *MaintenanceCoordinator) Stop() error {
	if m.cancel == nil {
		return nil // not started
	}

	m.cancel()
	m.wg.Wait()
	return nil
}

func (m *MaintenanceCoordinator) worker(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.RunMaintenance(ctx); err != nil {
				m.log.Warnf("periodic maintenance failed: %v", err)
			}
		}
	}
}

// RunMaintenance checkpoints the WAL and vacuums the database. It holds the
// exclusive lock for the duration, so all store operations wait.
func (m *MaintenanceCoordinator) RunMaintenance(ctx context.Context) error {
	start := time.Now()

	m.opLock.Lock()
	defer m.opLock.Unlock()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	var maintenanceErr error

	if err := m.walCheckpoint(); err != nil {
		maintenanceErr = fmt.Errorf("WAL checkpoint failed: %w", err)
	}

	if _, err := m.db.Exec("VACUUM"); err != nil {
		m.log.Warnf("VACUUM failed: %v", err)
		if maintenanceErr == nil {
			maintenanceErr = fmt.Errorf("VACUUM failed: %w", err)
		}
	}

	metrics.MaintenanceRunLog(time.Since(start), maintenanceErr == nil)

	if maintenanceErr != nil {
		return maintenanceErr
	}

	m.log.Infof("maintenance completed in %v", time.Since(start))
	return nil
}

func (m *MaintenanceCoordinator) walCheckpoint() error {
	var mode string
	if err := m.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return nil
	}

	var busyCount, logFrames, checkpointedFrames int
	checkpointSQL := fmt.Sprintf("PRAGMA wal_checkpoint(%s)", m.cfg.WALCheckpointMode)
	if err := m.db.QueryRow(checkpointSQL).Scan(&busyCount, &logFrames, &checkpointedFrames); err != nil {
		return fmt.Errorf("failed to execute WAL checkpoint: %w", err)
	}

	m.log.Debugf("WAL checkpoint complete - mode: %s, busy: %d, log_frames: %d, checkpointed: %d",
		m.cfg.WALCheckpointMode, busyCount, logFrames, checkpointedFrames)

	return nil
}

// AcquireOperationLock acquires the shared lock for a store operation.
func (m *MaintenanceCoordinator) AcquireOperationLock() func() {
	m.opLock.RLock()
	return m.opLock.RUnlock
}

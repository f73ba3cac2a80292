package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/paychain/gateway-indexer/internal/api"
	"github.com/paychain/gateway-indexer/internal/chain"
	icommon "github.com/paychain/gateway-indexer/internal/common"
	"github.com/paychain/gateway-indexer/internal/config"
	"github.com/paychain/gateway-indexer/internal/db"
	"github.com/paychain/gateway-indexer/internal/logger"
	"github.com/paychain/gateway-indexer/internal/manager"
	"github.com/paychain/gateway-indexer/internal/metrics"
	"github.com/paychain/gateway-indexer/internal/migrations"
	"github.com/paychain/gateway-indexer/internal/processor"
	"github.com/paychain/gateway-indexer/internal/store"
	"github.com/paychain/gateway-indexer/internal/watcher"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gateway-indexer",
	Short: "Payment gateway multi-chain event indexer",
	Long: `gateway-indexer watches the payment gateway contract on every configured
chain, decodes its events and maintains the invoice, payment and ledger
records in the gateway store. A status/control API allows starting and
stopping individual chain watchers at runtime.`,
	Version: version,
	RunE:    runIndexer,
}

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List the chains in the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		for _, c := range cfg.Chains {
			state := "indexed"
			if !c.Configured() {
				state = "excluded (no contract address)"
			}
			fmt.Printf("  %d  %-16s %s\n", c.ChainID, c.Name, state)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(chainsCmd)
}

func componentLogger(cfg *config.Config, component string) *logger.Logger {
	if cfg.Logging == nil {
		return logger.NewComponentLogger(component, nil)
	}
	return logger.NewComponentLogger(component, cfg.Logging)
}

func runIndexer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	log := componentLogger(cfg, icommon.ComponentManager)
	log.Infof("gateway-indexer v%s starting", version)

	// Gateway store
	log.Info("Running database migrations...")
	if err := migrations.RunMigrations(cfg.DB.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewSQLiteDBFromConfig(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	maintenance := db.NewMaintenanceCoordinator(
		database,
		cfg.DB.Maintenance,
		componentLogger(cfg, icommon.ComponentMaintenance),
	)
	if err := maintenance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start database maintenance: %w", err)
	}
	defer func() {
		if err := maintenance.Stop(); err != nil {
			log.Warnf("Failed to stop database maintenance: %v", err)
		}
	}()

	gatewayStore := store.New(database, componentLogger(cfg, icommon.ComponentStore), maintenance)
	defer gatewayStore.Close()

	// Metrics server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, log)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(ctx); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
	}

	// Event processor, shared by all watchers
	chainNames := make(map[uint64]string, len(cfg.Chains))
	for _, c := range cfg.Chains {
		chainNames[c.ChainID] = c.Name
	}

	proc := processor.New(
		gatewayStore,
		cfg.Processor,
		chainNames,
		componentLogger(cfg, icommon.ComponentProcessor),
	)

	// One watcher per configured chain; chains without a contract address
	// are silently excluded.
	watchers := make([]*watcher.Watcher, 0, len(cfg.Chains))
	for _, chainCfg := range cfg.Chains {
		if !chainCfg.Configured() {
			log.Infof("Chain %s (%d) has no contract address, skipping", chainCfg.Name, chainCfg.ChainID)
			continue
		}

		client, err := chain.Dial(ctx, &chainCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to chain %s: %w", chainCfg.Name, err)
		}
		defer client.Close()

		watchers = append(watchers, watcher.New(
			chainCfg,
			client,
			proc,
			gatewayStore,
			componentLogger(cfg, icommon.ComponentWatcher),
		))
		log.Infof("Registered watcher for chain %s (%d)", chainCfg.Name, chainCfg.ChainID)
	}

	// The manager owns the process-lifetime context: watchers started later
	// through the API run under it, not under the request that started them.
	mgr := manager.New(ctx, watchers, componentLogger(cfg, icommon.ComponentManager))

	// Status/control API
	if cfg.API != nil && cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, mgr, componentLogger(cfg, icommon.ComponentAPI))
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				log.Errorf("API server error: %v", err)
			}
		}()
	}

	log.Infof("Starting %d chain watcher(s)...", len(watchers))
	if err := mgr.StartAll(); err != nil {
		// Partial failures are not fatal: healthy chains keep indexing and
		// failed ones can be started later through the API.
		log.Errorf("Some watchers failed to start: %v", err)
	}

	<-ctx.Done()

	log.Info("Stopping chain watchers...")
	if err := mgr.StopAll(); err != nil {
		log.Warnf("Failed to stop some watchers: %v", err)
	}

	log.Info("gateway-indexer stopped")
	return nil
}

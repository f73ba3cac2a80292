package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/paychain/gateway-indexer/internal/db"
	"github.com/paychain/gateway-indexer/internal/logger"
)

//go:embed 001_gateway_store.sql
var mig001 string

func gatewayMigrations() []db.Migration {
	return []db.Migration{
		{
			ID:  "001_gateway_store.sql",
			SQL: mig001,
		},
	}
}

// RunMigrations applies the gateway store schema to the database at dbPath.
func RunMigrations(dbPath string) error {
	return db.RunMigrations(dbPath, gatewayMigrations())
}

// RunMigrationsDB applies the gateway store schema on an open connection.
func RunMigrationsDB(log *logger.Logger, database *sql.DB) error {
	return db.RunMigrationsDB(log, database, gatewayMigrations())
}

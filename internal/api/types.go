package api

import (
	"time"

	"github.com/paychain/gateway-indexer/internal/watcher"
)

// HealthResponse reports API liveness and per-chain watcher health.
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Chains    []watcher.Status `json:"chains"`
}

// ControlResponse acknowledges a lifecycle operation.
type ControlResponse struct {
	Status string           `json:"status"`
	Chains []watcher.Status `json:"chains"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

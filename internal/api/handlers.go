package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	icommon "github.com/paychain/gateway-indexer/internal/common"
	"github.com/paychain/gateway-indexer/internal/logger"
	"github.com/paychain/gateway-indexer/internal/manager"
	"github.com/paychain/gateway-indexer/internal/watcher"
)

// IndexerManager is the control surface the API exposes. Satisfied by
// *manager.Manager. Start operations deliberately take no request context:
// a watcher started over HTTP runs under the manager's process-lifetime
// context and must survive the request that started it.
type IndexerManager interface {
	StartAll() error
	StopAll() error
	RestartAll() error
	StartIndexer(chainID uint64) error
	StopIndexer(chainID uint64) error
	Status() []watcher.Status
}

// Handler handles HTTP requests for the API.
type Handler struct {
	manager IndexerManager
	log     *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(mgr IndexerManager, log *logger.Logger) *Handler {
	return &Handler{
		manager: mgr,
		log:     log,
	}
}

// Health returns the health status of the API and all chain watchers.
// @Summary Health check
// @Description Check the health status of the API and all chain watchers
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "API and watcher health status"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Chains:    h.manager.Status(),
	})
}

// ListIndexers returns the status of every chain watcher.
// @Summary List chain watchers
// @Description Get the status of every configured chain watcher, sorted by chain id
// @Tags Indexers
// @Produce json
// @Success 200 {array} watcher.Status "Per-chain watcher status"
// @Router /indexers [get]
func (h *Handler) ListIndexers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.manager.Status())
}

// StartAll starts every chain watcher.
// @Summary Start all watchers
// @Description Start every configured chain watcher; partial failures are reported per chain
// @Tags Indexers
// @Produce json
// @Success 200 {object} ControlResponse "All watchers started"
// @Failure 500 {object} ErrorResponse "One or more chains failed to start"
// @Router /indexers/start [post]
func (h *Handler) StartAll(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.StartAll(); err != nil {
		h.log.Errorf("failed to start watchers: %v", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, ControlResponse{Status: "started", Chains: h.manager.Status()})
}

// StopAll stops every chain watcher.
// @Summary Stop all watchers
// @Description Stop every configured chain watcher
// @Tags Indexers
// @Produce json
// @Success 200 {object} ControlResponse "All watchers stopped"
// @Failure 500 {object} ErrorResponse "One or more chains failed to stop"
// @Router /indexers/stop [post]
func (h *Handler) StopAll(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.StopAll(); err != nil {
		h.log.Errorf("failed to stop watchers: %v", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, ControlResponse{Status: "stopped", Chains: h.manager.Status()})
}

// RestartAll restarts every chain watcher.
// @Summary Restart all watchers
// @Description Stop every watcher, wait a settle delay and start them again
// @Tags Indexers
// @Produce json
// @Success 200 {object} ControlResponse "All watchers restarted"
// @Failure 500 {object} ErrorResponse "One or more chains failed to restart"
// @Router /indexers/restart [post]
func (h *Handler) RestartAll(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.RestartAll(); err != nil {
		h.log.Errorf("failed to restart watchers: %v", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, ControlResponse{Status: "restarted", Chains: h.manager.Status()})
}

// StartIndexer starts the watcher for one chain.
// @Summary Start one watcher
// @Description Start the watcher for a single chain id
// @Tags Indexers
// @Produce json
// @Param chainID path integer true "Chain ID"
// @Success 200 {object} ControlResponse "Watcher started"
// @Failure 400 {object} ErrorResponse "Invalid chain id"
// @Failure 404 {object} ErrorResponse "No watcher configured for this chain"
// @Failure 500 {object} ErrorResponse "Watcher failed to start"
// @Router /indexers/{chainID}/start [post]
func (h *Handler) StartIndexer(w http.ResponseWriter, r *http.Request) {
	chainID, ok := parseChainID(w, r)
	if !ok {
		return
	}

	if err := h.manager.StartIndexer(chainID); err != nil {
		h.respondManagerError(w, chainID, err)
		return
	}

	respondJSON(w, http.StatusOK, ControlResponse{Status: "started", Chains: h.manager.Status()})
}

// StopIndexer stops the watcher for one chain.
// @Summary Stop one watcher
// @Description Stop the watcher for a single chain id
// @Tags Indexers
// @Produce json
// @Param chainID path integer true "Chain ID"
// @Success 200 {object} ControlResponse "Watcher stopped"
// @Failure 400 {object} ErrorResponse "Invalid chain id"
// @Failure 404 {object} ErrorResponse "No watcher configured for this chain"
// @Failure 500 {object} ErrorResponse "Watcher failed to stop"
// @Router /indexers/{chainID}/stop [post]
func (h *Handler) StopIndexer(w http.ResponseWriter, r *http.Request) {
	chainID, ok := parseChainID(w, r)
	if !ok {
		return
	}

	if err := h.manager.StopIndexer(chainID); err != nil {
		h.respondManagerError(w, chainID, err)
		return
	}

	respondJSON(w, http.StatusOK, ControlResponse{Status: "stopped", Chains: h.manager.Status()})
}

func (h *Handler) respondManagerError(w http.ResponseWriter, chainID uint64, err error) {
	if errors.Is(err, manager.ErrUnknownChain) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("no watcher configured for chain %d", chainID))
		return
	}

	h.log.Errorf("chain %d operation failed: %v", chainID, err)
	respondError(w, http.StatusInternalServerError, err.Error())
}

// parseChainID reads the chain id path segment, accepting decimal or
// 0x-prefixed hex.
func parseChainID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := r.PathValue("chainID")
	chainID, err := icommon.ParseUint64orHex(&raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid chain id %q", raw))
		return 0, false
	}
	return chainID, true
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(encoded)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

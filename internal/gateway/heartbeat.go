package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/CosmoTheDev/codesense/internal/scanner"
)

const (
	heartbeatCheckInterval = 30 * time.Second
	// stuckThreshold is how long a running scan may go without a single
	// progress update before it is reported as stuck.
	stuckThreshold = 15 * time.Minute
)

// HeartbeatStatus describes the health of the running scan.
type HeartbeatStatus struct {
	Status         string `json:"status"` // "idle" | "alive" | "stuck"
	ScanID         string `json:"scan_id,omitempty"`
	LastActivityAt string `json:"last_activity_at,omitempty"`
	StuckForSecs   int64  `json:"stuck_for_secs,omitempty"`
	Message        string `json:"message"`
}

// HeartbeatMonitor periodically checks that the active scan keeps making
// progress and broadcasts a "scan.health" SSE event whenever the status
// changes.
type HeartbeatMonitor struct {
	gw         *Gateway
	lastStatus string // tracks previous status to suppress no-change broadcasts
}

func newHeartbeatMonitor(gw *Gateway) *HeartbeatMonitor {
	return &HeartbeatMonitor{gw: gw}
}

func (h *HeartbeatMonitor) run(ctx context.Context) {
	ticker := time.NewTicker(heartbeatCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.evaluate(time.Now())
		}
	}
}

func (h *HeartbeatMonitor) evaluate(now time.Time) {
	hs := h.computeStatus(now)
	if hs.Status != h.lastStatus {
		h.lastStatus = hs.Status
		h.gw.broadcaster.send(SSEEvent{Type: "scan.health", Payload: hs})
		slog.Info("Scan health changed", "status", hs.Status, "scan_id", hs.ScanID, "message", hs.Message)
	}
}

// computeStatus is safe to call from any goroutine.
func (h *HeartbeatMonitor) computeStatus(now time.Time) HeartbeatStatus {
	scanID, running := h.gw.runner.Active(scanner.DefaultSlot)
	h.gw.mu.RLock()
	lastAt := h.gw.lastActivityAt
	h.gw.mu.RUnlock()

	if !running {
		return HeartbeatStatus{Status: "idle", Message: "No scan running."}
	}
	hs := HeartbeatStatus{Status: "alive", ScanID: scanID, Message: "Scan in progress."}
	if lastAt.IsZero() {
		return hs
	}
	hs.LastActivityAt = lastAt.UTC().Format(time.RFC3339)
	if since := now.Sub(lastAt); since > stuckThreshold {
		hs.Status = "stuck"
		hs.StuckForSecs = int64(since.Seconds())
		hs.Message = "Scan is running but no file has finished recently. The inference backend may be hung."
	}
	return hs
}

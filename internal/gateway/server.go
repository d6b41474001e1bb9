package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/CosmoTheDev/codesense/internal/config"
	"github.com/CosmoTheDev/codesense/internal/metrics"
	"github.com/CosmoTheDev/codesense/internal/profiles"
	"github.com/CosmoTheDev/codesense/internal/progress"
	"github.com/CosmoTheDev/codesense/internal/repository"
	"github.com/CosmoTheDev/codesense/internal/scanner"
	"github.com/CosmoTheDev/codesense/internal/store"
	"github.com/CosmoTheDev/codesense/models"
)

var (
	errInvalidRequest = errors.New("invalid scan request")
	errCloneFailed    = errors.New("cloning source failed")
)

// Scanner is the slice of scanner.Runner the gateway drives.
type Scanner interface {
	Start(ctx context.Context, req scanner.Request) (string, error)
	Active(slot string) (string, bool)
	Tracker() *progress.Tracker
}

// Deps are the collaborators a Gateway serves.
type Deps struct {
	Runner  Scanner
	Store   store.Store
	Metrics *metrics.Metrics
	Cloner  *repository.CloneManager
	// Notifiers names the active notification channels, for /api/status.
	Notifiers []string
}

// Gateway is the long-running daemon that combines:
//   - the scan Runner (started by API calls)
//   - a cron Scheduler (starting scans on schedule)
//   - a REST + SSE HTTP server
type Gateway struct {
	cfg         *config.Config
	runner      Scanner
	store       store.Store
	metrics     *metrics.Metrics
	cloner      *repository.CloneManager
	notifiers   []string
	scheduler   *Scheduler
	broadcaster *Broadcaster
	heartbeat   *HeartbeatMonitor

	mu             sync.RWMutex
	lastTriggerAt  string
	lastActivityAt time.Time
	startedAt      time.Time
	cleanups       map[string]func() // scan ID → checkout cleanup
}

// New creates a Gateway. Call Start() to begin serving.
func New(cfg *config.Config, d Deps) *Gateway {
	cloner := d.Cloner
	if cloner == nil {
		cloner = repository.NewCloneManager("")
	}
	gw := &Gateway{
		cfg:         cfg,
		runner:      d.Runner,
		store:       d.Store,
		metrics:     d.Metrics,
		cloner:      cloner,
		notifiers:   d.Notifiers,
		broadcaster: newBroadcaster(),
		startedAt:   time.Now(),
		cleanups:    make(map[string]func()),
	}
	gw.scheduler = newScheduler(cfg.Schedules, gw.triggerSchedule, gw.broadcaster.send)
	gw.heartbeat = newHeartbeatMonitor(gw)
	d.Runner.Tracker().OnUpdate(gw.onScanUpdate)
	return gw
}

// onScanUpdate runs under the tracker lock; it must not call the tracker.
func (gw *Gateway) onScanUpdate(s models.Scan) {
	gw.mu.Lock()
	gw.lastActivityAt = time.Now()
	gw.mu.Unlock()

	if s.Status.Terminal() {
		if fn := gw.popCleanup(s.ID); fn != nil {
			go fn()
		}
	}
	gw.broadcaster.sendScan(s)
}

func (gw *Gateway) popCleanup(id string) func() {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	fn := gw.cleanups[id]
	delete(gw.cleanups, id)
	return fn
}

// startScan materialises the requested source and hands it to the runner.
func (gw *Gateway) startScan(ctx context.Context, req ScanRequest) (string, error) {
	req.Path = strings.TrimSpace(req.Path)
	req.Repo = strings.TrimSpace(req.Repo)
	if (req.Path == "") == (req.Repo == "") {
		return "", fmt.Errorf("%w: exactly one of path or repo is required", errInvalidRequest)
	}
	if id, busy := gw.runner.Active(scanner.DefaultSlot); busy {
		return "", fmt.Errorf("%w: scan %s is running", scanner.ErrScanInProgress, id)
	}
	profileName := req.Profile
	if profileName == "" {
		profileName = gw.cfg.Scan.Profile
	}
	profile, err := profiles.Load(profileName, gw.cfg.Scan.ProfilesDir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errInvalidRequest, err)
	}

	src := models.Source{Path: req.Path, CloneURL: req.Repo, Branch: req.Branch}
	co, err := gw.cloner.Prepare(ctx, src)
	if err != nil {
		if src.Remote() {
			return "", fmt.Errorf("%w: %w", errCloneFailed, err)
		}
		return "", fmt.Errorf("%w: %w", errInvalidRequest, err)
	}
	name := req.Name
	if name == "" {
		name = co.Name
	}
	by := req.TriggeredBy
	if by == "" {
		by = "gateway"
	}

	id, err := gw.runner.Start(ctx, scanner.Request{Name: name, Root: co.LocalPath, TriggeredBy: by, Profile: profile})
	if err != nil {
		gw.cloner.Cleanup(co)
		return "", err
	}

	gw.mu.Lock()
	gw.cleanups[id] = func() { gw.cloner.Cleanup(co) }
	gw.lastTriggerAt = time.Now().UTC().Format(time.RFC3339)
	gw.mu.Unlock()
	// The scan may have finished before the cleanup was registered.
	if s, ok := gw.runner.Tracker().Get(id); ok && s.Status.Terminal() {
		if fn := gw.popCleanup(id); fn != nil {
			fn()
		}
	}

	slog.Info("Scan started from gateway", "scan_id", id, "source", src.Label(), "triggered_by", by)
	gw.broadcaster.send(SSEEvent{Type: "scan.started", Payload: map[string]any{"scan_id": id, "source": src.Label()}})
	return id, nil
}

func (gw *Gateway) triggerSchedule(sched config.ScheduleConfig) error {
	_, err := gw.startScan(context.Background(), ScanRequest{
		Path:        sched.Path,
		Name:        sched.Name,
		TriggeredBy: "schedule:" + sched.Name,
		Profile:     sched.Profile,
	})
	return err
}

// Start runs the gateway until ctx is cancelled. It:
//  1. Starts the cron scheduler
//  2. Starts the heartbeat monitor
//  3. Binds the HTTP server (blocks until shutdown)
func (gw *Gateway) Start(ctx context.Context) error {
	port := gw.cfg.Gateway.Port
	if port == 0 {
		port = 6080
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	if err := gw.scheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	go gw.heartbeat.run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           buildHandler(gw),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shut down HTTP server when ctx is cancelled.
	go func() {
		<-ctx.Done()
		slog.Info("Gateway shutting down")
		gw.scheduler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Gateway listening", "addr", "http://"+addr)
	gw.broadcaster.send(SSEEvent{
		Type:    "gateway.started",
		Payload: map[string]string{"addr": "http://" + addr},
	})

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (gw *Gateway) currentStatus() Status {
	active, _ := gw.runner.Active(scanner.DefaultSlot)
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	notifiers := gw.notifiers
	if notifiers == nil {
		notifiers = []string{}
	}
	return Status{
		ActiveScanID:  active,
		Schedules:     gw.scheduler.Len(),
		Notifiers:     notifiers,
		LastTriggerAt: gw.lastTriggerAt,
		UptimeSeconds: int64(time.Since(gw.startedAt).Seconds()),
	}
}

package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/CosmoTheDev/codesense/internal/ai"
	"github.com/CosmoTheDev/codesense/internal/findings"
	"github.com/CosmoTheDev/codesense/internal/metrics"
	"github.com/CosmoTheDev/codesense/internal/notify"
	"github.com/CosmoTheDev/codesense/internal/progress"
	"github.com/CosmoTheDev/codesense/internal/store"
	"github.com/CosmoTheDev/codesense/models"
)

var (
	// ErrScanInProgress is returned when the requested slot already runs a scan.
	ErrScanInProgress = errors.New("scan already in progress")
	// ErrInferenceUnavailable is returned when the inference backend fails
	// its preflight check. The scan is recorded as failed.
	ErrInferenceUnavailable = errors.New("inference backend unavailable")
)

// DefaultSlot is the single-flight slot used when a request names none.
const DefaultSlot = "default"

// Runner orchestrates scans: discovery, bounded parallel file workers, a
// single aggregation loop and the progress state machine.
type Runner struct {
	provider  ai.AIProvider
	store     store.Store
	tracker   *progress.Tracker
	fs        afero.Fs
	throttle  *Throttle
	metrics   *metrics.Metrics
	notifier  Notifier
	preflight []func(ctx context.Context) error
	extractor *findings.Extractor
	locator   *findings.Locator
	opts      Options

	mu     sync.Mutex
	active map[string]string // slot → scan ID
	wg     sync.WaitGroup
}

// NewRunner wires a Runner from its dependencies. Nil optional dependencies
// are replaced by inert defaults.
func NewRunner(deps Deps, opts Options) *Runner {
	opts = opts.withDefaults()
	fs := deps.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = progress.NewTracker(deps.Store)
	}
	if deps.Throttle != nil && deps.Metrics != nil {
		deps.Throttle.onPause = deps.Metrics.ThrottlePause
	}
	return &Runner{
		provider:  deps.Provider,
		store:     deps.Store,
		tracker:   tracker,
		fs:        fs,
		throttle:  deps.Throttle,
		metrics:   deps.Metrics,
		notifier:  deps.Notifier,
		preflight: deps.Preflight,
		extractor: findings.NewExtractor(),
		locator:   findings.NewLocator(opts.Locator),
		opts:      opts,
		active:    make(map[string]string),
	}
}

// Tracker exposes the runner's progress tracker.
func (r *Runner) Tracker() *progress.Tracker {
	return r.tracker
}

// Active returns the scan currently holding slot, if any.
func (r *Runner) Active(slot string) (string, bool) {
	if slot == "" {
		slot = DefaultSlot
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[slot]
	return id, ok
}

// Start validates and registers a scan, then runs it in the background.
// Setup failures, including a slot conflict, are returned synchronously.
func (r *Runner) Start(ctx context.Context, req Request) (string, error) {
	req = req.normalize()
	scan, files, err := r.prepare(ctx, req)
	if err != nil {
		return "", err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.execute(context.WithoutCancel(ctx), req, scan, files); err != nil {
			slog.Error("Background scan failed", "scan_id", scan.ID, "error", err)
		}
	}()
	return scan.ID, nil
}

// Run performs a scan to completion and returns its final state.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	req = req.normalize()
	scan, files, err := r.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx, req, scan, files)
}

// Wait blocks until every scan started with Start has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) acquire(slot, scanID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, busy := r.active[slot]; busy {
		return fmt.Errorf("%w: scan %s holds slot %q", ErrScanInProgress, id, slot)
	}
	r.active[slot] = scanID
	return nil
}

func (r *Runner) release(slot string) {
	r.mu.Lock()
	delete(r.active, slot)
	r.mu.Unlock()
}

// prepare claims the slot, records the queued scan, runs the preflight
// checks and discovers files. On error the slot is free again.
func (r *Runner) prepare(ctx context.Context, req Request) (scan models.Scan, files []string, err error) {
	if strings.TrimSpace(req.Root) == "" {
		return scan, nil, fmt.Errorf("scan root is required")
	}
	scan = models.Scan{
		ID:          uuid.NewString(),
		Name:        req.Name,
		RootPath:    req.Root,
		TriggeredBy: req.TriggeredBy,
		Status:      models.ScanQueued,
		StartTime:   time.Now().UTC(),
	}
	if err := r.acquire(req.Slot, scan.ID); err != nil {
		return scan, nil, err
	}
	defer func() {
		if err != nil {
			r.release(req.Slot)
		}
	}()

	if err := r.tracker.Begin(ctx, scan); err != nil {
		return scan, nil, fmt.Errorf("recording scan: %w", err)
	}

	if r.provider == nil || !r.provider.IsAvailable(ctx) {
		name := "none"
		if r.provider != nil {
			name = r.provider.Name()
		}
		err := fmt.Errorf("%w: provider %s did not respond", ErrInferenceUnavailable, name)
		r.fail(ctx, scan, err)
		return scan, nil, err
	}
	for _, check := range r.preflight {
		if err := check(ctx); err != nil {
			r.fail(ctx, scan, err)
			return scan, nil, err
		}
	}

	files, err = Discover(r.fs, req.Root)
	if err != nil {
		r.fail(ctx, scan, err)
		return scan, nil, err
	}
	return scan, files, nil
}

// fail moves a scan that could not start to the failed state.
func (r *Runner) fail(ctx context.Context, scan models.Scan, cause error) {
	slog.Error("Scan could not start", "scan_id", scan.ID, "root", scan.RootPath, "error", cause)
	s, err := r.tracker.Update(ctx, scan.ID, models.ScanUpdate{
		Status:   models.Ptr(models.ScanFailed),
		ErrorMsg: models.Ptr(cause.Error()),
	})
	if err != nil {
		slog.Warn("Failed to record scan failure", "scan_id", scan.ID, "error", err)
		s = scan
	}
	r.metrics.ScanFinished(string(models.ScanFailed))
	r.notify(ctx, notify.Event{
		Type:     notify.EventScanFailed,
		Title:    fmt.Sprintf("Scan %s failed to start", scanLabel(s)),
		Body:     cause.Error(),
		ScanID:   s.ID,
		Metadata: map[string]any{"root": s.RootPath},
	})
}

type fileResult struct {
	path     string
	findings []models.Finding
	err      error
}

func (r *Runner) execute(ctx context.Context, req Request, scan models.Scan, files []string) (*Result, error) {
	defer r.release(req.Slot)
	r.metrics.ScanStarted()
	defer r.metrics.ScanDone()

	result := &Result{}
	if len(files) == 0 {
		final, err := r.tracker.Update(ctx, scan.ID, models.ScanUpdate{
			TotalFiles:   models.Ptr(0),
			FilesScanned: models.Ptr(0),
			Findings:     models.Ptr(0),
			Status:       models.Ptr(models.ScanCompleted),
		})
		if err != nil {
			return nil, fmt.Errorf("completing empty scan: %w", err)
		}
		slog.Info("No source files found", "scan_id", scan.ID, "root", req.Root)
		r.metrics.ScanFinished(string(models.ScanCompleted))
		r.notifyCompleted(ctx, final, nil)
		result.Scan = final
		return result, nil
	}

	if _, err := r.tracker.Update(ctx, scan.ID, models.ScanUpdate{
		TotalFiles: models.Ptr(len(files)),
		Status:     models.Ptr(models.ScanInProgress),
	}); err != nil {
		return nil, fmt.Errorf("starting scan: %w", err)
	}
	slog.Info("Scan started", "scan_id", scan.ID, "root", req.Root, "files", len(files), "workers", r.opts.MaxFileWorkers)

	fsc := &fileScanner{
		fs:        r.fs,
		root:      req.Root,
		scanID:    scan.ID,
		provider:  r.provider,
		store:     r.store,
		throttle:  r.throttle,
		metrics:   r.metrics,
		extractor: r.extractor,
		locator:   r.locator,
		profile:   req.Profile,
		opts:      r.opts,
	}
	fsc.opts.CreatedBy = req.TriggeredBy

	// Bookkeeping outlives a cancelled scan so completed work is kept.
	persistCtx := context.WithoutCancel(ctx)

	resultCh := make(chan fileResult, r.opts.MaxFileWorkers)
	go func() {
		var g errgroup.Group
		g.SetLimit(r.opts.MaxFileWorkers)
		for _, f := range files {
			g.Go(func() error {
				out, err := fsc.scan(ctx, f)
				resultCh <- fileResult{path: f, findings: out, err: err}
				return nil
			})
		}
		_ = g.Wait()
		close(resultCh)
	}()

	for res := range resultCh {
		failed := res.err != nil
		if failed {
			slog.Warn("File scan failed", "scan_id", scan.ID, "file", res.path, "error", res.err)
		} else if len(res.findings) > 0 {
			if err := r.store.InsertFindings(persistCtx, res.findings); err != nil {
				slog.Error("Failed to persist findings", "scan_id", scan.ID, "file", res.path, "error", err)
				failed = true
			}
		}
		if failed {
			result.FailedFiles = append(result.FailedFiles, res.path)
		} else {
			result.Findings = append(result.Findings, res.findings...)
			for _, f := range res.findings {
				r.metrics.FindingRecorded(string(f.Severity))
			}
		}
		r.metrics.FileScanned(failed)
		n := len(res.findings)
		if failed {
			n = 0
		}
		if _, err := r.tracker.FileDone(persistCtx, scan.ID, failed, n); err != nil {
			slog.Warn("Failed to record file progress", "scan_id", scan.ID, "file", res.path, "error", err)
		}
	}

	if cause := ctx.Err(); cause != nil {
		final, err := r.tracker.Update(persistCtx, scan.ID, models.ScanUpdate{
			Findings: models.Ptr(len(result.Findings)),
			Status:   models.Ptr(models.ScanFailed),
			ErrorMsg: models.Ptr("scan cancelled"),
		})
		if err != nil {
			slog.Warn("Failed to record scan cancellation", "scan_id", scan.ID, "error", err)
			final = scan
			final.Status = models.ScanFailed
			final.ErrorMsg = "scan cancelled"
		}
		slog.Warn("Scan cancelled", "scan_id", scan.ID, "files_scanned", final.FilesScanned)
		r.metrics.ScanFinished(string(models.ScanFailed))
		result.Scan = final
		return result, fmt.Errorf("scan %s cancelled: %w", scan.ID, cause)
	}

	final, err := r.tracker.Update(ctx, scan.ID, models.ScanUpdate{
		Findings: models.Ptr(len(result.Findings)),
		Status:   models.Ptr(models.ScanCompleted),
	})
	if err != nil {
		return nil, fmt.Errorf("completing scan: %w", err)
	}
	slog.Info("Scan completed",
		"scan_id", scan.ID,
		"files", final.TotalFiles,
		"failed_files", len(result.FailedFiles),
		"findings", len(result.Findings),
		"duration", time.Since(scan.StartTime).Round(time.Millisecond),
	)
	r.metrics.ScanFinished(string(models.ScanCompleted))
	r.notifyCompleted(ctx, final, result.Findings)
	result.Scan = final
	return result, nil
}

func (r *Runner) notifyCompleted(ctx context.Context, s models.Scan, found []models.Finding) {
	r.notify(ctx, notify.Event{
		Type:  notify.EventScanCompleted,
		Title: fmt.Sprintf("Scan %s completed", scanLabel(s)),
		Body: fmt.Sprintf("%d findings across %d files (%d failed)",
			s.Findings, s.TotalFiles, s.FailedFiles),
		ScanID:   s.ID,
		Metadata: map[string]any{"root": s.RootPath},
	})
	for _, f := range found {
		if f.Severity != models.SeverityCritical {
			continue
		}
		r.notify(ctx, notify.Event{
			Type:     notify.EventCriticalFinding,
			Title:    f.Title,
			Body:     f.SecurityRisk,
			Severity: string(f.Severity),
			ScanID:   s.ID,
			Finding:  &f,
		})
	}
}

func (r *Runner) notify(ctx context.Context, evt notify.Event) {
	if r.notifier == nil {
		return
	}
	r.notifier.Notify(ctx, evt)
}

func scanLabel(s models.Scan) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

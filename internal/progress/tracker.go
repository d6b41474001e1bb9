// Package progress holds the authoritative in-process state of running
// scans and mirrors every change to the store.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/CosmoTheDev/codesense/models"
)

var (
	// ErrUnknownScan is returned for updates to a scan that was never begun.
	ErrUnknownScan = errors.New("unknown scan")
	// ErrInvalidTransition is returned when an update would move a scan
	// backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid scan status transition")
)

// Persister is the slice of the store the tracker writes through.
type Persister interface {
	CreateScan(ctx context.Context, scan *models.Scan) error
	UpsertScanProgress(ctx context.Context, scanID string, u models.ScanUpdate) error
}

// Listener observes every applied update. Listeners run while the tracker
// lock is held and must not call back into the tracker.
type Listener func(models.Scan)

// DefaultRetainedScans is how many finished scans a tracker keeps in memory.
const DefaultRetainedScans = 256

// Tracker serialises progress updates from concurrent file workers. Running
// scans stay in memory until they finish; finished scans move to a bounded
// LRU and older ones are served from the store instead.
type Tracker struct {
	mu        sync.Mutex
	store     Persister
	scans     map[string]*models.Scan
	done      *lru.Cache[string, *models.Scan]
	listeners []Listener
	now       func() time.Time
}

// NewTracker returns a tracker writing through p. A nil p keeps state in
// memory only.
func NewTracker(p Persister) *Tracker {
	return NewTrackerWithRetention(p, DefaultRetainedScans)
}

// NewTrackerWithRetention is NewTracker keeping at most retain finished
// scans in memory.
func NewTrackerWithRetention(p Persister, retain int) *Tracker {
	done, err := lru.New[string, *models.Scan](max(retain, 1))
	if err != nil {
		panic(fmt.Sprintf("progress: creating finished scan cache: %v", err))
	}
	return &Tracker{
		store: p,
		scans: make(map[string]*models.Scan),
		done:  done,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (t *Tracker) lookup(id string) (*models.Scan, bool) {
	if s, ok := t.scans[id]; ok {
		return s, true
	}
	return t.done.Get(id)
}

// Len reports how many scans are held in memory, running and finished.
func (t *Tracker) Len() (running, finished int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.scans), t.done.Len()
}

// OnUpdate registers fn to receive a copy of the scan after every change.
func (t *Tracker) OnUpdate(fn Listener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Begin registers a new scan and persists it.
func (t *Tracker) Begin(ctx context.Context, scan models.Scan) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.lookup(scan.ID); exists {
		return fmt.Errorf("scan %s already tracked", scan.ID)
	}
	if scan.Status == "" {
		scan.Status = models.ScanQueued
	}
	if scan.StartTime.IsZero() {
		scan.StartTime = t.now()
	}
	scan.LastUpdated = t.now()
	if t.store != nil {
		if err := t.store.CreateScan(ctx, &scan); err != nil {
			return fmt.Errorf("persisting scan: %w", err)
		}
	}
	t.scans[scan.ID] = &scan
	t.emit(scan)
	return nil
}

// Get returns a copy of the current state of a scan.
func (t *Tracker) Get(id string) (models.Scan, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.lookup(id)
	if !ok {
		return models.Scan{}, false
	}
	return *s, true
}

// Update merges u into the scan. Counters that would decrease are ignored,
// status only moves forward and the end time is set exactly once, when the
// scan reaches a terminal state. The in-memory state is authoritative; the
// effective change is persisted before the lock is released and a store
// error is returned alongside the applied state.
func (t *Tracker) Update(ctx context.Context, id string, u models.ScanUpdate) (models.Scan, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.apply(ctx, id, u)
}

// FileDone records one processed file. It is called exactly once per file,
// whether the file succeeded or failed.
func (t *Tracker) FileDone(ctx context.Context, id string, failed bool, findings int) (models.Scan, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.lookup(id)
	if !ok {
		return models.Scan{}, fmt.Errorf("%w: %s", ErrUnknownScan, id)
	}
	u := models.ScanUpdate{
		FilesScanned: models.Ptr(cur.FilesScanned + 1),
		Findings:     models.Ptr(cur.Findings + findings),
	}
	if failed {
		u.FailedFiles = models.Ptr(cur.FailedFiles + 1)
	}
	return t.apply(ctx, id, u)
}

func (t *Tracker) apply(ctx context.Context, id string, u models.ScanUpdate) (models.Scan, error) {
	cur, ok := t.lookup(id)
	if !ok {
		return models.Scan{}, fmt.Errorf("%w: %s", ErrUnknownScan, id)
	}
	if u.Status != nil && *u.Status != cur.Status && !cur.Status.CanTransitionTo(*u.Status) {
		return *cur, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, *u.Status)
	}
	if cur.Status.Terminal() && !u.Empty() {
		return *cur, fmt.Errorf("%w: scan %s is %s", ErrInvalidTransition, id, cur.Status)
	}

	next := *cur
	var eff models.ScanUpdate
	if u.TotalFiles != nil {
		next.TotalFiles = *u.TotalFiles
		eff.TotalFiles = u.TotalFiles
	}
	if u.FilesScanned != nil && *u.FilesScanned >= cur.FilesScanned {
		next.FilesScanned = *u.FilesScanned
		eff.FilesScanned = u.FilesScanned
	}
	if u.FailedFiles != nil && *u.FailedFiles >= cur.FailedFiles {
		next.FailedFiles = *u.FailedFiles
		eff.FailedFiles = u.FailedFiles
	}
	if u.Findings != nil {
		next.Findings = *u.Findings
		eff.Findings = u.Findings
	}
	if u.ErrorMsg != nil {
		next.ErrorMsg = *u.ErrorMsg
		eff.ErrorMsg = u.ErrorMsg
	}
	if u.Status != nil && *u.Status != cur.Status {
		next.Status = *u.Status
		eff.Status = u.Status
	}
	if next.Status.Terminal() && cur.EndTime == nil {
		end := t.now()
		if u.EndTime != nil {
			end = *u.EndTime
		}
		next.EndTime = &end
		eff.EndTime = &end
	}
	next.LastUpdated = t.now()
	*cur = next
	t.emit(next)

	var err error
	if !eff.Empty() && t.store != nil {
		if perr := t.store.UpsertScanProgress(ctx, id, eff); perr != nil {
			err = fmt.Errorf("persisting progress for scan %s: %w", id, perr)
		}
	}
	if next.Status.Terminal() {
		if _, running := t.scans[id]; running {
			delete(t.scans, id)
			t.done.Add(id, cur)
		}
	}
	return next, err
}

func (t *Tracker) emit(s models.Scan) {
	for _, fn := range t.listeners {
		fn(s)
	}
}

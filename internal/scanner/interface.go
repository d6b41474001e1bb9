package scanner

import (
	"context"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/CosmoTheDev/codesense/internal/ai"
	"github.com/CosmoTheDev/codesense/internal/findings"
	"github.com/CosmoTheDev/codesense/internal/metrics"
	"github.com/CosmoTheDev/codesense/internal/notify"
	"github.com/CosmoTheDev/codesense/internal/profiles"
	"github.com/CosmoTheDev/codesense/internal/progress"
	"github.com/CosmoTheDev/codesense/internal/store"
	"github.com/CosmoTheDev/codesense/models"
)

// Notifier receives scan lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, evt notify.Event)
}

// Deps are the collaborators a Runner is built from. Provider and Store are
// required.
type Deps struct {
	Provider ai.AIProvider
	Store    store.Store
	// Tracker defaults to a tracker persisting through Store.
	Tracker *progress.Tracker
	// FS defaults to the OS filesystem.
	FS       afero.Fs
	Throttle *Throttle
	Metrics  *metrics.Metrics
	Notifier Notifier
	// Preflight checks run before discovery; any error fails the scan.
	Preflight []func(ctx context.Context) error
}

// Options tunes the pipeline.
type Options struct {
	// MaxFileWorkers bounds how many files are scanned at once.
	MaxFileWorkers int
	Chunker        Chunker
	// ChunkBatchSize is the number of chunks handled as one unit of work.
	ChunkBatchSize int
	// ChunkConcurrency bounds how many batches of one file run at once.
	ChunkConcurrency int
	CacheEnabled     bool
	KeepRawOutputs   bool
	Locator          findings.LocatorOptions
	CreatedBy        string
}

// Pipeline defaults.
const (
	DefaultMaxFileWorkers   = 20
	DefaultChunkBatchSize   = 5
	DefaultChunkConcurrency = 4
)

// DefaultOptions returns the shipped pipeline settings.
func DefaultOptions() Options {
	return Options{
		MaxFileWorkers:   DefaultMaxFileWorkers,
		Chunker:          DefaultChunker(),
		ChunkBatchSize:   DefaultChunkBatchSize,
		ChunkConcurrency: DefaultChunkConcurrency,
		CacheEnabled:     true,
		Locator:          findings.DefaultLocatorOptions(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxFileWorkers <= 0 {
		o.MaxFileWorkers = d.MaxFileWorkers
	}
	if o.Chunker.Size <= 0 {
		o.Chunker.Size = d.Chunker.Size
	}
	if o.Chunker.Overlap < 0 {
		o.Chunker.Overlap = d.Chunker.Overlap
	}
	if o.Chunker.MinContent <= 0 {
		o.Chunker.MinContent = d.Chunker.MinContent
	}
	if o.ChunkBatchSize <= 0 {
		o.ChunkBatchSize = d.ChunkBatchSize
	}
	if o.ChunkConcurrency <= 0 {
		o.ChunkConcurrency = d.ChunkConcurrency
	}
	return o
}

// Request describes one scan to run.
type Request struct {
	Name        string
	Root        string
	TriggeredBy string
	// Slot scopes the single-flight guard; empty means DefaultSlot.
	Slot string
	// Profile, when set, replaces the prompt focus areas for the languages
	// it covers and filters findings below its severity floor.
	Profile *profiles.Profile
}

func (r Request) normalize() Request {
	if r.Slot == "" {
		r.Slot = DefaultSlot
	}
	if r.TriggeredBy == "" {
		r.TriggeredBy = "cli"
	}
	if r.Name == "" && r.Root != "" {
		r.Name = filepath.Base(filepath.Clean(r.Root))
	}
	return r
}

// Result is the outcome of a synchronous Run.
type Result struct {
	Scan        models.Scan
	Findings    []models.Finding
	FailedFiles []string
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/CosmoTheDev/codesense/internal/ai"
	"github.com/CosmoTheDev/codesense/internal/config"
	"github.com/CosmoTheDev/codesense/internal/database"
	"github.com/CosmoTheDev/codesense/internal/findings"
	"github.com/CosmoTheDev/codesense/internal/knowledge"
	"github.com/CosmoTheDev/codesense/internal/metrics"
	"github.com/CosmoTheDev/codesense/internal/notify"
	"github.com/CosmoTheDev/codesense/internal/repository"
	"github.com/CosmoTheDev/codesense/internal/scanner"
	"github.com/CosmoTheDev/codesense/internal/store"
)

// gitTokenEnv names the variable holding the token used for private clones.
const gitTokenEnv = "CODESENSE_GIT_TOKEN"

// service is the fully wired pipeline shared by the scan and gateway
// commands.
type service struct {
	cfg      *config.Config
	db       database.DB
	store    *store.SQLStore
	provider ai.AIProvider
	kb       *knowledge.Base
	metrics  *metrics.Metrics
	notifier *notify.Dispatcher
	runner   *scanner.Runner
	cloner   *repository.CloneManager
}

// newService opens the database, loads the knowledge index and builds the
// runner. A configured but missing knowledge index is fatal.
func newService(ctx context.Context, cfg *config.Config) (*service, error) {
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	st, err := store.New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	svc := &service{cfg: cfg, db: db, store: st, metrics: metrics.New()}

	provider, err := ai.New(cfg.AI)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("configuring inference provider: %w", err)
	}

	var preflight []func(context.Context) error
	if cfg.Knowledge.Path != "" {
		kb, err := knowledge.Open(cfg.Knowledge.Path, cfg.Knowledge.TopK, cfg.Knowledge.CacheSize)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("loading knowledge index: %w", err)
		}
		slog.Info("Knowledge index loaded", "path", cfg.Knowledge.Path, "entries", kb.Len())
		svc.kb = kb
		provider = ai.WithKnowledge(provider, kb)
		preflight = append(preflight, func(context.Context) error { return kb.Check() })
	} else {
		slog.Warn("No knowledge index configured; prompts are sent without reference material")
	}
	svc.provider = provider

	svc.notifier = notify.NewDispatcher(cfg.Notify)
	svc.notifier.OnFailure(svc.metrics.NotifyFailed)

	var throttle *scanner.Throttle
	if cfg.Scan.LoadThreshold > 0 {
		throttle = scanner.NewThrottle(scanner.HostSampler{Interval: cfg.Scan.LoadSampleInterval},
			cfg.Scan.LoadThreshold, cfg.Scan.ThrottlePause)
	}

	svc.runner = scanner.NewRunner(scanner.Deps{
		Provider:  provider,
		Store:     st,
		Throttle:  throttle,
		Metrics:   svc.metrics,
		Notifier:  svc.notifier,
		Preflight: preflight,
	}, runnerOptions(cfg))
	svc.cloner = repository.NewCloneManager(os.Getenv(gitTokenEnv))
	return svc, nil
}

func runnerOptions(cfg *config.Config) scanner.Options {
	return scanner.Options{
		MaxFileWorkers: cfg.Scan.MaxFileWorkers,
		Chunker: scanner.Chunker{
			Size:       cfg.Scan.ChunkSize,
			Overlap:    cfg.Scan.ChunkOverlap,
			MinContent: cfg.Scan.MinContentChars,
		},
		ChunkBatchSize:   cfg.Scan.ChunkBatchSize,
		ChunkConcurrency: cfg.Scan.ChunkConcurrency,
		CacheEnabled:     cfg.Scan.CacheEnabled,
		KeepRawOutputs:   cfg.Scan.KeepRawOutputs,
		Locator: findings.LocatorOptions{
			SimilarityThreshold:  cfg.Locator.SimilarityThreshold,
			WindowSlack:          cfg.Locator.WindowSlack,
			MaxFileLines:         cfg.Locator.MaxFileLines,
			MaxWindowComparisons: cfg.Locator.MaxWindowComparisons,
		},
		CreatedBy: "codesense",
	}
}

// Close waits for running scans and releases every resource.
func (s *service) Close() {
	if s.runner != nil {
		s.runner.Wait()
	}
	if s.notifier != nil {
		s.notifier.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("Closing database failed", "error", err)
		}
	}
}

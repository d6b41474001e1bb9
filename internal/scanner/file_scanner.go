package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/CosmoTheDev/codesense/internal/ai"
	"github.com/CosmoTheDev/codesense/internal/findings"
	"github.com/CosmoTheDev/codesense/internal/metrics"
	"github.com/CosmoTheDev/codesense/internal/profiles"
	"github.com/CosmoTheDev/codesense/internal/store"
	"github.com/CosmoTheDev/codesense/models"
)

// fileScanner runs the chunk → inference → extraction → location pipeline
// for single files of one scan.
type fileScanner struct {
	fs        afero.Fs
	root      string
	scanID    string
	provider  ai.AIProvider
	store     store.Store
	throttle  *Throttle
	metrics   *metrics.Metrics
	extractor *findings.Extractor
	locator   *findings.Locator
	profile   *profiles.Profile
	opts      Options
}

// chunkOutput is the inference answer for one chunk.
type chunkOutput struct {
	chunk  Chunk
	hash   string
	text   string
	cached bool
}

// scan processes one file. Per-chunk inference failures yield no findings
// for that chunk; any other failure, including a panic, fails the file.
func (s *fileScanner) scan(ctx context.Context, rel string) (out []models.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic scanning %s: %v", rel, r)
		}
	}()

	data, err := afero.ReadFile(s.fs, filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}
	content := string(data)
	chunks := s.opts.Chunker.Split(content)
	if len(chunks) == 0 {
		slog.Debug("Skipping file with too little content", "scan_id", s.scanID, "file", rel)
		return nil, nil
	}

	batchSize := max(1, s.opts.ChunkBatchSize)
	batches := make([][]Chunk, 0, (len(chunks)+batchSize-1)/batchSize)
	for i := 0; i < len(chunks); i += batchSize {
		batches = append(batches, chunks[i:min(i+batchSize, len(chunks))])
	}

	cache := newRetrievalCache(s.opts.CacheEnabled)
	results := make([][]findings.Draft, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.opts.ChunkConcurrency))
	for bi, batch := range batches {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic in chunk batch %d: %v", bi, r)
				}
			}()
			var drafts []findings.Draft
			for _, c := range batch {
				res, err := s.infer(gctx, cache, rel, c)
				if err != nil {
					return err
				}
				s.saveRaw(ctx, rel, res)
				drafts = append(drafts, s.extractor.Extract(res.text)...)
			}
			results[bi] = drafts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []findings.Draft
	for _, r := range results {
		all = append(all, r...)
	}
	unique := findings.Dedup(all)

	now := time.Now().UTC()
	meta := findings.Meta{ScanID: s.scanID, Path: rel, CreatedBy: s.opts.CreatedBy, Now: now}
	out = make([]models.Finding, 0, len(unique))
	for _, d := range unique {
		if !s.profile.Allows(d.Severity) {
			continue
		}
		loc := s.locator.Locate(content, d.RawSnippet)
		s.metrics.ObserveLocation(loc.Tier)
		out = append(out, findings.NewFinding(d, loc, meta))
	}
	return out, nil
}

// infer returns the inference answer for one chunk, consulting the file's
// cache first. Only context cancellation is returned as an error.
func (s *fileScanner) infer(ctx context.Context, cache *retrievalCache, rel string, c Chunk) (chunkOutput, error) {
	ext := extOf(rel)
	focus, ok := s.profile.FocusFor(ext)
	if !ok {
		focus = FocusAreas(ext)
	}
	prompt := BuildPromptWithFocus(c.Text, path.Base(rel), ext, focus)
	key := promptHash(prompt)
	if v, ok := cache.get(key); ok {
		s.metrics.CacheHit()
		return chunkOutput{chunk: c, hash: key, text: v, cached: true}, nil
	}
	if err := s.throttle.Wait(ctx); err != nil {
		return chunkOutput{}, fmt.Errorf("waiting for host load: %w", err)
	}

	start := time.Now()
	text, err := s.provider.Invoke(ai.WithRetrievalQuery(ctx, c.Text), prompt)
	s.metrics.ObserveInference(time.Since(start), err)
	if err != nil {
		if ctx.Err() != nil {
			return chunkOutput{}, ctx.Err()
		}
		slog.Warn("Inference failed for chunk", "scan_id", s.scanID, "file", rel, "chunk", c.Index, "error", err)
		return chunkOutput{chunk: c, hash: key}, nil
	}
	cache.put(key, text)
	return chunkOutput{chunk: c, hash: key, text: text}, nil
}

func (s *fileScanner) saveRaw(ctx context.Context, rel string, res chunkOutput) {
	if !s.opts.KeepRawOutputs || s.store == nil || res.cached || res.text == "" {
		return
	}
	raw := store.RawOutput{
		ScanID:     s.scanID,
		FilePath:   rel,
		ChunkIndex: res.chunk.Index,
		PromptHash: res.hash,
		Output:     res.text,
	}
	if err := s.store.SaveRawOutput(ctx, raw); err != nil {
		slog.Warn("Failed to persist raw inference output", "scan_id", s.scanID, "file", rel, "chunk", res.chunk.Index, "error", err)
	}
}

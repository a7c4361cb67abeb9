package visual

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"photo-library-finder/internal/db"
	"photo-library-finder/internal/observability"
	"photo-library-finder/internal/scanner"
	"photo-library-finder/internal/similarity"

	"github.com/google/uuid"
)

// ErrAnalysisInProgress is returned when Analyze is called while another
// analysis on the same Analyzer is still running.
var ErrAnalysisInProgress = errors.New("visual analysis already in progress")

// HashCache is the persistent store consulted before hashing.
type HashCache interface {
	FetchCachedHashes(ctx context.Context, paths []string) ([]db.CacheEntry, error)
	SaveCachedHashes(ctx context.Context, entries []db.CacheEntry) error
}

// Options for a single analysis.
type Options struct {
	Threshold float64
	BatchSize int
}

// Result summarises one analysis run.
type Result struct {
	RunID            string                       `json:"run_id"`
	Groups           []similarity.SimilarityGroup `json:"groups"`
	ProcessedFiles   int                          `json:"processed_files"`
	CachedFiles      int                          `json:"cached_files"`
	TotalComparisons int                          `json:"total_comparisons"`
	ProcessingTime   time.Duration                `json:"processing_time"`
}

// Analyzer orchestrates cache lookups and the worker's two phases.
type Analyzer struct {
	worker *Worker
	cache  HashCache
	Debug  bool

	mu         sync.Mutex
	processing bool
}

// NewAnalyzer wires a worker to an optional cache (nil disables caching).
func NewAnalyzer(worker *Worker, cache HashCache) *Analyzer {
	return &Analyzer{worker: worker, cache: cache}
}

// IsProcessing reports whether an analysis is running.
func (a *Analyzer) IsProcessing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processing
}

// Close stops the underlying worker.
func (a *Analyzer) Close() {
	a.worker.Close()
}

// Analyze hashes files (reusing valid cached hashes), groups similar ones and
// reports progress through onProgress. It fails fast with
// ErrAnalysisInProgress if another analysis is running.
func (a *Analyzer) Analyze(ctx context.Context, files []scanner.ImageRecord, opts Options, onProgress func(ProgressUpdate)) (*Result, error) {
	a.mu.Lock()
	if a.processing {
		a.mu.Unlock()
		return nil, ErrAnalysisInProgress
	}
	a.processing = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.processing = false
		a.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	observability.AnalysesInFlight.Inc()
	defer observability.AnalysesInFlight.Dec()

	start := time.Now()
	result := &Result{RunID: uuid.NewString()}

	cached, pending := a.splitCached(ctx, files)
	result.CachedFiles = len(cached)

	var fresh []similarity.PerceptualHash
	if len(pending) > 0 {
		phaseStart := time.Now()
		resp, err := a.roundTrip(ctx, NewProcessRequest(pending, opts.BatchSize), onProgress)
		if err != nil {
			return nil, err
		}
		fresh = resp.Hashes
		observability.AnalysisDuration.WithLabelValues(string(PhaseProcessing)).Observe(time.Since(phaseStart).Seconds())

		a.persist(ctx, fresh)
	}

	hashes := mergeInOrder(files, cached, fresh)
	result.ProcessedFiles = len(hashes)

	phaseStart := time.Now()
	resp, err := a.roundTrip(ctx, NewCompareRequest(hashes, opts.Threshold), onProgress)
	if err != nil {
		return nil, err
	}
	observability.AnalysisDuration.WithLabelValues(string(PhaseComparing)).Observe(time.Since(phaseStart).Seconds())

	result.Groups = resp.Groups
	result.TotalComparisons = resp.Comparisons
	result.ProcessingTime = time.Since(start)

	if a.Debug {
		log.Printf("[VISUAL] Run %s: %d hashes (%d cached), %d groups in %v",
			result.RunID, result.ProcessedFiles, result.CachedFiles, len(result.Groups), result.ProcessingTime)
	}
	return result, nil
}

// splitCached returns valid cached hashes by file ID and the files that still
// need hashing. Cache failures count as misses.
func (a *Analyzer) splitCached(ctx context.Context, files []scanner.ImageRecord) (map[string]similarity.PerceptualHash, []scanner.ImageRecord) {
	cached := make(map[string]similarity.PerceptualHash)
	if a.cache == nil || len(files) == 0 {
		return cached, files
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.AbsolutePath
	}

	entries, err := a.cache.FetchCachedHashes(ctx, paths)
	if err != nil {
		log.Printf("⚠️  Hash cache unavailable, recomputing: %v", err)
		observability.CacheLookups.WithLabelValues("error").Add(float64(len(files)))
		return cached, files
	}

	byPath := make(map[string]db.CacheEntry, len(entries))
	for _, e := range entries {
		byPath[e.AbsolutePath] = e
	}

	hashType := string(a.worker.HashType())
	var pending []scanner.ImageRecord
	for _, f := range files {
		e, ok := byPath[f.AbsolutePath]
		if ok && e.IsValid(f.Size, f.DateModified, hashType) {
			cached[f.ID] = similarity.PerceptualHash{
				FileID:       f.ID,
				Hash:         e.Hash,
				AbsolutePath: e.AbsolutePath,
				FileSize:     e.FileSize,
				DateModified: e.DateModified,
				HashType:     e.HashType,
				DateComputed: e.DateComputed,
			}
			observability.CacheLookups.WithLabelValues("hit").Inc()
			continue
		}
		observability.CacheLookups.WithLabelValues("miss").Inc()
		pending = append(pending, f)
	}
	return cached, pending
}

// persist writes new hashes back before the run completes. Failures are logged.
func (a *Analyzer) persist(ctx context.Context, hashes []similarity.PerceptualHash) {
	if a.cache == nil || len(hashes) == 0 {
		return
	}

	entries := make([]db.CacheEntry, len(hashes))
	for i, h := range hashes {
		entries[i] = db.CacheEntry{
			AbsolutePath: h.AbsolutePath,
			Hash:         h.Hash,
			FileSize:     h.FileSize,
			DateModified: h.DateModified,
			HashType:     h.HashType,
			DateComputed: h.DateComputed,
		}
	}
	if err := a.cache.SaveCachedHashes(ctx, entries); err != nil {
		log.Printf("⚠️  Failed to save %d hashes to cache: %v", len(entries), err)
	}
}

// mergeInOrder lays cached and fresh hashes out in the order of files so the
// comparison is deterministic for a given input.
func mergeInOrder(files []scanner.ImageRecord, cached map[string]similarity.PerceptualHash, fresh []similarity.PerceptualHash) []similarity.PerceptualHash {
	byID := make(map[string]similarity.PerceptualHash, len(cached)+len(fresh))
	for id, h := range cached {
		byID[id] = h
	}
	for _, h := range fresh {
		byID[h.FileID] = h
	}

	merged := make([]similarity.PerceptualHash, 0, len(byID))
	for _, f := range files {
		if h, ok := byID[f.ID]; ok {
			merged = append(merged, h)
		}
	}
	return merged
}

// roundTrip sends req and drains responses until the terminal one.
func (a *Analyzer) roundTrip(ctx context.Context, req Request, onProgress func(ProgressUpdate)) (Response, error) {
	ch, err := a.worker.Send(ctx, req)
	if err != nil {
		return Response{}, err
	}
	return collect(ctx, ch, onProgress)
}

// collect forwards progress and returns the terminal response. On a malformed
// response the rest of ch is drained in the background so the worker is never
// left blocked on a full channel.
func collect(ctx context.Context, ch <-chan Response, onProgress func(ProgressUpdate)) (Response, error) {
	for resp := range ch {
		if err := resp.Validate(); err != nil {
			go func() {
				for range ch {
				}
			}()
			return Response{}, err
		}
		switch resp.Type {
		case Progress:
			if onProgress != nil {
				onProgress(*resp.Progress)
			}
		case Error:
			return Response{}, fmt.Errorf("%w: %s", ErrWorkerFailed, resp.Err)
		default:
			return resp, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	return Response{}, ErrWorkerClosed
}

package visual

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"photo-library-finder/internal/observability"
	"photo-library-finder/internal/phash"
	"photo-library-finder/internal/scanner"
	"photo-library-finder/internal/similarity"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize   = 50
	DefaultItemTimeout = 30 * time.Second
)

var (
	ErrWorkerClosed = errors.New("visual worker closed")
	ErrWorkerFailed = errors.New("visual worker failed")
)

// WorkerOptions configures hashing in the background worker.
type WorkerOptions struct {
	HashType    phash.HashType
	ItemTimeout time.Duration
	Debug       bool
}

type envelope struct {
	ctx context.Context
	req Request
	out chan Response
}

// Worker runs hashing and comparison requests one at a time on its own
// goroutine and streams responses back over a channel per request.
type Worker struct {
	fs       afero.Fs
	opts     WorkerOptions
	requests chan envelope
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

// NewWorker starts a worker reading thumbnails from fs.
func NewWorker(fs afero.Fs, opts WorkerOptions) *Worker {
	if opts.HashType == "" {
		opts.HashType = phash.PHash
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = DefaultItemTimeout
	}

	w := &Worker{
		fs:       fs,
		opts:     opts,
		requests: make(chan envelope),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.run()
	return w
}

// HashType is the algorithm this worker computes.
func (w *Worker) HashType() phash.HashType {
	return w.opts.HashType
}

// Send validates req and hands it to the worker. The returned channel yields
// zero or more PROGRESS responses followed by exactly one terminal response,
// then closes. It may close early if ctx is cancelled or the worker stops.
func (w *Worker) Send(ctx context.Context, req Request) (<-chan Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	out := make(chan Response, 8)
	select {
	case w.requests <- envelope{ctx: ctx, req: req, out: out}:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.done:
		return nil, ErrWorkerClosed
	}
}

// Close stops the worker after the request in progress, if any, returns.
func (w *Worker) Close() {
	w.once.Do(func() { close(w.done) })
	<-w.stopped
}

func (w *Worker) run() {
	defer close(w.stopped)
	for {
		select {
		case env := <-w.requests:
			w.handle(env)
		case <-w.done:
			return
		}
	}
}

func (w *Worker) handle(env envelope) {
	defer close(env.out)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 CRITICAL RECOVERY: Visual worker recovered from panic: %v", r)
			w.emit(env, errorResponse(fmt.Errorf("panic: %v", r)))
		}
	}()

	var resp Response
	var err error
	switch env.req.Type {
	case ProcessThumbnails:
		resp, err = w.processThumbnails(env)
	case CompareHashes:
		resp, err = w.compareHashes(env)
	}
	if err != nil {
		resp = errorResponse(err)
	}
	w.emit(env, resp)
}

// emit delivers resp unless the requester has gone away.
func (w *Worker) emit(env envelope, resp Response) bool {
	select {
	case env.out <- resp:
		return true
	case <-env.ctx.Done():
		return false
	case <-w.done:
		return false
	}
}

func (w *Worker) processThumbnails(env envelope) (Response, error) {
	ctx := env.ctx
	files := env.req.Process.Files
	batchSize := env.req.Process.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	total := len(files)
	hashes := make([]similarity.PerceptualHash, 0, total)
	processed := 0

	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return Response{}, err
		}

		batch := files[start:min(start+batchSize, total)]
		results := make([]*similarity.PerceptualHash, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, f := range batch {
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("panic hashing %s: %v", f.Name, r)
					}
				}()
				results[i] = w.hashOne(gctx, f)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Response{}, err
		}

		for _, h := range results {
			if h != nil {
				hashes = append(hashes, *h)
			}
		}
		processed += len(batch)

		w.emit(env, progressResponse(ProgressUpdate{
			Phase:     PhaseProcessing,
			Progress:  float64(processed) / float64(total) * 100,
			Processed: processed,
			Total:     total,
			Found:     len(hashes),
		}))
	}

	if w.opts.Debug {
		log.Printf("[VISUAL] Hashed %d of %d files", len(hashes), total)
	}
	return Response{Type: ThumbnailsComplete, Hashes: hashes}, nil
}

type hashResult struct {
	hash string
	err  error
}

// hashOne returns nil for any skippable failure: unsupported format, missing
// thumbnail, decode error or timeout.
func (w *Worker) hashOne(ctx context.Context, f scanner.ImageRecord) *similarity.PerceptualHash {
	ictx, cancel := context.WithTimeout(ctx, w.opts.ItemTimeout)
	defer cancel()

	ch := make(chan hashResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- hashResult{err: fmt.Errorf("decoder panic: %v", r)}
			}
		}()
		data, err := loadThumbnail(w.fs, f)
		if err != nil {
			ch <- hashResult{err: err}
			return
		}
		h, err := phash.FromBytes(data, w.opts.HashType)
		ch <- hashResult{hash: h, err: err}
	}()

	var res hashResult
	select {
	case res = <-ch:
	case <-ictx.Done():
		res.err = fmt.Errorf("%w: %s", ErrItemTimeout, f.Name)
	}

	if res.err != nil {
		observability.ItemsSkipped.WithLabelValues(skipReason(res.err)).Inc()
		if w.opts.Debug {
			log.Printf("[VISUAL] Skipped %s: %v", f.Name, res.err)
		}
		return nil
	}

	observability.HashesComputed.WithLabelValues(string(w.opts.HashType)).Inc()
	return &similarity.PerceptualHash{
		FileID:       f.ID,
		Hash:         res.hash,
		AbsolutePath: f.AbsolutePath,
		FileSize:     f.Size,
		DateModified: f.DateModified,
		HashType:     string(w.opts.HashType),
		DateComputed: time.Now(),
	}
}

func (w *Worker) compareHashes(env envelope) (Response, error) {
	req := env.req.Compare

	groups, comparisons, err := similarity.GroupSimilarContext(env.ctx, req.Hashes, req.Threshold, func(done, total int) {
		pct := 100.0
		if total > 0 {
			pct = float64(done) / float64(total) * 100
		}
		w.emit(env, progressResponse(ProgressUpdate{
			Phase:     PhaseComparing,
			Progress:  pct,
			Processed: done,
			Total:     total,
		}))
	})
	if err != nil {
		return Response{}, err
	}

	observability.Comparisons.Add(float64(comparisons))
	if w.opts.Debug {
		log.Printf("[VISUAL] %d comparisons, %d groups", comparisons, len(groups))
	}
	return Response{Type: ComparisonComplete, Groups: groups, Comparisons: comparisons}, nil
}

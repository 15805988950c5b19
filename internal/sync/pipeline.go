package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/nucleus/ingest-core/internal/graph"
)

const (
	// DefaultFileBatchSize and DefaultMessageBatchSize bound how many
	// buffered tuples commit as one unit.
	DefaultFileBatchSize    = 100
	DefaultMessageBatchSize = 50

	defaultMaxRetries = 3
	defaultBackoff    = time.Second
)

// Pipeline buffers (record, permissions) tuples and commits them in fixed
// size batches. Contention is retried with exponential backoff up to a small
// bound; fatal failures surface to the orchestrator, which aborts the
// resource. The committed watermark only moves past durably committed items,
// so a crash before commit is reprocessable, never silently lossy.
type Pipeline struct {
	store      graph.Store
	size       int
	maxRetries int
	backoff    time.Duration
	log        *slog.Logger

	// sleep is injectable for tests; defaults to a context-aware wait.
	sleep func(ctx context.Context, d time.Duration) error

	buf       []graph.Upsert
	pending   time.Time // max source-modified time of buffered items
	committed time.Time // max source-modified time of committed items
	commits   int
}

// NewPipeline creates a pipeline committing into store in batches of size.
func NewPipeline(store graph.Store, size int, log *slog.Logger) *Pipeline {
	if size <= 0 {
		size = DefaultFileBatchSize
	}
	return &Pipeline{
		store:      store,
		size:       size,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		log:        log,
		sleep:      sleepCtx,
		buf:        make([]graph.Upsert, 0, size),
	}
}

// Add buffers one tuple, flushing when the buffer reaches the batch size.
func (p *Pipeline) Add(ctx context.Context, u graph.Upsert) error {
	p.buf = append(p.buf, u)
	if ts := u.Record.SourceModifiedAt; ts.After(p.pending) {
		p.pending = ts
	}
	if len(p.buf) >= p.size {
		return p.Flush(ctx)
	}
	return nil
}

// Flush commits the buffered remainder as one unit.
func (p *Pipeline) Flush(ctx context.Context) error {
	if len(p.buf) == 0 {
		return nil
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = p.store.BatchUpsert(ctx, p.buf)
		if err == nil {
			break
		}
		if !graph.IsContention(err) || attempt >= p.maxRetries {
			return err
		}
		wait := p.backoff << uint(attempt)
		p.log.Warn("batch commit contention, retrying",
			"attempt", attempt+1, "backoff", wait, "batch", len(p.buf))
		if serr := p.sleep(ctx, wait); serr != nil {
			return serr
		}
	}

	p.commits++
	if p.pending.After(p.committed) {
		p.committed = p.pending
	}
	p.buf = p.buf[:0]
	p.pending = time.Time{}
	return nil
}

// CommittedWatermark returns the max source-modified time among durably
// committed items. Zero until the first commit.
func (p *Pipeline) CommittedWatermark() time.Time { return p.committed }

// Commits returns the number of successful batch commits.
func (p *Pipeline) Commits() int { return p.commits }

// Buffered returns the number of tuples awaiting commit.
func (p *Pipeline) Buffered() int { return len(p.buf) }

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

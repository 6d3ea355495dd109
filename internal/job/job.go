// Package job turns an upload into a finished report. The web app and the
// CLI both go through it.
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/phillip-england/desglose/internal/breakdown"
	"github.com/phillip-england/desglose/internal/cache"
	"github.com/phillip-england/desglose/internal/ledger"
	"github.com/phillip-england/desglose/internal/report"
	"github.com/phillip-england/desglose/internal/sheet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, run ledger.Run) (ledger.Run, error)
}

type Output struct {
	RunID    string
	Filename string
	Report   []byte
	Result   *breakdown.Result
	// Cached is set when the output was served from an earlier identical run.
	Cached bool
}

type Runner struct {
	Policy breakdown.Policy
	Cache  *cache.Cache[*Output]
	Ledger Recorder
	Logger *zap.Logger
}

// Run processes one upload end to end. An upload already seen under the
// same policy is answered from the cache and not recorded again.
func (r *Runner) Run(ctx context.Context, filename string, data []byte) (*Output, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fingerprint := r.Policy.Fingerprint()
	key := cache.Key(data, fingerprint)
	if hit, ok := r.Cache.Get(key); ok {
		hits, misses := r.Cache.Counters()
		logger.Info("report served from cache",
			zap.String("file", filename),
			zap.String("run_id", hit.RunID),
			zap.Uint64("cache_hits", hits),
			zap.Uint64("cache_misses", misses))
		out := *hit
		out.Filename = filename
		out.Cached = true
		return &out, nil
	}

	started := time.Now()
	raw, err := sheet.Read(data, filename)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	res, err := breakdown.NewProcessor(r.Policy, logger.With(zap.String("file", filename))).Process(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	rendered, err := report.Render(res)
	if err != nil {
		return nil, fmt.Errorf("%s: render report: %w", filename, err)
	}

	out := &Output{Filename: filename, Report: rendered, Result: res}
	if r.Ledger != nil {
		run, err := r.Ledger.Record(ctx, ledger.Run{
			Filename:  filename,
			UploadKey: key,
			Policy:    fingerprint,
			Stats:     res.Stats,
			Excess:    res.Excess,
		})
		if err != nil {
			return nil, err
		}
		out.RunID = run.ID
	}
	r.Cache.Add(key, out)

	logger.Info("report built",
		zap.String("file", filename),
		zap.String("run_id", out.RunID),
		zap.Int("rows", res.Stats.EmittedRows),
		zap.Int("excess", len(res.Excess)),
		zap.Duration("elapsed", time.Since(started)))
	return out, nil
}

type Input struct {
	Filename string
	Data     []byte
}

// Item is the outcome of one batch input; exactly one of Output and Err is set.
type Item struct {
	Input  Input
	Output *Output
	Err    error
}

// RunAll processes inputs with at most jobs running at once. A failing input
// does not stop the others; items come back in input order.
func (r *Runner) RunAll(ctx context.Context, inputs []Input, jobs int) []Item {
	if jobs <= 0 {
		jobs = 1
	}
	items := make([]Item, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			out, err := r.Run(gctx, in.Filename, in.Data)
			items[i] = Item{Input: in, Output: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

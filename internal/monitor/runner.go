package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"endpointwatch/internal/domain"
	"endpointwatch/internal/store"
)

// Prober runs the composed health check for one target URL.
type Prober interface {
	Probe(ctx context.Context, url string) (domain.CheckResult, error)
}

// Runner fans one check cycle out over the active endpoint set. Checks are
// independent: one endpoint failing, or one record failing to persist, never
// aborts the rest of the batch. Each cycle is idempotent because record IDs
// derive from (endpoint, start time).
type Runner struct {
	Log         *zap.Logger
	Endpoints   store.EndpointStore
	Telemetry   store.TelemetryStore
	Prober      Prober
	Timeout     time.Duration
	Concurrency int64
}

func NewRunner(log *zap.Logger, eps store.EndpointStore, tel store.TelemetryStore, prober Prober, timeout time.Duration, concurrency int64) *Runner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		Log:         log,
		Endpoints:   eps,
		Telemetry:   tel,
		Prober:      prober,
		Timeout:     timeout,
		Concurrency: concurrency,
	}
}

// RunCycle checks every active endpoint once and appends one record per
// endpoint. Cancelling ctx abandons checks still in flight; a record is only
// written once fully assembled.
func (r *Runner) RunCycle(ctx context.Context) (domain.CycleSummary, error) {
	endpoints, err := r.Endpoints.ListActive(ctx)
	if err != nil {
		return domain.CycleSummary{}, fmt.Errorf("list active endpoints: %w", err)
	}

	sem := semaphore.NewWeighted(r.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var summary domain.CycleSummary

	for _, ep := range endpoints {
		ep := ep
		if err := sem.Acquire(ctx, 1); err != nil {
			// batch cancelled; endpoints not yet started are skipped
			break
		}
		wg.Add(1)
		go func() {
			defer sem.Release(1)
			defer wg.Done()

			startedAt := time.Now().UTC()
			cctx, cancel := context.WithTimeout(ctx, r.Timeout)
			defer cancel()

			res, perr := r.Prober.Probe(cctx, ep.URL)
			if perr != nil {
				// malformed target; still worth a down record
				res = domain.CheckResult{Error: perr.Error()}
			}
			if ctx.Err() != nil {
				// abandoned mid-flight: no partial write
				return
			}

			rec := &domain.LogRecord{
				LogID:       domain.NewLogID(ep.ID, startedAt),
				EndpointID:  ep.ID,
				OwnerID:     ep.OwnerID,
				Timestamp:   startedAt,
				CheckResult: res,
			}
			if err := r.Telemetry.Append(ctx, rec); err != nil {
				r.Log.Warn("append_error",
					zap.String("endpoint_id", string(ep.ID)),
					zap.String("url", ep.URL),
					zap.Error(err),
				)
			}

			mu.Lock()
			summary.Checked++
			if res.Up {
				summary.Up++
			} else {
				summary.Down++
			}
			mu.Unlock()

			r.Log.Debug("endpoint_checked",
				zap.String("endpoint_id", string(ep.ID)),
				zap.String("url", ep.URL),
				zap.Bool("up", res.Up),
			)
		}()
	}

	wg.Wait()

	r.Log.Info("cycle_done",
		zap.Int("checked", summary.Checked),
		zap.Int("up", summary.Up),
		zap.Int("down", summary.Down),
	)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

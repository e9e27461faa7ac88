// Package fanout runs one stage across every fleet host with a bounded
// worker pool. One bad host never stops the rest of the fleet.
package fanout

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"github.com/superbench/sbfleet/pkg/entity"
)

// Policy decides whether per-host failures count against the stage.
type Policy string

const (
	// Required failures mark the whole stage failed (the run still visits
	// every host and exits non-zero at the end).
	Required Policy = "required"
	// BestEffort failures are recorded but do not fail the stage. Used for
	// optional steps like registry login.
	BestEffort Policy = "best-effort"
)

// StageFn is one unit of work applied uniformly to a host. It must run to
// completion for its host; the worker is released only when it returns.
type StageFn func(ctx context.Context, host entity.Host) (string, error)

type Results []entity.StageResult

func (r Results) Get(host entity.Host) (entity.StageResult, bool) {
	return lo.Find(r, func(res entity.StageResult) bool {
		return res.Host.ID() == host.ID()
	})
}

func (r Results) Failed() []entity.StageResult {
	return lo.Filter(r, func(res entity.StageResult, _ int) bool {
		return !res.OK
	})
}

func (r Results) Succeeded() []entity.StageResult {
	return lo.Filter(r, func(res entity.StageResult, _ int) bool {
		return res.OK
	})
}

// Outcome is the fleet-level result of one stage.
type Outcome struct {
	Name        string
	Policy      Policy
	Results     Results
	StageFailed bool
}

type indexedHost struct {
	index int
	host  entity.Host
}

// Run executes stage for every host with at most limit workers in flight.
// Every host gets exactly one StageResult, in input order regardless of
// completion order. Hosts are never cancelled mid-flight because a sibling
// failed; best-effort coverage beats fast-fail for a one-shot bootstrap.
func Run(ctx context.Context, name string, hosts []entity.Host, limit int, policy Policy, stage StageFn) Outcome {
	if limit <= 0 || limit > len(hosts) {
		limit = len(hosts)
	}

	results := make(Results, len(hosts))
	queue := make(chan indexedHost)

	var wg sync.WaitGroup
	for i := 0; i < limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				output, err := stage(ctx, job.host)
				results[job.index] = entity.StageResult{
					Host:   job.host,
					OK:     err == nil,
					Output: output,
					Err:    err,
				}
			}
		}()
	}

	for i, host := range hosts {
		queue <- indexedHost{index: i, host: host}
	}
	close(queue)
	wg.Wait()

	failed := len(results.Failed()) > 0 && policy == Required
	return Outcome{Name: name, Policy: policy, Results: results, StageFailed: failed}
}

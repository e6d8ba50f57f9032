package policy

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dantte-lp/ribd/internal/addrfamily"
	"github.com/dantte-lp/ribd/internal/task"
)

// Job is one unit of work handed to the evaluator's worker pool
// (spec.md section 4.6, import-pipeline step 3: "hand (prefix,
// policy-info) batches to a policy worker with [a] snapshot and a
// default-policy kind").
type Job struct {
	Prefix addrfamily.Prefix
	Info   RoutePolicyInfo
}

// Result is a Job's outcome, delivered on the evaluator's unbounded
// results channel (step 5: "worker replies on an unbounded channel").
type Result struct {
	Prefix  addrfamily.Prefix
	Verdict Verdict
}

// Evaluator is a fixed-size pool of policy workers that evaluate
// (prefix, info) jobs against a shared, atomically-swappable policy
// and match-set snapshot. It is grounded on the same channel-fan-in
// idiom internal/instance's harness uses for its northbound/southbound
// inputs: a small number of long-lived goroutines draining typed
// channels, supervised by task.Task.
type Evaluator struct {
	workers int
	logger  *slog.Logger

	jobs chan Job

	mu     sync.RWMutex
	policy *Policy
	sets   *MatchSets

	resultsIn  chan Result
	resultsOut chan Result

	pump *task.Task
	pool []*task.Task
}

// NewEvaluator constructs an Evaluator with the given worker count
// (typically runtime.GOMAXPROCS(0), chosen by the caller) evaluating
// the given initial policy and match-set snapshot.
func NewEvaluator(workers int, policy *Policy, sets *MatchSets, logger *slog.Logger) *Evaluator {
	if workers < 1 {
		workers = 1
	}
	if sets == nil {
		sets = NewMatchSets()
	}
	return &Evaluator{
		workers:    workers,
		logger:     logger,
		jobs:       make(chan Job, workers*4),
		policy:     policy,
		sets:       sets,
		resultsIn:  make(chan Result, workers*4),
		resultsOut: make(chan Result),
	}
}

// SetPolicy installs a new policy/match-set snapshot atomically; jobs
// submitted afterward are evaluated against it (spec.md section 3:
// "updates install a new snapshot; in-flight evaluations finish
// against the snapshot they started with").
func (e *Evaluator) SetPolicy(policy *Policy, sets *MatchSets) {
	if sets == nil {
		sets = NewMatchSets()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = policy
	e.sets = sets
}

func (e *Evaluator) snapshot() (*Policy, *MatchSets) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy, e.sets
}

// Start launches the worker pool and the unbounded-results pump; it
// returns once every worker goroutine and the pump are running.
// Workers and the pump are cancelled when ctx is cancelled. Both run
// under task.Supervised so a panic evaluating one malformed job
// restarts the worker instead of taking down the pool.
func (e *Evaluator) Start(ctx context.Context) {
	e.pump = task.Supervised(ctx, e.logger, "policy-results-pump", e.runPump)
	e.pool = make([]*task.Task, e.workers)
	for i := range e.pool {
		e.pool[i] = task.Supervised(ctx, e.logger, "policy-worker", e.runWorker)
	}
}

// Submit enqueues a job for evaluation. It blocks if every worker is
// busy and the job queue is full; callers on the single-threaded
// instance event loop should size batches accordingly rather than
// block indefinitely.
func (e *Evaluator) Submit(ctx context.Context, job Job) bool {
	select {
	case e.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

// Results returns the channel evaluated jobs are delivered on. Unlike
// Submit, sends into this channel never block a worker — runPump
// buffers results in an unbounded in-memory queue so a slow consumer
// cannot stall policy evaluation.
func (e *Evaluator) Results() <-chan Result {
	return e.resultsOut
}

func (e *Evaluator) runWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-e.jobs:
			if !ok {
				return nil
			}
			pol, sets := e.snapshot()
			verdict := Evaluate(pol, sets, job.Prefix, job.Info)
			result := Result{Prefix: job.Prefix, Verdict: verdict}
			select {
			case e.resultsIn <- result:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// runPump implements the "unbounded channel" the spec calls for: it
// drains resultsIn as fast as workers produce and holds anything the
// consumer hasn't read yet in a growable slice, so a slow reader on
// resultsOut never backs up a worker mid-evaluation.
func (e *Evaluator) runPump(ctx context.Context) error {
	var pending []Result

	for {
		if len(pending) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case r := <-e.resultsIn:
				pending = append(pending, r)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case r := <-e.resultsIn:
			pending = append(pending, r)
		case e.resultsOut <- pending[0]:
			pending = pending[1:]
		}
	}
}

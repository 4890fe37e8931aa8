package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/UCKETX/mcsm-templates/internal/adapter"
	"github.com/UCKETX/mcsm-templates/internal/record"
	"github.com/UCKETX/mcsm-templates/internal/store"
)

// Merger merges one group of records into its core table.
// *store.Catalog and *store.Store implement it.
type Merger interface {
	Upsert(ctx context.Context, coreType, mcVersion string, records []record.BuildRecord) (store.MergeResult, error)
}

// Retainer trims the core tables of one core type.
type Retainer interface {
	Retention(ctx context.Context, coreType string, keep int) (store.RetentionResult, error)
}

const (
	defaultAdapterConcurrency = 8
	defaultMergeConcurrency   = 4
)

// Coordinator drives adapters and routes their output into a Merger.
//
// Merges for the same (core_type, mc_version) pair are serialized through a
// per-pair lane: a FIFO queue drained by a single goroutine, so at most one
// Upsert per table is in flight. Lanes for different pairs run in parallel,
// bounded by the merge concurrency cap.
//
// Thread-safety: Coordinator is safe for concurrent use.
type Coordinator struct {
	merger   Merger
	adapters *adapter.Registry
	logger   *slog.Logger

	adapterConcurrency int
	mergeConcurrency   int
	mergeSem           *semaphore.Weighted

	retainer     Retainer
	retentionCap int

	now    func() time.Time
	runIDs RunIDGenerator
	jobs   *Clock

	mu    sync.Mutex
	lanes map[laneKey]*mergeQueue
}

type laneKey struct {
	coreType  string
	mcVersion string
}

type mergeJob struct {
	seq       int64
	ctx       context.Context
	coreType  string
	mcVersion string
	records   []record.BuildRecord
	done      chan MergeOutcome
}

// MergeOutcome is the result of one routed merge job.
type MergeOutcome struct {
	Seq       int64
	CoreType  string
	MCVersion string
	Result    store.MergeResult
	Err       error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAdapterConcurrency caps how many adapters fetch at once.
func WithAdapterConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.adapterConcurrency = n
		}
	}
}

// WithMergeConcurrency caps how many merges run at once across all tables.
func WithMergeConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.mergeConcurrency = n
		}
	}
}

// WithRetention enables a retention pass with the given cap after each Run.
func WithRetention(keep int, r Retainer) Option {
	return func(c *Coordinator) {
		c.retentionCap = keep
		c.retainer = r
	}
}

// WithClock sets the wall clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRunIDGenerator sets the run ID generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(c *Coordinator) {
		if g != nil {
			c.runIDs = g
		}
	}
}

// New creates a Coordinator that merges into m and runs the adapters in reg.
func New(m Merger, reg *adapter.Registry, opts ...Option) *Coordinator {
	if reg == nil {
		reg = adapter.NewRegistry()
	}
	c := &Coordinator{
		merger:             m,
		adapters:           reg,
		logger:             slog.Default(),
		adapterConcurrency: defaultAdapterConcurrency,
		mergeConcurrency:   defaultMergeConcurrency,
		retentionCap:       store.DefaultRetentionCap,
		now:                time.Now,
		runIDs:             UUIDv7Generator{},
		jobs:               NewClock(),
		lanes:              make(map[laneKey]*mergeQueue),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.mergeSem = semaphore.NewWeighted(int64(c.mergeConcurrency))
	return c
}

// SubmitReport summarizes one Submit call.
type SubmitReport struct {
	CoreType string              `json:"core_type" yaml:"core_type"`
	Records  int                 `json:"records" yaml:"records"`
	Results  []store.MergeResult `json:"results" yaml:"results"`
	Failures []*MergeFailure     `json:"-" yaml:"-"`
	// Abandoned lists mc_versions whose merge never started.
	Abandoned []string `json:"abandoned,omitempty" yaml:"abandoned,omitempty"`
}

// Submit routes each mc_version group to its lane and waits until every
// group has been merged, failed, or been abandoned. Each group is merged
// exactly once per call.
func (c *Coordinator) Submit(ctx context.Context, coreType string, groups map[string][]record.BuildRecord) SubmitReport {
	report := SubmitReport{CoreType: coreType}

	jobs := make([]*mergeJob, 0, len(groups))
	for _, mc := range slices.Sorted(maps.Keys(groups)) {
		job := &mergeJob{
			seq:       c.jobs.Next(),
			ctx:       ctx,
			coreType:  coreType,
			mcVersion: mc,
			records:   groups[mc],
			done:      make(chan MergeOutcome, 1),
		}
		report.Records += len(job.records)
		c.enqueue(job)
		jobs = append(jobs, job)
	}

	// Every job is answered by its lane, abandoned ones included.
	for _, job := range jobs {
		out := <-job.done
		switch {
		case errors.Is(out.Err, ErrAbandoned):
			report.Abandoned = append(report.Abandoned, out.MCVersion)
		case out.Err != nil:
			var mf *MergeFailure
			if !errors.As(out.Err, &mf) {
				mf = &MergeFailure{CoreType: out.CoreType, MCVersion: out.MCVersion, Err: out.Err}
			}
			report.Failures = append(report.Failures, mf)
		default:
			report.Results = append(report.Results, out.Result)
		}
	}
	return report
}

// enqueue appends job to its lane, starting a drain goroutine if the lane
// is idle. Lane creation and removal both happen under c.mu, so a job is
// never left in a lane nobody drains.
func (c *Coordinator) enqueue(job *mergeJob) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := laneKey{coreType: job.coreType, mcVersion: job.mcVersion}
	q, ok := c.lanes[key]
	if !ok {
		q = newMergeQueue()
		c.lanes[key] = q
		go c.drain(key, q)
	}
	q.Enqueue(job)
}

// drain merges jobs from q one at a time and retires the lane once empty.
func (c *Coordinator) drain(key laneKey, q *mergeQueue) {
	for {
		job, ok := q.TryDequeue()
		if !ok {
			c.mu.Lock()
			if q.Len() == 0 {
				q.Close()
				delete(c.lanes, key)
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
			continue
		}
		c.merge(job)
	}
}

// activeLanes returns the number of lanes with a running drain goroutine.
func (c *Coordinator) activeLanes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lanes)
}

func (c *Coordinator) merge(job *mergeJob) {
	out := MergeOutcome{Seq: job.seq, CoreType: job.coreType, MCVersion: job.mcVersion}
	defer func() { job.done <- out }()

	logger := c.logger.With("core_type", job.coreType, "mc_version", job.mcVersion, "job", job.seq)

	if err := job.ctx.Err(); err != nil {
		logger.Debug("merge abandoned", "error", err)
		out.Err = fmt.Errorf("%w: %w", ErrAbandoned, err)
		return
	}
	if err := c.mergeSem.Acquire(job.ctx, 1); err != nil {
		logger.Debug("merge abandoned waiting for slot", "error", err)
		out.Err = fmt.Errorf("%w: %w", ErrAbandoned, err)
		return
	}
	defer c.mergeSem.Release(1)

	start := time.Now()
	out.Result, out.Err = c.upsert(job)
	if out.Err != nil {
		logger.Error("merge failed", "error", out.Err)
		return
	}
	for _, rej := range out.Result.Rejected {
		logger.Warn("record rejected", "field", rej.Field, "code", rej.Code, "error", rej.Message)
	}
	logger.Info("merged",
		"inserted", out.Result.Inserted,
		"updated", out.Result.Updated,
		"total", out.Result.Total,
		"dropped", out.Result.Dropped,
		"duration_ms", time.Since(start).Milliseconds())
}

// upsert calls the merger, converting errors and panics to *MergeFailure.
func (c *Coordinator) upsert(job *mergeJob) (res store.MergeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &MergeFailure{
				CoreType:  job.coreType,
				MCVersion: job.mcVersion,
				Err:       fmt.Errorf("panic: %v", r),
				Panic:     r,
			}
		}
	}()

	res, err = c.merger.Upsert(job.ctx, job.coreType, job.mcVersion, job.records)
	if err != nil {
		return res, &MergeFailure{CoreType: job.coreType, MCVersion: job.mcVersion, Err: err}
	}
	return res, nil
}

// AdapterReport summarizes one adapter within a run.
type AdapterReport struct {
	Adapter  string          `json:"adapter" yaml:"adapter"`
	Batches  int             `json:"batches" yaml:"batches"`
	Records  int             `json:"records" yaml:"records"`
	Skipped  bool            `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Duration time.Duration   `json:"duration" yaml:"duration"`
	Submits  []SubmitReport  `json:"submits,omitempty" yaml:"submits,omitempty"`
	Failure  *AdapterFailure `json:"-" yaml:"-"`
}

// RunReport summarizes one sync run.
type RunReport struct {
	RunID      string                  `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time               `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time               `json:"finished_at" yaml:"finished_at"`
	Adapters   []AdapterReport         `json:"adapters" yaml:"adapters"`
	Failures   []*AdapterFailure       `json:"-" yaml:"-"`
	Merges     []*MergeFailure         `json:"-" yaml:"-"`
	Retention  []store.RetentionResult `json:"retention,omitempty" yaml:"retention,omitempty"`
	// RetentionErrors holds retention passes that failed, by core type.
	RetentionErrors map[string]error `json:"-" yaml:"-"`
}

// Err joins every failure recorded in the run, or returns nil.
func (r RunReport) Err() error {
	var errs []error
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	for _, f := range r.Merges {
		errs = append(errs, f)
	}
	for _, ct := range slices.Sorted(maps.Keys(r.RetentionErrors)) {
		errs = append(errs, fmt.Errorf("retention %s: %w", ct, r.RetentionErrors[ct]))
	}
	return errors.Join(errs...)
}

// Run fetches from every registered adapter concurrently and merges what
// they return. An adapter that errors or panics is recorded in the report
// and does not affect the others. Adapters not yet started when ctx ends are
// skipped. When retention is enabled it runs once all adapters are done.
func (c *Coordinator) Run(ctx context.Context) RunReport {
	report := RunReport{
		RunID:     c.runIDs.Generate(),
		StartedAt: c.now(),
	}
	logger := c.logger.With("run_id", report.RunID)

	adapters := c.adapters.Adapters()
	logger.Info("sync run started", "adapters", len(adapters))

	report.Adapters = make([]AdapterReport, len(adapters))
	var g errgroup.Group
	g.SetLimit(c.adapterConcurrency)
	for i, a := range adapters {
		g.Go(func() error {
			report.Adapters[i] = c.runAdapter(ctx, logger, a)
			return nil
		})
	}
	_ = g.Wait()

	var coreTypes []string
	for _, ar := range report.Adapters {
		if ar.Failure != nil {
			report.Failures = append(report.Failures, ar.Failure)
		}
		for _, sub := range ar.Submits {
			report.Merges = append(report.Merges, sub.Failures...)
			if !slices.Contains(coreTypes, sub.CoreType) {
				coreTypes = append(coreTypes, sub.CoreType)
			}
		}
	}

	if c.retainer != nil {
		slices.Sort(coreTypes)
		c.runRetention(ctx, logger, coreTypes, &report)
	}

	report.FinishedAt = c.now()
	logger.Info("sync run finished",
		"adapter_failures", len(report.Failures),
		"merge_failures", len(report.Merges),
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report
}

func (c *Coordinator) runAdapter(ctx context.Context, logger *slog.Logger, a adapter.Adapter) (rep AdapterReport) {
	rep.Adapter = a.Name()
	logger = logger.With("adapter", rep.Adapter)

	if err := ctx.Err(); err != nil {
		rep.Skipped = true
		logger.Debug("adapter skipped", "error", err)
		return rep
	}

	start := time.Now()
	defer func() { rep.Duration = time.Since(start) }()

	batches, failure := c.fetch(ctx, a)
	if failure != nil {
		rep.Failure = failure
		logger.Warn("adapter failed", "error", failure)
		return rep
	}

	rep.Batches = len(batches)
	for _, b := range batches {
		sub := c.Submit(ctx, b.CoreType, b.Groups)
		rep.Records += sub.Records
		rep.Submits = append(rep.Submits, sub)
	}
	logger.Info("adapter finished", "batches", rep.Batches, "records", rep.Records)
	return rep
}

// fetch calls a.Fetch, converting errors and panics to *AdapterFailure.
func (c *Coordinator) fetch(ctx context.Context, a adapter.Adapter) (batches []adapter.Batch, failure *AdapterFailure) {
	defer func() {
		if r := recover(); r != nil {
			batches = nil
			failure = &AdapterFailure{Adapter: a.Name(), Err: fmt.Errorf("panic: %v", r), Panic: r}
		}
	}()

	batches, err := a.Fetch(ctx)
	if err != nil {
		return nil, &AdapterFailure{Adapter: a.Name(), Err: err}
	}
	return batches, nil
}

func (c *Coordinator) runRetention(ctx context.Context, logger *slog.Logger, coreTypes []string, report *RunReport) {
	for _, ct := range coreTypes {
		if ctx.Err() != nil {
			return
		}
		res, err := c.retainer.Retention(ctx, ct, c.retentionCap)
		if err != nil {
			if report.RetentionErrors == nil {
				report.RetentionErrors = make(map[string]error)
			}
			report.RetentionErrors[ct] = err
			logger.Error("retention failed", "core_type", ct, "error", err)
			continue
		}
		report.Retention = append(report.Retention, res)
		logger.Info("retention applied",
			"core_type", ct,
			"cap", res.Cap,
			"removed", res.Removed,
			"dropped_versions", len(res.DroppedVersions))
	}
}

package tiering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stackvista/es-tier-migrator/internal/elasticsearch"
	"github.com/stackvista/es-tier-migrator/internal/logger"
)

// Call identifies the kind of cluster request a result belongs to
type Call string

const (
	CallAllocation Call = "allocation"
	CallSettings   Call = "settings"
	CallOptimize   Call = "optimize"
)

const defaultReleaseTimeout = 30 * time.Second

// Client is the subset of the cluster API the migrator drives
type Client interface {
	ListIndices(ctx context.Context) ([]string, error)
	SetAllocation(ctx context.Context, enabled bool) (string, error)
	SetIndexTier(ctx context.Context, index, attribute, tag string, replicas int) (string, error)
	OptimizeIndex(ctx context.Context, index string) (string, error)
}

// Logger is the sink for progress messages and per-call records
type Logger interface {
	Infof(format string, args ...interface{})
	Successf(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Event(e logger.Event)
}

// Config is the tiering policy of a run
type Config struct {
	IndexPrefix      string
	RoutingAttribute string
	Replicas         int
	MidTierAge       int
	ArchiveTierAge   int
	MidTierTag       string
	ArchiveTierTag   string
	// Optimize merges segments of every index moved to the mid tier
	Optimize bool
	// ReleaseTimeout bounds re-enabling allocation once the caller's context is done
	ReleaseTimeout time.Duration
}

// Result is the outcome of one cluster call
type Result struct {
	Index     string `json:"index,omitempty"`
	Tier      string `json:"tier,omitempty"`
	Call      Call   `json:"call"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Err       error  `json:"-"`
}

// OK reports whether the call succeeded
func (r Result) OK() bool {
	return r.Err == nil
}

// Report summarizes a run
type Report struct {
	Plan    *Plan    `json:"plan"`
	Results []Result `json:"results"`
	// Skipped is set when there were not enough indices to do anything
	Skipped bool `json:"skipped"`
}

// Failures returns the failed calls in issue order
func (r *Report) Failures() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// FailedIndices returns every index with at least one failed call, in issue order
func (r *Report) FailedIndices() []string {
	seen := make(map[string]bool)
	var indices []string
	for _, res := range r.Failures() {
		if res.Index == "" || seen[res.Index] {
			continue
		}
		seen[res.Index] = true
		indices = append(indices, res.Index)
	}
	return indices
}

// Migrator runs tier migration passes against a cluster
type Migrator struct {
	client Client
	cfg    Config
	log    Logger
}

// NewMigrator creates a migrator; log receives all progress output
func NewMigrator(client Client, cfg Config, log Logger) *Migrator {
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = defaultReleaseTimeout
	}
	return &Migrator{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

// Plan fetches the index list and computes the tier assignment without changing anything
func (m *Migrator) Plan(ctx context.Context) (*Plan, error) {
	names, err := m.client.ListIndices(ctx)
	if err != nil {
		m.log.Event(logger.Event{Level: logger.LevelError, Call: "stats", Outcome: "failed", Detail: err.Error()})
		return nil, fmt.Errorf("failed to list indices: %w", err)
	}
	m.log.Debugf("Found %d index(es) in the cluster", len(names))

	return BuildPlan(names, m.cfg.IndexPrefix, m.cfg.MidTierAge, m.cfg.ArchiveTierAge)
}

// Run performs one migration pass. Shard reallocation is paused while
// indices are re-tagged and re-enabled on every way out. Per-index failures
// are collected in the report and do not stop the pass; the returned error
// covers failures of the pass itself.
func (m *Migrator) Run(ctx context.Context) (*Report, error) {
	plan, err := m.Plan(ctx)
	if errors.Is(err, ErrNotEnoughIndices) {
		m.log.Infof("Not enough indices to move to the mid tier (%d found, need more than %d). Exiting.",
			len(plan.Indices), m.cfg.MidTierAge)
		return &Report{Plan: plan, Results: []Result{}, Skipped: true}, nil
	}
	if err != nil {
		return nil, err
	}

	m.log.Infof("Found %d '%s' index(es): %d to mid tier, %d to archive tier",
		len(plan.Indices), m.cfg.IndexPrefix, len(plan.Mid), len(plan.Archive))

	report := &Report{Plan: plan, Results: []Result{}}
	err = m.withAllocationPaused(ctx, report, func(ctx context.Context) error {
		for _, index := range plan.Mid {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.log.Infof("Re-routing %s to %s tier", index, m.cfg.MidTierTag)
			m.retag(ctx, report, index, TierMid, m.cfg.MidTierTag)

			// The index no longer receives writes, so its segments can be merged
			if m.cfg.Optimize {
				m.log.Infof("Optimizing index %s", index)
				m.optimize(ctx, report, index)
			}
		}

		for _, index := range plan.Archive {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.log.Infof("Re-routing %s to %s tier", index, m.cfg.ArchiveTierTag)
			m.retag(ctx, report, index, TierArchive, m.cfg.ArchiveTierTag)
		}
		return nil
	})

	return report, err
}

// withAllocationPaused disables shard reallocation, runs fn and re-enables
// reallocation exactly once whatever fn returns. A failed disable call is
// followed by an enable call as well, since the setting may have been
// applied before the failure was seen.
func (m *Migrator) withAllocationPaused(ctx context.Context, report *Report, fn func(ctx context.Context) error) (err error) {
	m.log.Infof("Disabling shard re-allocation")
	if disableErr := m.setAllocation(ctx, report, false); disableErr != nil {
		return errors.Join(
			fmt.Errorf("failed to disable shard re-allocation: %w", disableErr),
			m.resumeAllocation(ctx, report),
		)
	}

	defer func() {
		err = errors.Join(err, m.resumeAllocation(ctx, report))
	}()

	return fn(ctx)
}

// resumeAllocation re-enables reallocation even when ctx is already cancelled
func (m *Migrator) resumeAllocation(ctx context.Context, report *Report) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ReleaseTimeout)
	defer cancel()

	m.log.Infof("Enabling shard re-allocation")
	if err := m.setAllocation(ctx, report, true); err != nil {
		m.log.Errorf("Shard re-allocation is still disabled and must be re-enabled manually: %v", err)
		return fmt.Errorf("failed to re-enable shard re-allocation: %w", err)
	}
	return nil
}

func (m *Migrator) setAllocation(ctx context.Context, report *Report, enabled bool) error {
	response, err := m.client.SetAllocation(ctx, enabled)
	m.record(report, Result{Call: CallAllocation, Response: response, Err: err})
	return err
}

func (m *Migrator) retag(ctx context.Context, report *Report, index, tier, tag string) {
	response, err := m.client.SetIndexTier(ctx, index, m.cfg.RoutingAttribute, tag, m.cfg.Replicas)
	m.record(report, Result{Index: index, Tier: tier, Call: CallSettings, Response: response, Err: err})
}

func (m *Migrator) optimize(ctx context.Context, report *Report, index string) {
	response, err := m.client.OptimizeIndex(ctx, index)
	m.record(report, Result{Index: index, Tier: TierMid, Call: CallOptimize, Response: response, Err: err})
}

// record logs a call outcome and appends it to the report
func (m *Migrator) record(report *Report, res Result) {
	event := logger.Event{
		Level:   logger.LevelInfo,
		Call:    string(res.Call),
		Index:   res.Index,
		Tier:    res.Tier,
		Outcome: "ok",
	}

	if res.Err != nil {
		res.Error = res.Err.Error()
		res.Retryable = elasticsearch.IsRetryable(res.Err)
		event.Level = logger.LevelError
		event.Outcome = "failed"
		if res.Retryable {
			event.Outcome = "failed-retryable"
		}
		event.Detail = res.Error
	} else {
		m.log.Infof("    response: %s", res.Response)
	}

	m.log.Event(event)
	report.Results = append(report.Results, res)
}

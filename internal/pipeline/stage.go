// Package pipeline implements the permit reconciliation pipeline: incremental
// sync of permits and inspections from the open-data source, amendment
// resolution, certificate/contractor linking, phase-duration computation, and
// contractor metric aggregation. Every stage is independently invocable,
// idempotent, and resumable from a persisted watermark or a caller-supplied
// offset; stages communicate only through the store.
package pipeline

import (
	"context"
	"time"
)

// Watermark source keys.
const (
	SourcePermits     = "LADBS_PERMITS"
	SourceInspections = "LADBS_INSPECTIONS"
	SourceCOFO        = "LADBS_COFO"

	// SourceDerived marks stages that read only our own store.
	SourceDerived = "DERIVED"
)

// RunOpts carries per-invocation tuning shared by the CLI and the HTTP
// endpoints. Zero values fall back to configuration defaults.
type RunOpts struct {
	Limit  int        // source page size
	Pages  int        // max pages per invocation (execution-time ceiling)
	Batch  int        // our-own-permits batch size per source query
	Since  *time.Time // watermark override
	Offset *int       // explicit offset; enables backfill mode with nextOffset/done
	DryRun bool       // read and compute, suppress all writes
}

// Result is the outcome of one stage invocation. Counters holds
// stage-specific fields (imported/updated/skipped, nextOffset, done) that
// are passed through to the HTTP response.
type Result struct {
	Rows     int64          `json:"rows"`
	Counters map[string]any `json:"counters,omitempty"`
}

// Stage is one independently invocable pipeline step.
type Stage interface {
	// Name is the job name recorded in the run log (e.g. "sync_permits").
	Name() string

	// SourceKey identifies the upstream source for watermark and audit rows.
	SourceKey() string

	// Run executes the stage. A returned error means the invocation aborted
	// and no watermark advanced; per-record data gaps are not errors.
	Run(ctx context.Context, opts RunOpts) (*Result, error)
}

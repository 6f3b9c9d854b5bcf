package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/permitscope/permitscope/internal/db"
	"github.com/permitscope/permitscope/internal/permit"
	"github.com/permitscope/permitscope/internal/socrata"
)

// sodaTimeLayout is the floating-timestamp literal format SODA accepts in
// $where comparisons.
const sodaTimeLayout = "2006-01-02T15:04:05"

// PermitSync pulls permit records from the source dataset ordered by
// refresh time, so both new permits and late-issued updates to old permits
// are caught. Each page lands as one permits upsert plus one builds upsert;
// the watermark advances only after the last page has committed.
type PermitSync struct {
	deps  Deps
	marks *Watermarks
}

// NewPermitSync builds the permit sync stage.
func NewPermitSync(deps Deps) *PermitSync {
	return &PermitSync{deps: deps, marks: NewWatermarks(deps.Pool)}
}

func (s *PermitSync) Name() string      { return "sync_permits" }
func (s *PermitSync) SourceKey() string { return SourcePermits }

// Run syncs permits from the source. With opts.Offset set it runs in
// backfill mode and reports nextOffset/done for the caller to resume from.
// A backfill walk pins its window to opts.Since or the configured floor and
// leaves the watermark alone: moving the cursor mid-walk would shrink the
// window between invocations and skip the rows in between.
func (s *PermitSync) Run(ctx context.Context, opts RunOpts) (*Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.deps.Pipeline.PageSize
	}
	pages := opts.Pages
	if pages <= 0 {
		pages = s.deps.Pipeline.MaxPages
	}

	jid, err := lookupJurisdiction(ctx, s.deps.Pool, s.deps.Pipeline.Jurisdiction)
	if err != nil {
		return nil, err
	}

	backfill := opts.Offset != nil
	baseOffset := 0
	if backfill {
		baseOffset = *opts.Offset
	}

	since := opts.Since
	if since == nil && !backfill {
		since, err = s.marks.Get(ctx, SourcePermits)
		if err != nil {
			return nil, err
		}
	}
	if since == nil {
		floor, err := time.Parse("2006-01-02", s.deps.Pipeline.BackfillStart)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: parse backfill_start %q", s.deps.Pipeline.BackfillStart)
		}
		since = &floor
	}

	var (
		imported  int64
		fetched   int
		skipped   int
		maxCursor *time.Time
		done      bool
	)

	for page := 0; page < pages; page++ {
		records, err := s.deps.Source.Query(ctx, s.deps.Socrata.PermitsDataset, socrata.Query{
			Where:  fmt.Sprintf("refresh_time > %s", socrata.Quote(since.Format(sodaTimeLayout))),
			Order:  "refresh_time ASC",
			Limit:  limit,
			Offset: baseOffset + fetched,
		})
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			done = true
			break
		}
		fetched += len(records)

		permitRows, buildRows, pageSkipped, pageMax := s.mapPage(records, jid)
		skipped += pageSkipped
		if pageMax != nil && (maxCursor == nil || pageMax.After(*maxCursor)) {
			maxCursor = pageMax
		}

		if !opts.DryRun {
			if _, err := db.BulkUpsert(ctx, s.deps.Pool, permitUpsertConfig, permitRows); err != nil {
				return nil, err
			}
			if _, err := db.BulkUpsert(ctx, s.deps.Pool, buildUpsertConfig, buildRows); err != nil {
				return nil, err
			}
		}
		imported += int64(len(permitRows))

		if len(records) < limit {
			done = true
			break
		}
	}

	if !opts.DryRun && !backfill && maxCursor != nil {
		if err := s.marks.Advance(ctx, SourcePermits, *maxCursor, imported); err != nil {
			return nil, err
		}
	}

	zap.L().Info("permit sync complete",
		zap.Int64("imported", imported),
		zap.Int("skipped", skipped),
		zap.Timep("cursor", maxCursor),
	)

	counters := map[string]any{
		"imported": imported,
		"skipped":  skipped,
		"since":    since.Format(time.RFC3339),
	}
	if backfill {
		counters["nextOffset"] = baseOffset + fetched
		counters["done"] = done
	}
	return &Result{Rows: imported, Counters: counters}, nil
}

// mapPage converts one source page into permits and builds upsert rows.
// Records without a permit number are skipped and counted, never fatal.
func (s *PermitSync) mapPage(records []socrata.Record, jid int) (permitRows, buildRows [][]any, skipped int, maxCursor *time.Time) {
	now := time.Now().UTC()
	for _, rec := range records {
		nbr := strings.TrimSpace(rec.Str("permit_nbr"))
		if nbr == "" {
			skipped++
			continue
		}
		if cursor := rec.Date("refresh_time"); cursor != nil {
			if maxCursor == nil || cursor.After(*maxCursor) {
				maxCursor = cursor
			}
		}

		workDesc := rec.Str("work_desc")
		isADU, aduKind := permit.ClassifyADU(workDesc)
		permitType := rec.Str("permit_type")

		permitRows = append(permitRows, []any{
			nbr,
			jid,
			nullStr(rec.Str("status_desc")),
			nullStr(permitType),
			nullStr(permit.ClassifyScope(permitType)),
			nullStr(workDesc),
			isADU,
			aduKind,
			rec.Date("issue_date"),
			rec.Date("cofo_date"),
			s.deps.Socrata.PermitsDataset,
			now,
		})

		valuation := rec.Float("valuation")
		sqft := rec.Float("square_footage")
		var valPerSqft *float64
		if valuation != nil && sqft != nil && *sqft > 0 {
			v := *valuation / *sqft
			valPerSqft = &v
		}
		buildRows = append(buildRows, []any{
			nbr,
			nullStr(rec.Str("primary_address")),
			nullStr(rec.Str("zip_code")),
			nullStr(rec.Str("apn")),
			rec.Float("lat"),
			rec.Float("lon"),
			valuation,
			sqft,
			valPerSqft,
			now,
		})
	}
	return permitRows, buildRows, skipped, maxCursor
}

var permitUpsertConfig = db.UpsertConfig{
	Table: "permit_data.permits",
	Columns: []string{
		"permit_number", "jurisdiction_id", "status", "permit_type",
		"permit_scope", "work_desc", "is_adu", "adu_kind",
		"issued_date", "finaled_date", "source_dataset", "updated_at",
	},
	ConflictKeys: []string{"permit_number"},
}

var buildUpsertConfig = db.UpsertConfig{
	Table: "permit_data.builds",
	Columns: []string{
		"permit_number", "address", "zip_code", "apn", "lat", "lon",
		"valuation", "sqft", "valuation_per_sqft", "updated_at",
	},
	ConflictKeys: []string{"permit_number"},
}

// lookupJurisdiction resolves the configured jurisdiction name to its id.
func lookupJurisdiction(ctx context.Context, pool db.Pool, name string) (int, error) {
	var id int
	err := pool.QueryRow(ctx,
		`SELECT jurisdiction_id FROM permit_data.jurisdictions WHERE name = $1`, name,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "pipeline: lookup jurisdiction %q", name)
	}
	return id, nil
}

// nullStr maps empty strings to SQL NULL.
func nullStr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

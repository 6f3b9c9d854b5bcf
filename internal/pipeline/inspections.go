package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/permitscope/permitscope/internal/db"
	"github.com/permitscope/permitscope/internal/model"
	"github.com/permitscope/permitscope/internal/permit"
	"github.com/permitscope/permitscope/internal/socrata"
)

// inspectionPagesPerBatch bounds paging within one batched source query.
const inspectionPagesPerBatch = 5

// InspectionSync pulls inspection events for permits we already track. The
// source is queried in batches of our own permit numbers, results are
// deduplicated on (permit, date, type) keeping the most conclusive result,
// and the upsert only supersedes a stored row when the incoming result
// outranks it.
type InspectionSync struct {
	deps  Deps
	marks *Watermarks
}

// NewInspectionSync builds the inspection sync stage.
func NewInspectionSync(deps Deps) *InspectionSync {
	return &InspectionSync{deps: deps, marks: NewWatermarks(deps.Pool)}
}

func (s *InspectionSync) Name() string      { return "sync_inspections" }
func (s *InspectionSync) SourceKey() string { return SourceInspections }

func (s *InspectionSync) Run(ctx context.Context, opts RunOpts) (*Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.deps.Pipeline.PageSize
	}
	batch := opts.Batch
	if batch <= 0 {
		batch = s.deps.Pipeline.PermitBatch
	}
	batches := opts.Pages
	if batches <= 0 {
		batches = s.deps.Pipeline.MaxPages
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

	// An offset walk fetches each permit's full history unless the caller
	// narrows it explicitly. Applying the watermark here would drop the older
	// inspections of every permit visited after the cursor first moved.
	since := opts.Since
	if since == nil && !backfill {
		since, err = s.marks.Get(ctx, SourceInspections)
		if err != nil {
			return nil, err
		}
	}

	var (
		written int64
		scanned int
		maxDate *time.Time
		done    bool
	)

	for b := 0; b < batches; b++ {
		ids, err := s.permitBatch(ctx, batch, baseOffset+scanned)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			done = true
			break
		}
		scanned += len(ids)

		events, err := s.fetchBatch(ctx, ids, since, limit)
		if err != nil {
			return nil, err
		}

		deduped := permit.Dedupe(events)
		rows := make([][]any, 0, len(deduped))
		for _, ev := range deduped {
			if ev.Date.After(timeOrZero(maxDate)) {
				d := ev.Date
				maxDate = &d
			}
			rows = append(rows, []any{
				ev.PermitNumber,
				jid,
				ev.Date,
				ev.Type,
				nullStr(ev.Result),
				int16(permit.ResultRank(ev.Result)), //nolint:gosec
			})
		}

		if !opts.DryRun {
			n, err := db.BulkUpsert(ctx, s.deps.Pool, inspectionUpsertConfig, rows)
			if err != nil {
				return nil, err
			}
			written += n
		} else {
			written += int64(len(rows))
		}

		if len(ids) < batch {
			done = true
			break
		}
	}

	if !opts.DryRun && !backfill && maxDate != nil {
		if err := s.marks.Advance(ctx, SourceInspections, *maxDate, written); err != nil {
			return nil, err
		}
	}

	zap.L().Info("inspection sync complete",
		zap.Int64("written", written),
		zap.Int("permits_scanned", scanned),
	)

	counters := map[string]any{
		"written":        written,
		"permitsScanned": scanned,
	}
	if backfill {
		counters["nextOffset"] = baseOffset + scanned
		counters["done"] = done
	}
	return &Result{Rows: written, Counters: counters}, nil
}

// permitBatch returns one page of our own permit numbers in stable order.
func (s *InspectionSync) permitBatch(ctx context.Context, limit, offset int) ([]string, error) {
	rows, err := s.deps.Pool.Query(ctx,
		`SELECT permit_number FROM permit_data.permits ORDER BY permit_number LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list permit batch")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "pipeline: scan permit number")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// fetchBatch pages the source for all inspections belonging to one batch of
// permit numbers, newer than the cursor when one exists.
func (s *InspectionSync) fetchBatch(ctx context.Context, ids []string, since *time.Time, limit int) ([]model.Inspection, error) {
	where := fmt.Sprintf("permit in (%s)", socrata.QuoteList(ids))
	if since != nil {
		where += fmt.Sprintf(" AND inspection_date > %s", socrata.Quote(since.Format(sodaTimeLayout)))
	}

	var events []model.Inspection
	for page := 0; page < inspectionPagesPerBatch; page++ {
		records, err := s.deps.Source.Query(ctx, s.deps.Socrata.InspectionsDataset, socrata.Query{
			Where:  where,
			Order:  "inspection_date ASC",
			Select: []string{"permit", "inspection_date", "inspection", "inspection_result"},
			Limit:  limit,
			Offset: page * limit,
		})
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			nbr := rec.Str("permit")
			date := rec.Date("inspection_date")
			typ := rec.Str("inspection")
			if nbr == "" || date == nil || typ == "" {
				continue
			}
			events = append(events, model.Inspection{
				PermitNumber: nbr,
				Date:         *date,
				Type:         typ,
				Result:       rec.Str("inspection_result"),
			})
		}
		if len(records) < limit {
			break
		}
	}
	return events, nil
}

var inspectionUpsertConfig = db.UpsertConfig{
	Table: "permit_data.inspections",
	Columns: []string{
		"permit_number", "jurisdiction_id", "inspection_date",
		"inspection_type", "result", "result_rank",
	},
	ConflictKeys: []string{"permit_number", "inspection_date", "inspection_type"},
	UpdateCols:   []string{"result", "result_rank"},
	UpdateWhere:  "EXCLUDED.result_rank > t.result_rank",
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

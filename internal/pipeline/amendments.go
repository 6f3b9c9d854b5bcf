package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/permitscope/permitscope/internal/db"
	"github.com/permitscope/permitscope/internal/permit"
	"github.com/permitscope/permitscope/internal/socrata"
)

// AmendmentSync discovers amendment permits by digit substitution: every
// base permit yields nine candidate numbers, all candidates for one batch go
// out in a single source query, and each hit is attributed back to its base
// through a reverse lookup. Candidates that don't exist upstream simply
// return nothing.
type AmendmentSync struct {
	deps Deps
}

// NewAmendmentSync builds the amendment discovery stage.
func NewAmendmentSync(deps Deps) *AmendmentSync {
	return &AmendmentSync{deps: deps}
}

func (s *AmendmentSync) Name() string      { return "sync_amendments" }
func (s *AmendmentSync) SourceKey() string { return SourcePermits }

// Run processes one batch of base permits. Without opts.Offset it targets
// open permits (no finaled date yet); with it, it walks the whole permit
// table for backfill and reports nextOffset/done.
func (s *AmendmentSync) Run(ctx context.Context, opts RunOpts) (*Result, error) {
	batch := opts.Batch
	if batch <= 0 {
		batch = s.deps.Pipeline.PermitBatch
	}
	digitOffset := s.deps.Pipeline.AmendmentDigitOffset

	backfill := opts.Offset != nil
	var bases []string
	var err error
	if backfill {
		bases, err = s.basePermits(ctx,
			`SELECT permit_number FROM permit_data.permits ORDER BY permit_number LIMIT $1 OFFSET $2`,
			batch, *opts.Offset)
	} else {
		bases, err = s.basePermits(ctx,
			`SELECT permit_number FROM permit_data.permits WHERE finaled_date IS NULL ORDER BY permit_number LIMIT $1`,
			batch)
	}
	if err != nil {
		return nil, err
	}

	counters := map[string]any{"basesChecked": len(bases)}
	if backfill {
		counters["nextOffset"] = *opts.Offset + len(bases)
		counters["done"] = len(bases) < batch
	}
	if len(bases) == 0 {
		return &Result{Rows: 0, Counters: counters}, nil
	}

	byCandidate := make(map[string]string, len(bases)*9)
	var candidates []string
	for _, base := range bases {
		for _, cand := range permit.AmendmentCandidates(base, digitOffset) {
			byCandidate[cand] = base
			candidates = append(candidates, cand)
		}
	}
	if len(candidates) == 0 {
		return &Result{Rows: 0, Counters: counters}, nil
	}

	records, err := s.deps.Source.Query(ctx, s.deps.Socrata.PermitsDataset, socrata.Query{
		Where: fmt.Sprintf("permit_nbr in (%s)", socrata.QuoteList(candidates)),
		Limit: len(candidates),
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var rows [][]any
	contractorChanges := 0
	for _, rec := range records {
		nbr := rec.Str("permit_nbr")
		base, ok := byCandidate[nbr]
		if !ok {
			continue
		}
		seq := permit.AmendmentSeq(nbr, digitOffset)
		if seq == 0 {
			continue
		}

		workDesc := rec.Str("work_desc")
		change := permit.ClassifyContractorChange(workDesc)
		if change != nil {
			contractorChanges++
		}
		var changeStr *string
		if change != nil {
			v := string(*change)
			changeStr = &v
		}

		rows = append(rows, []any{
			nbr,
			base,
			int16(seq), //nolint:gosec
			nullStr(rec.Str("status_desc")),
			nullStr(workDesc),
			rec.Date("issue_date"),
			rec.Date("cofo_date"),
			change != nil,
			changeStr,
			now,
		})
	}

	var written int64
	if !opts.DryRun {
		written, err = db.BulkUpsert(ctx, s.deps.Pool, amendmentUpsertConfig, rows)
		if err != nil {
			return nil, err
		}
	} else {
		written = int64(len(rows))
	}

	zap.L().Info("amendment sync complete",
		zap.Int("bases", len(bases)),
		zap.Int("fetched", len(records)),
		zap.Int64("written", written),
		zap.Int("contractor_changes", contractorChanges),
	)

	counters["fetched"] = len(records)
	counters["written"] = written
	counters["contractorChanges"] = contractorChanges
	return &Result{Rows: written, Counters: counters}, nil
}

func (s *AmendmentSync) basePermits(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := s.deps.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list base permits")
	}
	defer rows.Close()

	var bases []string
	for rows.Next() {
		var nbr string
		if err := rows.Scan(&nbr); err != nil {
			return nil, eris.Wrap(err, "pipeline: scan base permit")
		}
		bases = append(bases, nbr)
	}
	return bases, rows.Err()
}

var amendmentUpsertConfig = db.UpsertConfig{
	Table: "permit_data.permit_amendments",
	Columns: []string{
		"amendment_permit_nbr", "base_permit_nbr", "amendment_number",
		"status", "work_description", "issue_date", "finaled_date",
		"has_contractor_change", "contractor_change_type", "updated_at",
	},
	ConflictKeys: []string{"amendment_permit_nbr"},
}

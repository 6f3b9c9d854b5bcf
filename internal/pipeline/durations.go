package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/permitscope/permitscope/internal/model"
	"github.com/permitscope/permitscope/internal/permit"
)

// DurationCompute derives per-permit construction timing from stored
// inspections: the six phase durations, the start fields on the permit, and
// the failed-inspection count on the build. Recomputation is idempotent;
// permits without inspections are counted but untouched.
type DurationCompute struct {
	deps Deps
}

// NewDurationCompute builds the duration computation stage.
func NewDurationCompute(deps Deps) *DurationCompute {
	return &DurationCompute{deps: deps}
}

func (s *DurationCompute) Name() string      { return "compute_durations" }
func (s *DurationCompute) SourceKey() string { return SourceDerived }

func (s *DurationCompute) Run(ctx context.Context, opts RunOpts) (*Result, error) {
	batch := opts.Batch
	if batch <= 0 {
		batch = s.deps.Pipeline.PermitBatch
	}

	backfill := opts.Offset != nil
	baseOffset := 0
	maxBatches := opts.Pages
	if backfill {
		baseOffset = *opts.Offset
		if maxBatches <= 0 {
			maxBatches = 1
		}
	}

	var (
		processed int
		updated   int
		done      bool
	)

	for b := 0; maxBatches <= 0 || b < maxBatches; b++ {
		permits, err := s.permitBatch(ctx, batch, baseOffset+processed)
		if err != nil {
			return nil, err
		}
		if len(permits) == 0 {
			done = true
			break
		}

		for _, p := range permits {
			inspections, err := s.inspections(ctx, p.PermitNumber)
			if err != nil {
				return nil, err
			}
			processed++
			if len(inspections) == 0 {
				continue
			}

			ms := permit.FindMilestones(inspections)
			metrics := permit.ComputeMetrics(p.PermitNumber, ms)
			failures := 0
			for _, ins := range inspections {
				if permit.IsFailure(ins.Result) {
					failures++
				}
			}

			if !opts.DryRun {
				if err := s.write(ctx, p, ms, metrics, failures); err != nil {
					return nil, err
				}
			}
			updated++
		}

		if len(permits) < batch {
			done = true
			break
		}
	}

	zap.L().Info("duration computation complete",
		zap.Int("processed", processed),
		zap.Int("updated", updated),
	)

	counters := map[string]any{
		"processed": processed,
		"updated":   updated,
	}
	if backfill {
		counters["nextOffset"] = baseOffset + processed
		counters["done"] = done
	}
	return &Result{Rows: int64(updated), Counters: counters}, nil
}

type permitTiming struct {
	PermitNumber string
	IssuedDate   *time.Time
}

func (s *DurationCompute) permitBatch(ctx context.Context, limit, offset int) ([]permitTiming, error) {
	rows, err := s.deps.Pool.Query(ctx,
		`SELECT permit_number, issued_date FROM permit_data.permits ORDER BY permit_number LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list permits for durations")
	}
	defer rows.Close()

	var out []permitTiming
	for rows.Next() {
		var p permitTiming
		if err := rows.Scan(&p.PermitNumber, &p.IssuedDate); err != nil {
			return nil, eris.Wrap(err, "pipeline: scan permit timing")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *DurationCompute) inspections(ctx context.Context, permitNumber string) ([]model.Inspection, error) {
	rows, err := s.deps.Pool.Query(ctx,
		`SELECT inspection_date, inspection_type, COALESCE(result, '')
		 FROM permit_data.inspections
		 WHERE permit_number = $1
		 ORDER BY inspection_date ASC`,
		permitNumber,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: list inspections for %s", permitNumber)
	}
	defer rows.Close()

	var out []model.Inspection
	for rows.Next() {
		ins := model.Inspection{PermitNumber: permitNumber}
		if err := rows.Scan(&ins.Date, &ins.Type, &ins.Result); err != nil {
			return nil, eris.Wrap(err, "pipeline: scan inspection")
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}

func (s *DurationCompute) write(ctx context.Context, p permitTiming, ms permit.Milestones, metrics model.PhaseMetrics, failures int) error {
	_, err := s.deps.Pool.Exec(ctx,
		`INSERT INTO permit_data.inspection_phase_metrics
		   (permit_number, start_to_foundation, foundation_to_framing, framing_to_drywall,
		    drywall_to_final, start_to_final, time_to_pass_final, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 ON CONFLICT (permit_number) DO UPDATE SET
		   start_to_foundation = EXCLUDED.start_to_foundation,
		   foundation_to_framing = EXCLUDED.foundation_to_framing,
		   framing_to_drywall = EXCLUDED.framing_to_drywall,
		   drywall_to_final = EXCLUDED.drywall_to_final,
		   start_to_final = EXCLUDED.start_to_final,
		   time_to_pass_final = EXCLUDED.time_to_pass_final,
		   computed_at = now()`,
		metrics.PermitNumber, metrics.StartToFoundation, metrics.FoundationToFraming,
		metrics.FramingToDrywall, metrics.DrywallToFinal, metrics.StartToFinal,
		metrics.TimeToPassFinal,
	)
	if err != nil {
		return eris.Wrapf(err, "pipeline: upsert phase metrics for %s", p.PermitNumber)
	}

	if ms.FirstApproved != nil {
		lag := permit.DayDiff(p.IssuedDate, ms.FirstApproved)
		_, err = s.deps.Pool.Exec(ctx,
			`UPDATE permit_data.permits
			 SET started_date = $1, started_but_not_completed = $2,
			     pull_to_start_lag_days = $3, updated_at = now()
			 WHERE permit_number = $4`,
			*ms.FirstApproved, ms.FinalApproved == nil, lag, p.PermitNumber,
		)
		if err != nil {
			return eris.Wrapf(err, "pipeline: update permit timing for %s", p.PermitNumber)
		}
	}

	_, err = s.deps.Pool.Exec(ctx,
		`UPDATE permit_data.builds SET failed_inspection_count = $1, updated_at = now() WHERE permit_number = $2`,
		failures, p.PermitNumber,
	)
	if err != nil {
		return eris.Wrapf(err, "pipeline: update failure count for %s", p.PermitNumber)
	}
	return nil
}

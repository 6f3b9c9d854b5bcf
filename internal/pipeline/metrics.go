package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/permitscope/permitscope/internal/permit"
)

// ContractorMetrics recomputes the aggregate metric block for every
// contractor from their primary-linked builds. The block is overwritten
// wholesale on each run, so the stage owns those columns outright.
type ContractorMetrics struct {
	deps Deps
}

// NewContractorMetrics builds the contractor aggregation stage.
func NewContractorMetrics(deps Deps) *ContractorMetrics {
	return &ContractorMetrics{deps: deps}
}

func (s *ContractorMetrics) Name() string      { return "compute_contractor_metrics" }
func (s *ContractorMetrics) SourceKey() string { return SourceDerived }

func (s *ContractorMetrics) Run(ctx context.Context, opts RunOpts) (*Result, error) {
	ids, err := s.contractorIDs(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var processed, updated int

	for _, id := range ids {
		builds, err := s.buildSamples(ctx, id)
		if err != nil {
			return nil, err
		}
		processed++

		agg := permit.Aggregate(builds, now, s.deps.Pipeline.StalenessMonths)
		if opts.DryRun {
			updated++
			continue
		}

		_, err = s.deps.Pool.Exec(ctx,
			`UPDATE permit_data.contractors SET
			   total_builds = $1, active_builds = $2, completion_rate = $3,
			   builds_last_year = $4, avg_completion_days = $5, avg_pass_final_days = $6,
			   avg_failed_inspections = $7, last_active_date = $8, metrics_updated_at = now()
			 WHERE contractor_id = $9`,
			agg.TotalBuilds, agg.ActiveBuilds, agg.CompletionRate,
			agg.BuildsLastYear, agg.AvgCompletionDays, agg.AvgPassFinalDays,
			agg.AvgFailedInspections, agg.LastActiveDate, id,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: update metrics for contractor %d", id)
		}
		updated++
	}

	zap.L().Info("contractor metrics complete",
		zap.Int("processed", processed),
		zap.Int("updated", updated),
	)

	return &Result{
		Rows: int64(updated),
		Counters: map[string]any{
			"processed": processed,
			"updated":   updated,
		},
	}, nil
}

func (s *ContractorMetrics) contractorIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.deps.Pool.Query(ctx,
		`SELECT contractor_id FROM permit_data.contractors ORDER BY contractor_id`)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list contractors")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "pipeline: scan contractor id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// buildSamples loads the lifecycle dates, durations, and failure counts for
// every build primary-linked to a contractor.
func (s *ContractorMetrics) buildSamples(ctx context.Context, contractorID int64) ([]permit.BuildSample, error) {
	rows, err := s.deps.Pool.Query(ctx,
		`SELECT p.issued_date, p.started_date, p.finaled_date,
		        m.start_to_final, m.time_to_pass_final,
		        COALESCE(b.failed_inspection_count, 0)
		 FROM permit_data.build_contractors bc
		 JOIN permit_data.builds b ON b.build_id = bc.build_id
		 JOIN permit_data.permits p ON p.permit_number = b.permit_number
		 LEFT JOIN permit_data.inspection_phase_metrics m ON m.permit_number = p.permit_number
		 WHERE bc.contractor_id = $1 AND bc.role = 'PRIMARY'`,
		contractorID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: list builds for contractor %d", contractorID)
	}
	defer rows.Close()

	var samples []permit.BuildSample
	for rows.Next() {
		var b permit.BuildSample
		if err := rows.Scan(&b.IssuedDate, &b.StartedDate, &b.FinaledDate,
			&b.CompletionDays, &b.PassFinalDays, &b.FailedInspections); err != nil {
			return nil, eris.Wrap(err, "pipeline: scan build sample")
		}
		samples = append(samples, b)
	}
	return samples, rows.Err()
}

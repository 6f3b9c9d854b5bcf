package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FinaledDateSync propagates finaled dates from permits to their builds in
// one set-based statement. Only rows whose build value actually differs are
// touched, so repeated runs settle to zero.
type FinaledDateSync struct {
	deps Deps
}

// NewFinaledDateSync builds the finaled-date propagation stage.
func NewFinaledDateSync(deps Deps) *FinaledDateSync {
	return &FinaledDateSync{deps: deps}
}

func (s *FinaledDateSync) Name() string      { return "sync_finaled_dates" }
func (s *FinaledDateSync) SourceKey() string { return SourceDerived }

func (s *FinaledDateSync) Run(ctx context.Context, opts RunOpts) (*Result, error) {
	if opts.DryRun {
		var pending int64
		err := s.deps.Pool.QueryRow(ctx,
			`SELECT count(*)
			 FROM permit_data.builds b
			 JOIN permit_data.permits p ON p.permit_number = b.permit_number
			 WHERE p.finaled_date IS NOT NULL
			   AND b.finaled_date IS DISTINCT FROM p.finaled_date`,
		).Scan(&pending)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: count pending finaled dates")
		}
		return &Result{Rows: pending, Counters: map[string]any{"synced": pending}}, nil
	}

	tag, err := s.deps.Pool.Exec(ctx,
		`UPDATE permit_data.builds b
		 SET finaled_date = p.finaled_date, updated_at = now()
		 FROM permit_data.permits p
		 WHERE p.permit_number = b.permit_number
		   AND p.finaled_date IS NOT NULL
		   AND b.finaled_date IS DISTINCT FROM p.finaled_date`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: sync finaled dates")
	}

	synced := tag.RowsAffected()
	zap.L().Info("finaled dates synced", zap.Int64("synced", synced))
	return &Result{Rows: synced, Counters: map[string]any{"synced": synced}}, nil
}

package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/permitscope/permitscope/internal/db"
	"github.com/permitscope/permitscope/internal/model"
	"github.com/permitscope/permitscope/internal/permit"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = eris.New("store: not found")

// Dashboard serves the read-only API queries.
type Dashboard struct {
	pool db.Pool
}

// NewDashboard creates a dashboard reader backed by the given pool.
func NewDashboard(pool db.Pool) *Dashboard {
	return &Dashboard{pool: pool}
}

// ListContractors returns contractors with their aggregate metrics, busiest
// first.
func (d *Dashboard) ListContractors(ctx context.Context, limit int) ([]model.Contractor, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := d.pool.Query(ctx,
		`SELECT contractor_id, license_number, name, license_type,
		        total_builds, active_builds, completion_rate, builds_last_year,
		        avg_completion_days, avg_pass_final_days, avg_failed_inspections,
		        last_active_date
		 FROM permit_data.contractors
		 ORDER BY total_builds DESC, contractor_id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: list contractors")
	}
	defer rows.Close()

	var out []model.Contractor
	for rows.Next() {
		var c model.Contractor
		if err := rows.Scan(&c.ContractorID, &c.LicenseNumber, &c.Name, &c.LicenseType,
			&c.TotalBuilds, &c.ActiveBuilds, &c.CompletionRate, &c.BuildsLastYear,
			&c.AvgCompletionDays, &c.AvgPassFinalDays, &c.AvgFailedInspection,
			&c.LastActiveDate); err != nil {
			return nil, eris.Wrap(err, "store: scan contractor")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PermitTimeline is the full dashboard view of one permit: the permit and
// its build, the known amendments, the derived phase durations, and the raw
// inspection history.
type PermitTimeline struct {
	Permit      model.Permit        `json:"permit"`
	Build       *model.Build        `json:"build,omitempty"`
	Amendments  []model.Amendment   `json:"amendments,omitempty"`
	Metrics     *model.PhaseMetrics `json:"phase_metrics,omitempty"`
	Inspections []model.Inspection  `json:"inspections,omitempty"`
}

// PermitTimeline loads the timeline for one permit. The number is matched
// against stored permits through its identifier variants, strict forms
// first. Returns ErrNotFound when no variant is known.
func (d *Dashboard) PermitTimeline(ctx context.Context, permitNumber string) (*PermitTimeline, error) {
	permitNumber, err := d.resolvePermitNumber(ctx, permitNumber)
	if err != nil {
		return nil, err
	}

	var tl PermitTimeline
	p := &tl.Permit
	err = d.pool.QueryRow(ctx,
		`SELECT p.permit_number, j.name, COALESCE(p.status, ''), COALESCE(p.permit_scope, ''),
		        COALESCE(p.work_desc, ''), p.is_adu, p.adu_kind, p.issued_date, p.finaled_date,
		        p.started_date, p.started_but_not_completed, p.pull_to_start_lag_days
		 FROM permit_data.permits p
		 JOIN permit_data.jurisdictions j ON j.jurisdiction_id = p.jurisdiction_id
		 WHERE p.permit_number = $1`,
		permitNumber,
	).Scan(&p.PermitNumber, &p.Jurisdiction, &p.Status, &p.PermitScope,
		&p.WorkDesc, &p.IsADU, &p.ADUKind, &p.IssuedDate, &p.FinaledDate,
		&p.StartedDate, &p.StartedButNotCompleted, &p.PullToStartLagDays)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "store: load permit %s", permitNumber)
	}

	if tl.Build, err = d.build(ctx, permitNumber); err != nil {
		return nil, err
	}
	if tl.Amendments, err = d.amendments(ctx, permitNumber); err != nil {
		return nil, err
	}
	if tl.Metrics, err = d.phaseMetrics(ctx, permitNumber); err != nil {
		return nil, err
	}
	if tl.Inspections, err = d.inspections(ctx, permitNumber); err != nil {
		return nil, err
	}
	return &tl, nil
}

// resolvePermitNumber maps a user-supplied permit number onto the stored
// canonical one. Strict variants are tried before loose ones, and within a
// tier the earlier variant wins.
func (d *Dashboard) resolvePermitNumber(ctx context.Context, raw string) (string, error) {
	for _, candidates := range [][]string{permit.Variants(raw), permit.LooseVariants(raw)} {
		var nbr string
		err := d.pool.QueryRow(ctx,
			`SELECT permit_number FROM permit_data.permits
			 WHERE permit_number = ANY($1)
			 ORDER BY array_position($1, permit_number)
			 LIMIT 1`,
			candidates,
		).Scan(&nbr)
		if err == nil {
			return nbr, nil
		}
		if !eris.Is(err, pgx.ErrNoRows) {
			return "", eris.Wrapf(err, "store: resolve permit %s", raw)
		}
	}
	return "", ErrNotFound
}

func (d *Dashboard) build(ctx context.Context, permitNumber string) (*model.Build, error) {
	var b model.Build
	err := d.pool.QueryRow(ctx,
		`SELECT build_id, permit_number, address, zip_code, apn, lat, lon,
		        valuation, sqft, valuation_per_sqft, finaled_date, failed_inspection_count
		 FROM permit_data.builds
		 WHERE permit_number = $1`,
		permitNumber,
	).Scan(&b.BuildID, &b.PermitNumber, &b.Address, &b.ZipCode, &b.APN, &b.Lat, &b.Lon,
		&b.Valuation, &b.Sqft, &b.ValuationPerSqft, &b.FinaledDate, &b.FailedInspCount)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "store: load build for %s", permitNumber)
	}
	return &b, nil
}

func (d *Dashboard) amendments(ctx context.Context, permitNumber string) ([]model.Amendment, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT amendment_permit_nbr, base_permit_nbr, amendment_number,
		        COALESCE(status, ''), COALESCE(work_description, ''),
		        issue_date, finaled_date, has_contractor_change, contractor_change_type
		 FROM permit_data.permit_amendments
		 WHERE base_permit_nbr = $1
		 ORDER BY amendment_number`,
		permitNumber,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list amendments for %s", permitNumber)
	}
	defer rows.Close()

	var out []model.Amendment
	for rows.Next() {
		var a model.Amendment
		var change *string
		if err := rows.Scan(&a.AmendmentPermitNbr, &a.BasePermitNbr, &a.AmendmentNumber,
			&a.Status, &a.WorkDesc, &a.IssuedDate, &a.FinaledDate,
			&a.HasContractorChange, &change); err != nil {
			return nil, eris.Wrap(err, "store: scan amendment")
		}
		if change != nil {
			ct := model.ChangeType(*change)
			a.ContractorChange = &ct
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (d *Dashboard) phaseMetrics(ctx context.Context, permitNumber string) (*model.PhaseMetrics, error) {
	var m model.PhaseMetrics
	err := d.pool.QueryRow(ctx,
		`SELECT permit_number, start_to_foundation, foundation_to_framing,
		        framing_to_drywall, drywall_to_final, start_to_final, time_to_pass_final
		 FROM permit_data.inspection_phase_metrics
		 WHERE permit_number = $1`,
		permitNumber,
	).Scan(&m.PermitNumber, &m.StartToFoundation, &m.FoundationToFraming,
		&m.FramingToDrywall, &m.DrywallToFinal, &m.StartToFinal, &m.TimeToPassFinal)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "store: load phase metrics for %s", permitNumber)
	}
	return &m, nil
}

func (d *Dashboard) inspections(ctx context.Context, permitNumber string) ([]model.Inspection, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT permit_number, inspection_date, inspection_type, COALESCE(result, '')
		 FROM permit_data.inspections
		 WHERE permit_number = $1
		 ORDER BY inspection_date`,
		permitNumber,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list inspections for %s", permitNumber)
	}
	defer rows.Close()

	var out []model.Inspection
	for rows.Next() {
		var ins model.Inspection
		if err := rows.Scan(&ins.PermitNumber, &ins.Date, &ins.Type, &ins.Result); err != nil {
			return nil, eris.Wrap(err, "store: scan inspection")
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}

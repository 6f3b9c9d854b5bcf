package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/permitscope/permitscope/internal/permit"
	"github.com/permitscope/permitscope/internal/socrata"
)

// CertificateSync links finaled builds to their primary contractor using
// certificate-of-occupancy records. Certificates can be filed under the base
// permit number or any of its amendment numbers, so each permit is probed in
// that order and the first hit wins. The one-primary-per-build rule is a
// database constraint, so a concurrent or repeated link degrades to a no-op.
type CertificateSync struct {
	deps Deps
}

// NewCertificateSync builds the certificate linking stage.
func NewCertificateSync(deps Deps) *CertificateSync {
	return &CertificateSync{deps: deps}
}

func (s *CertificateSync) Name() string      { return "sync_certificates" }
func (s *CertificateSync) SourceKey() string { return SourceCOFO }

type certCandidate struct {
	permitNumber string
	finaledDate  bool
	buildID      int64
}

func (s *CertificateSync) Run(ctx context.Context, opts RunOpts) (*Result, error) {
	batch := opts.Batch
	if batch <= 0 {
		batch = s.deps.Pipeline.PermitBatch
	}

	permits, err := s.unlinkedFinaledPermits(ctx, batch)
	if err != nil {
		return nil, err
	}

	var (
		found   int
		updated int64
		linked  int64
	)

	for _, p := range permits {
		rec, err := s.findCertificate(ctx, p.permitNumber)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		found++

		if !p.finaledDate {
			if date := rec.Date("cofo_issue_date"); date != nil && !opts.DryRun {
				if _, err := s.deps.Pool.Exec(ctx,
					`UPDATE permit_data.permits SET finaled_date = $1, updated_at = now() WHERE permit_number = $2`,
					*date, p.permitNumber,
				); err != nil {
					return nil, eris.Wrapf(err, "pipeline: backfill finaled date for %s", p.permitNumber)
				}
				updated++
			}
		}

		license := strings.TrimSpace(rec.Str("license"))
		if license == "" || opts.DryRun {
			continue
		}

		contractorID, err := s.resolveContractor(ctx, license, rec)
		if err != nil {
			return nil, err
		}

		tag, err := s.deps.Pool.Exec(ctx,
			`INSERT INTO permit_data.build_contractors (build_id, contractor_id, role)
			 VALUES ($1, $2, 'PRIMARY')
			 ON CONFLICT (build_id) WHERE role = 'PRIMARY' DO NOTHING`,
			p.buildID, contractorID,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: link contractor to build %d", p.buildID)
		}
		linked += tag.RowsAffected()
	}

	zap.L().Info("certificate sync complete",
		zap.Int("permits_checked", len(permits)),
		zap.Int("certificates_found", found),
		zap.Int64("permits_updated", updated),
		zap.Int64("contractors_linked", linked),
	)

	return &Result{
		Rows: linked,
		Counters: map[string]any{
			"permitsChecked":    len(permits),
			"certificatesFound": found,
			"permitsUpdated":    updated,
			"contractorsLinked": linked,
		},
	}, nil
}

// unlinkedFinaledPermits returns finaled permits whose build has no primary
// contractor yet.
func (s *CertificateSync) unlinkedFinaledPermits(ctx context.Context, limit int) ([]certCandidate, error) {
	rows, err := s.deps.Pool.Query(ctx,
		`SELECT p.permit_number, p.finaled_date IS NOT NULL, b.build_id
		 FROM permit_data.permits p
		 JOIN permit_data.builds b ON b.permit_number = p.permit_number
		 WHERE (p.status = 'Permit Finaled' OR p.finaled_date IS NOT NULL)
		   AND NOT EXISTS (
		     SELECT 1 FROM permit_data.build_contractors bc
		     WHERE bc.build_id = b.build_id AND bc.role = 'PRIMARY'
		   )
		 ORDER BY p.permit_number
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list unlinked finaled permits")
	}
	defer rows.Close()

	var out []certCandidate
	for rows.Next() {
		var c certCandidate
		if err := rows.Scan(&c.permitNumber, &c.finaledDate, &c.buildID); err != nil {
			return nil, eris.Wrap(err, "pipeline: scan unlinked permit")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// findCertificate probes the certificate dataset for the base number and
// each amendment candidate, returning the first record found or nil.
func (s *CertificateSync) findCertificate(ctx context.Context, base string) (socrata.Record, error) {
	numbers := append([]string{base}, permit.AmendmentCandidates(base, s.deps.Pipeline.AmendmentDigitOffset)...)
	for _, nbr := range numbers {
		records, err := s.deps.Source.Query(ctx, s.deps.Socrata.CertificatesDataset, socrata.Query{
			Where: fmt.Sprintf("pcis_permit = %s", socrata.Quote(nbr)),
			Limit: 1,
		})
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return records[0], nil
		}
	}
	return nil, nil
}

// resolveContractor returns the contractor id for a license number, creating
// the contractor on first sight. Certificates without a business name still
// get a row; the name stays a placeholder until a better record shows up.
func (s *CertificateSync) resolveContractor(ctx context.Context, license string, rec socrata.Record) (int64, error) {
	var id int64
	err := s.deps.Pool.QueryRow(ctx,
		`SELECT contractor_id FROM permit_data.contractors WHERE license_number = $1`, license,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !eris.Is(err, pgx.ErrNoRows) {
		return 0, eris.Wrapf(err, "pipeline: lookup contractor %s", license)
	}

	name := strings.TrimSpace(rec.Str("contractors_business_name"))
	if name == "" {
		name = "Unknown"
	}
	err = s.deps.Pool.QueryRow(ctx,
		`INSERT INTO permit_data.contractors (license_number, name, license_type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (license_number) DO UPDATE SET license_number = EXCLUDED.license_number
		 RETURNING contractor_id`,
		license, name, nullStr(rec.Str("license_type")),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "pipeline: create contractor %s", license)
	}
	return id, nil
}

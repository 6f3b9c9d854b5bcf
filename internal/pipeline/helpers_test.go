package pipeline

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"go.uber.org/zap"

	"github.com/permitscope/permitscope/internal/config"
	"github.com/permitscope/permitscope/internal/db"
	"github.com/permitscope/permitscope/internal/socrata"
)

func init() {
	// Replace global logger with a no-op to avoid nil pointer panics in tests.
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeSource replays canned pages and records every query it receives.
type fakeSource struct {
	pages    [][]socrata.Record
	err      error
	call     int
	datasets []string
	queries  []socrata.Query
}

func (f *fakeSource) Query(_ context.Context, dataset string, q socrata.Query) ([]socrata.Record, error) {
	f.datasets = append(f.datasets, dataset)
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	if f.call >= len(f.pages) {
		return nil, nil
	}
	page := f.pages[f.call]
	f.call++
	return page, nil
}

func testDeps(mock pgxmock.PgxPoolIface, src socrata.Source) Deps {
	return Deps{
		Pool:   mock,
		Source: src,
		Socrata: config.SocrataConfig{
			PermitsDataset:      "pi9x-tg5x",
			InspectionsDataset:  "9w5z-rg2h",
			CertificatesDataset: "y3gg-54j8",
		},
		Pipeline: config.PipelineConfig{
			Jurisdiction:         "Los Angeles",
			BackfillStart:        "2020-01-01",
			PageSize:             2,
			MaxPages:             3,
			PermitBatch:          2,
			AmendmentDigitOffset: 9,
			StalenessMonths:      18,
		},
	}
}

// expectBulkUpsert adds the expectation sequence for one db.BulkUpsert call.
func expectBulkUpsert(mock pgxmock.PgxPoolIface, cfg db.UpsertConfig, rows int64) {
	tmp := "_tmp_upsert_" + strings.ReplaceAll(cfg.Table, ".", "_")
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{tmp}, cfg.Columns).WillReturnResult(rows)
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", rows))
	mock.ExpectCommit()
}

func expectJurisdiction(mock pgxmock.PgxPoolIface, id int) {
	mock.ExpectQuery("SELECT jurisdiction_id FROM permit_data.jurisdictions").
		WithArgs("Los Angeles").
		WillReturnRows(pgxmock.NewRows([]string{"jurisdiction_id"}).AddRow(id))
}

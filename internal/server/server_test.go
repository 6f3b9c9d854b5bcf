package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/permitscope/permitscope/internal/config"
	"github.com/permitscope/permitscope/internal/model"
	"github.com/permitscope/permitscope/internal/pipeline"
	"github.com/permitscope/permitscope/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeRunner struct {
	stage string
	opts  pipeline.RunOpts
	res   *pipeline.Result
	err   error
	calls int
}

func (f *fakeRunner) Run(_ context.Context, name string, opts pipeline.RunOpts) (*pipeline.Result, error) {
	f.calls++
	f.stage = name
	f.opts = opts
	return f.res, f.err
}

type fakeRunLog struct {
	runs []model.JobRun
	err  error
}

func (f *fakeRunLog) List(context.Context, int) ([]model.JobRun, error) { return f.runs, f.err }

type fakeReader struct {
	contractors []model.Contractor
	timeline    *store.PermitTimeline
	err         error
}

func (f *fakeReader) ListContractors(context.Context, int) ([]model.Contractor, error) {
	return f.contractors, f.err
}

func (f *fakeReader) PermitTimeline(context.Context, string) (*store.PermitTimeline, error) {
	if f.timeline == nil && f.err == nil {
		return nil, store.ErrNotFound
	}
	return f.timeline, f.err
}

func testServer(runner Runner, runs RunLog, reader Reader) *Server {
	return New(config.ServerConfig{
		CronSecret:     "s3cret",
		AllowedOrigins: []string{"*"},
	}, runner, runs, reader)
}

func TestHealth(t *testing.T) {
	srv := testServer(&fakeRunner{}, &fakeRunLog{}, &fakeReader{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCron_RequiresSecret(t *testing.T) {
	runner := &fakeRunner{res: &pipeline.Result{}}
	srv := testServer(runner, &fakeRunLog{}, &fakeReader{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cron/sync-permits", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, runner.calls)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/cron/sync-permits", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, runner.calls)
}

func TestCron_EmptySecretRejectsAll(t *testing.T) {
	runner := &fakeRunner{res: &pipeline.Result{}}
	srv := New(config.ServerConfig{}, runner, &fakeRunLog{}, &fakeReader{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/cron/sync-permits", nil)
	req.Header.Set("Authorization", "Bearer ")
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, runner.calls)
}

func TestCron_RunsStageWithOpts(t *testing.T) {
	runner := &fakeRunner{res: &pipeline.Result{
		Rows:     7,
		Counters: map[string]any{"imported": 7, "nextOffset": 200, "done": false},
	}}
	srv := testServer(runner, &fakeRunLog{}, &fakeReader{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/cron/sync-permits?limit=500&pages=2&offset=100&since=2024-01-01&dryRun=true", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sync_permits", runner.stage)
	assert.Equal(t, 500, runner.opts.Limit)
	assert.Equal(t, 2, runner.opts.Pages)
	require.NotNil(t, runner.opts.Offset)
	assert.Equal(t, 100, *runner.opts.Offset)
	require.NotNil(t, runner.opts.Since)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *runner.opts.Since)
	assert.True(t, runner.opts.DryRun)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(7), body["rows"])
	assert.Equal(t, float64(200), body["nextOffset"])
}

func TestCron_ImportAmendmentsAlias(t *testing.T) {
	runner := &fakeRunner{res: &pipeline.Result{Rows: 3}}
	srv := testServer(runner, &fakeRunLog{}, &fakeReader{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/cron/import-amendments?offset=0", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sync_amendments", runner.stage)
	require.NotNil(t, runner.opts.Offset)
	assert.Equal(t, 0, *runner.opts.Offset)
}

func TestCron_BadParam(t *testing.T) {
	runner := &fakeRunner{res: &pipeline.Result{}}
	srv := testServer(runner, &fakeRunLog{}, &fakeReader{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/cron/sync-permits?offset=abc", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, runner.calls)
}

func TestCron_StageError(t *testing.T) {
	runner := &fakeRunner{err: assert.AnError}
	srv := testServer(runner, &fakeRunLog{}, &fakeReader{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/cron/sync-permits", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
}

func TestContractors(t *testing.T) {
	reader := &fakeReader{contractors: []model.Contractor{
		{ContractorID: 1, LicenseNumber: "123456", Name: "ACME", TotalBuilds: 3},
	}}
	srv := testServer(&fakeRunner{}, &fakeRunLog{}, reader)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/contractors?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ACME")
}

func TestTimeline_NotFound(t *testing.T) {
	srv := testServer(&fakeRunner{}, &fakeRunLog{}, &fakeReader{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/permits/unknown/timeline", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTimeline_Found(t *testing.T) {
	reader := &fakeReader{timeline: &store.PermitTimeline{
		Permit: model.Permit{PermitNumber: "23016-10000-03255"},
	}}
	srv := testServer(&fakeRunner{}, &fakeRunLog{}, reader)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/permits/23016-10000-03255/timeline", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "23016-10000-03255")
}

func TestRuns(t *testing.T) {
	runs := &fakeRunLog{runs: []model.JobRun{
		{ID: "abc", JobName: "sync_permits", Status: model.JobSuccess, RowCount: 3},
	}}
	srv := testServer(&fakeRunner{}, runs, &fakeReader{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sync_permits")
}

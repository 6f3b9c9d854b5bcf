// Package socrata is a minimal client for Socrata Open Data (SODA) JSON
// endpoints: structured filters, limit/offset pagination, ordering, and
// column projection. The pipeline treats the API as a black-box paginated
// record source that is eventually consistent and network-unreliable.
package socrata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/permitscope/permitscope/internal/config"
)

// Source is the read interface pipeline stages depend on; it exists so
// tests can substitute a fake for the live API.
type Source interface {
	Query(ctx context.Context, dataset string, q Query) ([]Record, error)
}

// Query describes one SODA request.
type Query struct {
	Where  string   // $where filter expression
	Order  string   // $order clause
	Select []string // $select column projection; empty = all columns
	Limit  int      // $limit page size
	Offset int      // $offset
}

// Record is one flat source row. Socrata returns most values as strings,
// but numeric columns can come back as JSON numbers, so accessors handle
// both shapes.
type Record map[string]any

// Str returns the string value for key, or "" when absent.
func (r Record) Str(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Float parses the value for key as a float, returning nil when absent or
// malformed. Missing numerics are data-quality gaps, not errors.
func (r Record) Float(key string) *float64 {
	switch v := r[key].(type) {
	case float64:
		return &v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// Socrata floating timestamps and plain dates, in observed order.
var dateLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Date parses the value for key as a timestamp, returning nil when absent
// or malformed.
func (r Record) Date(key string) *time.Time {
	s := r.Str(key)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// Client talks to one Socrata domain.
type Client struct {
	baseURL  string
	appToken string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient builds a rate-limited client from configuration.
func NewClient(cfg config.SocrataConfig) *Client {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		appToken: cfg.AppToken,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Query fetches one page of records from a dataset. Any non-2xx response
// aborts with an error carrying the HTTP status.
func (c *Client) Query(ctx context.Context, dataset string, q Query) ([]Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "socrata: rate limit wait")
	}

	params := url.Values{}
	if q.Where != "" {
		params.Set("$where", q.Where)
	}
	if q.Order != "" {
		params.Set("$order", q.Order)
	}
	if len(q.Select) > 0 {
		params.Set("$select", strings.Join(q.Select, ","))
	}
	if q.Limit > 0 {
		params.Set("$limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("$offset", strconv.Itoa(q.Offset))
	}

	reqURL := fmt.Sprintf("%s/%s.json?%s", c.baseURL, dataset, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "socrata: build request for %s", dataset)
	}
	req.Header.Set("Accept", "application/json")
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "socrata: fetch %s", dataset)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Errorf("socrata: %s returned HTTP %d: %s", dataset, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, eris.Wrapf(err, "socrata: decode %s response", dataset)
	}

	zap.L().Debug("socrata page fetched",
		zap.String("dataset", dataset),
		zap.Int("rows", len(records)),
		zap.Int("offset", q.Offset),
	)
	return records, nil
}

// QuoteList renders a quoted, comma-separated literal list for use in an
// "in (...)" filter, escaping embedded single quotes.
func QuoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(quoted, ",")
}

// Quote renders a single quoted literal.
func Quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

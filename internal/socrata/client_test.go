package socrata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permitscope/permitscope/internal/config"
)

func testClient(serverURL string) *Client {
	return NewClient(config.SocrataConfig{
		BaseURL:        serverURL,
		AppToken:       "tok",
		TimeoutSecs:    5,
		RequestsPerSec: 1000,
	})
}

func TestClient_Query(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	var gotToken string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotToken = r.Header.Get("X-App-Token")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"permit_nbr":"23016-10000-03255","valuation":"150000","lat":34.05,"issue_date":"2024-03-01T00:00:00.000"}]`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	records, err := c.Query(context.Background(), "pi9x-tg5x", Query{
		Where:  "issue_date > '2024-01-01'",
		Order:  "issue_date ASC",
		Select: []string{"permit_nbr", "issue_date"},
		Limit:  500,
		Offset: 1000,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "/pi9x-tg5x.json", gotPath)
	assert.Equal(t, "issue_date > '2024-01-01'", gotQuery["$where"][0])
	assert.Equal(t, "issue_date ASC", gotQuery["$order"][0])
	assert.Equal(t, "permit_nbr,issue_date", gotQuery["$select"][0])
	assert.Equal(t, "500", gotQuery["$limit"][0])
	assert.Equal(t, "1000", gotQuery["$offset"][0])
	assert.Equal(t, "tok", gotToken)

	r := records[0]
	assert.Equal(t, "23016-10000-03255", r.Str("permit_nbr"))
	require.NotNil(t, r.Float("valuation"))
	assert.Equal(t, 150000.0, *r.Float("valuation"))
	require.NotNil(t, r.Float("lat"))
	assert.Equal(t, 34.05, *r.Float("lat"))
	require.NotNil(t, r.Date("issue_date"))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *r.Date("issue_date"))
}

func TestClient_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Query(context.Background(), "pi9x-tg5x", Query{Limit: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Query(context.Background(), "pi9x-tg5x", Query{Limit: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestRecord_MissingFields(t *testing.T) {
	r := Record{}
	assert.Equal(t, "", r.Str("permit_nbr"))
	assert.Nil(t, r.Float("valuation"))
	assert.Nil(t, r.Date("issue_date"))
}

func TestRecord_MalformedValues(t *testing.T) {
	r := Record{"valuation": "n/a", "issue_date": "tomorrow"}
	assert.Nil(t, r.Float("valuation"))
	assert.Nil(t, r.Date("issue_date"))
}

func TestQuoteList(t *testing.T) {
	got := QuoteList([]string{"A", "B'C"})
	assert.Equal(t, "'A','B''C'", got)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "'O''Brien'", Quote("O'Brien"))
}

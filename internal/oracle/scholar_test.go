// Copyright HCSS Utils, 2026. All rights reserved.

package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

func resultPage(countText string) string {
	return fmt.Sprintf(`<html><body><div id="gs_ab_md">%s</div><div class="gs_r">...</div></body></html>`, countText)
}

func newTestCounter(t *testing.T, ts *httptest.Server, cfg types.OracleConfig) *ScholarCounter {
	t.Helper()

	old := scholarSearchBase
	scholarSearchBase = ts.URL
	t.Cleanup(func() { scholarSearchBase = old })

	c, err := NewScholarCounter(cfg, NewPacer(cfg))
	require.NoError(t, err)
	return c
}

func TestScholarCountSuccess(t *testing.T) {
	var gotQuery, gotYlo, gotYhi string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotYlo = r.URL.Query().Get("as_ylo")
		gotYhi = r.URL.Query().Get("as_yhi")
		fmt.Fprint(w, resultPage("About 17,100 results (0.06 sec)"))
	}))
	defer ts.Close()

	c := newTestCounter(t, ts, fastOracleConfig())

	spec := types.QuerySpec{
		Base:      "climate adaptation",
		Modifiers: []types.Modifier{{Text: "resilience"}},
		Operator:  types.OpAnd,
		YearStart: 2020,
		YearEnd:   2020,
	}
	res, err := c.Count(context.Background(), spec)
	require.NoError(t, err)

	assert.Equal(t, types.StatusSuccess, res.Status)
	assert.Equal(t, 17100, res.Count)
	assert.True(t, res.Resolved())
	assert.Equal(t, `climate adaptation AND "resilience"`, gotQuery)
	assert.Equal(t, "2020", gotYlo)
	assert.Equal(t, "2020", gotYhi)
}

func TestScholarCountNoMatchesIsTrueZero(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>Your search did not match any articles.</body></html>`)
	}))
	defer ts.Close()

	c := newTestCounter(t, ts, fastOracleConfig())

	res, err := c.Count(context.Background(), types.QuerySpec{Base: "xyzzy plugh"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, res.Status)
	assert.Equal(t, 0, res.Count)
}

func TestScholarCountRetriesBlocksThenSucceeds(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, resultPage("About 850 results"))
	}))
	defer ts.Close()

	c := newTestCounter(t, ts, fastOracleConfig())

	res, err := c.Count(context.Background(), types.QuerySpec{Base: "climate adaptation"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, res.Status)
	assert.Equal(t, 850, res.Count)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestScholarCountBlockBudgetExhausted(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	cfg := fastOracleConfig()
	cfg.MaxRetries = 1
	c := newTestCounter(t, ts, cfg)

	res, err := c.Count(context.Background(), types.QuerySpec{Base: "climate adaptation"})
	require.NoError(t, err, "an exhausted block budget is a status, not an error")
	assert.Equal(t, types.StatusBlocked, res.Status)
	assert.False(t, res.Resolved())
	// 1 initial + 1 retry.
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestScholarCountCaptchaPageIsBlock(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Abuse interstitials come back with HTTP 200.
		fmt.Fprint(w, `<html><body><div id="gs_captcha_ccl">unusual traffic from your computer network</div></body></html>`)
	}))
	defer ts.Close()

	cfg := fastOracleConfig()
	cfg.MaxRetries = 1
	c := newTestCounter(t, ts, cfg)

	res, err := c.Count(context.Background(), types.QuerySpec{Base: "climate adaptation"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusBlocked, res.Status)
}

func TestScholarCountNetworkBudgetExhausted(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	cfg := fastOracleConfig()
	cfg.NetworkRetries = 1
	c := newTestCounter(t, ts, cfg)

	res, err := c.Count(context.Background(), types.QuerySpec{Base: "climate adaptation"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusNetworkError, res.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestScholarCountParseErrorNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `<html><body>unexpected layout</body></html>`)
	}))
	defer ts.Close()

	c := newTestCounter(t, ts, fastOracleConfig())

	res, err := c.Count(context.Background(), types.QuerySpec{Base: "climate adaptation"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusParseError, res.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestScholarCountContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	cfg := fastOracleConfig()
	cfg.ErrorDelay = time.Hour
	c := newTestCounter(t, ts, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Count(ctx, types.QuerySpec{Base: "climate adaptation"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewScholarCounterRejectsBadProxy(t *testing.T) {
	cfg := fastOracleConfig()
	cfg.ProxyURL = "http://[::1]:namedport"
	_, err := NewScholarCounter(cfg, NewPacer(cfg))
	assert.ErrorContains(t, err, "invalid proxy URL")
}

func TestParseResultCount(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		want    int
		outcome fetchOutcome
	}{
		{
			name:    "about with thousands separator",
			page:    resultPage("About 17,100 results (0.06 sec)"),
			want:    17100,
			outcome: outcomeOK,
		},
		{
			name:    "plain count without About",
			page:    resultPage("3 results (0.02 sec)"),
			want:    3,
			outcome: outcomeOK,
		},
		{
			name:    "singular result",
			page:    resultPage("1 result (0.01 sec)"),
			want:    1,
			outcome: outcomeOK,
		},
		{
			name:    "non-breaking space separator",
			page:    resultPage("About 17 100 results"),
			want:    17100,
			outcome: outcomeOK,
		},
		{
			name:    "count outside result bar still found",
			page:    `<html><body>About 420 results</body></html>`,
			want:    420,
			outcome: outcomeOK,
		},
		{
			name:    "no match message is zero",
			page:    `<html><body>Your search did not match any articles.</body></html>`,
			want:    0,
			outcome: outcomeOK,
		},
		{
			name:    "captcha interstitial",
			page:    `<html><body><form id="gs_captcha_f"></form></body></html>`,
			outcome: outcomeBlocked,
		},
		{
			name:    "recaptcha interstitial",
			page:    `<html><body><div class="g-recaptcha"></div></body></html>`,
			outcome: outcomeBlocked,
		},
		{
			name:    "unrecognized layout",
			page:    `<html><body>nothing to see</body></html>`,
			outcome: outcomeParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, outcome := parseResultCount(tt.page)
			assert.Equal(t, tt.outcome, outcome)
			if tt.outcome == outcomeOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

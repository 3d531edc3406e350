// Copyright HCSS Utils, 2026. All rights reserved.

package oracle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

// scholarSearchBase is the Google Scholar search endpoint. Declared as a var
// so tests can substitute an httptest server.
var scholarSearchBase = "https://scholar.google.com/scholar"

// ScholarCounter counts hits by fetching the first result page and parsing
// the result-count string. Every call goes through the shared Pacer; block
// signals retry with escalating backoff up to the configured budget, network
// faults retry on a short non-escalating budget, and malformed pages are
// surfaced immediately as parse errors.
type ScholarCounter struct {
	client *http.Client
	cfg    types.OracleConfig
	pacer  *Pacer
}

// NewScholarCounter builds the real oracle client. When cfg.ProxyURL is set,
// requests are routed through that proxy; proxy failures are classified the
// same way as direct failures.
func NewScholarCounter(cfg types.OracleConfig, pacer *Pacer) (*ScholarCounter, error) {
	cfg = cfg.WithOracleDefaults()

	transport := http.DefaultTransport
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.ProxyURL, err)
		}
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.Proxy = http.ProxyURL(proxy)
		transport = t
	}

	return &ScholarCounter{
		client: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		cfg:    cfg,
		pacer:  pacer,
	}, nil
}

// fetchOutcome classifies a single page fetch before retry policy is applied.
type fetchOutcome int

const (
	outcomeOK fetchOutcome = iota
	outcomeBlocked
	outcomeNetwork
	outcomeParse
)

// Count fetches the hit count for spec, retrying blocks and transient network
// failures per the configured budgets. The returned result always carries a
// terminal status; the error is non-nil only on context cancellation.
func (c *ScholarCounter) Count(ctx context.Context, spec types.QuerySpec) (types.HitCountResult, error) {
	result := types.HitCountResult{Spec: spec, Timestamp: time.Now()}

	blockAttempts := 0
	networkAttempts := 0
	for {
		if err := c.pacer.Wait(ctx); err != nil {
			return result, err
		}

		count, outcome := c.fetch(ctx, spec)
		switch outcome {
		case outcomeOK:
			c.pacer.Reset()
			result.Count = count
			result.Status = types.StatusSuccess
			result.Timestamp = time.Now()
			return result, nil

		case outcomeBlocked:
			blockAttempts++
			if blockAttempts > c.cfg.MaxRetries {
				result.Status = types.StatusBlocked
				return result, nil
			}
			if _, err := c.pacer.WaitBlocked(ctx); err != nil {
				return result, err
			}

		case outcomeNetwork:
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			networkAttempts++
			if networkAttempts > c.cfg.NetworkRetries {
				result.Status = types.StatusNetworkError
				return result, nil
			}
			if err := sleep(ctx, c.cfg.NetworkRetryDelay); err != nil {
				return result, err
			}

		case outcomeParse:
			// Retrying cannot fix a page we do not understand.
			result.Status = types.StatusParseError
			return result, nil
		}
	}
}

// fetch issues one page request and classifies the response.
func (c *ScholarCounter) fetch(ctx context.Context, spec types.QuerySpec) (int, fetchOutcome) {
	params := url.Values{
		"q":  {types.NormalizeQuery(spec.QueryText())},
		"hl": {"en"},
	}
	if spec.YearStart > 0 {
		params.Set("as_ylo", strconv.Itoa(spec.YearStart))
	}
	if spec.YearEnd > 0 {
		params.Set("as_yhi", strconv.Itoa(spec.YearEnd))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scholarSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return 0, outcomeNetwork
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, outcomeNetwork
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return 0, outcomeBlocked
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return 0, outcomeNetwork
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, outcomeNetwork
	}

	return parseResultCount(string(body))
}

var (
	resultCountRe = regexp.MustCompile(`(?i)(?:About\s+)?([\d][\d,.\x{00a0}\s]*)\s+results?`)
	resultBarRe   = regexp.MustCompile(`(?s)<div id="gs_ab_md">(.*?)</div>`)
	countCleaner  = strings.NewReplacer(",", "", ".", "", " ", "", " ", "")
)

// parseResultCount extracts the hit count from a result page. It prefers the
// result bar div when present, falls back to the whole page, and treats an
// explicit no-match message as a true zero.
func parseResultCount(page string) (int, fetchOutcome) {
	if isBlockPage(page) {
		return 0, outcomeBlocked
	}
	if strings.Contains(page, "did not match any articles") {
		return 0, outcomeOK
	}

	scope := page
	if m := resultBarRe.FindStringSubmatch(page); m != nil {
		scope = m[1]
	}

	m := resultCountRe.FindStringSubmatch(scope)
	if m == nil {
		return 0, outcomeParse
	}
	n, err := strconv.Atoi(countCleaner.Replace(strings.TrimSpace(m[1])))
	if err != nil {
		return 0, outcomeParse
	}
	return n, outcomeOK
}

// isBlockPage detects CAPTCHA and abuse-detection interstitials served with
// HTTP 200.
func isBlockPage(page string) bool {
	lower := strings.ToLower(page)
	return strings.Contains(lower, "gs_captcha") ||
		strings.Contains(lower, "unusual traffic") ||
		strings.Contains(lower, "recaptcha")
}

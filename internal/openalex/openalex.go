// Copyright HCSS Utils, 2026. All rights reserved.

// Package openalex downloads work metadata from the OpenAlex API. The
// downloaded corpus is the input of the external keyword/entity extraction
// step that produces modifier candidates for the splitting engine.
package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hcss-utils/scholar-query-splitter/internal/httputil"
	"github.com/hcss-utils/scholar-query-splitter/pkg/types"
)

// worksBase is the OpenAlex Works endpoint. Declared as a var so tests can
// substitute an httptest server.
var worksBase = "https://api.openalex.org/works"

// interPageDelay spaces out cursor pages. Tests override it to zero.
var interPageDelay = 100 * time.Millisecond

// Downloader fetches open-access work metadata with cursor pagination.
type Downloader struct {
	Client *http.Client
	Config types.FetchConfig
}

// NewDownloader builds a downloader from fetch configuration.
func NewDownloader(cfg types.FetchConfig) *Downloader {
	cfg = cfg.WithFetchDefaults()
	return &Downloader{
		Client: &http.Client{Timeout: cfg.Timeout},
		Config: cfg,
	}
}

// Author is one work author.
type Author struct {
	Name  string `json:"name"`
	ORCID string `json:"orcid,omitempty"`
}

// Concept is one work-level concept annotation with its confidence score.
type Concept struct {
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

// Work is the extracted metadata for one OpenAlex work.
type Work struct {
	ID              string    `json:"id"`
	DOI             string    `json:"doi,omitempty"`
	Title           string    `json:"title"`
	PublicationYear int       `json:"publication_year,omitempty"`
	PublicationDate string    `json:"publication_date,omitempty"`
	Type            string    `json:"type,omitempty"`
	CitedByCount    int       `json:"cited_by_count"`
	Abstract        string    `json:"abstract,omitempty"`
	Authors         []Author  `json:"authors,omitempty"`
	Concepts        []Concept `json:"concepts,omitempty"`
	OAURL           string    `json:"oa_url,omitempty"`
}

// Corpus is the on-disk download result consumed by the extraction step.
type Corpus struct {
	Query        string    `json:"query"`
	Timestamp    time.Time `json:"timestamp"`
	TotalResults int       `json:"total_results"`
	Results      []Work    `json:"results"`
}

// Download fetches up to MaxResults open-access works matching query within
// the year range, following the cursor until exhausted. Progress is written
// to w; HTTP 429/503 responses are retried with backoff.
func (d *Downloader) Download(ctx context.Context, query string, yearStart, yearEnd int, w io.Writer) (*Corpus, error) {
	if query == "" {
		return nil, fmt.Errorf("empty OpenAlex query")
	}

	filters := []string{"is_oa:true", "has_fulltext:true"}
	if yearStart > 0 {
		filters = append(filters, "from_publication_date:"+strconv.Itoa(yearStart)+"-01-01")
	}
	if yearEnd > 0 {
		filters = append(filters, "to_publication_date:"+strconv.Itoa(yearEnd)+"-12-31")
	}

	params := url.Values{
		"search":   {query},
		"filter":   {strings.Join(filters, ",")},
		"per-page": {strconv.Itoa(d.Config.PerPage)},
		"cursor":   {"*"},
	}
	if d.Config.Email != "" {
		params.Set("mailto", d.Config.Email)
	}

	corpus := &Corpus{Query: query, Timestamp: time.Now()}

	for len(corpus.Results) < d.Config.MaxResults {
		page, nextCursor, err := d.fetchPage(ctx, params)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		for _, work := range page {
			if work.Title == "" {
				continue
			}
			corpus.Results = append(corpus.Results, work)
			if len(corpus.Results) >= d.Config.MaxResults {
				break
			}
		}
		fmt.Fprintf(w, "fetched %d works\n", len(corpus.Results))

		if nextCursor == "" {
			break
		}
		params.Set("cursor", nextCursor)

		// Be polite to the API between pages.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interPageDelay):
		}
	}

	corpus.TotalResults = len(corpus.Results)
	return corpus, nil
}

func (d *Downloader) fetchPage(ctx context.Context, params url.Values) ([]Work, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, worksBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", d.Config.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, d.Client, req, 0)
	if err != nil {
		return nil, "", fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)
	}

	var page worksResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	works := make([]Work, 0, len(page.Results))
	for _, raw := range page.Results {
		works = append(works, extractWork(raw))
	}
	return works, page.Meta.NextCursor, nil
}

// extractWork flattens a raw API work into the corpus shape, reconstructing
// the abstract from the inverted index.
func extractWork(raw rawWork) Work {
	work := Work{
		ID:              raw.ID,
		DOI:             strings.TrimPrefix(raw.DOI, "https://doi.org/"),
		Title:           raw.Title,
		PublicationYear: raw.PublicationYear,
		PublicationDate: raw.PublicationDate,
		Type:            raw.Type,
		CitedByCount:    raw.CitedByCount,
		Abstract:        reconstructAbstract(raw.AbstractInvertedIndex),
		OAURL:           raw.OpenAccess.OAURL,
	}
	if work.Title == "" {
		work.Title = raw.DisplayName
	}

	for _, authorship := range raw.Authorships {
		if authorship.Author.DisplayName == "" {
			continue
		}
		work.Authors = append(work.Authors, Author{
			Name:  authorship.Author.DisplayName,
			ORCID: authorship.Author.ORCID,
		})
	}
	for _, c := range raw.Concepts {
		work.Concepts = append(work.Concepts, Concept{
			DisplayName: c.DisplayName,
			Score:       c.Score,
		})
	}
	return work
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions where
// that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// SaveCorpus writes the corpus to JSONDir with a timestamped filename and
// returns the path.
func (d *Downloader) SaveCorpus(corpus *Corpus) (string, error) {
	if err := os.MkdirAll(d.Config.JSONDir, 0o755); err != nil {
		return "", fmt.Errorf("creating JSON directory: %w", err)
	}

	name := fmt.Sprintf("openalex_%s_%d_results.json",
		corpus.Timestamp.Format("20060102_150405"), corpus.TotalResults)
	path := filepath.Join(d.Config.JSONDir, name)

	data, err := json.MarshalIndent(corpus, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling corpus: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing corpus: %w", err)
	}
	return path, nil
}

// OpenAlex API JSON structures.
type worksResponse struct {
	Meta    worksMeta `json:"meta"`
	Results []rawWork `json:"results"`
}

type worksMeta struct {
	Count      int    `json:"count"`
	NextCursor string `json:"next_cursor"`
}

type rawWork struct {
	ID                    string           `json:"id"`
	DOI                   string           `json:"doi"`
	Title                 string           `json:"title"`
	DisplayName           string           `json:"display_name"`
	PublicationYear       int              `json:"publication_year"`
	PublicationDate       string           `json:"publication_date"`
	Type                  string           `json:"type"`
	CitedByCount          int              `json:"cited_by_count"`
	Authorships           []rawAuthorship  `json:"authorships"`
	Concepts              []rawConcept     `json:"concepts"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	OpenAccess            rawOpenAccess    `json:"open_access"`
}

type rawAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
		ORCID       string `json:"orcid"`
	} `json:"author"`
}

type rawConcept struct {
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

type rawOpenAccess struct {
	OAURL string `json:"oa_url"`
}

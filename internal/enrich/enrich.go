// Package enrich provides best-effort encyclopedia summaries and coarse
// geolocation for captured species. Lookups are cached and failures degrade
// to empty results; nothing here is allowed to block or fail the pipeline.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"unicode"

	"github.com/patrickmn/go-cache"

	"github.com/zdex/zdex-go/internal/conf"
	"github.com/zdex/zdex-go/internal/errors"
	"github.com/zdex/zdex-go/internal/logging"
)

const summaryEndpoint = "https://%s.wikipedia.org/api/rest_v1/page/summary/%s"

// Summary is a short encyclopedia blurb for a species.
type Summary struct {
	Title    string
	Extract  string
	PageURL  string
	Language string
}

// Client fetches and caches species summaries and the device location.
type Client struct {
	settings conf.EnrichmentSettings
	http     *http.Client
	cache    *cache.Cache
	log      *slog.Logger

	locationMu sync.Mutex
	location   *Location
}

// NewClient builds an enrichment client from settings.
func NewClient(settings conf.EnrichmentSettings) *Client {
	return &Client{
		settings: settings,
		http:     &http.Client{Timeout: settings.Timeout},
		cache:    cache.New(settings.CacheTTL, 2*settings.CacheTTL),
		log:      logging.ForService("enrich"),
	}
}

// Summary looks up an encyclopedia summary for the species, trying each
// configured language in order. Results, including misses, are cached.
func (c *Client) Summary(ctx context.Context, scientificName string) (*Summary, error) {
	key := "summary:" + scientificName
	if cached, ok := c.cache.Get(key); ok {
		if cached == nil {
			return nil, nil
		}
		s := cached.(Summary)
		return &s, nil
	}

	var lastErr error
	for _, lang := range c.settings.Languages {
		summary, err := c.fetchSummary(ctx, lang, scientificName)
		if err != nil {
			lastErr = err
			continue
		}
		if summary != nil {
			c.cache.SetDefault(key, *summary)
			return summary, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	// Negative result: cache the miss so repeated sightings of an unknown
	// species do not hammer the API.
	c.cache.SetDefault(key, nil)
	return nil, nil
}

type summaryResponse struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
	Lang    string `json:"lang"`
	Content struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

func (c *Client) fetchSummary(ctx context.Context, lang, name string) (*Summary, error) {
	endpoint := fmt.Sprintf(summaryEndpoint, lang, url.PathEscape(titleCase(name)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.New(fmt.Errorf("fetching summary: %w", err)).
			Component("enrich").
			Category(errors.CategoryImageFetch).
			Context("species", name).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(fmt.Errorf("summary request returned %d", resp.StatusCode)).
			Component("enrich").
			Category(errors.CategoryImageFetch).
			Context("species", name).
			Build()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var parsed summaryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	if parsed.Extract == "" {
		return nil, nil
	}

	return &Summary{
		Title:    parsed.Title,
		Extract:  truncate(parsed.Extract, c.settings.SummaryCharLimit),
		PageURL:  parsed.Content.Desktop.Page,
		Language: lang,
	}, nil
}

// titleCase capitalizes the first rune; Wikipedia titles for scientific
// names are written "Canis familiaris".
func titleCase(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	runes := []rune(name)
	runes[0] = unicode.ToUpper(runes[0])
	return strings.ReplaceAll(string(runes), " ", "_")
}

// truncate cuts the text at the last sentence boundary within limit, or at
// limit with an ellipsis when no boundary exists.
func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndex(cut, ". "); idx > 0 {
		return cut[:idx+1]
	}
	return strings.TrimSpace(cut) + "…"
}

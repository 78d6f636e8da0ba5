package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zdex/zdex-go/internal/conf"
)

func testSettings() conf.EnrichmentSettings {
	return conf.EnrichmentSettings{
		Languages:        []string{"en"},
		SummaryCharLimit: 600,
		CacheTTL:         time.Minute,
		GeolocationURL:   "https://ipapi.co/json/",
		Timeout:          2 * time.Second,
	}
}

func newMockedClient(t *testing.T, settings conf.EnrichmentSettings) *Client {
	t.Helper()
	client := NewClient(settings)
	httpmock.ActivateNonDefault(client.http)
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

const dogSummaryJSON = `{
	"title": "Dog",
	"extract": "The dog is a domesticated descendant of the gray wolf.",
	"lang": "en",
	"content_urls": {"desktop": {"page": "https://en.wikipedia.org/wiki/Dog"}}
}`

func TestSummaryFetchAndCache(t *testing.T) {
	client := newMockedClient(t, testSettings())
	url := "https://en.wikipedia.org/api/rest_v1/page/summary/Canis_familiaris"
	httpmock.RegisterResponder("GET", url,
		httpmock.NewStringResponder(200, dogSummaryJSON))

	summary, err := client.Summary(context.Background(), "Canis familiaris")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "Dog", summary.Title)
	assert.Contains(t, summary.Extract, "gray wolf")
	assert.Equal(t, "https://en.wikipedia.org/wiki/Dog", summary.PageURL)

	// Second lookup is served from cache.
	_, err = client.Summary(context.Background(), "Canis familiaris")
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestSummaryLanguageFallback(t *testing.T) {
	settings := testSettings()
	settings.Languages = []string{"fi", "en"}
	client := newMockedClient(t, settings)

	httpmock.RegisterResponder("GET",
		"https://fi.wikipedia.org/api/rest_v1/page/summary/Canis_familiaris",
		httpmock.NewStringResponder(404, "not found"))
	httpmock.RegisterResponder("GET",
		"https://en.wikipedia.org/api/rest_v1/page/summary/Canis_familiaris",
		httpmock.NewStringResponder(200, dogSummaryJSON))

	summary, err := client.Summary(context.Background(), "Canis familiaris")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "en", summary.Language)
}

func TestSummaryMissIsCached(t *testing.T) {
	client := newMockedClient(t, testSettings())
	httpmock.RegisterResponder("GET",
		"https://en.wikipedia.org/api/rest_v1/page/summary/Nosuchius_speciesus",
		httpmock.NewStringResponder(404, "not found"))

	for i := 0; i < 3; i++ {
		summary, err := client.Summary(context.Background(), "Nosuchius speciesus")
		require.NoError(t, err)
		assert.Nil(t, summary)
	}
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestSummaryTruncatesAtSentence(t *testing.T) {
	assert.Equal(t, "One. Two.", truncate("One. Two. Three four five", 15))
	assert.Equal(t, "short", truncate("short", 600))
	long := "wordwithoutanyboundary here"
	assert.Equal(t, "wordwithoutany…", truncate(long, 14))
}

func TestLocateUsesFallbackOnError(t *testing.T) {
	client := newMockedClient(t, testSettings())
	httpmock.RegisterResponder("GET", "https://ipapi.co/json/",
		httpmock.NewStringResponder(500, "boom"))

	location := client.Locate(context.Background(), "Backyard")
	assert.Equal(t, "Backyard", location)
}

func TestLocateCachesSuccess(t *testing.T) {
	client := newMockedClient(t, testSettings())
	httpmock.RegisterResponder("GET", "https://ipapi.co/json/",
		httpmock.NewStringResponder(200,
			`{"city":"Helsinki","country_name":"Finland","latitude":60.17,"longitude":24.94}`))

	assert.Equal(t, "Helsinki, Finland", client.Locate(context.Background(), ""))
	assert.Equal(t, "Helsinki, Finland", client.Locate(context.Background(), ""))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestLocateCacheIsPerClient(t *testing.T) {
	first := newMockedClient(t, testSettings())
	httpmock.RegisterResponder("GET", "https://ipapi.co/json/",
		httpmock.NewStringResponder(200,
			`{"city":"Helsinki","country_name":"Finland","latitude":60.17,"longitude":24.94}`))
	assert.Equal(t, "Helsinki, Finland", first.Locate(context.Background(), ""))

	// A fresh client carries no location state from the previous one.
	second := newMockedClient(t, testSettings())
	httpmock.RegisterResponder("GET", "https://ipapi.co/json/",
		httpmock.NewStringResponder(200,
			`{"city":"Oulu","country_name":"Finland","latitude":65.01,"longitude":25.47}`))
	assert.Equal(t, "Oulu, Finland", second.Locate(context.Background(), ""))
}

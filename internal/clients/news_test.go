package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/advisor/internal/capabilities"
)

var newsTestNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func rssFeed(items string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Search results</title>` + items + `</channel></rss>`
}

func rssItem(title string, published time.Time, description string) string {
	return fmt.Sprintf(
		`<item><title>%s</title><link>https://example.com/a</link><description>%s</description>`+
			`<pubDate>%s</pubDate><source url="https://wire.example.com">Wire</source></item>`,
		title, description, published.Format(time.RFC1123Z))
}

func newsClientAgainst(t *testing.T, handler http.HandlerFunc) *NewsClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewNewsClient(server.URL, zerolog.Nop())
	client.now = func() time.Time { return newsTestNow }
	return client
}

func TestNewsFetch(t *testing.T) {
	var gotQuery string
	client := newsClientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		fmt.Fprint(w, rssFeed(
			rssItem("Apple beats estimates", newsTestNow.Add(-2*time.Hour), `<a href="x">Shares &amp; revenue up</a>`)+
				rssItem("Old story", newsTestNow.Add(-80*time.Hour), "stale")))
	})

	articles, err := client.Fetch(context.Background(), "aapl", 48*time.Hour, 25)
	require.NoError(t, err)

	assert.Equal(t, "AAPL stock when:48h", gotQuery)
	require.Len(t, articles, 1)
	assert.Equal(t, "Apple beats estimates", articles[0].Headline)
	assert.Equal(t, "Shares & revenue up", articles[0].Body)
	assert.Equal(t, "Wire", articles[0].Source)
	assert.Equal(t, newsTestNow.Add(-2*time.Hour), articles[0].PublishedAt)
}

func TestNewsFetchCapsArticleCount(t *testing.T) {
	client := newsClientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		var items string
		for i := 0; i < 5; i++ {
			items += rssItem(fmt.Sprintf("Story %d", i), newsTestNow.Add(-time.Hour), "body")
		}
		fmt.Fprint(w, rssFeed(items))
	})

	articles, err := client.Fetch(context.Background(), "AAPL", 48*time.Hour, 3)
	require.NoError(t, err)
	assert.Len(t, articles, 3)
}

func TestNewsFetchRateLimited(t *testing.T) {
	client := newsClientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Fetch(context.Background(), "AAPL", 48*time.Hour, 25)
	require.ErrorIs(t, err, capabilities.ErrRateLimited)
	assert.Equal(t, 30*time.Second, capabilities.RetryAfterHint(err))
}

func TestNewsFetchServerError(t *testing.T) {
	client := newsClientAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Fetch(context.Background(), "AAPL", 48*time.Hour, 25)
	assert.ErrorIs(t, err, capabilities.ErrUnavailable)
}

func TestNewsFetchInvalidSymbol(t *testing.T) {
	client := NewNewsClient("http://unused.invalid", zerolog.Nop())

	_, err := client.Fetch(context.Background(), "not a symbol!", 48*time.Hour, 25)
	assert.ErrorIs(t, err, capabilities.ErrInvalidSymbol)
}

func TestParsePubDate(t *testing.T) {
	parsed, err := parsePubDate("Tue, 10 Mar 2026 09:30:00 +0000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), parsed)

	parsed, err = parsePubDate("Tue, 10 Mar 2026 09:30:00 GMT")
	require.NoError(t, err)
	assert.Equal(t, 9, parsed.Hour())

	_, err = parsePubDate("yesterday")
	assert.Error(t, err)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Shares up 5%", stripHTML(`<p>Shares up <b>5%</b></p>`))
	assert.Equal(t, "plain text", stripHTML("plain text"))
}

func TestNormalizeSymbol(t *testing.T) {
	for raw, want := range map[string]string{
		" aapl ": "AAPL",
		"brk-b":  "BRK-B",
		"^gspc":  "^GSPC",
		"msft":   "MSFT",
	} {
		got, err := normalizeSymbol(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	for _, raw := range []string{"", "   ", "DROP TABLE", "toolongsymbolhere"} {
		_, err := normalizeSymbol(raw)
		assert.ErrorIs(t, err, capabilities.ErrInvalidSymbol, raw)
	}
}

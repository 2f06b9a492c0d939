package clients

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/capabilities"
)

const newsUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type newsRSS struct {
	XMLName xml.Name    `xml:"rss"`
	Channel newsChannel `xml:"channel"`
}

type newsChannel struct {
	Title string     `xml:"title"`
	Items []newsItem `xml:"item"`
}

type newsItem struct {
	Title       string     `xml:"title"`
	Link        string     `xml:"link"`
	Description string     `xml:"description"`
	PubDate     string     `xml:"pubDate"`
	Source      newsSource `xml:"source"`
}

type newsSource struct {
	URL  string `xml:"url,attr"`
	Text string `xml:",chardata"`
}

// NewsClient fetches recent articles from the Google News RSS feed.
type NewsClient struct {
	client  *resty.Client
	baseURL string
	log     zerolog.Logger
	now     func() time.Time
}

// NewNewsClient creates a news client against the given base URL.
func NewNewsClient(baseURL string, log zerolog.Logger) *NewsClient {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", newsUserAgent)

	return &NewsClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With().Str("component", "news").Logger(),
		now:     time.Now,
	}
}

// Fetch returns up to maxItems articles mentioning the symbol published
// within the lookback window, newest first.
func (c *NewsClient) Fetch(ctx context.Context, symbol string, lookback time.Duration, maxItems int) ([]capabilities.NewsArticle, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("q", fmt.Sprintf("%s stock when:%dh", symbol, int(lookback.Hours())))
	query.Set("hl", "en-US")
	query.Set("gl", "US")
	query.Set("ceid", "US:en")

	resp, err := c.client.R().
		SetContext(ctx).
		Get(c.baseURL + "/rss/search?" + query.Encode())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: news fetch %s: %v", capabilities.ErrUnavailable, symbol, err)
	}
	if err := httpStatusError(resp, symbol); err != nil {
		return nil, err
	}

	var feed newsRSS
	if err := xml.Unmarshal(resp.Body(), &feed); err != nil {
		return nil, fmt.Errorf("%w: news parse %s: %v", capabilities.ErrUnavailable, symbol, err)
	}

	cutoff := c.now().Add(-lookback)
	articles := make([]capabilities.NewsArticle, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		publishedAt, err := parsePubDate(item.PubDate)
		if err != nil {
			continue
		}
		if publishedAt.Before(cutoff) {
			continue
		}
		articles = append(articles, capabilities.NewsArticle{
			Headline:    strings.TrimSpace(item.Title),
			Body:        stripHTML(item.Description),
			Source:      strings.TrimSpace(item.Source.Text),
			URL:         item.Link,
			PublishedAt: publishedAt,
		})
		if len(articles) >= maxItems {
			break
		}
	}

	c.log.Debug().Str("symbol", symbol).Int("articles", len(articles)).Msg("News fetched")
	return articles, nil
}

func parsePubDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized pubDate %q", value)
}

// stripHTML flattens an HTML fragment to its text content. Feed descriptions
// arrive as markup.
func stripHTML(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.TrimSpace(doc.Text())
}

// httpStatusError maps an HTTP response status to the capability error
// taxonomy so the coordinator's retry policy can classify it.
func httpStatusError(resp *resty.Response, symbol string) error {
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return capabilities.NewRateLimitError(retryAfter(resp))
	case resp.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("%w: %s", capabilities.ErrNotFound, symbol)
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return fmt.Errorf("%w: %s", capabilities.ErrAuth, symbol)
	case resp.StatusCode() >= 500:
		return fmt.Errorf("%w: %s: status %d", capabilities.ErrUnavailable, symbol, resp.StatusCode())
	case resp.StatusCode() >= 400:
		return fmt.Errorf("request for %s failed with status %d", symbol, resp.StatusCode())
	}
	return nil
}

func retryAfter(resp *resty.Response) time.Duration {
	if header := resp.Header().Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

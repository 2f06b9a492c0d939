package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/advisor/internal/capabilities"
)

const tickerIndexJSON = `{"0":{"cik_str":320193,"ticker":"AAPL","title":"Apple Inc."},
"1":{"cik_str":789019,"ticker":"MSFT","title":"Microsoft Corp"}}`

func submissionsJSON(forms, dates, accessions, primaries []string) string {
	quote := func(values []string) string {
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = fmt.Sprintf("%q", v)
		}
		return "[" + strings.Join(quoted, ",") + "]"
	}
	return fmt.Sprintf(`{"filings":{"recent":{"form":%s,"filingDate":%s,"accessionNumber":%s,"primaryDocument":%s}}}`,
		quote(forms), quote(dates), quote(accessions), quote(primaries))
}

func edgarFixture(t *testing.T, submissions string, document string) (*EdgarClient, *int) {
	t.Helper()

	var indexHits int
	archive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/files/company_tickers.json":
			indexHits++
			fmt.Fprint(w, tickerIndexJSON)
		case strings.HasPrefix(r.URL.Path, "/Archives/edgar/data/"):
			fmt.Fprint(w, document)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(archive.Close)

	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/submissions/CIK") {
			fmt.Fprint(w, submissions)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(data.Close)

	return NewEdgarClient(archive.URL, data.URL, zerolog.Nop()), &indexHits
}

func TestEdgarLatest(t *testing.T) {
	submissions := submissionsJSON(
		[]string{"8-K", "10-Q", "10-K"},
		[]string{"2026-02-20", "2026-02-01", "2025-11-01"},
		[]string{"0000320193-26-000001", "0000320193-26-000002", "0000320193-25-000099"},
		[]string{"a.htm", "b.htm", "c.htm"},
	)
	client, _ := edgarFixture(t, submissions, `<html><body><p>Quarterly results improved.</p></body></html>`)

	filing, err := client.Latest(context.Background(), "aapl", []string{"10-K", "10-Q"})
	require.NoError(t, err)

	// The 8-K is skipped; the 10-Q is the first wanted form.
	assert.Equal(t, "10-Q", filing.Kind)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), filing.FiledAt)
	assert.Equal(t, "Quarterly results improved.", filing.Text)
}

func TestEdgarLatestNoWantedForm(t *testing.T) {
	submissions := submissionsJSON(
		[]string{"8-K"}, []string{"2026-02-20"}, []string{"0000320193-26-000001"}, []string{"a.htm"})
	client, _ := edgarFixture(t, submissions, "")

	_, err := client.Latest(context.Background(), "AAPL", []string{"10-K", "10-Q"})
	assert.ErrorIs(t, err, capabilities.ErrNotFound)
}

func TestEdgarUnknownTicker(t *testing.T) {
	client, _ := edgarFixture(t, "{}", "")

	_, err := client.Latest(context.Background(), "ZZZZ", []string{"10-K"})
	assert.ErrorIs(t, err, capabilities.ErrNotFound)
}

func TestEdgarLatestTruncatedFilingDates(t *testing.T) {
	// The submissions API serves parallel arrays; a response whose
	// filingDate array is shorter than form must be skipped, not trusted.
	submissions := `{"filings":{"recent":{"form":["10-K"],"filingDate":[],"accessionNumber":["0000320193-26-000001"],"primaryDocument":["a.htm"]}}}`
	client, _ := edgarFixture(t, submissions, "annual report")

	_, err := client.Latest(context.Background(), "AAPL", []string{"10-K"})
	assert.ErrorIs(t, err, capabilities.ErrNotFound)
}

func TestEdgarCIKLookupCached(t *testing.T) {
	submissions := submissionsJSON(
		[]string{"10-K"}, []string{"2026-01-15"}, []string{"0000320193-26-000001"}, []string{"a.htm"})
	client, indexHits := edgarFixture(t, submissions, "annual report")

	for i := 0; i < 3; i++ {
		_, err := client.Latest(context.Background(), "AAPL", []string{"10-K"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, *indexHits)
}

func TestEdgarTruncatesLongFilings(t *testing.T) {
	submissions := submissionsJSON(
		[]string{"10-K"}, []string{"2026-01-15"}, []string{"0000320193-26-000001"}, []string{"a.htm"})
	client, _ := edgarFixture(t, submissions, strings.Repeat("x", maxFilingChars+500))

	filing, err := client.Latest(context.Background(), "AAPL", []string{"10-K"})
	require.NoError(t, err)
	assert.Len(t, filing.Text, maxFilingChars)
}

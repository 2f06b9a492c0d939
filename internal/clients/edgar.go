package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/capabilities"
)

// SEC fair-access policy requires an identifying User-Agent.
const edgarUserAgent = "advisor research tool (admin@aristath.dev)"

// maxFilingChars bounds the filing text handed to the language model.
const maxFilingChars = 40000

// EdgarClient fetches company filings from SEC EDGAR.
type EdgarClient struct {
	client  *resty.Client
	baseURL string // document archive host
	dataURL string // submissions API host
	log     zerolog.Logger

	mu   sync.Mutex
	ciks map[string]string // ticker -> zero-padded CIK
}

// NewEdgarClient creates an EDGAR client. baseURL serves the document
// archive and ticker index; dataURL serves the submissions API.
func NewEdgarClient(baseURL, dataURL string, log zerolog.Logger) *EdgarClient {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", edgarUserAgent)

	return &EdgarClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		dataURL: strings.TrimRight(dataURL, "/"),
		log:     log.With().Str("component", "edgar").Logger(),
		ciks:    make(map[string]string),
	}
}

type submissionsResponse struct {
	Filings struct {
		Recent struct {
			Form            []string `json:"form"`
			FilingDate      []string `json:"filingDate"`
			AccessionNumber []string `json:"accessionNumber"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// Latest returns the most recent filing of any of the requested kinds, or
// ErrNotFound when the company has none.
func (c *EdgarClient) Latest(ctx context.Context, symbol string, kinds []string) (*capabilities.Filing, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	cik, err := c.lookupCIK(ctx, symbol)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/submissions/CIK%s.json", c.dataURL, cik))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: submissions %s: %v", capabilities.ErrUnavailable, symbol, err)
	}
	if err := httpStatusError(resp, symbol); err != nil {
		return nil, err
	}

	var submissions submissionsResponse
	if err := json.Unmarshal(resp.Body(), &submissions); err != nil {
		return nil, fmt.Errorf("%w: submissions parse %s: %v", capabilities.ErrUnavailable, symbol, err)
	}

	wanted := make(map[string]bool, len(kinds))
	for _, kind := range kinds {
		wanted[kind] = true
	}

	recent := submissions.Filings.Recent
	for i, form := range recent.Form {
		if !wanted[form] || i >= len(recent.FilingDate) || i >= len(recent.AccessionNumber) || i >= len(recent.PrimaryDocument) {
			continue
		}
		filedAt, err := time.Parse("2006-01-02", recent.FilingDate[i])
		if err != nil {
			continue
		}

		text, err := c.document(ctx, symbol, cik, recent.AccessionNumber[i], recent.PrimaryDocument[i])
		if err != nil {
			return nil, err
		}

		c.log.Debug().
			Str("symbol", symbol).
			Str("form", form).
			Str("filed_at", recent.FilingDate[i]).
			Msg("Filing fetched")
		return &capabilities.Filing{
			Kind:    form,
			Text:    text,
			FiledAt: filedAt.UTC(),
		}, nil
	}

	return nil, fmt.Errorf("%w: no %s filing for %s", capabilities.ErrNotFound, strings.Join(kinds, "/"), symbol)
}

// lookupCIK resolves a ticker to its zero-padded CIK using the EDGAR company
// ticker index. Resolutions are cached for the life of the client.
func (c *EdgarClient) lookupCIK(ctx context.Context, symbol string) (string, error) {
	c.mu.Lock()
	if cik, ok := c.ciks[symbol]; ok {
		c.mu.Unlock()
		return cik, nil
	}
	c.mu.Unlock()

	resp, err := c.client.R().
		SetContext(ctx).
		Get(c.baseURL + "/files/company_tickers.json")
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: ticker index: %v", capabilities.ErrUnavailable, err)
	}
	if err := httpStatusError(resp, symbol); err != nil {
		return "", err
	}

	var index map[string]struct {
		CIK    int64  `json:"cik_str"`
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(resp.Body(), &index); err != nil {
		return "", fmt.Errorf("%w: ticker index parse: %v", capabilities.ErrUnavailable, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range index {
		c.ciks[strings.ToUpper(entry.Ticker)] = fmt.Sprintf("%010d", entry.CIK)
	}
	cik, ok := c.ciks[symbol]
	if !ok {
		return "", fmt.Errorf("%w: %s has no EDGAR listing", capabilities.ErrNotFound, symbol)
	}
	return cik, nil
}

// document fetches a filing's primary document and flattens it to text.
func (c *EdgarClient) document(ctx context.Context, symbol, cik, accession, primary string) (string, error) {
	accession = strings.ReplaceAll(accession, "-", "")
	cikTrimmed := strings.TrimLeft(cik, "0")

	resp, err := c.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s", c.baseURL, cikTrimmed, accession, primary))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: document %s: %v", capabilities.ErrUnavailable, symbol, err)
	}
	if err := httpStatusError(resp, symbol); err != nil {
		return "", err
	}

	text := stripHTML(string(resp.Body()))
	if len(text) > maxFilingChars {
		text = text[:maxFilingChars]
	}
	return text, nil
}

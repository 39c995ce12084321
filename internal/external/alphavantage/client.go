package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/quantinfo/stockrank/internal/contracts"
	"github.com/quantinfo/stockrank/pkg/config"
	"github.com/quantinfo/stockrank/pkg/httputil"
	"github.com/quantinfo/stockrank/pkg/logger"
)

// Alpha Vantage needs one call per symbol for realtime quotes; the free
// tier makes more than a handful per request impractical.
const maxRealtimeSymbols = 3

// maxSearchResults bounds SYMBOL_SEARCH responses.
const maxSearchResults = 10

// Client is the Alpha Vantage DataProvider adapter.
// The rate gate is shared across every call this instance issues.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	apiKey     string
	gate       *rate.Limiter
}

// New creates a new Alpha Vantage client.
func New(cfg config.ProviderConfig, httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("provider", "alphavantage"),
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		gate:       rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
	}
}

// Name identifies the vendor.
func (c *Client) Name() string { return "alphavantage" }

// get waits on the rate gate, then issues a GET with the given query.
func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	if err := c.gate.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("apikey", c.apiKey)
	fullURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	resp, err := c.httpClient.Get(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// vendorIssue inspects the error envelopes Alpha Vantage embeds in 200
// responses. "Information" usually means the free-tier quota is exhausted.
func vendorIssue(body []byte) string {
	var envelope struct {
		ErrorMessage string `json:"Error Message"`
		Information  string `json:"Information"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.ErrorMessage != "" {
		return envelope.ErrorMessage
	}
	return envelope.Information
}

// FetchHistory fetches daily bars for [start, end], ascending by date.
// Alpha Vantage only serves the full series, so the window is applied
// locally. Invalid records are dropped, never surfaced as errors.
func (c *Client) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]contracts.HistoryBar, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", "full")

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	if issue := vendorIssue(body); issue != "" {
		c.logger.WithFields(map[string]interface{}{
			"symbol": symbol,
			"issue":  issue,
		}).Warn("Alpha Vantage returned no series")
		return nil, nil
	}

	var payload struct {
		TimeSeries map[string]map[string]string `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(payload.TimeSeries) == 0 {
		return nil, nil
	}

	bars := make([]contracts.HistoryBar, 0, len(payload.TimeSeries))
	for dateStr, fields := range payload.TimeSeries {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		if date.Before(start) || date.After(end) {
			continue
		}

		bar, err := parseDailyFields(date, fields)
		if err != nil {
			c.logger.WithFields(map[string]interface{}{
				"symbol": symbol,
				"date":   dateStr,
				"error":  err.Error(),
			}).Warn("Dropping invalid price record")
			continue
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(bars),
	}).Debug("Fetched history")
	return bars, nil
}

func parseDailyFields(date time.Time, fields map[string]string) (contracts.HistoryBar, error) {
	open, err := strconv.ParseFloat(fields["1. open"], 64)
	if err != nil {
		return contracts.HistoryBar{}, fmt.Errorf("open: %w", err)
	}
	high, err := strconv.ParseFloat(fields["2. high"], 64)
	if err != nil {
		return contracts.HistoryBar{}, fmt.Errorf("high: %w", err)
	}
	low, err := strconv.ParseFloat(fields["3. low"], 64)
	if err != nil {
		return contracts.HistoryBar{}, fmt.Errorf("low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(fields["4. close"], 64)
	if err != nil {
		return contracts.HistoryBar{}, fmt.Errorf("close: %w", err)
	}
	volume, err := strconv.ParseInt(fields["5. volume"], 10, 64)
	if err != nil {
		return contracts.HistoryBar{}, fmt.Errorf("volume: %w", err)
	}

	// Adjusted close needs a premium endpoint; fall back to close.
	adjusted := closePrice
	bar := contracts.HistoryBar{
		Date:          date,
		Open:          open,
		High:          high,
		Low:           low,
		Close:         closePrice,
		Volume:        volume,
		AdjustedClose: &adjusted,
	}
	if err := bar.Validate(); err != nil {
		return contracts.HistoryBar{}, err
	}
	return bar, nil
}

// FetchRealtime fetches latest quotes one symbol at a time via
// GLOBAL_QUOTE. Symbols past the per-call cap, or that the vendor cannot
// resolve, are absent from the result.
func (c *Client) FetchRealtime(ctx context.Context, symbols []string) (map[string]contracts.Quote, error) {
	if len(symbols) > maxRealtimeSymbols {
		symbols = symbols[:maxRealtimeSymbols]
	}

	quotes := make(map[string]contracts.Quote, len(symbols))
	for _, symbol := range symbols {
		quote, err := c.fetchQuote(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return quotes, ctx.Err()
			}
			c.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to fetch quote")
			continue
		}
		if quote != nil {
			quotes[symbol] = *quote
		}
	}
	return quotes, nil
}

func (c *Client) fetchQuote(ctx context.Context, symbol string) (*contracts.Quote, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		GlobalQuote map[string]string `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(payload.GlobalQuote) == 0 {
		return nil, nil
	}

	q := payload.GlobalQuote
	quote := &contracts.Quote{
		Symbol:    symbol,
		Open:      parsePrice(q["02. open"]),
		High:      parsePrice(q["03. high"]),
		Low:       parsePrice(q["04. low"]),
		Close:     parsePrice(q["05. price"]),
		Timestamp: time.Now(),
	}
	if v, err := strconv.ParseInt(q["06. volume"], 10, 64); err == nil {
		quote.Volume = v
	}
	return quote, nil
}

// parsePrice tolerates the "--" placeholder the vendor uses for gaps.
func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// Search looks up candidate instruments via SYMBOL_SEARCH.
func (c *Client) Search(ctx context.Context, query string) ([]contracts.InstrumentProfile, error) {
	params := url.Values{}
	params.Set("function", "SYMBOL_SEARCH")
	params.Set("keywords", query)

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		BestMatches []map[string]string `json:"bestMatches"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	matches := payload.BestMatches
	if len(matches) > maxSearchResults {
		matches = matches[:maxSearchResults]
	}

	results := make([]contracts.InstrumentProfile, 0, len(matches))
	for _, match := range matches {
		currency := match["8. currency"]
		if currency == "" {
			currency = "USD"
		}
		results = append(results, contracts.InstrumentProfile{
			Symbol: match["1. symbol"],
			Name:   match["2. name"],
			// Search results carry a region, not proper listing details.
			Exchange: match["4. region"],
			Currency: currency,
		})
	}
	return results, nil
}

// GetProfile fetches the company OVERVIEW; (nil, nil) when unknown.
func (c *Client) GetProfile(ctx context.Context, symbol string) (*contracts.InstrumentProfile, error) {
	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", symbol)

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var overview struct {
		Symbol               string `json:"Symbol"`
		Name                 string `json:"Name"`
		Exchange             string `json:"Exchange"`
		Sector               string `json:"Sector"`
		Industry             string `json:"Industry"`
		MarketCapitalization string `json:"MarketCapitalization"`
		Currency             string `json:"Currency"`
		Country              string `json:"Country"`
		Description          string `json:"Description"`
	}
	if err := json.Unmarshal(body, &overview); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if overview.Symbol == "" {
		return nil, nil
	}

	profile := &contracts.InstrumentProfile{
		Symbol:      symbol,
		Name:        overview.Name,
		Exchange:    overview.Exchange,
		Sector:      overview.Sector,
		Industry:    overview.Industry,
		Currency:    overview.Currency,
		Country:     overview.Country,
		Description: truncate(overview.Description, 500),
	}
	if marketCap, err := strconv.ParseFloat(overview.MarketCapitalization, 64); err == nil {
		profile.MarketCap = &marketCap
	}
	return profile, nil
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

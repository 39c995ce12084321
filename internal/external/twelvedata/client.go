package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/quantinfo/stockrank/internal/contracts"
	"github.com/quantinfo/stockrank/pkg/config"
	"github.com/quantinfo/stockrank/pkg/httputil"
	"github.com/quantinfo/stockrank/pkg/logger"
)

// maxSearchResults bounds symbol_search responses.
const maxSearchResults = 10

// Client is the Twelve Data DataProvider adapter. Unlike Alpha Vantage
// the vendor serves batched quotes, so realtime lookups are one call.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	apiKey     string
	gate       *rate.Limiter
}

// New creates a new Twelve Data client.
func New(cfg config.ProviderConfig, httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("provider", "twelvedata"),
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		gate:       rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
	}
}

// Name identifies the vendor.
func (c *Client) Name() string { return "twelvedata" }

// get waits on the rate gate, then issues a GET against the given path.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.gate.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("apikey", c.apiKey)
	params.Set("format", "JSON")
	fullURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

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

// vendorError inspects the status/message envelope Twelve Data embeds
// in 200 responses for bad symbols and exhausted quotas.
func vendorError(body []byte) string {
	var envelope struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.Status == "error" {
		if envelope.Message != "" {
			return envelope.Message
		}
		return "unspecified vendor error"
	}
	return ""
}

type seriesValue struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

// FetchHistory fetches daily bars for [start, end], ascending by date.
// Invalid records are dropped, never surfaced as errors.
func (c *Client) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]contracts.HistoryBar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "1day")
	params.Set("start_date", start.Format("2006-01-02"))
	params.Set("end_date", end.Format("2006-01-02"))

	body, err := c.get(ctx, "/time_series", params)
	if err != nil {
		return nil, err
	}

	if issue := vendorError(body); issue != "" {
		c.logger.WithFields(map[string]interface{}{
			"symbol": symbol,
			"issue":  issue,
		}).Warn("Twelve Data returned no series")
		return nil, nil
	}

	var payload struct {
		Values []seriesValue `json:"values"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	bars := make([]contracts.HistoryBar, 0, len(payload.Values))
	for _, value := range payload.Values {
		bar, err := parseSeriesValue(value)
		if err != nil {
			c.logger.WithFields(map[string]interface{}{
				"symbol": symbol,
				"date":   value.Datetime,
				"error":  err.Error(),
			}).Warn("Dropping invalid price record")
			continue
		}
		if bar.Date.Before(start) || bar.Date.After(end) {
			continue
		}
		bars = append(bars, bar)
	}

	// The vendor serves newest first.
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(bars),
	}).Debug("Fetched history")
	return bars, nil
}

func parseSeriesValue(value seriesValue) (contracts.HistoryBar, error) {
	date, err := time.Parse("2006-01-02", value.Datetime)
	if err != nil {
		return contracts.HistoryBar{}, fmt.Errorf("datetime: %w", err)
	}
	open, err := strconv.ParseFloat(value.Open, 64)
	if err != nil {
		return contracts.HistoryBar{}, fmt.Errorf("open: %w", err)
	}
	high, err := strconv.ParseFloat(value.High, 64)
	if err != nil {
		return contracts.HistoryBar{}, fmt.Errorf("high: %w", err)
	}
	low, err := strconv.ParseFloat(value.Low, 64)
	if err != nil {
		return contracts.HistoryBar{}, fmt.Errorf("low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(value.Close, 64)
	if err != nil {
		return contracts.HistoryBar{}, fmt.Errorf("close: %w", err)
	}
	var volume int64
	if value.Volume != "" {
		volume, err = strconv.ParseInt(value.Volume, 10, 64)
		if err != nil {
			return contracts.HistoryBar{}, fmt.Errorf("volume: %w", err)
		}
	}

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

type quotePayload struct {
	Symbol string `json:"symbol"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
	Status string `json:"status"`
}

// FetchRealtime fetches latest quotes in a single batched /quote call.
// Symbols the vendor cannot resolve are absent from the result.
func (c *Client) FetchRealtime(ctx context.Context, symbols []string) (map[string]contracts.Quote, error) {
	if len(symbols) == 0 {
		return map[string]contracts.Quote{}, nil
	}

	params := url.Values{}
	params.Set("symbol", strings.Join(symbols, ","))

	body, err := c.get(ctx, "/quote", params)
	if err != nil {
		return nil, err
	}

	if issue := vendorError(body); issue != "" {
		c.logger.WithField("issue", issue).Warn("Twelve Data returned no quotes")
		return map[string]contracts.Quote{}, nil
	}

	// A single symbol yields a bare object, several yield a map keyed
	// by symbol.
	payloads := make(map[string]quotePayload)
	if len(symbols) == 1 {
		var single quotePayload
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		payloads[symbols[0]] = single
	} else {
		if err := json.Unmarshal(body, &payloads); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
	}

	quotes := make(map[string]contracts.Quote, len(payloads))
	for symbol, payload := range payloads {
		if payload.Status == "error" || payload.Close == "" {
			continue
		}
		quote := contracts.Quote{
			Symbol:    symbol,
			Open:      parsePrice(payload.Open),
			High:      parsePrice(payload.High),
			Low:       parsePrice(payload.Low),
			Close:     parsePrice(payload.Close),
			Timestamp: time.Now(),
		}
		if v, err := strconv.ParseInt(payload.Volume, 10, 64); err == nil {
			quote.Volume = v
		}
		quotes[symbol] = quote
	}
	return quotes, nil
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// Search looks up candidate instruments via /symbol_search.
func (c *Client) Search(ctx context.Context, query string) ([]contracts.InstrumentProfile, error) {
	params := url.Values{}
	params.Set("symbol", query)

	body, err := c.get(ctx, "/symbol_search", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data []struct {
			Symbol         string `json:"symbol"`
			InstrumentName string `json:"instrument_name"`
			Exchange       string `json:"exchange"`
			Currency       string `json:"currency"`
			Country        string `json:"country"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	matches := payload.Data
	if len(matches) > maxSearchResults {
		matches = matches[:maxSearchResults]
	}

	results := make([]contracts.InstrumentProfile, 0, len(matches))
	for _, match := range matches {
		currency := match.Currency
		if currency == "" {
			currency = "USD"
		}
		results = append(results, contracts.InstrumentProfile{
			Symbol:   match.Symbol,
			Name:     match.InstrumentName,
			Exchange: match.Exchange,
			Currency: currency,
			Country:  match.Country,
		})
	}
	return results, nil
}

// GetProfile fetches company details via /profile; (nil, nil) when the
// vendor does not know the symbol.
func (c *Client) GetProfile(ctx context.Context, symbol string) (*contracts.InstrumentProfile, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/profile", params)
	if err != nil {
		return nil, err
	}

	if issue := vendorError(body); issue != "" {
		c.logger.WithFields(map[string]interface{}{
			"symbol": symbol,
			"issue":  issue,
		}).Debug("Twelve Data has no profile")
		return nil, nil
	}

	var profile struct {
		Symbol      string  `json:"symbol"`
		Name        string  `json:"name"`
		Exchange    string  `json:"exchange"`
		Sector      string  `json:"sector"`
		Industry    string  `json:"industry"`
		MarketCap   float64 `json:"market_cap"`
		Currency    string  `json:"currency"`
		Country     string  `json:"country"`
		Description string  `json:"description"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if profile.Symbol == "" {
		return nil, nil
	}

	result := &contracts.InstrumentProfile{
		Symbol:      symbol,
		Name:        profile.Name,
		Exchange:    profile.Exchange,
		Sector:      profile.Sector,
		Industry:    profile.Industry,
		Currency:    profile.Currency,
		Country:     profile.Country,
		Description: truncate(profile.Description, 500),
	}
	if profile.MarketCap > 0 {
		marketCap := profile.MarketCap
		result.MarketCap = &marketCap
	}
	return result, nil
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

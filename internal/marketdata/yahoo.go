package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rewired-gh/marketpulse/internal/models"
	"github.com/shopspring/decimal"
)

const (
	// DefaultYahooBaseURL is the public Yahoo Finance query host.
	DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

	yahooUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

	// historyLookbackDays covers weekends and holidays before a past day.
	historyLookbackDays = 7
)

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
				GMTOffset          int64    `json:"gmtoffset"`
			} `json:"meta"`
			Timestamps []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// YahooClient reads daily closes from the Yahoo Finance chart endpoint.
type YahooClient struct {
	baseURL    string
	timeout    time.Duration
	rangeParam string
	httpClient *http.Client
	client     *resty.Client
	now        func() time.Time
}

// YahooOption is a configuration option for the Yahoo client.
type YahooOption func(*YahooClient)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) YahooOption {
	return func(c *YahooClient) {
		c.baseURL = baseURL
	}
}

// WithTimeout bounds every request.
func WithTimeout(timeout time.Duration) YahooOption {
	return func(c *YahooClient) {
		c.timeout = timeout
	}
}

// WithRange sets the chart range requested, e.g. "5d".
func WithRange(r string) YahooOption {
	return func(c *YahooClient) {
		c.rangeParam = r
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) YahooOption {
	return func(c *YahooClient) {
		c.httpClient = hc
	}
}

// NewYahooClient creates a Yahoo Finance chart client.
func NewYahooClient(options ...YahooOption) *YahooClient {
	c := &YahooClient{
		baseURL:    DefaultYahooBaseURL,
		timeout:    10 * time.Second,
		rangeParam: "5d",
		now:        time.Now,
	}
	for _, option := range options {
		option(c)
	}

	if c.httpClient != nil {
		c.client = resty.NewWithClient(c.httpClient)
	} else {
		c.client = resty.New()
	}
	c.client.
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetHeader("User-Agent", yahooUserAgent).
		SetHeader("Accept", "application/json")
	return c
}

func (c *YahooClient) Name() string { return "yahoo" }

// Fetch returns the last non-null daily close of symbol on or before day.
// Today (or a zero day) reads the recent range and falls back to the regular
// market price when the chart has no closes. An earlier day reads a bounded
// period ending that day, with no fallback.
func (c *YahooClient) Fetch(ctx context.Context, symbol string, day time.Time) (Closes, error) {
	if !day.IsZero() {
		day = models.Day(day)
	}
	live := day.IsZero() || !day.Before(models.Day(c.now()))

	params := map[string]string{"interval": "1d"}
	if live {
		params["range"] = c.rangeParam
	} else {
		params["period1"] = strconv.FormatInt(day.AddDate(0, 0, -historyLookbackDays).Unix(), 10)
		params["period2"] = strconv.FormatInt(day.AddDate(0, 0, 1).Unix(), 10)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(params).
		Get("/v8/finance/chart/{symbol}")
	if err != nil {
		return Closes{}, fmt.Errorf("failed to fetch chart for %s: %w", symbol, err)
	}
	if resp.IsError() {
		return Closes{}, fmt.Errorf("chart %s: HTTP %d", symbol, resp.StatusCode())
	}

	var chart chartResponse
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return Closes{}, fmt.Errorf("failed to decode chart for %s: %w", symbol, err)
	}
	if e := chart.Chart.Error; e != nil {
		return Closes{}, fmt.Errorf("chart %s: %s: %s", symbol, e.Code, e.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return Closes{}, fmt.Errorf("chart %s: %w", symbol, ErrNoData)
	}

	result := chart.Chart.Result[0]
	var closes []*float64
	if len(result.Indicators.Quote) > 0 {
		closes = result.Indicators.Quote[0].Close
	}
	offset := time.Duration(result.Meta.GMTOffset) * time.Second

	var out Closes
	for i, v := range closes {
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			continue
		}
		var barDay time.Time
		if i < len(result.Timestamps) {
			// bars are stamped at the session open; the exchange offset keeps
			// them on their local trading day
			barDay = models.Day(time.Unix(result.Timestamps[i], 0).UTC().Add(offset))
			if !day.IsZero() && barDay.After(day) {
				continue
			}
		}
		out = Closes{Last: decimal.NewNullDecimal(decimal.NewFromFloat(*v)), Day: barDay}
	}

	if !out.Last.Valid && live && result.Meta.RegularMarketPrice != nil {
		out.Last = decimal.NewNullDecimal(decimal.NewFromFloat(*result.Meta.RegularMarketPrice))
	}
	if !out.Last.Valid {
		return Closes{}, fmt.Errorf("chart %s: %w", symbol, ErrNoData)
	}
	return out, nil
}

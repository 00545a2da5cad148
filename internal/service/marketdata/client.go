// Package marketdata fetches quotes and daily/weekly bars from an Alpha
// Vantage compatible HTTP API.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"FinFolio/internal/domain/models"
	drepo "FinFolio/internal/domain/repository"
	xhttp "FinFolio/pkg/http"
	applogger "FinFolio/pkg/logger"

	"golang.org/x/time/rate"
)

var (
	ErrNoData      = errors.New("marketdata: no data for symbol")
	ErrRateLimited = errors.New("marketdata: rate limited")
)

// Client implements service.MarketData.
type Client struct {
	http    *xhttp.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	l       *applogger.Logger
}

type Option func(*Client)

// WithRequestsPerMinute spaces upstream calls. Zero or less leaves calls
// unthrottled.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

func New(baseURL, apiKey string, timeout time.Duration, l *applogger.Logger, opts ...Option) *Client {
	if l == nil {
		l = applogger.Nop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithUserAgent("finfolio-marketdata/1.0")),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		l:       l,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type barFields struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

type seriesResponse struct {
	Daily        map[string]barFields `json:"Time Series (Daily)"`
	Weekly       map[string]barFields `json:"Weekly Time Series"`
	ErrorMessage string               `json:"Error Message"`
	Note         string               `json:"Note"`
	Information  string               `json:"Information"`
}

type quoteResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		LatestTrading string `json:"07. latest trading day"`
	} `json:"Global Quote"`
	ErrorMessage string `json:"Error Message"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
}

func upstreamError(symbol, errMsg, note, info string) error {
	switch {
	case errMsg != "":
		return fmt.Errorf("%w %s: %s", ErrNoData, symbol, errMsg)
	case note != "":
		return fmt.Errorf("%w: %s", ErrRateLimited, note)
	case info != "":
		return fmt.Errorf("%w: %s", ErrRateLimited, info)
	}
	return nil
}

func (c *Client) get(ctx context.Context, params map[string]string, dest interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("marketdata wait: %w", err)
		}
	}
	q := map[string][]string{"apikey": {c.apiKey}}
	for k, v := range params {
		q[k] = []string{v}
	}
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + "/query",
		QueryParams: q,
	}, dest)
	var se *xhttp.StatusError
	if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, se.Body)
	}
	return err
}

// Bars returns up to n bars, most recent first.
func (c *Client) Bars(ctx context.Context, symbol string, interval drepo.Interval, n int) ([]models.PriceBar, error) {
	symbol = strings.ToUpper(symbol)
	fn := "TIME_SERIES_DAILY"
	if interval == drepo.IntervalWeekly {
		fn = "TIME_SERIES_WEEKLY"
	}
	params := map[string]string{"function": fn, "symbol": symbol}
	if n > 100 && fn == "TIME_SERIES_DAILY" {
		params["outputsize"] = "full"
	}

	start := time.Now()
	var resp seriesResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("fetch %s bars %s: %w", interval, symbol, err)
	}
	if err := upstreamError(symbol, resp.ErrorMessage, resp.Note, resp.Information); err != nil {
		return nil, err
	}
	series := resp.Daily
	if series == nil {
		series = resp.Weekly
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoData, symbol)
	}

	bars := make([]models.PriceBar, 0, len(series))
	for day, f := range series {
		bar, err := parseBar(symbol, day, f)
		if err != nil {
			c.l.Warn("skip malformed bar", applogger.String("symbol", symbol), applogger.String("date", day), applogger.Error(err))
			continue
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.After(bars[j].Date) })
	if n > 0 && len(bars) > n {
		bars = bars[:n]
	}
	c.l.Debug("marketdata bars fetched",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return bars, nil
}

func parseBar(symbol, day string, f barFields) (models.PriceBar, error) {
	date, err := time.Parse("2006-01-02", day)
	if err != nil {
		return models.PriceBar{}, err
	}
	vals := make([]float64, 5)
	for i, s := range []string{f.Open, f.High, f.Low, f.Close, f.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.PriceBar{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return models.PriceBar{
		Symbol: symbol, Date: date,
		Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4],
	}, nil
}

func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = strings.ToUpper(symbol)
	var resp quoteResponse
	if err := c.get(ctx, map[string]string{"function": "GLOBAL_QUOTE", "symbol": symbol}, &resp); err != nil {
		return nil, fmt.Errorf("fetch quote %s: %w", symbol, err)
	}
	if err := upstreamError(symbol, resp.ErrorMessage, resp.Note, resp.Information); err != nil {
		return nil, err
	}
	if resp.GlobalQuote.Price == "" {
		return nil, fmt.Errorf("%w %s", ErrNoData, symbol)
	}
	price, err := strconv.ParseFloat(resp.GlobalQuote.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("parse quote %s: %w", symbol, err)
	}
	ts := time.Now().UTC()
	if d, err := time.Parse("2006-01-02", resp.GlobalQuote.LatestTrading); err == nil {
		ts = d
	}
	return &models.Quote{Symbol: symbol, Price: price, Timestamp: ts}, nil
}

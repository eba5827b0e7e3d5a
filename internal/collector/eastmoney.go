package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"VCPScanner/internal/logger"
	"VCPScanner/internal/model"
)

const (
	eastmoneyQuoteURL = "https://push2.eastmoney.com"
	eastmoneyKlineURL = "https://push2his.eastmoney.com"

	// A-share boards: SZ main, SZ ChiNext, SH main, SH STAR, BJ.
	eastmoneyAShareFilter = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23,m:0+t:81+s:2048"
	eastmoneyPageSize     = 100
	eastmoneyMaxPages     = 80
)

// Eastmoney implements Provider using the Eastmoney quote and kline APIs.
type Eastmoney struct {
	quote  *resty.Client
	kline  *resty.Client
	logger *logger.Logger
}

// NewEastmoney creates the primary provider. Empty base URLs select the public hosts.
func NewEastmoney(quoteURL, klineURL string, opts HTTPOptions, log *logger.Logger) *Eastmoney {
	if quoteURL == "" {
		quoteURL = eastmoneyQuoteURL
	}
	if klineURL == "" {
		klineURL = eastmoneyKlineURL
	}
	limiter := newLimiter(opts.RatePerSecond)
	return &Eastmoney{
		quote:  newRestClient(quoteURL, opts, limiter).SetHeader("Referer", "https://quote.eastmoney.com/"),
		kline:  newRestClient(klineURL, opts, limiter).SetHeader("Referer", "https://quote.eastmoney.com/"),
		logger: log,
	}
}

func (e *Eastmoney) Name() string { return "eastmoney" }

// emListResponse is the clist/get response; with np=1 "diff" is an array.
type emListResponse struct {
	Data *struct {
		Total int `json:"total"`
		Diff  []struct {
			Price     interface{} `json:"f2"`
			ChangePct interface{} `json:"f3"`
			Turnover  interface{} `json:"f6"`
			Code      string      `json:"f12"`
			Name      string      `json:"f14"`
		} `json:"diff"`
	} `json:"data"`
}

// emKlineResponse is the kline/get response.
type emKlineResponse struct {
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// Snapshot pages through the whole A-share list.
func (e *Eastmoney) Snapshot(ctx context.Context) ([]model.SnapshotRow, error) {
	var rows []model.SnapshotRow
	for page := 1; page <= eastmoneyMaxPages; page++ {
		resp, err := e.quote.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"pn":     strconv.Itoa(page),
				"pz":     strconv.Itoa(eastmoneyPageSize),
				"po":     "1",
				"np":     "1",
				"fltt":   "2",
				"invt":   "2",
				"fid":    "f6",
				"fs":     eastmoneyAShareFilter,
				"fields": "f2,f3,f6,f12,f14",
			}).
			Get("/api/qt/clist/get")
		if err != nil {
			return nil, fmt.Errorf("%w: eastmoney snapshot page %d: %w", ErrUpstreamUnavailable, page, err)
		}
		if !resp.IsSuccess() {
			return nil, fmt.Errorf("%w: eastmoney snapshot page %d: status %d", ErrUpstreamUnavailable, page, resp.StatusCode())
		}

		var list emListResponse
		if err := json.Unmarshal(resp.Body(), &list); err != nil {
			return nil, fmt.Errorf("%w: eastmoney snapshot decode: %w", ErrUpstreamUnavailable, err)
		}
		if list.Data == nil || len(list.Data.Diff) == 0 {
			break
		}
		for _, d := range list.Data.Diff {
			if d.Code == "" {
				continue
			}
			rows = append(rows, model.SnapshotRow{
				Code:      d.Code,
				Name:      d.Name,
				ChangePct: toFloat(d.ChangePct),
				Turnover:  toFloat(d.Turnover),
			})
		}
		if len(rows) >= list.Data.Total || len(list.Data.Diff) < eastmoneyPageSize {
			break
		}
	}

	e.logger.WithField("count", len(rows)).Debug("Fetched eastmoney snapshot")
	return rows, nil
}

// History returns forward-adjusted daily bars, oldest first.
func (e *Eastmoney) History(ctx context.Context, code string, days int) ([]model.Bar, error) {
	secID, err := EastmoneySecID(code)
	if err != nil {
		return nil, err
	}

	resp, err := e.kline.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"secid":   secID,
			"fields1": "f1,f2,f3,f4,f5,f6",
			"fields2": "f51,f52,f53,f54,f55,f56,f57",
			"klt":     "101",
			"fqt":     "1",
			"end":     "20500101",
			"lmt":     strconv.Itoa(days),
		}).
		Get("/api/qt/stock/kline/get")
	if err != nil {
		return nil, fmt.Errorf("%w: eastmoney history %s: %w", ErrUpstreamUnavailable, code, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: eastmoney history %s: status %d", ErrUpstreamUnavailable, code, resp.StatusCode())
	}

	var kr emKlineResponse
	if err := json.Unmarshal(resp.Body(), &kr); err != nil {
		return nil, fmt.Errorf("%w: eastmoney history %s decode: %w", ErrUpstreamUnavailable, code, err)
	}
	if kr.Data == nil || len(kr.Data.Klines) == 0 {
		return nil, fmt.Errorf("%w: eastmoney history %s: no data returned", ErrUpstreamUnavailable, code)
	}

	bars, err := parseEastmoneyKlines(kr.Data.Klines)
	if err != nil {
		return nil, fmt.Errorf("eastmoney history %s: %w", code, err)
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

// parseEastmoneyKlines parses "date,open,close,high,low,volume,amount" rows.
func parseEastmoneyKlines(lines []string) ([]model.Bar, error) {
	bars := make([]model.Bar, 0, len(lines))
	for _, line := range lines {
		f := strings.Split(line, ",")
		if len(f) < 6 {
			return nil, fmt.Errorf("kline %q: want at least 6 fields, got %d", line, len(f))
		}
		day, err := time.Parse("2006-01-02", f[0])
		if err != nil {
			return nil, fmt.Errorf("kline %q: %w", line, err)
		}
		var nums [5]float64
		for i := range nums {
			nums[i], err = strconv.ParseFloat(f[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("kline %q: %w", line, err)
			}
		}
		bars = append(bars, model.Bar{
			Time:   day,
			Open:   nums[0],
			Close:  nums[1],
			High:   nums[2],
			Low:    nums[3],
			Volume: nums[4],
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

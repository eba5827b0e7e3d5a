package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"VCPScanner/internal/logger"
	"VCPScanner/internal/model"
)

const (
	sinaQuoteURL = "https://vip.stock.finance.sina.com.cn"
	sinaKlineURL = "https://quotes.sina.cn"

	sinaPageSize = 80
	sinaMaxPages = 80
)

// Sina implements Provider using the Sina Finance market-center and kline APIs.
// Sina addresses symbols with an exchange prefix ("sh600519").
type Sina struct {
	quote  *resty.Client
	kline  *resty.Client
	logger *logger.Logger
}

// NewSina creates the secondary provider. Empty base URLs select the public hosts.
func NewSina(quoteURL, klineURL string, opts HTTPOptions, log *logger.Logger) *Sina {
	if quoteURL == "" {
		quoteURL = sinaQuoteURL
	}
	if klineURL == "" {
		klineURL = sinaKlineURL
	}
	limiter := newLimiter(opts.RatePerSecond)
	return &Sina{
		quote:  newRestClient(quoteURL, opts, limiter).SetHeader("Referer", "https://finance.sina.com.cn/"),
		kline:  newRestClient(klineURL, opts, limiter).SetHeader("Referer", "https://finance.sina.com.cn/"),
		logger: log,
	}
}

func (s *Sina) Name() string { return "sina" }

// sinaQuote is one row of Market_Center.getHQNodeData. Numeric fields arrive as
// numbers or strings depending on the endpoint version.
type sinaQuote struct {
	Symbol        string      `json:"symbol"`
	Code          string      `json:"code"`
	Name          string      `json:"name"`
	ChangePercent interface{} `json:"changepercent"`
	Amount        interface{} `json:"amount"`
}

// sinaBar is one row of CN_MarketDataService.getKLineData.
type sinaBar struct {
	Day    string `json:"day"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// Snapshot pages through the hs_a node sorted by turnover.
func (s *Sina) Snapshot(ctx context.Context) ([]model.SnapshotRow, error) {
	var rows []model.SnapshotRow
	for page := 1; page <= sinaMaxPages; page++ {
		resp, err := s.quote.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"page": strconv.Itoa(page),
				"num":  strconv.Itoa(sinaPageSize),
				"sort": "amount",
				"asc":  "0",
				"node": "hs_a",
			}).
			Get("/quotes_service/api/json_v2.php/Market_Center.getHQNodeData")
		if err != nil {
			return nil, fmt.Errorf("%w: sina snapshot page %d: %w", ErrUpstreamUnavailable, page, err)
		}
		if !resp.IsSuccess() {
			return nil, fmt.Errorf("%w: sina snapshot page %d: status %d", ErrUpstreamUnavailable, page, resp.StatusCode())
		}

		var quotes []sinaQuote
		if err := json.Unmarshal(resp.Body(), &quotes); err != nil {
			return nil, fmt.Errorf("%w: sina snapshot decode: %w", ErrUpstreamUnavailable, err)
		}
		for _, q := range quotes {
			code := q.Code
			if code == "" {
				code = StripPrefix(q.Symbol)
			}
			rows = append(rows, model.SnapshotRow{
				Code:      code,
				Name:      q.Name,
				ChangePct: toFloat(q.ChangePercent),
				Turnover:  toFloat(q.Amount),
			})
		}
		if len(quotes) < sinaPageSize {
			break
		}
	}

	s.logger.WithField("count", len(rows)).Debug("Fetched sina snapshot")
	return rows, nil
}

// History returns daily bars, oldest first.
func (s *Sina) History(ctx context.Context, code string, days int) ([]model.Bar, error) {
	symbol, err := PrefixedSymbol(code)
	if err != nil {
		return nil, err
	}

	resp, err := s.kline.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":  symbol,
			"scale":   "240",
			"ma":      "no",
			"datalen": strconv.Itoa(days),
		}).
		Get("/cn/api/json_v2.php/CN_MarketDataService.getKLineData")
	if err != nil {
		return nil, fmt.Errorf("%w: sina history %s: %w", ErrUpstreamUnavailable, symbol, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: sina history %s: status %d", ErrUpstreamUnavailable, symbol, resp.StatusCode())
	}

	var raw []sinaBar
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("%w: sina history %s decode: %w", ErrUpstreamUnavailable, symbol, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: sina history %s: no data returned", ErrUpstreamUnavailable, symbol)
	}

	bars, err := parseSinaBars(raw)
	if err != nil {
		return nil, fmt.Errorf("sina history %s: %w", symbol, err)
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

func parseSinaBars(raw []sinaBar) ([]model.Bar, error) {
	bars := make([]model.Bar, 0, len(raw))
	for _, r := range raw {
		day, err := time.Parse("2006-01-02", r.Day)
		if err != nil {
			return nil, fmt.Errorf("bar %q: %w", r.Day, err)
		}
		var nums [5]float64
		for i, s := range []string{r.Open, r.High, r.Low, r.Close, r.Volume} {
			nums[i], err = strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("bar %s: %w", r.Day, err)
			}
		}
		bars = append(bars, model.Bar{
			Time:   day,
			Open:   nums[0],
			High:   nums[1],
			Low:    nums[2],
			Close:  nums[3],
			Volume: nums[4],
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

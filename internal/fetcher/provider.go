package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gridpulse/internal/pipeline"
)

const (
	pricesPath = "/v1/prices"
	loadPath   = "/v1/load"
)

// ProviderOptions parameterise the market-data provider client.
type ProviderOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Provider fetches settlement prices and system load over HTTP and shapes
// them into hourly raw observations: timestamps floored to the hour,
// intra-hour samples averaged, load joined onto price rows by hour and
// forward-filled across gaps.
type Provider struct {
	opts    ProviderOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewProvider constructs a provider client.
func NewProvider(opts ProviderOptions, logger zerolog.Logger) *Provider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Provider{
		opts:    opts,
		logger:  logger.With().Str("component", "provider_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

type priceRow struct {
	Timestamp       time.Time       `json:"timestamp"`
	SettlementPoint string          `json:"settlement_point"`
	Price           decimal.Decimal `json:"price"`
}

type loadRow struct {
	Timestamp time.Time       `json:"timestamp"`
	LoadMW    decimal.Decimal `json:"load_mw"`
}

// Fetch retrieves prices and load for [start, end] and merges them into raw
// observation rows. Zone names pass through un-normalized; canonicalization
// is the pipeline's job.
func (p *Provider) Fetch(ctx context.Context, start, end time.Time) ([]pipeline.RawObservation, error) {
	if p.baseURL == "" {
		return nil, errors.New("provider base url not configured")
	}
	if !start.Before(end) {
		return nil, errors.New("fetch window start must be before end")
	}

	prices, err := p.fetchPrices(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	loads, err := p.fetchLoad(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch load: %w", err)
	}

	observations := joinHourly(prices, loads)
	p.logger.Debug().
		Time("start", start).Time("end", end).
		Int("rows", len(observations)).
		Msg("fetched provider window")
	return observations, nil
}

func (p *Provider) fetchPrices(ctx context.Context, start, end time.Time) (map[string]map[time.Time]decimal.Decimal, error) {
	var payload struct {
		Rows []priceRow `json:"rows"`
	}
	if err := p.getJSON(ctx, pricesPath, start, end, &payload); err != nil {
		return nil, err
	}

	sums := make(map[string]map[time.Time]decimal.Decimal)
	counts := make(map[string]map[time.Time]int64)
	for _, row := range payload.Rows {
		hour := row.Timestamp.UTC().Truncate(time.Hour)
		if sums[row.SettlementPoint] == nil {
			sums[row.SettlementPoint] = make(map[time.Time]decimal.Decimal)
			counts[row.SettlementPoint] = make(map[time.Time]int64)
		}
		sums[row.SettlementPoint][hour] = sums[row.SettlementPoint][hour].Add(row.Price)
		counts[row.SettlementPoint][hour]++
	}

	averages := make(map[string]map[time.Time]decimal.Decimal, len(sums))
	for zone, hours := range sums {
		averages[zone] = make(map[time.Time]decimal.Decimal, len(hours))
		for hour, sum := range hours {
			averages[zone][hour] = sum.Div(decimal.NewFromInt(counts[zone][hour]))
		}
	}
	return averages, nil
}

func (p *Provider) fetchLoad(ctx context.Context, start, end time.Time) (map[time.Time]decimal.Decimal, error) {
	var payload struct {
		Rows []loadRow `json:"rows"`
	}
	if err := p.getJSON(ctx, loadPath, start, end, &payload); err != nil {
		return nil, err
	}

	sums := make(map[time.Time]decimal.Decimal)
	counts := make(map[time.Time]int64)
	for _, row := range payload.Rows {
		hour := row.Timestamp.UTC().Truncate(time.Hour)
		sums[hour] = sums[hour].Add(row.LoadMW)
		counts[hour]++
	}

	averages := make(map[time.Time]decimal.Decimal, len(sums))
	for hour, sum := range sums {
		averages[hour] = sum.Div(decimal.NewFromInt(counts[hour]))
	}
	return averages, nil
}

func (p *Provider) getJSON(ctx context.Context, path string, start, end time.Time, out any) error {
	query := url.Values{}
	query.Set("start", start.UTC().Format(time.RFC3339))
	query.Set("end", end.UTC().Format(time.RFC3339))
	endpoint := p.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(p.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider responded with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.Unmarshal(body, out)
}

// joinHourly attaches system load to each zone's price hours. Hours with no
// load sample take the most recent earlier hour's value; hours before the
// first known load value are dropped.
func joinHourly(prices map[string]map[time.Time]decimal.Decimal, loads map[time.Time]decimal.Decimal) []pipeline.RawObservation {
	loadHours := make([]time.Time, 0, len(loads))
	for hour := range loads {
		loadHours = append(loadHours, hour)
	}
	sort.Slice(loadHours, func(i, j int) bool { return loadHours[i].Before(loadHours[j]) })

	lookupLoad := func(hour time.Time) (decimal.Decimal, bool) {
		if value, ok := loads[hour]; ok {
			return value, true
		}
		for i := len(loadHours) - 1; i >= 0; i-- {
			if loadHours[i].Before(hour) {
				return loads[loadHours[i]], true
			}
		}
		return decimal.Decimal{}, false
	}

	zones := make([]string, 0, len(prices))
	for zone := range prices {
		zones = append(zones, zone)
	}
	sort.Strings(zones)

	observations := make([]pipeline.RawObservation, 0)
	for _, zone := range zones {
		hours := make([]time.Time, 0, len(prices[zone]))
		for hour := range prices[zone] {
			hours = append(hours, hour)
		}
		sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })

		for _, hour := range hours {
			load, ok := lookupLoad(hour)
			if !ok {
				continue
			}
			observations = append(observations, pipeline.RawObservation{
				Timestamp: hour,
				Zone:      zone,
				Price:     prices[zone][hour],
				Load:      load,
			})
		}
	}
	return observations
}

var _ Fetcher = (*Provider)(nil)

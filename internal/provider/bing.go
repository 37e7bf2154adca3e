package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const bingAPIBase = "https://ssl.bing.com/webmaster/api.svc/json"

// BingAdapter reads the Bing Webmaster Tools API.
type BingAdapter struct {
	httpClient *http.Client
	siteURL    string
	apiKey     string
}

func NewBingAdapter(siteURL, apiKey string, timeout time.Duration) *BingAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BingAdapter{
		httpClient: &http.Client{Timeout: timeout},
		siteURL:    strings.TrimSpace(siteURL),
		apiKey:     strings.TrimSpace(apiKey),
	}
}

func (a *BingAdapter) Name() string {
	return "bing"
}

func (a *BingAdapter) Available() bool {
	return a != nil && a.siteURL != "" && a.apiKey != ""
}

type bingQueryStatsResponse struct {
	D []bingQueryStatsRow `json:"d"`
}

type bingQueryStatsRow struct {
	Query                 string  `json:"Query"`
	Date                  string  `json:"Date"`
	Clicks                int64   `json:"Clicks"`
	Impressions           int64   `json:"Impressions"`
	AvgImpressionPosition float64 `json:"AvgImpressionPosition"`
}

type bingTrafficStatsResponse struct {
	D []bingTrafficStatsRow `json:"d"`
}

type bingTrafficStatsRow struct {
	Date        string `json:"Date"`
	Clicks      int64  `json:"Clicks"`
	Impressions int64  `json:"Impressions"`
}

func (a *BingAdapter) FetchAggregatedQueries(ctx context.Context, dr DateRange) (map[string]QueryMetrics, error) {
	rows, err := a.fetchQueryStats(ctx, dr)
	if err != nil {
		return nil, err
	}

	queries := make(map[string]QueryMetrics)
	counts := make(map[string]int64)
	for _, row := range rows {
		existing := queries[row.Query]
		n := counts[row.Query]
		// Position is a weighted running average across the range.
		existing.Position = (existing.Position*float64(n) + row.AvgImpressionPosition) / float64(n+1)
		existing.Clicks += row.Clicks
		existing.Impressions += row.Impressions
		queries[row.Query] = existing
		counts[row.Query] = n + 1
	}
	return queries, nil
}

func (a *BingAdapter) FetchDailyQueries(ctx context.Context, dr DateRange) (map[string]map[string]QueryMetrics, error) {
	rows, err := a.fetchQueryStats(ctx, dr)
	if err != nil {
		return nil, err
	}

	days := make(map[string]map[string]QueryMetrics)
	for _, row := range rows {
		day, err := parseBingDate(row.Date)
		if err != nil {
			continue
		}
		key := day.Format(DayFormat)
		if days[key] == nil {
			days[key] = make(map[string]QueryMetrics)
		}
		days[key][row.Query] = QueryMetrics{
			Position:    row.AvgImpressionPosition,
			Clicks:      row.Clicks,
			Impressions: row.Impressions,
		}
	}
	return days, nil
}

func (a *BingAdapter) FetchSiteDailyTotals(ctx context.Context, dr DateRange) (map[string]SiteTotals, error) {
	var parsed bingTrafficStatsResponse
	if err := a.call(ctx, "GetRankAndTrafficStats", &parsed); err != nil {
		return nil, err
	}

	totals := make(map[string]SiteTotals)
	for _, row := range parsed.D {
		day, err := parseBingDate(row.Date)
		if err != nil {
			continue
		}
		if day.Before(dr.Start) || day.After(dr.End) {
			continue
		}
		totals[day.Format(DayFormat)] = SiteTotals{
			Clicks:      row.Clicks,
			Impressions: row.Impressions,
		}
	}
	return totals, nil
}

func (a *BingAdapter) fetchQueryStats(ctx context.Context, dr DateRange) ([]bingQueryStatsRow, error) {
	if err := dr.Validate(); err != nil {
		return nil, err
	}
	var parsed bingQueryStatsResponse
	if err := a.call(ctx, "GetQueryStats", &parsed); err != nil {
		return nil, err
	}

	rows := make([]bingQueryStatsRow, 0, len(parsed.D))
	for _, row := range parsed.D {
		day, err := parseBingDate(row.Date)
		if err != nil {
			continue
		}
		if day.Before(dr.Start) || day.After(dr.End) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (a *BingAdapter) call(ctx context.Context, method string, out any) error {
	if !a.Available() {
		return fmt.Errorf("bing adapter: %w", ErrUnavailable)
	}

	params := url.Values{}
	params.Set("apikey", a.apiKey)
	params.Set("siteUrl", a.siteURL)

	endpoint := fmt.Sprintf("%s/%s?%s", bingAPIBase, method, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("bing adapter: %w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", method, resp.StatusCode, truncateForError(payload))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

var bingEpochDate = regexp.MustCompile(`^/Date\((-?\d+)([+-]\d{4})?\)/$`)

// parseBingDate accepts both the WCF "/Date(ms)/" form and plain dates.
func parseBingDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if match := bingEpochDate.FindStringSubmatch(trimmed); match != nil {
		ms, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse bing epoch date %q: %w", raw, err)
		}
		return DayOf(time.UnixMilli(ms)), nil
	}
	for _, layout := range []string{DayFormat, time.RFC3339} {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return DayOf(ts), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized bing date %q", raw)
}

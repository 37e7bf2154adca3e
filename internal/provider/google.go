package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const googleSearchAnalyticsRowLimit = 5000

// GoogleTokenSource supplies a valid OAuth access token for Search Console
// calls. Token refresh lives outside this package.
type GoogleTokenSource func(ctx context.Context) (string, error)

// StaticGoogleToken wraps a fixed access token as a GoogleTokenSource.
func StaticGoogleToken(token string) GoogleTokenSource {
	trimmed := strings.TrimSpace(token)
	return func(context.Context) (string, error) {
		if trimmed == "" {
			return "", ErrUnavailable
		}
		return trimmed, nil
	}
}

// GoogleAdapter reads the Google Search Console Search Analytics API.
type GoogleAdapter struct {
	httpClient *http.Client
	siteURL    string
	tokens     GoogleTokenSource
}

func NewGoogleAdapter(siteURL string, tokens GoogleTokenSource, timeout time.Duration) *GoogleAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoogleAdapter{
		httpClient: &http.Client{Timeout: timeout},
		siteURL:    strings.TrimSpace(siteURL),
		tokens:     tokens,
	}
}

func (a *GoogleAdapter) Name() string {
	return "google"
}

func (a *GoogleAdapter) Available() bool {
	if a == nil || a.siteURL == "" || a.tokens == nil {
		return false
	}
	_, err := a.tokens(context.Background())
	return err == nil
}

type googleQueryRequest struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Dimensions []string `json:"dimensions,omitempty"`
	RowLimit   int      `json:"rowLimit"`
}

type googleQueryResponse struct {
	Rows []struct {
		Keys        []string `json:"keys"`
		Clicks      float64  `json:"clicks"`
		Impressions float64  `json:"impressions"`
		Position    float64  `json:"position"`
	} `json:"rows"`
}

func (a *GoogleAdapter) FetchAggregatedQueries(ctx context.Context, dr DateRange) (map[string]QueryMetrics, error) {
	resp, err := a.runQuery(ctx, dr, []string{"query"})
	if err != nil {
		return nil, err
	}

	queries := make(map[string]QueryMetrics, len(resp.Rows))
	for _, row := range resp.Rows {
		if len(row.Keys) < 1 {
			continue
		}
		queries[row.Keys[0]] = QueryMetrics{
			Position:    row.Position,
			Clicks:      int64(row.Clicks),
			Impressions: int64(row.Impressions),
		}
	}
	return queries, nil
}

func (a *GoogleAdapter) FetchDailyQueries(ctx context.Context, dr DateRange) (map[string]map[string]QueryMetrics, error) {
	resp, err := a.runQuery(ctx, dr, []string{"date", "query"})
	if err != nil {
		return nil, err
	}

	days := make(map[string]map[string]QueryMetrics)
	for _, row := range resp.Rows {
		if len(row.Keys) < 2 {
			continue
		}
		day, query := row.Keys[0], row.Keys[1]
		if days[day] == nil {
			days[day] = make(map[string]QueryMetrics)
		}
		days[day][query] = QueryMetrics{
			Position:    row.Position,
			Clicks:      int64(row.Clicks),
			Impressions: int64(row.Impressions),
		}
	}
	return days, nil
}

func (a *GoogleAdapter) FetchSiteDailyTotals(ctx context.Context, dr DateRange) (map[string]SiteTotals, error) {
	// Date-only dimension skips the per-query anonymization threshold,
	// so these figures are the site's real totals.
	resp, err := a.runQuery(ctx, dr, []string{"date"})
	if err != nil {
		return nil, err
	}

	totals := make(map[string]SiteTotals, len(resp.Rows))
	for _, row := range resp.Rows {
		if len(row.Keys) < 1 {
			continue
		}
		totals[row.Keys[0]] = SiteTotals{
			Position:    row.Position,
			Clicks:      int64(row.Clicks),
			Impressions: int64(row.Impressions),
		}
	}
	return totals, nil
}

func (a *GoogleAdapter) runQuery(ctx context.Context, dr DateRange, dimensions []string) (*googleQueryResponse, error) {
	if a == nil || a.siteURL == "" || a.tokens == nil {
		return nil, fmt.Errorf("google adapter: %w", ErrUnavailable)
	}
	if err := dr.Validate(); err != nil {
		return nil, err
	}

	token, err := a.tokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("google adapter token: %w", ErrUnavailable)
	}

	body, err := json.Marshal(googleQueryRequest{
		StartDate:  dr.Start.Format(DayFormat),
		EndDate:    dr.End.Format(DayFormat),
		Dimensions: dimensions,
		RowLimit:   googleSearchAnalyticsRowLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search analytics request: %w", err)
	}

	endpoint := fmt.Sprintf(
		"https://www.googleapis.com/webmasters/v3/sites/%s/searchAnalytics/query",
		url.PathEscape(a.siteURL),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search analytics request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search analytics request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read search analytics response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("google adapter: %w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search analytics returned status %d: %s",
			resp.StatusCode, truncateForError(payload))
	}

	var parsed googleQueryResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode search analytics response: %w", err)
	}
	return &parsed, nil
}

func truncateForError(payload []byte) string {
	const maxLen = 200
	text := strings.TrimSpace(string(payload))
	if len(text) > maxLen {
		return text[:maxLen] + "..."
	}
	return text
}

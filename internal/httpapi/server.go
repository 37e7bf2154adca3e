// Package httpapi exposes the read-only inspection API. Writes go
// through the CLI commands only.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/rankpulse/internal/db"
	"horse.fit/rankpulse/internal/schedule"
)

const (
	defaultSyncLogLimit = 25
	maxSyncLogLimit     = 200
	defaultTotalDays    = 30
	maxTotalDays        = 365
)

// Store is the read surface the API serves from. *db.Pool implements it.
type Store interface {
	ListSites(ctx context.Context) ([]db.Site, error)
	GetSiteByUUID(ctx context.Context, siteUUID string) (*db.Site, error)
	GetSiteBySlug(ctx context.Context, slug string) (*db.Site, error)
	ListKeywords(ctx context.Context, scope db.Scope) ([]db.Keyword, error)
	ListSyncLogs(ctx context.Context, scope *db.Scope, limit int) ([]db.SyncLog, error)
	ListRecentDailyTotals(ctx context.Context, scope db.Scope, sinceDay time.Time) ([]db.DailyTotal, error)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	store  Store
	logger zerolog.Logger
	opts   Options
	now    func() time.Time
}

type siteItem struct {
	SiteUUID    string             `json:"site_uuid"`
	Slug        string             `json:"slug"`
	Name        string             `json:"name"`
	PropertyURL string             `json:"property_url"`
	Enabled     bool               `json:"enabled"`
	Due         schedule.DueStatus `json:"due"`
	CreatedAt   time.Time          `json:"created_at"`
}

type keywordItem struct {
	KeywordUUID    string     `json:"keyword_uuid"`
	Text           string     `json:"text"`
	NormalizedText string     `json:"normalized_text"`
	Active         bool       `json:"active"`
	Source         string     `json:"source"`
	Relevance      string     `json:"relevance"`
	RelevanceScore int16      `json:"relevance_score"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	DeactivatedAt  *time.Time `json:"deactivated_at,omitempty"`
}

type syncLogItem struct {
	SyncLogUUID  string     `json:"sync_log_uuid"`
	Command      string     `json:"command"`
	SiteID       *int64     `json:"site_id,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	DurationMS   *int64     `json:"duration_ms,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

type dailyTotalItem struct {
	Day         string  `json:"day"`
	Source      string  `json:"source"`
	Clicks      int64   `json:"clicks"`
	Impressions int64   `json:"impressions"`
	Position    float64 `json:"position"`
}

func NewServer(store Store, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8094
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		store:  store,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.newEcho()
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("rankpulse api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("rankpulse api server stopped")
	return nil
}

func (s *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/sites", s.handleSites)
	api.GET("/sites/:site_uuid/due", s.handleSiteDue)
	api.GET("/sites/:site_uuid/keywords", s.handleSiteKeywords)
	api.GET("/sync-logs", s.handleSyncLogs)
	api.GET("/daily-totals", s.handleDailyTotals)

	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "rankpulse",
		"time":    s.now(),
	})
}

func (s *Server) handleSites(c echo.Context) error {
	sites, err := s.store.ListSites(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query sites failed")
		return internalError(c, "Failed to load sites")
	}

	now := s.now()
	items := make([]siteItem, 0, len(sites))
	for _, site := range sites {
		items = append(items, siteItem{
			SiteUUID:    site.SiteUUID,
			Slug:        site.Slug,
			Name:        site.Name,
			PropertyURL: site.PropertyURL,
			Enabled:     site.Enabled,
			Due:         schedule.Evaluate(site, now),
			CreatedAt:   site.CreatedAt,
		})
	}

	return success(c, map[string]any{
		"items": items,
		"at":    now,
	})
}

func (s *Server) handleSiteDue(c echo.Context) error {
	site, err := s.lookupSite(c)
	if site == nil {
		return err
	}

	at := s.now()
	if raw := strings.TrimSpace(c.QueryParam("at")); raw != "" {
		parsed, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			return failValidation(c, map[string]string{"at": "must be RFC3339"})
		}
		at = parsed
	}

	return success(c, map[string]any{
		"due": schedule.Evaluate(*site, at),
		"at":  at,
	})
}

func (s *Server) handleSiteKeywords(c echo.Context) error {
	site, err := s.lookupSite(c)
	if site == nil {
		return err
	}

	keywords, err := s.store.ListKeywords(c.Request().Context(), db.SiteScope(site.SiteID))
	if err != nil {
		s.logger.Error().Err(err).Str("slug", site.Slug).Msg("query keywords failed")
		return internalError(c, "Failed to load keywords")
	}

	activeOnly := strings.EqualFold(strings.TrimSpace(c.QueryParam("active")), "true")
	items := make([]keywordItem, 0, len(keywords))
	for _, kw := range keywords {
		if activeOnly && !kw.Active {
			continue
		}
		items = append(items, keywordItem{
			KeywordUUID:    kw.KeywordUUID,
			Text:           kw.Text,
			NormalizedText: kw.NormalizedText,
			Active:         kw.Active,
			Source:         kw.Source,
			Relevance:      kw.Relevance,
			RelevanceScore: kw.RelevanceScore,
			LastSyncedAt:   kw.LastSyncedAt,
			DeactivatedAt:  kw.DeactivatedAt,
		})
	}

	return success(c, map[string]any{
		"items": items,
		"site":  site.Slug,
	})
}

func (s *Server) handleSyncLogs(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultSyncLogLimit, 1, maxSyncLogLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	var scope *db.Scope
	if slug := strings.TrimSpace(c.QueryParam("site")); slug != "" {
		site, lookupErr := s.store.GetSiteBySlug(c.Request().Context(), slug)
		if lookupErr != nil {
			if errors.Is(lookupErr, db.ErrNoRows) {
				return failNotFound(c, "Site not found")
			}
			s.logger.Error().Err(lookupErr).Str("slug", slug).Msg("query site failed")
			return internalError(c, "Failed to load site")
		}
		siteScope := db.SiteScope(site.SiteID)
		scope = &siteScope
	}

	logs, err := s.store.ListSyncLogs(c.Request().Context(), scope, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query sync logs failed")
		return internalError(c, "Failed to load sync logs")
	}

	items := make([]syncLogItem, 0, len(logs))
	for _, entry := range logs {
		items = append(items, syncLogItem{
			SyncLogUUID:  entry.SyncLogUUID,
			Command:      entry.Command,
			SiteID:       entry.SiteID,
			StartedAt:    entry.StartedAt,
			FinishedAt:   entry.FinishedAt,
			DurationMS:   entry.DurationMS,
			Status:       entry.Status,
			ErrorMessage: entry.ErrorMessage,
		})
	}

	return success(c, map[string]any{
		"items": items,
		"limit": limit,
	})
}

func (s *Server) handleDailyTotals(c echo.Context) error {
	days, err := parsePositiveInt(c.QueryParam("days"), defaultTotalDays, 1, maxTotalDays)
	if err != nil {
		return failValidation(c, map[string]string{"days": err.Error()})
	}

	scope := db.GlobalScope()
	if slug := strings.TrimSpace(c.QueryParam("site")); slug != "" {
		site, lookupErr := s.store.GetSiteBySlug(c.Request().Context(), slug)
		if lookupErr != nil {
			if errors.Is(lookupErr, db.ErrNoRows) {
				return failNotFound(c, "Site not found")
			}
			s.logger.Error().Err(lookupErr).Str("slug", slug).Msg("query site failed")
			return internalError(c, "Failed to load site")
		}
		scope = db.SiteScope(site.SiteID)
	}

	sinceDay := s.now().AddDate(0, 0, -days)
	totals, err := s.store.ListRecentDailyTotals(c.Request().Context(), scope, sinceDay)
	if err != nil {
		s.logger.Error().Err(err).Str("scope", scope.String()).Msg("query daily totals failed")
		return internalError(c, "Failed to load daily totals")
	}

	items := make([]dailyTotalItem, 0, len(totals))
	for _, total := range totals {
		items = append(items, dailyTotalItem{
			Day:         total.Day.Format("2006-01-02"),
			Source:      total.Source,
			Clicks:      total.Clicks,
			Impressions: total.Impressions,
			Position:    total.Position,
		})
	}

	return success(c, map[string]any{
		"items": items,
		"scope": scope.String(),
		"days":  days,
	})
}

// lookupSite resolves the :site_uuid path parameter. When it returns a
// nil site it has already written the failure response; the handler
// should return the accompanying error as-is.
func (s *Server) lookupSite(c echo.Context) (*db.Site, error) {
	siteUUID := strings.TrimSpace(c.Param("site_uuid"))
	if siteUUID == "" {
		return nil, failValidation(c, map[string]string{"site_uuid": "is required"})
	}

	site, err := s.store.GetSiteByUUID(c.Request().Context(), siteUUID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return nil, failNotFound(c, "Site not found")
		}
		s.logger.Error().Err(err).Str("site_uuid", siteUUID).Msg("query site failed")
		return nil, internalError(c, "Failed to load site")
	}
	return site, nil
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

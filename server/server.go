// Package server exposes the memory layer over HTTP: health, metrics, and a
// small REST surface for stats, search, listing, and maintenance.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/mnemosyne/core"
	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/internal/version"
)

// Server is the HTTP ops surface.
type Server struct {
	profile *profile.Profile
	memory  *core.Memory
	metrics *MetricsExporter
	echo    *echo.Echo
}

// NewServer builds the echo instance and registers all routes.
func NewServer(p *profile.Profile, memory *core.Memory) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		profile: p,
		memory:  memory,
		metrics: NewMetricsExporter(),
		echo:    e,
	}

	e.Use(middleware.Recover())
	e.Use(s.observeRequests)

	e.GET("/healthz", s.healthz)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	apiGroup := e.Group("/api/v1", middleware.CORS())
	apiGroup.GET("/memories", s.listMemories)
	apiGroup.POST("/memories", s.addMemory)
	apiGroup.DELETE("/memories", s.clearMemories)
	apiGroup.GET("/memories/stats", s.memoryStats)
	apiGroup.GET("/memories/search", s.searchMemories)
	apiGroup.POST("/conversations", s.recordConversation)
	apiGroup.GET("/system/status", s.systemStatus)

	return s
}

// Start runs the listener. Blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	slog.Info("http server starting", "addr", addr, "version", version.String())
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown http server", "error", err)
	}
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Metrics exposes the exporter so other layers can report into it.
func (s *Server) Metrics() *MetricsExporter {
	return s.metrics
}

func (s *Server) observeRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.metrics.RecordHTTPRequest(c.Request().Method, c.Path(), c.Response().Status, time.Since(start))
		return err
	}
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.String(),
		"enabled": s.memory.Enabled(),
	})
}

type memoryRow struct {
	MemoryID        string  `json:"memory_id"`
	Tier            string  `json:"tier"`
	Summary         string  `json:"summary"`
	Category        string  `json:"category"`
	ImportanceScore float64 `json:"importance_score"`
	SearchScore     float64 `json:"search_score,omitempty"`
	SearchStrategy  string  `json:"search_strategy,omitempty"`
	CreatedTs       int64   `json:"created_ts"`
}

func (s *Server) listMemories(c echo.Context) error {
	limit := intQuery(c, "limit", 50)
	descending := c.QueryParam("order") != "asc"

	listing, err := s.memory.ListMemories(c.Request().Context(), descending, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	rows := make([]memoryRow, 0, len(listing.Rows))
	for _, r := range listing.Rows {
		rows = append(rows, memoryRow{
			MemoryID:        r.MemoryID,
			Tier:            r.Tier,
			Summary:         r.Summary,
			Category:        r.CategoryPrimary,
			ImportanceScore: r.ImportanceScore,
			CreatedTs:       r.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"memories":    rows,
		"total_count": listing.TotalCount,
	})
}

type addMemoryRequest struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) addMemory(c echo.Context) error {
	var req addMemoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	memoryID, err := s.memory.Add(c.Request().Context(), req.Text, req.Metadata)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]any{"memory_id": memoryID})
}

func (s *Server) clearMemories(c echo.Context) error {
	tier := c.QueryParam("tier")
	deleted, err := s.memory.ClearMemory(c.Request().Context(), tier)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) memoryStats(c echo.Context) error {
	stats, err := s.memory.GetStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"user_id":            stats.UserID,
		"chat_count":         stats.ChatCount,
		"short_term_count":   stats.ShortTermCount,
		"long_term_count":    stats.LongTermCount,
		"counts_by_category": stats.CountsByCategory,
		"average_importance": stats.AverageImportance,
	})
}

func (s *Server) searchMemories(c echo.Context) error {
	query := c.QueryParam("q")
	limit := intQuery(c, "limit", 10)

	start := time.Now()
	results, err := s.memory.Search(c.Request().Context(), query, limit)
	s.metrics.RecordSearch(time.Since(start), err == nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	rows := make([]memoryRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, memoryRow{
			MemoryID:        r.MemoryID,
			Tier:            r.Tier,
			Summary:         r.Summary,
			Category:        r.CategoryPrimary,
			ImportanceScore: r.ImportanceScore,
			SearchScore:     r.SearchScore,
			SearchStrategy:  r.SearchStrategy,
			CreatedTs:       r.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"results": rows})
}

type recordConversationRequest struct {
	UserInput string         `json:"user_input"`
	AIOutput  string         `json:"ai_output"`
	Model     string         `json:"model"`
	Metadata  map[string]any `json:"metadata"`
}

func (s *Server) recordConversation(c echo.Context) error {
	var req recordConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserInput == "" && req.AIOutput == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_input or ai_output is required")
	}

	chatID, err := s.memory.RecordConversation(c.Request().Context(), req.UserInput, req.AIOutput, req.Model, req.Metadata)
	s.metrics.RecordRecording(err == nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]any{"chat_id": chatID})
}

func (s *Server) systemStatus(c echo.Context) error {
	pool := s.memory.Store().PoolStatus()
	executorStats := s.memory.ExecutorStats()
	return c.JSON(http.StatusOK, map[string]any{
		"pool": map[string]any{
			"backend":        pool.Backend,
			"open_conns":     pool.OpenConns,
			"in_use":         pool.InUse,
			"idle":           pool.Idle,
			"wait_count":     pool.WaitCount,
			"max_open_conns": pool.MaxOpenConns,
		},
		"executor": map[string]any{
			"running":      executorStats.Running,
			"active_tasks": executorStats.ActiveTasks,
			"loop_alive":   executorStats.LoopAlive,
		},
	})
}

func intQuery(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil || v <= 0 {
		return fallback
	}
	return v
}

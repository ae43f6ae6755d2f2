// Package server exposes the taskd HTTP API.
//
// The server is a thin Echo layer over the orchestrator: task dispatch,
// task lookup, queue processing, queue statistics, and Prometheus
// metrics, with graceful context-driven shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/ledger"
	"github.com/fyrsmithlabs/taskd/internal/orchestrator"
	"github.com/fyrsmithlabs/taskd/internal/queue"
)

// Config configures the HTTP server.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
}

// Server is the taskd HTTP API.
type Server struct {
	config Config
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
	echo   *echo.Echo
}

// HealthResponse is the JSON body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// dispatchRequest is the JSON body for POST /tasks.
type dispatchRequest struct {
	Type       string         `json:"type"`
	SourceData map[string]any `json:"source_data"`
	Priority   int            `json:"priority"`
	Wait       bool           `json:"wait"`
}

// New creates the HTTP server over an orchestrator.
func New(cfg Config, orch *orchestrator.Orchestrator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		config: cfg,
		orch:   orch,
		logger: logger,
		echo:   e,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/tasks", s.handleDispatch)
	s.echo.GET("/tasks", s.handleListPending)
	s.echo.GET("/tasks/:id", s.handleGetTask)
	s.echo.POST("/tasks/:id/cancel", s.handleCancelTask)
	s.echo.GET("/stats", s.handleStats)
	s.echo.POST("/queue/process", s.handleProcessQueue)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: "taskd"})
}

// handleDispatch creates and dispatches a task. With wait=true the
// response carries the final worker result; otherwise the task id and
// "queued".
func (s *Server) handleDispatch(c echo.Context) error {
	var req dispatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp := s.orch.Dispatch(c.Request().Context(), orchestrator.DispatchSpec{
		Type:       req.Type,
		SourceData: req.SourceData,
	}, req.Priority, req.Wait)

	status := http.StatusAccepted
	if !resp.Success && resp.TaskID == "" {
		status = http.StatusBadRequest
	} else if req.Wait {
		status = http.StatusOK
	}
	return c.JSON(status, resp)
}

func (s *Server) handleGetTask(c echo.Context) error {
	task, err := s.orch.GetTaskStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "task not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) handleCancelTask(c echo.Context) error {
	task, err := s.orch.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrTaskNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "task not found")
		case errors.Is(err, queue.ErrTerminal):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) handleListPending(c echo.Context) error {
	tasks, err := s.orch.ListPending(c.Request().Context(), c.QueryParam("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if tasks == nil {
		tasks = []*ledger.Task{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.orch.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleProcessQueue(c echo.Context) error {
	maxTasks := 0
	if v := c.QueryParam("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "max must be a non-negative integer")
		}
		maxTasks = n
	}

	results, err := s.orch.ProcessQueue(c.Request().Context(), maxTasks)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"processed": len(results),
		"results":   results,
	})
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully within the configured timeout. Returns
// http.ErrServerClosed on graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	errCh := make(chan error, 1)

	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance for registering extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

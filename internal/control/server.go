// Package control exposes the local HTTP API for inspecting and steering
// the running gateway.
package control

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/rnovak/newswatch/internal/scheduler"
	"github.com/rnovak/newswatch/internal/source"
)

// Server wraps echo with the status and source-patch routes. It binds to
// localhost by default; this is an operator surface, not a public one.
type Server struct {
	echo     *echo.Echo
	sched    *scheduler.Scheduler
	adapters map[string]*source.Adapter
	order    []string
	onChange func()
	addr     string
}

type statusResponse struct {
	OK        bool             `json:"ok"`
	Scheduler scheduler.Status `json:"scheduler"`
	Sources   []source.State   `json:"sources"`
}

type patchRequest struct {
	Enabled             *bool    `json:"enabled,omitempty"`
	Weight              *float64 `json:"weight,omitempty"`
	SimilarityThreshold *float64 `json:"similarityThreshold,omitempty"`
}

type actionResponse struct {
	OK      bool          `json:"ok"`
	Message string        `json:"message"`
	Source  *source.State `json:"source,omitempty"`
}

// NewServer builds the control server. onChange fires after a successful
// source patch so the caller can persist configuration; nil is allowed.
func NewServer(host string, port int, sched *scheduler.Scheduler, adapters []*source.Adapter, onChange func()) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	byName := make(map[string]*source.Adapter, len(adapters))
	var order []string
	for _, a := range adapters {
		byName[a.Name()] = a
		order = append(order, a.Name())
	}

	s := &Server{
		echo:     e,
		sched:    sched,
		adapters: byName,
		order:    order,
		onChange: onChange,
		addr:     fmt.Sprintf("%s:%d", host, port),
	}

	e.GET("/api/status", s.handleStatus)
	e.POST("/api/sources/:name", s.handlePatchSource)
	e.POST("/api/fetch", s.handleFetch)

	return s
}

// Start serves in a goroutine until Stop.
func (s *Server) Start() {
	go func() {
		log.Printf("[control] listening on %s", s.addr)
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			log.Printf("[control] server stopped: %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := statusResponse{OK: true, Scheduler: s.sched.Snapshot()}
	for _, name := range s.order {
		resp.Sources = append(resp.Sources, s.adapters[name].Snapshot())
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePatchSource(c echo.Context) error {
	name := c.Param("name")
	adapter, ok := s.adapters[name]
	if !ok {
		return c.JSON(http.StatusNotFound, actionResponse{
			OK:      false,
			Message: fmt.Sprintf("unknown source %q", name),
		})
	}

	var req patchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, actionResponse{
			OK:      false,
			Message: "invalid request body",
		})
	}

	if req.Enabled != nil {
		adapter.SetEnabled(*req.Enabled)
		if *req.Enabled && !adapter.Enabled() {
			return c.JSON(http.StatusConflict, actionResponse{
				OK:      false,
				Message: fmt.Sprintf("source %q is not configured and cannot be enabled", name),
			})
		}
	}
	if req.Weight != nil {
		if *req.Weight < 0 {
			return c.JSON(http.StatusBadRequest, actionResponse{
				OK:      false,
				Message: "weight must be >= 0",
			})
		}
		adapter.SetWeight(*req.Weight)
	}
	if req.SimilarityThreshold != nil {
		adapter.SetSimilarityThreshold(*req.SimilarityThreshold)
	}

	if s.onChange != nil {
		s.onChange()
	}

	state := adapter.Snapshot()
	log.Printf("[control] source %s updated: enabled=%t weight=%.1f", name, state.Enabled, state.Weight)
	return c.JSON(http.StatusOK, actionResponse{
		OK:      true,
		Message: fmt.Sprintf("source %q updated", name),
		Source:  &state,
	})
}

func (s *Server) handleFetch(c echo.Context) error {
	s.sched.Trigger()
	return c.JSON(http.StatusAccepted, actionResponse{
		OK:      true,
		Message: "fetch cycle triggered",
	})
}

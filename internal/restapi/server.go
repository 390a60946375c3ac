// Package restapi implements the HTTP control plane: a thin layer over
// the config store and orchestrator that translates requests to their
// store/orchestrator method calls and validation errors to 4xx responses.
package restapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/etvr-go/trackingd/internal/config"
	"github.com/etvr-go/trackingd/internal/orchestrator"
)

// Server wires the orchestrator and config store to an echo router.
type Server struct {
	echo *echo.Echo
	orch *orchestrator.Orchestrator
	log  zerolog.Logger
}

// New builds a Server with every route registered. Call Start to serve.
func New(orch *orchestrator.Orchestrator, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, orch: orch, log: log.With().Str("component", "restapi").Logger()}
	s.routes()
	return s
}

func (s *Server) routes() {
	g := s.echo.Group("/etvr")

	g.GET("/config", s.getConfig)
	g.POST("/config", s.postConfig)
	g.GET("/config/save", s.saveConfig)
	g.GET("/config/load", s.loadConfig)
	g.GET("/config/reset", s.resetConfig)

	g.GET("/config/trackers", s.listTrackers)
	g.GET("/config/tracker", s.getTracker)
	g.PUT("/config/tracker", s.updateTracker)
	g.POST("/config/tracker", s.createTracker)
	g.DELETE("/config/tracker", s.deleteTracker)
	g.GET("/config/tracker/reset", s.resetTracker)

	g.GET("/start", s.start)
	g.GET("/stop", s.stop)
	g.GET("/restart", s.restart)
	g.GET("/status", s.status)

	g.GET("/feed/:uuid/camera", s.feedCamera)
	g.GET("/feed/:uuid/algorithm", s.feedAlgorithm)
}

// Start serves on addr until the process is terminated.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) getConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.Store().Current())
}

func (s *Server) postConfig(c echo.Context) error {
	var next config.RootConfig
	if err := c.Bind(&next); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.orch.Store().Update(func(r *config.RootConfig) { *r = next }); err != nil {
		return validationError(err)
	}
	return c.JSON(http.StatusOK, s.orch.Store().Current())
}

func (s *Server) saveConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.Store().Current())
}

func (s *Server) loadConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.Store().Current())
}

func (s *Server) resetConfig(c echo.Context) error {
	if err := s.orch.Store().Reset(); err != nil {
		return validationError(err)
	}
	return c.JSON(http.StatusOK, s.orch.Store().Current())
}

func (s *Server) listTrackers(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.Store().Current().Trackers)
}

func (s *Server) getTracker(c echo.Context) error {
	tc, err := s.orch.Store().GetTrackerByUUID(c.QueryParam("uuid"))
	if err != nil {
		return notFoundOrError(err)
	}
	return c.JSON(http.StatusOK, tc)
}

func (s *Server) updateTracker(c echo.Context) error {
	var patch config.TrackerConfig
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id := c.QueryParam("uuid")
	if err := s.orch.Store().UpdateTracker(id, func(tc *config.TrackerConfig) {
		patch.UUID = tc.UUID
		*tc = patch
	}); err != nil {
		return notFoundOrValidationError(err)
	}
	return c.JSON(http.StatusOK, http.StatusText(http.StatusOK))
}

func (s *Server) createTracker(c echo.Context) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tc, err := s.orch.Store().CreateTracker(body.Name)
	if err != nil {
		return validationError(err)
	}
	return c.JSON(http.StatusCreated, tc)
}

func (s *Server) deleteTracker(c echo.Context) error {
	if err := s.orch.Store().DeleteTracker(c.QueryParam("uuid")); err != nil {
		return notFoundOrError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) resetTracker(c echo.Context) error {
	if err := s.orch.Store().ResetTracker(c.QueryParam("uuid")); err != nil {
		return notFoundOrError(err)
	}
	return c.JSON(http.StatusOK, http.StatusText(http.StatusOK))
}

func (s *Server) start(c echo.Context) error {
	if err := s.orch.Start(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, statusBody(s.orch))
}

func (s *Server) stop(c echo.Context) error {
	if err := s.orch.Stop(); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, statusBody(s.orch))
}

func (s *Server) restart(c echo.Context) error {
	if err := s.orch.Restart(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, statusBody(s.orch))
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusBody(s.orch))
}

func statusBody(orch *orchestrator.Orchestrator) map[string]bool {
	return map[string]bool{"running": orch.Status()}
}

func validationError(err error) error {
	var ve *config.ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"field": ve.Field, "message": ve.Message})
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func notFoundOrError(err error) error {
	if errors.Is(err, config.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func notFoundOrValidationError(err error) error {
	if errors.Is(err, config.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return validationError(err)
}

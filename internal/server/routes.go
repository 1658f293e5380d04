package server

import (
	"io"
	"net/http"
	"time"

	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/berfenger/batteryopt2mqtt/internal/core/service"

	"github.com/NYTimes/gziphandler"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const (
	REQUEST_TIMEOUT      = 5 * time.Second
	OPTIMIZATION_TIMEOUT = 45 * time.Second
)

type planResponse struct {
	Plan           *domain.PlanView `json:"plan"`
	LastSkipReason string           `json:"last_skip_reason"`
	Enabled        bool             `json:"enabled"`
	ControlMode    string           `json:"control_mode"`
}

type runResponse struct {
	Plan       *domain.PlanView `json:"plan"`
	SkipReason string           `json:"skip_reason"`
}

type controlResponse struct {
	Action *domain.ControlActionView `json:"action"`
}

type forecastResponse struct {
	Triggered bool `json:"triggered"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type deadbandRequest struct {
	DeadbandW *float64 `json:"deadband_w"`
}

type optimizerRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	// plan payloads carry full-horizon series
	gzip := echo.WrapMiddleware(gziphandler.GzipHandler)

	api := e.Group("/api")
	api.GET("/plan", s.GetPlanHandler, gzip)
	api.POST("/optimize", s.RunOptimizationHandler, gzip)
	api.GET("/control", s.GetControlActionHandler)
	api.POST("/forecast", s.UpdateForecastHandler)
	api.PUT("/mode", s.SetControlModeHandler)
	api.PUT("/deadband", s.SetDeadbandHandler)
	api.PUT("/optimizer", s.SetOptimizerEnabledHandler)
	api.GET("/ws", s.WebsocketHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) GetPlanHandler(c echo.Context) error {
	resp, err := request[domain.GetPlanResponse](s, domain.GetPlanRequest{}, REQUEST_TIMEOUT)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, planResponse{
		Plan:           domain.NewPlanView(resp.Snapshot),
		LastSkipReason: string(resp.LastSkipReason),
		Enabled:        resp.Enabled,
		ControlMode:    string(resp.ControlMode),
	})
}

func (s *Server) RunOptimizationHandler(c echo.Context) error {
	resp, err := request[domain.RunOptimizationResponse](s, domain.RunOptimizationRequest{}, OPTIMIZATION_TIMEOUT)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, runResponse{
		Plan:       domain.NewPlanView(resp.Snapshot),
		SkipReason: string(resp.SkipReason),
	})
}

func (s *Server) GetControlActionHandler(c echo.Context) error {
	resp, err := request[domain.GetControlActionResponse](s, domain.GetControlActionRequest{}, REQUEST_TIMEOUT)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, controlResponse{Action: domain.NewControlActionView(resp.Action)})
}

func (s *Server) UpdateForecastHandler(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	forecast, err := service.ParseForecast(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := request[domain.UpdateForecastResponse](s, domain.UpdateForecastRequest{Forecast: forecast}, REQUEST_TIMEOUT)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, forecastResponse{Triggered: resp.Triggered})
}

func (s *Server) SetControlModeHandler(c echo.Context) error {
	var req modeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	mode, err := domain.ParseControlMode(req.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := request[domain.SetControlModeResponse](s, domain.SetControlModeRequest{Mode: mode}, REQUEST_TIMEOUT)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, modeRequest{Mode: string(resp.Mode)})
}

func (s *Server) SetDeadbandHandler(c echo.Context) error {
	var req deadbandRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.DeadbandW == nil || *req.DeadbandW < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "deadband_w must be >= 0")
	}
	resp, err := request[domain.SetDeadbandResponse](s, domain.SetDeadbandRequest{DeadbandW: *req.DeadbandW}, REQUEST_TIMEOUT)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, deadbandRequest{DeadbandW: &resp.DeadbandW})
}

func (s *Server) SetOptimizerEnabledHandler(c echo.Context) error {
	var req optimizerRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Enabled == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "enabled is required")
	}
	resp, err := request[domain.SetOptimizerEnabledResponse](s, domain.SetOptimizerEnabledRequest{Enabled: *req.Enabled}, REQUEST_TIMEOUT)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, optimizerRequest{Enabled: &resp.Enabled})
}

func (s *Server) WebsocketHandler(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", zap.Error(err))
		return nil
	}
	client := newClient(s.hub, conn)
	s.hub.Register(client)
	go client.writePump()

	// new clients start from the current plan
	if resp, err := request[domain.GetPlanResponse](s, domain.GetPlanRequest{}, REQUEST_TIMEOUT); err == nil && resp.Snapshot != nil {
		s.hub.sendJSON(client, MESSAGE_TYPE_PLAN, domain.NewPlanView(resp.Snapshot))
	}

	client.readPump()
	return nil
}

// request asks the master actor and maps failures to HTTP errors.
func request[T domain.ActorResponse](s *Server, msg any, timeout time.Duration) (T, error) {
	var zero T
	res, err := s.rootContext.RequestFuture(s.masterActor, msg, timeout).Result()
	if err != nil {
		s.logger.Warn("actor request failed", zap.Error(err))
		return zero, echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	resp, ok := res.(T)
	if !ok {
		return zero, echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	if resp.HasResponseError() {
		return zero, echo.NewHTTPError(http.StatusInternalServerError, resp.GetResponseError().Error())
	}
	return resp, nil
}

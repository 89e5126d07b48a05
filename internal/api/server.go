package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/ddpm/internal/logger"
	"github.com/samcharles93/ddpm/internal/version"
)

// maxBody bounds POST bodies; requests carry parameters, not data.
const maxBody = 1 << 20

type Server struct {
	store   *SampleStore
	service *SampleService
	log     logger.Logger
	clock   func() time.Time
}

func NewServer(store *SampleStore, service *SampleService) *Server {
	if store == nil {
		store = NewSampleStore(0)
	}
	return &Server{
		store:   store,
		service: service,
		log:     logger.Discard(),
		clock:   time.Now,
	}
}

// SetLogger attaches l to every request context.
func (s *Server) SetLogger(l logger.Logger) {
	s.log = l
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/info", s.handleInfo)
	e.GET("/v1/schedule", s.handleSchedule)
	e.POST("/v1/samples", s.handleCreateSample)
	e.GET("/v1/samples/:id", s.handleGetSample)
	e.DELETE("/v1/samples/:id", s.handleDeleteSample)
}

func (s *Server) handleInfo(c *echo.Context) error {
	eng := s.service.engine
	return c.JSON(http.StatusOK, InfoResponse{
		Object:    "engine",
		Version:   version.String(),
		Config:    eng.Config(),
		Denoiser:  s.service.cfg.Kind,
		Dims:      s.service.cfg.Dims,
		RunID:     s.service.cfg.RunID,
		Methods:   s.service.Methods(),
		MaxBatch:  s.service.cfg.MaxBatch,
		DDPMSteps: len(eng.AncestralTimesteps(eng.Parameterization())),
	})
}

func (s *Server) handleSchedule(c *echo.Context) error {
	sched := s.service.engine.Schedule()
	return c.JSON(http.StatusOK, ScheduleResponse{
		Object:        "schedule",
		Timesteps:     sched.Len(),
		Mode:          string(sched.Mode()),
		Betas:         sched.Betas(),
		Alphas:        sched.Alphas(),
		AlphasCumprod: sched.AlphasCumprod(),
	})
}

func (s *Server) handleCreateSample(c *echo.Context) error {
	req, err := decodeJSON[SampleRequest](io.LimitReader(c.Request().Body, maxBody))
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	ctx := logger.WithContext(c.Request().Context(), s.log)
	resp, err := s.service.Sample(ctx, &req)
	if err != nil {
		status, typ := classify(err)
		if status >= http.StatusInternalServerError {
			s.log.Error("sampling failed", "error", err)
		}
		return writeError(c, status, typ, err.Error())
	}
	resp.CreatedAt = s.clock().Unix()
	s.store.Save(*resp)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetSample(c *echo.Context) error {
	resp, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "sample not found")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteSample(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "sample not found")
	}
	return c.JSON(http.StatusOK, DeleteSampleResponse{ID: id, Object: "sample", Deleted: true})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{Message: msg, Type: errType},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("decode request: %w", err)
	}
	return out, nil
}

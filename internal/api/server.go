package api

import (
	"net/http"

	"github.com/labstack/echo/v5"
)

type Server struct {
	service *Service
}

func NewServer(service *Service) *Server {
	if service == nil {
		service = NewService(DefaultLimits())
	}
	return &Server{service: service}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/requantize", s.handleRequantize)
	e.POST("/v1/params", s.handleParams)
	e.GET("/v1/backends", s.handleBackends)
	e.POST("/v1/verify", s.handleVerify)
}

func (s *Server) handleRequantize(c *echo.Context) error {
	req, err := decodeJSON[RequantizeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	resp, err := s.service.Requantize(req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleParams(c *echo.Context) error {
	req, err := decodeJSON[ParamsRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	resp, err := s.service.Params(req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleBackends(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.service.Backends())
}

func (s *Server) handleVerify(c *echo.Context) error {
	req, err := decodeJSON[VerifyRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	resp, err := s.service.Verify(c.Request().Context(), req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

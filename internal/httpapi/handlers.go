// Package httpapi serves short-code redirects and a JSON API for managing links.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"snaplink/internal/domain"
	"snaplink/internal/resolver"
	"snaplink/internal/service"
)

const (
	// OwnerHeader carries the opaque creator identity on API requests.
	OwnerHeader = "X-Owner-ID"

	// MaxSourceLength caps the Referer stored as a click source, in bytes.
	MaxSourceLength = 512
)

// ReservedCodes are the top-level path segments taken by fixed routes.
// A registry serving this router must refuse them as short codes.
var ReservedCodes = []string{"healthz", "metrics", "api"}

// LinkService is the subset of service.Service the HTTP layer calls.
type LinkService interface {
	CreateLink(ctx context.Context, destination, requestedCode string, validityMinutes int, owner domain.Owner) (domain.LinkRecord, error)
	DeleteLink(ctx context.Context, code string) error
	ListLinks(ctx context.Context, owner domain.Owner) ([]domain.LinkRecord, error)
	Resolve(ctx context.Context, code, source string, now time.Time) (resolver.Outcome, error)
	SimulateClick(ctx context.Context, code string, now time.Time) (resolver.Outcome, error)
	GetLinkDetail(ctx context.Context, code string) (domain.LinkRecord, error)
	LinkStats(ctx context.Context, code string, now time.Time) (service.Stats, error)
}

// Server exposes a LinkService over HTTP.
type Server struct {
	svc     LinkService
	baseURL string
	now     func() time.Time
	log     logrus.FieldLogger
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces the time source used for resolutions.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates a Server. baseURL prefixes the short_url of every link response.
func NewServer(svc LinkService, baseURL string, logger logrus.FieldLogger, opts ...Option) *Server {
	s := &Server{
		svc:     svc,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
		log:     logger.WithField("component", "http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(s.log))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/links")
	api.POST("", s.createLink)
	api.GET("", s.listLinks)
	api.GET("/:code", s.getLink)
	api.GET("/:code/stats", s.linkStats)
	api.POST("/:code/simulate", s.simulateClick)
	api.DELETE("/:code", s.deleteLink)

	r.GET("/:code", s.redirect)
	return r
}

type createLinkRequest struct {
	URL             string `json:"url" binding:"required"`
	Code            string `json:"code"`
	ValidityMinutes int    `json:"validity_minutes"`
}

type linkResponse struct {
	domain.LinkRecord
	ShortURL string `json:"short_url"`
}

type outcomeResponse struct {
	Outcome     string `json:"outcome"`
	Destination string `json:"destination,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) toResponse(rec domain.LinkRecord) linkResponse {
	return linkResponse{LinkRecord: rec, ShortURL: s.baseURL + "/" + rec.Code}
}

// redirect is the public entry point for a short code.
func (s *Server) redirect(c *gin.Context) {
	code := c.Param("code")
	source := clampSource(c.GetHeader("Referer"))

	out, err := s.svc.Resolve(c.Request.Context(), code, source, s.now())
	if err != nil {
		s.fail(c, err)
		return
	}

	switch out.Kind {
	case resolver.Redirect:
		c.Redirect(http.StatusFound, out.Destination)
	case resolver.Expired:
		c.String(http.StatusGone, "This short link has expired.")
	default:
		c.String(http.StatusNotFound, "Short link not found.")
	}
}

// clampSource cuts source to MaxSourceLength without splitting a UTF-8 sequence.
func clampSource(source string) string {
	if len(source) <= MaxSourceLength {
		return source
	}
	return strings.ToValidUTF8(source[:MaxSourceLength], "")
}

func (s *Server) createLink(c *gin.Context) {
	var req createLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	owner := domain.Owner(c.GetHeader(OwnerHeader))
	rec, err := s.svc.CreateLink(c.Request.Context(), req.URL, req.Code, req.ValidityMinutes, owner)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.toResponse(rec))
}

func (s *Server) listLinks(c *gin.Context) {
	owner := domain.Owner(c.Query("owner"))
	links, err := s.svc.ListLinks(c.Request.Context(), owner)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]linkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, s.toResponse(l))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getLink(c *gin.Context) {
	rec, err := s.svc.GetLinkDetail(c.Request.Context(), c.Param("code"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.toResponse(rec))
}

func (s *Server) linkStats(c *gin.Context) {
	st, err := s.svc.LinkStats(c.Request.Context(), c.Param("code"), s.now())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) simulateClick(c *gin.Context) {
	out, err := s.svc.SimulateClick(c.Request.Context(), c.Param("code"), s.now())
	if err != nil {
		s.fail(c, err)
		return
	}

	status := http.StatusOK
	switch out.Kind {
	case resolver.NotFound:
		status = http.StatusNotFound
	case resolver.Expired:
		status = http.StatusGone
	}
	c.JSON(status, outcomeResponse{Outcome: out.Kind.String(), Destination: out.Destination})
}

func (s *Server) deleteLink(c *gin.Context) {
	if err := s.svc.DeleteLink(c.Request.Context(), c.Param("code")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail maps core errors onto HTTP status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidURL), errors.Is(err, domain.ErrInvalidDuration), errors.Is(err, domain.ErrInvalidCode):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrCollision):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrExhausted):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("request_id", c.GetString(requestIDKey)).Error("Unhandled error")
		c.JSON(status, errorResponse{Error: "internal error"})
		return
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}

package server

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gt_housing/config"
	"gt_housing/identity"
	"gt_housing/models"
	"gt_housing/resolver"
)

// Server exposes the review-flow surface over HTTP: resolve input, then
// confirm a suggestion into a listing.
type Server struct {
	resolver *resolver.Resolver
	verifier *identity.Verifier
	cfg      *config.ServerConfig
}

func New(res *resolver.Resolver, verifier *identity.Verifier, cfg *config.ServerConfig) *Server {
	return &Server{
		resolver: res,
		verifier: verifier,
		cfg:      cfg,
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.Default()

	corsCfg := cors.DefaultConfig()
	if s.cfg.AllowedOrigin == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{s.cfg.AllowedOrigin}
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", s.Health)

	api := router.Group("/api")
	api.Use(s.requireSession)
	{
		api.POST("/resolve", s.Resolve)
		api.POST("/apartments", s.CreateApartment)
		api.POST("/apartments/validate", s.ValidateAndCreate)
	}

	return router
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"listings": s.resolver.CachedCount(),
	})
}

// requireSession authenticates the bearer token and stashes the session.
func (s *Server) requireSession(c *gin.Context) {
	if s.verifier == nil {
		c.Next()
		return
	}

	header := c.GetHeader("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	session, err := s.verifier.Verify(token)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, identity.ErrDomainNotAllowed) {
			status = http.StatusForbidden
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Set("session", session)
	c.Next()
}

type resolveRequest struct {
	Input string `json:"input"`
}

func (s *Server) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := s.resolver.Resolve(c.Request.Context(), req.Input)
	if err != nil {
		s.resolverError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"needs_confirmation": res.NeedsConfirmation(),
		"resolution":         res,
	})
}

type createRequest struct {
	Name      string                 `json:"name"`
	Candidate *models.MatchCandidate `json:"candidate"`
}

// CreateApartment materializes a chosen suggestion, or a minimal manual
// record when only a name is given.
func (s *Server) CreateApartment(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	candidate := req.Candidate
	if candidate == nil {
		candidate = resolver.ManualCandidate(req.Name)
	}

	created, err := s.resolver.CreateFromCandidate(c.Request.Context(), candidate)
	if err != nil {
		s.resolverError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"apartment": created})
}

type validateRequest struct {
	Name  string `json:"name"`
	Force bool   `json:"force"`
}

// ValidateAndCreate runs the external validation and duplicate check
// before creating. A flagged duplicate comes back 409 with the existing
// record; the caller may retry with force after user confirmation.
func (s *Server) ValidateAndCreate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.Force {
		created, err := s.resolver.ForceCreate(c.Request.Context(), req.Name)
		if err != nil {
			s.resolverError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"apartment": created})
		return
	}

	created, dup, err := s.resolver.CreateWithValidation(c.Request.Context(), req.Name)
	if err != nil {
		s.resolverError(c, err)
		return
	}
	if dup != nil {
		c.JSON(http.StatusConflict, gin.H{"duplicate": dup})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"apartment": created})
}

func (s *Server) resolverError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, resolver.ErrEmptyInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "input is empty"})
	case errors.Is(err, resolver.ErrDataUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listing data unavailable"})
	case errors.Is(err, resolver.ErrCreateFailed):
		log.Printf("Create failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "create failed"})
	default:
		log.Printf("Unhandled resolver error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

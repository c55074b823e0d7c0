package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/muse-gate/internal/evaluator"
	"github.com/danielpatrickdp/muse-gate/internal/gate"
	"github.com/danielpatrickdp/muse-gate/internal/logging"
	"github.com/danielpatrickdp/muse-gate/internal/stage"
	"github.com/danielpatrickdp/muse-gate/internal/store"
)

// #region collaborators

// Runner runs one gate decision. *gate.Gate satisfies it.
type Runner interface {
	Run(ctx context.Context, req stage.Request) (gate.Result, error)
}

// AuditReader serves the interaction listing. *store.Store satisfies it.
type AuditReader interface {
	ListAudit(ctx context.Context, f store.Filter) ([]logging.AuditRecord, error)
	GetAudit(ctx context.Context, id string) (logging.AuditRecord, error)
}

// #endregion collaborators

// #region server

// Server exposes the gate over HTTP.
type Server struct {
	gate   Runner
	audits AuditReader
	secret []byte
	logger *zap.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithJWTSecret requires an HS256 bearer token on every /api/v1 route.
// The token's subject becomes the learner id. Empty disables the check.
func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.secret = []byte(secret)
		}
	}
}

// WithLogger attaches a logger. The default discards.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server. audits may be nil, in which case the listing
// routes answer 404.
func New(g Runner, audits AuditReader, opts ...Option) *Server {
	s := &Server{gate: g, audits: audits, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.accessLog())

	// Simple closure for header token verification.
	verifyHeaderToken := func(realHandler gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) {
			if s.verify(c) {
				realHandler(c)
			}
		}
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/gate/:stage", verifyHeaderToken(s.runGate))
		if s.audits != nil {
			v1.GET("/interactions", verifyHeaderToken(s.listInteractions))
			v1.GET("/interactions/:id", verifyHeaderToken(s.getInteraction))
		}
	}
	return router
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("[HTTP] request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// #endregion server

// #region auth

const learnerKey = "learner_id"

// verify checks the bearer token and records its subject. It writes the
// 401 itself and returns false when the request must stop.
func (s *Server) verify(c *gin.Context) bool {
	if s.secret == nil {
		return true
	}
	token, ok := strings.CutPrefix(c.Request.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		unauthorized(c, "missing bearer token")
		return false
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		unauthorized(c, "invalid bearer token")
		return false
	}
	if claims.Subject == "" {
		unauthorized(c, "bearer token has no subject")
		return false
	}
	c.Set(learnerKey, claims.Subject)
	return true
}

func unauthorized(c *gin.Context, detail string) {
	c.JSON(http.StatusUnauthorized, errorBody("unauthorized", detail))
}

// learnerFromToken returns the authenticated learner, if any.
func learnerFromToken(c *gin.Context) (string, bool) {
	v, ok := c.Get(learnerKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// #endregion auth

// #region gate

func (s *Server) runGate(c *gin.Context) {
	kind, err := stage.ParseKind(c.Param("stage"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", err.Error()))
		return
	}

	var req stage.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", "malformed body: "+err.Error()))
		return
	}
	req.Stage = kind
	if id, ok := learnerFromToken(c); ok {
		req.LearnerID = id
	}

	res, err := s.gate.Run(c.Request.Context(), req)
	if err != nil {
		status, body := mapError(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, res)
}

// mapError turns a gate error into an HTTP status and typed body.
func mapError(err error) (int, gin.H) {
	if errors.Is(err, gate.ErrInvalidRequest) {
		return http.StatusBadRequest, errorBody("invalid_request", err.Error())
	}
	var ee *evaluator.Error
	if errors.As(err, &ee) {
		status := http.StatusBadGateway
		if ee.Kind == evaluator.KindTimeout {
			status = http.StatusGatewayTimeout
		}
		return status, errorBody(string(ee.Kind), ee.Detail)
	}
	return http.StatusInternalServerError, errorBody("internal", err.Error())
}

func errorBody(kind, detail string) gin.H {
	return gin.H{"error": gin.H{"kind": kind, "detail": detail}}
}

// #endregion gate

// #region interactions

func (s *Server) listInteractions(c *gin.Context) {
	f := store.Filter{
		LearnerID: c.Query("learner_id"),
		Stage:     c.Query("stage"),
		Outcome:   c.Query("outcome"),
	}
	if id, ok := learnerFromToken(c); ok {
		f.LearnerID = id
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorBody("invalid_request", "limit must be a positive integer"))
			return
		}
		f.Limit = n
	}

	records, err := s.audits.ListAudit(c.Request.Context(), f)
	if err != nil {
		s.logger.Error("[HTTP] list interactions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("internal", "could not read interactions"))
		return
	}
	if records == nil {
		records = []logging.AuditRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"interactions": records})
}

func (s *Server) getInteraction(c *gin.Context) {
	rec, err := s.audits.GetAudit(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody("not_found", "no interaction "+c.Param("id")))
		return
	}
	if err != nil {
		s.logger.Error("[HTTP] get interaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("internal", "could not read interaction"))
		return
	}
	if id, ok := learnerFromToken(c); ok && rec.LearnerID != id {
		c.JSON(http.StatusNotFound, errorBody("not_found", "no interaction "+c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, rec)
}

// #endregion interactions

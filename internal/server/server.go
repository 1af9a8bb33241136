// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     server
// Description: HTTP front controller mapping request names to command chains
// License:     MIT
// ============================================================================

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/villain-cms/villain/internal/chain"
	"github.com/villain-cms/villain/internal/user"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/health"
	"github.com/villain-cms/villain/pkg/core/logging"
)

// OutputKey is the context entry returned as the response body unless the
// request names another one.
const OutputKey = "output"

// RequestIDHeader carries the chain context's request id.
const RequestIDHeader = "X-Request-ID"

// Options configures a Server
type Options struct {
	Health       *health.Registry
	Tokens       *user.Tokens
	Logger       *logging.Logger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the front controller: every /r/:request call runs the named
// request of the executor's table.
type Server struct {
	exec   *chain.Executor
	opts   Options
	logger *logging.Logger
	engine *gin.Engine
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// New builds the router.
func New(exec *chain.Executor, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	s := &Server{
		exec:   exec,
		opts:   opts,
		logger: opts.Logger,
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), requestLogger(s.logger))

	s.engine.GET("/health", s.health)

	r := s.engine.Group("/r")
	r.Use(optionalAuth(opts.Tokens))
	r.GET("/:request", s.run)
	r.POST("/:request", s.run)

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP front controller listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info("Shutting down HTTP front controller")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	if s.opts.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": health.StatusHealthy})
		return
	}
	report := s.opts.Health.Check(c.Request.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (s *Server) run(c *gin.Context) {
	request := c.Param("request")

	input, err := newHTTPInput(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	initial := map[string]any{}
	if claims, ok := c.Get(claimsKey); ok {
		initial["auth"] = claims
		initial["username"] = claims.(*user.Claims).Username
	}

	cxt, err := s.exec.RunWith(c.Request.Context(), request, input, initial)
	if cxt != nil {
		c.Header(RequestIDHeader, cxt.RequestID)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	key := OutputKey
	if tbl := s.exec.Table(); tbl != nil {
		key = tbl.OutputKey(request, OutputKey)
	}
	if out, ok := cxt.Lookup(key); ok {
		c.JSON(http.StatusOK, out)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": request, "keys": cxt.Keys()})
}

func (s *Server) fail(c *gin.Context, err error) {
	code := verrors.GetCode(err)
	resp := ErrorResponse{Kind: code.String(), Message: err.Error()}
	var e *verrors.Error
	if verrors.As(err, &e) {
		resp.Details = e.Details()
	}
	c.AbortWithStatusJSON(code.HTTPStatus(), resp)
}

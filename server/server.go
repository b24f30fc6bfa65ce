package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/viant/sqlite-minhash/proof"
	"github.com/viant/sqlite-minhash/service"
	"github.com/viant/sqlite-minhash/signature"
)

// Signatures is the similarity service as seen by the transport.
type Signatures interface {
	Save(ctx context.Context, owner string, sig *signature.Signature) (int64, error)
	Query(ctx context.Context, sig *signature.Signature, opts ...service.QueryOption) (*service.Result, error)
	ScanExact(ctx context.Context, sig *signature.Signature, minSimilarity float64) ([]service.Match, error)
	Ready() bool
	NumPerm() int
	IndexLen() int
	IndexFailures() int64
}

// Proofs is the proof issuer as seen by the transport.
type Proofs interface {
	Issue(ctx context.Context, locator string) (*proof.Proof, error)
	IssueTo(ctx context.Context, locator string, w io.Writer) (*proof.Proof, error)
	Lookup(ctx context.Context, key string) (*proof.Proof, error)
}

// Options configures a Server.
type Options struct {
	// APIKey guards every /v1 route; empty disables authentication.
	APIKey      string
	Logger      *slog.Logger
	// CORSOrigins lists browser origins allowed to call the API; empty
	// disables CORS handling.
	CORSOrigins []string
	// Registry receives the server metrics and backs /metrics. A fresh
	// registry is created when nil.
	Registry    *prometheus.Registry
}

// Server routes HTTP requests to the service and the issuer.
type Server struct {
	sigs    Signatures
	proofs  Proofs
	logger  *slog.Logger
	metrics *Metrics
	engine  *gin.Engine
}

// New builds the router.
func New(sigs Signatures, proofs Proofs, opts Options) (*Server, error) {
	if sigs == nil || proofs == nil {
		return nil, errors.New("server: signatures and proofs are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	s := &Server{
		sigs:    sigs,
		proofs:  proofs,
		logger:  opts.Logger,
		metrics: NewMetrics(opts.Registry, sigs),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if len(opts.CORSOrigins) > 0 {
		corsCfg := corsConfig(opts.CORSOrigins)
		if err := corsCfg.Validate(); err != nil {
			return nil, fmt.Errorf("server: cors: %w", err)
		}
		engine.Use(cors.New(corsCfg))
	}
	engine.Use(RequestID(), RequestLogger(s.logger), s.metrics.middleware())

	engine.GET("/health", s.health)
	engine.GET("/ready", s.ready)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))

	v1 := engine.Group("/v1")
	if opts.APIKey != "" {
		v1.Use(APIKeyAuth(opts.APIKey, s.logger))
	} else {
		s.logger.Warn("API key not configured, /v1 routes are unauthenticated")
	}
	minhash := v1.Group("/minhash", RequireReady(sigs.Ready))
	{
		minhash.POST("", s.saveSignature)
		minhash.POST("/query", s.querySignatures)
		minhash.POST("/scan", s.scanSignatures)
	}
	proofRoutes := v1.Group("/proofs")
	{
		proofRoutes.POST("", s.issueProof)
		proofRoutes.GET("/:key", s.getProof)
	}
	v1.POST("/logs", s.appendLog)

	s.engine = engine
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg HTTPConfig) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("http server listening", "addr", cfg.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

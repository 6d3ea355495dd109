package webapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phillip-england/desglose/internal/breakdown"
	"github.com/phillip-england/desglose/internal/cache"
	"github.com/phillip-england/desglose/internal/envutil"
	"github.com/phillip-england/desglose/internal/job"
	"github.com/phillip-england/desglose/internal/ledger"
	"github.com/phillip-england/desglose/internal/middleware"
	"github.com/phillip-england/desglose/internal/security"
	"go.uber.org/zap"
)

const csrfKeyBytes = 32

type Config struct {
	Addr          string
	DBPath        string
	PolicyPath    string
	AccessHash    string
	CSRFKey       string
	CacheEntries  int
	MaxUploadMB   int
	SecureCookies bool
}

func DefaultConfigFromEnv() Config {
	return Config{
		Addr:          envutil.String("DESGLOSE_ADDR", ":8080"),
		DBPath:        envutil.String("DESGLOSE_DB_PATH", "data/desglose.db"),
		PolicyPath:    envutil.String("DESGLOSE_POLICY", ""),
		AccessHash:    envutil.String("DESGLOSE_ACCESS_HASH", ""),
		CSRFKey:       envutil.String("DESGLOSE_CSRF_KEY", ""),
		CacheEntries:  envutil.Int("DESGLOSE_CACHE_ENTRIES", 32),
		MaxUploadMB:   envutil.Int("DESGLOSE_MAX_UPLOAD_MB", 20),
		SecureCookies: parseBool(envutil.String("DESGLOSE_SECURE_COOKIES", "")),
	}
}

// RunStore is the part of the ledger the web app reads.
type RunStore interface {
	List(ctx context.Context, limit int) ([]ledger.Run, error)
	Get(ctx context.Context, id string) (*ledger.Run, error)
}

type Deps struct {
	Runner         *job.Runner
	Runs           RunStore
	Logger         *zap.Logger
	AccessHash     string
	CSRFKey        []byte
	SecureCookies  bool
	MaxUploadBytes int64
}

// Run serves the upload page and JSON API until ctx is cancelled.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy, err := breakdown.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return err
	}

	csrfKey, err := resolveCSRFKey(cfg.CSRFKey, logger)
	if err != nil {
		return err
	}

	store, err := ledger.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize ledger: %w", err)
	}
	defer func() { _ = store.Close() }()

	handler := NewHandler(Deps{
		Runner: &job.Runner{
			Policy: policy,
			Cache:  cache.New[*job.Output](cfg.CacheEntries),
			Ledger: store,
			Logger: logger,
		},
		Runs:           store,
		Logger:         logger,
		AccessHash:     cfg.AccessHash,
		CSRFKey:        csrfKey,
		SecureCookies:  cfg.SecureCookies,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("url", "http://localhost"+cfg.Addr), zap.String("policy", policy.Fingerprint()))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 20 << 20
	}
	s := &server{
		runner:    deps.Runner,
		runs:      deps.Runs,
		logger:    deps.Logger,
		maxUpload: deps.MaxUploadBytes,
	}

	csp := strings.Join([]string{
		"default-src 'self'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data:",
		"form-action 'self'",
		"frame-ancestors 'none'",
	}, "; ")

	r := chi.NewRouter()
	r.Get("/", s.index)
	r.Post("/process", s.processForm)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Post("/process", s.processAPI)
		r.Post("/audit", s.audit)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{id}", s.getRun)
	})

	return middleware.Chain(r,
		chimw.RequestID,
		chimw.Recoverer,
		middleware.RequestLogger(deps.Logger),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: csp}),
		middleware.AccessKey(deps.AccessHash, "/api/health"),
		middleware.CSRF(deps.CSRFKey, deps.SecureCookies, "/api/"),
	)
}

func resolveCSRFKey(encoded string, logger *zap.Logger) ([]byte, error) {
	if strings.TrimSpace(encoded) == "" {
		logger.Warn("DESGLOSE_CSRF_KEY not set; form tokens reset on restart")
		generated, err := security.NewSecret(csrfKeyBytes)
		if err != nil {
			return nil, err
		}
		encoded = generated
	}
	key, err := security.DecodeSecret(encoded, csrfKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("DESGLOSE_CSRF_KEY: %w", err)
	}
	return key, nil
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

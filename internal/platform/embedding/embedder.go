package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/yungbote/neurobridge-graphload/internal/pkg/errors"
	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
)

// ErrUnavailable means the provider cannot produce embeddings for the rest of
// the run. Callers keep creating chunks and leave embeddings empty.
var ErrUnavailable = fmt.Errorf("embedding provider %w", pkgerrors.ErrUnavailable)

// Embedder turns one text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension is the vector length every call returns, 0 when unknown.
	Dimension() int
	ModelName() string
}

const (
	ProviderNone   = "none"
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Provider  string
	Model     string
	Dimension int

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAITimeout    time.Duration
	OpenAIMaxRetries int

	GeminiAPIKey string

	CacheSize int
	CacheTTL  time.Duration
	RedisAddr string
	RedisTTL  time.Duration
}

// Unavailable is the explicit "no embeddings" provider.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Embed(context.Context, string) ([]float32, error) {
	if u.Reason != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, u.Reason)
	}
	return nil, ErrUnavailable
}

func (Unavailable) Dimension() int    { return 0 }
func (Unavailable) ModelName() string { return ProviderNone }

// IsUnavailable reports whether e never produces embeddings.
func IsUnavailable(e Embedder) bool {
	if e == nil {
		return true
	}
	switch e.(type) {
	case Unavailable, *Unavailable:
		return true
	}
	return false
}

// New builds the configured provider and wraps it with the in-process and
// Redis caches when they are configured. A provider that lacks credentials
// degrades to Unavailable with a warning instead of failing the run.
func New(ctx context.Context, cfg Config, log *logger.Logger) (Embedder, func(), error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "Embedder")
	noop := func() {}

	var base Embedder
	switch p := strings.ToLower(strings.TrimSpace(cfg.Provider)); p {
	case "", ProviderNone:
		return Unavailable{Reason: "disabled"}, noop, nil
	case ProviderHash:
		if cfg.Dimension <= 0 {
			return nil, noop, fmt.Errorf("embedding: hash provider needs a positive dimension")
		}
		base = NewHash(cfg.Dimension)
	case ProviderOpenAI:
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			log.Warn("OPENAI_API_KEY not set; embeddings disabled")
			return Unavailable{Reason: "missing OPENAI_API_KEY"}, noop, nil
		}
		base = NewOpenAI(cfg, log)
	case ProviderGemini:
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			log.Warn("GEMINI_API_KEY not set; embeddings disabled")
			return Unavailable{Reason: "missing GEMINI_API_KEY"}, noop, nil
		}
		g, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		base = g
	default:
		return nil, noop, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}

	closer := noop
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		r, err := WithRedis(ctx, base, cfg.RedisAddr, cfg.RedisTTL, log)
		if err != nil {
			log.Warn("redis embedding cache disabled", "error", err)
		} else {
			base = r
			closer = func() { _ = r.Close() }
		}
	}
	base = WithLRU(base, cfg.CacheSize, cfg.CacheTTL)

	log.Info("embedder ready", "provider", cfg.Provider, "model", base.ModelName(), "dimension", base.Dimension())
	return base, closer, nil
}

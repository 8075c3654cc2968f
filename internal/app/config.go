package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-graphload/internal/ingestion/chunker"
	"github.com/yungbote/neurobridge-graphload/internal/jobs/graphload"
	"github.com/yungbote/neurobridge-graphload/internal/observability"
	"github.com/yungbote/neurobridge-graphload/internal/platform/embedding"
	"github.com/yungbote/neurobridge-graphload/internal/platform/envutil"
	"github.com/yungbote/neurobridge-graphload/internal/platform/gcp"
	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
	"github.com/yungbote/neurobridge-graphload/internal/platform/neo4jdb"
	"github.com/yungbote/neurobridge-graphload/internal/platform/sourcedb"
	pkgerrors "github.com/yungbote/neurobridge-graphload/internal/pkg/errors"
)

type SourceConfig struct {
	Driver                string `yaml:"driver"`
	DSN                   string `yaml:"dsn"`
	MaxOpenConns          int    `yaml:"max_open_conns"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
}

type Neo4jConfig struct {
	URI            string `yaml:"uri"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Database       string `yaml:"database"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxPoolSize    int    `yaml:"max_pool_size"`
}

type ChunkingConfig struct {
	Size                 int `yaml:"size"`
	Overlap              int `yaml:"overlap"`
	Concurrency          int `yaml:"concurrency"`
	MaxBatchEmbedSeconds int `yaml:"max_batch_embed_seconds"`
}

type EmbeddingConfig struct {
	Provider             string `yaml:"provider"`
	Model                string `yaml:"model"`
	OpenAIAPIKey         string `yaml:"openai_api_key"`
	OpenAIBaseURL        string `yaml:"openai_base_url"`
	OpenAITimeoutSeconds int    `yaml:"openai_timeout_seconds"`
	OpenAIMaxRetries     int    `yaml:"openai_max_retries"`
	GeminiAPIKey         string `yaml:"gemini_api_key"`
	CacheSize            int    `yaml:"cache_size"`
	CacheTTLSeconds      int    `yaml:"cache_ttl_seconds"`
	RedisAddr            string `yaml:"redis_addr"`
	RedisTTLSeconds      int    `yaml:"redis_ttl_seconds"`
}

type ReportsConfig struct {
	Metrics      string `yaml:"metrics"`
	Failures     string `yaml:"failures"`
	Textfile     string `yaml:"textfile"`
	StorageMode  string `yaml:"storage_mode"`
	EmulatorHost string `yaml:"emulator_host"`
}

type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Headers     string  `yaml:"headers"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
	Environment string  `yaml:"environment"`
}

// Config is the full process configuration: defaults, then an optional YAML
// file, then environment variables. CLI flags are applied by the caller.
type Config struct {
	LogMode   string          `yaml:"log_mode"`
	RunID     string          `yaml:"run_id"`
	BatchSize int             `yaml:"batch_size"`
	Source    SourceConfig    `yaml:"source"`
	Neo4j     Neo4jConfig     `yaml:"neo4j"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Reports   ReportsConfig   `yaml:"reports"`
	Otel      OtelConfig      `yaml:"otel"`
}

func DefaultConfig() Config {
	return Config{
		LogMode:   "development",
		BatchSize: graphload.DefaultBatchSize,
		Source: SourceConfig{
			Driver:                sourcedb.DriverPostgres,
			MaxOpenConns:          4,
			ConnectTimeoutSeconds: 10,
		},
		Neo4j: Neo4jConfig{
			User:           "neo4j",
			TimeoutSeconds: 10,
			MaxPoolSize:    50,
		},
		Chunking: ChunkingConfig{
			Size:                 1000,
			Overlap:              200,
			Concurrency:          4,
			MaxBatchEmbedSeconds: 600,
		},
		Embedding: EmbeddingConfig{
			Provider:             embedding.ProviderOpenAI,
			Model:                "text-embedding-3-small",
			OpenAIBaseURL:        "https://api.openai.com",
			OpenAITimeoutSeconds: 60,
			OpenAIMaxRetries:     4,
			CacheSize:            10000,
			CacheTTLSeconds:      3600,
			RedisTTLSeconds:      86400,
		},
		Reports: ReportsConfig{
			Metrics:  "metrics.json",
			Failures: "failures.json",
		},
		Otel: OtelConfig{
			SampleRatio: 1,
			Environment: "development",
		},
	}
}

// LoadConfig builds a Config from defaults, the YAML file at path (skipped
// when path is empty) and the environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("app: read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("app: parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)
	c.RunID = envutil.String("RUN_ID", c.RunID)
	c.BatchSize = envutil.Int("BATCH_SIZE", c.BatchSize)

	c.Source.Driver = envutil.String("SOURCE_DRIVER", c.Source.Driver)
	c.Source.DSN = envutil.String("SOURCE_DSN", c.Source.DSN)
	c.Source.MaxOpenConns = envutil.Int("SOURCE_MAX_OPEN_CONNS", c.Source.MaxOpenConns)
	c.Source.ConnectTimeoutSeconds = envutil.Int("SOURCE_CONNECT_TIMEOUT_SECONDS", c.Source.ConnectTimeoutSeconds)

	c.Neo4j.URI = envutil.String("NEO4J_URI", c.Neo4j.URI)
	c.Neo4j.User = envutil.String("NEO4J_USER", c.Neo4j.User)
	c.Neo4j.Password = envutil.String("NEO4J_PASSWORD", c.Neo4j.Password)
	c.Neo4j.Database = envutil.String("NEO4J_DATABASE", c.Neo4j.Database)
	c.Neo4j.TimeoutSeconds = envutil.Int("NEO4J_TIMEOUT_SECONDS", c.Neo4j.TimeoutSeconds)
	c.Neo4j.MaxPoolSize = envutil.Int("NEO4J_MAX_POOL_SIZE", c.Neo4j.MaxPoolSize)

	c.Chunking.Size = envutil.Int("CHUNK_SIZE", c.Chunking.Size)
	c.Chunking.Overlap = envutil.Int("CHUNK_OVERLAP", c.Chunking.Overlap)
	c.Chunking.Concurrency = envutil.Int("EMBEDDING_CONCURRENCY", c.Chunking.Concurrency)
	c.Chunking.MaxBatchEmbedSeconds = envutil.Int("MAX_BATCH_EMBED_SECONDS", c.Chunking.MaxBatchEmbedSeconds)

	c.Embedding.Provider = envutil.String("EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = envutil.String("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.OpenAIAPIKey = envutil.String("OPENAI_API_KEY", c.Embedding.OpenAIAPIKey)
	c.Embedding.OpenAIBaseURL = envutil.String("OPENAI_BASE_URL", c.Embedding.OpenAIBaseURL)
	c.Embedding.OpenAITimeoutSeconds = envutil.Int("OPENAI_TIMEOUT_SECONDS", c.Embedding.OpenAITimeoutSeconds)
	c.Embedding.OpenAIMaxRetries = envutil.Int("OPENAI_MAX_RETRIES", c.Embedding.OpenAIMaxRetries)
	c.Embedding.GeminiAPIKey = envutil.String("GEMINI_API_KEY", c.Embedding.GeminiAPIKey)
	c.Embedding.CacheSize = envutil.Int("EMBED_CACHE_SIZE", c.Embedding.CacheSize)
	c.Embedding.CacheTTLSeconds = envutil.Int("EMBED_CACHE_TTL_SECONDS", c.Embedding.CacheTTLSeconds)
	c.Embedding.RedisAddr = envutil.String("REDIS_ADDR", c.Embedding.RedisAddr)
	c.Embedding.RedisTTLSeconds = envutil.Int("REDIS_TTL_SECONDS", c.Embedding.RedisTTLSeconds)

	c.Reports.Textfile = envutil.String("METRICS_TEXTFILE", c.Reports.Textfile)
	c.Reports.StorageMode = envutil.String("OBJECT_STORAGE_MODE", c.Reports.StorageMode)
	c.Reports.EmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", c.Reports.EmulatorHost)

	c.Otel.Enabled = envutil.Bool("OTEL_ENABLED", c.Otel.Enabled)
	c.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", c.Otel.Endpoint)
	c.Otel.Headers = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", c.Otel.Headers)
	c.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", c.Otel.Insecure)
	c.Otel.Environment = envutil.String("APP_ENV", c.Otel.Environment)
	if raw := envutil.String("OTEL_SAMPLER_RATIO", ""); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			c.Otel.SampleRatio = f
		}
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if err := c.chunkerConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Source.DSN) == "" {
		errs = append(errs, errors.New("source dsn is required (SOURCE_DSN)"))
	}
	if strings.TrimSpace(c.Neo4j.URI) == "" {
		errs = append(errs, errors.New("neo4j uri is required (NEO4J_URI)"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Embedding.Provider)) {
	case embedding.ProviderNone, embedding.ProviderHash, embedding.ProviderOpenAI, embedding.ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
	}
	if _, err := gcp.ResolveStorageConfig(c.Reports.StorageMode, c.Reports.EmulatorHost); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("app: %w: %w", pkgerrors.ErrInvalidArgument, errors.Join(errs...))
}

func (c Config) chunkerConfig() chunker.Config {
	return chunker.Config{
		Size:                  c.Chunking.Size,
		Overlap:               c.Chunking.Overlap,
		Concurrency:           c.Chunking.Concurrency,
		MaxBatchEmbedDuration: seconds(c.Chunking.MaxBatchEmbedSeconds),
	}
}

// GraphLoad validates c and maps it onto the job's connection config.
func (c Config) GraphLoad(log *logger.Logger) (graphload.Config, error) {
	if err := c.Validate(); err != nil {
		return graphload.Config{}, err
	}
	storage, err := gcp.ResolveStorageConfig(c.Reports.StorageMode, c.Reports.EmulatorHost)
	if err != nil {
		return graphload.Config{}, err
	}
	return graphload.Config{
		RunID:        c.RunID,
		BatchSize:    c.BatchSize,
		FailuresPath: c.Reports.Failures,
		TextfilePath: c.Reports.Textfile,
		Source: sourcedb.Config{
			Driver:         c.Source.Driver,
			DSN:            c.Source.DSN,
			ConnectTimeout: seconds(c.Source.ConnectTimeoutSeconds),
			MaxOpenConns:   c.Source.MaxOpenConns,
		},
		Neo4j: neo4jdb.Config{
			URI:         c.Neo4j.URI,
			User:        c.Neo4j.User,
			Password:    c.Neo4j.Password,
			Database:    c.Neo4j.Database,
			Timeout:     seconds(c.Neo4j.TimeoutSeconds),
			MaxPoolSize: c.Neo4j.MaxPoolSize,
		},
		Embedding: embedding.Config{
			Provider:         strings.ToLower(strings.TrimSpace(c.Embedding.Provider)),
			Model:            c.Embedding.Model,
			OpenAIAPIKey:     c.Embedding.OpenAIAPIKey,
			OpenAIBaseURL:    c.Embedding.OpenAIBaseURL,
			OpenAITimeout:    seconds(c.Embedding.OpenAITimeoutSeconds),
			OpenAIMaxRetries: c.Embedding.OpenAIMaxRetries,
			GeminiAPIKey:     c.Embedding.GeminiAPIKey,
			CacheSize:        c.Embedding.CacheSize,
			CacheTTL:         seconds(c.Embedding.CacheTTLSeconds),
			RedisAddr:        c.Embedding.RedisAddr,
			RedisTTL:         seconds(c.Embedding.RedisTTLSeconds),
		},
		Chunking: c.chunkerConfig(),
		Storage:  storage,
		Otel: observability.OtelConfig{
			Enabled:     c.Otel.Enabled,
			ServiceName: "graphload",
			Environment: c.Otel.Environment,
			Endpoint:    c.Otel.Endpoint,
			Headers:     observability.ParseHeaders(c.Otel.Headers),
			Insecure:    c.Otel.Insecure,
			SampleRatio: c.Otel.SampleRatio,
		},
		Log: log,
	}, nil
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

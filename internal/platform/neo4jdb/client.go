package neo4jdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	pkgerrors "github.com/yungbote/neurobridge-graphload/internal/pkg/errors"
	"github.com/yungbote/neurobridge-graphload/internal/platform/envutil"
	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
)

type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	Timeout     time.Duration
	MaxPoolSize int
}

// ConfigFromEnv reads NEO4J_* variables. An empty URI means no graph store.
func ConfigFromEnv() Config {
	return Config{
		URI:         envutil.String("NEO4J_URI", ""),
		User:        envutil.String("NEO4J_USER", "neo4j"),
		Password:    envutil.String("NEO4J_PASSWORD", ""),
		Database:    envutil.String("NEO4J_DATABASE", ""),
		Timeout:     envutil.Seconds("NEO4J_TIMEOUT_SECONDS", 10*time.Second),
		MaxPoolSize: envutil.Int("NEO4J_MAX_POOL_SIZE", 50),
	}
}

type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

// New opens the driver and verifies connectivity once. Failures are
// ConnectionErrors.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jdb: logger required")
	}
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, &pkgerrors.ConnectionError{Target: "neo4j", Err: fmt.Errorf("NEO4J_URI not set")}
	}
	user := strings.TrimSpace(cfg.User)
	if user == "" {
		user = "neo4j"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxPool := cfg.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}

	auth := neo4j.BasicAuth(user, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(uri, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = maxPool
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, &pkgerrors.ConnectionError{Target: "neo4j", Err: fmt.Errorf("init driver: %w", err)}
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(vctx)
		return nil, &pkgerrors.ConnectionError{Target: "neo4j", Err: fmt.Errorf("verify connectivity: %w", err)}
	}

	c := &Client{
		Driver:   driver,
		Database: strings.TrimSpace(cfg.Database),
		log:      log.With("client", "Neo4jDB"),
	}
	c.log.Info("neo4j connected", "uri", uri, "database", c.Database)
	return c, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}

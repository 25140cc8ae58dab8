package app

import (
	"net/url"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:5000"

// Config holds the complete application configuration, loadable from
// environment variables (SIMILAR_ prefix), flags, or YAML config files.
type Config struct {
	Addr       string `default:"0.0.0.0:5000" env:"ADDR" usage:"API server listen address"`
	Upstream   UpstreamConfig
	Aggregator AggregatorConfig
	Graceful   GracefulConfig
}

// UpstreamConfig locates the upstream product service.
type UpstreamConfig struct {
	BaseURL string        `default:"http://localhost:3001" env:"BASE_URL" flag:"base-url" usage:"Base URL of the upstream product service"`
	Timeout time.Duration `default:"5s" env:"TIMEOUT" usage:"Timeout of a single upstream call (0 disables it)"`
}

// AggregatorConfig tunes how similar product details are collected.
type AggregatorConfig struct {
	Concurrency int  `default:"4" env:"CONCURRENCY" usage:"Max parallel detail lookups per request"`
	SkipMissing bool `default:"false" env:"SKIP_MISSING" flag:"skip-missing" usage:"Drop similar products the upstream reports as not found instead of failing"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  env:"READINESS_DELAY" flag:"readiness-delay" usage:"Delay after readiness=false before shutdown"`
	ShutdownTimeout time.Duration `default:"15s" env:"SHUTDOWN_TIMEOUT" flag:"shutdown-timeout" usage:"Maximum shutdown duration"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files and the given command line arguments, then validates it.
func LoadConfig(args []string) (*Config, error) {
	if args == nil {
		args = []string{}
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SIMILAR",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/similar/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}

// applyPlatformDefaults honours the PORT variable set by most hosting
// platforms when the listen address was left at its default.
func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil {
		return errors.Wrap(err, "upstream base url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("upstream base url %q must be an absolute http(s) URL", c.Upstream.BaseURL)
	}
	if c.Upstream.Timeout < 0 {
		return errors.New("upstream timeout must not be negative")
	}
	if c.Aggregator.Concurrency < 1 {
		return errors.Errorf("aggregator concurrency must be at least 1, got %d", c.Aggregator.Concurrency)
	}
	return nil
}

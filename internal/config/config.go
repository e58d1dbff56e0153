package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPollInterval = time.Second
	defaultPollTimeout  = 2 * time.Minute
	defaultListenAddr   = ":8080"

	// LambdaPollTimeout stays under API Gateway's 29 s integration limit so
	// the relay can still report RUN_TIMEOUT and cancel the run.
	LambdaPollTimeout = 25 * time.Second

	tokenParam     = "/open-ai-token"
	assistantParam = "/assistant-id"
)

// ParamsGetter resolves several parameter store entries in one call.
type ParamsGetter interface {
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

// Config is the relay configuration, resolved once at startup.
type Config struct {
	// APIKey is set when the key comes from the environment.
	APIKey string
	// TokenParam names the SSM parameter holding {"token":...} when the key
	// comes from the parameter store.
	TokenParam   string
	AssistantID  string
	BaseURL      string
	PollInterval time.Duration
	PollTimeout  time.Duration
	ListenAddr   string
}

// Option adjusts Load's defaults for a particular binary.
type Option func(*loadOptions)

type loadOptions struct {
	pollTimeout time.Duration
}

// WithDefaultPollTimeout replaces the poll timeout used when
// POLL_TIMEOUT_SECONDS is unset or invalid.
func WithDefaultPollTimeout(d time.Duration) Option {
	return func(o *loadOptions) {
		if d >= 0 {
			o.pollTimeout = d
		}
	}
}

// Load reads the configuration through getenv. When PARAM_PREFIX is set, the
// assistant id is read from the parameter store and the API key is left to
// the OpenAI token source; params may be nil otherwise.
func Load(ctx context.Context, getenv func(string) string, params ParamsGetter, opts ...Option) (Config, error) {
	o := loadOptions{pollTimeout: defaultPollTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := Config{
		APIKey:       strings.TrimSpace(getenv("OPENAI_API_KEY")),
		AssistantID:  strings.TrimSpace(getenv("OPENAI_ASSISTANT_ID")),
		BaseURL:      strings.TrimSpace(getenv("OPENAI_BASE_URL")),
		PollInterval: envDuration(getenv, "POLL_INTERVAL_MS", time.Millisecond, defaultPollInterval),
		PollTimeout:  envDuration(getenv, "POLL_TIMEOUT_SECONDS", time.Second, o.pollTimeout),
		ListenAddr:   strings.TrimSpace(getenv("LISTEN_ADDR")),
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}

	prefix := strings.TrimRight(strings.TrimSpace(getenv("PARAM_PREFIX")), "/")
	if prefix != "" {
		if params == nil {
			return Config{}, errors.New("config: PARAM_PREFIX set but no parameter store client")
		}
		if cfg.APIKey == "" {
			cfg.TokenParam = prefix + tokenParam
		}
		if cfg.AssistantID == "" {
			name := prefix + assistantParam
			vals, err := params.GetParameters(ctx, name)
			if err != nil {
				return Config{}, fmt.Errorf("config: load assistant id: %w", err)
			}
			cfg.AssistantID = strings.TrimSpace(vals[name])
		}
	}

	if cfg.APIKey == "" && cfg.TokenParam == "" {
		return Config{}, errors.New("config: OPENAI_API_KEY or PARAM_PREFIX is required")
	}
	if cfg.AssistantID == "" {
		return Config{}, errors.New("config: OPENAI_ASSISTANT_ID is required")
	}
	return cfg, nil
}

// envDuration parses an integer count of unit. Invalid or negative values
// fall back to def; zero is kept.
func envDuration(getenv func(string) string, key string, unit, def time.Duration) time.Duration {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * unit
}

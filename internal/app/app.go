// Package app wires configuration, the provider client, the relay use case
// and the HTTP handler together for the binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"

	"assistant-relay/handler"
	"assistant-relay/internal/config"
	"assistant-relay/internal/integrations/openai"
	"assistant-relay/internal/integrations/paramstore"
	"assistant-relay/internal/metrics"
	"assistant-relay/internal/usecase"
)

type App struct {
	Config  config.Config
	Handler *handler.Handler
}

// Deps are the process-level collaborators. Params is created from the
// default AWS config when nil and PARAM_PREFIX is set.
type Deps struct {
	Getenv   func(string) string
	Logger   *slog.Logger
	Registry prometheus.Registerer
	Params   *paramstore.Client

	// ConfigOptions adjust configuration defaults for the binary.
	ConfigOptions []config.Option
}

func Build(ctx context.Context, d Deps) (*App, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	params := d.Params
	if params == nil && strings.TrimSpace(d.Getenv("PARAM_PREFIX")) != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load AWS config: %w", err)
		}
		params, err = paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("app: create SSM client: %w", err)
		}
	}

	var paramsGetter config.ParamsGetter
	if params != nil {
		paramsGetter = params
	}
	cfg, err := config.Load(ctx, d.Getenv, paramsGetter, d.ConfigOptions...)
	if err != nil {
		return nil, err
	}

	var tokens openai.TokenSource = openai.StaticToken(cfg.APIKey)
	if cfg.TokenParam != "" {
		tokens = openai.ParamToken{Getter: params, Name: cfg.TokenParam}
	}
	var opts []openai.Option
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	provider, err := openai.NewClient(tokens, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: create OpenAI client: %w", err)
	}

	var relayOpts []usecase.Option
	if d.Registry != nil {
		rec, err := metrics.New(d.Registry)
		if err != nil {
			return nil, fmt.Errorf("app: register metrics: %w", err)
		}
		relayOpts = append(relayOpts, usecase.WithRecorder(rec))
	}
	relay, err := usecase.NewRelayService(provider, usecase.Config{
		AssistantID:  cfg.AssistantID,
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
	}, relayOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: create relay service: %w", err)
	}

	h, err := handler.NewHandler(relay, logger)
	if err != nil {
		return nil, fmt.Errorf("app: create handler: %w", err)
	}

	logger.Info("relay configured",
		"assistant_id", cfg.AssistantID,
		"key_source", keySource(cfg),
		"poll_interval", cfg.PollInterval,
		"poll_timeout", cfg.PollTimeout,
	)
	return &App{Config: cfg, Handler: h}, nil
}

func keySource(cfg config.Config) string {
	if cfg.TokenParam != "" {
		return "ssm:" + cfg.TokenParam
	}
	return "env"
}

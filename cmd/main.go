package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"assistant-relay/internal/app"
	"assistant-relay/internal/config"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Configuration is read here only and handed down explicitly.
	a, err := app.Build(ctx, app.Deps{
		Getenv: os.Getenv,
		Logger: logger,

		// API Gateway ends the integration at 29 s.
		ConfigOptions: []config.Option{config.WithDefaultPollTimeout(config.LambdaPollTimeout)},
	})
	if err != nil {
		slog.Error("failed to build relay", "err", err)
		os.Exit(1)
	}

	lambda.Start(a.Handler.Handle)
}

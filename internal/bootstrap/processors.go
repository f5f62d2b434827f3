package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/adapters/gemini"
	"github.com/target/mmk-jobqueue/internal/processor"
)

// BuildProcessors creates the registry with every built-in processor. The description
// processors use Gemini when configured and the deterministic echo generator otherwise.
func BuildProcessors(ctx context.Context, cfg config.GenerationConfig, logger *slog.Logger) (*processor.Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gen, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := processor.NewRegistry(processor.Options{Logger: logger})
	if err := processor.RegisterBuiltins(registry, processor.BuiltinOptions{
		Generator:        gen,
		BatchConcurrency: cfg.BatchConcurrency,
	}); err != nil {
		return nil, fmt.Errorf("register processors: %w", err)
	}
	logger.InfoContext(ctx, "processors registered",
		"types", registry.Types(),
		"generation_provider", cfg.Provider,
	)
	return registry, nil
}

//nolint:ireturn // the provider is chosen at runtime.
func newGenerator(ctx context.Context, cfg config.GenerationConfig, logger *slog.Logger) (processor.Generator, error) {
	if cfg.Provider != config.GenerationProviderGemini {
		return processor.EchoGenerator{}, nil
	}
	gen, err := gemini.New(ctx, gemini.Config{
		APIKey:      cfg.Gemini.APIKey,
		Model:       cfg.Gemini.Model,
		Temperature: cfg.Gemini.Temperature,
		MaxRetries:  cfg.Gemini.MaxRetries,
		RetryDelay:  cfg.Gemini.RetryDelay,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini generator: %w", err)
	}
	return gen, nil
}

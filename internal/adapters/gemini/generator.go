// Package gemini implements processor.Generator on top of the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"google.golang.org/genai"
)

var (
	// ErrInvalidConfig is returned when the generator configuration is invalid.
	ErrInvalidConfig = errors.New("invalid gemini configuration")
	// ErrInvalidResponse is returned when the model response has no usable text.
	ErrInvalidResponse = errors.New("invalid response from language model")
	// ErrContentBlocked is returned when safety filters block the response.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")
	// ErrTransientFailure is returned once retries are exhausted.
	ErrTransientFailure = errors.New("transient error during generation")
)

// contentGenerator is the subset of *genai.Models the generator uses.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Config configures a Generator.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxRetries  int
	RetryDelay  time.Duration
	Logger      *slog.Logger
}

// Generator calls Gemini with exponential backoff on transient errors.
type Generator struct {
	models      contentGenerator
	model       string
	temperature float32
	maxRetries  int
	retryDelay  time.Duration
	logger      *slog.Logger
}

// New creates a Generator backed by a genai client.
func New(ctx context.Context, cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key cannot be empty", ErrInvalidConfig)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create gemini client: %w", ErrInvalidConfig, err)
	}
	return newGenerator(client.Models, cfg)
}

func newGenerator(models contentGenerator, cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	return &Generator{
		models:      models,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxRetries:  retries,
		retryDelay:  delay,
		logger:      logger.With("component", "gemini_generator", "model", cfg.Model),
	}, nil
}

// Generate implements processor.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: empty prompt", ErrInvalidConfig)
	}

	var genCfg *genai.GenerateContentConfig
	if g.temperature > 0 {
		genCfg = &genai.GenerateContentConfig{Temperature: genai.Ptr(g.temperature)}
	}

	for attempt := 0; ; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), genCfg)
		if err == nil {
			text, perr := responseText(resp)
			if perr != nil {
				// Malformed or blocked responses are permanent.
				return "", perr
			}
			g.logger.DebugContext(ctx, "gemini call succeeded", "attempt", attempt+1, "chars", len(text))
			return text, nil
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt >= g.maxRetries {
			g.logger.WarnContext(ctx, "gemini retries exhausted", "attempts", attempt+1, "error", err)
			return "", fmt.Errorf("%w: %w", ErrTransientFailure, err)
		}

		delay := g.backoff(attempt)
		g.logger.InfoContext(ctx, "retrying gemini call", "attempt", attempt+1, "delay", delay, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// backoff is retryDelay * 2^attempt scaled by a jitter factor in [0.5, 1.0).
func (g *Generator) backoff(attempt int) time.Duration {
	base := float64(g.retryDelay) * math.Pow(2, float64(attempt))
	return time.Duration(base * (0.5 + rand.Float64()*0.5))
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}
	if cand.Content == nil {
		return "", fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: no text parts", ErrInvalidResponse)
	}
	return sb.String(), nil
}

package config

import (
	"strings"
	"time"
)

// GenerationProvider selects the text generator behind the description processors.
type GenerationProvider string

const (
	// GenerationProviderEcho uses the deterministic in-process generator.
	GenerationProviderEcho GenerationProvider = "echo"
	// GenerationProviderGemini calls the Gemini API.
	GenerationProviderGemini GenerationProvider = "gemini"
)

// GenerationConfig configures text generation for product description jobs.
type GenerationConfig struct {
	Provider         GenerationProvider `env:"GENERATION_PROVIDER"          envDefault:"echo"`
	BatchConcurrency int                `env:"GENERATION_BATCH_CONCURRENCY" envDefault:"4"`
	Gemini           GeminiConfig
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	APIKey      string        `env:"GEMINI_API_KEY"`
	Model       string        `env:"GEMINI_MODEL"       envDefault:"gemini-2.5-flash"`
	Temperature float32       `env:"GEMINI_TEMPERATURE" envDefault:"0.4"`
	MaxRetries  int           `env:"GEMINI_MAX_RETRIES" envDefault:"3"`
	RetryDelay  time.Duration `env:"GEMINI_RETRY_DELAY" envDefault:"1s"`
}

// Sanitize normalises generation settings. A gemini provider without an API key
// falls back to echo.
func (c *GenerationConfig) Sanitize() {
	c.Provider = GenerationProvider(strings.ToLower(strings.TrimSpace(string(c.Provider))))
	if c.Provider != GenerationProviderGemini {
		c.Provider = GenerationProviderEcho
	}
	if c.BatchConcurrency < 1 {
		c.BatchConcurrency = 1
	}
	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	c.Gemini.Model = strings.TrimSpace(c.Gemini.Model)
	if c.Gemini.MaxRetries < 0 {
		c.Gemini.MaxRetries = 0
	}
	if c.Provider == GenerationProviderGemini && c.Gemini.APIKey == "" {
		c.Provider = GenerationProviderEcho
	}
}

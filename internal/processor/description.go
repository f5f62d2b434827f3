package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-jobqueue/internal/domain/job"
)

// ErrEmptyGeneration is returned when a generator produces no text.
var ErrEmptyGeneration = errors.New("generator returned empty text")

// Generator turns a prompt into text. Implementations must honour ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EchoGenerator returns the prompt as the generated text. It is deterministic and needs no
// credentials, so it backs GENERATION_PROVIDER=echo and tests.
type EchoGenerator struct{}

// Generate implements Generator.
func (EchoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return prompt, nil
}

const descriptionPrompt = `Write a {{.Tone}} product description for "{{.ProductName}}".
{{- if .Features}}
Highlight these features:
{{- range .Features}}
- {{.}}
{{- end}}
{{- end}}
{{- if gt .MaxWords 0}}
Use at most {{.MaxWords}} words.
{{- end}}
Respond with the description text only.`

var descriptionTemplate = template.Must(template.New("product_description").Parse(descriptionPrompt))

// DescriptionResult is the result of a product_description job.
type DescriptionResult struct {
	ProductName string `json:"product_name"`
	Description string `json:"description"`
	Words       int    `json:"words"`
}

// BatchDescriptionsResult is the result of a batch_descriptions job. Items keep request order.
type BatchDescriptionsResult struct {
	Items []DescriptionResult `json:"items"`
}

// Descriptions generates product copy through a Generator.
type Descriptions struct {
	gen         Generator
	concurrency int
}

// NewDescriptions creates the description processors. concurrency bounds the fan-out of a
// single batch job; values below 1 mean 1.
func NewDescriptions(gen Generator, concurrency int) *Descriptions {
	if gen == nil {
		gen = EchoGenerator{}
	}
	return &Descriptions{gen: gen, concurrency: max(concurrency, 1)}
}

// Prompt renders the generation prompt for p.
func (d *Descriptions) Prompt(p job.ProductDescriptionPayload) (string, error) {
	data := struct {
		job.ProductDescriptionPayload
		Tone string
	}{ProductDescriptionPayload: p, Tone: p.ToneOrDefault()}

	var buf bytes.Buffer
	if err := descriptionTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// Describe handles product_description jobs.
func (d *Descriptions) Describe(
	ctx context.Context,
	p job.ProductDescriptionPayload,
	_ string,
) (DescriptionResult, error) {
	prompt, err := d.Prompt(p)
	if err != nil {
		return DescriptionResult{}, err
	}
	text, err := d.gen.Generate(ctx, prompt)
	if err != nil {
		return DescriptionResult{}, fmt.Errorf("generate description for %q: %w", p.ProductName, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return DescriptionResult{}, fmt.Errorf("generate description for %q: %w", p.ProductName, ErrEmptyGeneration)
	}
	text, words := limitWords(text, p.MaxWords)
	return DescriptionResult{ProductName: p.ProductName, Description: text, Words: words}, nil
}

// DescribeBatch handles batch_descriptions jobs. Any item failure fails the batch.
func (d *Descriptions) DescribeBatch(
	ctx context.Context,
	p job.BatchDescriptionsPayload,
	ownerID string,
) (BatchDescriptionsResult, error) {
	results := make([]DescriptionResult, len(p.Items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, item := range p.Items {
		g.Go(func() error {
			res, err := d.Describe(gctx, item, ownerID)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchDescriptionsResult{}, err
	}
	return BatchDescriptionsResult{Items: results}, nil
}

// limitWords truncates text to at most limit words. A limit of 0 keeps the text as is.
func limitWords(text string, limit int) (string, int) {
	words := strings.Fields(text)
	if limit <= 0 || len(words) <= limit {
		return text, len(words)
	}
	return strings.Join(words[:limit], " "), limit
}

package processor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobqueue/internal/domain/job"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

func TestDescriptions_Prompt(t *testing.T) {
	d := NewDescriptions(nil, 1)

	prompt, err := d.Prompt(job.ProductDescriptionPayload{
		ProductName: "Trail Mug",
		Features:    []string{"insulated", "dishwasher safe"},
		MaxWords:    50,
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, `Write a neutral product description for "Trail Mug".`)
	assert.Contains(t, prompt, "- insulated\n- dishwasher safe")
	assert.Contains(t, prompt, "Use at most 50 words.")

	prompt, err = d.Prompt(job.ProductDescriptionPayload{ProductName: "Lamp", Tone: job.ToneFormal})
	require.NoError(t, err)
	assert.Contains(t, prompt, "formal product description")
	assert.NotContains(t, prompt, "Highlight")
	assert.NotContains(t, prompt, "Use at most")
}

func TestDescriptions_DescribeLimitsWords(t *testing.T) {
	gen := generatorFunc(func(context.Context, string) (string, error) {
		return "  one two three four five six  ", nil
	})
	d := NewDescriptions(gen, 1)

	res, err := d.Describe(context.Background(), job.ProductDescriptionPayload{ProductName: "X", MaxWords: 4}, "u")
	require.NoError(t, err)
	assert.Equal(t, "one two three four", res.Description)
	assert.Equal(t, 4, res.Words)
	assert.Equal(t, "X", res.ProductName)
}

func TestDescriptions_DescribeErrors(t *testing.T) {
	t.Run("generator error", func(t *testing.T) {
		boom := errors.New("quota exceeded")
		d := NewDescriptions(generatorFunc(func(context.Context, string) (string, error) { return "", boom }), 1)
		_, err := d.Describe(context.Background(), job.ProductDescriptionPayload{ProductName: "X"}, "u")
		require.ErrorIs(t, err, boom)
	})

	t.Run("empty text", func(t *testing.T) {
		d := NewDescriptions(generatorFunc(func(context.Context, string) (string, error) { return " \n", nil }), 1)
		_, err := d.Describe(context.Background(), job.ProductDescriptionPayload{ProductName: "X"}, "u")
		require.ErrorIs(t, err, ErrEmptyGeneration)
	})
}

func TestDescriptions_DescribeBatchKeepsOrderAndBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	gen := generatorFunc(func(_ context.Context, prompt string) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		name := strings.SplitN(prompt, `"`, 3)[1]
		return "copy for " + name, nil
	})
	d := NewDescriptions(gen, 2)

	items := make([]job.ProductDescriptionPayload, 6)
	for i := range items {
		items[i] = job.ProductDescriptionPayload{ProductName: string(rune('a' + i))}
	}
	res, err := d.DescribeBatch(context.Background(), job.BatchDescriptionsPayload{Items: items}, "u")
	require.NoError(t, err)
	require.Len(t, res.Items, 6)
	for i, item := range res.Items {
		assert.Equal(t, items[i].ProductName, item.ProductName)
		assert.Equal(t, "copy for "+items[i].ProductName, item.Description)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDescriptions_DescribeBatchFailsOnItemError(t *testing.T) {
	gen := generatorFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, `"bad"`) {
			return "", errors.New("blocked")
		}
		return "fine", nil
	})
	d := NewDescriptions(gen, 1)

	_, err := d.DescribeBatch(context.Background(), job.BatchDescriptionsPayload{Items: []job.ProductDescriptionPayload{
		{ProductName: "good"}, {ProductName: "bad"},
	}}, "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 1")
	assert.Contains(t, err.Error(), "blocked")
}

func TestRegistry_ProductDescriptionWithEchoGenerator(t *testing.T) {
	r := newTestRegistry(t)

	out, err := r.Dispatch(context.Background(), model.JobTypeProductDescription, "u",
		json.RawMessage(`{"owner_id":"u","product_name":"Kettle","tone":"playful"}`))
	require.NoError(t, err)

	var res DescriptionResult
	require.NoError(t, json.Unmarshal(out, &res))
	assert.Equal(t, "Kettle", res.ProductName)
	assert.Contains(t, res.Description, "playful product description")
}

func TestEchoGenerator_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := EchoGenerator{}.Generate(ctx, "prompt")
	require.ErrorIs(t, err, context.Canceled)
}

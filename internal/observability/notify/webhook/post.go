// Package webhook holds the JSON POST-with-retry loop shared by the Slack and PagerDuty sinks.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Poster sends a JSON body to a fixed URL, retrying with linear backoff.
type Poster struct {
	Name       string
	URL        string
	RetryLimit int
	Client     *http.Client
	// Step is the backoff unit; attempt n waits n*Step. Defaults to 200ms.
	Step time.Duration
}

// Post delivers body, returning the last error when every attempt fails.
func (p *Poster) Post(ctx context.Context, body []byte) error {
	step := p.Step
	if step <= 0 {
		step = 200 * time.Millisecond
	}
	attempts := max(p.RetryLimit, 0) + 1

	var lastErr error
	for attempt := range attempts {
		lastErr = p.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (p *Poster) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", p.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		closeErr := resp.Body.Close()
		if readErr != nil {
			return errors.Join(fmt.Errorf("read %s error response: %w", p.Name, readErr), closeErr)
		}
		return fmt.Errorf("%s %s: %s", p.Name, resp.Status, strings.TrimSpace(string(respBody)))
	}

	_, drainErr := io.Copy(io.Discard, resp.Body)
	closeErr := resp.Body.Close()
	if drainErr != nil {
		return errors.Join(fmt.Errorf("drain %s response body: %w", p.Name, drainErr), closeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close response body: %w", closeErr)
	}
	return nil
}

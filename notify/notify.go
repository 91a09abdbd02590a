// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package notify delivers push notifications to user-configured webhook
// endpoints. Delivery is best-effort with a bounded retry policy; failures
// are reported in the result, never raised to the event that triggered the
// notification.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// The destination rejects content over this length
	MaxContentLength = 2000
	// The destination rejects empty bodies
	emptyContentPlaceholder = "(no content)"
	// The destination caps embed fields per message
	MaxEmbedFields = 25

	defaultTimeout    = 5 * time.Second
	maxRetryAfter     = 5 * time.Second
	maxResponseLength = 4096
)

// Field is one structured metadata entry attached to a notification
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Embed groups metadata fields under a title
type Embed struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields,omitempty"`
}

type webhookBody struct {
	Content string  `json:"content"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

type rateLimitBody struct {
	RetryAfter float64 `json:"retry_after"`
}

// Result reports the outcome of a delivery attempt. It is always populated
// for the caller to log; delivery failure is never an error.
type Result struct {
	Body       string
	StatusCode int
	OK         bool
}

// DispatcherConfig holds the notification dispatcher configuration
type DispatcherConfig struct {
	Logger *slog.Logger
	// HTTPClient overrides the default client, used in tests
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Dispatcher posts notifications to webhook URLs
type Dispatcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if d.httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		d.httpClient = &http.Client{Timeout: timeout}
	}
	return d
}

// Notify delivers a message to a webhook URL. At most two attempts are
// made: a rate-limit response sleeps for the (capped) server-suggested
// delay and retries, a network timeout retries immediately, and anything
// else fails the delivery. The result is always returned for logging.
func (d *Dispatcher) Notify(
	ctx context.Context,
	url string,
	content string,
	embed *Embed,
) Result {
	deliveryID := uuid.NewString()
	body := buildBody(content, embed)
	payload, err := json.Marshal(body)
	if err != nil {
		// Only reachable with content that cannot be represented as JSON
		d.logger.Error(
			"failed to encode notification",
			"component", "notify",
			"delivery_id", deliveryID,
			"error", err,
		)
		return Result{Body: err.Error()}
	}
	for attempt := 1; ; attempt++ {
		result, retryDelay, retryable := d.attempt(ctx, url, payload)
		if result.OK || attempt >= 2 || !retryable {
			d.logger.Debug(
				"notification delivery finished",
				"component", "notify",
				"delivery_id", deliveryID,
				"ok", result.OK,
				"status_code", result.StatusCode,
				"attempts", attempt,
			)
			return result
		}
		if retryDelay > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return result
			}
		}
	}
}

// attempt performs a single POST. It reports whether a second attempt is
// worthwhile and how long to wait before it.
func (d *Dispatcher) attempt(
	ctx context.Context,
	url string,
	payload []byte,
) (result Result, retryDelay time.Duration, retryable bool) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewReader(payload),
	)
	if err != nil {
		return Result{Body: err.Error()}, 0, false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.httpClient.Do(req)
	if err != nil {
		// A timeout is worth one more try; other transport errors are not
		return Result{Body: err.Error()}, 0, isTimeout(err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseLength))
	result = Result{
		Body:       string(respBody),
		StatusCode: resp.StatusCode,
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return result, retryAfter(resp, respBody), true
	}
	return result, 0, false
}

func buildBody(content string, embed *Embed) webhookBody {
	if content == "" {
		content = emptyContentPlaceholder
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		// Truncate on a rune boundary so the payload stays valid UTF-8
		content = string([]rune(content)[:MaxContentLength])
	}
	body := webhookBody{Content: content}
	if embed != nil {
		capped := *embed
		if len(capped.Fields) > MaxEmbedFields {
			capped.Fields = capped.Fields[:MaxEmbedFields]
		}
		body.Embeds = []Embed{capped}
	}
	return body
}

// retryAfter extracts the server-suggested delay from a rate-limit
// response, capped so a hostile or misconfigured endpoint cannot stall
// event processing
func retryAfter(resp *http.Response, body []byte) time.Duration {
	var delay time.Duration
	if hdr := resp.Header.Get("Retry-After"); hdr != "" {
		if secs, err := strconv.ParseFloat(hdr, 64); err == nil {
			delay = time.Duration(secs * float64(time.Second))
		}
	}
	if delay == 0 {
		var rl rateLimitBody
		if err := json.Unmarshal(body, &rl); err == nil {
			delay = time.Duration(rl.RetryAfter * float64(time.Second))
		}
	}
	if delay <= 0 {
		delay = time.Second
	}
	if delay > maxRetryAfter {
		delay = maxRetryAfter
	}
	return delay
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ContentPlaceholder returns the placeholder used for empty content,
// exported for tests and callers that pre-build messages
func ContentPlaceholder() string {
	return emptyContentPlaceholder
}

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

package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/openlatch/doorman/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedBody struct {
	Content string `json:"content"`
	Embeds  []struct {
		Title  string `json:"title"`
		Fields []struct {
			Name   string `json:"name"`
			Value  string `json:"value"`
			Inline bool   `json:"inline"`
		} `json:"fields"`
	} `json:"embeds"`
}

func TestNotifySuccess(t *testing.T) {
	var received receivedBody
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(
				t,
				"application/json",
				r.Header.Get("Content-Type"),
			)
			require.NoError(
				t,
				json.NewDecoder(r.Body).Decode(&received),
			)
			w.WriteHeader(http.StatusNoContent)
		}),
	)
	defer srv.Close()

	d := notify.NewDispatcher(notify.DispatcherConfig{})
	result := d.Notify(
		context.Background(),
		srv.URL,
		"Door opened by alice",
		&notify.Embed{
			Title: "Smart Door",
			Fields: []notify.Field{
				{Name: "User", Value: "alice", Inline: true},
			},
		},
	)
	assert.True(t, result.OK)
	assert.Equal(t, http.StatusNoContent, result.StatusCode)
	assert.Equal(t, "Door opened by alice", received.Content)
	require.Len(t, received.Embeds, 1)
	assert.Equal(t, "Smart Door", received.Embeds[0].Title)
	require.Len(t, received.Embeds[0].Fields, 1)
	assert.Equal(t, "alice", received.Embeds[0].Fields[0].Value)
}

func TestNotifyContentNormalization(t *testing.T) {
	var received receivedBody
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(
				t,
				json.NewDecoder(r.Body).Decode(&received),
			)
			w.WriteHeader(http.StatusOK)
		}),
	)
	defer srv.Close()

	d := notify.NewDispatcher(notify.DispatcherConfig{})

	// Empty content becomes a placeholder
	result := d.Notify(context.Background(), srv.URL, "", nil)
	assert.True(t, result.OK)
	assert.Equal(t, notify.ContentPlaceholder(), received.Content)

	// Oversized content is truncated
	long := strings.Repeat("x", notify.MaxContentLength+500)
	result = d.Notify(context.Background(), srv.URL, long, nil)
	assert.True(t, result.OK)
	assert.Len(t, received.Content, notify.MaxContentLength)

	// Multi-byte content truncates on a character boundary and stays
	// valid UTF-8
	wide := strings.Repeat("é", notify.MaxContentLength+500)
	result = d.Notify(context.Background(), srv.URL, wide, nil)
	assert.True(t, result.OK)
	assert.True(t, utf8.ValidString(received.Content))
	assert.Equal(
		t,
		notify.MaxContentLength,
		utf8.RuneCountInString(received.Content),
	)

	// Excess embed fields are dropped
	fields := make([]notify.Field, notify.MaxEmbedFields+10)
	for i := range fields {
		fields[i] = notify.Field{Name: "n", Value: "v"}
	}
	result = d.Notify(
		context.Background(),
		srv.URL,
		"content",
		&notify.Embed{Title: "t", Fields: fields},
	)
	assert.True(t, result.OK)
	require.Len(t, received.Embeds, 1)
	assert.Len(t, received.Embeds[0].Fields, notify.MaxEmbedFields)
}

func TestNotifyRateLimitRetry(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requests.Add(1) == 1 {
				w.Header().Set("Retry-After", "0.01")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}),
	)
	defer srv.Close()

	d := notify.NewDispatcher(notify.DispatcherConfig{})
	result := d.Notify(context.Background(), srv.URL, "hello", nil)
	assert.True(t, result.OK)
	assert.Equal(t, int32(2), requests.Load())
}

func TestNotifyRateLimitBodyDelay(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requests.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"retry_after":0.01}`))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}),
	)
	defer srv.Close()

	d := notify.NewDispatcher(notify.DispatcherConfig{})
	result := d.Notify(context.Background(), srv.URL, "hello", nil)
	assert.True(t, result.OK)
	assert.Equal(t, int32(2), requests.Load())
}

func TestNotifyRateLimitExhausted(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
		}),
	)
	defer srv.Close()

	d := notify.NewDispatcher(notify.DispatcherConfig{})
	result := d.Notify(context.Background(), srv.URL, "hello", nil)
	assert.False(t, result.OK)
	assert.Equal(t, http.StatusTooManyRequests, result.StatusCode)
	// At most two attempts
	assert.Equal(t, int32(2), requests.Load())
}

func TestNotifyServerErrorNoRetry(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			http.Error(w, "boom", http.StatusInternalServerError)
		}),
	)
	defer srv.Close()

	d := notify.NewDispatcher(notify.DispatcherConfig{})
	result := d.Notify(context.Background(), srv.URL, "hello", nil)
	assert.False(t, result.OK)
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
	assert.Contains(t, result.Body, "boom")
	assert.Equal(t, int32(1), requests.Load())
}

func TestNotifyTimeoutRetriesOnce(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requests.Add(1) == 1 {
				time.Sleep(500 * time.Millisecond)
			}
			w.WriteHeader(http.StatusNoContent)
		}),
	)
	defer srv.Close()

	d := notify.NewDispatcher(notify.DispatcherConfig{
		Timeout: 100 * time.Millisecond,
	})
	result := d.Notify(context.Background(), srv.URL, "hello", nil)
	assert.True(t, result.OK)
	assert.Equal(t, int32(2), requests.Load())
}

func TestNotifyConnectionRefused(t *testing.T) {
	// Grab an address nothing is listening on
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := notify.NewDispatcher(notify.DispatcherConfig{})
	result := d.Notify(context.Background(), url, "hello", nil)
	assert.False(t, result.OK)
	assert.Zero(t, result.StatusCode)
	assert.NotEmpty(t, result.Body)
}

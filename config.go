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

package doorman

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// The AS608 sensor the reference device ships with stores 150 templates
const defaultFingerprintCapacity = 150

type Config struct {
	promRegistry        prometheus.Registerer
	logger              *slog.Logger
	dataDir             string
	brokerURL           string
	mqttClientID        string
	topicPrefix         string
	resendAPIKey        string
	mailFrom            string
	fingerprintCapacity int64
	notifyTimeout       time.Duration
	shutdownTimeout     time.Duration
	tracing             bool
	tracingStdout       bool
}

func (d *Doorman) configValidate() error {
	if d.config.brokerURL == "" {
		return errors.New("no broker URL defined")
	}
	if d.config.topicPrefix == "" {
		return errors.New("no topic prefix defined")
	}
	if d.config.fingerprintCapacity < 0 {
		return errors.New("fingerprint capacity must not be negative")
	}
	if d.config.resendAPIKey != "" && d.config.mailFrom == "" {
		return errors.New("mail sender address required when mail is enabled")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the Doorman config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new doorman config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:              slog.New(slog.NewJSONHandler(io.Discard, nil)),
		fingerprintCapacity: defaultFingerprintCapacity,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDataDir specifies the persistent data directory to use. The default is to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBrokerURL specifies the MQTT broker to connect to, e.g. "tcp://broker:1883"
func WithBrokerURL(brokerURL string) ConfigOptionFunc {
	return func(c *Config) {
		c.brokerURL = brokerURL
	}
}

// WithMqttClientID specifies the MQTT client id. The default is a generated id
func WithMqttClientID(clientID string) ConfigOptionFunc {
	return func(c *Config) {
		c.mqttClientID = clientID
	}
}

// WithTopicPrefix specifies the topic prefix shared with the door device
func WithTopicPrefix(prefix string) ConfigOptionFunc {
	return func(c *Config) {
		c.topicPrefix = prefix
	}
}

// WithFingerprintCapacity specifies the fingerprint registry capacity. This defaults to the AS608 sensor capacity of 150
func WithFingerprintCapacity(capacity int64) ConfigOptionFunc {
	return func(c *Config) {
		c.fingerprintCapacity = capacity
	}
}

// WithResendAPIKey specifies the Resend API key for confirmation email. Email is disabled when empty
func WithResendAPIKey(apiKey string) ConfigOptionFunc {
	return func(c *Config) {
		c.resendAPIKey = apiKey
	}
}

// WithMailFrom specifies the sender address for confirmation email
func WithMailFrom(from string) ConfigOptionFunc {
	return func(c *Config) {
		c.mailFrom = from
	}
}

// WithNotifyTimeout specifies the per-request timeout for webhook deliveries
func WithNotifyTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.notifyTimeout = timeout
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

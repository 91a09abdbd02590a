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

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "doorman.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	BrokerURL           string `yaml:"brokerUrl"           split_words:"true"`
	MqttClientID        string `yaml:"mqttClientId"        envconfig:"DOORMAN_MQTT_CLIENT_ID"`
	TopicPrefix         string `yaml:"topicPrefix"         split_words:"true"`
	DatabasePath        string `yaml:"databasePath"        split_words:"true"`
	BindAddr            string `yaml:"bindAddr"            split_words:"true"`
	ResendAPIKey        string `yaml:"resendApiKey"        envconfig:"DOORMAN_RESEND_API_KEY"`
	MailFrom            string `yaml:"mailFrom"            split_words:"true"`
	NotifyTimeout       string `yaml:"notifyTimeout"       split_words:"true"`
	ShutdownTimeout     string `yaml:"shutdownTimeout"     split_words:"true"`
	FingerprintCapacity int64  `yaml:"fingerprintCapacity" split_words:"true"`
	MetricsPort         uint   `yaml:"metricsPort"         split_words:"true"`
	Tracing             bool   `yaml:"tracing"`
	TracingStdout       bool   `yaml:"tracingStdout"       split_words:"true"`
}

var globalConfig = &Config{
	BrokerURL:           "tcp://localhost:1883",
	TopicPrefix:         "door",
	DatabasePath:        ".doorman",
	BindAddr:            "0.0.0.0",
	MetricsPort:         12798,
	FingerprintCapacity: 150,
	NotifyTimeout:       "5s",
	ShutdownTimeout:     DefaultShutdownTimeout,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.doorman/doorman.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".doorman", "doorman.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/doorman/doorman.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/doorman/doorman.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	err := envconfig.Process("doorman", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}
	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}

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

// Package mqtt manages the single persistent connection to the device
// pub/sub channel. Inbound handlers for a subscription run one at a time in
// delivery order; the paho client preserves ordering per connection.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second

	// Publish and subscribe with QoS 1: the device tolerates duplicate
	// delivery (idempotent ingest), but not silent loss
	qosAtLeastOnce = 1
)

var ErrNotConnected = errors.New("mqtt connection not established")

// MessageHandler processes one inbound message from a subscribed topic
type MessageHandler func(topic string, payload []byte)

// ConnectionConfig holds the device channel configuration
type ConnectionConfig struct {
	Logger         *slog.Logger
	BrokerURL      string
	ClientID       string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// Connection wraps a paho MQTT client with re-subscription on reconnect
type Connection struct {
	config        ConnectionConfig
	client        paho.Client
	logger        *slog.Logger
	subscriptions map[string]MessageHandler
	subMutex      sync.Mutex
}

func NewConnection(cfg ConnectionConfig) *Connection {
	c := &Connection{
		config:        cfg,
		subscriptions: make(map[string]MessageHandler),
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		c.logger = cfg.Logger
	}
	if c.config.ConnectTimeout == 0 {
		c.config.ConnectTimeout = defaultConnectTimeout
	}
	if c.config.PublishTimeout == 0 {
		c.config.PublishTimeout = defaultPublishTimeout
	}
	if c.config.ClientID == "" {
		c.config.ClientID = "doorman-" + uuid.NewString()[:8]
	}
	return c
}

// Connect establishes the broker connection. Subscriptions registered
// before or after Connect are (re-)established on every successful
// connection, including automatic reconnects.
func (c *Connection) Connect() error {
	opts := paho.NewClientOptions().
		AddBroker(c.config.BrokerURL).
		SetClientID(c.config.ClientID).
		SetConnectTimeout(c.config.ConnectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.logger.Warn(
				"mqtt connection lost",
				"component", "mqtt",
				"error", err,
			)
		})
	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return fmt.Errorf(
			"timeout connecting to broker %s",
			c.config.BrokerURL,
		)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf(
			"failed to connect to broker %s: %w",
			c.config.BrokerURL,
			err,
		)
	}
	return nil
}

func (c *Connection) onConnect(client paho.Client) {
	c.logger.Info(
		"connected to mqtt broker",
		"component", "mqtt",
		"broker", c.config.BrokerURL,
		"client_id", c.config.ClientID,
	)
	c.subMutex.Lock()
	defer c.subMutex.Unlock()
	for topicName, handler := range c.subscriptions {
		c.subscribe(client, topicName, handler)
	}
}

func (c *Connection) subscribe(
	client paho.Client,
	topicName string,
	handler MessageHandler,
) {
	token := client.Subscribe(
		topicName,
		qosAtLeastOnce,
		func(_ paho.Client, msg paho.Message) {
			handler(msg.Topic(), msg.Payload())
		},
	)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Error(
				"mqtt subscribe failed",
				"component", "mqtt",
				"topic", topicName,
				"error", err,
			)
		}
	}()
}

// Subscribe registers a handler for a topic. Safe to call before Connect.
func (c *Connection) Subscribe(topicName string, handler MessageHandler) {
	c.subMutex.Lock()
	defer c.subMutex.Unlock()
	c.subscriptions[topicName] = handler
	if c.client != nil && c.client.IsConnected() {
		c.subscribe(c.client, topicName, handler)
	}
}

// Publish sends a message and waits for channel-level acknowledgement.
// Success here means the broker accepted the message, nothing more.
func (c *Connection) Publish(
	ctx context.Context,
	topicName string,
	payload []byte,
) error {
	if c.client == nil {
		return ErrNotConnected
	}
	token := c.client.Publish(topicName, qosAtLeastOnce, false, payload)
	timeout := c.config.PublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timeout publishing to %s", topicName)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topicName, err)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight work to finish
func (c *Connection) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

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

// Package doorman wires the smart door controller: command dispatch to the
// device over MQTT, ingestion and correlation of device reports, webhook
// and email side effects, and the last-opener query.
package doorman

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openlatch/doorman/correlate"
	"github.com/openlatch/doorman/database"
	"github.com/openlatch/doorman/dispatch"
	"github.com/openlatch/doorman/event"
	"github.com/openlatch/doorman/ingest"
	"github.com/openlatch/doorman/mailer"
	"github.com/openlatch/doorman/mqtt"
	"github.com/openlatch/doorman/notify"
	"github.com/openlatch/doorman/opener"
	"github.com/openlatch/doorman/topic"
)

type Doorman struct {
	db            *database.Database
	eventBus      *event.EventBus
	mqttConn      *mqtt.Connection
	topics        *topic.Builder
	dispatcher    *dispatch.Dispatcher
	ingestor      *ingest.Ingestor
	engine        *correlate.Engine
	notifier      *notify.Dispatcher
	mailer        mailer.Sender
	opener        *opener.Resolver
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Doorman, error) {
	eventBus := event.NewEventBus(cfg.promRegistry)
	d := &Doorman{
		config:   cfg,
		eventBus: eventBus,
		done:     make(chan struct{}),
	}
	if err := d.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return d, nil
}

func (d *Doorman) Run() error {
	// Configure tracing
	if d.config.tracing {
		if err := d.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:      d.config.dataDir,
		Logger:       d.config.logger,
		PromRegistry: d.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	d.db = db
	// Topic layout shared with the device
	d.topics = topic.NewBuilder(d.config.topicPrefix)
	// Webhook notifications
	d.notifier = notify.NewDispatcher(notify.DispatcherConfig{
		Logger:  d.config.logger,
		Timeout: d.config.notifyTimeout,
	})
	// Confirmation email, enabled only when an API key is configured
	if d.config.resendAPIKey != "" {
		d.mailer = mailer.NewResendMailer(mailer.ResendMailerConfig{
			Logger: d.config.logger,
			APIKey: d.config.resendAPIKey,
			From:   d.config.mailFrom,
		})
	}
	// Correlation engine
	d.engine = correlate.NewEngine(correlate.EngineConfig{
		Logger:   d.config.logger,
		DB:       d.db,
		Notifier: d.notifier,
		Mailer:   d.mailer,
		EventBus: d.eventBus,
	})
	// Event ingestor, feeding the correlation engine synchronously
	d.ingestor = ingest.NewIngestor(ingest.IngestorConfig{
		Logger:       d.config.logger,
		DB:           d.db,
		EventBus:     d.eventBus,
		Correlator:   d.engine,
		PromRegistry: d.config.promRegistry,
	})
	// Device channel. Subscriptions are registered before connecting so
	// they are established on the initial connect and every reconnect.
	d.mqttConn = mqtt.NewConnection(mqtt.ConnectionConfig{
		Logger:    d.config.logger,
		BrokerURL: d.config.brokerURL,
		ClientID:  d.config.mqttClientID,
	})
	d.mqttConn.Subscribe(d.topics.Capture(), d.ingestor.HandleCapture)
	d.mqttConn.Subscribe(
		d.topics.Log(topic.ModuleServo),
		d.ingestor.HandleServoLog,
	)
	d.mqttConn.Subscribe(
		d.topics.Log(topic.ModuleFingerprint),
		d.ingestor.HandleFingerprintLog,
	)
	if err := d.mqttConn.Connect(); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	// Command dispatcher
	d.dispatcher = dispatch.NewDispatcher(dispatch.DispatcherConfig{
		Logger:              d.config.logger,
		DB:                  d.db,
		Publisher:           d.mqttConn,
		EventBus:            d.eventBus,
		Topics:              d.topics,
		FingerprintCapacity: d.config.fingerprintCapacity,
	})
	// Last-opener resolver
	d.opener = opener.NewResolver(opener.ResolverConfig{
		Logger: d.config.logger,
		DB:     d.db,
	})

	// Wait for shutdown signal
	<-d.done
	return nil
}

func (d *Doorman) Stop() error {
	var err error
	d.shutdownOnce.Do(func() {
		err = d.shutdown()
	})
	return err
}

func (d *Doorman) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if d.config.shutdownTimeout > 0 {
		shutdownTimeout = d.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	d.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	d.config.logger.Debug("shutdown phase 1: stopping new work")

	if d.mqttConn != nil {
		d.mqttConn.Close()
	}

	// Phase 2: Flush state and close database
	d.config.logger.Debug("shutdown phase 2: flushing state")

	if d.db != nil {
		if closeErr := d.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 3: Cleanup resources
	d.config.logger.Debug("shutdown phase 3: cleanup resources")

	// Call registered shutdown functions
	for _, fn := range d.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	d.shutdownFuncs = nil

	if d.eventBus != nil {
		d.eventBus.Stop()
	}

	d.config.logger.Debug("graceful shutdown complete")
	close(d.done)
	return err
}

// Dispatcher returns the command dispatcher, the write path for device
// commands
func (d *Doorman) Dispatcher() *dispatch.Dispatcher {
	return d.dispatcher
}

// LastOpener returns the most recent door opening that traces to a known
// user
func (d *Doorman) LastOpener(ctx context.Context) (*opener.Opener, error) {
	return d.opener.Resolve(ctx)
}

// Database returns the underlying database for query access
func (d *Doorman) Database() *database.Database {
	return d.db
}

// EventBus returns the event bus for observability subscriptions
func (d *Doorman) EventBus() *event.EventBus {
	return d.eventBus
}

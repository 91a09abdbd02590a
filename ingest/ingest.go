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

// Package ingest turns raw inbound device messages into event log rows.
// Handlers validate and coerce loosely-typed device JSON, persist an
// append-only row, archive the raw bytes, and hand the stored event to the
// correlation engine. A malformed message is dropped and logged; it never
// stops the pipeline.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/openlatch/doorman/database"
	"github.com/openlatch/doorman/database/models"
	"github.com/openlatch/doorman/event"
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons used as metric labels
const (
	dropMalformed          = "malformed"
	dropMissingURL         = "missing_url"
	dropInvalidStatus      = "invalid_status"
	dropUnknownType        = "unknown_type"
	dropAmbiguousReference = "ambiguous_reference"
	dropStorage            = "storage"
)

// Correlator consumes a stored event synchronously, before the next message
// on the same subscription is processed
type Correlator interface {
	Correlate(ctx context.Context, evt *models.EventLog) error
}

// IngestorConfig holds the event ingestor configuration
type IngestorConfig struct {
	Logger       *slog.Logger
	DB           *database.Database
	EventBus     *event.EventBus
	Correlator   Correlator
	PromRegistry prometheus.Registerer
}

// Ingestor persists inbound device messages. Its handler methods match the
// pub/sub subscription callback signature and run one at a time per topic.
type Ingestor struct {
	config  IngestorConfig
	logger  *slog.Logger
	metrics *ingestMetrics
}

func NewIngestor(cfg IngestorConfig) *Ingestor {
	i := &Ingestor{
		config: cfg,
		logger: cfg.Logger,
	}
	if i.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		i.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.PromRegistry != nil {
		i.initMetrics(cfg.PromRegistry)
	}
	return i
}

// flexUint decodes a uint that devices may report as a JSON number or a
// numeric string
type flexUint struct {
	Value uint
	Set   bool
}

func (f *flexUint) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	v, err := strconv.ParseUint(string(data), 10, 32)
	if err != nil {
		return fmt.Errorf("invalid numeric value: %w", err)
	}
	f.Value = uint(v)
	f.Set = true
	return nil
}

type captureMessage struct {
	URL string `json:"url"`
}

type servoMessage struct {
	Status       string   `json:"status"`
	ID           flexUint `json:"id"`
	RelatedLogID flexUint `json:"related_log_id"`
}

type fingerprintMessage struct {
	Type     string   `json:"type"`
	ID       flexUint `json:"id"`
	FingerID flexUint `json:"finger_id"`
}

// HandleCapture ingests a camera capture report. Re-delivery of an
// already-stored image URL is a silent no-op.
func (i *Ingestor) HandleCapture(topicName string, payload []byte) {
	var msg captureMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		i.drop(topicName, payload, dropMalformed, err)
		return
	}
	if msg.URL == "" {
		i.drop(topicName, payload, dropMissingURL, nil)
		return
	}
	evt := &models.EventLog{
		LogType:     models.LogTypeCapture,
		Description: "camera capture",
		Payload:     string(payload),
		Topic:       topicName,
		URL:         &msg.URL,
	}
	i.store(topicName, payload, evt)
}

// HandleServoLog ingests a servo status report. The message references
// either the command it responds to or a prior event it elaborates, never
// both.
func (i *Ingestor) HandleServoLog(topicName string, payload []byte) {
	var msg servoMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		i.drop(topicName, payload, dropMalformed, err)
		return
	}
	if msg.Status != "open" && msg.Status != "close" {
		i.drop(topicName, payload, dropInvalidStatus, nil)
		return
	}
	if msg.ID.Set && msg.RelatedLogID.Set {
		i.drop(topicName, payload, dropAmbiguousReference, nil)
		return
	}
	evt := &models.EventLog{
		LogType:     models.LogTypeServoStatus,
		Description: "servo " + msg.Status,
		Payload:     msg.Status,
		Topic:       topicName,
	}
	if msg.ID.Set {
		evt.CommandID = i.resolveCommand(msg.ID.Value)
	} else if msg.RelatedLogID.Set {
		evt.RelatedLogID = i.resolveRelatedLog(msg.RelatedLogID.Value)
	}
	i.store(topicName, payload, evt)
}

// HandleFingerprintLog ingests a fingerprint module report: match success
// or failure, enroll success, delete success
func (i *Ingestor) HandleFingerprintLog(topicName string, payload []byte) {
	var msg fingerprintMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		i.drop(topicName, payload, dropMalformed, err)
		return
	}
	var description string
	switch msg.Type {
	case models.LogTypeMatchSuccess:
		description = "fingerprint match"
	case models.LogTypeMatchFail:
		description = "fingerprint match failed"
	case models.LogTypeEnrollSuccess:
		description = "fingerprint enrolled"
	case models.LogTypeDeleteSuccess:
		description = "fingerprint deleted"
	default:
		i.drop(topicName, payload, dropUnknownType, nil)
		return
	}
	evt := &models.EventLog{
		LogType:     msg.Type,
		Description: description,
		Payload:     string(payload),
		Topic:       topicName,
	}
	// Enroll and delete reports respond to a command; match reports are
	// device-initiated and carry no command reference
	if msg.ID.Set {
		evt.CommandID = i.resolveCommand(msg.ID.Value)
	}
	i.store(topicName, payload, evt)
}

// store persists the event row, archives the raw message, and hands the
// event to the correlation engine
func (i *Ingestor) store(
	topicName string,
	payload []byte,
	evt *models.EventLog,
) {
	err := database.NewTxn(i.config.DB).Do(func(txn *database.Txn) error {
		return i.config.DB.AddEventLog(evt, txn.Handle())
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicateCapture) {
			// Expected on re-delivery
			if i.metrics != nil {
				i.metrics.duplicateCaptures.Inc()
			}
			i.logger.Debug(
				"ignoring duplicate capture",
				"component", "ingest",
				"topic", topicName,
			)
			return
		}
		i.drop(topicName, payload, dropStorage, err)
		return
	}
	if err := i.config.DB.ArchiveRawMessage(evt.ID, payload); err != nil {
		// The row is committed; a failed archive write is not fatal
		i.logger.Warn(
			"failed to archive raw message",
			"component", "ingest",
			"event_id", evt.ID,
			"error", err,
		)
	}
	if i.metrics != nil {
		i.metrics.eventsTotal.WithLabelValues(evt.LogType).Inc()
	}
	i.logger.Info(
		"ingested event",
		"component", "ingest",
		"event_id", evt.ID,
		"log_type", evt.LogType,
		"topic", topicName,
	)
	if i.config.Correlator != nil {
		if err := i.config.Correlator.Correlate(
			context.Background(),
			evt,
		); err != nil {
			// Correlation failures never fail ingestion
			i.logger.Warn(
				"correlation failed",
				"component", "ingest",
				"event_id", evt.ID,
				"log_type", evt.LogType,
				"error", err,
			)
		}
	}
	if i.config.EventBus != nil {
		i.config.EventBus.Publish(
			event.EventIngestedEventType,
			event.NewEvent(
				event.EventIngestedEventType,
				event.EventIngestedEvent{
					EventID: evt.ID,
					LogType: evt.LogType,
					Topic:   topicName,
				},
			),
		)
	}
}

// resolveCommand returns a reference to the command a message names, or nil
// with a warning when no such command exists. A dangling reference is
// tolerated; the event is still stored.
func (i *Ingestor) resolveCommand(commandID uint) *uint {
	if _, err := i.config.DB.CommandByID(commandID, nil); err != nil {
		i.logger.Warn(
			"message references unknown command",
			"component", "ingest",
			"command_id", commandID,
			"error", err,
		)
		return nil
	}
	return &commandID
}

func (i *Ingestor) resolveRelatedLog(logID uint) *uint {
	if _, err := i.config.DB.EventLogByID(logID, nil); err != nil {
		i.logger.Warn(
			"message references unknown event log",
			"component", "ingest",
			"related_log_id", logID,
			"error", err,
		)
		return nil
	}
	return &logID
}

func (i *Ingestor) drop(
	topicName string,
	payload []byte,
	reason string,
	err error,
) {
	if i.metrics != nil {
		i.metrics.droppedTotal.WithLabelValues(reason).Inc()
	}
	i.logger.Warn(
		"dropping message",
		"component", "ingest",
		"topic", topicName,
		"reason", reason,
		"payload_length", len(payload),
		"error", err,
	)
}

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

// Package dispatch issues device commands over the pub/sub channel. Each
// command is allocated a database row in the pending state first, so its id
// can be embedded in the outbound payload as the correlation token, then
// finalized to sent or error once the publish attempt resolves.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/openlatch/doorman/database"
	"github.com/openlatch/doorman/database/models"
	"github.com/openlatch/doorman/event"
	"github.com/openlatch/doorman/topic"
)

// The 16x2 character LCD on the device
const maxLcdTextLength = 32

var (
	ErrUnknownCommandType   = errors.New("unknown command type")
	ErrMissingFingerprintID = errors.New(
		"fingerprint delete requires a fingerprint id",
	)
	ErrEmptyText = errors.New("lcd text must not be empty")
)

// CapacityError is returned when a fingerprint enroll command is rejected
// because the registry has reached its configured capacity
type CapacityError struct {
	Live     int64
	Capacity int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf(
		"fingerprint registry full: live=%d, capacity=%d",
		e.Live,
		e.Capacity,
	)
}

// Publisher sends one message on the device channel and reports
// channel-level acknowledgement
type Publisher interface {
	Publish(ctx context.Context, topicName string, payload []byte) error
}

// Params carries the command-type-specific submission parameters
type Params struct {
	// FingerprintID identifies the slot for fingerprint.delete
	FingerprintID uint
	// Text is the message for lcd.set
	Text string
}

// Result is the synchronous outcome of a submission. Status reflects
// channel-level acknowledgement only; no device-side confirmation is
// awaited.
type Result struct {
	Status  string
	Topic   string
	Payload string
	ID      uint
}

// DispatcherConfig holds the command dispatcher configuration
type DispatcherConfig struct {
	Logger              *slog.Logger
	DB                  *database.Database
	Publisher           Publisher
	EventBus            *event.EventBus
	Topics              *topic.Builder
	FingerprintCapacity int64
}

// Dispatcher owns the command lifecycle: it is the only writer of command
// rows, which are read-only to every other component.
type Dispatcher struct {
	config DispatcherConfig
	logger *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		config: cfg,
		logger: cfg.Logger,
	}
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return d
}

// Submit validates, allocates, publishes, and finalizes one command.
// The returned result mirrors the finalized command row.
func (d *Dispatcher) Submit(
	ctx context.Context,
	userID uint,
	commandType string,
	params Params,
) (*Result, error) {
	action, module, err := validate(commandType, params)
	if err != nil {
		return nil, err
	}
	topicName := d.config.Topics.Command(module)
	// Allocate the command row in a transaction that re-checks registry
	// capacity at insert time, closing the race between two concurrent
	// enroll admissions
	cmd := &models.Command{
		UserID:      userID,
		CommandType: commandType,
		Topic:       topicName,
	}
	err = database.NewTxn(d.config.DB).Do(func(txn *database.Txn) error {
		if commandType == models.CommandTypeFingerprintEnroll {
			live, err := d.config.DB.FingerprintCount(txn.Handle())
			if err != nil {
				return err
			}
			if live >= d.config.FingerprintCapacity {
				return &CapacityError{
					Live:     live,
					Capacity: d.config.FingerprintCapacity,
				}
			}
		}
		return d.config.DB.CreateCommand(cmd, txn.Handle())
	})
	if err != nil {
		return nil, err
	}
	// Build the outbound payload with the allocated id embedded as the
	// correlation token
	payload, err := buildPayload(cmd.ID, action, params)
	if err != nil {
		return nil, err
	}
	// Publish and finalize. The finalize write is deliberately not coupled
	// to the publish call in one transaction; the row stays pending if we
	// crash in between.
	status := models.CommandStatusSent
	note := ""
	if pubErr := d.config.Publisher.Publish(ctx, topicName, payload); pubErr != nil {
		status = models.CommandStatusError
		note = pubErr.Error()
		d.logger.Warn(
			"command publish failed",
			"component", "dispatch",
			"command_id", cmd.ID,
			"topic", topicName,
			"error", pubErr,
		)
	}
	if err := d.config.DB.FinalizeCommand(
		cmd.ID,
		status,
		string(payload),
		note,
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to finalize command: %w", err)
	}
	if d.config.EventBus != nil {
		d.config.EventBus.Publish(
			event.CommandSubmittedEventType,
			event.NewEvent(
				event.CommandSubmittedEventType,
				event.CommandSubmittedEvent{
					CommandID:   cmd.ID,
					UserID:      userID,
					CommandType: commandType,
					Status:      status,
				},
			),
		)
	}
	return &Result{
		ID:      cmd.ID,
		Status:  status,
		Topic:   topicName,
		Payload: string(payload),
	}, nil
}

// validate maps a command type to its device action and module topic,
// checking type-specific parameters
func validate(commandType string, params Params) (action, module string, err error) {
	switch commandType {
	case models.CommandTypeServoOpen:
		return "open", topic.ModuleServo, nil
	case models.CommandTypeServoClose:
		return "close", topic.ModuleServo, nil
	case models.CommandTypeFingerprintEnroll:
		return "enroll", topic.ModuleFingerprint, nil
	case models.CommandTypeFingerprintDelete:
		if params.FingerprintID == 0 {
			return "", "", ErrMissingFingerprintID
		}
		return "delete", topic.ModuleFingerprint, nil
	case models.CommandTypeLcdSet:
		if params.Text == "" {
			return "", "", ErrEmptyText
		}
		return "set", topic.ModuleLcd, nil
	default:
		return "", "", fmt.Errorf(
			"%w: %q",
			ErrUnknownCommandType,
			commandType,
		)
	}
}

type commandPayload struct {
	ID            uint   `json:"id"`
	Action        string `json:"action,omitempty"`
	FingerprintID uint   `json:"finger_id,omitempty"`
	Text          string `json:"text,omitempty"`
}

func buildPayload(
	commandID uint,
	action string,
	params Params,
) ([]byte, error) {
	p := commandPayload{
		ID:     commandID,
		Action: action,
	}
	switch action {
	case "delete":
		p.FingerprintID = params.FingerprintID
	case "set":
		p.Action = ""
		text := params.Text
		if utf8.RuneCountInString(text) > maxLcdTextLength {
			// The display renders characters, not bytes
			text = string([]rune(text)[:maxLcdTextLength])
		}
		p.Text = text
	}
	return json.Marshal(p)
}

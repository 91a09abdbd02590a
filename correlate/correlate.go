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

// Package correlate walks the reference chain of a freshly stored event
// (event to command to user) and triggers the matching side effects:
// webhook notifications, confirmation email, and fingerprint registry
// updates. A broken link in the chain is logged and skipped; it is a normal
// condition, not a failure.
package correlate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/openlatch/doorman/database"
	"github.com/openlatch/doorman/database/models"
	"github.com/openlatch/doorman/event"
	"github.com/openlatch/doorman/mailer"
	"github.com/openlatch/doorman/notify"
)

// Notifier delivers one webhook notification and reports the outcome
type Notifier interface {
	Notify(
		ctx context.Context,
		url string,
		content string,
		embed *notify.Embed,
	) notify.Result
}

// EngineConfig holds the correlation engine configuration
type EngineConfig struct {
	Logger   *slog.Logger
	DB       *database.Database
	Notifier Notifier
	Mailer   mailer.Sender
	EventBus *event.EventBus
}

type handlerFunc func(ctx context.Context, evt *models.EventLog) error

// Engine dispatches stored events to per-type handlers. The handler set is
// closed: an event type without a handler is stored and skipped.
type Engine struct {
	config   EngineConfig
	logger   *slog.Logger
	handlers map[string]handlerFunc
}

func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		config: cfg,
		logger: cfg.Logger,
	}
	if e.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		e.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e.handlers = map[string]handlerFunc{
		models.LogTypeMatchSuccess:  e.handleMatchSuccess,
		models.LogTypeMatchFail:     e.handleMatchFail,
		models.LogTypeEnrollSuccess: e.handleEnrollSuccess,
		models.LogTypeDeleteSuccess: e.handleDeleteSuccess,
		models.LogTypeServoStatus:   e.handleServoStatus,
	}
	return e
}

// Correlate runs the side effects for a stored event. It returns an error
// only for unexpected storage failures; a broken reference chain is logged
// and swallowed.
func (e *Engine) Correlate(ctx context.Context, evt *models.EventLog) error {
	handler, ok := e.handlers[evt.LogType]
	if !ok {
		// Captures and future event types have no side effects
		return nil
	}
	return handler(ctx, evt)
}

// fingerprintPayload is the stored payload of a fingerprint module event
type fingerprintPayload struct {
	FingerID uint `json:"finger_id"`
}

func parseFingerID(payload string) (uint, error) {
	var p fingerprintPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return 0, fmt.Errorf("failed to parse event payload: %w", err)
	}
	if p.FingerID == 0 {
		return 0, errors.New("event payload has no finger id")
	}
	return p.FingerID, nil
}

// handleMatchSuccess notifies the owner of the matched fingerprint that the
// door was opened with it
func (e *Engine) handleMatchSuccess(
	ctx context.Context,
	evt *models.EventLog,
) error {
	fingerID, err := parseFingerID(evt.Payload)
	if err != nil {
		e.skip(evt, "unparseable match payload", err)
		return nil
	}
	fp, err := e.config.DB.FingerprintByID(fingerID, nil)
	if err != nil {
		if errors.Is(err, models.ErrFingerprintNotFound) {
			e.skip(evt, "matched fingerprint not in registry", err)
			return nil
		}
		return err
	}
	user, err := e.config.DB.UserByID(fp.UserID, nil)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			e.skip(evt, "fingerprint owner not found", err)
			return nil
		}
		return err
	}
	hook, err := e.config.DB.WebhookByUser(user.ID, nil)
	if err != nil {
		if errors.Is(err, models.ErrWebhookNotFound) {
			e.skip(evt, "owner has no webhook", err)
			return nil
		}
		return err
	}
	e.notify(
		ctx,
		hook.URL,
		fmt.Sprintf("Door opened by %s (fingerprint)", user.Username),
		e.embed(evt, user.Username),
	)
	return nil
}

// handleMatchFail broadcasts a failed match attempt to every registered
// webhook; there is no single owner to address
func (e *Engine) handleMatchFail(
	ctx context.Context,
	evt *models.EventLog,
) error {
	hooks, err := e.config.DB.Webhooks(nil)
	if err != nil {
		return err
	}
	if len(hooks) == 0 {
		e.skip(evt, "no webhooks registered", nil)
		return nil
	}
	for _, hook := range hooks {
		e.notify(
			ctx,
			hook.URL,
			"Failed fingerprint match attempt at the door",
			e.embed(evt, ""),
		)
	}
	return nil
}

// handleEnrollSuccess records the new fingerprint in the registry and mails
// the user who requested the enrollment
func (e *Engine) handleEnrollSuccess(
	ctx context.Context,
	evt *models.EventLog,
) error {
	user, ok, err := e.commandUser(evt)
	if err != nil || !ok {
		return err
	}
	fingerID, err := parseFingerID(evt.Payload)
	if err != nil {
		e.skip(evt, "unparseable enroll payload", err)
		return nil
	}
	// Upsert so a re-delivered enroll report converges on the same entry
	fp := &models.Fingerprint{
		ID:     fingerID,
		UserID: user.ID,
		Name:   fmt.Sprintf("Fingerprint %d", fingerID),
	}
	if err := e.config.DB.UpsertFingerprint(fp, nil); err != nil {
		return err
	}
	e.mail(ctx, evt, user, "enroll")
	return nil
}

// handleDeleteSuccess removes the fingerprint from the registry and mails
// the user who requested the deletion
func (e *Engine) handleDeleteSuccess(
	ctx context.Context,
	evt *models.EventLog,
) error {
	user, ok, err := e.commandUser(evt)
	if err != nil || !ok {
		return err
	}
	fingerID, err := parseFingerID(evt.Payload)
	if err != nil {
		e.skip(evt, "unparseable delete payload", err)
		return nil
	}
	if err := e.config.DB.DeleteFingerprint(fingerID, nil); err != nil {
		return err
	}
	e.mail(ctx, evt, user, "delete")
	return nil
}

// handleServoStatus notifies the user whose command moved the servo.
// Device-initiated status reports carry no command reference and trigger
// nothing here.
func (e *Engine) handleServoStatus(
	ctx context.Context,
	evt *models.EventLog,
) error {
	user, ok, err := e.commandUser(evt)
	if err != nil || !ok {
		return err
	}
	hook, err := e.config.DB.WebhookByUser(user.ID, nil)
	if err != nil {
		if errors.Is(err, models.ErrWebhookNotFound) {
			e.skip(evt, "user has no webhook", err)
			return nil
		}
		return err
	}
	verb := "opened"
	if evt.Payload == "close" {
		verb = "closed"
	}
	e.notify(
		ctx,
		hook.URL,
		fmt.Sprintf("Door %s by %s (web)", verb, user.Username),
		e.embed(evt, user.Username),
	)
	return nil
}

// commandUser resolves an event's command reference to the issuing user.
// The second return reports whether the chain resolved; a broken chain is
// logged and skipped.
func (e *Engine) commandUser(
	evt *models.EventLog,
) (*models.User, bool, error) {
	if evt.CommandID == nil {
		e.skip(evt, "no command reference", nil)
		return nil, false, nil
	}
	cmd, err := e.config.DB.CommandByID(*evt.CommandID, nil)
	if err != nil {
		if errors.Is(err, models.ErrCommandNotFound) {
			e.skip(evt, "referenced command not found", err)
			return nil, false, nil
		}
		return nil, false, err
	}
	user, err := e.config.DB.UserByID(cmd.UserID, nil)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			e.skip(evt, "command issuer not found", err)
			return nil, false, nil
		}
		return nil, false, err
	}
	return user, true, nil
}

func (e *Engine) embed(evt *models.EventLog, username string) *notify.Embed {
	fields := []notify.Field{
		{
			Name:   "Event",
			Value:  evt.Description,
			Inline: true,
		},
		{
			Name: "Time",
			Value: time.Unix(evt.CreatedAt, 0).
				UTC().
				Format(time.RFC3339),
			Inline: true,
		},
	}
	if username != "" {
		fields = append(fields, notify.Field{
			Name:   "User",
			Value:  username,
			Inline: true,
		})
	}
	return &notify.Embed{
		Title:  "Smart Door",
		Fields: fields,
	}
}

// notify delivers a webhook notification and records the outcome. Delivery
// failure is logged, never propagated.
func (e *Engine) notify(
	ctx context.Context,
	url string,
	content string,
	embed *notify.Embed,
) {
	if e.config.Notifier == nil {
		return
	}
	result := e.config.Notifier.Notify(ctx, url, content, embed)
	if !result.OK {
		e.logger.Warn(
			"webhook delivery failed",
			"component", "correlate",
			"status_code", result.StatusCode,
			"body", result.Body,
		)
	}
	if e.config.EventBus != nil {
		e.config.EventBus.Publish(
			event.NotificationEventType,
			event.NewEvent(
				event.NotificationEventType,
				event.NotificationEvent{
					URL:        url,
					OK:         result.OK,
					StatusCode: result.StatusCode,
				},
			),
		)
	}
}

// mail sends a fingerprint action confirmation. Mail failure is logged,
// never propagated.
func (e *Engine) mail(
	ctx context.Context,
	evt *models.EventLog,
	user *models.User,
	action string,
) {
	if e.config.Mailer == nil {
		return
	}
	if err := e.config.Mailer.SendFingerprintAction(
		ctx,
		user.Email,
		user.Username,
		action,
	); err != nil {
		e.logger.Warn(
			"confirmation email failed",
			"component", "correlate",
			"event_id", evt.ID,
			"user_id", user.ID,
			"error", err,
		)
	}
}

func (e *Engine) skip(evt *models.EventLog, reason string, err error) {
	e.logger.Info(
		"skipping event side effects",
		"component", "correlate",
		"event_id", evt.ID,
		"log_type", evt.LogType,
		"reason", reason,
		"error", err,
	)
}

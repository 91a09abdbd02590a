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

// Package mailer sends transactional email through Resend: fingerprint
// enroll/delete confirmations triggered by the correlation engine, and the
// registration one-time code consumed by the surrounding application.
package mailer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Sender is the email collaborator consumed by the correlation engine
type Sender interface {
	SendFingerprintAction(
		ctx context.Context,
		toEmail string,
		username string,
		action string,
	) error
	SendRegistrationCode(
		ctx context.Context,
		toEmail string,
		username string,
		code string,
	) error
}

// ResendMailerConfig holds the mailer configuration
type ResendMailerConfig struct {
	Logger *slog.Logger
	APIKey string
	// From is the sender address, e.g. "Doorman <doorman@example.com>"
	From string
}

// ResendMailer sends mail through the Resend API
type ResendMailer struct {
	client *resend.Client
	logger *slog.Logger
	from   string
}

func NewResendMailer(cfg ResendMailerConfig) *ResendMailer {
	m := &ResendMailer{
		client: resend.NewClient(cfg.APIKey),
		from:   cfg.From,
		logger: cfg.Logger,
	}
	if m.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		m.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return m
}

// SendFingerprintAction sends a confirmation that a fingerprint was
// enrolled or deleted
func (m *ResendMailer) SendFingerprintAction(
	ctx context.Context,
	toEmail string,
	username string,
	action string,
) error {
	subject := fmt.Sprintf(
		"Smart Door Notification: Fingerprint %s Success",
		action,
	)
	html := fmt.Sprintf(
		`<p>Hello <strong>%s</strong>,</p>
<p>A fingerprint has been successfully <strong>%sed</strong> on your Smart Door system.</p>
<p>If you did not initiate this action, please contact support immediately.</p>`,
		username,
		action,
	)
	return m.send(ctx, toEmail, subject, html)
}

// SendRegistrationCode sends the one-time code used to finish creating an
// account
func (m *ResendMailer) SendRegistrationCode(
	ctx context.Context,
	toEmail string,
	username string,
	code string,
) error {
	html := fmt.Sprintf(
		`<p>Hello <strong>%s</strong>,</p>
<p>Use the one-time password below to finish creating your account:</p>
<p style="font-size:32px;letter-spacing:8px;"><strong>%s</strong></p>
<p>This code expires in 10 minutes. If you didn't request it, just ignore this message.</p>`,
		username,
		code,
	)
	return m.send(ctx, toEmail, "Registration OTP", html)
}

func (m *ResendMailer) send(
	ctx context.Context,
	toEmail string,
	subject string,
	html string,
) error {
	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{toEmail},
		Subject: subject,
		Html:    html,
	}
	sent, err := m.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	m.logger.Debug(
		"sent email",
		"component", "mailer",
		"email_id", sent.Id,
		"subject", subject,
	)
	return nil
}

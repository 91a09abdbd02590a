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

// Package opener answers "who last opened the door". It scans a bounded
// window of recent open candidates newest first and returns the first one
// whose reference chain resolves to a user; candidates with broken chains
// are skipped, not errors.
package opener

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/openlatch/doorman/database"
	"github.com/openlatch/doorman/database/models"
)

// DefaultWindow bounds how many recent candidates are examined. Anything
// older is treated as unknown.
const DefaultWindow = 200

// ErrNoOpener is returned when no candidate in the window resolves to a
// user. A freshly installed door or one only opened by unregistered
// fingerprints reports this legitimately.
var ErrNoOpener = errors.New("no resolvable door opening on record")

// Opening sources
const (
	SourceWeb         = "web"
	SourceFingerprint = "fingerprint"
)

// Opener identifies who last opened the door and through which path
type Opener struct {
	Username      string
	Source        string
	UserID        uint
	EventID       uint
	CorrelationID uint // command id for web openings, zero otherwise
	CreatedAt     int64
}

// ResolverConfig holds the last-opener resolver configuration
type ResolverConfig struct {
	Logger *slog.Logger
	DB     *database.Database
	Window int
}

// Resolver resolves the most recent door opening to a user
type Resolver struct {
	config ResolverConfig
	logger *slog.Logger
}

func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		config: cfg,
		logger: cfg.Logger,
	}
	if r.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if r.config.Window <= 0 {
		r.config.Window = DefaultWindow
	}
	return r
}

// Resolve returns the most recent door opening that traces to a known user.
// Candidates are examined newest first; a candidate whose chain is broken
// (unreferenced servo event, unregistered fingerprint, deleted user) is
// skipped in favor of the next one.
func (r *Resolver) Resolve(ctx context.Context) (*Opener, error) {
	candidates, err := r.config.DB.RecentOpenCandidates(
		r.config.Window,
		nil,
	)
	if err != nil {
		return nil, err
	}
	for _, evt := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var opener *Opener
		switch evt.LogType {
		case models.LogTypeServoStatus:
			opener = r.resolveServo(&evt)
		case models.LogTypeMatchSuccess:
			opener = r.resolveMatch(&evt)
		}
		if opener != nil {
			return opener, nil
		}
	}
	return nil, ErrNoOpener
}

// resolveServo handles a web opening: a servo "open" status that responds
// to a command issued by a known user
func (r *Resolver) resolveServo(evt *models.EventLog) *Opener {
	if evt.Payload != "open" {
		return nil
	}
	if evt.CommandID == nil {
		// Device-initiated status, nobody to attribute
		return nil
	}
	cmd, err := r.config.DB.CommandByID(*evt.CommandID, nil)
	if err != nil {
		r.skip(evt, err)
		return nil
	}
	user, err := r.config.DB.UserByID(cmd.UserID, nil)
	if err != nil {
		r.skip(evt, err)
		return nil
	}
	return &Opener{
		UserID:        user.ID,
		Username:      user.Username,
		Source:        SourceWeb,
		CorrelationID: cmd.ID,
		EventID:       evt.ID,
		CreatedAt:     evt.CreatedAt,
	}
}

// resolveMatch handles a fingerprint opening: a match success whose slot is
// still in the registry and owned by a known user
func (r *Resolver) resolveMatch(evt *models.EventLog) *Opener {
	var payload struct {
		FingerID uint `json:"finger_id"`
	}
	if err := json.Unmarshal([]byte(evt.Payload), &payload); err != nil ||
		payload.FingerID == 0 {
		r.skip(evt, err)
		return nil
	}
	fp, err := r.config.DB.FingerprintByID(payload.FingerID, nil)
	if err != nil {
		r.skip(evt, err)
		return nil
	}
	user, err := r.config.DB.UserByID(fp.UserID, nil)
	if err != nil {
		r.skip(evt, err)
		return nil
	}
	return &Opener{
		UserID:    user.ID,
		Username:  user.Username,
		Source:    SourceFingerprint,
		EventID:   evt.ID,
		CreatedAt: evt.CreatedAt,
	}
}

func (r *Resolver) skip(evt *models.EventLog, err error) {
	r.logger.Debug(
		"skipping unresolvable open candidate",
		"component", "opener",
		"event_id", evt.ID,
		"log_type", evt.LogType,
		"error", err,
	)
}

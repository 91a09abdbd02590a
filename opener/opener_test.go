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

package opener_test

import (
	"context"
	"testing"

	"github.com/openlatch/doorman/database"
	"github.com/openlatch/doorman/database/models"
	"github.com/openlatch/doorman/opener"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolver(
	t *testing.T,
) (*opener.Resolver, *database.Database) {
	t.Helper()
	db, err := database.New(&database.Config{
		DataDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	r := opener.NewResolver(opener.ResolverConfig{
		DB: db,
	})
	return r, db
}

func seedUser(
	t *testing.T,
	db *database.Database,
	username string,
) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
	}
	require.NoError(t, db.CreateUser(user, nil))
	return user
}

func addServoOpen(
	t *testing.T,
	db *database.Database,
	userID uint,
) (*models.Command, *models.EventLog) {
	t.Helper()
	cmd := &models.Command{
		UserID:      userID,
		CommandType: models.CommandTypeServoOpen,
	}
	require.NoError(t, db.CreateCommand(cmd, nil))
	evt := &models.EventLog{
		LogType:   models.LogTypeServoStatus,
		Payload:   "open",
		CommandID: &cmd.ID,
	}
	require.NoError(t, db.AddEventLog(evt, nil))
	return cmd, evt
}

func TestResolveNoOpener(t *testing.T) {
	r, _ := testResolver(t)

	_, err := r.Resolve(context.Background())
	require.ErrorIs(t, err, opener.ErrNoOpener)
}

func TestResolveWebOpening(t *testing.T) {
	r, db := testResolver(t)

	alice := seedUser(t, db, "alice")
	cmd, evt := addServoOpen(t, db, alice.ID)

	result, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, alice.ID, result.UserID)
	assert.Equal(t, "alice", result.Username)
	assert.Equal(t, opener.SourceWeb, result.Source)
	assert.Equal(t, cmd.ID, result.CorrelationID)
	assert.Equal(t, evt.ID, result.EventID)
}

func TestResolveFingerprintOpening(t *testing.T) {
	r, db := testResolver(t)

	bob := seedUser(t, db, "bob")
	require.NoError(t, db.UpsertFingerprint(&models.Fingerprint{
		ID:     3,
		UserID: bob.ID,
	}, nil))
	require.NoError(t, db.AddEventLog(&models.EventLog{
		LogType: models.LogTypeMatchSuccess,
		Payload: `{"type":"match.success","finger_id":3}`,
	}, nil))

	result, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bob", result.Username)
	assert.Equal(t, opener.SourceFingerprint, result.Source)
	assert.Zero(t, result.CorrelationID)
}

func TestResolveNewestWins(t *testing.T) {
	r, db := testResolver(t)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	addServoOpen(t, db, alice.ID)

	// Bob opens by fingerprint afterwards
	require.NoError(t, db.UpsertFingerprint(&models.Fingerprint{
		ID:     3,
		UserID: bob.ID,
	}, nil))
	require.NoError(t, db.AddEventLog(&models.EventLog{
		LogType: models.LogTypeMatchSuccess,
		Payload: `{"type":"match.success","finger_id":3}`,
	}, nil))

	result, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bob", result.Username)
}

func TestResolveSkipsBrokenChains(t *testing.T) {
	r, db := testResolver(t)

	alice := seedUser(t, db, "alice")
	addServoOpen(t, db, alice.ID)

	// Newer candidates that cannot be attributed: a device-initiated
	// status, a close, and a match on an unregistered slot
	require.NoError(t, db.AddEventLog(&models.EventLog{
		LogType: models.LogTypeServoStatus,
		Payload: "open",
	}, nil))
	require.NoError(t, db.AddEventLog(&models.EventLog{
		LogType: models.LogTypeServoStatus,
		Payload: "close",
	}, nil))
	require.NoError(t, db.AddEventLog(&models.EventLog{
		LogType: models.LogTypeMatchSuccess,
		Payload: `{"type":"match.success","finger_id":99}`,
	}, nil))

	result, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", result.Username)
	assert.Equal(t, opener.SourceWeb, result.Source)
}

func TestResolveFingerprintRemovedAfterMatch(t *testing.T) {
	r, db := testResolver(t)

	bob := seedUser(t, db, "bob")
	require.NoError(t, db.UpsertFingerprint(&models.Fingerprint{
		ID:     3,
		UserID: bob.ID,
	}, nil))
	require.NoError(t, db.AddEventLog(&models.EventLog{
		LogType: models.LogTypeMatchSuccess,
		Payload: `{"type":"match.success","finger_id":3}`,
	}, nil))

	// The slot is deleted later; the old match no longer resolves
	require.NoError(t, db.DeleteFingerprint(3, nil))

	_, err := r.Resolve(context.Background())
	require.ErrorIs(t, err, opener.ErrNoOpener)
}

func TestResolveWindowBound(t *testing.T) {
	_, db := testResolver(t)

	alice := seedUser(t, db, "alice")
	addServoOpen(t, db, alice.ID)

	// A window of 1 only sees the newest (unresolvable) candidate
	narrow := opener.NewResolver(opener.ResolverConfig{
		DB:     db,
		Window: 1,
	})
	require.NoError(t, db.AddEventLog(&models.EventLog{
		LogType: models.LogTypeServoStatus,
		Payload: "open",
	}, nil))

	_, err := narrow.Resolve(context.Background())
	require.ErrorIs(t, err, opener.ErrNoOpener)
}

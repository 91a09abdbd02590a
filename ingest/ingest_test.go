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

package ingest_test

import (
	"context"
	"testing"

	"github.com/openlatch/doorman/database"
	"github.com/openlatch/doorman/database/models"
	"github.com/openlatch/doorman/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCorrelator struct {
	events []*models.EventLog
}

func (c *recordingCorrelator) Correlate(
	_ context.Context,
	evt *models.EventLog,
) error {
	c.events = append(c.events, evt)
	return nil
}

func testIngestor(
	t *testing.T,
) (*ingest.Ingestor, *database.Database, *recordingCorrelator) {
	t.Helper()
	db, err := database.New(&database.Config{
		DataDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	correlator := &recordingCorrelator{}
	ingestor := ingest.NewIngestor(ingest.IngestorConfig{
		DB:         db,
		Correlator: correlator,
	})
	return ingestor, db, correlator
}

func TestHandleCapture(t *testing.T) {
	ingestor, db, correlator := testIngestor(t)

	raw := []byte(`{"url":"https://img.example.com/door.jpg"}`)
	ingestor.HandleCapture("/door1/camera-captures", raw)

	captures, err := db.Captures(10, 0, nil)
	require.NoError(t, err)
	require.Len(t, captures, 1)
	require.NotNil(t, captures[0].URL)
	assert.Equal(t, "https://img.example.com/door.jpg", *captures[0].URL)
	assert.Equal(t, "/door1/camera-captures", captures[0].Topic)

	// Raw bytes are archived
	archived, err := db.ArchivedPayload(captures[0].ID)
	require.NoError(t, err)
	assert.Equal(t, raw, archived)

	// Correlation runs for every stored event
	require.Len(t, correlator.events, 1)
	assert.Equal(t, captures[0].ID, correlator.events[0].ID)
}

func TestHandleCaptureMalformed(t *testing.T) {
	ingestor, db, correlator := testIngestor(t)

	ingestor.HandleCapture("/door1/camera-captures", []byte("not json"))
	ingestor.HandleCapture("/door1/camera-captures", []byte(`{"url":""}`))

	captures, err := db.Captures(10, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, captures)
	assert.Empty(t, correlator.events)
}

func TestHandleCaptureDuplicateIsNoOp(t *testing.T) {
	ingestor, db, correlator := testIngestor(t)

	raw := []byte(`{"url":"https://img.example.com/same.jpg"}`)
	ingestor.HandleCapture("/door1/camera-captures", raw)
	ingestor.HandleCapture("/door1/camera-captures", raw)

	captures, err := db.Captures(10, 0, nil)
	require.NoError(t, err)
	assert.Len(t, captures, 1)
	// The duplicate is not correlated again
	assert.Len(t, correlator.events, 1)
}

func TestHandleServoLog(t *testing.T) {
	ingestor, db, correlator := testIngestor(t)

	cmd := &models.Command{UserID: 1, CommandType: models.CommandTypeServoOpen}
	require.NoError(t, db.CreateCommand(cmd, nil))

	ingestor.HandleServoLog(
		"/door1/servo/log",
		[]byte(`{"id":1,"status":"open"}`),
	)

	events, err := db.EventLogsByType(
		[]string{models.LogTypeServoStatus},
		10,
		0,
		nil,
	)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "open", events[0].Payload)
	require.NotNil(t, events[0].CommandID)
	assert.Equal(t, cmd.ID, *events[0].CommandID)
	assert.Len(t, correlator.events, 1)
}

func TestHandleServoLogStringID(t *testing.T) {
	ingestor, db, _ := testIngestor(t)

	cmd := &models.Command{UserID: 1, CommandType: models.CommandTypeServoOpen}
	require.NoError(t, db.CreateCommand(cmd, nil))

	// Devices sometimes quote numeric fields
	ingestor.HandleServoLog(
		"/door1/servo/log",
		[]byte(`{"id":"1","status":"open"}`),
	)

	events, err := db.EventLogsByType(
		[]string{models.LogTypeServoStatus},
		10,
		0,
		nil,
	)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].CommandID)
	assert.Equal(t, cmd.ID, *events[0].CommandID)
}

func TestHandleServoLogAmbiguousReference(t *testing.T) {
	ingestor, db, correlator := testIngestor(t)

	ingestor.HandleServoLog(
		"/door1/servo/log",
		[]byte(`{"id":1,"related_log_id":2,"status":"open"}`),
	)

	events, err := db.EventLogsByType(
		[]string{models.LogTypeServoStatus},
		10,
		0,
		nil,
	)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, correlator.events)
}

func TestHandleServoLogInvalidStatus(t *testing.T) {
	ingestor, db, _ := testIngestor(t)

	ingestor.HandleServoLog(
		"/door1/servo/log",
		[]byte(`{"status":"ajar"}`),
	)

	events, err := db.EventLogsByType(
		[]string{models.LogTypeServoStatus},
		10,
		0,
		nil,
	)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestHandleServoLogUnknownCommandReference(t *testing.T) {
	ingestor, db, _ := testIngestor(t)

	// The referenced command does not exist; the event is stored without
	// the reference
	ingestor.HandleServoLog(
		"/door1/servo/log",
		[]byte(`{"id":42,"status":"open"}`),
	)

	events, err := db.EventLogsByType(
		[]string{models.LogTypeServoStatus},
		10,
		0,
		nil,
	)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].CommandID)
}

func TestHandleFingerprintLog(t *testing.T) {
	ingestor, db, correlator := testIngestor(t)

	cmd := &models.Command{
		UserID:      1,
		CommandType: models.CommandTypeFingerprintEnroll,
	}
	require.NoError(t, db.CreateCommand(cmd, nil))

	ingestor.HandleFingerprintLog(
		"/door1/fingerprint/log",
		[]byte(`{"type":"enroll.success","id":1,"finger_id":3}`),
	)
	ingestor.HandleFingerprintLog(
		"/door1/fingerprint/log",
		[]byte(`{"type":"match.success","finger_id":3}`),
	)
	ingestor.HandleFingerprintLog(
		"/door1/fingerprint/log",
		[]byte(`{"type":"bogus","finger_id":3}`),
	)

	enrolls, err := db.EventLogsByType(
		[]string{models.LogTypeEnrollSuccess},
		10,
		0,
		nil,
	)
	require.NoError(t, err)
	require.Len(t, enrolls, 1)
	require.NotNil(t, enrolls[0].CommandID)
	assert.Equal(t, cmd.ID, *enrolls[0].CommandID)

	matches, err := db.EventLogsByType(
		[]string{models.LogTypeMatchSuccess},
		10,
		0,
		nil,
	)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Nil(t, matches[0].CommandID)

	// The unknown type was dropped
	assert.Len(t, correlator.events, 2)
}

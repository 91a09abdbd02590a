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

package database

import (
	"errors"
	"time"

	"github.com/openlatch/doorman/database/models"
	"gorm.io/gorm"
)

// ErrDuplicateCapture is returned when a capture event with an
// already-stored image URL is inserted again. Re-delivery of the same
// capture is expected and callers treat this as a no-op.
var ErrDuplicateCapture = errors.New("duplicate capture url")

// AddEventLog appends an event log row. Rows are never updated or deleted
// once written.
func (d *Database) AddEventLog(
	evt *models.EventLog,
	txn *gorm.DB,
) error {
	if evt.CreatedAt == 0 {
		evt.CreatedAt = time.Now().Unix()
	}
	result := d.txnOrDb(txn).Create(evt)
	if result.Error != nil {
		if evt.URL != nil &&
			errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateCapture
		}
		return result.Error
	}
	return nil
}

// ArchiveRawMessage stores the raw inbound message bytes for an event log
// row in the badger archive
func (d *Database) ArchiveRawMessage(eventID uint, raw []byte) error {
	return d.archive.Put(eventID, raw)
}

// ArchivedPayload retrieves the raw inbound message bytes for an event log
// row from the badger archive
func (d *Database) ArchivedPayload(eventID uint) ([]byte, error) {
	return d.archive.Get(eventID)
}

// EventLogByID returns the event log row with the given id
func (d *Database) EventLogByID(
	eventID uint,
	txn *gorm.DB,
) (*models.EventLog, error) {
	var evt models.EventLog
	result := d.txnOrDb(txn).First(&evt, eventID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrEventLogNotFound
		}
		return nil, result.Error
	}
	return &evt, nil
}

// EventLogsByType returns a page of event logs matching any of the given
// log types, newest first
func (d *Database) EventLogsByType(
	logTypes []string,
	limit int,
	offset int,
	txn *gorm.DB,
) ([]models.EventLog, error) {
	var ret []models.EventLog
	result := d.txnOrDb(txn).
		Where("log_type IN ?", logTypes).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// Captures returns a page of capture events (rows with an image URL),
// newest first
func (d *Database) Captures(
	limit int,
	offset int,
	txn *gorm.DB,
) ([]models.EventLog, error) {
	var ret []models.EventLog
	result := d.txnOrDb(txn).
		Where("url IS NOT NULL").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// RecentOpenCandidates returns the most recent window of events that could
// represent a door opening: servo status events and fingerprint match
// successes. Ordered newest first with ties broken by insertion order.
func (d *Database) RecentOpenCandidates(
	window int,
	txn *gorm.DB,
) ([]models.EventLog, error) {
	var ret []models.EventLog
	result := d.txnOrDb(txn).
		Where(
			"log_type IN ?",
			[]string{models.LogTypeServoStatus, models.LogTypeMatchSuccess},
		).
		Order("created_at DESC, id DESC").
		Limit(window).
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

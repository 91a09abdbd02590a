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
	"gorm.io/gorm/clause"
)

// UpsertFingerprint creates or refreshes the registry entry for a
// device-assigned slot id. Idempotent under duplicate delivery of the same
// enroll success event.
func (d *Database) UpsertFingerprint(
	fp *models.Fingerprint,
	txn *gorm.DB,
) error {
	if fp.CreatedAt == 0 {
		fp.CreatedAt = time.Now().Unix()
	}
	result := d.txnOrDb(txn).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(
				[]string{"user_id", "name", "created_at"},
			),
		}).
		Create(fp)
	return result.Error
}

// DeleteFingerprint removes the registry entry for a slot id. Deleting a
// non-existent entry is a no-op, not an error.
func (d *Database) DeleteFingerprint(
	fingerprintID uint,
	txn *gorm.DB,
) error {
	result := d.txnOrDb(txn).
		Delete(&models.Fingerprint{}, fingerprintID)
	return result.Error
}

// FingerprintByID returns the registry entry for a slot id
func (d *Database) FingerprintByID(
	fingerprintID uint,
	txn *gorm.DB,
) (*models.Fingerprint, error) {
	var fp models.Fingerprint
	result := d.txnOrDb(txn).First(&fp, fingerprintID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrFingerprintNotFound
		}
		return nil, result.Error
	}
	return &fp, nil
}

// FingerprintCount returns the number of live registry entries
func (d *Database) FingerprintCount(txn *gorm.DB) (int64, error) {
	var count int64
	result := d.txnOrDb(txn).
		Model(&models.Fingerprint{}).
		Count(&count)
	if result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}

// FingerprintsByUser returns a page of registry entries owned by the given
// user, newest first
func (d *Database) FingerprintsByUser(
	userID uint,
	limit int,
	offset int,
	txn *gorm.DB,
) ([]models.Fingerprint, error) {
	var ret []models.Fingerprint
	result := d.txnOrDb(txn).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

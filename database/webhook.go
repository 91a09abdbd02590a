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

// SetWebhook registers or replaces a user's single notification endpoint
func (d *Database) SetWebhook(
	userID uint,
	url string,
	txn *gorm.DB,
) error {
	result := d.txnOrDb(txn).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"url", "created_at"}),
		}).
		Create(&models.Webhook{
			UserID:    userID,
			URL:       url,
			CreatedAt: time.Now().Unix(),
		})
	return result.Error
}

// DeleteWebhook removes a user's notification endpoint. Removing a
// non-existent endpoint is a no-op.
func (d *Database) DeleteWebhook(userID uint, txn *gorm.DB) error {
	result := d.txnOrDb(txn).
		Where("user_id = ?", userID).
		Delete(&models.Webhook{})
	return result.Error
}

// WebhookByUser returns the notification endpoint for a user
func (d *Database) WebhookByUser(
	userID uint,
	txn *gorm.DB,
) (*models.Webhook, error) {
	var hook models.Webhook
	result := d.txnOrDb(txn).
		Where("user_id = ?", userID).
		First(&hook)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrWebhookNotFound
		}
		return nil, result.Error
	}
	return &hook, nil
}

// Webhooks returns all registered notification endpoints
func (d *Database) Webhooks(txn *gorm.DB) ([]models.Webhook, error) {
	var ret []models.Webhook
	result := d.txnOrDb(txn).Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

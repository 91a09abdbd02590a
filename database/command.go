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
	"fmt"
	"time"

	"github.com/openlatch/doorman/database/models"
	"gorm.io/gorm"
)

// CreateCommand inserts a new command row in the pending state and populates
// its id, which callers embed in the outbound payload as the correlation
// token before publishing.
func (d *Database) CreateCommand(
	cmd *models.Command,
	txn *gorm.DB,
) error {
	if cmd.Status == "" {
		cmd.Status = models.CommandStatusPending
	}
	if cmd.CreatedAt == 0 {
		cmd.CreatedAt = time.Now().Unix()
	}
	result := d.txnOrDb(txn).Create(cmd)
	return result.Error
}

// FinalizeCommand records the delivery outcome of a pending command. The
// update is conditional on the row still being pending, so repeated calls
// and races between finalizers are no-ops after the first transition.
func (d *Database) FinalizeCommand(
	commandID uint,
	status string,
	payload string,
	note string,
	txn *gorm.DB,
) error {
	if status != models.CommandStatusSent &&
		status != models.CommandStatusError {
		return fmt.Errorf("invalid finalize status: %q", status)
	}
	result := d.txnOrDb(txn).Model(&models.Command{}).
		Where("id = ? AND status = ?", commandID, models.CommandStatusPending).
		Updates(map[string]any{
			"status":  status,
			"payload": payload,
			"note":    note,
		})
	return result.Error
}

// CommandByID returns the command with the given id
func (d *Database) CommandByID(
	commandID uint,
	txn *gorm.DB,
) (*models.Command, error) {
	var cmd models.Command
	result := d.txnOrDb(txn).First(&cmd, commandID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrCommandNotFound
		}
		return nil, result.Error
	}
	return &cmd, nil
}

// CommandsByUser returns a page of commands issued by the given user,
// newest first
func (d *Database) CommandsByUser(
	userID uint,
	limit int,
	offset int,
	txn *gorm.DB,
) ([]models.Command, error) {
	var ret []models.Command
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

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

// CreateUser inserts a new user row. Account credentials live with the
// surrounding application; this table only addresses people for
// notifications and mail.
func (d *Database) CreateUser(
	user *models.User,
	txn *gorm.DB,
) error {
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().Unix()
	}
	result := d.txnOrDb(txn).Create(user)
	return result.Error
}

// UserByID returns the user with the given id
func (d *Database) UserByID(
	userID uint,
	txn *gorm.DB,
) (*models.User, error) {
	var user models.User
	result := d.txnOrDb(txn).First(&user, userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

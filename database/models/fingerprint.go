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

package models

import "errors"

var ErrFingerprintNotFound = errors.New("fingerprint not found")

// Fingerprint is one enrolled biometric slot. The id is assigned by the
// device sensor, not by the database, so it is written explicitly on create.
// Rows are created or refreshed only from enroll.success events and removed
// only from delete.success events.
type Fingerprint struct {
	ID        uint `gorm:"primarykey;autoIncrement:false"`
	UserID    uint `gorm:"index"`
	User      *User
	Name      string `gorm:"size:64"`
	CreatedAt int64  // epoch seconds
}

func (Fingerprint) TableName() string {
	return "fingerprint"
}

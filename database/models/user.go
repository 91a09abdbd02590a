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

var ErrUserNotFound = errors.New("user not found")

// User holds the subset of account data the correlation engine needs to
// address people: a display name for message bodies and an email address
// for the mail collaborator. Credential and session state belong to the
// surrounding application.
type User struct {
	ID        uint   `gorm:"primarykey"`
	Username  string `gorm:"uniqueIndex;size:64"`
	Email     string `gorm:"uniqueIndex;size:255"`
	CreatedAt int64  // epoch seconds
}

func (User) TableName() string {
	return "user"
}

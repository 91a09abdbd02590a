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

var ErrCommandNotFound = errors.New("command not found")

// Command types understood by the device fleet
const (
	CommandTypeServoOpen         = "servo.open"
	CommandTypeServoClose        = "servo.close"
	CommandTypeFingerprintEnroll = "fingerprint.enroll"
	CommandTypeFingerprintDelete = "fingerprint.delete"
	CommandTypeLcdSet            = "lcd.set"
)

// Command delivery states. A command is created as pending, then transitions
// exactly once to sent or error. It never reverts.
const (
	CommandStatusPending = "pending"
	CommandStatusSent    = "sent"
	CommandStatusError   = "error"
)

// Command is a device instruction issued by the dispatcher and tracked to
// completion. The row id doubles as the correlation token embedded in the
// outbound payload so the device can reference it in its responses.
type Command struct {
	ID          uint   `gorm:"primarykey"`
	CreatedAt   int64  `gorm:"index"` // epoch seconds
	UserID      uint   `gorm:"index"`
	CommandType string `gorm:"index;size:64"`
	Topic       string `gorm:"size:255"`
	Payload     string
	Status      string `gorm:"index;size:16"`
	Note        string
}

func (Command) TableName() string {
	return "command"
}

// Finalized returns true once the command has left the pending state
func (c *Command) Finalized() bool {
	return c.Status == CommandStatusSent || c.Status == CommandStatusError
}

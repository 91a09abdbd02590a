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

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrEventLogNotFound = errors.New("event log not found")

	// ErrAmbiguousReference is returned when an event references both a
	// command and a prior event. An event traces to exactly one of the two.
	ErrAmbiguousReference = errors.New(
		"event log references both a command and a related log",
	)
)

// Log types reported by the device
const (
	LogTypeCapture       = "camera.capture"
	LogTypeServoStatus   = "servo.status"
	LogTypeMatchSuccess  = "match.success"
	LogTypeMatchFail     = "match.fail"
	LogTypeEnrollSuccess = "enroll.success"
	LogTypeDeleteSuccess = "delete.success"
)

// EventLog is an append-only record of an inbound device report. Rows are
// never updated or deleted once written. CommandID links an event to the
// command it responds to; RelatedLogID links it to a prior event it
// elaborates. At most one of the two may be set.
type EventLog struct {
	ID           uint   `gorm:"primarykey"`
	CreatedAt    int64  `gorm:"index"` // epoch seconds
	LogType      string `gorm:"index;size:64"`
	Description  string
	Payload      string
	Topic        string  `gorm:"size:255"`
	URL          *string `gorm:"uniqueIndex;size:512"` // capture image URL, unique when set
	CommandID    *uint   `gorm:"index"`
	Command      *Command `gorm:"constraint:OnDelete:SET NULL"`
	RelatedLogID *uint    `gorm:"index"`
	RelatedLog   *EventLog `gorm:"foreignKey:RelatedLogID;constraint:OnDelete:SET NULL"`
}

func (EventLog) TableName() string {
	return "event_log"
}

// BeforeCreate enforces the single-reference invariant at the storage layer
func (e *EventLog) BeforeCreate(_ *gorm.DB) error {
	if e.CommandID != nil && e.RelatedLogID != nil {
		return ErrAmbiguousReference
	}
	return nil
}

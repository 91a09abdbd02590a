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

var ErrWebhookNotFound = errors.New("webhook not found")

// Webhook is a user-configured HTTP endpoint that receives push
// notifications. Each user has at most one.
type Webhook struct {
	ID        uint   `gorm:"primarykey"`
	UserID    uint   `gorm:"uniqueIndex"`
	URL       string `gorm:"size:512"`
	CreatedAt int64  // epoch seconds
}

func (Webhook) TableName() string {
	return "webhook"
}

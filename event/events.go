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

package event

const (
	// CommandSubmittedEventType is emitted after a submitted command has
	// been finalized (sent or error)
	CommandSubmittedEventType EventType = "command.submitted"
	// EventIngestedEventType is emitted after an inbound device message has
	// been persisted and correlated
	EventIngestedEventType EventType = "event.ingested"
	// NotificationEventType is emitted after a webhook delivery attempt
	// completes, successfully or not
	NotificationEventType EventType = "notification.delivered"
)

// CommandSubmittedEvent reports the outcome of a command submission
type CommandSubmittedEvent struct {
	CommandID   uint
	UserID      uint
	CommandType string
	Status      string
}

// EventIngestedEvent reports a persisted inbound device message
type EventIngestedEvent struct {
	EventID uint
	LogType string
	Topic   string
}

// NotificationEvent reports a webhook delivery outcome
type NotificationEvent struct {
	URL        string
	OK         bool
	StatusCode int
}

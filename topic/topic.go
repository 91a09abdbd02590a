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

// Package topic builds the hierarchical MQTT topic names shared with the
// device firmware. All topics live under a configurable prefix, normalized
// to a single leading slash with no trailing slash.
package topic

import "strings"

// Device module sub-topics. Each module has a command topic the controller
// publishes to and a log topic the device reports on.
const (
	ModuleServo       = "servo"
	ModuleFingerprint = "fingerprint"
	ModuleLcd         = "lcd"

	subTopicCommand = "command"
	subTopicLog     = "log"

	// The camera publishes captures on a flat sub-topic rather than a
	// module command/log pair
	captureSubTopic = "camera-captures"
)

type Builder struct {
	prefix string
}

// NewBuilder creates a topic builder for the given prefix. The prefix is
// normalized the same way the firmware normalizes it, so both sides agree
// on the exact topic strings.
func NewBuilder(prefix string) *Builder {
	prefix = strings.TrimSpace(prefix)
	prefix = "/" + strings.Trim(prefix, "/")
	return &Builder{prefix: prefix}
}

// Join appends path parts to the prefix, dropping empty parts
func (b *Builder) Join(parts ...string) string {
	clean := make([]string, 0, len(parts)+1)
	clean = append(clean, b.prefix)
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		clean = append(clean, p)
	}
	return strings.Join(clean, "/")
}

// Command returns the command topic for a device module
func (b *Builder) Command(module string) string {
	return b.Join(module, subTopicCommand)
}

// Log returns the log topic for a device module
func (b *Builder) Log(module string) string {
	return b.Join(module, subTopicLog)
}

// Capture returns the camera capture feed topic
func (b *Builder) Capture() string {
	return b.Join(captureSubTopic)
}

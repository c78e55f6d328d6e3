// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package detection

import (
	"time"

	"github.com/santek/eink-go/internal/syncutil"
)

type cacheEntry struct {
	timestamp time.Time
	devices   []DeviceInfo
}

var cache = struct {
	mu    syncutil.RWMutex
	entry *cacheEntry
}{}

func getCached(ttl time.Duration) ([]DeviceInfo, bool) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	if cache.entry == nil || time.Since(cache.entry.timestamp) > ttl {
		return nil, false
	}
	devices := make([]DeviceInfo, len(cache.entry.devices))
	copy(devices, cache.entry.devices)
	return devices, true
}

func setCached(devices []DeviceInfo) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	devicesCopy := make([]DeviceInfo, len(devices))
	copy(devicesCopy, devices)
	cache.entry = &cacheEntry{devices: devicesCopy, timestamp: time.Now()}
}

func clearCache() {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.entry = nil
}

// ClearDetectionCache discards any cached detection result, forcing the
// next DetectRCS380 call to re-scan the USB bus.
func ClearDetectionCache() { clearCache() }

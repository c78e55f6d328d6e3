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

package eink

import (
	"context"
	"testing"
	"time"
)

func TestRetryWithConfigSucceedsAfterRetries(t *testing.T) {
	t.Parallel()
	attempts := 0
	cfg := &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
		RetryTimeout:      time.Second,
	}

	err := RetryWithConfig(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return ErrUSBReadFailed
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryWithConfig returned %v, want nil", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryWithConfigStopsOnNonRetryable(t *testing.T) {
	t.Parallel()
	attempts := 0
	cfg := DefaultRetryConfig()

	err := RetryWithConfig(context.Background(), cfg, func() error {
		attempts++
		return ErrSessionClosed
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (non-retryable should not retry)", attempts)
	}
}

func TestRetryWithConfigZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()
	attempts := 0
	cfg := &RetryConfig{MaxAttempts: 0}

	_ = RetryWithConfig(context.Background(), cfg, func() error {
		attempts++
		return nil
	})
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

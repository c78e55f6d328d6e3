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
	"os"
	"testing"
)

func TestSessionLogLifecycle(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(wd) }()

	path, err := InitSessionLog()
	if err != nil {
		t.Fatalf("InitSessionLog: %v", err)
	}
	if GetSessionLogPath() != path {
		t.Fatalf("GetSessionLogPath() = %q, want %q", GetSessionLogPath(), path)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("session log file missing: %v", statErr)
	}

	Debugf("test entry %d", 1)

	if err := CloseSessionLog(); err != nil {
		t.Fatalf("CloseSessionLog: %v", err)
	}
	if GetSessionLogPath() != "" {
		t.Fatal("GetSessionLogPath() should be empty after close")
	}
}

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

import "testing"

func TestSetDebugEnabled(t *testing.T) {
	orig := debugEnabled
	defer SetDebugEnabled(orig)

	SetDebugEnabled(true)
	if !debugEnabled {
		t.Fatal("SetDebugEnabled(true) did not set debugEnabled")
	}
	SetDebugEnabled(false)
	if debugEnabled {
		t.Fatal("SetDebugEnabled(false) did not clear debugEnabled")
	}
}

func TestDebugfDoesNotPanicWithoutSessionLog(t *testing.T) {
	Debugf("block %d/%d", 1, 5)
	Debugln("refresh complete")
}

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

package frame

import (
	"bytes"
	"testing"
)

func TestBuildFrameRoundTrips(t *testing.T) {
	t.Parallel()
	payload := []byte{0xD6, 0x2A, 0x01}
	f := Build(payload)

	want := []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x03, 0x00}
	if !bytes.Equal(f[:7], want) {
		t.Fatalf("header = % X, want % X", f[:7], want)
	}
	if !bytes.Equal(f[8:11], payload) {
		t.Fatalf("payload = % X, want % X", f[8:11], payload)
	}
	loc, _, ok := Scan(f)
	if !ok || loc.IsAck {
		t.Fatalf("Scan did not locate the built frame: %+v ok=%v", loc, ok)
	}
	if !bytes.Equal(loc.Payload, payload) {
		t.Fatalf("round-tripped payload = % X, want % X", loc.Payload, payload)
	}
}

func TestScanAck(t *testing.T) {
	t.Parallel()
	loc, _, ok := Scan(AckFrame)
	if !ok || !loc.IsAck {
		t.Fatalf("expected ACK, got %+v ok=%v", loc, ok)
	}
}

func TestScanSkipsGarbage(t *testing.T) {
	t.Parallel()
	garbage := []byte{0x11, 0x22, 0x33}
	buf := append(append([]byte{}, garbage...), AckFrame...)

	loc, skip, ok := Scan(buf)
	if !ok || !loc.IsAck {
		t.Fatalf("expected ACK after garbage, got %+v ok=%v", loc, ok)
	}
	if skip != len(garbage) {
		t.Fatalf("skip = %d, want %d", skip, len(garbage))
	}
}

func TestScanIncompleteFrame(t *testing.T) {
	t.Parallel()
	full := Build([]byte{0xD6, 0x20})
	_, _, ok := Scan(full[:len(full)-1])
	if ok {
		t.Fatal("Scan should not report completion for a truncated frame")
	}
}

func TestScanBadDataChecksum(t *testing.T) {
	t.Parallel()
	full := Build([]byte{0xD6, 0x20})
	full[len(full)-2] ^= 0xFF // corrupt the data checksum
	_, skip, ok := Scan(full)
	if ok {
		t.Fatal("Scan should reject a frame with a bad data checksum")
	}
	if skip == 0 {
		t.Fatal("Scan should advance past a bad frame header")
	}
}

func FuzzScan(f *testing.F) {
	f.Add(AckFrame)
	f.Add(Build([]byte{0xD6, 0x2A, 0x01}))
	f.Add([]byte{})
	f.Add([]byte{0x00, 0x00, 0xFF})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, buf []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Scan panicked on %v: %v", buf, r)
			}
		}()
		Scan(buf)
	})
}

func TestBufferPoolSizes(t *testing.T) {
	t.Parallel()
	for _, size := range []int{1, SmallBufferSize, SmallBufferSize + 1, FrameBufferSize, LargeBufferSize, LargeBufferSize + 1} {
		buf := GetBuffer(size)
		if len(buf) != size {
			t.Fatalf("GetBuffer(%d) len = %d", size, len(buf))
		}
		PutBuffer(buf)
	}
}

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

package protocol

import (
	"errors"
	"testing"
)

func TestParseDeviceInfo(t *testing.T) {
	t.Parallel()
	data := []byte{
		0xA0, 0x07, 0x00, 0x07, 0x08, 0x00, 0x80, 0x01, 0x28,
		0xC0, 0x05, '1', '2', '3', '4', '5',
	}

	info, err := ParseDeviceInfo(data)
	if err != nil {
		t.Fatalf("ParseDeviceInfo: %v", err)
	}

	if info.Width != 296 {
		t.Errorf("Width = %d, want 296", info.Width)
	}
	if info.Height != 128 {
		t.Errorf("Height = %d, want 128", info.Height)
	}
	if info.BitsPerPixel != 2 {
		t.Errorf("BitsPerPixel = %d, want 2", info.BitsPerPixel)
	}
	if info.RowsPerBlock != 8 {
		t.Errorf("RowsPerBlock = %d, want 8", info.RowsPerBlock)
	}
	if info.SerialNumber != "12345" {
		t.Errorf("SerialNumber = %q, want %q", info.SerialNumber, "12345")
	}
	if !info.Rotated() {
		t.Error("Rotated() = false, want true")
	}
	if got := info.FbWidth(); got != 128 {
		t.Errorf("FbWidth() = %d, want 128", got)
	}
	if got := info.FbHeight(); got != 296 {
		t.Errorf("FbHeight() = %d, want 296", got)
	}
	if got := info.FbBytesPerRow(); got != 32 {
		t.Errorf("FbBytesPerRow() = %d, want 32", got)
	}
	if got := info.FbTotalBytes(); got != 9472 {
		t.Errorf("FbTotalBytes() = %d, want 9472", got)
	}
	if got := info.NumBlocks(); got != 5 {
		t.Errorf("NumBlocks() = %d, want 5", got)
	}
	wantSizes := []int{2000, 2000, 2000, 2000, 1472}
	gotSizes := info.BlockSizes()
	if len(gotSizes) != len(wantSizes) {
		t.Fatalf("BlockSizes() = %v, want %v", gotSizes, wantSizes)
	}
	for i, want := range wantSizes {
		if gotSizes[i] != want {
			t.Errorf("BlockSizes()[%d] = %d, want %d", i, gotSizes[i], want)
		}
	}
}

func TestParseDeviceInfoMissingA0Tag(t *testing.T) {
	t.Parallel()
	_, err := ParseDeviceInfo([]byte{0xC0, 0x02, 'a', 'b'})
	if !errors.Is(err, ErrMissingA0Tag) {
		t.Fatalf("expected errors.Is(err, ErrMissingA0Tag), got %v", err)
	}
}

func TestParseDeviceInfoUnknownColorMode(t *testing.T) {
	t.Parallel()
	data := []byte{0xA0, 0x07, 0x00, 0xFF, 0x08, 0x00, 0x80, 0x01, 0x28}
	_, err := ParseDeviceInfo(data)
	if !errors.Is(err, ErrUnknownColorMode) {
		t.Fatalf("expected errors.Is(err, ErrUnknownColorMode), got %v", err)
	}
}

func TestParseDeviceInfoLastDuplicateWins(t *testing.T) {
	t.Parallel()
	data := []byte{
		0xC0, 0x01, 'x',
		0xA0, 0x07, 0x00, 0x01, 0x08, 0x00, 0x80, 0x01, 0x28,
		0xC0, 0x03, 'n', 'e', 'w',
	}
	info, err := ParseDeviceInfo(data)
	if err != nil {
		t.Fatalf("ParseDeviceInfo: %v", err)
	}
	if info.SerialNumber != "new" {
		t.Errorf("SerialNumber = %q, want %q (last duplicate should win)", info.SerialNumber, "new")
	}
}

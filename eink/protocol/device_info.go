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
	"fmt"
)

// Sentinel errors for the §7 EncoderInput kind: a malformed device
// descriptor fails the session at connect time.
var (
	ErrMissingA0Tag     = errors.New("device info missing A0 tag")
	ErrUnknownColorMode = errors.New("unknown color mode")
)

// DeviceInfo is the descriptor the card returns at session start.
type DeviceInfo struct {
	Width         int
	Height        int
	BitsPerPixel  int
	RowsPerBlock  int
	SerialNumber  string
	C1            []byte
	Raw           []byte
}

// NumColors returns the palette size implied by BitsPerPixel.
func (d DeviceInfo) NumColors() int { return 1 << d.BitsPerPixel }

// PixelsPerByte returns how many palette indices are packed into one byte.
func (d DeviceInfo) PixelsPerByte() int { return 8 / d.BitsPerPixel }

// Rotated reports whether the framebuffer is rotated 90° clockwise
// relative to the logical (width, height) orientation. This holds for
// exactly the 296x128 panel in this device family.
func (d DeviceInfo) Rotated() bool { return d.Width == 296 && d.Height == 128 }

// FbWidth returns the framebuffer width after accounting for rotation.
func (d DeviceInfo) FbWidth() int {
	if d.Rotated() {
		return d.Height
	}
	return d.Width
}

// FbHeight returns the framebuffer height after accounting for rotation.
func (d DeviceInfo) FbHeight() int {
	if d.Rotated() {
		return d.Width
	}
	return d.Height
}

// FbBytesPerRow returns the packed row size in bytes.
func (d DeviceInfo) FbBytesPerRow() int { return d.FbWidth() / d.PixelsPerByte() }

// FbTotalBytes returns the total packed framebuffer size in bytes.
func (d DeviceInfo) FbTotalBytes() int { return d.FbBytesPerRow() * d.FbHeight() }

// maxBlockSize is the largest chunk the upload protocol carries in a
// single block before per-block LZO compression.
const maxBlockSize = 2000

// BlockSizes splits FbTotalBytes into chunks of at most maxBlockSize
// bytes, with the final chunk holding the remainder.
func (d DeviceInfo) BlockSizes() []int {
	total := d.FbTotalBytes()
	var sizes []int
	for total > 0 {
		s := total
		if s > maxBlockSize {
			s = maxBlockSize
		}
		sizes = append(sizes, s)
		total -= s
	}
	return sizes
}

// NumBlocks returns len(BlockSizes()).
func (d DeviceInfo) NumBlocks() int { return len(d.BlockSizes()) }

// colorModeToBPP maps the device-info color_mode byte to bits-per-pixel.
var colorModeToBPP = map[byte]int{
	0x01: 1,
	0x07: 2,
}

// tlv is a parsed tag/length/value record set; last duplicate tag wins.
func parseTLV(data []byte) map[byte][]byte {
	result := make(map[byte][]byte)
	i := 0
	for i < len(data) {
		tag := data[i]
		i++
		if i >= len(data) {
			break
		}
		length := int(data[i])
		i++
		if i+length > len(data) {
			break
		}
		value := make([]byte, length)
		copy(value, data[i:i+length])
		result[tag] = value
		i += length
	}
	return result
}

// ParseDeviceInfo decodes the 00D1 response body into a DeviceInfo.
func ParseDeviceInfo(data []byte) (DeviceInfo, error) {
	tlv := parseTLV(data)

	a0, ok := tlv[0xA0]
	if !ok || len(a0) < 7 {
		return DeviceInfo{}, fmt.Errorf("protocol: missing or short A0 tag in device info: %w", ErrMissingA0Tag)
	}

	colorMode := a0[1]
	rowsPerBlock := int(a0[2])
	heightRaw := int(a0[3])<<8 | int(a0[4])
	width := int(a0[5])<<8 | int(a0[6])

	bpp, ok := colorModeToBPP[colorMode]
	if !ok {
		return DeviceInfo{}, fmt.Errorf("protocol: unknown color mode 0x%02X: %w", colorMode, ErrUnknownColorMode)
	}

	info := DeviceInfo{
		Width:        width,
		Height:       heightRaw,
		BitsPerPixel: bpp,
		RowsPerBlock: rowsPerBlock,
		Raw:          append([]byte(nil), data...),
	}

	if c0, ok := tlv[0xC0]; ok {
		info.SerialNumber = string(c0)
	}
	if c1, ok := tlv[0xC1]; ok {
		info.C1 = c1
	}

	return info, nil
}

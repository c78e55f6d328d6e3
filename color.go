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

// Package eink drives a Santek EZ Sign battery-less NFC e-paper price tag:
// authenticating, describing, encoding, and uploading a raster image over
// an RC-S380 (or libnfc) transport, and triggering a refresh.
package eink

import "fmt"

// Color is an 8-bit-per-channel RGB triple.
type Color struct {
	R, G, B byte
}

// Palette is an ordered set of Colors, indexed 0..N-1.
type Palette []Color

// Palette4Color is the fixed 4-color ordering this device family uses:
// 0 black, 1 white, 2 yellow, 3 red.
var Palette4Color = Palette{
	{R: 0, G: 0, B: 0},
	{R: 255, G: 255, B: 255},
	{R: 255, G: 255, B: 0},
	{R: 255, G: 0, B: 0},
}

// Palette2Color is the 2-color black/white subset.
var Palette2Color = Palette{
	{R: 0, G: 0, B: 0},
	{R: 255, G: 255, B: 255},
}

// PixelGrid is a rectangular matrix of palette indices, addressed
// [row][col]. Every entry must be in 0..N-1 for the palette it was built
// against.
type PixelGrid [][]uint8

// NewPixelGrid allocates a w-wide, h-tall grid with all entries zeroed.
func NewPixelGrid(w, h int) PixelGrid {
	g := make(PixelGrid, h)
	for r := range g {
		g[r] = make([]uint8, w)
	}
	return g
}

// Width returns the grid's column count, or 0 for an empty grid.
func (g PixelGrid) Width() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Height returns the grid's row count.
func (g PixelGrid) Height() int { return len(g) }

// Validate checks that every entry is within 0..numColors-1 and that all
// rows share the same width.
func (g PixelGrid) Validate(numColors int) error {
	if len(g) == 0 {
		return nil
	}
	w := g.Width()
	for r, row := range g {
		if len(row) != w {
			return fmt.Errorf("eink: row %d has width %d, want %d", r, len(row), w)
		}
		for c, v := range row {
			if int(v) >= numColors {
				return fmt.Errorf("eink: pixel (%d,%d) has index %d, out of range for %d colors", r, c, v, numColors)
			}
		}
	}
	return nil
}

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

package dither

import "testing"

var testPalette = Palette{
	{R: 0, G: 0, B: 0},
	{R: 255, G: 255, B: 255},
	{R: 255, G: 255, B: 0},
	{R: 255, G: 0, B: 0},
}

func TestQuantizeNearestPicksClosest(t *testing.T) {
	t.Parallel()
	rgb := []RGB{
		{R: 10, G: 10, B: 10},
		{R: 250, G: 250, B: 250},
		{R: 250, G: 250, B: 10},
		{R: 240, G: 5, B: 5},
	}
	grid := QuantizeNearest(rgb, 4, 1, testPalette)
	want := []uint8{0, 1, 2, 3}
	for i, w := range want {
		if grid[0][i] != w {
			t.Errorf("pixel %d: got %d, want %d", i, grid[0][i], w)
		}
	}
}

func TestQuantizeNearestTieBreaksLowestIndex(t *testing.T) {
	t.Parallel()
	// Pure green (0,255,0) is equidistant from black (0) and yellow (2):
	// 255^2 = 65025 to each, and farther from white and red.
	rgb := []RGB{{R: 0, G: 255, B: 0}}
	grid := QuantizeNearest(rgb, 1, 1, testPalette)
	if grid[0][0] != 0 {
		t.Fatalf("expected tie to break to lowest index 0, got %d", grid[0][0])
	}
}

func TestDitherAtkinsonUniformFieldStaysUniform(t *testing.T) {
	t.Parallel()
	const w, h = 8, 8
	rgb := make([]RGB, w*h)
	for i := range rgb {
		rgb[i] = RGB{R: 255, G: 255, B: 255}
	}
	grid := DitherAtkinson(rgb, w, h, testPalette)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if grid[y][x] != 1 {
				t.Fatalf("pixel (%d,%d) = %d, want 1 (white) for a pure white field", x, y, grid[y][x])
			}
		}
	}
}

func TestDitherAtkinsonDropsTwoEighthsOfError(t *testing.T) {
	t.Parallel()
	// A single gray pixel on an otherwise black canvas: verify the error
	// diffused to neighbors sums to at most 6/8 of the original error by
	// checking no neighbor beyond the six offsets is perturbed.
	const w, h = 4, 4
	rgb := make([]RGB, w*h)
	rgb[0] = RGB{R: 200, G: 200, B: 200}
	grid := DitherAtkinson(rgb, w, h, testPalette)
	// (3,3) is unreachable from (0,0) via the six Atkinson offsets.
	if grid[3][3] != 0 {
		t.Fatalf("pixel (3,3) should be unaffected by diffusion from (0,0), got %d", grid[3][3])
	}
}

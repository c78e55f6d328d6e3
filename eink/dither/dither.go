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

// Package dither quantizes an RGB raster to a small palette, with or
// without Atkinson error diffusion.
package dither

import "math"

// RGB is one source pixel. It is intentionally independent of the root
// package's Color so this package has no import-cycle exposure to it.
type RGB struct {
	R, G, B uint8
}

// Palette is an ordered set of quantization targets; the index of an
// entry is the palette index emitted into the output grid.
type Palette []RGB

// Grid is a quantized raster of palette indices, [height][width].
type Grid [][]uint8

// nearest returns the index of the palette entry closest to (r,g,b) in
// squared Euclidean RGB distance, breaking ties toward the lowest index.
func nearest(r, g, b int, palette Palette) uint8 {
	best := 0
	bestDist := math.MaxInt32
	for i, c := range palette {
		dr := r - int(c.R)
		dg := g - int(c.G)
		db := b - int(c.B)
		dist := dr*dr + dg*dg + db*db
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return uint8(best)
}

// QuantizeNearest maps every pixel to its nearest palette entry with no
// error diffusion.
func QuantizeNearest(rgb []RGB, width, height int, palette Palette) Grid {
	grid := make(Grid, height)
	for y := 0; y < height; y++ {
		row := make([]uint8, width)
		for x := 0; x < width; x++ {
			p := rgb[y*width+x]
			row[x] = nearest(int(p.R), int(p.G), int(p.B), palette)
		}
		grid[y] = row
	}
	return grid
}

// atkinsonOffsets are the six neighbors that receive 1/8 of the
// quantization error each; the remaining 2/8 is dropped. This is the
// defining property of Atkinson dithering and must not be rebalanced to
// sum to 1.
var atkinsonOffsets = [6][2]int{
	{1, 0}, {2, 0},
	{-1, 1}, {0, 1}, {1, 1},
	{0, 2},
}

// DitherAtkinson quantizes rgb to palette with Atkinson error diffusion,
// scanning in raster order (top-to-bottom, left-to-right).
func DitherAtkinson(rgb []RGB, width, height int, palette Palette) Grid {
	errR := make([][]float64, height)
	errG := make([][]float64, height)
	errB := make([][]float64, height)
	for y := 0; y < height; y++ {
		errR[y] = make([]float64, width)
		errG[y] = make([]float64, width)
		errB[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			p := rgb[y*width+x]
			errR[y][x] = float64(p.R)
			errG[y][x] = float64(p.G)
			errB[y][x] = float64(p.B)
		}
	}

	grid := make(Grid, height)
	for y := 0; y < height; y++ {
		grid[y] = make([]uint8, width)
	}

	const coeff = 1.0 / 8.0

	distribute := func(x, y int, er, eg, eb float64) {
		for _, off := range atkinsonOffsets {
			nx, ny := x+off[0], y+off[1]
			if nx >= 0 && nx < width && ny >= 0 && ny < height {
				errR[ny][nx] += er * coeff
				errG[ny][nx] += eg * coeff
				errB[ny][nx] += eb * coeff
			}
		}
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := clamp255(math.Round(errR[y][x]))
			g := clamp255(math.Round(errG[y][x]))
			b := clamp255(math.Round(errB[y][x]))

			idx := nearest(r, g, b, palette)
			grid[y][x] = idx

			chosen := palette[idx]
			er := float64(r) - float64(chosen.R)
			eg := float64(g) - float64(chosen.G)
			eb := float64(b) - float64(chosen.B)

			distribute(x, y, er, eg, eb)
		}
	}

	return grid
}

func clamp255(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return int(v)
}

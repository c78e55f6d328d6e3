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

// Package encoder turns a palette-index grid into the ordered APDU groups
// a Session streams to the card: rotate, bit-pack, split into blocks,
// compress each block with LZO1X-1, and fragment into APDUs carrying at
// most 250 compressed bytes each.
package encoder

import (
	"fmt"

	"github.com/santek/eink-go/eink/protocol"
	"github.com/santek/eink-go/internal/lzo"
)

// maxFragmentData is the largest data payload carried in one image
// fragment APDU.
const maxFragmentData = 250

// Grid is a palette-index raster, [height][width].
type Grid [][]uint8

// PackRow packs one row of bitsPerPixel-wide palette indices into bytes.
// Byte byteIdx covers pixel positions
// (bytesPerRow-1-byteIdx)*ppb + i for i in 0..ppb-1, with pixel i placed
// in bits [i*bpp .. i*bpp+bpp-1] of the byte (LSB-first).
func PackRow(pixels []uint8, bitsPerPixel int) []byte {
	ppb := 8 / bitsPerPixel
	bytesPerRow := len(pixels) / ppb
	out := make([]byte, bytesPerRow)

	for byteIdx := 0; byteIdx < bytesPerRow; byteIdx++ {
		pixelOffset := (bytesPerRow - 1 - byteIdx) * ppb
		var val byte
		for i := 0; i < ppb; i++ {
			val |= pixels[pixelOffset+i] << (i * bitsPerPixel)
		}
		out[byteIdx] = val
	}

	return out
}

// PackPixels packs every row of grid and concatenates them top-to-bottom.
func PackPixels(grid Grid, bitsPerPixel int) []byte {
	var out []byte
	for _, row := range grid {
		out = append(out, PackRow(row, bitsPerPixel)...)
	}
	return out
}

// RotateCW90 rotates grid 90 degrees clockwise: an H x W grid becomes a
// W x H grid, with rot[r][c] = src[H-1-c][r].
func RotateCW90(grid Grid) Grid {
	h := len(grid)
	if h == 0 {
		return Grid{}
	}
	w := len(grid[0])

	rotated := make(Grid, w)
	for r := 0; r < w; r++ {
		row := make([]uint8, h)
		for c := 0; c < h; c++ {
			row[c] = grid[h-1-c][r]
		}
		rotated[r] = row
	}
	return rotated
}

// SplitBlocks slices packed into contiguous chunks of the given sizes, in
// order. The final chunk may be shorter if packed runs out first.
func SplitBlocks(packed []byte, blockSizes []int) [][]byte {
	blocks := make([][]byte, 0, len(blockSizes))
	offset := 0
	for _, size := range blockSizes {
		end := offset + size
		if end > len(packed) {
			end = len(packed)
		}
		blocks = append(blocks, packed[offset:end])
		offset = end
	}
	return blocks
}

// MakeFragments splits compressed into fragments of at most
// maxFragmentData bytes, in order.
func MakeFragments(compressed []byte) [][]byte {
	var fragments [][]byte
	for i := 0; i < len(compressed); i += maxFragmentData {
		end := i + maxFragmentData
		if end > len(compressed) {
			end = len(compressed)
		}
		fragments = append(fragments, compressed[i:end])
	}
	if len(fragments) == 0 {
		fragments = [][]byte{{}}
	}
	return fragments
}

// EncodeImage runs the full pipeline for grid against info: rotate (if
// info.Rotated), pack, split into blocks, compress each block, fragment,
// and wrap every fragment in an image-data APDU. The result is grouped by
// block, in block/fragment order.
func EncodeImage(grid Grid, info protocol.DeviceInfo) ([][]protocol.Apdu, error) {
	effective := grid
	if info.Rotated() {
		effective = RotateCW90(grid)
	}

	packed := PackPixels(effective, info.BitsPerPixel)
	blocks := SplitBlocks(packed, info.BlockSizes())

	groups := make([][]protocol.Apdu, 0, len(blocks))
	for blockNo, block := range blocks {
		compressed := lzo.CompressBlock(block)

		fragments := MakeFragments(compressed)
		group := make([]protocol.Apdu, 0, len(fragments))
		for fragNo, frag := range fragments {
			isFinal := fragNo == len(fragments)-1
			apdu, err := protocol.BuildImageDataAPDU(blockNo, fragNo, frag, isFinal)
			if err != nil {
				return nil, fmt.Errorf("encoder: build fragment %d of block %d: %w", fragNo, blockNo, err)
			}
			group = append(group, apdu)
		}
		groups = append(groups, group)
	}

	return groups, nil
}

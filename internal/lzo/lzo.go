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

// Package lzo wraps LZO1X-1 block compression for the framebuffer encoder.
// The device expects each framebuffer block compressed independently with
// this exact variant; generic stdlib codecs (flate, gzip) are not wire
// compatible. Unlike the original's cgo LZO binding,
// github.com/rasky/go-lzo is pure Go and has no global lzo_init() step to
// guard, so there is no init-failure mode to report here.
package lzo

import (
	goLzo "github.com/rasky/go-lzo"
)

// CompressBlock compresses a single framebuffer block with LZO1X-1. The
// output slice is allocated by go-lzo itself; its length never exceeds
// MaxCompressedSize(len(block)).
func CompressBlock(block []byte) []byte {
	return goLzo.Compress1X(block)
}

// MaxCompressedSize returns the minimum safe output buffer size for an
// input block of the given length, per the LZO1X-1 worst-case bound.
func MaxCompressedSize(inputLen int) int {
	return inputLen + inputLen/16 + 64 + 3
}

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

// Package frame implements the byte-level framing of the Sony RC-S380
// (NFC Port-100) USB command protocol: building outgoing frames, locating
// and validating frames inside an arbitrary scratch buffer, and pooling
// the buffers that the hot send/receive path allocates.
package frame

import "sync"

// AckFrame is the fixed six-byte acknowledgement frame the reader sends
// after every command and that the host must consume and discard.
var AckFrame = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}

// StartSequence is the three-byte prefix every frame (ACK or data) begins
// with. A scan for a frame aligns on this sequence and drops anything
// before it.
var StartSequence = []byte{0x00, 0x00, 0xFF}

// MaxScanBuffer is the safety-reset ceiling on how large the scratch
// buffer may grow while searching for a complete frame without making
// progress.
const MaxScanBuffer = 1024

// LengthChecksum returns the checksum byte for a little-endian two-byte
// length field: (256 - (lenLo+lenHi)) mod 256.
func LengthChecksum(lenLo, lenHi byte) byte {
	return byte((256 - (int(lenLo) + int(lenHi))) & 0xFF)
}

// DataChecksum returns the checksum byte for a frame payload:
// (256 - sum(payload)) mod 256.
func DataChecksum(payload []byte) byte {
	sum := 0
	for _, b := range payload {
		sum += int(b)
	}
	return byte((256 - sum) & 0xFF)
}

// Build constructs a complete extended-length Port-100 frame wrapping
// payload: 00 00 FF FF FF len_lo len_hi len_chk payload... data_chk 00.
func Build(payload []byte) []byte {
	n := len(payload)
	lenLo := byte(n & 0xFF)
	lenHi := byte((n >> 8) & 0xFF)

	out := GetBuffer(8 + n + 2)
	out = out[:0]
	out = append(out, 0x00, 0x00, 0xFF, 0xFF, 0xFF, lenLo, lenHi, LengthChecksum(lenLo, lenHi))
	out = append(out, payload...)
	out = append(out, DataChecksum(payload), 0x00)
	return out
}

// Located describes a frame found inside a scratch buffer.
type Located struct {
	IsAck   bool
	Payload []byte
	// End is the offset one past the end of the located frame within buf.
	End int
}

// Scan looks for either an ACK frame or a complete extended-length data
// frame starting anywhere within buf[0:n]. Garbage before the 00 00 FF
// start sequence is implicitly skipped: Scan reports how many leading
// bytes should be discarded via the returned skip value when no frame
// is found yet, so the caller can compact its scratch buffer.
//
// ok is false when no complete frame is present yet and more bytes must
// be read; skip is how many leading bytes are known garbage and can be
// dropped without losing a potential frame start.
func Scan(buf []byte) (loc Located, skip int, ok bool) {
	n := len(buf)
	start := indexStart(buf)
	if start < 0 {
		// No start sequence at all; everything is garbage except
		// a possible partial match at the very end.
		return Located{}, maxInt(0, n-2), false
	}
	if start > 0 {
		skip = start
		buf = buf[start:]
		n = len(buf)
	}

	if n < 6 {
		return Located{}, skip, false
	}

	if n >= 6 && buf[3] == 0x00 && buf[4] == 0xFF && buf[5] == 0x00 {
		return Located{IsAck: true, End: skip + 6}, skip, true
	}

	// Extended-length data frame: 00 00 FF FF FF len_lo len_hi len_chk.
	if buf[3] != 0xFF || buf[4] != 0xFF {
		// Not a recognized frame header; treat the 00 00 FF as garbage
		// and let the caller re-scan past it.
		return Located{}, skip + 3, false
	}
	if n < 8 {
		return Located{}, skip, false
	}
	lenLo, lenHi, lenChk := buf[5], buf[6], buf[7]
	if LengthChecksum(lenLo, lenHi) != lenChk {
		return Located{}, skip + 3, false
	}
	payloadLen := int(lenLo) | int(lenHi)<<8
	total := 8 + payloadLen + 2
	if n < total {
		return Located{}, skip, false
	}
	payload := buf[8 : 8+payloadLen]
	if DataChecksum(payload) != buf[8+payloadLen] {
		return Located{}, skip + 3, false
	}
	got := make([]byte, payloadLen)
	copy(got, payload)
	return Located{Payload: got, End: skip + total}, skip, true
}

func indexStart(buf []byte) int {
	for i := 0; i+2 < len(buf); i++ {
		if buf[i] == 0x00 && buf[i+1] == 0x00 && buf[i+2] == 0xFF {
			return i
		}
	}
	return -1
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Buffer pooling. Scratch buffers for USB reads and frame assembly are
// reused across commands to keep the RC-S380 hot path allocation-free,
// mirroring how high-throughput frame parsers in this codebase pool their
// scratch buffers instead of allocating per call.

const (
	// SmallBufferSize covers ACK frames and short command payloads.
	SmallBufferSize = 16
	// FrameBufferSize covers a typical extended command/response frame.
	FrameBufferSize = 270
	// LargeBufferSize covers the device-info / refresh responses, which
	// can run close to the 256-byte Le ceiling plus framing overhead.
	LargeBufferSize = 512
)

var pool = struct {
	small sync.Pool
	frame sync.Pool
	large sync.Pool
}{
	small: sync.Pool{New: func() any { b := make([]byte, SmallBufferSize); return &b }},
	frame: sync.Pool{New: func() any { b := make([]byte, FrameBufferSize); return &b }},
	large: sync.Pool{New: func() any { b := make([]byte, LargeBufferSize); return &b }},
}

// GetBuffer returns a buffer of at least size bytes, reused from the pool
// when possible.
func GetBuffer(size int) []byte {
	switch {
	case size <= SmallBufferSize:
		p, _ := pool.small.Get().(*[]byte)
		return (*p)[:size]
	case size <= FrameBufferSize:
		p, _ := pool.frame.Get().(*[]byte)
		return (*p)[:size]
	case size <= LargeBufferSize:
		p, _ := pool.large.Get().(*[]byte)
		return (*p)[:size]
	default:
		return make([]byte, size)
	}
}

// PutBuffer returns buf to the pool it was drawn from, if any.
func PutBuffer(buf []byte) {
	switch cap(buf) {
	case SmallBufferSize:
		full := buf[:SmallBufferSize]
		pool.small.Put(&full)
	case FrameBufferSize:
		full := buf[:FrameBufferSize]
		pool.frame.Put(&full)
	case LargeBufferSize:
		full := buf[:LargeBufferSize]
		pool.large.Put(&full)
	}
}

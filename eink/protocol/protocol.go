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

// Package protocol builds and parses the application-layer APDUs exchanged
// with the e-ink price-tag card: authentication, device-descriptor query,
// framebuffer-fragment upload, refresh, and poll.
package protocol

import "fmt"

// Apdu is an ISO 7816-4 style command: CLA INS P1 P2 [Lc Data] [Le].
type Apdu struct {
	CLA  byte
	INS  byte
	P1   byte
	P2   byte
	Data []byte
	// HasLe is true when Le should be encoded. Le of 256 is wire-encoded
	// as 0x00.
	HasLe bool
	Le    int
}

// Bytes serializes the APDU to its wire form.
func (a Apdu) Bytes() []byte {
	out := make([]byte, 0, 5+len(a.Data)+1)
	out = append(out, a.CLA, a.INS, a.P1, a.P2)
	if len(a.Data) > 0 {
		out = append(out, byte(len(a.Data)))
		out = append(out, a.Data...)
	}
	if a.HasLe {
		if a.Le == 256 {
			out = append(out, 0x00)
		} else {
			out = append(out, byte(a.Le))
		}
	}
	return out
}

// IsPollTolerant reports whether this APDU's INS is one of the two
// commands (refresh, poll) whose non-9000 status word is tolerated rather
// than surfaced as an error.
func (a Apdu) IsPollTolerant() bool {
	return a.INS == 0xD4 || a.INS == 0xDE
}

// BuildAuthAPDU builds the fixed authentication challenge.
func BuildAuthAPDU() Apdu {
	return Apdu{CLA: 0x00, INS: 0x20, P1: 0x00, P2: 0x01, Data: []byte{0x20, 0x09, 0x12, 0x10}}
}

// BuildDeviceInfoAPDU builds the device-descriptor query.
func BuildDeviceInfoAPDU() Apdu {
	return Apdu{CLA: 0x00, INS: 0xD1, P1: 0x00, P2: 0x00, HasLe: true, Le: 256}
}

// BuildImageDataAPDU builds one framebuffer-fragment upload APDU. page is
// always 0 for this device family; it is not exposed as a parameter
// because its semantics on other devices is unspecified.
func BuildImageDataAPDU(blockNo, fragNo int, data []byte, isFinal bool) (Apdu, error) {
	if blockNo < 0 || blockNo > 0xFF {
		return Apdu{}, fmt.Errorf("protocol: block number %d out of range", blockNo)
	}
	if fragNo < 0 || fragNo > 0xFF {
		return Apdu{}, fmt.Errorf("protocol: fragment number %d out of range", fragNo)
	}
	if len(data) > 250 {
		return Apdu{}, fmt.Errorf("protocol: fragment of %d bytes exceeds 250-byte limit", len(data))
	}

	p2 := byte(0x00)
	if isFinal {
		p2 = 0x01
	}

	payload := make([]byte, 0, 2+len(data))
	payload = append(payload, byte(blockNo), byte(fragNo))
	payload = append(payload, data...)

	return Apdu{CLA: 0xF0, INS: 0xD3, P1: 0x00, P2: p2, Data: payload}, nil
}

// BuildRefreshAPDU builds the screen-refresh trigger.
func BuildRefreshAPDU() Apdu {
	return Apdu{CLA: 0xF0, INS: 0xD4, P1: 0x85, P2: 0x80, HasLe: true, Le: 256}
}

// BuildPollAPDU builds the refresh-status poll command.
func BuildPollAPDU() Apdu {
	return Apdu{CLA: 0xF0, INS: 0xDE, P1: 0x00, P2: 0x00, HasLe: true, Le: 1}
}

// IsRefreshComplete reports whether a poll response indicates the refresh
// has finished.
func IsRefreshComplete(response []byte) bool {
	return len(response) > 0 && response[0] == 0x00
}

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

// Package transport defines the capability interface a Session drives:
// open and wait for a card, close, and exchange one APDU. Two concrete
// implementations exist (rcs380, libnfc); this package also provides the
// mock double used by higher-level tests.
package transport

import (
	"context"

	"github.com/santek/eink-go/eink/protocol"
)

// Transport is the three-operation capability set a Session consumes.
// Variants: RC-S380-over-USB (primary) and a thin adaptor over a host NFC
// library (secondary). Owned exclusively by one Session at a time.
type Transport interface {
	// Open blocks until a card is activated, or fails with a
	// TransportOpen-kind error.
	Open(ctx context.Context) error

	// Close idempotently releases the transport. Best-effort: it never
	// returns an error a caller is expected to act on, but the error is
	// still reported for logging.
	Close() error

	// SendAPDU exchanges one APDU and returns the response body with the
	// status word stripped. Fails with a communication error on
	// transport-level failure, or an APDU-status error on a non-9000
	// status word (except for INS 0xD4/0xDE, whose body is always
	// returned regardless of status).
	SendAPDU(ctx context.Context, apdu protocol.Apdu) ([]byte, error)
}

// Type identifies a concrete Transport implementation.
type Type string

const (
	// TypeRCS380 is the primary RC-S380-over-USB transport.
	TypeRCS380 Type = "rcs380"
	// TypeLibNFC is the secondary libnfc-backed transport.
	TypeLibNFC Type = "libnfc"
	// TypeMock is the test double.
	TypeMock Type = "mock"
)

// Typed is implemented by transports that can report their concrete
// type, used by detection and CLI diagnostics.
type Typed interface {
	Type() Type
}

// Factory yields one Transport instance. Exactly one implementation is
// active per Session; the factory is what lets a Session stay agnostic
// of which one.
type Factory func() (Transport, error)

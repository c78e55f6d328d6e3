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

// Package libnfc is the secondary Transport implementation, backed by
// libnfc rather than a direct USB/Port-100 driver. Any libnfc-supported
// ISO14443-A reader (PN532, ACR122U, ...) can drive the tag this way; the
// RC-S380 itself is better served by eink/transport/rcs380, since libnfc's
// own RC-S380 support is comparatively immature. libnfc performs the
// ISO-DEP I-block chaining internally, so this transport is a thin
// request/response shim rather than a protocol implementation.
package libnfc

import (
	"context"
	"fmt"
	"time"

	"github.com/clausecker/nfc"

	eink "github.com/santek/eink-go"
	"github.com/santek/eink-go/eink/protocol"
	"github.com/santek/eink-go/eink/transport"
	"github.com/santek/eink-go/internal/syncutil"
)

const (
	transceiveTimeoutMs = 5000
	rxBufferSize        = 512
)

// Transport implements transport.Transport over a libnfc-supported
// reader. The empty connection string selects libnfc's auto-detected
// default device.
type Transport struct {
	mu     syncutil.Mutex
	conn   string
	dev    *nfc.Device
	opened bool
}

// New creates a libnfc transport bound to conn, libnfc's connection
// string (e.g. "pn532_uart:/dev/ttyUSB0", or "" for auto-detect).
func New(conn string) *Transport {
	return &Transport{conn: conn}
}

// Factory returns a transport.Factory that opens the given libnfc
// connection string, for use with Session.
func Factory(conn string) transport.Factory {
	return func() (transport.Transport, error) { return New(conn), nil }
}

// Type implements transport.Typed.
func (*Transport) Type() transport.Type { return transport.TypeLibNFC }

// Open initializes libnfc, opens the device, and waits for an
// ISO14443-A target to activate.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.opened {
		return nil
	}

	dev, err := nfc.Open(t.conn)
	if err != nil {
		return eink.NewTransportError("Open", t.conn, eink.ErrNoReaderFound, eink.ErrorTypePermanent)
	}

	if err := dev.InitiatorInit(); err != nil {
		_ = dev.Close()
		return eink.NewTransportError("Open", t.conn, eink.ErrNoReaderFound, eink.ErrorTypePermanent)
	}

	modulation := nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr_106}

	deadline := time.Now().Add(30 * time.Second)
	for {
		if err := ctx.Err(); err != nil {
			_ = dev.Close()
			return err
		}
		if time.Now().After(deadline) {
			_ = dev.Close()
			return eink.NewTransportError("Open", t.conn, eink.ErrNoCardDetected, eink.ErrorTypeTransient)
		}

		if _, err := dev.InitiatorSelectPassiveTarget(modulation, nil); err == nil {
			break
		}

		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			_ = dev.Close()
			return ctx.Err()
		}
	}

	t.dev = dev
	t.opened = true
	return nil
}

// Close releases the libnfc device. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.opened {
		return nil
	}
	err := t.dev.Close()
	t.dev = nil
	t.opened = false
	return err
}

// SendAPDU exchanges one APDU via libnfc's InitiatorTransceiveBytes,
// which performs ISO-DEP chaining internally.
func (t *Transport) SendAPDU(ctx context.Context, apdu protocol.Apdu) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.opened {
		return nil, eink.NewTransportError("SendAPDU", t.conn, eink.ErrNoCardDetected, eink.ErrorTypePermanent)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx := apdu.Bytes()
	rx := make([]byte, rxBufferSize)

	n, err := t.dev.InitiatorTransceiveBytes(tx, rx, transceiveTimeoutMs)
	if err != nil {
		return nil, eink.NewTransportError("SendAPDU", t.conn, eink.ErrUSBReadFailed, eink.ErrorTypeTransient)
	}

	if n < 2 {
		if apdu.IsPollTolerant() {
			return []byte{}, nil
		}
		return nil, fmt.Errorf("libnfc: APDU response too short (%d bytes)", n)
	}

	sw1, sw2 := rx[n-2], rx[n-1]
	body := rx[:n-2]

	if sw1 != 0x90 || sw2 != 0x00 {
		if apdu.IsPollTolerant() {
			return body, nil
		}
		return nil, &eink.ApduStatusError{INS: apdu.INS, SW1: sw1, SW2: sw2}
	}

	return body, nil
}

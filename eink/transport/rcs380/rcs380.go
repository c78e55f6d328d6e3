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

// Package rcs380 drives a Sony RC-S380 NFC reader over USB using the
// Port-100 command protocol: framing, command exchange, ISO14443-A
// activation, and ISO-DEP (T=CL) I-block chaining for APDU exchange.
package rcs380

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"

	eink "github.com/santek/eink-go"
	"github.com/santek/eink-go/eink/protocol"
	"github.com/santek/eink-go/eink/transport"
	"github.com/santek/eink-go/internal/frame"
	"github.com/santek/eink-go/internal/syncutil"
)

const (
	vendorID  = gousb.ID(0x054C) // Sony
	productID = gousb.ID(0x06C1) // RC-S380

	bulkTimeout     = 5 * time.Second
	drainTimeout    = 100 * time.Millisecond
	commandDeadline = 5 * time.Second
	activateRetries = 100
	activateBackoff = 200 * time.Millisecond

	miu = 253 // ISO-DEP maximum information unit, outbound direction
)

// inSetProtocolDefaults is the nfcpy-derived default parameter table sent
// at the start of every activation attempt.
var inSetProtocolDefaults = []byte{
	0x00, 0x18, 0x01, 0x01, 0x02, 0x01, 0x03, 0x00,
	0x04, 0x00, 0x05, 0x00, 0x06, 0x00, 0x07, 0x08,
	0x08, 0x00, 0x09, 0x00, 0x0A, 0x00, 0x0B, 0x00,
	0x0C, 0x00, 0x0E, 0x04, 0x0F, 0x00, 0x10, 0x00,
	0x11, 0x00, 0x12, 0x00, 0x13, 0x06,
}

// FirmwareVersion is the [minor, major] pair reported by the reader's
// GetFirmwareVersion command.
type FirmwareVersion struct {
	Minor byte
	Major byte
}

func (v FirmwareVersion) String() string { return fmt.Sprintf("%d.%02d", v.Major, v.Minor) }

// Transport implements transport.Transport over a Sony RC-S380.
type Transport struct {
	mu syncutil.Mutex

	usbCtx *gousb.Context
	dev    *gousb.Device
	intf   *gousb.Interface
	done   func()
	epIn   *gousb.InEndpoint
	epOut  *gousb.OutEndpoint

	firmware FirmwareVersion
	blockNr  byte
	opened   bool

	currentTrace *eink.TraceBuffer // trace buffer for the in-flight command, nil otherwise
}

// traceTX records an outgoing frame on the current command's trace buffer,
// if one is active.
func (t *Transport) traceTX(data []byte, note string) {
	if t.currentTrace != nil {
		t.currentTrace.RecordTX(data, note)
	}
}

// traceRX records an incoming bulk read on the current command's trace
// buffer, if one is active.
func (t *Transport) traceRX(data []byte, note string) {
	if t.currentTrace != nil {
		t.currentTrace.RecordRX(data, note)
	}
}

// traceTimeout records a timed-out bulk read on the current command's
// trace buffer, if one is active.
func (t *Transport) traceTimeout(note string) {
	if t.currentTrace != nil {
		t.currentTrace.RecordTimeout(note)
	}
}

// New creates an unopened RC-S380 transport.
func New() *Transport {
	return &Transport{}
}

// Factory returns a transport.Factory that creates a fresh RC-S380
// transport per call, for use with Session.
func Factory() transport.Factory {
	return func() (transport.Transport, error) { return New(), nil }
}

// Type implements transport.Typed.
func (*Transport) Type() transport.Type { return transport.TypeRCS380 }

// Firmware returns the firmware version read during Open.
func (t *Transport) Firmware() FirmwareVersion { return t.firmware }

// Open claims the USB device, performs the Port-100 handshake, and polls
// for a card until one activates or the retry budget is exhausted.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.opened {
		return nil
	}

	if err := t.usbOpen(); err != nil {
		return err
	}

	if err := t.drainStale(ctx); err != nil {
		t.usbCloseLocked()
		return err
	}

	if err := t.setCommandType(ctx, 1); err != nil {
		t.usbCloseLocked()
		return err
	}

	firmware, err := t.getFirmwareVersion(ctx)
	if err != nil {
		t.usbCloseLocked()
		return err
	}
	t.firmware = firmware
	eink.Debugf("rcs380: firmware %s", firmware)

	if err := t.switchRF(ctx, false); err != nil {
		t.usbCloseLocked()
		return err
	}

	found := false
	for i := 0; i < activateRetries; i++ {
		if err := ctx.Err(); err != nil {
			t.usbCloseLocked()
			return err
		}
		if err := t.switchRF(ctx, true); err != nil {
			t.usbCloseLocked()
			return err
		}
		ok, actErr := t.senseAndActivateTarget(ctx)
		if ok {
			found = true
			break
		}
		if actErr != nil {
			_ = t.switchRF(ctx, false)
			t.usbCloseLocked()
			return actErr
		}
		_ = t.switchRF(ctx, false)
		eink.Debugln("rcs380: no card detected, continuing to poll...")
		select {
		case <-time.After(activateBackoff):
		case <-ctx.Done():
			t.usbCloseLocked()
			return ctx.Err()
		}
	}

	if !found {
		t.usbCloseLocked()
		return eink.NewTransportError("Open", "usb", eink.ErrNoCardDetected, eink.ErrorTypeTransient)
	}

	t.opened = true
	return nil
}

// Close releases the USB device and interface. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usbCloseLocked()
	t.opened = false
	return nil
}

func (t *Transport) usbCloseLocked() {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.done != nil {
		t.done()
		t.done = nil
	}
	if t.dev != nil {
		_ = t.dev.Close()
		t.dev = nil
	}
	if t.usbCtx != nil {
		_ = t.usbCtx.Close()
		t.usbCtx = nil
	}
}

// usbOpen opens the first matching RC-S380, claims interface 0, and
// discovers its two bulk endpoints.
func (t *Transport) usbOpen() error {
	t.usbCtx = gousb.NewContext()

	dev, err := t.usbCtx.OpenDeviceWithVIDPID(vendorID, productID)
	if err != nil {
		_ = t.usbCtx.Close()
		t.usbCtx = nil
		return eink.NewTransportError("Open", "usb", eink.ErrNoReaderFound, eink.ErrorTypePermanent)
	}
	if dev == nil {
		_ = t.usbCtx.Close()
		t.usbCtx = nil
		return eink.NewTransportError("Open", "usb", eink.ErrNoReaderFound, eink.ErrorTypePermanent)
	}
	t.dev = dev

	_ = dev.SetAutoDetach(true)

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		_ = dev.Close()
		t.dev = nil
		_ = t.usbCtx.Close()
		t.usbCtx = nil
		return eink.NewTransportError("Open", "usb", eink.ErrUSBClaimFailed, eink.ErrorTypePermanent)
	}
	t.intf = intf
	t.done = done

	for _, epDesc := range intf.Setting.Endpoints {
		if epDesc.Direction == gousb.EndpointDirectionIn {
			ep, epErr := intf.InEndpoint(epDesc.Number)
			if epErr != nil {
				return fmt.Errorf("rcs380: open IN endpoint: %w", epErr)
			}
			t.epIn = ep
		} else {
			ep, epErr := intf.OutEndpoint(epDesc.Number)
			if epErr != nil {
				return fmt.Errorf("rcs380: open OUT endpoint: %w", epErr)
			}
			t.epOut = ep
		}
	}
	if t.epIn == nil || t.epOut == nil {
		return eink.NewTransportError("Open", "usb", eink.ErrUSBClaimFailed, eink.ErrorTypePermanent)
	}

	return nil
}

func (t *Transport) usbWrite(data []byte) error {
	_, err := t.epOut.Write(data)
	if err != nil {
		return eink.NewUSBWriteError("usbWrite", "usb")
	}
	return nil
}

// usbRead performs one bulk read bounded by timeout. The read runs on its
// own goroutine because gousb endpoints do not accept a context directly;
// on timeout the goroutine's result is discarded when it eventually
// arrives.
func (t *Transport) usbRead(timeout time.Duration) ([]byte, error) {
	buf := frame.GetBuffer(frame.LargeBufferSize)
	defer frame.PutBuffer(buf)

	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := t.epIn.Read(buf)
		ch <- result{n, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, eink.NewUSBReadError("usbRead", "usb")
		}
		out := make([]byte, r.n)
		copy(out, buf[:r.n])
		return out, nil
	case <-time.After(timeout):
		return nil, eink.NewUSBTimeoutError("usbRead", "usb")
	}
}

// drainStale discards any frames left over from a previous session.
func (t *Transport) drainStale(ctx context.Context) error {
	if err := t.usbWrite(frame.AckFrame); err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := t.usbRead(drainTimeout); err != nil {
			return nil
		}
	}
}

// sendCommand wraps a Port-100 command in a frame, writes it, and scans
// incoming bulk reads until the matching response frame is located or the
// per-command deadline elapses. ACK frames are consumed and ignored.
func (t *Transport) sendCommand(ctx context.Context, cmdCode byte, cmdData []byte) ([]byte, error) {
	payload := make([]byte, 0, 2+len(cmdData))
	payload = append(payload, 0xD6, cmdCode)
	payload = append(payload, cmdData...)

	t.currentTrace = eink.NewTraceBuffer("RC-S380", "usb", 16)
	defer func() { t.currentTrace = nil }()

	note := fmt.Sprintf("cmd 0x%02X", cmdCode)
	outFrame := frame.Build(payload)
	defer frame.PutBuffer(outFrame)
	t.traceTX(outFrame, note)
	if err := t.usbWrite(outFrame); err != nil {
		return nil, t.currentTrace.WrapError(err)
	}

	var buf []byte
	deadline := time.Now().Add(commandDeadline)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		raw, err := t.usbRead(500 * time.Millisecond)
		if err == nil {
			t.traceRX(raw, note)
			buf = append(buf, raw...)
		} else {
			t.traceTimeout(note)
		}

		for len(buf) >= 6 {
			loc, skip, ok := frame.Scan(buf)
			if !ok {
				if skip > 0 {
					buf = buf[skip:]
				}
				if len(buf) > frame.MaxScanBuffer {
					buf = nil
				}
				break
			}
			buf = buf[loc.End:]

			if loc.IsAck {
				continue
			}
			if len(loc.Payload) >= 2 && loc.Payload[0] == 0xD7 && loc.Payload[1] == cmdCode+1 {
				return loc.Payload[2:], nil
			}
		}
	}

	t.traceTimeout(note + " deadline exceeded")
	return nil, t.currentTrace.WrapError(eink.NewUSBTimeoutError("sendCommand", "usb"))
}

func (t *Transport) setCommandType(ctx context.Context, typ byte) error {
	data, err := t.sendCommand(ctx, 0x2A, []byte{typ})
	if err != nil {
		return err
	}
	if len(data) > 0 && data[0] != 0 {
		return eink.NewTransportError("setCommandType", "usb", eink.ErrUnexpectedReply, eink.ErrorTypePermanent)
	}
	return nil
}

func (t *Transport) getFirmwareVersion(ctx context.Context) (FirmwareVersion, error) {
	data, err := t.sendCommand(ctx, 0x20, nil)
	if err != nil {
		return FirmwareVersion{}, err
	}
	if len(data) < 2 {
		return FirmwareVersion{}, eink.NewFrameCorruptedError("getFirmwareVersion", "usb")
	}
	return FirmwareVersion{Minor: data[0], Major: data[1]}, nil
}

func (t *Transport) switchRF(ctx context.Context, on bool) error {
	v := byte(0)
	if on {
		v = 1
	}
	data, err := t.sendCommand(ctx, 0x06, []byte{v})
	if err != nil {
		return err
	}
	if len(data) > 0 && data[0] != 0 {
		return eink.NewTransportError("switchRF", "usb", eink.ErrUnexpectedReply, eink.ErrorTypePermanent)
	}
	return nil
}

func (t *Transport) inSetRF(ctx context.Context, settings []byte) error {
	data, err := t.sendCommand(ctx, 0x00, settings)
	if err != nil {
		return err
	}
	if len(data) > 0 && data[0] != 0 {
		return eink.NewTransportError("inSetRF", "usb", eink.ErrUnexpectedReply, eink.ErrorTypePermanent)
	}
	return nil
}

func (t *Transport) inSetProtocol(ctx context.Context, params []byte) error {
	if len(params) == 0 {
		return nil
	}
	data, err := t.sendCommand(ctx, 0x02, params)
	if err != nil {
		return err
	}
	if len(data) > 0 && data[0] != 0 {
		return eink.NewTransportError("inSetProtocol", "usb", eink.ErrUnexpectedReply, eink.ErrorTypePermanent)
	}
	return nil
}

// inCommRF exchanges one RF-layer frame with the card. timeout is the
// caller's desired wait in milliseconds; the device wants it encoded in
// 1/10ms units, capped at 0xFFFF.
func (t *Transport) inCommRF(ctx context.Context, data []byte, timeoutMs int) ([]byte, error) {
	tenths := (timeoutMs + 1) * 10
	if tenths > 0xFFFF {
		tenths = 0xFFFF
	}

	cmdData := make([]byte, 0, 2+len(data))
	cmdData = append(cmdData, byte(tenths&0xFF), byte((tenths>>8)&0xFF))
	cmdData = append(cmdData, data...)

	result, err := t.sendCommand(ctx, 0x04, cmdData)
	if err != nil {
		return nil, err
	}
	if len(result) >= 4 && (result[0] != 0 || result[1] != 0 || result[2] != 0 || result[3] != 0) {
		return nil, &eink.ActivationError{Err: eink.ErrActivationFailed, Phase: "inCommRF"}
	}
	if len(result) > 5 {
		return result[5:], nil
	}
	return nil, nil
}

// senseAndActivateTarget runs REQA, cascade anticollision, and RATS. It
// returns (false, nil) for a non-fatal failure to find a card (the caller
// should retry), and a non-nil error only for a card that is present but
// unusable (e.g. ISO-DEP unsupported).
func (t *Transport) senseAndActivateTarget(ctx context.Context) (bool, error) {
	if err := t.inSetRF(ctx, []byte{0x02, 0x03, 0x0F, 0x03}); err != nil {
		return false, nil //nolint:nilerr // non-fatal: retry on next poll
	}
	if err := t.inSetProtocol(ctx, inSetProtocolDefaults); err != nil {
		return false, nil //nolint:nilerr
	}
	if err := t.inSetProtocol(ctx, []byte{0x00, 0x06, 0x01, 0x00, 0x02, 0x00, 0x05, 0x01, 0x07, 0x07}); err != nil {
		return false, nil //nolint:nilerr
	}

	sensRes, err := t.inCommRF(ctx, []byte{0x26}, 30)
	if err != nil || len(sensRes) != 2 {
		return false, nil
	}

	if err := t.inSetProtocol(ctx, []byte{0x07, 0x08, 0x04, 0x01}); err != nil {
		return false, nil //nolint:nilerr
	}

	var sak byte
	for _, sel := range []byte{0x93, 0x95, 0x97} {
		if err := t.inSetProtocol(ctx, []byte{0x01, 0x00, 0x02, 0x00}); err != nil {
			return false, nil //nolint:nilerr
		}
		sddRes, err := t.inCommRF(ctx, []byte{sel, 0x20}, 30)
		if err != nil || len(sddRes) < 5 {
			return false, nil
		}

		if err := t.inSetProtocol(ctx, []byte{0x01, 0x01, 0x02, 0x01}); err != nil {
			return false, nil //nolint:nilerr
		}
		selReq := append([]byte{sel, 0x70}, sddRes...)
		selRes, err := t.inCommRF(ctx, selReq, 30)
		if err != nil || len(selRes) == 0 {
			return false, nil
		}
		sak = selRes[0]
		if sak&0x04 == 0 {
			break
		}
	}

	if sak&0x20 == 0 {
		return false, &eink.ActivationError{Err: eink.ErrISODEPUnsupported, Phase: "sak"}
	}

	ats, err := t.inCommRF(ctx, []byte{0xE0, 0x80}, 30)
	if err != nil || len(ats) == 0 {
		return false, &eink.ActivationError{Err: eink.ErrRATSFailed, Phase: "rats"}
	}

	t.blockNr = 0
	return true, nil
}

// SendAPDU implements transport.Transport via ISO-DEP (T=CL) I-block
// chaining, per the Port-100 command exchange.
func (t *Transport) SendAPDU(ctx context.Context, apdu protocol.Apdu) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	apduBytes := apdu.Bytes()
	var response []byte

	for offset := 0; offset < len(apduBytes); offset += miu {
		more := len(apduBytes)-offset > miu
		end := offset + miu
		if end > len(apduBytes) {
			end = len(apduBytes)
		}

		pcb := byte(0x02) | (t.blockNr & 0x01)
		if more {
			pcb |= 0x10
		}
		iBlock := append([]byte{pcb}, apduBytes[offset:end]...)

		resp, err := t.inCommRF(ctx, iBlock, int(commandDeadline/time.Millisecond))
		if err != nil {
			return nil, &eink.ChainingProtocolError{Err: err, Stage: "outbound"}
		}
		resp, err = t.handleWTX(ctx, resp)
		if err != nil {
			return nil, &eink.ChainingProtocolError{Err: err, Stage: "wtx"}
		}
		response = resp

		if more {
			if len(response) == 0 || response[0]&0xF6 != 0xA2 {
				return nil, &eink.ChainingProtocolError{Err: eink.ErrChainingACKMissing, Stage: "outbound"}
			}
			t.blockNr ^= 1
		}
	}

	t.blockNr ^= 1

	if len(response) == 0 {
		return nil, &eink.ChainingProtocolError{Err: eink.ErrChainingShortReply, Stage: "inbound"}
	}

	fullResponse := append([]byte{}, response[1:]...)

	for len(response) > 0 && response[0]&0x10 != 0 {
		ack := []byte{0xA2 | (t.blockNr & 0x01)}
		resp, err := t.inCommRF(ctx, ack, int(commandDeadline/time.Millisecond))
		if err != nil {
			return nil, &eink.ChainingProtocolError{Err: err, Stage: "inbound"}
		}
		resp, err = t.handleWTX(ctx, resp)
		if err != nil {
			return nil, &eink.ChainingProtocolError{Err: err, Stage: "wtx"}
		}
		response = resp
		if len(response) > 0 {
			fullResponse = append(fullResponse, response[1:]...)
			t.blockNr ^= 1
		}
	}

	if len(fullResponse) < 2 {
		if apdu.IsPollTolerant() {
			return []byte{}, nil
		}
		return nil, &eink.ChainingProtocolError{Err: eink.ErrChainingShortReply, Stage: "inbound"}
	}

	sw1, sw2 := fullResponse[len(fullResponse)-2], fullResponse[len(fullResponse)-1]
	body := fullResponse[:len(fullResponse)-2]

	if sw1 != 0x90 || sw2 != 0x00 {
		if apdu.IsPollTolerant() {
			return body, nil
		}
		return nil, &eink.ApduStatusError{INS: apdu.INS, SW1: sw1, SW2: sw2}
	}

	return body, nil
}

// handleWTX loops on S(WTX) requests, replying and extending the wait,
// until a non-WTX response arrives.
func (t *Transport) handleWTX(ctx context.Context, response []byte) ([]byte, error) {
	for len(response) > 0 && response[0]&0xFE == 0xF2 {
		extended := int(response[1]&0x3F) * 1000
		resp, err := t.inCommRF(ctx, []byte{0xF2, response[1]}, extended)
		if err != nil {
			return nil, err
		}
		response = resp
	}
	return response, nil
}

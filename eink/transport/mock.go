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

package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/santek/eink-go/eink/protocol"
)

// MockTransport is a test double implementing Transport. Responses and
// errors are queued per-INS; each SendAPDU call for a given INS consumes
// the next queued entry (or the last one, once exhausted).
type MockTransport struct {
	mu        sync.Mutex
	responses map[byte][][]byte
	errs      map[byte][]error
	callCount map[byte]int
	opened    bool
	closed    bool
	openErr   error
	sentAPDUs []protocol.Apdu
}

// NewMockTransport creates an empty mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses: make(map[byte][][]byte),
		errs:      make(map[byte][]error),
		callCount: make(map[byte]int),
	}
}

// Open implements Transport.
func (m *MockTransport) Open(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

// Close implements Transport.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.opened = false
	return nil
}

// SendAPDU implements Transport, returning the next queued response or
// error configured for apdu.INS.
func (m *MockTransport) SendAPDU(_ context.Context, apdu protocol.Apdu) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opened {
		return nil, errors.New("mock transport: not open")
	}

	idx := m.callCount[apdu.INS]
	m.callCount[apdu.INS]++
	m.sentAPDUs = append(m.sentAPDUs, apdu)

	if errs := m.errs[apdu.INS]; len(errs) > 0 {
		if idx < len(errs) {
			if err := errs[idx]; err != nil {
				return nil, err
			}
		} else if err := errs[len(errs)-1]; err != nil {
			return nil, err
		}
	}

	resps := m.responses[apdu.INS]
	if len(resps) == 0 {
		return nil, nil
	}
	if idx < len(resps) {
		return resps[idx], nil
	}
	return resps[len(resps)-1], nil
}

// QueueResponse appends a response to be returned for the given INS, in
// call order.
func (m *MockTransport) QueueResponse(ins byte, resp []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[ins] = append(m.responses[ins], resp)
}

// QueueError appends an error to be returned for the given INS, in call
// order.
func (m *MockTransport) QueueError(ins byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[ins] = append(m.errs[ins], err)
}

// SetOpenError makes Open fail with err.
func (m *MockTransport) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// CallCount returns how many SendAPDU calls were made for the given INS.
func (m *MockTransport) CallCount(ins byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount[ins]
}

// SentAPDUs returns every APDU sent so far, in order.
func (m *MockTransport) SentAPDUs() []protocol.Apdu {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.Apdu, len(m.sentAPDUs))
	copy(out, m.sentAPDUs)
	return out
}

// IsOpen reports whether Open has been called without a subsequent Close.
func (m *MockTransport) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// Type implements Typed.
func (*MockTransport) Type() Type { return TypeMock }

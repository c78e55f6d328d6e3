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

package eink

import (
	"context"
	"fmt"
	"time"

	"github.com/santek/eink-go/eink/encoder"
	"github.com/santek/eink-go/eink/protocol"
	"github.com/santek/eink-go/eink/transport"
	"github.com/santek/eink-go/internal/syncutil"
)

// ProgressFunc is called once per block during SendImage, after that
// block's final fragment is accepted. block is the 1-based number of the
// block just sent; total is the session's fixed block count for the
// current image.
type ProgressFunc func(block, total int)

// SessionConfig holds configuration applied via SessionOption.
type SessionConfig struct {
	RetryConfig    *RetryConfig
	ConnectTimeout time.Duration
	FragmentDelay  time.Duration
	PollInterval   time.Duration
	Progress       ProgressFunc
}

// DefaultSessionConfig returns the default configuration: a 10 ms
// inter-fragment delay (spec §9 "empirically chosen... keep the delay
// configurable") and a 60 s connect timeout. ConnectTimeout bounds the
// context RetryConfig's own RetryTimeout nests inside (Connect calls
// context.WithTimeout(ctx, ConnectTimeout) once, then RetryWithConfig
// nests a second, shorter-or-equal timeout inside it), so it must leave
// enough room for DefaultRetryConfig's 50 s retry budget to actually run
// its course rather than being cut short by the outer deadline.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		RetryConfig:    DefaultRetryConfig(),
		ConnectTimeout: 60 * time.Second,
		FragmentDelay:  10 * time.Millisecond,
		PollInterval:   500 * time.Millisecond,
	}
}

// SessionOption configures a Session at construction time.
type SessionOption func(*SessionConfig)

// WithFragmentDelay overrides the inter-fragment delay applied between
// consecutive image-fragment APDUs.
func WithFragmentDelay(d time.Duration) SessionOption {
	return func(c *SessionConfig) { c.FragmentDelay = d }
}

// WithConnectTimeout overrides the connect timeout.
func WithConnectTimeout(d time.Duration) SessionOption {
	return func(c *SessionConfig) { c.ConnectTimeout = d }
}

// WithRetryConfig overrides the retry configuration used when opening
// the transport.
func WithRetryConfig(cfg *RetryConfig) SessionOption {
	return func(c *SessionConfig) { c.RetryConfig = cfg }
}

// WithProgress registers a callback invoked once per uploaded block.
func WithProgress(fn ProgressFunc) SessionOption {
	return func(c *SessionConfig) { c.Progress = fn }
}

// Session orchestrates authenticate / describe / send / refresh over a
// Transport. A Session exclusively owns its Transport; it is released
// when the Session is closed.
//
// Session is not safe for concurrent use: per spec §5, all APDUs on a
// session must be emitted in strict order from a single goroutine. The
// embedded deadlock-detecting mutex exists to catch accidental concurrent
// use in development builds (see internal/syncutil), not to make
// concurrent use safe.
type Session struct {
	mu        syncutil.Mutex
	factory   transport.Factory
	transport transport.Transport
	config    *SessionConfig
	info      protocol.DeviceInfo
	connected bool
	closed    bool
}

// NewSession creates a Session bound to factory. The transport is not
// opened until Connect is called.
func NewSession(factory transport.Factory, opts ...SessionOption) *Session {
	cfg := DefaultSessionConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Session{factory: factory, config: cfg}
}

// Connect opens the transport, authenticates, and reads the device
// descriptor. The authentication response body is discarded; any
// non-9000 status on it is a fatal error surfaced by the transport.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.connected {
		return nil
	}

	tr, err := s.factory()
	if err != nil {
		return fmt.Errorf("eink: create transport: %w", err)
	}

	connectCtx := ctx
	var cancel context.CancelFunc
	if s.config.ConnectTimeout > 0 {
		connectCtx, cancel = context.WithTimeout(ctx, s.config.ConnectTimeout)
		defer cancel()
	}

	if err := RetryWithConfig(connectCtx, s.config.RetryConfig, func() error {
		return tr.Open(connectCtx)
	}); err != nil {
		return fmt.Errorf("eink: open transport: %w", err)
	}

	if _, err := tr.SendAPDU(ctx, protocol.BuildAuthAPDU()); err != nil {
		_ = tr.Close()
		return fmt.Errorf("eink: authenticate: %w", err)
	}

	body, err := tr.SendAPDU(ctx, protocol.BuildDeviceInfoAPDU())
	if err != nil {
		_ = tr.Close()
		return fmt.Errorf("eink: query device info: %w", err)
	}

	info, err := protocol.ParseDeviceInfo(body)
	if err != nil {
		_ = tr.Close()
		return fmt.Errorf("eink: parse device info: %w", err)
	}

	s.transport = tr
	s.info = info
	s.connected = true

	Debugf("card: %s (%dx%d, %d colors)", info.SerialNumber, info.Width, info.Height, info.NumColors())

	return nil
}

// DeviceInfo returns the descriptor read at Connect time. Valid only
// after a successful Connect.
func (s *Session) DeviceInfo() protocol.DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// SendImage encodes grid per the current DeviceInfo and transmits every
// fragment APDU of every block in order, per spec §4.2/§5.
func (s *Session) SendImage(ctx context.Context, grid PixelGrid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrSessionNotConnected
	}

	groups, err := encoder.EncodeImage(encoder.Grid(grid), s.info)
	if err != nil {
		return fmt.Errorf("eink: encode image: %w", err)
	}

	total := len(groups)
	for blockNo, group := range groups {
		for fragNo, apdu := range group {
			if _, err := s.transport.SendAPDU(ctx, apdu); err != nil {
				return fmt.Errorf("eink: send block %d fragment %d: %w", blockNo, fragNo, err)
			}
			if s.config.FragmentDelay > 0 {
				if err := sleepCtx(ctx, s.config.FragmentDelay); err != nil {
					return err
				}
			}
		}
		if s.config.Progress != nil {
			s.config.Progress(blockNo+1, total)
		}
	}

	return nil
}

// Refresh sends the refresh trigger once, then polls until the card
// reports completion or timeout elapses. Transport failures during
// polling are swallowed and retried until the deadline.
func (s *Session) Refresh(ctx context.Context, timeout, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrSessionNotConnected
	}

	// Refresh and poll are the two commands whose non-9000 reply is
	// tolerated; the response body is discarded regardless.
	_, _ = s.transport.SendAPDU(ctx, protocol.BuildRefreshAPDU())

	if interval <= 0 {
		interval = s.config.PollInterval
	}

	deadline := time.Now().Add(timeout)
	for {
		body, err := s.transport.SendAPDU(ctx, protocol.BuildPollAPDU())
		if err == nil && protocol.IsRefreshComplete(body) {
			return nil
		}

		if time.Now().After(deadline) {
			return ErrRefreshTimedOut
		}

		if err := sleepCtx(ctx, interval); err != nil {
			return err
		}
	}
}

// Close idempotently releases the transport.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.connected = false

	if s.transport != nil {
		err := s.transport.Close()
		s.transport = nil
		return err
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

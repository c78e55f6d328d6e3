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
	"testing"
	"time"

	"github.com/santek/eink-go/eink/transport"
)

func newConnectedMock(t *testing.T) (*Session, *transport.MockTransport) {
	t.Helper()
	mock := transport.NewMockTransport()
	mock.QueueResponse(0xD1, []byte{
		0xA0, 0x07, 0x00, 0x07, 0x08, 0x00, 0x80, 0x01, 0x28,
		0xC0, 0x05, '1', '2', '3', '4', '5',
	})

	sess := NewSession(func() (transport.Transport, error) { return mock, nil },
		WithFragmentDelay(0))

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return sess, mock
}

func TestSessionConnectPopulatesDeviceInfo(t *testing.T) {
	t.Parallel()
	sess, mock := newConnectedMock(t)
	defer sess.Close()

	info := sess.DeviceInfo()
	if info.Width != 296 || info.Height != 128 {
		t.Fatalf("DeviceInfo = %+v, want 296x128", info)
	}
	if mock.CallCount(0x20) != 1 {
		t.Errorf("auth APDU sent %d times, want 1", mock.CallCount(0x20))
	}
	if mock.CallCount(0xD1) != 1 {
		t.Errorf("device-info APDU sent %d times, want 1", mock.CallCount(0xD1))
	}
}

func TestSessionConnectIsIdempotent(t *testing.T) {
	t.Parallel()
	sess, mock := newConnectedMock(t)
	defer sess.Close()

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if mock.CallCount(0x20) != 1 {
		t.Errorf("auth APDU sent %d times across two Connect calls, want 1", mock.CallCount(0x20))
	}
}

func TestSessionSendImageRequiresConnect(t *testing.T) {
	t.Parallel()
	mock := transport.NewMockTransport()
	sess := NewSession(func() (transport.Transport, error) { return mock, nil })

	err := sess.SendImage(context.Background(), NewPixelGrid(8, 8))
	if err != ErrSessionNotConnected {
		t.Fatalf("got %v, want ErrSessionNotConnected", err)
	}
}

func TestSessionSendImageEmitsFragmentsInOrder(t *testing.T) {
	t.Parallel()
	sess, mock := newConnectedMock(t)
	defer sess.Close()

	grid := NewPixelGrid(sess.DeviceInfo().Width, sess.DeviceInfo().Height)
	if err := sess.SendImage(context.Background(), grid); err != nil {
		t.Fatalf("SendImage: %v", err)
	}

	sent := mock.SentAPDUs()
	var imageAPDUs int
	wantBlock, wantFrag := 0, 0
	for _, a := range sent {
		if a.INS != 0xD3 {
			continue
		}
		imageAPDUs++
		if int(a.Data[0]) != wantBlock || int(a.Data[1]) != wantFrag {
			t.Fatalf("image APDU %d: block/frag = %d/%d, want %d/%d", imageAPDUs, a.Data[0], a.Data[1], wantBlock, wantFrag)
		}
		if a.P2 == 0x01 {
			wantBlock, wantFrag = wantBlock+1, 0
		} else {
			wantFrag++
		}
	}
	if imageAPDUs == 0 {
		t.Fatal("expected at least one image-data APDU")
	}
	if want := sess.DeviceInfo().NumBlocks(); wantBlock != want {
		t.Fatalf("%d blocks ended with a final fragment, want %d", wantBlock, want)
	}
}

func TestSessionRefreshSucceedsWhenPollReportsComplete(t *testing.T) {
	t.Parallel()
	sess, mock := newConnectedMock(t)
	defer sess.Close()

	mock.QueueResponse(0xDE, []byte{0x00})

	err := sess.Refresh(context.Background(), time.Second, time.Millisecond)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
}

func TestSessionRefreshTimesOut(t *testing.T) {
	t.Parallel()
	sess, mock := newConnectedMock(t)
	defer sess.Close()

	mock.QueueResponse(0xDE, []byte{0x01})

	err := sess.Refresh(context.Background(), 20*time.Millisecond, 5*time.Millisecond)
	if err != ErrRefreshTimedOut {
		t.Fatalf("got %v, want ErrRefreshTimedOut", err)
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	sess, _ := newConnectedMock(t)

	if err := sess.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSessionConnectFailsAfterClose(t *testing.T) {
	t.Parallel()
	sess, _ := newConnectedMock(t)
	sess.Close()

	err := sess.Connect(context.Background())
	if err != ErrSessionClosed {
		t.Fatalf("got %v, want ErrSessionClosed", err)
	}
}

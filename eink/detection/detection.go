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

// Package detection enumerates RC-S380 USB devices before a Session
// claims one, so a CLI can report "no reader attached" without first
// opening (and thereby locking) the device.
package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/santek/eink-go/eink/transport/rcs380"
)

const (
	vendorID  = gousb.ID(0x054C)
	productID = gousb.ID(0x06C1)
)

// Mode represents the level of invasiveness for device detection.
type Mode int

const (
	// Passive mode only inspects the USB device descriptor.
	Passive Mode = iota
	// Safe mode additionally opens the device and reads its firmware
	// version, then closes it again.
	Safe
)

// Confidence represents the confidence level of a detection result.
type Confidence int

const (
	// Low confidence: the descriptor matched, nothing more was checked.
	Low Confidence = iota
	// High confidence: GetFirmwareVersion round-tripped successfully.
	High
)

// DeviceInfo describes one detected RC-S380.
type DeviceInfo struct {
	Metadata   map[string]string
	Path       string // USB bus:address, e.g. "001:004"
	Name       string
	Confidence Confidence
}

// String returns a human-readable representation of the device.
func (d DeviceInfo) String() string {
	confidence := "low"
	if d.Confidence == High {
		confidence = "high"
	}
	return fmt.Sprintf("%s at %s (confidence: %s)", d.Name, d.Path, confidence)
}

// Options configures detection behavior.
type Options struct {
	// IgnorePaths lists USB bus:address strings to skip.
	IgnorePaths []string
	// CacheTTL is how long a detection result is reused before the bus
	// is re-scanned.
	CacheTTL time.Duration
	// Timeout bounds Safe-mode's firmware-version probe.
	Timeout time.Duration
	// Mode selects Passive (descriptor only) or Safe (probe firmware).
	Mode Mode
	// EnableCache reuses a recent result instead of re-scanning the bus.
	EnableCache bool
}

// DefaultOptions returns sensible default detection options.
func DefaultOptions() Options {
	return Options{
		Mode:        Safe,
		Timeout:     3 * time.Second,
		EnableCache: true,
		CacheTTL:    10 * time.Second,
	}
}

// ErrNoDevicesFound indicates no RC-S380 was seen on the USB bus.
var ErrNoDevicesFound = errors.New("no RC-S380 devices found")

// DetectRCS380 walks the USB device list for the RC-S380's VID:PID. In
// Safe mode each candidate is opened just long enough to read its
// firmware version, which both confirms the device responds and distin-
// guishes it from a USB device that merely reuses the same VID:PID.
func DetectRCS380(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts.EnableCache {
		if cached, found := getCached(opts.CacheTTL); found {
			return filterDevices(cached, opts), nil
		}
	}

	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	var devices []DeviceInfo
	_, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != vendorID || desc.Product != productID {
			return false
		}
		path := fmt.Sprintf("%03d:%03d", desc.Bus, desc.Address)
		if IsPathIgnored(path, opts.IgnorePaths) {
			return false
		}
		devices = append(devices, DeviceInfo{
			Name:       "Sony RC-S380",
			Path:       path,
			Confidence: Low,
			Metadata:   map[string]string{"vidpid": "054C:06C1"},
		})
		return false // never actually open here; OpenDevices opens what we return true for
	})
	if err != nil {
		return nil, fmt.Errorf("detection: list USB devices: %w", err)
	}

	if opts.Mode == Safe {
		devices = probeFirmware(ctx, devices, opts.Timeout)
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			setCached(devices)
		} else {
			clearCache()
		}
	}

	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	return devices, nil
}

// probeFirmware opens each candidate in turn and reads its firmware
// version, upgrading confidence to High on success. A candidate that
// fails to open or respond is dropped rather than reported at Low
// confidence, since Safe mode's whole point is to weed out false
// positives.
func probeFirmware(ctx context.Context, devices []DeviceInfo, timeout time.Duration) []DeviceInfo {
	var confirmed []DeviceInfo
	for _, d := range devices {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		tr := rcs380.New()
		err := tr.Open(probeCtx)
		cancel()
		if err != nil {
			continue
		}
		firmware := tr.Firmware()
		_ = tr.Close()

		d.Confidence = High
		if d.Metadata == nil {
			d.Metadata = map[string]string{}
		}
		d.Metadata["firmware"] = firmware.String()
		confirmed = append(confirmed, d)
	}
	return confirmed
}

// filterDevices applies IgnorePaths to a (possibly cached) device list.
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 {
		return devices
	}
	var filtered []DeviceInfo
	for _, d := range devices {
		if !IsPathIgnored(d.Path, opts.IgnorePaths) {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

// IsPathIgnored reports whether path appears in ignorePaths.
func IsPathIgnored(path string, ignorePaths []string) bool {
	for _, ignored := range ignorePaths {
		if ignored == path {
			return true
		}
	}
	return false
}

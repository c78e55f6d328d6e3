//nolint:paralleltest // shares the package-level detection cache
package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestModeConstantsAreDistinct(t *testing.T) {
	assert.NotEqual(t, Passive, Safe)
	assert.Equal(t, Passive, Mode(0))
}

func TestConfidenceConstantsAreDistinct(t *testing.T) {
	assert.NotEqual(t, Low, High)
	assert.Equal(t, Low, Confidence(0))
}

func TestDeviceInfoString(t *testing.T) {
	d := DeviceInfo{Name: "Sony RC-S380", Path: "001:004", Confidence: High}
	assert.Equal(t, "Sony RC-S380 at 001:004 (confidence: high)", d.String())
}

func TestIsPathIgnored(t *testing.T) {
	assert.True(t, IsPathIgnored("001:004", []string{"001:004"}))
	assert.False(t, IsPathIgnored("001:004", []string{"001:005"}))
	assert.False(t, IsPathIgnored("001:004", nil))
}

func TestCacheRoundTrip(t *testing.T) {
	clearCache()
	defer clearCache()

	_, found := getCached(time.Minute)
	assert.False(t, found)

	want := []DeviceInfo{{Name: "Sony RC-S380", Path: "001:004"}}
	setCached(want)

	got, found := getCached(time.Minute)
	assert.True(t, found)
	assert.Equal(t, want, got)
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	clearCache()
	defer clearCache()

	setCached([]DeviceInfo{{Name: "Sony RC-S380", Path: "001:004"}})
	_, found := getCached(0)
	assert.False(t, found, "a zero TTL should treat any cached entry as expired")
}

func TestClearDetectionCache(t *testing.T) {
	setCached([]DeviceInfo{{Name: "Sony RC-S380", Path: "001:004"}})
	ClearDetectionCache()

	_, found := getCached(time.Minute)
	assert.False(t, found)
}

func TestFilterDevicesAppliesIgnorePaths(t *testing.T) {
	devices := []DeviceInfo{
		{Path: "001:004"},
		{Path: "001:005"},
	}
	opts := &Options{IgnorePaths: []string{"001:004"}}

	got := filterDevices(devices, opts)
	assert.Len(t, got, 1)
	assert.Equal(t, "001:005", got[0].Path)
}

func TestDefaultOptionsIsSafeMode(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, Safe, opts.Mode)
	assert.True(t, opts.EnableCache)
}

package ranging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sky_quality/internal/sky"
)

var (
	testGains = []sky.Level{{Code: 0x00, Scale: 1}, {Code: 0x10, Scale: 25}, {Code: 0x20, Scale: 425}, {Code: 0x30, Scale: 9876}}
	testInteg = []sky.Level{{Code: 0x01, Scale: 200}, {Code: 0x02, Scale: 300}, {Code: 0x03, Scale: 400}}
)

type recordingHW struct {
	gains   []byte
	integs  []byte
	failErr error
}

func (r *recordingHW) SetGain(code byte) error {
	r.gains = append(r.gains, code)
	return r.failErr
}

func (r *recordingHW) SetIntegrationTime(code byte) error {
	r.integs = append(r.integs, code)
	return r.failErr
}

func newTestController(t *testing.T) (*Controller, *recordingHW) {
	t.Helper()
	hw := &recordingHW{}
	c, err := New(hw, testGains, testInteg)
	require.NoError(t, err)
	hw.gains, hw.integs = nil, nil
	return c, hw
}

func TestNew_ProgramsLowestRange(t *testing.T) {
	hw := &recordingHW{}
	c, err := New(hw, testGains, testInteg)
	require.NoError(t, err)
	assert.Equal(t, sky.RangeSetting{}, c.Current())
	assert.Equal(t, []byte{0x00}, hw.gains)
	assert.Equal(t, []byte{0x01}, hw.integs)
}

func TestNew_EmptyTable(t *testing.T) {
	_, err := New(&recordingHW{}, nil, testInteg)
	assert.Error(t, err)
}

func TestBumpGain_UpToLimit(t *testing.T) {
	c, hw := newTestController(t)

	for i := 1; i <= 3; i++ {
		atLimit, err := c.BumpGain(true)
		require.NoError(t, err)
		assert.False(t, atLimit)
		assert.Equal(t, i, c.Current().Gain)
	}

	atLimit, err := c.BumpGain(true)
	require.NoError(t, err)
	assert.True(t, atLimit)
	assert.Equal(t, 3, c.Current().Gain)
	assert.Equal(t, 0, c.Current().Integration, "integration untouched")

	// the clamped code is still written on every call
	assert.Equal(t, []byte{0x10, 0x20, 0x30, 0x30}, hw.gains)
	assert.Empty(t, hw.integs)
}

func TestBumpGain_DownAtMinimum(t *testing.T) {
	c, hw := newTestController(t)

	atLimit, err := c.BumpGain(false)
	require.NoError(t, err)
	assert.True(t, atLimit)
	assert.Equal(t, 0, c.Current().Gain)
	assert.Equal(t, []byte{0x00}, hw.gains)
}

func TestBumpIntegration_BothDirections(t *testing.T) {
	c, hw := newTestController(t)

	atLimit, err := c.BumpIntegration(true)
	require.NoError(t, err)
	assert.False(t, atLimit)
	atLimit, err = c.BumpIntegration(true)
	require.NoError(t, err)
	assert.False(t, atLimit)
	atLimit, err = c.BumpIntegration(true)
	require.NoError(t, err)
	assert.True(t, atLimit)
	assert.Equal(t, 2, c.Current().Integration)

	atLimit, err = c.BumpIntegration(false)
	require.NoError(t, err)
	assert.False(t, atLimit)
	assert.Equal(t, 1, c.Current().Integration)

	assert.Equal(t, []byte{0x02, 0x03, 0x03, 0x02}, hw.integs)
	assert.Empty(t, hw.gains)
}

func TestBump_IndicesStayInBounds(t *testing.T) {
	c, _ := newTestController(t)

	moves := []struct {
		gain bool
		up   bool
	}{
		{true, false}, {true, true}, {false, false}, {true, true}, {true, true},
		{true, true}, {true, true}, {false, true}, {false, true}, {false, true},
		{false, true}, {true, false}, {false, false}, {true, false}, {true, false},
		{true, false}, {true, false}, {false, false}, {false, false}, {false, false},
	}
	for _, m := range moves {
		var err error
		if m.gain {
			_, err = c.BumpGain(m.up)
		} else {
			_, err = c.BumpIntegration(m.up)
		}
		require.NoError(t, err)
		cur := c.Current()
		assert.True(t, c.Valid(cur), "setting %s out of bounds", cur)
	}
}

func TestBump_HardwareErrorIsWrapped(t *testing.T) {
	c, hw := newTestController(t)
	hw.failErr = errors.New("i2c nack")

	_, err := c.BumpGain(true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHardwareConfig)
	assert.Contains(t, err.Error(), "i2c nack")
}

func TestApply(t *testing.T) {
	c, hw := newTestController(t)

	require.NoError(t, c.Apply(sky.RangeSetting{Gain: 2, Integration: 1}))
	assert.Equal(t, sky.RangeSetting{Gain: 2, Integration: 1}, c.Current())
	assert.Equal(t, []byte{0x20}, hw.gains)
	assert.Equal(t, []byte{0x02}, hw.integs)
	assert.Equal(t, 425.0, c.GainScale())
	assert.Equal(t, 300.0, c.IntegrationScale())

	err := c.Apply(sky.RangeSetting{Gain: 4, Integration: 0})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrHardwareConfig)
	assert.Equal(t, sky.RangeSetting{Gain: 2, Integration: 1}, c.Current())
	assert.Len(t, hw.gains, 1, "invalid setting never reaches the hardware")
}

func TestSettings_CrossProduct(t *testing.T) {
	c, _ := newTestController(t)

	s := c.Settings()
	require.Len(t, s, 12)
	assert.Equal(t, sky.RangeSetting{Gain: 0, Integration: 0}, s[0])
	assert.Equal(t, sky.RangeSetting{Gain: 0, Integration: 2}, s[2])
	assert.Equal(t, sky.RangeSetting{Gain: 3, Integration: 2}, s[11])
}

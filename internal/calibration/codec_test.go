package calibration

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sky_quality/internal/sky"
)

func TestEncodeDecode(t *testing.T) {
	orig := NewTable("7d9b1c9e-8f0e-4e43-a8f6-9f0b5b3c2a11", time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC))
	orig.Add(sky.RangeSetting{Gain: 0, Integration: 4}, Point{Visible: 180.5, MPSAS: 18.2})
	orig.Add(sky.RangeSetting{Gain: 3, Integration: 0}, Point{Visible: 240, MPSAS: 21.1})
	orig.Add(sky.RangeSetting{Gain: 3, Integration: 0}, Point{Visible: 1200, MPSAS: 19.4})
	orig.Sort()

	data, err := Encode(orig)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	if diff := cmp.Diff(orig, got, cmp.AllowUnexported(Table{})); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_SortsBuckets(t *testing.T) {
	data := []byte(`{
		"schema_version": 1,
		"id": "a",
		"created_at": "2026-03-01T22:00:00Z",
		"buckets": [{"gain": 1, "integration": 2, "points": [[900, 19], [200, 21], [500, 20]]}]
	}`)

	got, err := Decode(data)
	require.NoError(t, err)

	want := Bucket{{200, 21}, {500, 20}, {900, 19}}
	if diff := cmp.Diff(want, got.Bucket(g1i2)); diff != "" {
		t.Errorf("bucket mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown version": `{"schema_version": 2, "buckets": []}`,
		"negative index":  `{"schema_version": 1, "buckets": [{"gain": -1, "integration": 0, "points": []}]}`,
		"not json":        `calibration`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestEncode_EmptyTable(t *testing.T) {
	data, err := Encode(NewTable("empty", time.Time{}))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"buckets": []`)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Points())
}

package calibration

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sky_quality/internal/sky"
)

var g1i2 = sky.RangeSetting{Gain: 1, Integration: 2}

func sortedTable(points ...Point) *Table {
	t := NewTable("test", time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC))
	for _, p := range points {
		t.Add(g1i2, p)
	}
	t.Sort()
	return t
}

func TestLookup(t *testing.T) {
	table := sortedTable(
		Point{Visible: 1000, MPSAS: 18},
		Point{Visible: 200, MPSAS: 21},
		Point{Visible: 500, MPSAS: 19.5},
	)

	tests := []struct {
		name    string
		visible float64
		want    float64
		ok      bool
	}{
		{"exact lowest", 200, 21, true},
		{"exact middle", 500, 19.5, true},
		{"exact highest", 1000, 18, true},
		{"between first pair", 350, 20.25, true},
		{"between second pair", 750, 18.75, true},
		{"below range", 199.9, 0, false},
		{"above range", 1000.1, 0, false},
		{"nan", math.NaN(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := table.Lookup(g1i2, tt.visible)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestLookup_MissingBucket(t *testing.T) {
	table := sortedTable(Point{Visible: 200, MPSAS: 21})

	_, ok := table.Lookup(sky.RangeSetting{Gain: 0, Integration: 0}, 200)
	assert.False(t, ok)

	var nilTable *Table
	_, ok = nilTable.Lookup(g1i2, 200)
	assert.False(t, ok)
}

func TestLookup_SinglePoint(t *testing.T) {
	table := sortedTable(Point{Visible: 300, MPSAS: 20})

	got, ok := table.Lookup(g1i2, 300)
	require.True(t, ok)
	assert.Equal(t, 20.0, got)

	_, ok = table.Lookup(g1i2, 300.5)
	assert.False(t, ok)
}

func TestLookup_DuplicateVisibleUsesFirst(t *testing.T) {
	table := sortedTable(
		Point{Visible: 100, MPSAS: 22},
		Point{Visible: 400, MPSAS: 20},
		Point{Visible: 400, MPSAS: 19},
		Point{Visible: 800, MPSAS: 18},
	)

	got, ok := table.Lookup(g1i2, 400)
	require.True(t, ok)
	assert.Equal(t, 20.0, got)

	// above the duplicate, interpolation starts from the last of them
	got, ok = table.Lookup(g1i2, 600)
	require.True(t, ok)
	assert.InDelta(t, 18.5, got, 1e-9)
}

func TestLookup_StaysWithinBracket(t *testing.T) {
	table := sortedTable(
		Point{Visible: 150, MPSAS: 21.5},
		Point{Visible: 900, MPSAS: 19},
		Point{Visible: 4000, MPSAS: 16},
	)
	b := table.Bucket(g1i2)
	for v := 150.0; v <= 4000; v += 37 {
		got, ok := table.Lookup(g1i2, v)
		require.True(t, ok, "visible %v", v)
		assert.GreaterOrEqual(t, got, b[len(b)-1].MPSAS)
		assert.LessOrEqual(t, got, b[0].MPSAS)
	}
}

func TestSortStable(t *testing.T) {
	table := NewTable("x", time.Time{})
	table.Add(g1i2, Point{Visible: 500, MPSAS: 1})
	table.Add(g1i2, Point{Visible: 300, MPSAS: 2})
	table.Add(g1i2, Point{Visible: 500, MPSAS: 3})
	table.Sort()

	want := Bucket{{300, 2}, {500, 1}, {500, 3}}
	if diff := cmp.Diff(want, table.Bucket(g1i2)); diff != "" {
		t.Errorf("bucket mismatch (-want +got):\n%s", diff)
	}
}

func TestSettingsAndPoints(t *testing.T) {
	table := NewTable("x", time.Time{})
	table.Add(sky.RangeSetting{Gain: 2, Integration: 0}, Point{Visible: 200, MPSAS: 20})
	table.Add(sky.RangeSetting{Gain: 0, Integration: 3}, Point{Visible: 200, MPSAS: 20})
	table.Add(sky.RangeSetting{Gain: 0, Integration: 1}, Point{Visible: 200, MPSAS: 20})
	table.Add(sky.RangeSetting{Gain: 0, Integration: 1}, Point{Visible: 300, MPSAS: 19})

	assert.Equal(t, []sky.RangeSetting{
		{Gain: 0, Integration: 1},
		{Gain: 0, Integration: 3},
		{Gain: 2, Integration: 0},
	}, table.Settings())
	assert.Equal(t, 4, table.Points())
}

func TestZeroTableAdd(t *testing.T) {
	var table Table
	s := sky.RangeSetting{Gain: 1}
	table.Add(s, Point{Visible: 300, MPSAS: 19})
	table.Add(s, Point{Visible: 100, MPSAS: 21})
	table.Sort()

	v, ok := table.Lookup(s, 200)
	require.True(t, ok)
	assert.InDelta(t, 20, v, 1e-9)
	assert.Equal(t, 2, table.Points())
}

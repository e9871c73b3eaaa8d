package resample

import (
	"math"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLength(t *testing.T) {
	var tests = []struct {
		line   geom.LineString
		length float64
	}{
		// Straight
		0: {line: geom.LineString{{0, 0}, {10, 0}}, length: 10},
		// Pythagoras
		1: {line: geom.LineString{{0, 0}, {3, 4}}, length: 5},
		// Bend
		2: {line: geom.LineString{{0, 0}, {0, 5}, {5, 5}}, length: 10},
		// Repeated vertex
		3: {line: geom.LineString{{0, 0}, {0, 0}, {0, 2}}, length: 2},
		// Single point
		4: {line: geom.LineString{{1234, 4321}}, length: 0},
		// No point
		5: {line: nil, length: 0},
	}

	for k, test := range tests {
		length := Length(test.line)
		if length != test.length {
			t.Errorf("test: %d, expected: %f \ngot: %f", k, test.length, length)
		}
	}
}

func TestInterpolate(t *testing.T) {
	bend := geom.LineString{{0, 0}, {0, 5}, {5, 5}}
	tests := []struct {
		name     string
		line     geom.LineString
		distance float64
		want     geom.Point
	}{
		{name: "start", line: bend, distance: 0, want: geom.Point{0, 0}},
		{name: "first segment", line: bend, distance: 2.5, want: geom.Point{0, 2.5}},
		{name: "on vertex", line: bend, distance: 5, want: geom.Point{0, 5}},
		{name: "second segment", line: bend, distance: 7, want: geom.Point{2, 5}},
		{name: "end", line: bend, distance: 10, want: geom.Point{5, 5}},
		{name: "past end clamps", line: bend, distance: 42, want: geom.Point{5, 5}},
		{name: "negative clamps", line: bend, distance: -1, want: geom.Point{0, 0}},
		{name: "skips zero length segment", line: geom.LineString{{1, 1}, {1, 1}, {1, 3}}, distance: 1, want: geom.Point{1, 2}},
		{name: "empty line", line: geom.LineString{}, distance: 1, want: geom.Point{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Interpolate(tt.line, tt.distance)
			assert.InDelta(t, tt.want.X(), got.X(), 1e-9)
			assert.InDelta(t, tt.want.Y(), got.Y(), 1e-9)
		})
	}
}

func TestDistances(t *testing.T) {
	tests := []struct {
		name     string
		length   float64
		interval float64
		want     []float64
	}{
		{name: "interval 3 on length 10", length: 10, interval: 3, want: []float64{0, 3, 6, 9}},
		{name: "interval larger than length", length: 10, interval: 20, want: []float64{0}},
		{name: "exact multiple excludes end", length: 9, interval: 3, want: []float64{0, 3, 6}},
		{name: "length is floored", length: 9.5, interval: 3, want: []float64{0, 3, 6}},
		{name: "fractional interval", length: 2, interval: 0.5, want: []float64{0, 0.5, 1, 1.5}},
		{name: "length below one", length: 0.5, interval: 0.1, want: nil},
		{name: "zero interval", length: 10, interval: 0, want: nil},
		{name: "negative interval", length: 10, interval: -1, want: nil},
		{name: "nan interval", length: 10, interval: math.NaN(), want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Distances(tt.length, tt.interval))
		})
	}
}

func TestResample(t *testing.T) {
	line := geom.LineString{{0, 0}, {10, 0}}

	t.Run("interval 3", func(t *testing.T) {
		points, err := Resample(line, 3)
		require.NoError(t, err)
		want := []geom.Point{{0, 0}, {3, 0}, {6, 0}, {9, 0}}
		require.Len(t, points, len(want))
		for i := range want {
			assert.InDelta(t, want[i].X(), points[i].X(), 1e-9)
			assert.InDelta(t, want[i].Y(), points[i].Y(), 1e-9)
		}
	})

	t.Run("interval larger than length", func(t *testing.T) {
		points, err := Resample(line, 20)
		require.NoError(t, err)
		assert.Equal(t, []geom.Point{{0, 0}}, points)
	})

	t.Run("every point lies at k times interval", func(t *testing.T) {
		zigzag := geom.LineString{{0, 0}, {3, 4}, {6, 0}, {9, 4}}
		interval := 1.5
		points, err := Resample(zigzag, interval)
		require.NoError(t, err)
		length := Length(zigzag)
		assert.Len(t, points, int(math.Ceil(math.Floor(length)/interval)))
		for k, point := range points {
			d := float64(k) * interval
			assert.Less(t, d, length)
			want := Interpolate(zigzag, d)
			assert.Equal(t, want, point)
		}
	})

	t.Run("invalid interval", func(t *testing.T) {
		_, err := Resample(line, 0)
		assert.ErrorIs(t, err, ErrInvalidInterval)
		_, err = Resample(line, math.Inf(1))
		assert.ErrorIs(t, err, ErrInvalidInterval)
	})

	t.Run("degenerate line", func(t *testing.T) {
		_, err := Resample(geom.LineString{{1, 1}}, 1)
		assert.ErrorIs(t, err, ErrInvalidGeometry)
	})
}

func TestAsLineString(t *testing.T) {
	tests := []struct {
		name    string
		geom    geom.Geometry
		want    geom.LineString
		wantErr bool
	}{
		{name: "linestring", geom: geom.LineString{{0, 0}, {1, 1}}, want: geom.LineString{{0, 0}, {1, 1}}},
		{name: "line", geom: geom.Line{{0, 0}, {1, 1}}, want: geom.LineString{{0, 0}, {1, 1}}},
		{name: "single part multilinestring", geom: geom.MultiLineString{{{0, 0}, {1, 1}}}, want: geom.LineString{{0, 0}, {1, 1}}},
		{name: "multi part multilinestring", geom: geom.MultiLineString{{{0, 0}, {1, 1}}, {{2, 2}, {3, 3}}}, wantErr: true},
		{name: "point", geom: geom.Point{1, 1}, wantErr: true},
		{name: "polygon", geom: geom.Polygon{{{0, 0}, {0, 1}, {1, 1}, {0, 0}}}, wantErr: true},
		{name: "nil", geom: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AsLineString(tt.geom)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidGeometry)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

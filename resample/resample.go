// Package resample computes equidistant points along line geometries.
// All distances are planar and expressed in the native units of the line's coordinates.
package resample

import (
	"math"

	"github.com/go-spatial/geom"
	"github.com/pkg/errors"
)

// Length returns the planar length of the line, the sum of its segment lengths.
func Length(line geom.LineString) float64 {
	length := 0.
	for i := 1; i < len(line); i++ {
		length += segmentLength(line[i-1], line[i])
	}
	return length
}

// Interpolate returns the point at the given arc-length along the line.
// Distances before the start or past the end are clamped to the first or last vertex.
func Interpolate(line geom.LineString, distance float64) geom.Point {
	if len(line) == 0 {
		return geom.Point{}
	}
	if distance <= 0 {
		return line[0]
	}
	travelled := 0.
	for i := 1; i < len(line); i++ {
		p0, p1 := line[i-1], line[i]
		segment := segmentLength(p0, p1)
		if segment == 0 {
			continue
		}
		if travelled+segment >= distance {
			f := (distance - travelled) / segment
			return geom.Point{
				p0[0] + f*(p1[0]-p0[0]),
				p0[1] + f*(p1[1]-p0[1]),
			}
		}
		travelled += segment
	}
	return line[len(line)-1]
}

// Distances returns k*interval for k = 0, 1, 2, ... as long as the distance is smaller than
// the floored length. A length below 1 therefore yields no distances at all.
func Distances(length, interval float64) []float64 {
	if !validInterval(interval) {
		return nil
	}
	limit := math.Floor(length)
	var distances []float64
	for k := 0; ; k++ {
		d := float64(k) * interval
		if d >= limit {
			break
		}
		distances = append(distances, d)
	}
	return distances
}

// Resample returns the points at every interval along the line, starting at its first vertex.
func Resample(line geom.LineString, interval float64) ([]geom.Point, error) {
	if err := ValidateInterval(interval); err != nil {
		return nil, err
	}
	if len(line) < 2 {
		return nil, errors.Wrapf(ErrInvalidGeometry, "line has %d vertices", len(line))
	}
	distances := Distances(Length(line), interval)
	points := make([]geom.Point, len(distances))
	for i, d := range distances {
		points[i] = Interpolate(line, d)
	}
	return points, nil
}

// AsLineString converts a decoded geometry into a line that can be resampled.
// A multilinestring is only accepted when it consists of exactly one part.
func AsLineString(g geom.Geometry) (geom.LineString, error) {
	switch line := g.(type) {
	case geom.LineString:
		return line, nil
	case *geom.LineString:
		if line != nil {
			return *line, nil
		}
	case geom.Line:
		return geom.LineString{line[0], line[1]}, nil
	case geom.MultiLineString:
		if len(line) == 1 {
			return line[0], nil
		}
		return nil, errors.Wrapf(ErrInvalidGeometry, "multilinestring has %d parts", len(line))
	}
	return nil, errors.Wrapf(ErrInvalidGeometry, "got %T", g)
}

// ValidateInterval returns ErrInvalidInterval unless the interval is a positive finite number.
func ValidateInterval(interval float64) error {
	if !validInterval(interval) {
		return errors.Wrapf(ErrInvalidInterval, "got %v", interval)
	}
	return nil
}

func segmentLength(p0, p1 [2]float64) float64 {
	return math.Hypot(p1[0]-p0[0], p1[1]-p0[1])
}

func validInterval(interval float64) bool {
	return interval > 0 && !math.IsInf(interval, 0) && !math.IsNaN(interval)
}

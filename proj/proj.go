// Package proj reprojects lines with PROJ before they are resampled.
package proj

import (
	"github.com/go-spatial/geom"
	"github.com/pdok/equidist/crs"
	"github.com/pkg/errors"
	"github.com/twpayne/go-proj/v10"
)

// Transformer transforms coordinates from one CRS to another, always in x/y (lon/lat, easting/northing) order.
type Transformer struct {
	From crs.CRS
	To   crs.CRS
	pj   *proj.PJ
}

func NewTransformer(from, to crs.CRS) (*Transformer, error) {
	pj, err := proj.NewCRSToCRS(from.String(), to.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot transform %s to %s", from, to)
	}
	// geopackage and geojson coordinates are x/y, whatever the authority says
	normalized, err := pj.NormalizeForVisualization()
	if err != nil {
		return nil, errors.Wrapf(err, "cannot normalize %s to %s", from, to)
	}
	return &Transformer{From: from, To: to, pj: normalized}, nil
}

func (t *Transformer) TransformLine(line geom.LineString) (geom.LineString, error) {
	coords := make([][]float64, len(line))
	for i, p := range line {
		coords[i] = []float64{p[0], p[1]}
	}
	if err := t.pj.ForwardFloat64Slices(coords); err != nil {
		return nil, errors.Wrapf(err, "transforming line from %s to %s", t.From, t.To)
	}
	transformed := make(geom.LineString, len(coords))
	for i, c := range coords {
		transformed[i] = [2]float64{c[0], c[1]}
	}
	return transformed, nil
}

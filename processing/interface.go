package processing

import (
	"github.com/go-spatial/geom"
	"github.com/pdok/equidist/crs"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type Feature interface {
	Columns() []interface{}
	Geometry() geom.Geometry
}

// Source yields features and closes the channel when it is done, also when it fails.
type Source interface {
	ReadFeatures(chan<- Feature) error
}

// Target receives the resampled features. Create is called before WriteFeatures,
// and either Close (success) or Abort (failure) ends its lifecycle.
type Target interface {
	Create(Schema, crs.CRS) error
	WriteFeatures(<-chan Feature) error
	Close() error
	Abort() error
}

// LineTransformer transforms a line before it is resampled, e.g. reprojects it.
type LineTransformer interface {
	TransformLine(geom.LineString) (geom.LineString, error)
}

// Schema describes the features handed to a Target.
// The order of Properties matches the order of a Feature's Columns.
type Schema struct {
	Name         string
	GeometryType string
	Properties   *orderedmap.OrderedMap[string, string]
}

const (
	IDProperty   = "id"
	PointType    = "Point"
	IntegerType  = "int"
	DefaultLayer = "points"
)

// PointSchema is the schema of resampled output: a Point geometry and an integer id.
func PointSchema(name string) Schema {
	if name == "" {
		name = DefaultLayer
	}
	properties := orderedmap.New[string, string]()
	properties.Set(IDProperty, IntegerType)
	return Schema{
		Name:         name,
		GeometryType: PointType,
		Properties:   properties,
	}
}

// Package geojson reads lines from and writes points to GeoJSON files.
package geojson

import (
	"bufio"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/pdok/equidist/crs"
	"github.com/pdok/equidist/processing"
	"github.com/pdok/equidist/resample"
	"github.com/perimeterx/marshmallow"
	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	featureCollectionType = "FeatureCollection"
	featureType           = "Feature"
)

type featureGeoJSON struct {
	columns  []interface{}
	geometry geom.Geometry
}

func (f featureGeoJSON) Columns() []interface{} {
	return f.columns
}

func (f featureGeoJSON) Geometry() geom.Geometry {
	return f.geometry
}

type inputFeature struct {
	Geometry   *geojson.Geometry      `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type inputDocument struct {
	Features []inputFeature `json:"features"`
	inputFeature
}

// Source reads the features of a GeoJSON file: a FeatureCollection, a single Feature or a bare geometry.
type Source struct {
	path        string
	declaredCRS crs.CRS
	name        string
}

func NewSource(path string) *Source {
	return &Source{path: path}
}

// DeclaredCRS returns the CRS named in the file's (legacy) crs member, if any. Only valid after ReadFeatures.
func (source *Source) DeclaredCRS() (crs.CRS, bool) {
	return source.declaredCRS, !source.declaredCRS.IsZero()
}

// Name returns the name member of a FeatureCollection, if any. Only valid after ReadFeatures.
func (source *Source) Name() string {
	return source.name
}

func (source *Source) ReadFeatures(features chan<- processing.Feature) error {
	defer close(features)

	data, err := os.ReadFile(source.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.Wrap(resample.ErrNotFound, source.path)
		}
		return errors.Wrapf(resample.ErrRead, "%s: %v", source.path, err)
	}

	var header struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	specials, err := marshmallow.Unmarshal(data, &header, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return errors.Wrapf(resample.ErrRead, "%s: %v", source.path, err)
	}
	source.name = header.Name
	if rawCrs, ok := specials["crs"]; ok {
		source.declaredCRS, err = crs.FromMember(rawCrs)
		if err != nil {
			return errors.Wrapf(resample.ErrRead, "%s: %v", source.path, err)
		}
	}

	var decoded []featureGeoJSON
	switch header.Type {
	case featureCollectionType, featureType:
		var doc inputDocument
		if err = json.Unmarshal(data, &doc); err != nil {
			return errors.Wrapf(resample.ErrRead, "%s: %v", source.path, err)
		}
		if header.Type == featureType {
			doc.Features = []inputFeature{doc.inputFeature}
		}
		for _, f := range doc.Features {
			decoded = append(decoded, toFeature(f))
		}
	default:
		var g geojson.Geometry
		if err = json.Unmarshal(data, &g); err != nil {
			return errors.Wrapf(resample.ErrRead, "%s: %v", source.path, err)
		}
		decoded = append(decoded, featureGeoJSON{geometry: g.Geometry})
	}

	for _, f := range decoded {
		features <- f
	}
	return nil
}

// toFeature keeps the properties as columns in key order.
func toFeature(f inputFeature) featureGeoJSON {
	var feature featureGeoJSON
	if f.Geometry != nil {
		feature.geometry = f.Geometry.Geometry
	}
	if len(f.Properties) > 0 {
		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			feature.columns = append(feature.columns, f.Properties[k])
		}
	}
	return feature
}

type outputFeature struct {
	Type       string                                      `json:"type"`
	Geometry   *geojson.Geometry                           `json:"geometry"`
	Properties *orderedmap.OrderedMap[string, interface{}] `json:"properties"`
}

// Target writes a FeatureCollection. The file is written next to its destination and only
// moved into place by Close, so an aborted run leaves nothing behind.
type Target struct {
	path     string
	schema   processing.Schema
	tmp      *os.File
	writer   *bufio.Writer
	encoder  *json.Encoder
	features int
}

func NewTarget(path string) *Target {
	return &Target{path: path}
}

func (target *Target) Create(schema processing.Schema, c crs.CRS) error {
	target.schema = schema
	tmp, err := os.CreateTemp(filepath.Dir(target.path), "."+filepath.Base(target.path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(resample.ErrWrite, "%s: %v", target.path, err)
	}
	target.tmp = tmp
	if err = tmp.Chmod(0o644); err != nil {
		return target.failCreate(err)
	}
	target.writer = bufio.NewWriter(tmp)
	target.encoder = json.NewEncoder(target.writer)

	header, err := json.Marshal(struct {
		Type string  `json:"type"`
		Name string  `json:"name,omitempty"`
		CRS  crs.CRS `json:"crs"`
	}{
		Type: featureCollectionType,
		Name: schema.Name,
		CRS:  c,
	})
	if err != nil {
		return target.failCreate(err)
	}
	// reopen the header object to stream the features into it
	if _, err = target.writer.Write(header[:len(header)-1]); err != nil {
		return target.failCreate(err)
	}
	if _, err = target.writer.WriteString(`,"features":[`); err != nil {
		return target.failCreate(err)
	}
	return nil
}

func (target *Target) failCreate(err error) error {
	_ = target.Abort()
	return errors.Wrapf(resample.ErrWrite, "%s: %v", target.path, err)
}

func (target *Target) WriteFeatures(features <-chan processing.Feature) error {
	for feature := range features {
		properties := orderedmap.New[string, interface{}]()
		columns := feature.Columns()
		i := 0
		for p := target.schema.Properties.Oldest(); p != nil; p = p.Next() {
			var value interface{}
			if i < len(columns) {
				value = columns[i]
			}
			properties.Set(p.Key, value)
			i++
		}

		if target.features > 0 {
			if err := target.writer.WriteByte(','); err != nil {
				return err
			}
		}
		err := target.encoder.Encode(outputFeature{
			Type:       featureType,
			Geometry:   &geojson.Geometry{Geometry: feature.Geometry()},
			Properties: properties,
		})
		if err != nil {
			return err
		}
		target.features++
	}
	return nil
}

// Close finishes the FeatureCollection and moves it to its destination.
func (target *Target) Close() error {
	if target.tmp == nil {
		return nil
	}
	if err := target.finish(); err != nil {
		_ = target.Abort()
		return err
	}
	return nil
}

func (target *Target) finish() error {
	if _, err := target.writer.WriteString("]}\n"); err != nil {
		return err
	}
	if err := target.writer.Flush(); err != nil {
		return err
	}
	if err := target.tmp.Sync(); err != nil {
		return err
	}
	if err := os.Rename(target.tmp.Name(), target.path); err != nil {
		return err
	}
	err := target.tmp.Close()
	target.tmp = nil
	return err
}

// Abort discards everything written so far.
func (target *Target) Abort() error {
	if target.tmp == nil {
		return nil
	}
	tmpPath := target.tmp.Name()
	_ = target.tmp.Close()
	target.tmp = nil
	return os.Remove(tmpPath)
}

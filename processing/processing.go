// Package processing takes care of the logistics around reading from a Source and writing to a Target.
// The resampling itself lives in package resample.
package processing

import (
	"log"
	"sync"

	"github.com/go-spatial/geom"
	"github.com/pdok/equidist/crs"
	"github.com/pdok/equidist/geomhelp"
	"github.com/pdok/equidist/resample"
	"github.com/pkg/errors"
)

const wktLogLength = 80

// Options configure ResampleFeatures.
type Options struct {
	// Interval between two points, in the linear units of the source coordinates.
	Interval float64
	// CRS is declared on the output. Coordinates are not reprojected unless Transformer is set.
	CRS crs.CRS
	// Layer names the output layer/table.
	Layer string
	// AllFeatures resamples every line in the source instead of only the first feature.
	AllFeatures bool
	// Transformer is applied to each line before it is resampled, optional.
	Transformer LineTransformer
}

// Stats counts what happened during ResampleFeatures.
type Stats struct {
	FeaturesRead   uint64
	LinesResampled uint64
	Skipped        uint64
	PointsWritten  uint64
}

type pointFeature struct {
	id    int64
	point geom.Point
}

func (f *pointFeature) Columns() []interface{} {
	return []interface{}{f.id}
}

func (f *pointFeature) Geometry() geom.Geometry {
	return f.point
}

// ResampleFeatures reads a line from the source, creates points at every options.Interval along it
// and writes those to the target. By default only the first feature of the source is used, and every
// point gets id 1. With options.AllFeatures every line is used and the points get the 1-based ordinal
// of their source feature as id.
//
// On failure the target is aborted so no partial output remains, and the error matches one of the
// resample.Err* values.
func ResampleFeatures(source Source, target Target, options Options) (stats Stats, err error) {
	if err = resample.ValidateInterval(options.Interval); err != nil {
		return stats, err
	}
	if err = target.Create(PointSchema(options.Layer), options.CRS); err != nil {
		return stats, asWriteError(err)
	}
	defer func() {
		if err != nil {
			if abortErr := target.Abort(); abortErr != nil {
				log.Printf("could not clean up output: %s", abortErr)
			}
			return
		}
		if closeErr := target.Close(); closeErr != nil {
			err = asWriteError(closeErr)
		}
	}()

	featuresIn := make(chan Feature)
	featuresOut := make(chan Feature)
	var readErr, processErr, writeErr error

	wg := sync.WaitGroup{}
	wg.Add(3)
	go func() {
		defer wg.Done()
		readErr = source.ReadFeatures(featuresIn)
	}()
	go func() {
		defer wg.Done()
		processErr = resampleFeatures(featuresIn, featuresOut, options, &stats)
	}()
	go func() {
		defer wg.Done()
		writeErr = target.WriteFeatures(featuresOut)
		// keep the pipeline flowing when the target gave up early
		for range featuresOut {
		}
	}()
	wg.Wait()

	switch {
	case readErr != nil:
		return stats, asReadError(readErr)
	case processErr != nil:
		return stats, processErr
	case writeErr != nil:
		return stats, asWriteError(writeErr)
	}

	log.Printf("    total features: %d", stats.FeaturesRead)
	log.Printf("   lines resampled: %d", stats.LinesResampled)
	if stats.Skipped > 0 {
		log.Printf("           skipped: %d", stats.Skipped)
	}
	log.Printf("     points written: %d", stats.PointsWritten)
	return stats, nil
}

// resampleFeatures turns incoming lines into point features. It always drains featuresIn and closes featuresOut.
func resampleFeatures(featuresIn <-chan Feature, featuresOut chan<- Feature, options Options, stats *Stats) error {
	defer close(featuresOut)
	var firstErr error
	for feature := range featuresIn {
		stats.FeaturesRead++
		if firstErr != nil || (!options.AllFeatures && stats.FeaturesRead > 1) {
			continue
		}

		points, err := resampleFeature(feature, options)
		if err != nil {
			if options.AllFeatures && errors.Is(err, resample.ErrInvalidGeometry) {
				stats.Skipped++
				log.Printf("skipping feature %d: %s: %s", stats.FeaturesRead, err,
					geomhelp.WktMustEncode(feature.Geometry(), wktLogLength))
				continue
			}
			firstErr = errors.Wrapf(err, "feature %d", stats.FeaturesRead)
			continue
		}

		id := int64(1)
		if options.AllFeatures {
			id = int64(stats.FeaturesRead)
		}
		stats.LinesResampled++
		for _, point := range points {
			featuresOut <- &pointFeature{id: id, point: point}
			stats.PointsWritten++
		}
	}

	if firstErr != nil {
		return firstErr
	}
	if stats.FeaturesRead == 0 {
		return resample.ErrEmptyInput
	}
	if stats.LinesResampled == 0 {
		return errors.Wrapf(resample.ErrInvalidGeometry, "none of the %d features is a line", stats.FeaturesRead)
	}
	if !options.AllFeatures && stats.FeaturesRead > 1 {
		log.Printf("    used the first of %d features, the others are ignored", stats.FeaturesRead)
	}
	return nil
}

func resampleFeature(feature Feature, options Options) ([]geom.Point, error) {
	line, err := resample.AsLineString(feature.Geometry())
	if err != nil {
		return nil, err
	}
	if options.Transformer != nil {
		line, err = options.Transformer.TransformLine(line)
		if err != nil {
			return nil, errors.Wrapf(resample.ErrTransform, "%v", err)
		}
	}
	return resample.Resample(line, options.Interval)
}

func asReadError(err error) error {
	if isClassified(err) {
		return err
	}
	return errors.Wrapf(resample.ErrRead, "%v", err)
}

func asWriteError(err error) error {
	if isClassified(err) {
		return err
	}
	return errors.Wrapf(resample.ErrWrite, "%v", err)
}

func isClassified(err error) bool {
	for _, kind := range []error{
		resample.ErrNotFound, resample.ErrEmptyInput, resample.ErrRead,
		resample.ErrInvalidGeometry, resample.ErrInvalidInterval, resample.ErrWrite, resample.ErrTransform,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/carlmjohnson/versioninfo"
	"github.com/go-spatial/geom"
	"github.com/iancoleman/strcase"
	"github.com/pdok/equidist/config"
	"github.com/pdok/equidist/crs"
	"github.com/pdok/equidist/processing"
	"github.com/pdok/equidist/processing/geojson"
	"github.com/pdok/equidist/processing/gpkg"
	"github.com/pdok/equidist/processing/postgis"
	"github.com/pdok/equidist/proj"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

const SOURCE string = `source`
const TARGET string = `target`
const INTERVAL string = `interval`
const CRS string = `crs`
const OVERWRITE string = `overwrite`
const ALL string = `all`
const LAYER string = `layer`
const PAGESIZE string = `pagesize`
const REPROJECT string = `reproject`
const SOURCECRS string = `source-crs`
const CONFIG string = `config`

// declaredCRS is implemented by sources that know the CRS of what they read.
type declaredCRS interface {
	DeclaredCRS() (crs.CRS, bool)
}

//nolint:funlen
func main() {
	app := cli.NewApp()
	app.Name = "equidist"
	app.Usage = "Places points at a fixed interval along a line"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    CONFIG,
			Usage:   "YAML job file. Flags given on the command line override its values",
			EnvVars: []string{strcase.ToScreamingSnake(CONFIG)},
		},
		&cli.StringFlag{
			Name:    SOURCE,
			Aliases: []string{"s"},
			Usage:   "Source GeoPackage (.gpkg) or GeoJSON file with the line",
			EnvVars: []string{strcase.ToScreamingSnake(SOURCE)},
		},
		&cli.StringFlag{
			Name:    TARGET,
			Aliases: []string{"t"},
			Usage:   "Target GeoPackage (.gpkg), GeoJSON file or PostGIS url (postgres://...)",
			EnvVars: []string{strcase.ToScreamingSnake(TARGET)},
		},
		&cli.Float64Flag{
			Name:    INTERVAL,
			Aliases: []string{"i"},
			Usage:   "Distance between two points, in the units of the source coordinates",
			EnvVars: []string{strcase.ToScreamingSnake(INTERVAL)},
		},
		&cli.StringFlag{
			Name:    CRS,
			Aliases: []string{"c"},
			Usage:   "CRS the target is labelled with. E.g.: EPSG:28992",
			EnvVars: []string{strcase.ToScreamingSnake(CRS)},
		},
		&cli.BoolFlag{
			Name:    OVERWRITE,
			Aliases: []string{"o"},
			Usage:   "Overwrite the target if it exists",
			EnvVars: []string{strcase.ToScreamingSnake(OVERWRITE)},
		},
		&cli.BoolFlag{
			Name:    ALL,
			Aliases: []string{"a"},
			Usage:   "Resample every line in the source, not only the first. The id is the line's ordinal",
			EnvVars: []string{strcase.ToScreamingSnake(ALL)},
		},
		&cli.StringFlag{
			Name:    LAYER,
			Aliases: []string{"l"},
			Usage:   "Name of the target layer/table",
			Value:   processing.DefaultLayer,
			EnvVars: []string{strcase.ToScreamingSnake(LAYER)},
		},
		&cli.IntFlag{
			Name:    PAGESIZE,
			Aliases: []string{"p"},
			Usage:   "Page Size, how many features are written per transaction to a target GPKG",
			Value:   1000,
			EnvVars: []string{strcase.ToScreamingSnake(PAGESIZE)},
		},
		&cli.BoolFlag{
			Name:    REPROJECT,
			Aliases: []string{"r"},
			Usage:   "Reproject the line to the target CRS before resampling, instead of only labelling the output",
			EnvVars: []string{strcase.ToScreamingSnake(REPROJECT)},
		},
		&cli.StringFlag{
			Name:    SOURCECRS,
			Usage:   "CRS of the source when reprojecting. Defaults to what the source declares",
			EnvVars: []string{strcase.ToScreamingSnake(SOURCECRS)},
		},
	}

	app.Action = func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		return run(cfg)
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// run resamples as configured. A failed run leaves an existing target as it was.
func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	targetCRS, err := cfg.TargetCRS()
	if err != nil {
		return err
	}

	source := initSource(cfg)
	target, err := initTarget(cfg)
	if err != nil {
		return err
	}

	options := processing.Options{
		Interval:    cfg.Interval,
		CRS:         targetCRS,
		Layer:       cfg.Layer,
		AllFeatures: cfg.All,
	}
	if cfg.Reproject {
		options.Transformer = &sourceTransformer{source: source, sourceCRS: cfg.SourceCRS, to: targetCRS}
	}

	log.Println("=== start resampling ===")
	if _, err = processing.ResampleFeatures(source, target, options); err != nil {
		return err
	}
	if declared, ok := source.(declaredCRS).DeclaredCRS(); ok && !cfg.Reproject && !declared.Equal(targetCRS) {
		log.Printf("source declares %s, target is labelled %s without reprojecting", declared, targetCRS)
	}
	log.Println("=== done resampling ===")
	return nil
}

// loadConfig starts from the job file, if any, and lets flags that are set override it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.New()
	if path := c.String(CONFIG); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet(SOURCE) {
		cfg.Source = c.String(SOURCE)
	}
	if c.IsSet(TARGET) {
		cfg.Target = c.String(TARGET)
	}
	if c.IsSet(INTERVAL) {
		cfg.Interval = c.Float64(INTERVAL)
	}
	if c.IsSet(CRS) {
		cfg.CRS = c.String(CRS)
	}
	if c.IsSet(OVERWRITE) {
		cfg.Overwrite = c.Bool(OVERWRITE)
	}
	if c.IsSet(ALL) {
		cfg.All = c.Bool(ALL)
	}
	if c.IsSet(LAYER) {
		cfg.Layer = c.String(LAYER)
	}
	if c.IsSet(PAGESIZE) {
		cfg.PageSize = c.Int(PAGESIZE)
	}
	if c.IsSet(REPROJECT) {
		cfg.Reproject = c.Bool(REPROJECT)
	}
	if c.IsSet(SOURCECRS) {
		cfg.SourceCRS = c.String(SOURCECRS)
	}
	return cfg, nil
}

func isGeopackage(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gpkg")
}

func initSource(cfg *config.Config) processing.Source {
	if isGeopackage(cfg.Source) {
		return gpkg.NewSource(cfg.Source, "")
	}
	return geojson.NewSource(cfg.Source)
}

func initTarget(cfg *config.Config) (processing.Target, error) {
	if postgis.IsURL(cfg.Target) {
		return postgis.NewTarget(cfg.Target, cfg.Overwrite), nil
	}
	// file targets replace an existing file only once they are complete
	if _, err := os.Stat(cfg.Target); err == nil && !cfg.Overwrite {
		return nil, errors.Errorf("target %s exists, use --%s to replace it", cfg.Target, OVERWRITE)
	}
	if isGeopackage(cfg.Target) {
		return gpkg.NewTarget(cfg.Target, cfg.PageSize), nil
	}
	return geojson.NewTarget(cfg.Target), nil
}

// sourceTransformer reprojects from the CRS the source declares, which is only known once reading started.
type sourceTransformer struct {
	source    processing.Source
	sourceCRS string
	to        crs.CRS

	once        sync.Once
	transformer *proj.Transformer
	err         error
}

func (t *sourceTransformer) TransformLine(line geom.LineString) (geom.LineString, error) {
	t.once.Do(func() {
		var from crs.CRS
		if t.sourceCRS != "" {
			from, t.err = crs.Parse(t.sourceCRS)
		} else if declared, ok := t.source.(declaredCRS).DeclaredCRS(); ok {
			from = declared
		} else {
			t.err = errors.Errorf("source has no CRS, use --%s", SOURCECRS)
		}
		if t.err == nil {
			t.transformer, t.err = proj.NewTransformer(from, t.to)
		}
	})
	if t.err != nil {
		return nil, t.err
	}
	return t.transformer.TransformLine(line)
}

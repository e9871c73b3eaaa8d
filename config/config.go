// Package config holds the settings of a resample job, read from a YAML job file and/or the command line.
package config

import (
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/pdok/equidist/crs"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Source    string  `yaml:"source" validate:"required"`
	Target    string  `yaml:"target" validate:"required"`
	Interval  float64 `yaml:"interval" validate:"gt=0"`
	CRS       string  `yaml:"crs" validate:"required"`
	Layer     string  `default:"points" yaml:"layer"`
	PageSize  int     `default:"1000" yaml:"pagesize" validate:"gt=0"`
	Overwrite bool    `yaml:"overwrite"`
	All       bool    `yaml:"all"`
	Reproject bool    `yaml:"reproject"`
	SourceCRS string  `yaml:"source-crs"`
}

// New returns a Config with only the defaults set.
func New() *Config {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		panic(err) // only fails on a malformed default tag
	}
	return c
}

// Load reads a YAML job file on top of the defaults. The result is not validated,
// since command line flags may still fill in the blanks.
func Load(path string) (*Config, error) {
	c := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read config")
	}
	if err = yaml.UnmarshalStrict(data, c); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %s", path)
	}
	return c, nil
}

func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := c.TargetCRS(); err != nil {
		return err
	}
	if c.Reproject && c.SourceCRS != "" {
		if _, err := crs.Parse(c.SourceCRS); err != nil {
			return errors.Wrap(err, "invalid source-crs")
		}
	}
	return nil
}

// TargetCRS is the CRS the output is labelled with.
func (c *Config) TargetCRS() (crs.CRS, error) {
	parsed, err := crs.Parse(c.CRS)
	if err != nil {
		return crs.CRS{}, errors.Wrap(err, "invalid crs")
	}
	return parsed, nil
}

package resample

import "github.com/pkg/errors"

var (
	// ErrNotFound is returned when the input dataset does not exist.
	ErrNotFound = errors.New("input dataset not found")
	// ErrEmptyInput is returned when the input dataset holds no feature to resample.
	ErrEmptyInput = errors.New("input dataset has no features")
	// ErrRead is returned when the input dataset exists but cannot be read or decoded.
	ErrRead = errors.New("could not read input dataset")
	// ErrInvalidGeometry is returned when a feature's geometry is not a usable line.
	ErrInvalidGeometry = errors.New("geometry is not a line")
	// ErrInvalidInterval is returned for intervals that are not positive finite numbers.
	ErrInvalidInterval = errors.New("interval must be a positive finite number")
	// ErrWrite is returned when the output dataset cannot be created or written.
	ErrWrite = errors.New("could not write output dataset")
	// ErrTransform is returned when a line cannot be reprojected to the output CRS.
	ErrTransform = errors.New("could not transform line")
)

package worlddata

import (
	"errors"
	"fmt"
)

// ErrMissingRegion is matched by every *MissingRegionError.
var ErrMissingRegion = errors.New("worlddata: region not found")

// MissingRegionError reports an unknown region id.
type MissingRegionError struct {
	ID string
}

func (e *MissingRegionError) Error() string {
	return fmt.Sprintf("worlddata: region %q not found", e.ID)
}

// Is lets errors.Is(err, ErrMissingRegion) succeed.
func (e *MissingRegionError) Is(target error) bool { return target == ErrMissingRegion }

// UnknownContinentError reports a continent no region belongs to. It
// matches ErrMissingRegion so callers can treat both as "not found".
type UnknownContinentError struct {
	Name string
}

func (e *UnknownContinentError) Error() string {
	return fmt.Sprintf("worlddata: continent %q not found", e.Name)
}

func (e *UnknownContinentError) Is(target error) bool { return target == ErrMissingRegion }

// Stage names the build step a failure happened in.
type Stage string

const (
	StageRecord  Stage = "record"
	StageParse   Stage = "parse"
	StagePolygon Stage = "polygon"
	StageMesh    Stage = "mesh"
)

// Failure is one contained build error.
type Failure struct {
	RegionID string
	Stage    Stage
	Err      error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s [%s]: %v", f.RegionID, f.Stage, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

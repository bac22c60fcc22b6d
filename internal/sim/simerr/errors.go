// Package simerr holds the error classes shared by the simulation packages.
// Build-time classes (ConfigError, MapLoadError) stop a run before it starts;
// UnrecognizedActionError aborts a running simulation.
package simerr

import "fmt"

// ConfigError reports an invalid build-time parameter.
type ConfigError struct {
	Param  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s=%v: %s", e.Param, e.Value, e.Reason)
}

func Config(param string, value any, reason string) *ConfigError {
	return &ConfigError{Param: param, Value: value, Reason: reason}
}

// MapLoadError reports a map that could not be read or parsed.
type MapLoadError struct {
	MapID string
	Line  int // 1-based; 0 when not tied to a line
	Err   error
}

func (e *MapLoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("map %s: line %d: %v", e.MapID, e.Line, e.Err)
	}
	return fmt.Sprintf("map %s: %v", e.MapID, e.Err)
}

func (e *MapLoadError) Unwrap() error { return e.Err }

// SpeciesInstantiationError reports a species constructor that failed or is missing.
type SpeciesInstantiationError struct {
	SpeciesID string
	Err       error
}

func (e *SpeciesInstantiationError) Error() string {
	return fmt.Sprintf("species %s: instantiate: %v", e.SpeciesID, e.Err)
}

func (e *SpeciesInstantiationError) Unwrap() error { return e.Err }

// UnrecognizedActionError reports a behavior that returned an action outside the fixed set.
type UnrecognizedActionError struct {
	SpeciesID  string
	AgentIndex int
	Round      uint64
	Action     uint8
}

func (e *UnrecognizedActionError) Error() string {
	return fmt.Sprintf("round %d: agent %d (species %s): unrecognized action %d",
		e.Round, e.AgentIndex, e.SpeciesID, e.Action)
}

// Package config loads, normalizes, and validates Renote configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// daemon and CLI need: staging and library directories, fusion and notation
// thresholds for each pipeline stage, and daemon polling intervals.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

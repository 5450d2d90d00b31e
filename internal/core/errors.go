// Package core defines sentinel errors.
package core

import "errors"

var (
	// Engine errors
	ErrSourceNotFound  = errors.New("flowanalyzer: source not found")
	ErrTsharkNotFound  = errors.New("flowanalyzer: tshark not found")
	ErrCaptureNotFound = errors.New("flowanalyzer: capture file not found")
	ErrUnknownLinkType = errors.New("flowanalyzer: unsupported capture link type")

	// Pipeline errors
	ErrPipelineStopped = errors.New("flowanalyzer: pipeline stopped")

	// Record stream errors
	ErrMalformedRecord = errors.New("flowanalyzer: malformed record")

	// Reporter errors
	ErrReporterNotFound = errors.New("flowanalyzer: reporter not found")

	// Store errors
	ErrStoreMissing = errors.New("flowanalyzer: record store missing")

	// Configuration errors
	ErrConfigInvalid = errors.New("flowanalyzer: invalid configuration")
)

// Package domain defines domain-level errors for the market data feature.
package domain

import "errors"

var (
	// ErrUpstreamUnavailable is returned when a venue call fails on a historical or listing read.
	// Handlers translate it to 502.
	ErrUpstreamUnavailable = errors.New("upstream market data provider unavailable")

	// ErrInvalidInterval indicates a timeframe label outside the supported vocabulary.
	ErrInvalidInterval = errors.New("invalid interval")

	// ErrUnknownAssetClass indicates an asset class with no registered provider.
	ErrUnknownAssetClass = errors.New("unknown asset class")

	// ErrInvalidTimeRange indicates start_time later than end_time.
	ErrInvalidTimeRange = errors.New("start_time must not be after end_time")
)

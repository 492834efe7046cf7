// Package apperr holds the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrInvalidClassification = errors.New("invalid classification")
	ErrStreamUnauthorized    = errors.New("stream unauthorized")
	ErrStreamRateLimited     = errors.New("stream rate limited")
	ErrStreamClosed          = errors.New("stream closed")
	ErrWatchdogExpired       = errors.New("stream inactivity watchdog expired")
	ErrMalformedMessage      = errors.New("malformed stream message")
)

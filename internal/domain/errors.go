package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrRateLimited           = errors.New("rate limited")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrLockHeld              = errors.New("lock already held")
	ErrVenueRejected         = errors.New("venue rejected request")
	ErrPositionMode          = errors.New("position mode mismatch")
	ErrInstrumentUnavailable = errors.New("instrument unavailable")
	ErrSnapshotUnavailable   = errors.New("exposure snapshot unavailable")
	ErrVersionConflict       = errors.New("ledger version conflict")
	ErrInsufficientCash      = errors.New("insufficient cash for margin")
	ErrMissingCredentials    = errors.New("missing venue credentials")
	ErrNothingToClose        = errors.New("nothing to close")
	ErrInvalidIntent         = errors.New("invalid trade intent")
	ErrHistoryUnrecorded     = errors.New("settled trade missing from history")
)

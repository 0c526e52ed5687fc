package service

import "errors"

var (
	// ErrNotFound indicates the requested artifact, version, delta, or
	// blob does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionExists indicates a publish collided with an already
	// published version.
	ErrVersionExists = errors.New("version already exists")

	// ErrDeltaExists indicates a delta registration collided with an
	// already registered span.
	ErrDeltaExists = errors.New("delta already exists")
)

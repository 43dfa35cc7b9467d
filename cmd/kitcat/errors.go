package main

import "errors"

var (
	ErrCatalogDisabled    = errors.New("catalog disabled")
	ErrDirLocked          = errors.New("directory is locked by another kitcat process")
	ErrNotReconstructable = errors.New("parts are not reconstructable")
)

package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update finds the record in a
// state the transition does not allow, e.g. accepting a request that is no
// longer pending or completing one twice.
var ErrConflict = errors.New("conflict")

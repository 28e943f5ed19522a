package schema

import "errors"

var (
	// ErrTableNotFound is returned when the catalog has no columns for a table.
	ErrTableNotFound = errors.New("schema: table not found")
	// ErrRoutineNotFound is returned when a callable routine is absent from
	// the catalog, or the engine has no routines at all.
	ErrRoutineNotFound = errors.New("schema: routine not found")
)

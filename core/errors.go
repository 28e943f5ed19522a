package core

import (
	"errors"
)

var (
	// ErrNotUnique is returned when a key matches more than one row. Keys are
	// supposed to be unique, so this signals an integrity violation.
	ErrNotUnique = errors.New("item not unique")
	// ErrUnknownColumn is returned when a projection, filter or key names a
	// column the table does not have.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrInvalidID is returned when an id does not supply exactly one value
	// per primary key column.
	ErrInvalidID = errors.New("invalid id")
	// ErrNothingToUpdate is returned by Update when only key columns were selected.
	ErrNothingToUpdate = errors.New("nothing to update")
	// ErrNoPrimaryKey is returned for key-based operations on a table without one.
	ErrNoPrimaryKey = errors.New("table has no primary key")
)

package notestore

import (
	"errors"
)

var (
	ErrNoteNotFound = errors.New("note not found")
	// ErrNoteExists is returned when a generated id is already taken
	ErrNoteExists = errors.New("note already exists")
)

package store

import "errors"

var (
	// ErrNotFound is returned when a referenced user, group, or message does
	// not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when a unique constraint (email, username)
	// would be violated.
	ErrDuplicate = errors.New("store: already exists")

	// ErrNotAdmin is returned when a group mutation is attempted by a
	// principal other than the group's admin.
	ErrNotAdmin = errors.New("store: only the group admin may do that")

	// ErrInvalidMessage is returned when a message fails validation: empty
	// content, or not exactly one of receiver and group set.
	ErrInvalidMessage = errors.New("store: invalid message")
)

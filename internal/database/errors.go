package database

import "errors"

var (
	// ErrNotFound is returned when a store, staff member, customer,
	// reservation or sync task does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrSlotConflict is returned when a reservation insert or reschedule
	// would overlap an existing active reservation for the same staff member.
	ErrSlotConflict = errors.New("slot already booked for this staff member")

	// ErrConcurrentModification is returned when a versioned update loses
	// an optimistic-locking race.
	ErrConcurrentModification = errors.New("reservation was modified concurrently")
)

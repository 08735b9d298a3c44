package relationships

import "errors"

var (
	// ErrNotFound indicates the referenced user or friend request does not exist.
	ErrNotFound = errors.New("relationship record not found")
	// ErrForbidden indicates the caller is not the party allowed to perform the transition.
	ErrForbidden = errors.New("not authorized for this request")
	// ErrConflict indicates the operation would violate the single-active-request
	// or already-friends invariant.
	ErrConflict = errors.New("conflicting relationship state")
	// ErrInvalid indicates a malformed operation, such as self-targeting or an
	// illegal status transition.
	ErrInvalid = errors.New("invalid relationship operation")
)

package tracking

import "errors"

var (
	// ErrPermissionDenied is returned when a location permission tier is refused.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrRegistration is returned when background updates cannot be registered.
	ErrRegistration = errors.New("background registration failed")

	// ErrRemoteWrite wraps failures of the hosted store.
	ErrRemoteWrite = errors.New("remote write failed")

	// ErrLocalStorage wraps failures of the device key-value storage.
	ErrLocalStorage = errors.New("local storage failure")

	// ErrMissingIdentity is returned when a capture fires with no registered user.
	ErrMissingIdentity = errors.New("no registered user")

	// ErrUserIDRequired is returned by operations called without a user ID.
	ErrUserIDRequired = errors.New("user ID is required")
)

package location

import (
	"context"
	"errors"
)

var (
	// ErrPermissionNotGranted is returned when an operation needs a
	// permission the user has not granted.
	ErrPermissionNotGranted = errors.New("location: permission not granted")

	// ErrTaskNotDefined is returned when updates are started for a task
	// name with no bound handler.
	ErrTaskNotDefined = errors.New("location: task not defined")

	// ErrSourceExhausted is returned by a FixSource with no more fixes.
	ErrSourceExhausted = errors.New("location: source exhausted")
)

// Provider is the platform location service.
type Provider interface {
	RequestForegroundPermission(ctx context.Context) (PermissionStatus, error)
	RequestBackgroundPermission(ctx context.Context) (PermissionStatus, error)
	CurrentPosition(ctx context.Context, accuracy Accuracy) (*Fix, error)
	StartUpdates(ctx context.Context, taskName string, opts UpdateOptions) error
	HasStartedUpdates(ctx context.Context, taskName string) (bool, error)
	StopUpdates(ctx context.Context, taskName string) error
}

// FixSource produces position readings.
type FixSource interface {
	Next(ctx context.Context) (Fix, error)
}

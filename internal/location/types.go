// Package location is the device location subsystem: permission prompts,
// one-shot fixes and named background update tasks.
package location

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Accuracy is the requested fix quality.
type Accuracy int

const (
	AccuracyLowest Accuracy = iota + 1
	AccuracyLow
	AccuracyBalanced
	AccuracyHigh
	AccuracyHighest
)

func (a Accuracy) String() string {
	switch a {
	case AccuracyLowest:
		return "lowest"
	case AccuracyLow:
		return "low"
	case AccuracyBalanced:
		return "balanced"
	case AccuracyHigh:
		return "high"
	case AccuracyHighest:
		return "highest"
	default:
		return fmt.Sprintf("accuracy(%d)", int(a))
	}
}

// ParseAccuracy parses an accuracy name, case-insensitively.
func ParseAccuracy(s string) (Accuracy, error) {
	switch strings.ToLower(s) {
	case "lowest":
		return AccuracyLowest, nil
	case "low":
		return AccuracyLow, nil
	case "balanced":
		return AccuracyBalanced, nil
	case "high":
		return AccuracyHigh, nil
	case "highest":
		return AccuracyHighest, nil
	default:
		return 0, fmt.Errorf("invalid accuracy: %s", s)
	}
}

// PermissionStatus is the outcome of a permission prompt.
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// Coords is a position reading. Optional readings are nil when the sensor
// does not report them.
type Coords struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"` // meters
	Speed     *float64 `json:"speed,omitempty"`    // meters/second
	Heading   *float64 `json:"heading,omitempty"`
}

// Fix is a position reading taken at a point in time.
type Fix struct {
	Coords    Coords    `json:"coords"`
	Timestamp time.Time `json:"timestamp"`
}

// Indicator is the persistent user-visible notice shown while background
// updates run.
type Indicator struct {
	Title string
	Body  string
}

// UpdateOptions configures a background update task.
type UpdateOptions struct {
	Accuracy         Accuracy
	TimeInterval     time.Duration // minimum time between deliveries, 0 disables
	DistanceInterval float64       // minimum displacement in meters, 0 disables
	ShowIndicator    bool
	Indicator        Indicator
}

// TaskEvent is one delivery to a task handler: a batch of fixes collected
// since the previous delivery, or an error.
type TaskEvent struct {
	Locations []Fix
	Err       error
}

// TaskFunc handles deliveries for a named task.
type TaskFunc func(ctx context.Context, event TaskEvent)

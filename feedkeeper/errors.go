// CLAUDE:SUMMARY Sentinel errors for the feedkeeper service: invalid input, unknown source, missing locator, bad window, bad config.
package feedkeeper

import "errors"

// ErrInvalidInput is returned when caller input fails validation.
var ErrInvalidInput = errors.New("feedkeeper: invalid input")

// ErrNoSources is returned when a named source is not registered.
var ErrNoSources = errors.New("feedkeeper: no such source")

// ErrMissingLocator is returned when a queue item carries nothing to
// identify or fetch it by.
var ErrMissingLocator = errors.New("feedkeeper: missing locator")

// ErrInvalidWindow is returned when a window query ends before it starts.
var ErrInvalidWindow = errors.New("feedkeeper: invalid window")

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("feedkeeper: invalid config")

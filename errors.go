package redgloom

import "errors"

// Configuration errors. These are returned by New before the store is
// touched. Errors coming back from Redis are never wrapped.
var (
	// ErrInvalidSize is returned when the expected item count is zero.
	ErrInvalidSize = errors.New("redgloom: invalid size")

	// ErrInvalidErrorRate is returned when the false positive rate is not in (0, 1).
	ErrInvalidErrorRate = errors.New("redgloom: invalid error rate")

	// ErrInvalidGrowthFactor is returned when the growth factor is below 1.
	ErrInvalidGrowthFactor = errors.New("redgloom: invalid growth factor")

	// ErrUnknownDriver is returned when no driver is registered under the requested name.
	ErrUnknownDriver = errors.New("redgloom: unknown driver")

	// ErrUnknownHashEngine is returned when no digest engine is registered under the requested name.
	ErrUnknownHashEngine = errors.New("redgloom: unknown hash engine")

	// ErrNoClient is returned when a Redis driver is selected without a client.
	ErrNoClient = errors.New("redgloom: redis client is required")
)

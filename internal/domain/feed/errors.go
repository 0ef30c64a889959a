package feed

import "errors"

// Sentinel errors for change feed handling.
var (
	// ErrFeedConnection reports that a subscription could not be established.
	ErrFeedConnection = errors.New("feed connection failed")
	// ErrMalformedEvent reports an envelope that cannot be applied.
	ErrMalformedEvent = errors.New("malformed change event")
)

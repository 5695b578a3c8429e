package core

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrMalformedTimestamp  = errors.New("malformed timestamp")
	ErrFeedUnavailable     = errors.New("feed unavailable")
	ErrNotificationFailure = errors.New("notification failure")
	ErrMalformedEntry      = errors.New("malformed entry")
	ErrWatermarkConflict   = errors.New("watermark was modified by another run")
	ErrTicketFailure       = errors.New("ticket creation failure")
)

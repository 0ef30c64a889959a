package service

import "errors"

// Sentinel error kinds returned by the service. The HTTP layer maps them
// with errors.Is.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnknownSource    = errors.New("unknown source")
	ErrNotParticipant   = errors.New("user is neither owner nor assignee")
	ErrAlreadyCompleted = errors.New("project already completed")
	ErrBusy             = errors.New("completion queue full")
)

package chatclient

import "errors"

var (
	// ErrTransportUnavailable means there was no live connection at emission
	// time; the affected message is marked failed, never queued.
	ErrTransportUnavailable = errors.New("chat transport unavailable")

	ErrRoomResolution = errors.New("room resolution failed")
	ErrFetchFailed    = errors.New("message fetch failed")
	ErrUploadRejected = errors.New("attachment upload rejected")
	ErrNoRoomSelected = errors.New("no conversation selected")
	ErrUnknownRoom    = errors.New("unknown conversation")
	ErrEmptyMessage   = errors.New("message draft has no content")
	ErrNotRetryable   = errors.New("message is not in a failed state")
)

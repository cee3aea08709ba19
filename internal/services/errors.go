package services

import "errors"

var (
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidContent  = errors.New("message has no content")
	ErrUserNotFound    = errors.New("user not found")
	ErrRoomNotFound    = errors.New("conversation not found")
	ErrUnsupportedType = errors.New("unsupported attachment type")
	ErrPayloadTooLarge = errors.New("attachment exceeds size limit")
)

package derror

import "errors"

// Connection-level failures surfaced by the session layer.
var (
	ErrConnectionClosed   = errors.New("connection closed")
	ErrSendQueueFull      = errors.New("send queue full")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrRateLimited        = errors.New("too many messages")
)

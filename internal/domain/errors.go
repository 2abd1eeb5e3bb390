package domain

import "errors"

// Stable error kinds. Handlers and the admin boundary match on these with
// errors.Is; the admin layer maps them to HTTP codes.
var (
	ErrChargerNotFound     = errors.New("charger not found")
	ErrChargerNotConnected = errors.New("charger not connected")
	ErrProtocolViolation   = errors.New("protocol violation")
	ErrUnknownAction       = errors.New("unknown action")
	ErrConcurrentTx        = errors.New("transaction already in progress")
	ErrTimeout             = errors.New("timeout waiting for charger response")
	ErrAuthorizationFailed = errors.New("authorization failed")
	ErrTransient           = errors.New("transient persistence failure")
	ErrShuttingDown        = errors.New("shutting down")
)

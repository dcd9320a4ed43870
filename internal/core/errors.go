package core

import (
	"errors"
	"fmt"
)

// Error codes recorded in State.LastError.
const (
	ErrCodeNoIdentity       = "no_identity"
	ErrCodeTransport        = "transport"
	ErrCodeFetchFailed      = "fetch_failed"
	ErrCodeMalformedPayload = "malformed_payload"
	ErrCodeNotConnected     = "not_connected"
)

var (
	ErrNoFocusedRoom = errors.New("no focused room")
	ErrStoreStopped  = errors.New("store stopped")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// errorFrom converts err into a CoreError, keeping an existing code when present.
func errorFrom(code string, err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return coreError(code, err.Error())
}

package service

import (
	"errors"
	"time"
)

var (
	ErrVerifier           = errors.New("identity verification failed")
	ErrClock              = errors.New("clock unavailable")
	ErrServiceUnavailable = errors.New("history unavailable")
	ErrGateway            = errors.New("callback failed")
)

// Status is the request-level result of an access attempt.
type Status string

const (
	StatusOK                 Status = "ok"
	StatusForbidden          Status = "forbidden"
	StatusInternalError      Status = "internal-error"
	StatusServiceUnavailable Status = "service-unavailable"
	StatusGatewayError       Status = "gateway-error"
)

// StatusOf maps an error returned by this package to its status.
// A nil error maps to StatusOK.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrGateway):
		return StatusGatewayError
	case errors.Is(err, ErrServiceUnavailable):
		return StatusServiceUnavailable
	default:
		return StatusInternalError
	}
}

// Clock returns the current wall-clock time in epoch seconds.
type Clock func() (uint64, error)

var errBeforeEpoch = errors.New("system time is before the unix epoch")

func SystemClock() (uint64, error) {
	secs := time.Now().Unix()
	if secs < 0 {
		return 0, errBeforeEpoch
	}
	return uint64(secs), nil
}

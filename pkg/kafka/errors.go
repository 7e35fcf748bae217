package kafka

import (
	"errors"
	"strings"
)

var (
	ErrProducerClosed = errors.New("kafka producer is closed")
	ErrInvalidMessage = errors.New("invalid message")
	ErrEmptyKey       = errors.New("message key cannot be empty")
	ErrEmptyValue     = errors.New("message value cannot be empty")
)

type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	// network issues, timeouts
	ErrorTypeTransient
	// schema mismatch, invalid data
	ErrorTypePermanent
)

var transientPatterns = []string{
	"connection refused",
	"timeout",
	"deadline exceeded",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"connection reset",
	"temporary failure",
	"leader not available",
	"not enough replicas",
}

// ClassifyError tells transient broker failures apart from failures that
// will not go away on retry.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	if errors.Is(err, ErrInvalidMessage) || errors.Is(err, ErrEmptyKey) || errors.Is(err, ErrEmptyValue) || errors.Is(err, ErrProducerClosed) {
		return ErrorTypePermanent
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return ErrorTypeTransient
		}
	}
	return ErrorTypePermanent
}

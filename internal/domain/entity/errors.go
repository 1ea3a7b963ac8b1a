package entity

import "errors"

// Standard domain errors
var (
	ErrInvalidRequest    = errors.New("invalid request parameters")
	ErrRateLimitExceeded = errors.New("rate limit exceeded: too many requests")
	ErrAuth              = errors.New("credential exchange failed")
	ErrClassifier        = errors.New("safety classifier unavailable")
	ErrBackend           = errors.New("backend generation failed")
)

package core

import "errors"

// Failure taxonomy surfaced to callers. Every failure inside the registry,
// cache, or engine is wrapped into one of these before it crosses the
// transport boundary; no raw internal error leaves unlabeled.
var (
	// ErrInvalidInput indicates a request that fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates an unknown voice or audio identifier.
	ErrNotFound = errors.New("not found")
	// ErrInvalidOperation indicates an attempt to mutate a builtin voice.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrModelUnavailable indicates the speech model cannot be reached.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrSynthesisFailed wraps model-call or storage failures during synthesis.
	ErrSynthesisFailed = errors.New("synthesis failed")
)

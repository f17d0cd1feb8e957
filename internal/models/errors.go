package models

import "errors"

// Validation errors returned by model hooks and constructors.
var (
	// ErrPromptRequired is returned when a video run has no prompt.
	ErrPromptRequired = errors.New("prompt is required")
	// ErrInvalidDuration is returned when a target duration is out of bounds.
	ErrInvalidDuration = errors.New("target duration out of bounds")
	// ErrScenePromptTooLong is returned when a scene prompt exceeds the limit.
	ErrScenePromptTooLong = errors.New("scene prompt exceeds 2000 characters")
	// ErrNarrationTooLong is returned when scene narration exceeds the limit.
	ErrNarrationTooLong = errors.New("scene narration exceeds 500 characters")
	// ErrLockKeyRequired is returned when a processing lock has no key.
	ErrLockKeyRequired = errors.New("lock key is required")
	// ErrRunNotTerminal is returned when an operation requires a finished run.
	ErrRunNotTerminal = errors.New("video run is still processing")
	// ErrRunTerminal is returned when an operation requires an active run.
	ErrRunTerminal = errors.New("video run already finished")
)

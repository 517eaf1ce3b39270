package voicepack

import "errors"

// Sentinel errors for voice pack operations.
var (
	// ErrNilConfig is returned when a nil config is passed to SavePack or RegisterConfig.
	ErrNilConfig = errors.New("config cannot be nil")

	// ErrEmptyPackName is returned when a pack has an empty metadata.name.
	ErrEmptyPackName = errors.New("pack name cannot be empty")

	// ErrPackNotFound is returned when a requested voice pack is not found.
	ErrPackNotFound = errors.New("voice pack not found")

	// ErrVoiceNotFound is returned when a voice ID does not exist in a pack.
	ErrVoiceNotFound = errors.New("voice not found in pack")

	// ErrStyleNotFound is returned when a style name does not exist in a pack.
	ErrStyleNotFound = errors.New("style not found in pack")
)

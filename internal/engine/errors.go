package engine

import "errors"

var (
	// ErrEmptyContent rejects blank memory content before any side effect.
	ErrEmptyContent = errors.New("empty memory content")
	// ErrUnknownDepth rejects depth strings outside shallow/medium/deep.
	ErrUnknownDepth = errors.New("unknown echo depth")
)

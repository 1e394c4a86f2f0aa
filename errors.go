package pgjob

import (
	"errors"
)

var (
	ErrQueueIsRequired = errors.New("queue is required")
	ErrTypeIsRequired  = errors.New("type is required")
	ErrEmptyQueue      = errors.New("queue is empty")

	ErrUnknownType = errors.New("unknown type")
)

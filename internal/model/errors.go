package model

import (
	"errors"
)

var (
	ErrInvalidDuration = errors.New("invalid duration")
	ErrUnknownTool     = errors.New("unknown tool")
)

package habit

import "errors"

var (
	ErrNotFound = errors.New("habit not found")
	ErrInvalid  = errors.New("invalid habit")
)

package breakdown

import "errors"

var (
	ErrHeaderNotFound       = errors.New("header row not found")
	ErrMissingTargetColumns = errors.New("target columns not found")
	ErrInvalidPolicy        = errors.New("invalid policy")
)

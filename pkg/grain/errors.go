package grain

import "errors"

var (
	// ErrInvalidShape reports an image whose dimensions disagree with its pixel data.
	ErrInvalidShape = errors.New("grain: invalid input shape")
	// ErrTooManyGrains reports a slice with more grains than the configured limit.
	ErrTooManyGrains = errors.New("grain: too many grains")
)

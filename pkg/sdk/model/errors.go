package model

import "errors"

var (
	errInvalidVariant = errors.New("model: exactly one of error/performance/behavior must be set")
	errKindMismatch   = errors.New("model: kind does not match populated variant")
	errMissingField   = errors.New("model: id, projectId and sessionId are required")
)

package idea

import "errors"

// Idea module errors.
var (
	ErrIdeaNotFound      = errors.New("idea not found")
	ErrProfileIncomplete = errors.New("brand profile incomplete")
	ErrEmptyTopic        = errors.New("topic must not be empty")
	ErrGenerationFailed  = errors.New("content generation failed")
)

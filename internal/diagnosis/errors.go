package diagnosis

import "errors"

var (
	// ErrInvalidInput rejects malformed requests (unknown question id,
	// answer value outside the question's options, duplicate answers,
	// budget overrun) before any inference runs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrVisitCompleted rejects answers submitted after the visit reached
	// its terminal state.
	ErrVisitCompleted = errors.New("visit already completed")
)

package models

import "errors"

// Externally visible failure classes. Everything a caller can observe wraps
// exactly one of these; use errors.Is to classify.
var (
	// ErrInvalidInput is a caller error, e.g. k <= 0 or a malformed rating.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDataUnavailable means the corpus, interaction or preference store
	// could not be reached.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrModelUnavailable means no trained latent model snapshot exists yet.
	// Recommendation requests do not fail on this: the engine falls back to
	// pure content-based scoring. Soft timeouts are not errors either; they
	// surface as the Degraded flag on the result.
	ErrModelUnavailable = errors.New("model unavailable")
)

package lime

import "errors"

var (
	// ErrInvalidParameter reports a non-positive sigma, gamma or eps, a
	// negative lambda, or an even kernel size. Parameters are never clamped.
	ErrInvalidParameter = errors.New("lime: invalid parameter")

	// ErrShapeMismatch reports grids that disagree on their expected
	// dimensions.
	ErrShapeMismatch = errors.New("lime: shape mismatch")

	// ErrSingularSystem reports a failed factorization of I + lambda*F.
	// For lambda > 0 the system is positive definite by construction, so
	// this indicates a broken Laplacian, not a recoverable condition.
	ErrSingularSystem = errors.New("lime: singular linear system")

	// ErrNumericalDegeneracy reports a NaN or Inf that slipped past the
	// epsilon guards. Fatal and non-retryable.
	ErrNumericalDegeneracy = errors.New("lime: numerical degeneracy")
)

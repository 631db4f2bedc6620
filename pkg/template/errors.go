package template

import "errors"

// Fatal binding and materialization faults. Binder faults abort the whole
// run; ErrKeyCollision and ErrStructuralDrift surface through Materialize and
// are handled at row granularity by the caller.
var (
	// ErrStructuralDrift means re-deriving the parameter index from a fresh
	// copy of the template did not reproduce the original index, so the
	// template is not safely deep-copyable.
	ErrStructuralDrift = errors.New("template parameter index drifted between derivations")

	// ErrDuplicateColumn means the CSV header repeats a column name that a
	// binding needs.
	ErrDuplicateColumn = errors.New("duplicate column name in csv header")

	// ErrDuplicateArrayParameter means an array-shaped placeholder would be
	// bound more than once.
	ErrDuplicateArrayParameter = errors.New("duplicate array parameter")

	// ErrMixedParameterDepth means occurrences of one placeholder sit at
	// different array nesting depths.
	ErrMixedParameterDepth = errors.New("parameter used at mixed array depths")

	// ErrKeyCollision means stripping discriminator tags produced two
	// identical keys in the same object.
	ErrKeyCollision = errors.New("duplicate attribute after tag removal")
)

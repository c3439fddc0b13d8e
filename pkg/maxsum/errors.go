package maxsum

import "github.com/pkg/errors"

// Sentinel error kinds. Call sites should compare with errors.Is rather
// than string-matching error text; the concrete errors returned by this
// package wrap these with additional context via github.com/pkg/errors.
var (
	// ErrUnknownVariable is returned for access to a VarID that has not
	// been registered, or a re-registration with a conflicting size.
	ErrUnknownVariable = errors.New("maxsum: unknown variable")

	// ErrBadDomain is returned when a marginalization or condition
	// operation is given a domain relationship it cannot satisfy (for
	// example, marginalizing onto a domain that is not a subset of the
	// input domain).
	ErrBadDomain = errors.New("maxsum: bad domain relationship")

	// ErrOutOfRange is returned when a size or index is outside its valid
	// range, such as Register with a non-positive domain size. Linear
	// element accessors panic instead (see function.go's checkLinear); the
	// C-ABI adapter reports out-of-range indices as -1 or nil.
	ErrOutOfRange = errors.New("maxsum: index out of range")
)

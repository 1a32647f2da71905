// Package kerrors defines the recoverable error kinds surfaced by the
// kernel core (spec.md section 7). Assertion-class violations are not
// modeled here -- they panic at the point of detection, matching Pintos's
// ASSERT() and Biscuit's own liberal use of panic("...") for invariants
// that must never break.
package kerrors

import "github.com/pkg/errors"

// Sentinel errors for the recoverable error kinds named in spec.md section 7.
var (
	// ErrOutOfMemory is returned when the allocator (frame pool, SPTE/SPDE
	// heap) has nothing left to give.
	ErrOutOfMemory = errors.New("kernel: out of memory")

	// ErrInvalidMapping is returned by Mmap when the requested range
	// overlaps an existing mapping or an already-present page.
	ErrInvalidMapping = errors.New("kernel: invalid mapping")

	// ErrOutOfSwap is returned when the swap bitmap has no free slot.
	ErrOutOfSwap = errors.New("kernel: out of swap")

	// ErrNotFound is returned by lookups (SPTE, mmap region) that find
	// nothing, which is not itself fatal -- callers decide.
	ErrNotFound = errors.New("kernel: not found")
)

// Wrap attaches call-site context to one of the sentinel errors above
// without discarding its identity: errors.Is(Wrap(ErrOutOfSwap, "..."),
// ErrOutOfSwap) still holds.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, context)
}

// Is reports whether err (or anything it wraps) is the given sentinel.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

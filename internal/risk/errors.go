// Package risk implements the pure trading math for the platform: margin
// calculation, P&L computation, position closure triggers, and
// portfolio-level risk classification. Every function operates on immutable
// snapshots passed by the caller and returns a fresh result; there is no
// internal mutable state, so calls are safe to evaluate concurrently across
// positions.
package risk

import "errors"

var (
	// ErrInvalidInput is returned when a price, quantity, or leverage input
	// is non-positive. Invalid inputs are rejected, never clamped.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyClosed is returned when closure is attempted on a position
	// that is not open.
	ErrAlreadyClosed = errors.New("position already closed")

	// ErrInvalidQuantity is returned when a partial-close quantity falls
	// outside (0, position.Quantity).
	ErrInvalidQuantity = errors.New("invalid close quantity")

	// ErrMissingAssetSpec is returned when no asset configuration exists
	// for a symbol.
	ErrMissingAssetSpec = errors.New("missing asset spec")
)

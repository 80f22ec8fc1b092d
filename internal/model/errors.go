package model

import (
	"errors"
	"fmt"
)

// Typed outcomes the API layer maps onto responses. Everything here is
// returned, never panicked, except RoundingInvariantViolation which is a
// calculator bug and aborts the operation before any write.
var (
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrFeedbackRequired          = errors.New("feedback is required")
	ErrInvalidStatusTransition   = errors.New("invalid status transition")
	ErrIncompleteDeliverable     = errors.New("incomplete deliverable")
	ErrAlreadyDisbursed          = errors.New("already disbursed")
	ErrConcurrentModification    = errors.New("concurrent modification")
	ErrRoundingInvariantViolated = errors.New("rounding invariant violated")
	ErrNotFound                  = errors.New("not found")
)

// InsufficientEscrowError carries the exact shortfall so the caller can
// render it.
type InsufficientEscrowError struct {
	Required  int64
	Available int64
}

func (e *InsufficientEscrowError) Error() string {
	return fmt.Sprintf("insufficient escrow balance: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientEscrowError) Shortfall() int64 {
	return e.Required - e.Available
}

// OverAllocationError reports by how much a leader's allocation map exceeds
// the pool share.
type OverAllocationError struct {
	PoolShare int64
	Allocated int64
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("allocation exceeds pool share by %d (share %d, allocated %d)", e.Excess(), e.PoolShare, e.Allocated)
}

func (e *OverAllocationError) Excess() int64 {
	return e.Allocated - e.PoolShare
}

// InvalidAllocationError names the member that cannot receive a new
// allocation (unknown, or left the project).
type InvalidAllocationError struct {
	MemberID int64
	Reason   string
}

func (e *InvalidAllocationError) Error() string {
	return fmt.Sprintf("invalid allocation for member %d: %s", e.MemberID, e.Reason)
}

// InvalidTransitionError wraps ErrInvalidStatusTransition with the offending
// pair so logs show what the caller attempted.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: illegal transition %s -> %s", e.Entity, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidStatusTransition
}

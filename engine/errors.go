package engine

import (
	"errors"
	"fmt"
)

// Validation errors: the action was illegal in the current state. State is
// left untouched and the caller may retry with corrected input.
var (
	ErrNotYourTurn    = errors.New("not your turn")
	ErrWrongStage     = errors.New("wrong turn phase")
	ErrWrongStatus    = errors.New("session not in playing state")
	ErrAlreadyLaid    = errors.New("already laid down this round")
	ErrNotLaidDown    = errors.New("must lay down before hitting")
	ErrCardNotInHand  = errors.New("card not in hand")
	ErrInvalidHit     = errors.New("card cannot extend group")
	ErrInvalidTarget  = errors.New("invalid hit target")
	ErrInvalidSeat    = errors.New("invalid seat")
	ErrSkipPickup     = errors.New("cannot pick up a skip card from the discard pile")
	ErrEmptyDiscard   = errors.New("discard pile is empty")
	ErrPhaseMismatch  = errors.New("cards do not satisfy the current phase")
	ErrTooManyCards   = errors.New("too many cards for phase matching")
	ErrInvalidSource  = errors.New("unknown draw source")
	ErrHandTooLarge   = errors.New("hand size too large for the deck")
)

// ErrDrawExhausted is a resource-exhaustion error: a pile draw was requested
// with an empty draw pile and a discard pile holding at most one card. The
// engine takes no corrective action on its own.
var ErrDrawExhausted = errors.New("draw pile exhausted and discard pile cannot be reshuffled")

// MatchError reports which requirement of a phase could not be satisfied.
// It wraps ErrPhaseMismatch so callers can treat all matcher failures as one
// validation category.
type MatchError struct {
	ReqIndex    int         // index into the normalized requirement list
	Requirement Requirement // the unmet requirement (quantity 1)
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("no valid %s of %d could be formed (requirement %d)",
		e.Requirement.Kind, e.Requirement.Size, e.ReqIndex)
}

func (e *MatchError) Unwrap() error { return ErrPhaseMismatch }

// CountError reports a candidate set whose size does not match the phase's
// exact card count. It also wraps ErrPhaseMismatch.
type CountError struct {
	Got  int
	Want int
}

func (e *CountError) Error() string {
	return fmt.Sprintf("phase requires exactly %d cards, got %d", e.Want, e.Got)
}

func (e *CountError) Unwrap() error { return ErrPhaseMismatch }

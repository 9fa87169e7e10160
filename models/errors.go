package models

import "errors"

// Rejections surfaced to the acting user. None of these are faults; callers
// report them and leave shared state untouched.
var (
	// authorization
	ErrUnauthorized = errors.New("actor is not allowed to perform this action")

	// validity
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidState      = errors.New("action not allowed in the current state")
	ErrConcurrentSession = errors.New("a game of this type is already in progress")
	ErrCooldown          = errors.New("command is on cooldown")
	ErrNotFound          = errors.New("not found")
	ErrNotParticipant    = errors.New("user is not a participant")
	ErrNothingToUndo     = errors.New("no pick to undo")
	ErrBettingClosed     = errors.New("betting is closed")
	ErrInvalidCell       = errors.New("cell index out of range")
	ErrInvalidTeam       = errors.New("team must be 1 or 2")
	ErrMatchFull         = errors.New("match roster is full")
	ErrSelfTransfer      = errors.New("cannot transfer to yourself")
	ErrInvalidChoice     = errors.New("unknown choice")

	// already happened
	ErrDuplicateAction = errors.New("action was already performed")
	ErrSessionExpired  = errors.New("session already resolved")
)

// RejectionKind groups rejections by how they should be worded to the user.
type RejectionKind string

const (
	RejectionNone          RejectionKind = ""
	RejectionAuthorization RejectionKind = "authorization"
	RejectionValidity      RejectionKind = "validity"
	RejectionAlreadyDone   RejectionKind = "already_done"
)

// ClassifyRejection reports which kind of rejection err wraps. Errors that are
// not rejections (I/O failures and the like) return RejectionNone.
func ClassifyRejection(err error) RejectionKind {
	switch {
	case err == nil:
		return RejectionNone
	case errors.Is(err, ErrUnauthorized):
		return RejectionAuthorization
	case errors.Is(err, ErrDuplicateAction), errors.Is(err, ErrSessionExpired):
		return RejectionAlreadyDone
	}

	for _, target := range []error{
		ErrInsufficientFunds, ErrInvalidAmount, ErrInvalidState, ErrConcurrentSession,
		ErrCooldown, ErrNotFound, ErrNotParticipant, ErrNothingToUndo, ErrBettingClosed,
		ErrInvalidCell, ErrInvalidTeam, ErrMatchFull, ErrSelfTransfer, ErrInvalidChoice,
	} {
		if errors.Is(err, target) {
			return RejectionValidity
		}
	}
	return RejectionNone
}

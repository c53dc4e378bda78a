package token

import "errors"

// Terminal failure classes for ledger and authorization operations. Callers
// match these with errors.Is; the relayer maps them onto HTTP status codes.
var (
	ErrSuspended             = errors.New("token is suspended")
	ErrExpired               = errors.New("authorization deadline has passed")
	ErrInvalidRecipient      = errors.New("recipient is the zero address")
	ErrMalformedSignature    = errors.New("malformed signature")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrSupplyOverflow        = errors.New("total supply overflow")
	ErrAlreadyPaused         = errors.New("already paused")
	ErrNotPaused             = errors.New("not paused")
)

package domain

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("resource not found")
	ErrConflict            = errors.New("conflict")
	ErrIdempotencyConflict = errors.New("idempotency conflict")
	ErrStorageUnavailable  = errors.New("storage unavailable")

	// ErrUnknownReference marks a code, affiliate or request id that does not resolve.
	// Untrusted callers swallow it; admin callers surface it as invalid input.
	ErrUnknownReference = errors.New("unknown reference")
	ErrSelfReferral     = errors.New("self referral")

	ErrInvalidTransition   = errors.New("invalid payout status transition")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateCommission = errors.New("commission already recorded for payment")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrUnsupportedEvent    = errors.New("unsupported event type")
)

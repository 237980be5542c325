package model

import "errors"

// Domain error kinds. Callers match with errors.Is; call sites add detail by
// wrapping, e.g. fmt.Errorf("%w: dates overlap an existing block", ErrConflict).
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrExpired            = errors.New("expired")
	ErrValidationFailed   = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrSettlementMismatch = errors.New("settlement mismatch")
)

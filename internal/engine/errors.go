package engine

import "errors"

// Business errors are final: the engine never retries them and the caller
// gets them verbatim. ErrTransactionFailed is the infrastructure case: the
// atomic unit rolled back completely and a retry with the same reference is
// treated as a fresh attempt. ErrStatusPromotion means the balance mutation
// committed but the status flip did not; the entry stays PENDING and is
// reconciled out of band, never retried automatically.
var (
	ErrInvalidAmount     = errors.New("engine: amount must be positive")
	ErrAccountNotFound   = errors.New("engine: account not found")
	ErrAccountNotActive  = errors.New("engine: account is not active")
	ErrInsufficientFunds = errors.New("engine: insufficient funds")
	ErrTransactionFailed = errors.New("engine: transaction failed")
	ErrStatusPromotion   = errors.New("engine: status promotion failed")
)

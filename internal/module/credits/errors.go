package credits

import "errors"

// Credits module errors.
var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidTransactionType = errors.New("unknown transaction type")
	ErrUnknownOperation       = errors.New("unknown operation type")
	ErrInsufficientCredits    = errors.New("insufficient credits")
	ErrNoActiveSubscription   = errors.New("no active subscription")
)

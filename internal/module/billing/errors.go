package billing

import "errors"

// Billing module errors.
var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrPlanNotActive        = errors.New("plan not active")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrLifetimeUpgrade      = errors.New("cannot upgrade a recurring subscription to lifetime; cancel first")
)

package payment

import "errors"

// Payment module errors.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnresolvedUser   = errors.New("cannot resolve target user")
	ErrUnresolvedPlan   = errors.New("cannot resolve plan")
	ErrPackNotFound     = errors.New("credit pack not found")
)

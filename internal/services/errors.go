package services

import "errors"

// Domain errors surfaced to handlers. Handlers map them to HTTP statuses.
var (
	ErrConflict           = errors.New("email or mobile already registered")
	ErrMissingIdentifier  = errors.New("email or mobile is required")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrInvalidOTP = errors.New("invalid or expired otp")
	ErrDelivery   = errors.New("message delivery failed")

	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrGateway           = errors.New("payment gateway error")
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	ErrOrderNotFound     = errors.New("gateway order not found")
	ErrAmountMismatch    = errors.New("order amount does not match purchase total")

	ErrInvalidItems     = errors.New("purchase items are invalid")
	ErrTotalMismatch    = errors.New("total does not match line items")
	ErrDuplicatePayment = errors.New("payment already recorded")
)

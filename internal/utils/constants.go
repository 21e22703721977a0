package utils

import "time"

// Application Constants
const (
	AppName    = "GoPool"
	AppVersion = "1.0.0"

	// Default values
	DefaultLanguage = "en"
	DefaultCurrency = "USD"
	DefaultTimeZone = "UTC"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Authentication
	JWTAccessTokenTTL  = 24 * time.Hour
	JWTRefreshTokenTTL = 7 * 24 * time.Hour

	// Trip Constants
	MaxTripPassengers     = 8
	DefaultSearchRadius   = 10.0 // kilometers
	MaxSearchRadius       = 50.0 // kilometers
	ScheduleConflictWindow = 6 * time.Hour
	SweepInterval          = time.Minute

	// Chat
	MaxMessageLength = 1000

	// Payment
	PaymentTimeout = 15 * time.Second
	MinSeatPrice   = 0.0
	MaxSeatPrice   = 1000.0

	// Optimistic concurrency
	MaxSaveRetries = 3
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrValidationFailed = "validation failed"
	ErrInternalServer   = "internal server error"
	ErrUnauthorized     = "unauthorized"
	ErrForbidden        = "forbidden"
)

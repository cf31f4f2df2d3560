package utils

import (
	"time"
)

type contextKey string

// RequestIDKey is the context key under which handlers store the request id
const RequestIDKey contextKey = "request_id"

// Token constants
const (
	// AdminTokenTTL is the default lifetime of an admin access token (12 hours)
	AdminTokenTTL = 12 * time.Hour
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Admin permissions checked by the guard layer
const (
	PermissionSMSView         = "sms:view"
	PermissionSMSAttach       = "sms:attach"
	PermissionSMSParserUpdate = "sms:parser:update"
)

// Currency and reconciliation constants
const (
	// DefaultCurrency is assumed when an SMS does not state one
	DefaultCurrency = "RWF"

	// RwandaCountryCode is used to expand local MSISDNs into E.164
	RwandaCountryCode = "250"

	// MinPhoneDigits is the shortest digit run accepted as a phone number
	MinPhoneDigits = 9

	// MaxPhoneDigits is the E.164 upper bound
	MaxPhoneDigits = 15

	// DefaultListLimit and MaxListLimit bound admin list endpoints
	DefaultListLimit = 50
	MaxListLimit     = 200

	// MembershipTerm is the validity of a membership activated by payment
	MembershipTerm = 365 * 24 * time.Hour
)

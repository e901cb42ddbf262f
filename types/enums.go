package types

import "errors"

var (
	ErrAccountNotFound              = errors.New("account not found")
	ErrDuplicateLink                = errors.New("platform identity already linked to another account")
	ErrInvalidAmount                = errors.New("invalid amount")
	ErrResponseGeneratorUnavailable = errors.New("response generator unavailable")

	ErrInvalidEvent       = errors.New("invalid chat event")
	ErrInvalidIdentity    = errors.New("invalid platform identity")
	ErrEmptyMessage       = errors.New("empty message")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
	ErrEventNotFound      = errors.New("chat event not found")
	ErrReferralCodeTaken  = errors.New("referral code already taken")
	ErrEmailTaken         = errors.New("email already registered")
)

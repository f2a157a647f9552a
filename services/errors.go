// services/errors.go
package services

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure; the HTTP layer maps it to a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindExternal
)

// Error is a business-rule failure safe to show to the client.
// Err keeps the underlying cause for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two domain errors by kind and message so wrapped sentinels compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Validation builds a 400 error with a custom message.
func Validation(msg string) *Error { return newError(KindValidation, msg) }

// External wraps a payment provider failure without leaking its details.
func External(msg string, cause error) *Error {
	return &Error{Kind: KindExternal, Message: msg, Err: cause}
}

var (
	ErrInvalidAmount       = newError(KindValidation, "Amount must be positive")
	ErrAmountPrecision     = newError(KindValidation, "Amount cannot have more than 2 decimal places")
	ErrInvalidPhone        = newError(KindValidation, "Phone number must be in format 2547XXXXXXXX")
	ErrInvalidReferralCode = newError(KindValidation, "Invalid referral code")
	ErrInvalidTheme        = newError(KindValidation, "Invalid theme")
	ErrSelfTransfer        = newError(KindValidation, "Cannot transfer to yourself")

	ErrUnauthorized    = newError(KindUnauthorized, "Invalid Firebase token")
	ErrMissingToken    = newError(KindUnauthorized, "Authorization header missing or invalid")
	ErrNotActivated    = newError(KindForbidden, "Account not activated")
	ErrProfileNotFound = newError(KindNotFound, "Profile not found")

	ErrRecipientNotFound  = newError(KindNotFound, "Recipient not found")
	ErrTaskNotFound       = newError(KindNotFound, "Task not found")
	ErrPaymentNotFound    = newError(KindNotFound, "Payment not found")
	ErrWalletNotFound     = newError(KindNotFound, "Wallet not found")
	ErrWithdrawalNotFound = newError(KindNotFound, "Withdrawal not found")

	ErrInsufficientFunds = newError(KindConflict, "Insufficient balance")
	ErrAlreadyActivated  = newError(KindConflict, "Already activated")

	ErrPaymentProvider = newError(KindExternal, "Payment initiation failed")
)

// KindOf reports the kind of err, KindInternal for anything that is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

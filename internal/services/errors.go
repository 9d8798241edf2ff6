package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrUnverified           = errors.New("email address has not been verified")
	ErrNoLocalPassword      = errors.New("account was created with Google; sign in with Google")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	ErrNoPendingLogin       = errors.New("no pending login; sign in again")
	ErrNotTwoFactorEnabled  = errors.New("two-factor authentication is not active for this account")
	ErrMissingCode          = errors.New("two-factor code is required")
	ErrAlreadyEnabled       = errors.New("two-factor authentication is already enabled")
	ErrNotEnabled           = errors.New("two-factor authentication is not enabled")
	ErrSetupNotStarted      = errors.New("two-factor setup has not been started")
	ErrForbidden            = errors.New("forbidden")
	ErrExpired              = errors.New("token has expired")
	ErrInvalidToken         = errors.New("invalid token")
	ErrEmailTaken           = errors.New("email is already registered")
	ErrWeakPassword         = errors.New("password must be at least 8 characters")
	ErrInvalidEmail         = errors.New("a valid email address is required")
	ErrStoreFailure         = errors.New("store failure")
)

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreFailure, err)
}

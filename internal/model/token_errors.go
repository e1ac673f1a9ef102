package model

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

var (
	ErrTokenExpired = errors.New("refresh token expired")
	ErrPayloadSeal  = errors.New("failed to seal opaque token")
)

// ErrInvalidCredentials is returned by credential verifiers for a wrong
// login or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

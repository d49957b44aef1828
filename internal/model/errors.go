package model

import "errors"

// ErrAccountNotFound is returned by account lookups when the account does
// not exist (or was disconnected between the caller's lookup and the call).
// Terminal: callers must re-resolve rather than retry.
var ErrAccountNotFound = errors.New("account not found")

package repository

import "errors"

// ErrBrokerDeclined marks a definitive business rejection from the
// broker (insufficient funds, bad symbol, risk block). Callers must not
// retry an error wrapping this.
var ErrBrokerDeclined = errors.New("broker declined order")

// ErrSessionExpired is returned by a broker call made with a stale
// token. The caller should renew the session and retry once.
var ErrSessionExpired = errors.New("broker session expired")

// ErrOrderExists reports a create with an already-used order id.
var ErrOrderExists = errors.New("order already exists")

// ErrOrderNotFound reports a lookup of an unknown order id.
var ErrOrderNotFound = errors.New("order not found")

package domain

import "errors"

var (
	// ErrAuthentication covers a missing, malformed, forged or expired
	// handshake credential.
	ErrAuthentication = errors.New("authentication error")
	// ErrLookup means the credential was valid but names no known user.
	ErrLookup = errors.New("user not found")
	// ErrForbidden is returned when room authorization denies a join.
	ErrForbidden = errors.New("access denied to this project")
)

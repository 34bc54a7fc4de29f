package token

import "errors"

var (
	// ErrInvalidToken covers malformed input, bad signatures, wrong audience and
	// any other verification failure that is not expiry.
	ErrInvalidToken = errors.New("token: invalid")
	// ErrTokenExpired is returned for a correctly signed token past its exp claim.
	ErrTokenExpired = errors.New("token: expired")
)

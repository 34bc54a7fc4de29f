// Package token signs and verifies the two bearer credentials of a session:
// short-lived access tokens and long-lived refresh tokens. Each purpose has its
// own codec with its own secret and audience, so a token minted for one purpose
// never verifies under the other.
//
// Codecs are pure: they perform no I/O and never panic on malformed input.
package token

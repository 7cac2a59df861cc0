// Package crypto defines the key-pair abstraction shared by the long-term
// expert identity and the per-event ephemeral identities.
package crypto

import "errors"

// KeyType identifies the curve/scheme backing a KeyPair. Nostr events are
// secp256k1-only, but the interface leaves room for a future scheme without
// forcing callers to type-switch on a concrete struct.
type KeyType string

const (
	KeyTypeSecp256k1 KeyType = "secp256k1"
)

// KeyPair is a signing identity: a secret scalar and its derived x-only
// public key, hex-encoded the way the relay protocol expects on the wire.
type KeyPair interface {
	// PubKeyHex returns the 32-byte x-only public key, lowercase hex.
	PubKeyHex() string

	// PrivKeyHex returns the 32-byte secret scalar, lowercase hex.
	PrivKeyHex() string

	// Type returns the key scheme.
	Type() KeyType
}

// ErrInvalidSignature is returned by callers that verify a signature
// against a KeyPair's public key and find it does not check out.
var ErrInvalidSignature = errors.New("crypto: invalid signature")

// Package keys generates the secp256k1 identities used throughout the
// protocol: one long-term keypair per expert, and a throwaway ephemeral
// keypair for every outbound Bid and Answer event.
package keys

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	askcrypto "github.com/nostrband/libaskexperts/crypto"
)

// secp256k1KeyPair implements crypto.KeyPair. The public key is stored and
// exposed in the x-only, 32-byte form the relay protocol signs and
// transmits — not the 33-byte compressed SEC1 form secp256k1 normally uses.
type secp256k1KeyPair struct {
	priv *secp256k1.PrivateKey
	pub  *secp256k1.PublicKey
}

// GenerateSecp256k1KeyPair generates a fresh random keypair.
func GenerateSecp256k1KeyPair() (askcrypto.KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return &secp256k1KeyPair{priv: priv, pub: priv.PubKey()}, nil
}

// NewFromPrivHex reconstructs a keypair from a hex-encoded 32-byte secret
// scalar, as read from configuration.
func NewFromPrivHex(privHex string) (askcrypto.KeyPair, error) {
	b, err := hex.DecodeString(privHex)
	if err != nil {
		return nil, fmt.Errorf("decode private key hex: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	priv := secp256k1.PrivKeyFromBytes(b)
	return &secp256k1KeyPair{priv: priv, pub: priv.PubKey()}, nil
}

func (kp *secp256k1KeyPair) PubKeyHex() string {
	// SerializeCompressed is [0x02|0x03, X...]; the x-only wire form drops
	// the sign-parity prefix byte, per BIP-340.
	compressed := kp.pub.SerializeCompressed()
	return hex.EncodeToString(compressed[1:])
}

func (kp *secp256k1KeyPair) PrivKeyHex() string {
	return hex.EncodeToString(kp.priv.Serialize())
}

func (kp *secp256k1KeyPair) Type() askcrypto.KeyType {
	return askcrypto.KeyTypeSecp256k1
}

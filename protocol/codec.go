// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"
)

// CryptoError wraps a failure inside decryption or MAC verification, per
// the disposition table: decryption/MAC failure always abandons the turn.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return fmt.Sprintf("protocol: %s: %v", e.Op, e.Err) }
func (e *CryptoError) Unwrap() error { return e.Err }

// BuildUnsigned constructs an event with a generated created_at (now) and
// returns it ready for Sign.
func BuildUnsigned(kind int, pubkeyHex string, tags TagList, content string) nostr.Event {
	nt := make(nostr.Tags, len(tags))
	for i, t := range tags {
		nt[i] = nostr.Tag(t)
	}
	return nostr.Event{
		PubKey:    pubkeyHex,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      kind,
		Tags:      nt,
		Content:   content,
	}
}

// Sign computes the canonical id and a Schnorr signature over it, using the
// given secret key, and returns the fully signed event. The caller-supplied
// PubKey on evt is overwritten to the one derived from secretHex, since the
// two must always agree.
func Sign(evt nostr.Event, secretHex string) (nostr.Event, error) {
	if err := evt.Sign(secretHex); err != nil {
		return nostr.Event{}, fmt.Errorf("sign event: %w", err)
	}
	return evt, nil
}

// Verify reports whether evt's id and signature are both well-formed and
// valid. It returns no error: malformed input (such as an unparsable
// pubkey or signature) is reported as false, the same as an invalid event.
func Verify(evt *nostr.Event) bool {
	if !nostr.IsValidPublicKey(evt.PubKey) {
		return false
	}
	ok, err := evt.CheckSignature()
	return ok && err == nil
}

// conversationKey derives the NIP-44 symmetric key shared by mySecretHex
// and theirPubHex. ECDH on secp256k1 followed by HKDF, exactly the scheme
// required so encrypt(a,B) and decrypt(b,A) agree.
func conversationKey(mySecretHex, theirPubHex string) ([32]byte, error) {
	key, err := nip44.GenerateConversationKey(theirPubHex, mySecretHex)
	if err != nil {
		return [32]byte{}, fmt.Errorf("derive conversation key: %w", err)
	}
	return key, nil
}

// Encrypt derives the conversation key for (mySecretHex, theirPubHex) and
// seals plaintext into the single opaque NIP-44 ciphertext string.
func Encrypt(plaintext, mySecretHex, theirPubHex string) (string, error) {
	key, err := conversationKey(mySecretHex, theirPubHex)
	if err != nil {
		return "", &CryptoError{Op: "encrypt", Err: err}
	}
	ct, err := nip44.Encrypt(plaintext, key)
	if err != nil {
		return "", &CryptoError{Op: "encrypt", Err: err}
	}
	return ct, nil
}

// Decrypt derives the conversation key for (mySecretHex, theirPubHex) and
// opens ciphertext. Fails with *CryptoError on MAC mismatch, bad padding,
// or version byte mismatch — collapsing all of NIP-44's failure modes into
// one kind, since the core treats them identically (abandon the turn).
func Decrypt(ciphertext, mySecretHex, theirPubHex string) (string, error) {
	key, err := conversationKey(mySecretHex, theirPubHex)
	if err != nil {
		return "", &CryptoError{Op: "decrypt", Err: err}
	}
	pt, err := nip44.Decrypt(ciphertext, key)
	if err != nil {
		return "", &CryptoError{Op: "decrypt", Err: err}
	}
	return pt, nil
}

// TagsOf converts a signed event's tags into the wire-level TagList shape,
// for callers that need to inspect tags without depending on go-nostr's
// nostr.Tags type directly.
func TagsOf(evt *nostr.Event) TagList {
	out := make(TagList, len(evt.Tags))
	for i, t := range evt.Tags {
		out[i] = []string(t)
	}
	return out
}

// HashPreimage reports whether sha256(preimageHex) equals paymentHashHex.
// Both arguments are hex-encoded on the wire, per §4.1.
func HashPreimage(preimageHex, paymentHashHex string) bool {
	preimage, err := hex.DecodeString(preimageHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(paymentHashHex)
	if err != nil {
		return false
	}
	got := sha256.Sum256(preimage)
	if len(want) != len(got) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// PubKeyFromSecret derives the x-only hex public key for a secret scalar,
// using the same derivation the signing path uses internally, so callers
// that only hold a crypto.KeyPair never need to touch go-nostr directly.
func PubKeyFromSecret(secretHex string) (string, error) {
	pub, err := nostr.GetPublicKey(secretHex)
	if err != nil {
		return "", fmt.Errorf("derive public key: %w", err)
	}
	return pub, nil
}

// Package rpa implements Resolvable Private Address resolution as defined in
// Bluetooth Core Vol 3, Part H, 2.2.2 (the ah random address hash function).
package rpa

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/hex"

	"btrpa/internal/addr"
)

// Ah computes ah(k, r) = e(k, padding || r) mod 2^24: the 3 least significant
// octets of one AES-128 block encryption of 13 zero octets followed by prand.
func Ah(key addr.IdentityKey, prand [3]byte) [3]byte {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		// aes.NewCipher only fails on key length, which the type rules out.
		panic(err)
	}
	return ah(block, prand)
}

func ah(block cipher.Block, prand [3]byte) [3]byte {
	var in, out [aes.BlockSize]byte
	copy(in[aes.BlockSize-3:], prand[:])
	block.Encrypt(out[:], in[:])
	var h [3]byte
	copy(h[:], out[aes.BlockSize-3:])
	return h
}

// Resolver tests addresses against one IRK. It holds the expanded AES key so
// repeated resolutions do not re-run the key schedule. Safe for concurrent use.
type Resolver struct {
	block cipher.Block
}

func NewResolver(key addr.IdentityKey) *Resolver {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err)
	}
	return &Resolver{block: block}
}

// Resolve reports whether a is a resolvable private address generated from the
// resolver's key. Non-RPA addresses are rejected before any hashing.
func (r *Resolver) Resolve(a addr.Address) bool {
	if !a.IsResolvablePrivate() {
		return false
	}
	got := ah(r.block, a.Prand())
	want := a.Hash()
	return subtle.ConstantTimeCompare(got[:], want[:]) == 1
}

// Resolve is the one-shot form of Resolver.Resolve.
func Resolve(key addr.IdentityKey, a addr.Address) bool {
	return NewResolver(key).Resolve(a)
}

// Generate builds the RPA a device holding key would advertise for prand. The two
// MSBs of prand are forced to 01.
func Generate(key addr.IdentityKey, prand [3]byte) addr.Address {
	prand[0] = prand[0]&0x3F | 0x40
	h := Ah(key, prand)
	return addr.Address{prand[0], prand[1], prand[2], h[0], h[1], h[2]}
}

// Fingerprint is a short non-secret tag for a key, suitable for logs.
func Fingerprint(key addr.IdentityKey) string {
	h := Ah(key, [3]byte{})
	return hex.EncodeToString(h[:])
}

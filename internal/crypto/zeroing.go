// Package crypto provides the narrow cryptographic primitive set fstokend
// needs: Ed25519 signing, X25519 keygen, SHA-256 hashing, and NaCl secretbox
// authenticated encryption. This file contains memory zeroing utilities for
// secure cleanup of sensitive key material.
package crypto

import (
	"crypto/subtle"
)

// SecureZero overwrites a byte slice with zeros to prevent sensitive data
// from persisting in memory. This helps mitigate memory dump attacks and
// reduces the window during which keys are recoverable from RAM.
//
// Due to Go's garbage collector and potential compiler optimizations, this
// function cannot guarantee complete erasure, but it reduces the attack
// surface compared to no cleanup at all.
func SecureZero(b []byte) {
	if len(b) == 0 {
		return
	}
	// Use constant-time copy from a zero slice to prevent optimization removal
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}

// SecureZeroMultiple zeros multiple byte slices in a single call. Useful
// for cleaning up a signing seed alongside the file key it protected.
func SecureZeroMultiple(slices ...[]byte) {
	for _, s := range slices {
		SecureZero(s)
	}
}

// KeyMaterial wraps sensitive key data with automatic zeroing on Close().
// Use this for identity seeds and file keys loaded into memory.
//
// Example:
//
//	km := NewKeyMaterial(fileKey)
//	defer km.Close()
//	// ... use km.Bytes() ...
type KeyMaterial struct {
	data   []byte
	closed bool
}

// NewKeyMaterial creates a new KeyMaterial wrapper.
// The data is copied to prevent modification of the original slice.
func NewKeyMaterial(data []byte) *KeyMaterial {
	if data == nil {
		return &KeyMaterial{}
	}
	// Make a copy to own the data
	copied := make([]byte, len(data))
	copy(copied, data)
	return &KeyMaterial{data: copied}
}

// Bytes returns the underlying key data.
// Returns nil if the KeyMaterial has been closed.
func (km *KeyMaterial) Bytes() []byte {
	if km.closed {
		return nil
	}
	return km.data
}

// Len returns the length of the key data.
func (km *KeyMaterial) Len() int {
	if km.closed || km.data == nil {
		return 0
	}
	return len(km.data)
}

// Close securely zeros the key data and marks it as closed.
// This method is idempotent - multiple calls are safe.
func (km *KeyMaterial) Close() {
	if km.closed || km.data == nil {
		return
	}
	SecureZero(km.data)
	km.data = nil
	km.closed = true
}

// IsClosed returns whether the KeyMaterial has been closed.
func (km *KeyMaterial) IsClosed() bool {
	return km.closed
}

// SeedMaterial holds the sensitive inputs of a single signing or encryption
// operation: the identity's private seed and, where relevant, the file key
// it is being used alongside. Close() zeros both in one call so callers
// don't have to remember to zero each field individually.
type SeedMaterial struct {
	Seed    []byte
	FileKey []byte
	closed  bool
}

// Close securely zeros all held material. Idempotent.
func (sm *SeedMaterial) Close() {
	if sm.closed {
		return
	}
	SecureZeroMultiple(sm.Seed, sm.FileKey)
	sm.Seed = nil
	sm.FileKey = nil
	sm.closed = true
}

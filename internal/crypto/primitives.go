package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrSignatureInvalid is returned when a signature fails to verify.
var ErrSignatureInvalid = errors.New("signature invalid")

// ErrAuthFailed is returned when authenticated decryption fails — either
// the key is wrong or the ciphertext has been tampered with.
var ErrAuthFailed = errors.New("authenticated decryption failed")

// SecretKeySize is the size in bytes of a secretbox symmetric key.
const SecretKeySize = 32

// nonceSize is the size in bytes of the secretbox nonce prepended to every
// ciphertext produced by SecretboxSeal.
const nonceSize = 24

// Ed25519SignMessage signs message with the Ed25519 private key derived
// from seed (a 32-byte Ed25519 seed, not the full 64-byte expanded key).
// Returns the verify key, the original message, and the 64-byte signature —
// mirroring the three values a capability token embeds.
func Ed25519SignMessage(seed, message []byte) (verifyKey, signedMessage, signature []byte, err error) {
	if len(seed) != ed25519.SeedSize {
		return nil, nil, nil, fmt.Errorf("crypto: invalid seed size %d, want %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	sig := ed25519.Sign(priv, message)

	return []byte(pub), message, sig, nil
}

// Ed25519VerifyMessage verifies that signature is a valid Ed25519 signature
// by verifyKey over message. Returns ErrSignatureInvalid on failure.
func Ed25519VerifyMessage(verifyKey, message, signature []byte) error {
	if len(verifyKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: bad verify key length %d", ErrSignatureInvalid, len(verifyKey))
	}
	if !ed25519.Verify(ed25519.PublicKey(verifyKey), message, signature) {
		return ErrSignatureInvalid
	}
	return nil
}

// X25519Keygen generates a fresh X25519 key agreement keypair. The identity
// store does not persist an X25519 key: it keeps only an Ed25519 seed and
// its verify key, and the capability-token protocol only ever uses
// Ed25519 to sign and verify.
func X25519Keygen() (priv, pub []byte, err error) {
	priv = make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, nil, fmt.Errorf("crypto: generating x25519 scalar: %w", err)
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: deriving x25519 public key: %w", err)
	}
	return priv, pub, nil
}

// SHA256 returns the SHA-256 digest of message.
func SHA256(message []byte) []byte {
	sum := sha256.Sum256(message)
	return sum[:]
}

// SecretboxKeygen generates a fresh random 32-byte symmetric key suitable
// for SecretboxSeal/SecretboxOpen.
func SecretboxKeygen() ([]byte, error) {
	key := make([]byte, SecretKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("crypto: generating secretbox key: %w", err)
	}
	return key, nil
}

// SecretboxSeal authenticates and encrypts plaintext under key, returning a
// nonce-prefixed ciphertext. key must be SecretKeySize bytes.
func SecretboxSeal(key, plaintext []byte) ([]byte, error) {
	if len(key) != SecretKeySize {
		return nil, fmt.Errorf("crypto: invalid key size %d, want %d", len(key), SecretKeySize)
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}
	var secretKey [SecretKeySize]byte
	copy(secretKey[:], key)

	out := make([]byte, 0, nonceSize+len(plaintext)+secretbox.Overhead)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, plaintext, &nonce, &secretKey)
	return out, nil
}

// SecretboxOpen verifies and decrypts a nonce-prefixed ciphertext produced
// by SecretboxSeal. Returns ErrAuthFailed if authentication fails.
func SecretboxOpen(key, ciphertext []byte) ([]byte, error) {
	if len(key) != SecretKeySize {
		return nil, fmt.Errorf("crypto: invalid key size %d, want %d", len(key), SecretKeySize)
	}
	if len(ciphertext) < nonceSize {
		return nil, ErrAuthFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	var secretKey [SecretKeySize]byte
	copy(secretKey[:], key)

	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &secretKey)
	if !ok {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

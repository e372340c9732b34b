// Package token implements the capability-token format: three
// dot-separated base64 segments (issuer verify key, payload, signature)
// that name a file indirectly by a hash of its secret key, and a chain of
// prior tokens that jointly justify a delegated grant. Encoding and
// signature verification are grounded in the original daemon's
// nacl-backed Token.encode/decode; validation adds the delegation-chain
// walk the original implemented ad hoc across several source variants.
package token

import (
	"encoding/base64"
	"fmt"
	"strings"

	"fstokend/internal/crypto"
	"fstokend/internal/kind"
	"fstokend/internal/wire"
)

// Grant is the small enumeration of access levels a token can carry.
type Grant int

const (
	GrantRead Grant = iota
	GrantReadWrite
)

// Repr returns the canonical short representation baked into the
// designator hash. It MUST stay stable across versions: changing it
// invalidates every token and catalog entry in existence.
func (g Grant) Repr() string {
	switch g {
	case GrantRead:
		return "r"
	case GrantReadWrite:
		return "a"
	default:
		return ""
	}
}

func (g Grant) String() string {
	switch g {
	case GrantRead:
		return "READ"
	case GrantReadWrite:
		return "READ_WRITE"
	default:
		return "UNKNOWN"
	}
}

// allGrants enumerates every Grant value, in the order Validate probes
// candidate designators against a file key.
var allGrants = []Grant{GrantRead, GrantReadWrite}

// NormalizeGrant maps a user-facing grant string to its canonical Grant,
// rejecting anything outside the known set of synonyms.
func NormalizeGrant(s string) (Grant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "r", "read":
		return GrantRead, nil
	case "rw", "read/write", "read_write", "write", "a":
		return GrantReadWrite, nil
	default:
		return 0, kind.New(kind.BadGrant, fmt.Sprintf("unrecognized grant %q", s))
	}
}

// Payload is the signed body of a token.
type Payload struct {
	FileDesignator string
	Subject        string
	Proof          []string
}

// RawPayload is the caller-supplied input to Encode, before the grant is
// normalized and folded into a file designator.
type RawPayload struct {
	FileKey []byte // the 32-byte symmetric key the token designates, not the token's own signing key
	Grant   string
	Subject string
	Proof   []string
}

const fileKeySize = 32

func designator(fileKey []byte, g Grant) string {
	buf := make([]byte, 0, len(fileKey)+1+len(g.Repr()))
	buf = append(buf, fileKey...)
	buf = append(buf, '.')
	buf = append(buf, []byte(g.Repr())...)
	return base64.StdEncoding.EncodeToString(crypto.SHA256(buf))
}

func encodePayload(p Payload) []byte {
	w := wire.NewWriter()
	w.PutString(p.FileDesignator)
	w.PutString(p.Subject)
	w.PutStringSlice(p.Proof)
	return w.Bytes()
}

func decodePayload(data []byte) (Payload, error) {
	r := wire.NewReader(data)
	designator, err := r.GetString()
	if err != nil {
		return Payload{}, kind.Wrap(kind.MalformedPayload, "file_designator", err)
	}
	subject, err := r.GetString()
	if err != nil {
		return Payload{}, kind.Wrap(kind.MalformedPayload, "subject", err)
	}
	proof, err := r.GetStringSlice()
	if err != nil {
		return Payload{}, kind.Wrap(kind.MalformedPayload, "proof", err)
	}
	return Payload{FileDesignator: designator, Subject: subject, Proof: proof}, nil
}

// Encode builds a signed token string from raw. seed is the issuer's
// 32-byte Ed25519 signing seed.
func Encode(seed []byte, raw RawPayload) (string, error) {
	if len(raw.FileKey) != fileKeySize {
		return "", kind.New(kind.MalformedPayload, fmt.Sprintf("file_key must be %d bytes", fileKeySize))
	}

	grant, err := NormalizeGrant(raw.Grant)
	if err != nil {
		return "", err
	}

	payload := Payload{
		FileDesignator: designator(raw.FileKey, grant),
		Subject:        raw.Subject,
		Proof:          raw.Proof,
	}
	payloadBytes := encodePayload(payload)

	vk, signedPayload, sig, err := crypto.Ed25519SignMessage(seed, payloadBytes)
	if err != nil {
		return "", kind.Wrap(kind.Unexpected, "signing token payload", err)
	}

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(vk),
		base64.StdEncoding.EncodeToString(signedPayload),
		base64.StdEncoding.EncodeToString(sig),
	}, "."), nil
}

// Decode splits a token string into its three segments without verifying
// the signature. verifyKey and payloadBytes are returned alongside the
// parsed Payload so Validate can check the signature over the exact bytes
// that were signed.
func Decode(tokenString string) (verifyKey []byte, payloadBytes []byte, payload Payload, signature []byte, err error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, nil, Payload{}, nil, kind.New(kind.MalformedToken, "token must have exactly 3 segments")
	}

	verifyKey, err = base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, Payload{}, nil, kind.Wrap(kind.MalformedToken, "decoding verify key", err)
	}
	payloadBytes, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, Payload{}, nil, kind.Wrap(kind.MalformedToken, "decoding payload", err)
	}
	signature, err = base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, nil, Payload{}, nil, kind.Wrap(kind.MalformedToken, "decoding signature", err)
	}

	payload, err = decodePayload(payloadBytes)
	if err != nil {
		return nil, nil, Payload{}, nil, err
	}
	return verifyKey, payloadBytes, payload, signature, nil
}

// maxProofDepth bounds delegation-chain recursion so a crafted proof list
// cannot exhaust the stack or the broker's time budget.
const maxProofDepth = 16

// Validate walks a token (and its proof chain) against fileKey, returning
// the grant tokenString itself authorizes once every token in its proof
// chain has also validated. tokenString == "" is the base case: it
// returns carriedGrant, which must be non-nil (the root caller has no
// token to fall back on).
func Validate(tokenString string, carriedGrant *Grant, fileKey []byte) (Grant, error) {
	return validate(tokenString, carriedGrant, fileKey, make(map[string]bool), 0)
}

func validate(tokenString string, carried *Grant, fileKey []byte, seen map[string]bool, depth int) (Grant, error) {
	if tokenString == "" {
		if carried == nil {
			return 0, kind.New(kind.MalformedToken, "no token presented and no carried grant")
		}
		return *carried, nil
	}
	if depth >= maxProofDepth {
		return 0, kind.New(kind.ProofTooDeep, fmt.Sprintf("delegation chain exceeds %d elements", maxProofDepth))
	}
	if seen[tokenString] {
		return 0, kind.New(kind.ProofTooDeep, "delegation chain contains a cycle")
	}
	seen[tokenString] = true

	vk, payloadBytes, payload, sig, err := Decode(tokenString)
	if err != nil {
		return 0, err
	}
	if err := crypto.Ed25519VerifyMessage(vk, payloadBytes, sig); err != nil {
		return 0, kind.Wrap(kind.SignatureInvalid, "token signature", err)
	}

	authorized, ok := matchGrant(payload.FileDesignator, fileKey)
	if !ok {
		return 0, kind.New(kind.GrantMismatch, "designator does not match current file key under any grant")
	}

	next := ""
	for _, p := range payload.Proof {
		if !seen[p] {
			next = p
			break
		}
	}
	if _, err := validate(next, &authorized, fileKey, seen, depth+1); err != nil {
		return 0, err
	}
	return authorized, nil
}

func matchGrant(fileDesignator string, fileKey []byte) (Grant, bool) {
	for _, g := range allGrants {
		if designator(fileKey, g) == fileDesignator {
			return g, true
		}
	}
	return 0, false
}

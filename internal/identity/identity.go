// Package identity manages the per-user long-lived signing keypair stored
// under ~/.fskeys. It is grounded on the original fstoken daemon's
// fskeys.py: a directory mode 0700 containing base64-encoded key files
// mode 0600, created once on init and never rotated.
package identity

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fstokend/internal/crypto"
	"fstokend/internal/kind"
	"fstokend/internal/log"
)

// File names retained for compatibility with the original fstoken naming —
// the content is an Ed25519 signing seed and its public key, not an X25519
// keypair, but the on-disk names are left unchanged.
const (
	dirMode = 0o700
	keyMode = 0o600

	privFilename = "x25519.prv"
	pubFilename  = "x25519.pub"
)

// Store manages the identity directory at a configured path.
type Store struct {
	dir string
}

// New creates a Store rooted at dir (typically config.Config.IdentityDir).
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) privPath() string { return filepath.Join(s.dir, privFilename) }
func (s *Store) pubPath() string  { return filepath.Join(s.dir, pubFilename) }

// Init ensures the identity directory and both key files exist. If either
// key file is missing or empty, a fresh Ed25519 seed is generated and both
// files are (re)written. Init is idempotent: a second call against an
// already-initialized directory does not regenerate the keys.
func (s *Store) Init(verbose bool) error {
	s.logIf(verbose, "checking for identity directory", nil)
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		s.logIf(verbose, "creating identity directory", nil)
		if err := os.MkdirAll(s.dir, dirMode); err != nil {
			return kind.Wrap(kind.PermissionDenied, "creating identity directory", err)
		}
	} else if err != nil {
		return kind.Wrap(kind.Io, "stat identity directory", err)
	}

	s.logIf(verbose, "checking for key existence", nil)
	shouldKeygen := s.keyMissingOrEmpty(s.privPath()) || s.keyMissingOrEmpty(s.pubPath())
	if !shouldKeygen {
		return nil
	}

	s.logIf(verbose, "generating keys", nil)
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return kind.Wrap(kind.Unexpected, "generating signing seed", err)
	}
	_, pub, _, err := crypto.Ed25519SignMessage(seed, []byte{})
	if err != nil {
		return kind.Wrap(kind.Unexpected, "deriving verify key", err)
	}

	privB64 := base64.StdEncoding.EncodeToString(seed)
	pubB64 := base64.StdEncoding.EncodeToString(pub)

	if err := os.WriteFile(s.privPath(), []byte(privB64), keyMode); err != nil {
		return kind.Wrap(kind.PermissionDenied, "writing private key", err)
	}
	if err := os.WriteFile(s.pubPath(), []byte(pubB64), keyMode); err != nil {
		return kind.Wrap(kind.PermissionDenied, "writing public key", err)
	}
	return nil
}

func (s *Store) keyMissingOrEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return info.Size() == 0
}

// Check verifies the identity directory and both key files exist and are
// non-empty, returning a NotInitialized error describing the first problem
// found otherwise.
func (s *Store) Check() error {
	if _, err := os.Stat(s.dir); err != nil {
		return kind.New(kind.NotInitialized, fmt.Sprintf("%s does not exist", s.dir))
	}
	for _, p := range []string{s.privPath(), s.pubPath()} {
		info, err := os.Stat(p)
		if err != nil {
			return kind.New(kind.NotInitialized, fmt.Sprintf("%s does not exist", p))
		}
		if info.Size() == 0 {
			return kind.New(kind.NotInitialized, fmt.Sprintf("%s is empty", p))
		}
	}
	return nil
}

// Load reads and base64-decodes the private seed and public key. Callers
// should wrap the returned seed in a crypto.SeedMaterial and Close it
// after use.
func (s *Store) Load() (seed, pub []byte, err error) {
	if err := s.Check(); err != nil {
		return nil, nil, err
	}

	seed, err = readB64Line(s.privPath())
	if err != nil {
		return nil, nil, kind.Wrap(kind.Io, "reading private key", err)
	}
	pub, err = readB64Line(s.pubPath())
	if err != nil {
		return nil, nil, kind.Wrap(kind.Io, "reading public key", err)
	}
	return seed, pub, nil
}

func readB64Line(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	line := strings.TrimSpace(strings.SplitN(string(raw), "\n", 2)[0])
	return base64.StdEncoding.DecodeString(line)
}

func (s *Store) logIf(verbose bool, msg string, fields []log.Field) {
	if !verbose {
		return
	}
	log.Info(msg, append([]log.Field{log.String("identity_dir", s.dir)}, fields...)...)
}

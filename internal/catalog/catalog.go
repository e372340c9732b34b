// Package catalog implements the broker's privileged table of per-file
// secret keys: a tab-separated line file rewritten whole on every
// mutation, matching the original daemon's Keystore.change_entry. A
// sync.RWMutex serializes writers within the broker process; an advisory
// flock on the file itself is layered on top as defense in depth, since a
// future deployment might run more than one broker process against the
// same catalog path.
package catalog

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"fstokend/internal/kind"
)

const (
	fieldSep  = "\t"
	fileMode  = 0o600
	keySize   = 32
	fieldsLen = 3
)

// Entry is a single catalog record.
type Entry struct {
	Path      string
	Encrypted bool
	FileKey   []byte
}

// Catalog guards access to a single keystore.db file.
type Catalog struct {
	path string
	mu   sync.RWMutex
}

// Open returns a Catalog bound to path, creating an empty file at path
// with fileMode if one does not already exist.
func Open(path string) (*Catalog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, fileMode)
	if err != nil {
		return nil, kind.Wrap(kind.PermissionDenied, "creating catalog", err)
	}
	f.Close()
	return &Catalog{path: path}, nil
}

// Lookup returns the entry for path, if one exists.
func (c *Catalog) Lookup(target string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, err := c.readEntries()
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.Path == target {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// AddOrGet returns the key for target, generating and persisting a fresh
// one if no entry exists yet. If an entry exists, its encrypted flag is
// updated to encrypt when that differs from the stored value.
func (c *Catalog) AddOrGet(target string, encrypt bool) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	unlock, err := c.flockExclusive()
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries, err := c.readEntries()
	if err != nil {
		return nil, err
	}

	for i, e := range entries {
		if e.Path == target {
			entries[i].Encrypted = encrypt
			if err := c.writeEntries(entries); err != nil {
				return nil, err
			}
			return entries[i].FileKey, nil
		}
	}

	key, err := freshKey()
	if err != nil {
		return nil, err
	}
	entries = append(entries, Entry{Path: target, Encrypted: encrypt, FileKey: key})
	if err := c.writeEntries(entries); err != nil {
		return nil, err
	}
	return key, nil
}

// Rotate replaces target's key with a freshly generated one, preserving
// its encrypted flag. Callers must decrypt under the old key (obtained
// via Lookup before calling Rotate) before the file is re-encrypted under
// the new one. Fails with NotFound if no entry exists.
func (c *Catalog) Rotate(target string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	unlock, err := c.flockExclusive()
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries, err := c.readEntries()
	if err != nil {
		return nil, err
	}

	for i, e := range entries {
		if e.Path == target {
			key, err := freshKey()
			if err != nil {
				return nil, err
			}
			entries[i].FileKey = key
			if err := c.writeEntries(entries); err != nil {
				return nil, err
			}
			return key, nil
		}
	}
	return nil, kind.New(kind.NotFound, fmt.Sprintf("no catalog entry for %s", target))
}

// Delete removes target's entry. It is a no-op if no entry exists.
func (c *Catalog) Delete(target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	unlock, err := c.flockExclusive()
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := c.readEntries()
	if err != nil {
		return err
	}

	out := entries[:0]
	for _, e := range entries {
		if e.Path != target {
			out = append(out, e)
		}
	}
	return c.writeEntries(out)
}

func freshKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, kind.Wrap(kind.Unexpected, "generating file key", err)
	}
	return key, nil
}

func (c *Catalog) readEntries() ([]Entry, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, kind.Wrap(kind.Io, "reading catalog", err)
	}

	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, fieldSep)
		if len(fields) != fieldsLen {
			continue // malformed line cannot correspond to a valid entry; drop it
		}
		key, err := base64.StdEncoding.DecodeString(fields[2])
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Path:      fields[0],
			Encrypted: fields[1] == "1",
			FileKey:   key,
		})
	}
	return entries, nil
}

func (c *Catalog) writeEntries(entries []Entry) error {
	var buf bytes.Buffer
	for _, e := range entries {
		encFlag := "0"
		if e.Encrypted {
			encFlag = "1"
		}
		buf.WriteString(e.Path)
		buf.WriteString(fieldSep)
		buf.WriteString(encFlag)
		buf.WriteString(fieldSep)
		buf.WriteString(base64.StdEncoding.EncodeToString(e.FileKey))
		buf.WriteByte('\n')
	}

	if err := os.WriteFile(c.path, buf.Bytes(), fileMode); err != nil {
		return kind.Wrap(kind.Io, "rewriting catalog", err)
	}
	return nil
}

// flockExclusive takes an advisory exclusive lock on the catalog file for
// the duration of a single mutation, layered over the in-process mutex so
// a second broker process sharing the same catalog path (not expected in
// normal deployment, but not precluded by the socket design) cannot
// interleave a write with this one.
func (c *Catalog) flockExclusive() (func(), error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, kind.Wrap(kind.Io, "opening catalog for lock", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, kind.Wrap(kind.Io, "locking catalog", err)
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

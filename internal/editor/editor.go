// Package editor abstracts the Invoke follow-up: presenting file content
// to the user and collecting back whatever they choose to leave behind.
// The original daemon never settled on a concrete editor integration;
// this package treats it as a pluggable collaborator per the rewrite's
// design notes, rather than spawning a fixed editor binary.
package editor

import (
	"os"

	"fstokend/internal/kind"
)

// Session presents content to the user and returns what they leave
// behind after editing (or the unchanged content, if they made no
// changes or the grant was READ-only).
type Session interface {
	Edit(content []byte, writable bool) ([]byte, error)
}

// TempFileSession implements Session by writing content to a temporary
// file, invoking an external command (typically $EDITOR) against it, and
// reading the result back — the shape the original daemon's Invoke
// follow-up was designed around, without committing to one editor.
type TempFileSession struct {
	// Launch opens editorPath for the user to edit and blocks until they
	// are done. Tests substitute a fake that mutates the file directly.
	Launch func(editorPath string, writable bool) error
}

func (s *TempFileSession) Edit(content []byte, writable bool) ([]byte, error) {
	f, err := os.CreateTemp("", "fstoken-invoke-*")
	if err != nil {
		return nil, kind.Wrap(kind.Io, "creating temp file for invoke", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(content); err != nil {
		f.Close()
		return nil, kind.Wrap(kind.Io, "writing temp file for invoke", err)
	}
	if err := f.Close(); err != nil {
		return nil, kind.Wrap(kind.Io, "closing temp file for invoke", err)
	}

	if !writable {
		if err := os.Chmod(path, 0o400); err != nil {
			return nil, kind.Wrap(kind.Io, "marking invoke temp file read-only", err)
		}
	}

	if err := s.Launch(path, writable); err != nil {
		return nil, kind.Wrap(kind.Unexpected, "editor session", err)
	}

	edited, err := os.ReadFile(path)
	if err != nil {
		return nil, kind.Wrap(kind.Io, "reading edited temp file", err)
	}
	return edited, nil
}

// Static is a Session that returns a fixed replacement regardless of
// input, for tests that don't need a real editor round-trip.
type Static struct {
	Replacement []byte
}

func (s Static) Edit(content []byte, writable bool) ([]byte, error) {
	if !writable {
		return content, nil
	}
	return s.Replacement, nil
}

// Package filecipher performs whole-file authenticated encryption in
// place: read the entire file, truncate it, and write back the sealed or
// opened form under a single held file handle. It is grounded on the
// original daemon's management.encrypt/decrypt, which follow the same
// read-truncate-rewrite shape against a single in-memory blob.
package filecipher

import (
	"io"
	"os"

	"fstokend/internal/crypto"
	"fstokend/internal/kind"
)

// EncryptInPlace reads path, seals its content under key, and rewrites
// path with the ciphertext. The file must already exist.
func EncryptInPlace(path string, key []byte) error {
	return rewrite(path, func(plaintext []byte) ([]byte, error) {
		return crypto.SecretboxSeal(key, plaintext)
	})
}

// DecryptInPlace reads path, opens its content under key, and rewrites
// path with the plaintext. Fails with AuthFailed if the file is not valid
// ciphertext under key.
func DecryptInPlace(path string, key []byte) error {
	return rewrite(path, func(ciphertext []byte) ([]byte, error) {
		plaintext, err := crypto.SecretboxOpen(key, ciphertext)
		if err != nil {
			return nil, kind.Wrap(kind.AuthFailed, "decrypting "+path, err)
		}
		return plaintext, nil
	})
}

// DecryptToMemory opens path's content under key without touching the
// on-disk ciphertext, for delivering content to a reader without
// committing to a rewrite.
func DecryptToMemory(path string, key []byte) ([]byte, error) {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, ioErr(path, err)
	}
	plaintext, err := crypto.SecretboxOpen(key, ciphertext)
	if err != nil {
		return nil, kind.Wrap(kind.AuthFailed, "decrypting "+path, err)
	}
	return plaintext, nil
}

// ReadPlain reads a file that is not catalogued as encrypted.
func ReadPlain(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioErr(path, err)
	}
	return data, nil
}

// WritePlain overwrites path with content, truncating any prior content.
func WritePlain(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_TRUNC, 0)
	if err != nil {
		return ioErr(path, err)
	}
	defer f.Close()
	if _, err := f.Write(content); err != nil {
		return ioErr(path, err)
	}
	return nil
}

func rewrite(path string, transform func([]byte) ([]byte, error)) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return ioErr(path, err)
	}
	defer f.Close()

	original, err := readAll(f)
	if err != nil {
		return ioErr(path, err)
	}

	result, err := transform(original)
	if err != nil {
		return err
	}

	if err := f.Truncate(0); err != nil {
		return ioErr(path, err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return ioErr(path, err)
	}
	if _, err := f.Write(result); err != nil {
		return ioErr(path, err)
	}
	return nil
}

func readAll(f *os.File) ([]byte, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

func ioErr(path string, err error) error {
	if os.IsPermission(err) {
		return kind.Wrap(kind.PermissionDenied, path, err)
	}
	return kind.Wrap(kind.Io, path, err)
}

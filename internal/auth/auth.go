package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var (
	ErrBadKey    = errors.New("bad key file")
	ErrNotSealed = errors.New("ciphertext is not a sealed token")
)

// Sealer encrypts bearer tokens before they are written to disk.
type Sealer struct {
	key [keySize]byte
}

func NewSealer(key [keySize]byte) *Sealer {
	return &Sealer{key: key}
}

// LoadOrCreateKey reads a 32-byte key from path, generating it (mode 0600)
// when the file does not exist.
func LoadOrCreateKey(path string) (*Sealer, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != keySize {
			return nil, fmt.Errorf("%w: %s has %d bytes", ErrBadKey, path, len(data))
		}
		var key [keySize]byte
		copy(key[:], data)
		return NewSealer(key), nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key[:], 0600); err != nil {
		return nil, err
	}
	return NewSealer(key), nil
}

// Seal returns nonce||box.
func (s *Sealer) Seal(token string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], []byte(token), &nonce, &s.key), nil
}

func (s *Sealer) Open(sealed []byte) (string, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrNotSealed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrNotSealed
	}
	return string(plain), nil
}

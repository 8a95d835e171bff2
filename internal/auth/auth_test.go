package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	s, err := LoadOrCreateKey(filepath.Join(t.TempDir(), "key"))
	require.NoError(t, err)

	sealed, err := s.Seal("eyJhbGciOi.token")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "token")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "eyJhbGciOi.token", plain)

	again, err := s.Seal("eyJhbGciOi.token")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")
}

func TestOpenRejectsTampering(t *testing.T) {
	s := NewSealer([32]byte{1})
	sealed, err := s.Seal("abc")
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = s.Open(sealed)
	assert.ErrorIs(t, err, ErrNotSealed)

	_, err = s.Open([]byte("short"))
	assert.ErrorIs(t, err, ErrNotSealed)

	other := NewSealer([32]byte{2})
	sealed, _ = s.Seal("abc")
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrNotSealed)
}

func TestLoadOrCreateKeyPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "key")
	first, err := LoadOrCreateKey(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	sealed, err := first.Seal("x")
	require.NoError(t, err)
	plain, err := second.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "x", plain)

	require.NoError(t, os.WriteFile(path, []byte("tiny"), 0600))
	_, err = LoadOrCreateKey(path)
	assert.ErrorIs(t, err, ErrBadKey)
}
